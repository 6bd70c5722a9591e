package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	FullIndexName    = "index.json"
	MinimalIndexName = "index.minimal.json"
	ArchiveName      = "index.tar.xz"

	// DescriptorGlob matches descriptors under their two-character
	// partition directories, relative to the registry dir.
	DescriptorGlob = "??/*.json"

	StrategyAtomic  = "atomic"
	StrategyInPlace = "in-place"
)

// Git configures the provenance commit made for each published descriptor.
type Git struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Binary  string `json:"binary" toml:"binary"`
	Remote  string `json:"remote" toml:"remote"`
	Push    bool   `json:"push" toml:"push"`
}

// Config is the publisher configuration. File keys match the JSON schema;
// TOML files use the same names.
type Config struct {
	RegistryDir    string `json:"registry_dir" toml:"registry_dir"`
	PublicDir      string `json:"public_dir" toml:"public_dir"`
	Site           string `json:"site" toml:"site"`
	LedgerPath     string `json:"ledger_path" toml:"ledger_path"`
	AppendStrategy string `json:"append_strategy" toml:"append_strategy"`
	TarBinary      string `json:"tar_binary" toml:"tar_binary"`
	Git            Git    `json:"git" toml:"git"`
}

// DefaultPath returns the config file named by ASSET_REGISTRY_CONFIG_FILE,
// or "" when unset, in which case Default applies.
func DefaultPath() string {
	return os.Getenv(EnvConfigFile)
}

// Default returns the configuration used when no file is given: the
// current directory is the registry, published under ./www.
func Default() *Config {
	return &Config{
		RegistryDir:    ".",
		AppendStrategy: StrategyAtomic,
		TarBinary:      "tar",
		Git: Git{
			Enabled: true,
			Binary:  "git",
			Remote:  "origin",
			Push:    true,
		},
	}
}

// Load reads the config at path on top of Default. An empty path yields
// the defaults. Files ending in ".toml" are decoded as TOML, anything else
// as JSON.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if err := toml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			if err := json.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RegistryDir == "" {
		return errors.New("config registry_dir is required")
	}
	switch c.AppendStrategy {
	case "", StrategyAtomic, StrategyInPlace:
	default:
		return fmt.Errorf("config append_strategy %q is not one of %q, %q", c.AppendStrategy, StrategyAtomic, StrategyInPlace)
	}
	if c.Git.Enabled && c.Git.Push && c.Git.Remote == "" {
		return errors.New("config git.remote is required when git.push is set")
	}
	return nil
}

// PublicPath returns the public directory, defaulting to <registry>/www.
func (c *Config) PublicPath() string {
	if c.PublicDir != "" {
		return c.PublicDir
	}
	return filepath.Join(c.RegistryDir, "www")
}

// LedgerFile returns the sqlite ledger location. It lives outside the
// public directory so it is never served.
func (c *Config) LedgerFile() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}
	return filepath.Join(c.RegistryDir, ".ledger.db")
}

func (c *Config) FullIndexPath() string {
	return filepath.Join(c.PublicPath(), FullIndexName)
}

func (c *Config) MinimalIndexPath() string {
	return filepath.Join(c.PublicPath(), MinimalIndexName)
}

func (c *Config) ArchivePath() string {
	return filepath.Join(c.PublicPath(), ArchiveName)
}

func (c *Config) SiteURL() string {
	return strings.TrimRight(c.Site, "/")
}

func (c *Config) Strategy() string {
	if c.AppendStrategy == "" {
		return StrategyAtomic
	}
	return c.AppendStrategy
}
