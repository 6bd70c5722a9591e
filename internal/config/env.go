package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	EnvConfigFile     = "ASSET_REGISTRY_CONFIG_FILE"
	EnvRegistryDir    = "ASSET_REGISTRY_DIR"
	EnvPublicDir      = "ASSET_REGISTRY_PUBLIC_DIR"
	EnvSite           = "ASSET_REGISTRY_SITE"
	EnvLedgerPath     = "ASSET_REGISTRY_LEDGER"
	EnvAppendStrategy = "ASSET_REGISTRY_APPEND_STRATEGY"
	EnvGitEnabled     = "ASSET_REGISTRY_GIT"
	EnvGitRemote      = "ASSET_REGISTRY_GIT_REMOTE"
	EnvGitPush        = "ASSET_REGISTRY_GIT_PUSH"
)

// LoadEnvFiles loads the given .env files into the process environment.
// Missing files are skipped; variables already set are left alone.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with ASSET_REGISTRY_* variables.
func ApplyEnv(c *Config) {
	if v, ok := os.LookupEnv(EnvRegistryDir); ok && v != "" {
		c.RegistryDir = v
	}
	if v, ok := os.LookupEnv(EnvPublicDir); ok && v != "" {
		c.PublicDir = v
	}
	if v, ok := os.LookupEnv(EnvSite); ok && v != "" {
		c.Site = v
	}
	if v, ok := os.LookupEnv(EnvLedgerPath); ok && v != "" {
		c.LedgerPath = v
	}
	if v, ok := os.LookupEnv(EnvAppendStrategy); ok && v != "" {
		c.AppendStrategy = v
	}
	if v, ok := os.LookupEnv(EnvGitRemote); ok && v != "" {
		c.Git.Remote = v
	}
	if b, ok := lookupBool(EnvGitEnabled); ok {
		c.Git.Enabled = b
	}
	if b, ok := lookupBool(EnvGitPush); ok {
		c.Git.Push = b
	}
}

func lookupBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
