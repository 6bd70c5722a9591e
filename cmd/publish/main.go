package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/assetregistry/publisher/internal/config"
	"github.com/assetregistry/publisher/internal/index"
	"github.com/assetregistry/publisher/internal/ledger"
	"github.com/assetregistry/publisher/internal/logging"
	"github.com/assetregistry/publisher/internal/publish"
	"github.com/assetregistry/publisher/internal/sitemap"
	"github.com/assetregistry/publisher/internal/storage"
)

type options struct {
	configPath string
	registry   string
	public     string
	strategy   string
	noGit      bool
	noLedger   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to config file (JSON or .toml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	flag.StringVar(&opts.registry, "registry", "", "Override registry directory")
	flag.StringVar(&opts.public, "public", "", "Override public directory")
	flag.StringVar(&opts.strategy, "strategy", "", "Index append strategy (atomic, in-place)")
	flag.BoolVar(&opts.noGit, "no-git", false, "Skip the provenance commit and push")
	flag.BoolVar(&opts.noLedger, "no-ledger", false, "Skip the duplicate publish ledger")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: publish [flags] <asset-id> <descriptor-path>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.BuildLogger(*logLevel, *logFormat)

	if err := config.LoadEnvFiles(".env"); err != nil {
		logger.Error("load env", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts, flag.Arg(0), flag.Arg(1)); err != nil {
		logger.Error("publish failed", "asset", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options, assetID, descriptorPath string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.registry != "" {
		cfg.RegistryDir = opts.registry
	}
	if opts.public != "" {
		cfg.PublicDir = opts.public
	}
	if opts.strategy != "" {
		cfg.AppendStrategy = opts.strategy
	}
	if opts.noGit {
		cfg.Git.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	public := cfg.PublicPath()
	if err := os.MkdirAll(public, 0o755); err != nil {
		return fmt.Errorf("create public dir: %w", err)
	}
	store := storage.NewFSStorage(public)

	appender := index.NewAppender(index.Strategy(cfg.Strategy()), logger)
	appender.LockDir = cfg.RegistryDir
	archiver := publish.NewTarArchiver(cfg.TarBinary)
	archiver.Logger = logger

	runner := &publish.Runner{
		RegistryDir: cfg.RegistryDir,
		Storage:     store,
		Appender:    appender,
		Archiver:    archiver,
		Logger:      logger,
	}

	if cfg.Git.Enabled {
		git := publish.NewGitVCS(cfg.RegistryDir, cfg.Git.Remote, cfg.Git.Push)
		if cfg.Git.Binary != "" {
			git.Binary = cfg.Git.Binary
		}
		git.Logger = logger
		runner.VCS = git
	}

	if !opts.noLedger {
		l, err := ledger.Open(cfg.LedgerFile())
		if err != nil {
			return err
		}
		defer func() { _ = l.Close() }()
		runner.Ledger = l
	}

	if cfg.Site != "" {
		runner.SitemapGenerator = &sitemap.SitemapGenerator{
			Storage: store,
			SiteURL: cfg.SiteURL(),
			Logger:  logger,
		}
	}

	logger.Info("publishing asset",
		"asset", assetID,
		"descriptor", descriptorPath,
		"registry", cfg.RegistryDir,
		"public", public,
		"strategy", cfg.Strategy(),
	)

	res, err := runner.Publish(ctx, assetID, descriptorPath)
	if err != nil {
		return err
	}

	logger.Info("done",
		"asset", res.AssetID,
		"target", res.Target,
		"link", filepath.Join(public, res.AssetID+".json"),
		"committed", res.Committed,
	)
	return nil
}
