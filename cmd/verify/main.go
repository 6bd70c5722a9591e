package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/assetregistry/publisher/internal/config"
	"github.com/assetregistry/publisher/internal/ledger"
	"github.com/assetregistry/publisher/internal/logging"
	"github.com/assetregistry/publisher/internal/publish"
)

var errInconsistent = errors.New("registry is inconsistent")

type options struct {
	configPath string
	registry   string
	public     string
	backfill   bool
	noLedger   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to config file (JSON or .toml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	flag.StringVar(&opts.registry, "registry", "", "Override registry directory")
	flag.StringVar(&opts.public, "public", "", "Override public directory")
	flag.BoolVar(&opts.backfill, "backfill", false, "Record indexed ids missing from the ledger")
	flag.BoolVar(&opts.noLedger, "no-ledger", false, "Skip the ledger comparison")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: verify [flags]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 0 {
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

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("verify failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	var l *ledger.Ledger
	if !opts.noLedger {
		_, statErr := os.Stat(cfg.LedgerFile())
		switch {
		case statErr == nil || opts.backfill:
			if l, err = ledger.Open(cfg.LedgerFile()); err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
		case errors.Is(statErr, fs.ErrNotExist):
			logger.Warn("no ledger found, skipping ledger comparison", "path", cfg.LedgerFile())
		default:
			return fmt.Errorf("stat ledger: %w", statErr)
		}
	}

	audit, err := runAudit(ctx, cfg, l)
	if err != nil {
		return err
	}

	if opts.backfill && l != nil && audit.Full != nil {
		added, err := publish.Backfill(ctx, l, cfg.RegistryDir, audit.Full)
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		logger.Info("ledger backfilled", "added", added)
		if audit, err = runAudit(ctx, cfg, l); err != nil {
			return err
		}
	}

	for _, p := range audit.Problems {
		logger.Error("inconsistency", "problem", p)
	}
	if !audit.OK() {
		return fmt.Errorf("%w: %d problem(s)", errInconsistent, len(audit.Problems))
	}

	logger.Info("registry consistent",
		"full", cfg.FullIndexPath(),
		"minimal", cfg.MinimalIndexPath(),
		"entries", audit.Full.Count(),
	)
	return nil
}

func runAudit(ctx context.Context, cfg *config.Config, l *ledger.Ledger) (*publish.AuditReport, error) {
	// A nil *ledger.Ledger must not reach Audit as a non-nil interface.
	var ids publish.IDLister
	if l != nil {
		ids = l
	}
	return publish.Audit(ctx, cfg.FullIndexPath(), cfg.MinimalIndexPath(), ids)
}
