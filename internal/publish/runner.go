// Package publish implements the per-asset publish hook: record the
// descriptor's provenance, expose it in the public directory, rebuild the
// archive and append it to the full and minimal index documents.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/assetregistry/publisher/internal/config"
	"github.com/assetregistry/publisher/internal/index"
	"github.com/assetregistry/publisher/internal/ledger"
	"github.com/assetregistry/publisher/internal/projection"
	"github.com/assetregistry/publisher/internal/sitemap"
	"github.com/assetregistry/publisher/internal/storage"
)

// Ledger is the subset of *ledger.Ledger the runner needs.
type Ledger interface {
	Get(ctx context.Context, assetID string) (ledger.Entry, bool, error)
	Record(ctx context.Context, e ledger.Entry) error
}

type Runner struct {
	// RegistryDir holds the descriptors in two-character partitions.
	RegistryDir      string
	Storage          *storage.FSStorage
	Appender         *index.Appender
	Archiver         Archiver
	VCS              VCS    // optional
	Ledger           Ledger // optional
	SitemapGenerator *sitemap.SitemapGenerator
	Logger           *slog.Logger
}

// Publish runs every publish step for one asset, stopping at the first
// failure. Index documents are only touched after the commit, link and
// archive steps succeeded.
func (r *Runner) Publish(ctx context.Context, assetID string, descriptorPath string) (Result, error) {
	if r.Storage == nil || r.Appender == nil || r.Archiver == nil || r.RegistryDir == "" {
		return Result{}, errors.New("publish runner missing dependencies")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("asset", assetID)

	if err := ValidateAssetID(assetID); err != nil {
		return Result{}, err
	}
	descriptor, err := os.ReadFile(descriptorPath)
	if err != nil {
		return Result{}, fmt.Errorf("read descriptor: %w", err)
	}
	minimal, err := projection.Project(descriptor)
	if err != nil {
		return Result{}, fmt.Errorf("project descriptor %s: %w", descriptorPath, err)
	}
	canonical, err := storage.Canonical(descriptorPath)
	if err != nil {
		return Result{}, fmt.Errorf("descriptor path: %w", err)
	}

	if r.Ledger != nil {
		prev, seen, err := r.Ledger.Get(ctx, assetID)
		if err != nil {
			return Result{}, fmt.Errorf("ledger lookup: %w", err)
		}
		if seen {
			return Result{}, fmt.Errorf("%w: %s on %s", ledger.ErrDuplicateAsset, assetID, prev.PublishedAt.Format(time.RFC3339))
		}
	}

	res := Result{AssetID: assetID, Target: canonical, Minimal: minimal}

	if r.VCS != nil {
		committed, err := r.VCS.CommitAndPush(ctx, canonical, commitMessage(assetID))
		if err != nil {
			return res, fmt.Errorf("record provenance: %w", err)
		}
		res.Committed = committed
	}

	if _, err := r.Storage.LinkDescriptor(ctx, assetID, canonical); err != nil {
		return res, fmt.Errorf("link descriptor: %w", err)
	}
	logger.Debug("linked descriptor", "target", canonical)

	if err := r.Archiver.RebuildArchive(ctx, r.RegistryDir, config.DescriptorGlob, r.Storage.Path(config.ArchiveName)); err != nil {
		return res, fmt.Errorf("rebuild archive: %w", err)
	}

	if err := r.Appender.Append(ctx, r.Storage.Path(config.FullIndexName), assetID, descriptor); err != nil {
		return res, fmt.Errorf("append full index: %w", err)
	}
	if err := r.Appender.Append(ctx, r.Storage.Path(config.MinimalIndexName), assetID, minimal); err != nil {
		return res, fmt.Errorf("append minimal index: %w", err)
	}

	if r.Ledger != nil {
		err := r.Ledger.Record(ctx, ledger.Entry{
			AssetID:        assetID,
			DescriptorPath: canonical,
			Committed:      res.Committed,
		})
		if err != nil {
			return res, fmt.Errorf("ledger record: %w", err)
		}
	}

	if r.SitemapGenerator != nil {
		if err := r.SitemapGenerator.Generate(ctx); err != nil {
			// Non-fatal: the asset is already published.
			logger.Error("sitemap generation failed", "error", err)
		}
	}

	logger.Info("asset published", "committed", res.Committed, "minimal", string(minimal))
	return res, nil
}

func commitMessage(assetID string) string {
	return "Add asset " + assetID
}
