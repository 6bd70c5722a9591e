// Package ledger keeps a sqlite record of every published asset id. The
// publisher consults it to refuse a second publish of the same id before
// any index document is touched.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateAsset is returned when an asset id is recorded twice.
var ErrDuplicateAsset = errors.New("asset already published")

// Entry is one published asset.
type Entry struct {
	AssetID        string
	DescriptorPath string
	PublishedAt    time.Time
	Committed      bool
}

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Contains reports whether assetID was already recorded.
func (l *Ledger) Contains(ctx context.Context, assetID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE asset_id = ?`, assetID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", assetID, err)
	}
	return true, nil
}

// Record inserts e. It fails with ErrDuplicateAsset when the id exists.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE asset_id = ?`, e.AssetID).Scan(&one)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateAsset, e.AssetID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup %s: %w", e.AssetID, err)
	}

	if e.PublishedAt.IsZero() {
		e.PublishedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO assets (asset_id, descriptor_path, published_at, committed) VALUES (?, ?, ?, ?)`,
		e.AssetID, e.DescriptorPath, e.PublishedAt.UTC().Format(time.RFC3339), e.Committed)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.AssetID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return n, nil
}

// IDs returns every recorded asset id in publish order.
func (l *Ledger) IDs(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT asset_id FROM assets ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return ids, nil
}

// Get returns the entry for assetID, or false when it is not recorded.
func (l *Ledger) Get(ctx context.Context, assetID string) (Entry, bool, error) {
	var (
		e           Entry
		publishedAt string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT asset_id, descriptor_path, published_at, committed FROM assets WHERE asset_id = ?`, assetID,
	).Scan(&e.AssetID, &e.DescriptorPath, &publishedAt, &e.Committed)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s: %w", assetID, err)
	}
	if e.PublishedAt, err = time.Parse(time.RFC3339, publishedAt); err != nil {
		return Entry{}, false, fmt.Errorf("parse published_at for %s: %w", assetID, err)
	}
	return e, true, nil
}
