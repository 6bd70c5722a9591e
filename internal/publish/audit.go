package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/assetregistry/publisher/internal/index"
	"github.com/assetregistry/publisher/internal/ledger"
)

// IDLister lists the ids recorded in a ledger.
type IDLister interface {
	IDs(ctx context.Context) ([]string, error)
}

// AuditReport collects every consistency problem found across the two
// index documents and the ledger.
type AuditReport struct {
	Full     *index.Report
	Minimal  *index.Report
	Problems []string
}

func (a *AuditReport) OK() bool { return len(a.Problems) == 0 }

func (a *AuditReport) addf(format string, args ...any) {
	a.Problems = append(a.Problems, fmt.Sprintf(format, args...))
}

// Audit checks that both documents are valid JSON objects without repeated
// keys, that they hold the same keys in the same order, that minimal
// entries are 4-element arrays, and, when l is not nil, that the ledger
// holds exactly the published keys. A missing document counts as empty.
func Audit(ctx context.Context, fullPath, minimalPath string, l IDLister) (*AuditReport, error) {
	audit := &AuditReport{}

	audit.Full = audit.check(fullPath, func(key string, value json.RawMessage) error {
		if len(value) == 0 || value[0] != '{' {
			audit.addf("%s: value of %q is not an object", fullPath, key)
		}
		return nil
	})
	audit.Minimal = audit.check(minimalPath, func(key string, value json.RawMessage) error {
		var fields []json.RawMessage
		if err := json.Unmarshal(value, &fields); err != nil || len(fields) != 4 {
			audit.addf("%s: value of %q is not a 4-element array", minimalPath, key)
		}
		return nil
	})

	if audit.Full != nil && audit.Minimal != nil {
		compareKeys(audit, audit.Full, audit.Minimal)
	}

	if l != nil && audit.Full != nil {
		ids, err := l.IDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger ids: %w", err)
		}
		compareLedger(audit, audit.Full, ids)
	}
	return audit, nil
}

func (a *AuditReport) check(path string, fn index.EntryFunc) *index.Report {
	report, err := index.Check(path, fn)
	if errors.Is(err, fs.ErrNotExist) {
		return &index.Report{Path: path}
	}
	if err != nil {
		a.addf("%v", err)
		return nil
	}
	for _, key := range report.Duplicates {
		a.addf("%s: duplicate key %q", path, key)
	}
	return report
}

func compareKeys(a *AuditReport, full, minimal *index.Report) {
	if full.Count() != minimal.Count() {
		a.addf("full index has %d entries, minimal index has %d", full.Count(), minimal.Count())
	}
	n := min(full.Count(), minimal.Count())
	for i := 0; i < n; i++ {
		if full.Keys[i] != minimal.Keys[i] {
			a.addf("entry %d differs: full %q, minimal %q", i, full.Keys[i], minimal.Keys[i])
			return
		}
	}
}

func compareLedger(a *AuditReport, full *index.Report, ids []string) {
	recorded := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		recorded[id] = struct{}{}
	}
	indexed := make(map[string]struct{}, len(full.Keys))
	for _, key := range full.Keys {
		indexed[key] = struct{}{}
		if _, ok := recorded[key]; !ok {
			a.addf("%q is indexed but missing from the ledger", key)
			recorded[key] = struct{}{}
		}
	}
	for _, id := range ids {
		if _, ok := indexed[id]; !ok {
			a.addf("%q is in the ledger but not indexed", id)
		}
	}
}

// Backfill records every key of the full index that the ledger lacks. It
// returns the number of ids added.
func Backfill(ctx context.Context, l *ledger.Ledger, registryDir string, full *index.Report) (int, error) {
	added := 0
	for _, key := range full.Keys {
		seen, err := l.Contains(ctx, key)
		if err != nil {
			return added, err
		}
		if seen {
			continue
		}
		path, err := DescriptorPath(registryDir, key)
		if err != nil {
			path = ""
		}
		if err := l.Record(ctx, ledger.Entry{AssetID: key, DescriptorPath: path}); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
