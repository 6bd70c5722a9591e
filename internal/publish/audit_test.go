package publish

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/assetregistry/publisher/internal/ledger"
)

type staticIDs []string

func (s staticIDs) IDs(ctx context.Context) ([]string, error) { return s, nil }

func writeIndexes(t *testing.T, full, minimal string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	fullPath := filepath.Join(dir, "index.json")
	minimalPath := filepath.Join(dir, "index.minimal.json")
	if full != "" {
		writeFile(t, fullPath, full)
	}
	if minimal != "" {
		writeFile(t, minimalPath, minimal)
	}
	return fullPath, minimalPath
}

func hasProblem(a *AuditReport, substr string) bool {
	for _, p := range a.Problems {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

func TestAuditConsistentRegistry(t *testing.T) {
	fullPath, minimalPath := writeIndexes(t,
		`{"btc":`+btcDescriptor+`,"eth":`+ethDescriptor+`}`,
		`{"btc":["x","BTC","Bitcoin",8],"eth":[null,"ETH","Ether",18]}`,
	)
	audit, err := Audit(context.Background(), fullPath, minimalPath, staticIDs{"btc", "eth"})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !audit.OK() {
		t.Fatalf("unexpected problems: %v", audit.Problems)
	}
	if audit.Full.Unique() != 2 || audit.Minimal.Unique() != 2 {
		t.Fatalf("unexpected counts: %d %d", audit.Full.Unique(), audit.Minimal.Unique())
	}
}

func TestAuditEmptyRegistry(t *testing.T) {
	fullPath, minimalPath := writeIndexes(t, "", "")
	audit, err := Audit(context.Background(), fullPath, minimalPath, staticIDs{})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !audit.OK() {
		t.Fatalf("unexpected problems: %v", audit.Problems)
	}
}

func TestAuditReportsProblems(t *testing.T) {
	tests := []struct {
		name    string
		full    string
		minimal string
		ledger  staticIDs
		want    string
	}{
		{
			name:    "duplicate key",
			full:    `{"btc":{},"btc":{}}`,
			minimal: `{"btc":[1,2,3,4],"btc":[1,2,3,4]}`,
			ledger:  staticIDs{"btc"},
			want:    `duplicate key "btc"`,
		},
		{
			name:    "truncated document",
			full:    `{"btc":{}`,
			minimal: `{"btc":[1,2,3,4]}`,
			want:    "index.json",
		},
		{
			name:    "short projection",
			full:    `{"btc":{}}`,
			minimal: `{"btc":["x"]}`,
			want:    "not a 4-element array",
		},
		{
			name:    "non-object descriptor",
			full:    `{"btc":[]}`,
			minimal: `{"btc":[1,2,3,4]}`,
			want:    "is not an object",
		},
		{
			name:    "count mismatch",
			full:    `{"btc":{},"eth":{}}`,
			minimal: `{"btc":[1,2,3,4]}`,
			want:    "full index has 2 entries, minimal index has 1",
		},
		{
			name:    "order mismatch",
			full:    `{"btc":{},"eth":{}}`,
			minimal: `{"eth":[1,2,3,4],"btc":[1,2,3,4]}`,
			want:    "entry 0 differs",
		},
		{
			name:    "missing from ledger",
			full:    `{"btc":{}}`,
			minimal: `{"btc":[1,2,3,4]}`,
			ledger:  staticIDs{},
			want:    `"btc" is indexed but missing from the ledger`,
		},
		{
			name:    "missing from index",
			full:    `{"btc":{}}`,
			minimal: `{"btc":[1,2,3,4]}`,
			ledger:  staticIDs{"btc", "eth"},
			want:    `"eth" is in the ledger but not indexed`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fullPath, minimalPath := writeIndexes(t, tc.full, tc.minimal)
			var l IDLister
			if tc.ledger != nil {
				l = tc.ledger
			}
			audit, err := Audit(context.Background(), fullPath, minimalPath, l)
			if err != nil {
				t.Fatalf("Audit: %v", err)
			}
			if audit.OK() {
				t.Fatal("expected problems")
			}
			if !hasProblem(audit, tc.want) {
				t.Fatalf("missing problem %q in %v", tc.want, audit.Problems)
			}
		})
	}
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	registry := t.TempDir()
	fullPath, minimalPath := writeIndexes(t,
		`{"btc":{},"eth":{},"x":{}}`,
		`{"btc":[1,2,3,4],"eth":[1,2,3,4],"x":[1,2,3,4]}`,
	)

	l, err := ledger.Open(filepath.Join(registry, ".ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()
	if err := l.Record(ctx, ledger.Entry{AssetID: "btc", DescriptorPath: "bt/btc.json"}); err != nil {
		t.Fatal(err)
	}

	audit, err := Audit(ctx, fullPath, minimalPath, l)
	if err != nil {
		t.Fatal(err)
	}
	if audit.OK() {
		t.Fatal("expected ledger problems before backfill")
	}

	added, err := Backfill(ctx, l, registry, audit.Full)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	entry, found, err := l.Get(ctx, "eth")
	if err != nil || !found {
		t.Fatalf("Get eth = %v, %v", found, err)
	}
	if entry.DescriptorPath != filepath.Join(registry, "et", "eth.json") {
		t.Fatalf("descriptor path = %s", entry.DescriptorPath)
	}

	audit, err = Audit(ctx, fullPath, minimalPath, l)
	if err != nil {
		t.Fatal(err)
	}
	if !audit.OK() {
		t.Fatalf("problems after backfill: %v", audit.Problems)
	}
}
