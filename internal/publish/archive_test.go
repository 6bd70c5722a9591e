package publish

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireTarXZ(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"tar", "xz"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func TestTarArchiver_RebuildArchive(t *testing.T) {
	requireTarXZ(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bt", "btc.json"), btcDescriptor)
	writeFile(t, filepath.Join(root, "et", "eth.json"), ethDescriptor)
	// Not matched by ??/*.json.
	writeFile(t, filepath.Join(root, "www", "index.json"), `{}`)
	writeFile(t, filepath.Join(root, "bt", "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "abc", "deep.json"), `{}`)

	dest := filepath.Join(root, "www", "index.tar.xz")
	a := NewTarArchiver("")
	if err := a.RebuildArchive(context.Background(), root, "??/*.json", dest); err != nil {
		t.Fatalf("RebuildArchive: %v", err)
	}

	out, err := command{Name: "tar", Args: []string{"-tJf", dest}}.run(context.Background())
	if err != nil {
		t.Fatalf("list archive: %v", err)
	}
	members := strings.Fields(out)
	if len(members) != 2 || members[0] != "bt/btc.json" || members[1] != "et/eth.json" {
		t.Fatalf("archive members = %v", members)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp archive left behind")
	}
}

func TestTarArchiver_FailureKeepsPreviousArchive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bt", "btc.json"), btcDescriptor)
	dest := filepath.Join(root, "www", "index.tar.xz")
	writeFile(t, dest, "previous")

	a := NewTarArchiver("false")
	err := a.RebuildArchive(context.Background(), root, "??/*.json", dest)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "previous" {
		t.Fatalf("archive replaced after failure: %q", got)
	}
}
