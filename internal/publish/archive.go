package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Archiver rebuilds the compressed bundle of every published descriptor.
type Archiver interface {
	RebuildArchive(ctx context.Context, root string, glob string, dest string) error
}

// TarArchiver runs tar with xz compression. The archive is built next to
// dest and renamed over it, so a failed run leaves the previous archive.
type TarArchiver struct {
	Binary string
	Logger *slog.Logger
}

func NewTarArchiver(binary string) *TarArchiver {
	if binary == "" {
		binary = "tar"
	}
	return &TarArchiver{Binary: binary}
}

// RebuildArchive archives every file under root matching glob into dest.
// Member names are relative to root.
func (a *TarArchiver) RebuildArchive(ctx context.Context, root string, glob string, dest string) error {
	matches, err := filepath.Glob(filepath.Join(root, glob))
	if err != nil {
		return fmt.Errorf("glob %s: %w", glob, err)
	}
	members := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(root, m)
		if err != nil {
			return fmt.Errorf("rel path: %w", err)
		}
		members = append(members, filepath.ToSlash(rel))
	}
	sort.Strings(members)

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absDest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := absDest + ".tmp"
	_ = os.Remove(tmp)

	// Names go through stdin so large registries do not hit argv limits.
	list := strings.Join(members, "\n")
	if list != "" {
		list += "\n"
	}
	cmd := command{
		Dir:   root,
		Stdin: strings.NewReader(list),
		Name:  a.Binary,
		Args:  []string{"-cJf", tmp, "--no-recursion", "-T", "-"},
	}
	if _, err := cmd.run(ctx); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("create archive: %w", err)
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if err := os.Rename(tmp, absDest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace archive: %w", err)
	}

	if a.Logger != nil {
		a.Logger.Info("archive rebuilt", "path", dest, "descriptors", len(members), "size", humanize.Bytes(uint64(info.Size())))
	}
	return nil
}
