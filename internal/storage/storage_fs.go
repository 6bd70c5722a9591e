package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStorage writes into the public directory tree served to clients.
// Destination paths are slash separated and relative to Root.
type FSStorage struct {
	Root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{Root: root}
}

// Path returns the filesystem path of destPath.
func (s *FSStorage) Path(destPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(destPath))
}

// LinkDescriptor publishes <assetID>.json as a symlink to the canonical
// location of descriptorPath and returns that location.
func (s *FSStorage) LinkDescriptor(ctx context.Context, assetID string, descriptorPath string) (string, error) {
	target, err := Canonical(descriptorPath)
	if err != nil {
		return "", err
	}
	if err := s.WriteSymlink(ctx, assetID+".json", target); err != nil {
		return "", err
	}
	return target, nil
}

// Canonical returns the absolute path of path with symlinks resolved.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return resolved, nil
}

func (s *FSStorage) WriteSymlink(ctx context.Context, destPath string, target string) error {
	return s.writeSymlink(destPath, target)
}

// WriteFile replaces destPath with content.
func (s *FSStorage) WriteFile(ctx context.Context, destPath string, content []byte) error {
	return s.writeFileAbsolute(s.Path(destPath), content)
}

func (s *FSStorage) writeFileAbsolute(fullPath string, content []byte) error {
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close file: %w", err)
	}
	// Rename replaces a symlink at fullPath instead of following it.
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *FSStorage) writeSymlink(destPath string, target string) error {
	fullPath := s.Path(destPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmpPath := fullPath + ".tmp-link"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale temp link: %w", err)
	}
	if err := os.Symlink(target, tmpPath); err != nil {
		return fmt.Errorf("symlink: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace link: %w", err)
	}
	return nil
}
