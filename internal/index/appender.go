// Package index appends entries to the registry's cumulative JSON index
// documents without parsing the content already written.
//
// A document is a single JSON object. After every completed append the file
// ends in the object's closing brace; a file holding only "{" is an
// initialized, empty document. Appending replaces the closing brace with an
// optional comma, the new `"key":value` pair and a new closing brace.
//
// Keys are not checked for uniqueness and values are not validated. Callers
// own both guarantees; Check reports documents where they were broken.
package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode"
)

var (
	// ErrInvalidKey is returned for an empty key or one that would need
	// escaping inside a JSON string.
	ErrInvalidKey = errors.New("invalid index key")
	// ErrEmptyValue is returned when the value is empty after trimming.
	ErrEmptyValue = errors.New("empty index value")
	// ErrCorruptDocument is returned when the document does not end in a
	// brace. The document is left untouched.
	ErrCorruptDocument = errors.New("corrupt index document")
)

// Strategy selects how the new document bytes reach disk.
type Strategy string

const (
	// Atomic copies the document up to its closing brace into a temp file,
	// appends the entry and renames the result over the original. An
	// interrupted append leaves the previous document untouched.
	Atomic Strategy = "atomic"
	// InPlace overwrites the closing brace in the existing file. Only the
	// new entry is written, but an interrupted append leaves a truncated
	// document behind.
	InPlace Strategy = "in-place"
)

const lockRetryDelay = 50 * time.Millisecond

// Appender adds entries to index documents.
type Appender struct {
	Strategy Strategy
	// NoLock disables the advisory lock file.
	NoLock bool
	// LockDir holds the lock files as .<document>.lock. Empty means
	// <document>.lock next to the document.
	LockDir string
	Logger *slog.Logger
}

// NewAppender returns an appender using strategy, defaulting to Atomic.
func NewAppender(strategy Strategy, logger *slog.Logger) *Appender {
	if strategy == "" {
		strategy = Atomic
	}
	return &Appender{Strategy: strategy, Logger: logger}
}

// Append adds `"key":value` to the JSON object stored at path, creating the
// document when it does not exist.
func Append(ctx context.Context, path, key string, value []byte) error {
	return NewAppender(Atomic, nil).Append(ctx, path, key, value)
}

// Append adds `"key":value` to the JSON object stored at path.
func (a *Appender) Append(ctx context.Context, path, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return fmt.Errorf("%w for key %q", ErrEmptyValue, key)
	}

	if !a.NoLock {
		unlock, err := lockDocument(ctx, lockPath(a.LockDir, path))
		if err != nil {
			return err
		}
		defer unlock()
	}

	var err error
	switch a.Strategy {
	case InPlace:
		err = appendInPlace(path, key, value)
	case Atomic, "":
		err = appendAtomic(path, key, value)
	default:
		return fmt.Errorf("unknown append strategy %q", a.Strategy)
	}
	if err != nil {
		return fmt.Errorf("append %q to %s: %w", key, path, err)
	}

	if a.Logger != nil {
		a.Logger.Debug("appended index entry", "path", path, "key", key, "bytes", len(value), "strategy", string(a.strategy()))
	}
	return nil
}

func (a *Appender) strategy() Strategy {
	if a.Strategy == "" {
		return Atomic
	}
	return a.Strategy
}

// validateKey rejects keys that would need escaping inside a JSON string.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, r := range key {
		if r == '"' || r == '\\' || unicode.IsControl(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// tail describes where the next entry goes in an existing document.
type tail struct {
	// offset is the position the entry is written at: the closing brace,
	// or just past the opening brace of an unterminated empty object.
	offset int64
	// empty reports that the object has no keys yet.
	empty bool
}

func (t tail) entry(key string, value []byte) []byte {
	buf := make([]byte, 0, len(key)+len(value)+5)
	if !t.empty {
		buf = append(buf, ',')
	}
	buf = append(buf, '"')
	buf = append(buf, key...)
	buf = append(buf, '"', ':')
	buf = append(buf, value...)
	buf = append(buf, '}')
	return buf
}

// fresh is the tail of a document that does not exist yet.
var fresh = tail{offset: 1, empty: true}

// locateTail inspects only the end of the document. The last non-space
// byte must be "}" (closed object) or a lone "{" (initialized object).
func locateTail(r io.ReaderAt, size int64) (tail, error) {
	pos, b, err := lastNonSpace(r, size)
	if err != nil {
		return tail{}, err
	}
	if pos < 0 {
		// Zero length or whitespace only: treat as not yet initialized.
		return tail{offset: -1, empty: true}, nil
	}

	switch b {
	case '}':
		prev, pb, err := lastNonSpace(r, pos)
		if err != nil {
			return tail{}, err
		}
		if prev < 0 {
			return tail{}, fmt.Errorf("%w: unbalanced closing brace", ErrCorruptDocument)
		}
		return tail{offset: pos, empty: pb == '{'}, nil
	case '{':
		prev, _, err := lastNonSpace(r, pos)
		if err != nil {
			return tail{}, err
		}
		if prev >= 0 {
			return tail{}, fmt.Errorf("%w: document ends inside a nested object", ErrCorruptDocument)
		}
		return tail{offset: pos + 1, empty: true}, nil
	default:
		return tail{}, fmt.Errorf("%w: unexpected trailing byte %q", ErrCorruptDocument, b)
	}
}

// lastNonSpace scans backwards from end and returns the position and value
// of the last non-whitespace byte, or -1 when there is none.
func lastNonSpace(r io.ReaderAt, end int64) (int64, byte, error) {
	const chunk = 512
	buf := make([]byte, chunk)
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n := int(end - start)
		if _, err := r.ReadAt(buf[:n], start); err != nil && !errors.Is(err, io.EOF) {
			return -1, 0, fmt.Errorf("read document tail: %w", err)
		}
		for i := n - 1; i >= 0; i-- {
			switch buf[i] {
			case ' ', '\t', '\n', '\r':
				continue
			}
			return start + int64(i), buf[i], nil
		}
		end = start
	}
	return -1, 0, nil
}

func appendInPlace(path, key string, value []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat document: %w", err)
	}

	t, err := locateTail(f, info.Size())
	if err != nil {
		return err
	}
	if t.offset < 0 {
		if _, err := f.WriteAt([]byte{'{'}, 0); err != nil {
			return fmt.Errorf("initialize document: %w", err)
		}
		t = fresh
	}

	entry := t.entry(key, value)
	if _, err := f.WriteAt(entry, t.offset); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := f.Truncate(t.offset + int64(len(entry))); err != nil {
		return fmt.Errorf("truncate document: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync document: %w", err)
	}
	return f.Close()
}

func appendAtomic(path, key string, value []byte) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	t, err := copyHead(tmp, path)
	if err != nil {
		return err
	}
	if _, err := tmp.Write(t.entry(key, value)); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return syncDir(dir)
}

// copyHead writes the existing document up to its insertion point into w,
// or "{" when the document does not exist yet.
func copyHead(w io.Writer, path string) (tail, error) {
	src, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		if _, err := w.Write([]byte{'{'}); err != nil {
			return tail{}, fmt.Errorf("initialize document: %w", err)
		}
		return fresh, nil
	}
	if err != nil {
		return tail{}, fmt.Errorf("open document: %w", err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return tail{}, fmt.Errorf("stat document: %w", err)
	}
	t, err := locateTail(src, info.Size())
	if err != nil {
		return tail{}, err
	}
	if t.offset < 0 {
		if _, err := w.Write([]byte{'{'}); err != nil {
			return tail{}, fmt.Errorf("initialize document: %w", err)
		}
		return fresh, nil
	}
	if _, err := io.Copy(w, io.NewSectionReader(src, 0, t.offset)); err != nil {
		return tail{}, fmt.Errorf("copy document: %w", err)
	}
	return t, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open document dir: %w", err)
	}
	defer func() { _ = d.Close() }()
	// Some filesystems do not support fsync on directories.
	_ = d.Sync()
	return nil
}
