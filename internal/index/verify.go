package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrDuplicateKey = errors.New("duplicate index key")

// Report summarizes a streamed pass over an index document.
type Report struct {
	Path       string
	Keys       []string
	Duplicates []string
}

// Count is the number of entries, duplicates included.
func (r *Report) Count() int { return len(r.Keys) }

// Unique is the number of distinct keys.
func (r *Report) Unique() int { return len(r.Keys) - len(r.Duplicates) }

// Valid reports whether every key appeared exactly once.
func (r *Report) Valid() bool { return len(r.Duplicates) == 0 }

// Err returns ErrDuplicateKey when the document repeats a key.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("%w in %s: %q", ErrDuplicateKey, r.Path, r.Duplicates)
}

// EntryFunc is called for every key/value pair in document order.
type EntryFunc func(key string, value json.RawMessage) error

// Check streams the document at path, returning its keys in document order
// and every key that appears more than once. Syntax errors are returned as
// errors; duplicate keys are reported, not returned.
func Check(path string, fn EntryFunc) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	report, err := Scan(bufio.NewReader(f), fn)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", path, err)
	}
	report.Path = path
	return report, nil
}

// Scan is Check over an arbitrary reader.
func Scan(r io.Reader, fn EntryFunc) (*Report, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening brace: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrCorruptDocument)
	}

	report := &Report{}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string key %v", ErrCorruptDocument, tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("read value for %q: %w", key, err)
		}

		if _, dup := seen[key]; dup {
			report.Duplicates = append(report.Duplicates, key)
		} else {
			seen[key] = struct{}{}
		}
		report.Keys = append(report.Keys, key)

		if fn != nil {
			if err := fn(key, value); err != nil {
				return nil, err
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read closing brace: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrCorruptDocument)
	}
	return report, nil
}
