// Package projection derives the minimal index entry of an asset
// descriptor: a positional array of the fields wallets need to display an
// asset without fetching the full descriptor.
package projection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// ErrInvalidDescriptor is returned for a descriptor that is not a
// well-formed JSON object.
var ErrInvalidDescriptor = errors.New("invalid asset descriptor")

// Fields lists the projected key paths in output order.
var Fields = [][]string{
	{"entity", "domain"},
	{"ticker"},
	{"name"},
	{"precision"},
}

var null = []byte("null")

// Project renders `[entity.domain, ticker, name, precision]` from a
// descriptor. Absent fields become null. Present values are copied as they
// appear in the descriptor, so numbers and string escapes are unchanged.
func Project(descriptor []byte) ([]byte, error) {
	if err := ValidateDescriptor(descriptor); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, path := range Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := field(descriptor, path)
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// ValidateDescriptor checks that descriptor is well-formed JSON whose root
// is an object.
func ValidateDescriptor(descriptor []byte) error {
	trimmed := bytes.TrimSpace(descriptor)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w: malformed JSON", ErrInvalidDescriptor)
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("%w: root is not an object", ErrInvalidDescriptor)
	}
	return nil
}

// field walks path through nested objects. When a key repeats, its last
// occurrence wins, as with encoding/json. A missing key or a non-object
// step yields null.
func field(descriptor []byte, path []string) ([]byte, error) {
	data, typ := descriptor, jsonparser.Object
	for _, key := range path {
		if typ != jsonparser.Object {
			return null, nil
		}
		var found bool
		err := jsonparser.ObjectEach(data, func(k, v []byte, vt jsonparser.ValueType, _ int) error {
			if string(k) == key {
				data, typ, found = v, vt, true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: read %v: %v", ErrInvalidDescriptor, path, err)
		}
		if !found {
			return null, nil
		}
	}

	if typ == jsonparser.String {
		// ObjectEach strips the quotes but leaves escapes intact.
		quoted := make([]byte, 0, len(data)+2)
		quoted = append(quoted, '"')
		quoted = append(quoted, data...)
		return append(quoted, '"'), nil
	}
	return data, nil
}
