package publish

import (
	"fmt"
	"path/filepath"
	"unicode"
)

// PartitionLen is the number of leading asset id characters used to name
// the descriptor's storage subdirectory.
const PartitionLen = 2

// ValidateAssetID checks that id can be used verbatim as a JSON object key
// and as a single path segment.
func ValidateAssetID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAssetID)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidAssetID, id)
	}
	for _, r := range id {
		switch {
		case r == '/', r == '\\', r == '"':
			return fmt.Errorf("%w: %q contains %q", ErrInvalidAssetID, id, r)
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return fmt.Errorf("%w: %q contains a control or invalid character", ErrInvalidAssetID, id)
		}
	}
	return nil
}

// DescriptorPath returns where the registry stores the descriptor of id:
// <root>/<id[:2]>/<id>.json.
func DescriptorPath(root, id string) (string, error) {
	if err := ValidateAssetID(id); err != nil {
		return "", err
	}
	if len(id) < PartitionLen {
		return "", fmt.Errorf("%w: %q is shorter than the %d character partition", ErrInvalidAssetID, id, PartitionLen)
	}
	name := id + ".json"
	return filepath.Join(root, name[:PartitionLen], name), nil
}
