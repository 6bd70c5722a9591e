package publish

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAssetID = errors.New("invalid asset id")

// ToolError wraps a failed external command together with its output so
// callers can report what the tool printed.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Result describes what a publish did.
type Result struct {
	AssetID   string
	Target    string // canonical descriptor path the public link points to
	Committed bool   // a provenance commit was created
	Minimal   []byte // rendered minimal projection
}
