package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// command describes one external tool invocation.
type command struct {
	Dir   string
	Env   []string
	Stdin io.Reader
	Name  string
	Args  []string
}

// run executes c and returns its combined output. Failures are *ToolError.
func (c command) run(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), &ToolError{Tool: c.Name, Args: c.Args, Output: out.String(), Err: err}
	}
	return out.String(), nil
}

// exitCode returns the exit status carried by err, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
