// Package runner abstracts external tool invocation so the colord and
// IccXML collaborators can be substituted with recorded fakes in tests.
package runner

//go:generate mockgen -source=runner.go -destination=mocks/runner_mock.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrToolUnavailable is returned when a required external tool is not
// installed on the system.
var ErrToolUnavailable = errors.New("required external tool not found")

// Runner executes an external tool and returns its combined output.
// Implementations must honor context cancellation and deadlines.
type Runner interface {
	// Run executes name with args and returns stdout. A non-zero exit
	// status is an error carrying the tool's stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath reports whether the tool is installed, wrapping
	// ErrToolUnavailable when it is not.
	LookPath(name string) error
}

// Exec is the production Runner backed by os/exec.
type Exec struct{}

// Verify Exec implements Runner.
var _ Runner = (*Exec)(nil)

// Run executes the tool under the given context.
func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// LookPath checks tool availability via the system PATH.
func (Exec) LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", ErrToolUnavailable, name)
	}
	return nil
}
