package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. A failed command yields an *ExternalProcessError
// carrying its captured output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		procErr := &ExternalProcessError{
			Command:  name,
			Args:     args,
			ExitCode: -1,
			Output:   strings.TrimSpace(stderr.String() + stdout.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			procErr.ExitCode = exitErr.ExitCode()
		}
		return nil, procErr
	}
	return stdout.Bytes(), nil
}

// ExternalProcessError is a non-zero exit (or failure to start) of an
// external tool.
type ExternalProcessError struct {
	Command  string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

// Error implements the error interface
func (e *ExternalProcessError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// CheckBinary checks if a binary exists in the system PATH.
func CheckBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return nil
}

// CheckDependencies checks every named binary and reports all that are
// missing.
func CheckDependencies(names ...string) error {
	var errs []error
	for _, name := range names {
		if err := CheckBinary(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
