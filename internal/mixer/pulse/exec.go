package pulse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes pactl. Tests substitute canned output.
type Runner interface {
	// Output runs pactl with args and returns its stdout.
	Output(ctx context.Context, args ...string) ([]byte, error)
	// Stream starts a long-running pactl command. Closing the returned
	// reader stops the process.
	Stream(ctx context.Context, args ...string) (io.ReadCloser, error)
}

// ExecRunner runs the pactl binary found on PATH.
type ExecRunner struct {
	path string
}

// NewExecRunner returns an error when pactl is not installed.
func NewExecRunner() (*ExecRunner, error) {
	path, err := exec.LookPath("pactl")
	if err != nil {
		return nil, fmt.Errorf("pactl not found: %w", err)
	}
	return &ExecRunner{path: path}, nil
}

func (r *ExecRunner) Output(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, r.path, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("pactl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

func (r *ExecRunner) Stream(ctx context.Context, args ...string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, r.path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start pactl %s: %w", strings.Join(args, " "), err)
	}
	return &stream{ReadCloser: stdout, cancel: cancel, wait: cmd.Wait}, nil
}

type stream struct {
	io.ReadCloser
	cancel context.CancelFunc
	wait   func() error
}

func (s *stream) Close() error {
	s.cancel()
	_ = s.ReadCloser.Close()
	// The process was killed; its exit status carries no information.
	_ = s.wait()
	return nil
}
