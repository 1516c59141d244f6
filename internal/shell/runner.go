// Package shell runs child processes on behalf of the probes.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/core"
)

const (
	maxStderrInError = 2048
	// waitDelay bounds how long a cancelled child may keep its output pipes open.
	waitDelay = time.Second
)

// ErrEmptyCommand is returned when a command has no path.
var ErrEmptyCommand = errors.New("command path cannot be empty")

// ExecRunner implements core.CommandRunner with os/exec.
type ExecRunner struct {
	timeout time.Duration
	log     *logger.Logger
}

// NewExecRunner creates a runner. A zero timeout waits for the child indefinitely.
func NewExecRunner(timeout time.Duration, log *logger.Logger) *ExecRunner {
	return &ExecRunner{
		timeout: timeout,
		log:     log,
	}
}

// Run executes cmd and returns its stdout. Stderr is folded into the error.
func (r *ExecRunner) Run(ctx context.Context, cmd core.Command) ([]byte, error) {
	if cmd.Path == "" {
		return nil, ErrEmptyCommand
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// #nosec G204 -- binaries and arguments come from operator configuration
	execCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	execCmd.Env = cmd.Env
	execCmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer

	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	if r.log != nil {
		r.log.Info("Running %s %s", cmd.Path, strings.Join(cmd.Args, " "))
	}

	err := execCmd.Run()
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("%s execution failed: %w - stderr: %s",
			cmd.Path, err, truncate(strings.TrimSpace(stderr.String())))
	}

	return stdout.Bytes(), nil
}

func truncate(s string) string {
	if len(s) <= maxStderrInError {
		return s
	}

	return s[len(s)-maxStderrInError:]
}
