// Package runner executes the host's mount utilities.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when a command outlives its context deadline.
var ErrTimeout = errors.New("command timed out")

// DefaultWaitDelay bounds how long a killed command may hold its pipes open.
const DefaultWaitDelay = 2 * time.Second

// Result is the captured outcome of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output returns stderr, or stdout when stderr is empty, trimmed.
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner abstracts command execution so the executor can be tested without
// touching the host.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands on the local host, optionally through sudo.
type ExecRunner struct {
	Sudo      bool
	WaitDelay time.Duration
}

// NewExecRunner creates a host runner.
func NewExecRunner(sudo bool) *ExecRunner {
	return &ExecRunner{Sudo: sudo, WaitDelay: DefaultWaitDelay}
}

// Run executes name with args. A non-zero exit is returned as an error with
// the result still populated. Deadline expiry is reported as ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("cmd", name).Strs("args", args).Msg("Running command")

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, ErrTimeout
		}
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%s exited with status %d: %s", name, res.ExitCode, res.Output())
	}

	res.ExitCode = 127
	return res, err
}
