// Package mounter performs and verifies individual mount and unmount
// operations on the host.
package mounter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/mountinfo"
	"github.com/edumarques81/sharesync/internal/infra/runner"
)

// Options bounds the executor's OS calls.
type Options struct {
	MountTimeout   time.Duration
	UnmountTimeout time.Duration
	// UnmountRetries is how many times a busy unmount is retried before
	// falling back to a lazy unmount.
	UnmountRetries int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns the executor defaults.
func DefaultOptions() Options {
	return Options{
		MountTimeout:   30 * time.Second,
		UnmountTimeout: 15 * time.Second,
		UnmountRetries: 3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Report describes what an operation actually did on the host.
type Report struct {
	// Adopted is set when the share was already mounted as desired.
	Adopted bool `json:"adopted,omitempty" yaml:"adopted,omitempty"`
	// NoOp is set when there was nothing to unmount.
	NoOp       bool `json:"noop,omitempty" yaml:"noop,omitempty"`
	CreatedDir bool `json:"createdDir,omitempty" yaml:"createdDir,omitempty"`
	RemovedDir bool `json:"removedDir,omitempty" yaml:"removedDir,omitempty"`
	// Residue is set when a directory was left behind because it was not empty.
	Residue  bool `json:"residue,omitempty" yaml:"residue,omitempty"`
	Lazy     bool `json:"lazy,omitempty" yaml:"lazy,omitempty"`
	Attempts int  `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// Executor mounts and unmounts single descriptors. It is safe for
// concurrent use on distinct mount points.
type Executor struct {
	run      runner.Runner
	live     mountinfo.Source
	backends map[shares.Kind]Backend
	opts     Options
}

// NewExecutor creates an executor. When no backends are given the CIFS and
// SSH backends are used.
func NewExecutor(r runner.Runner, live mountinfo.Source, opts Options, backends ...Backend) *Executor {
	if len(backends) == 0 {
		backends = DefaultBackends()
	}
	def := DefaultOptions()
	if opts.MountTimeout <= 0 {
		opts.MountTimeout = def.MountTimeout
	}
	if opts.UnmountTimeout <= 0 {
		opts.UnmountTimeout = def.UnmountTimeout
	}
	if opts.UnmountRetries < 0 {
		opts.UnmountRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}

	e := &Executor{
		run:      r,
		live:     live,
		backends: make(map[shares.Kind]Backend, len(backends)),
		opts:     opts,
	}
	for _, b := range backends {
		e.backends[b.Kind()] = b
	}
	return e
}

// Validate runs the backend checks for d without touching the host.
func (e *Executor) Validate(d shares.Descriptor) error {
	b, ok := e.backends[d.Kind]
	if !ok {
		return fmt.Errorf("no backend for kind %q", d.Kind)
	}
	return b.Validate(d)
}

// Mount makes d active. A share already mounted with the same remote is
// adopted without invoking mount(8).
func (e *Executor) Mount(ctx context.Context, d shares.Descriptor) (Report, error) {
	var rep Report
	mp := shares.CleanPath(d.MountPoint)

	b, ok := e.backends[d.Kind]
	if !ok {
		return rep, &shares.MountFailure{MountPoint: mp, Reason: fmt.Sprintf("unsupported kind %q", d.Kind)}
	}
	if err := b.Validate(d); err != nil {
		return rep, &shares.MountFailure{MountPoint: mp, Reason: "invalid descriptor", Err: err}
	}

	current, err := e.lookup(mp)
	if err != nil {
		return rep, &shares.MountFailure{MountPoint: mp, Reason: "inspect live mounts", Err: err}
	}
	if current != nil {
		if sameRemote(d.Kind, current.Remote, d.Remote) {
			log.Info().Str("mountPoint", mp).Str("remote", d.Remote).Msg("Share already mounted, adopting")
			rep.Adopted = true
			return rep, nil
		}
		return rep, &shares.MountFailure{MountPoint: mp, Reason: fmt.Sprintf("path is occupied by %s", current.Remote)}
	}

	created, err := e.ensureDir(ctx, mp)
	if err != nil {
		return rep, &shares.MountFailure{MountPoint: mp, Reason: "create mount point", Err: err}
	}
	rep.CreatedDir = created

	fail := func(f *shares.MountFailure) (Report, error) {
		if created {
			if err := os.Remove(mp); err != nil {
				log.Warn().Err(err).Str("mountPoint", mp).Msg("Failed to remove mount point after failed mount")
			} else {
				rep.CreatedDir = false
			}
		}
		return rep, f
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.MountTimeout)
	res, err := e.run.Run(callCtx, "mount", b.MountArgs(d)...)
	cancel()
	rep.Attempts = 1
	if err != nil {
		if errors.Is(err, runner.ErrTimeout) {
			return fail(&shares.MountFailure{MountPoint: mp, Reason: "mount timed out",
				Err: &shares.TimeoutError{Op: "mount", After: e.opts.MountTimeout}})
		}
		reason := res.Output()
		if reason == "" {
			reason = "mount command failed"
		}
		log.Error().Err(err).Str("remote", d.Remote).Str("mountPoint", mp).Str("output", res.Output()).Msg("Mount failed")
		return fail(&shares.MountFailure{MountPoint: mp, Reason: reason, Err: err})
	}

	mounted, err := e.live.IsMounted(mp)
	if err != nil {
		return fail(&shares.MountFailure{MountPoint: mp, Reason: "verify mount", Err: err})
	}
	if !mounted {
		return fail(&shares.MountFailure{MountPoint: mp, Reason: "not mounted after mount command succeeded"})
	}

	log.Info().Str("kind", d.Kind.String()).Str("remote", d.Remote).Str("mountPoint", mp).Msg("Share mounted")
	return rep, nil
}

// Unmount makes d inactive. Busy or hung unmounts are retried with
// backoff and finally detached lazily. For managed descriptors the mount
// point is removed afterwards when empty.
func (e *Executor) Unmount(ctx context.Context, d shares.Descriptor) (Report, error) {
	var rep Report
	mp := shares.CleanPath(d.MountPoint)

	mounted, err := e.live.IsMounted(mp)
	if err != nil {
		return rep, &shares.UnmountFailure{MountPoint: mp, Reason: "inspect live mounts", Err: err}
	}

	if !mounted {
		rep.NoOp = true
	} else {
		if err := e.unmount(ctx, mp, &rep); err != nil {
			return rep, err
		}
		still, err := e.live.IsMounted(mp)
		if err != nil {
			return rep, &shares.UnmountFailure{MountPoint: mp, Reason: "verify unmount", Err: err}
		}
		if still {
			return rep, &shares.UnmountFailure{MountPoint: mp, Reason: "still mounted after umount succeeded"}
		}
		log.Info().Str("mountPoint", mp).Bool("lazy", rep.Lazy).Int("attempts", rep.Attempts).Msg("Share unmounted")
	}

	if d.Managed {
		removed, residue, err := e.removeDir(ctx, mp)
		if err != nil {
			log.Warn().Err(err).Str("mountPoint", mp).Msg("Failed to remove mount point")
		}
		rep.RemovedDir = removed
		rep.Residue = residue
	}
	return rep, nil
}

func (e *Executor) unmount(ctx context.Context, mp string, rep *Report) error {
	var (
		lastRes runner.Result
		lastErr error
	)

	attempt := func() error {
		rep.Attempts++
		callCtx, cancel := context.WithTimeout(ctx, e.opts.UnmountTimeout)
		defer cancel()
		lastRes, lastErr = e.run.Run(callCtx, "umount", mp)
		if lastErr == nil {
			return nil
		}
		if retryable(lastRes, lastErr) {
			log.Debug().Err(lastErr).Str("mountPoint", mp).Int("attempt", rep.Attempts).Msg("Unmount busy, retrying")
			return lastErr
		}
		return backoff.Permanent(lastErr)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.opts.InitialBackoff
	exp.MaxInterval = e.opts.MaxBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.opts.UnmountRetries)), ctx)

	err := backoff.Retry(attempt, policy)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &shares.UnmountFailure{MountPoint: mp, Reason: "cancelled", Err: ctxErr}
	}
	if !retryable(lastRes, lastErr) {
		reason := lastRes.Output()
		if reason == "" {
			reason = "umount failed"
		}
		log.Error().Err(lastErr).Str("mountPoint", mp).Msg("Unmount failed")
		return &shares.UnmountFailure{MountPoint: mp, Reason: reason, Err: lastErr}
	}

	log.Warn().Str("mountPoint", mp).Int("attempts", rep.Attempts).Msg("Unmount still busy, detaching lazily")
	callCtx, cancel := context.WithTimeout(ctx, e.opts.UnmountTimeout)
	defer cancel()
	rep.Attempts++
	res, err := e.run.Run(callCtx, "umount", "-l", mp)
	if err != nil {
		if errors.Is(err, runner.ErrTimeout) {
			return &shares.UnmountFailure{MountPoint: mp, Reason: "lazy unmount timed out",
				Err: &shares.TimeoutError{Op: "umount -l", After: e.opts.UnmountTimeout}}
		}
		reason := res.Output()
		if reason == "" {
			reason = "lazy unmount failed"
		}
		return &shares.UnmountFailure{MountPoint: mp, Reason: reason, Err: err}
	}
	rep.Lazy = true
	return nil
}

// RemoveMountPoint removes an empty, unmounted directory. A non-empty
// directory is left in place and reported as residue.
func (e *Executor) RemoveMountPoint(ctx context.Context, path string) (Report, error) {
	var rep Report
	path = shares.CleanPath(path)

	mounted, err := e.live.IsMounted(path)
	if err != nil {
		return rep, &shares.UnmountFailure{MountPoint: path, Reason: "inspect live mounts", Err: err}
	}
	if mounted {
		return rep, &shares.UnmountFailure{MountPoint: path, Reason: "refusing to remove an active mount point"}
	}

	removed, residue, err := e.removeDir(ctx, path)
	if err != nil {
		return rep, &shares.UnmountFailure{MountPoint: path, Reason: "remove mount point", Err: err}
	}
	rep.RemovedDir = removed
	rep.Residue = residue
	rep.NoOp = !removed && !residue
	return rep, nil
}

func (e *Executor) lookup(mp string) (*shares.LiveMount, error) {
	active, err := e.live.ListActive()
	if err != nil {
		return nil, err
	}
	for _, m := range active {
		if m.MountPoint == mp {
			return &m, nil
		}
	}
	mounted, err := e.live.IsMounted(mp)
	if err != nil {
		return nil, err
	}
	if mounted {
		return &shares.LiveMount{MountPoint: mp, Remote: "an unknown mount", Active: true}, nil
	}
	return nil, nil
}

// ensureDir creates the mount point, reporting whether it had to. A
// permission error falls back to mkdir through the runner, which may use
// sudo.
func (e *Executor) ensureDir(ctx context.Context, mp string) (bool, error) {
	info, err := os.Stat(mp)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", mp)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(mp, 0o755); err != nil {
		if !errors.Is(err, fs.ErrPermission) {
			return false, err
		}
		callCtx, cancel := context.WithTimeout(ctx, e.opts.MountTimeout)
		defer cancel()
		if res, err := e.run.Run(callCtx, "mkdir", "-p", "-m", "0755", mp); err != nil {
			return false, fmt.Errorf("mkdir %s: %s", mp, res.Output())
		}
	}
	log.Debug().Str("mountPoint", mp).Msg("Mount point created")
	return true, nil
}

// removeDir removes an empty directory and never recurses. It returns
// residue=true when the directory still has content.
func (e *Executor) removeDir(ctx context.Context, dir string) (removed, residue bool, err error) {
	err = os.Remove(dir)
	switch {
	case err == nil:
		log.Debug().Str("dir", dir).Msg("Mount point removed")
		return true, false, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, false, nil
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
		log.Warn().Str("dir", dir).Msg("Mount point is not empty, leaving it in place")
		return false, true, nil
	case errors.Is(err, fs.ErrPermission):
		callCtx, cancel := context.WithTimeout(ctx, e.opts.UnmountTimeout)
		defer cancel()
		if res, rerr := e.run.Run(callCtx, "rmdir", dir); rerr != nil {
			if strings.Contains(strings.ToLower(res.Output()), "not empty") {
				return false, true, nil
			}
			return false, false, fmt.Errorf("rmdir %s: %s", dir, res.Output())
		}
		return true, false, nil
	default:
		return false, false, err
	}
}

func retryable(res runner.Result, err error) bool {
	if errors.Is(err, runner.ErrTimeout) {
		return true
	}
	out := strings.ToLower(res.Output())
	return strings.Contains(out, "busy")
}

func sameRemote(kind shares.Kind, live, desired string) bool {
	live = strings.TrimRight(live, "/")
	desired = strings.TrimRight(desired, "/")
	if kind == shares.KindCIFS {
		return strings.EqualFold(live, desired)
	}
	return live == desired
}
