// Package mountertest provides an in-memory host for exercising the
// executor and the mode controller without real mounts.
package mountertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/runner"
)

// Call is one command received by the host.
type Call struct {
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Host fakes mount(8), umount(8) and the kernel mount list. It implements
// both runner.Runner and mountinfo.Source.
type Host struct {
	Root string

	mu     sync.Mutex
	mounts []shares.LiveMount
	calls  []Call

	// MountErrors maps a mount point to the stderr of a failing mount.
	MountErrors map[string]string
	// MountNoEffect lists mount points where mount succeeds but nothing
	// gets mounted.
	MountNoEffect map[string]bool
	// Hang lists mount points whose mount or umount never returns before
	// the deadline.
	Hang map[string]bool
	// Busy maps a mount point to how many umount calls report it busy.
	// A negative count means always busy.
	Busy map[string]int
	// LazyErrors maps a mount point to the stderr of a failing umount -l.
	LazyErrors map[string]string
	// ListError makes every inspection fail.
	ListError error
}

// NewHost creates an empty host for mounts below root.
func NewHost(root string) *Host {
	return &Host{
		Root:          shares.CleanPath(root),
		MountErrors:   make(map[string]string),
		MountNoEffect: make(map[string]bool),
		Hang:          make(map[string]bool),
		Busy:          make(map[string]int),
		LazyErrors:    make(map[string]string),
	}
}

// AddMount registers an active mount, as if mounted before the pass.
func (h *Host) AddMount(remote, mountPoint string, kind shares.Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(remote, shares.CleanPath(mountPoint), string(kind))
}

// Mounts returns a snapshot of every active mount.
func (h *Host) Mounts() []shares.LiveMount {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.mounts)
}

// Calls returns every command received so far.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// CallsTo returns the commands with the given name.
func (h *Host) CallsTo(name string) []Call {
	var out []Call
	for _, c := range h.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Run implements runner.Runner.
func (h *Host) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	h.mu.Lock()
	h.calls = append(h.calls, Call{Name: name, Args: slices.Clone(args)})
	h.mu.Unlock()

	switch name {
	case "mount":
		return h.mount(ctx, args)
	case "umount":
		return h.umount(ctx, args)
	case "mkdir":
		if err := os.MkdirAll(args[len(args)-1], 0o755); err != nil {
			return runner.Result{Stderr: err.Error(), ExitCode: 1}, err
		}
		return runner.Result{}, nil
	case "rmdir":
		if err := os.Remove(args[len(args)-1]); err != nil {
			return runner.Result{Stderr: err.Error(), ExitCode: 1}, err
		}
		return runner.Result{}, nil
	default:
		return runner.Result{ExitCode: 127}, fmt.Errorf("unexpected command %q", name)
	}
}

func (h *Host) mount(ctx context.Context, args []string) (runner.Result, error) {
	var fstype, remote, mp string
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-t":
			i++
			fstype = args[i]
		case "-o":
			i++
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 2 {
		return runner.Result{ExitCode: 1}, fmt.Errorf("bad mount arguments %v", args)
	}
	remote, mp = positional[0], shares.CleanPath(positional[1])

	if h.Hang[mp] {
		return hang(ctx)
	}
	if msg, ok := h.MountErrors[mp]; ok {
		return runner.Result{Stderr: msg + "\n", ExitCode: 32}, fmt.Errorf("mount exited with status 32: %s", msg)
	}
	if h.MountNoEffect[mp] {
		return runner.Result{}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(remote, mp, fstype)
	return runner.Result{}, nil
}

func (h *Host) umount(ctx context.Context, args []string) (runner.Result, error) {
	lazy := len(args) == 2 && args[0] == "-l"
	mp := shares.CleanPath(args[len(args)-1])

	if lazy {
		if msg, ok := h.LazyErrors[mp]; ok {
			return runner.Result{Stderr: msg, ExitCode: 32}, fmt.Errorf("umount exited with status 32: %s", msg)
		}
	} else {
		if h.Hang[mp] {
			return hang(ctx)
		}
		h.mu.Lock()
		busy := h.Busy[mp]
		if busy > 0 {
			h.Busy[mp] = busy - 1
		}
		h.mu.Unlock()
		if busy != 0 {
			msg := "umount: " + mp + ": target is busy."
			return runner.Result{Stderr: msg, ExitCode: 32}, fmt.Errorf("umount exited with status 32: %s", msg)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.mounts) - 1; i >= 0; i-- {
		if h.mounts[i].MountPoint == mp {
			h.mounts = slices.Delete(h.mounts, i, i+1)
			return runner.Result{}, nil
		}
	}
	msg := "umount: " + mp + ": not mounted."
	return runner.Result{Stderr: msg, ExitCode: 32}, fmt.Errorf("umount exited with status 32: %s", msg)
}

// ListActive implements mountinfo.Source.
func (h *Host) ListActive() ([]shares.LiveMount, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ListError != nil {
		return nil, h.ListError
	}
	var out []shares.LiveMount
	for _, m := range h.mounts {
		if shares.UnderRoot(h.Root, m.MountPoint) {
			out = append(out, m)
		}
	}
	return out, nil
}

// IsMounted implements mountinfo.Source.
func (h *Host) IsMounted(path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ListError != nil {
		return false, h.ListError
	}
	path = shares.CleanPath(path)
	for _, m := range h.mounts {
		if m.MountPoint == path {
			return true, nil
		}
	}
	return false, nil
}

func (h *Host) add(remote, mp, fstype string) {
	h.mounts = append(h.mounts, shares.LiveMount{
		MountPoint: mp,
		Remote:     remote,
		Kind:       shares.KindFromFSType(fstype),
		FSType:     fstype,
		Active:     true,
	})
}

func hang(ctx context.Context) (runner.Result, error) {
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return runner.Result{ExitCode: -1}, runner.ErrTimeout
	}
	return runner.Result{ExitCode: -1}, ctx.Err()
}
