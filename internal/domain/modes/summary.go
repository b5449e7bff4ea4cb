package modes

import (
	"time"

	"github.com/edumarques81/sharesync/internal/domain/reconcile"
	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/mounter"
)

// Mode selects what a pass does.
type Mode string

const (
	ModeApply      Mode = "apply"
	ModeDryRun     Mode = "dry-run"
	ModeUnmountAll Mode = "unmount-all"
	ModeCleanup    Mode = "cleanup"
)

// Action is the kind of work done for one share.
type Action string

const (
	ActionAdd     Action = "add"
	ActionRemove  Action = "remove"
	ActionRemount Action = "remount"
	ActionOrphan  Action = "unmount-orphan"
)

// Status is the outcome of one action.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusBlocked marks an add whose replaced entry could not be removed.
	StatusBlocked Status = "blocked"
	StatusSkipped Status = "skipped"
	// StatusPlanned is used by dry runs.
	StatusPlanned Status = "planned"
)

// Exit codes returned by the CLI.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitFatal  = 2
)

// ActionResult is the outcome of one action.
type ActionResult struct {
	Action     Action         `json:"action" yaml:"action"`
	MountPoint string         `json:"mountPoint" yaml:"mountPoint"`
	Remote     string         `json:"remote" yaml:"remote"`
	Kind       string         `json:"kind" yaml:"kind"`
	Status     Status         `json:"status" yaml:"status"`
	Reason     string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Report     mounter.Report `json:"report" yaml:"report"`
}

func newResult(action Action, d shares.Descriptor) ActionResult {
	return ActionResult{
		Action:     action,
		MountPoint: d.MountPoint,
		Remote:     d.Remote,
		Kind:       d.Kind.String(),
	}
}

// Summary is the result of one pass.
type Summary struct {
	PassID         string             `json:"passId" yaml:"passId"`
	Mode           Mode               `json:"mode" yaml:"mode"`
	Started        time.Time          `json:"started" yaml:"started"`
	Duration       time.Duration      `json:"duration" yaml:"duration"`
	Actions        []ActionResult     `json:"actions" yaml:"actions"`
	Orphans        []shares.LiveMount `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Duplicates     int                `json:"duplicates" yaml:"duplicates"`
	ManagedEntries int                `json:"managedEntries" yaml:"managedEntries"`
	TableWritten   bool               `json:"tableWritten" yaml:"tableWritten"`
	Error          string             `json:"error,omitempty" yaml:"error,omitempty"`

	// Plan is the plan the pass executed, nil when planning failed.
	Plan *reconcile.Plan `json:"-" yaml:"-"`

	err error
}

// Err returns the fatal error that aborted the pass, if any.
func (s *Summary) Err() error {
	return s.err
}

func (s *Summary) fatal(err error) *Summary {
	s.err = err
	s.Error = err.Error()
	return s
}

// Failed reports whether any action did not succeed.
func (s *Summary) Failed() bool {
	for _, a := range s.Actions {
		if a.Status == StatusFailed || a.Status == StatusBlocked {
			return true
		}
	}
	return false
}

// ExitCode maps the pass outcome to the process exit status.
func (s *Summary) ExitCode() int {
	switch {
	case s.err != nil:
		return ExitFatal
	case s.Failed():
		return ExitFailed
	default:
		return ExitOK
	}
}

// Changed reports whether the pass mounted or unmounted anything.
func (s *Summary) Changed() bool {
	for _, a := range s.Actions {
		if a.Status != StatusSucceeded {
			continue
		}
		switch a.Action {
		case ActionAdd, ActionRemount:
			if !a.Report.Adopted {
				return true
			}
		case ActionRemove, ActionOrphan:
			if !a.Report.NoOp {
				return true
			}
		}
	}
	return false
}

// Count returns how many actions ended with status.
func (s *Summary) Count(status Status) int {
	n := 0
	for _, a := range s.Actions {
		if a.Status == status {
			n++
		}
	}
	return n
}
