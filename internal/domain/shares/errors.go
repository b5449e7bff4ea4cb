package shares

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig is matched by every configuration error, including duplicate
// mount points. Configuration errors abort a pass before any mutation.
var ErrConfig = errors.New("configuration error")

// ConfigError describes a malformed descriptor or setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// DuplicateMountPointError is raised when two desired shares target the
// same local path.
type DuplicateMountPointError struct {
	MountPoint string
	First      int
	Second     int
}

func (e *DuplicateMountPointError) Error() string {
	return fmt.Sprintf("config: mount point %s declared twice (entries %d and %d)", e.MountPoint, e.First, e.Second)
}

func (e *DuplicateMountPointError) Is(target error) bool { return target == ErrConfig }

// TableReadError means the mount table exists but could not be read.
type TableReadError struct {
	Path string
	Err  error
}

func (e *TableReadError) Error() string {
	return fmt.Sprintf("read mount table %s: %v", e.Path, e.Err)
}

func (e *TableReadError) Unwrap() error { return e.Err }

// TableWriteError means the new mount table could not be persisted. The
// previous file is left untouched.
type TableWriteError struct {
	Path string
	Err  error
}

func (e *TableWriteError) Error() string {
	return fmt.Sprintf("write mount table %s: %v", e.Path, e.Err)
}

func (e *TableWriteError) Unwrap() error { return e.Err }

// MountFailure records a share that could not be mounted.
type MountFailure struct {
	MountPoint string
	Reason     string
	Err        error
}

func (e *MountFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mount %s: %s: %v", e.MountPoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("mount %s: %s", e.MountPoint, e.Reason)
}

func (e *MountFailure) Unwrap() error { return e.Err }

// UnmountFailure records a share that could not be unmounted.
type UnmountFailure struct {
	MountPoint string
	Reason     string
	Err        error
}

func (e *UnmountFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unmount %s: %s: %v", e.MountPoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("unmount %s: %s", e.MountPoint, e.Reason)
}

func (e *UnmountFailure) Unwrap() error { return e.Err }

// TimeoutError is an OS-level call that exceeded its bound. It is always
// wrapped in a MountFailure or UnmountFailure.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// IsFatal reports whether err must abort the pass, as opposed to a
// per-share failure that is collected and reported.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		readErr  *TableReadError
		writeErr *TableWriteError
	)
	return errors.Is(err, ErrConfig) || errors.As(err, &readErr) || errors.As(err, &writeErr)
}
