package mounter

import (
	"fmt"
	"strings"

	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// Backend knows how to validate and mount one kind of share.
type Backend interface {
	// Kind returns the share kind handled by the backend.
	Kind() shares.Kind

	// Validate checks kind-specific descriptor rules.
	Validate(d shares.Descriptor) error

	// MountArgs returns the arguments passed to mount(8).
	MountArgs(d shares.Descriptor) []string
}

// CIFSBackend mounts Windows/Samba shares through mount.cifs.
type CIFSBackend struct{}

func (CIFSBackend) Kind() shares.Kind { return shares.KindCIFS }

func (CIFSBackend) Validate(d shares.Descriptor) error {
	// //host/share, where share may contain subdirectories.
	rest, ok := strings.CutPrefix(d.Remote, "//")
	if !ok {
		return fmt.Errorf("cifs remote %q must look like //host/share", d.Remote)
	}
	host, share, _ := strings.Cut(rest, "/")
	if host == "" || share == "" {
		return fmt.Errorf("cifs remote %q must look like //host/share", d.Remote)
	}
	return rejectPassword(d)
}

func (CIFSBackend) MountArgs(d shares.Descriptor) []string {
	return buildArgs("cifs", d)
}

// SSHBackend mounts remote directories through sshfs.
type SSHBackend struct{}

func (SSHBackend) Kind() shares.Kind { return shares.KindSSH }

func (SSHBackend) Validate(d shares.Descriptor) error {
	host, dir, ok := strings.Cut(d.Remote, ":")
	if !ok || host == "" || strings.HasSuffix(host, "@") {
		return fmt.Errorf("ssh remote %q must look like [user@]host:/path", d.Remote)
	}
	if dir == "" {
		return fmt.Errorf("ssh remote %q has no path", d.Remote)
	}
	return rejectPassword(d)
}

func (SSHBackend) MountArgs(d shares.Descriptor) []string {
	return buildArgs("fuse.sshfs", d)
}

// DefaultBackends returns the backends for every supported kind.
func DefaultBackends() []Backend {
	return []Backend{CIFSBackend{}, SSHBackend{}}
}

func rejectPassword(d shares.Descriptor) error {
	if _, ok := d.Option("password"); ok {
		return fmt.Errorf("inline password for %s, use a credentials file", d.MountPoint)
	}
	return nil
}

func buildArgs(fstype string, d shares.Descriptor) []string {
	args := []string{"-t", fstype}
	if opts := commandOptions(d.Options); len(opts) > 0 {
		args = append(args, "-o", strings.Join(opts, ","))
	}
	return append(args, d.Remote, d.MountPoint)
}

// commandOptions drops options that only mean something to fstab
// consumers such as systemd or mount -a.
func commandOptions(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		switch {
		case o == "auto", o == "noauto", o == "nofail", o == "_netdev":
		case strings.HasPrefix(o, "x-"), strings.HasPrefix(o, "comment="):
		default:
			out = append(out, o)
		}
	}
	return out
}
