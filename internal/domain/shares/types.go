// Package shares provides the mount descriptor model shared by the table
// store, the live inspector, the planner and the executor.
package shares

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// Kind identifies the share protocol. The value doubles as the fstab
// filesystem type.
type Kind string

const (
	// KindCIFS is a Windows/Samba share mounted through mount.cifs.
	KindCIFS Kind = "cifs"
	// KindSSH is a remote directory mounted through sshfs.
	KindSSH Kind = "fuse.sshfs"
	// KindUnknown marks live mounts whose filesystem type is not managed here.
	KindUnknown Kind = ""
)

// ParseKind converts a share type as written by operators into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cifs", "smb", "smb3", "windows":
		return KindCIFS, nil
	case "ssh", "sshfs", "fuse.sshfs", "linux":
		return KindSSH, nil
	default:
		return KindUnknown, fmt.Errorf("unsupported share type %q", s)
	}
}

// KindFromFSType maps a filesystem type from fstab or /proc/mounts.
func KindFromFSType(fstype string) Kind {
	switch fstype {
	case "cifs", "smb3":
		return KindCIFS
	case "fuse.sshfs":
		return KindSSH
	default:
		return KindUnknown
	}
}

// String returns a short human label for the kind.
func (k Kind) String() string {
	switch k {
	case KindCIFS:
		return "cifs"
	case KindSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

// Descriptor is the identity and configuration of one share.
type Descriptor struct {
	Kind       Kind     `json:"kind" yaml:"kind"`
	Remote     string   `json:"remote" yaml:"remote"`
	MountPoint string   `json:"mountPoint" yaml:"mountPoint"`
	Options    []string `json:"options,omitempty" yaml:"options,omitempty"`
	Managed    bool     `json:"managed" yaml:"managed"`
}

// LiveMount is an active mount observed on the host.
type LiveMount struct {
	MountPoint string `json:"mountPoint" yaml:"mountPoint"`
	Remote     string `json:"remote" yaml:"remote"`
	Kind       Kind   `json:"kind" yaml:"kind"`
	FSType     string `json:"fstype" yaml:"fstype"`
	Active     bool   `json:"active" yaml:"active"`
}

// Canonical returns a copy with a cleaned mount point and options
// deduplicated and sorted, which is the form written to the table.
func (d Descriptor) Canonical() Descriptor {
	out := d
	out.MountPoint = CleanPath(d.MountPoint)
	out.Options = CanonicalOptions(d.Options)
	return out
}

// SameTarget reports whether two descriptors would produce the same mount.
// The Managed flag is not part of the comparison.
func (d Descriptor) SameTarget(other Descriptor) bool {
	a, b := d.Canonical(), other.Canonical()
	return a.Kind == b.Kind &&
		a.Remote == b.Remote &&
		a.MountPoint == b.MountPoint &&
		slices.Equal(a.Options, b.Options)
}

// Option returns the value of a key=value option and whether it is present.
func (d Descriptor) Option(key string) (string, bool) {
	for _, opt := range d.Options {
		k, v, _ := strings.Cut(opt, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s -> %s", d.Kind, d.Remote, d.MountPoint)
}

// CanonicalOptions trims, deduplicates and sorts mount options.
func CanonicalOptions(opts []string) []string {
	if len(opts) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(opts))
	out := make([]string, 0, len(opts))
	for _, opt := range opts {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if _, ok := seen[opt]; ok {
			continue
		}
		seen[opt] = struct{}{}
		out = append(out, opt)
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeOptions overlays override on base. Options are keyed by the part
// before '=', so "uid=1000" replaces "uid=1001" while flags such as "ro"
// are simply added.
func MergeOptions(base, override []string) []string {
	out := make([]string, 0, len(base)+len(override))
	index := make(map[string]int, len(base)+len(override))
	for _, opt := range append(slices.Clone(base), override...) {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, _, _ := strings.Cut(opt, "=")
		if i, ok := index[key]; ok {
			out[i] = opt
			continue
		}
		index[key] = len(out)
		out = append(out, opt)
	}
	return out
}

// CleanPath normalises a local path for comparison.
func CleanPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// UnderRoot reports whether p lies strictly below root.
func UnderRoot(root, p string) bool {
	root, p = CleanPath(root), CleanPath(p)
	if root == "" || p == "" || p == root {
		return false
	}
	if root == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, root+"/")
}
