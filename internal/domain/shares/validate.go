package shares

import (
	"fmt"
	"path"
	"strings"
)

// Validate checks a desired descriptor against the shares root.
func Validate(d Descriptor, root string) error {
	if d.Kind != KindCIFS && d.Kind != KindSSH {
		return &ConfigError{Field: "mount_type", Reason: fmt.Sprintf("unsupported kind %q for %s", d.Kind, d.MountPoint)}
	}
	if strings.TrimSpace(d.Remote) == "" {
		return &ConfigError{Field: "actual_path", Reason: fmt.Sprintf("remote is required for %s", d.MountPoint)}
	}
	if d.MountPoint == "" {
		return &ConfigError{Field: "mount_path", Reason: fmt.Sprintf("mount point is required for %s", d.Remote)}
	}
	if !path.IsAbs(d.MountPoint) {
		return &ConfigError{Field: "mount_path", Reason: fmt.Sprintf("%s is not an absolute path", d.MountPoint)}
	}
	if !UnderRoot(root, d.MountPoint) {
		return &ConfigError{Field: "mount_path", Reason: fmt.Sprintf("%s is outside the shares root %s", d.MountPoint, root)}
	}
	if strings.ContainsAny(d.Remote, "\n\r") || strings.ContainsAny(d.MountPoint, "\n\r") {
		return &ConfigError{Field: "mount_path", Reason: fmt.Sprintf("line breaks are not allowed in %s", d.MountPoint)}
	}
	for _, opt := range d.Options {
		if strings.ContainsAny(opt, ", \t\n") {
			return &ConfigError{Field: "options", Reason: fmt.Sprintf("option %q for %s contains a separator", opt, d.MountPoint)}
		}
	}
	return nil
}

// ValidateSet validates every descriptor and rejects duplicate mount
// points. It runs before any planning so a bad desired file never leads
// to a mutation.
func ValidateSet(desired []Descriptor, root string) error {
	seen := make(map[string]int, len(desired))
	for i, d := range desired {
		if err := Validate(d, root); err != nil {
			return err
		}
		mp := CleanPath(d.MountPoint)
		if first, ok := seen[mp]; ok {
			return &DuplicateMountPointError{MountPoint: mp, First: first, Second: i}
		}
		seen[mp] = i
	}
	return nil
}
