// Package fstab reads and atomically rewrites the persistent mount table,
// keeping every line it does not own byte for byte.
package fstab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// Marker is the mount option that tags a line as owned by sharesync.
// mount(8) and the cifs/sshfs helpers ignore x-* options.
const Marker = "x-sharesync.managed"

// Entry is one line of the table. Share is nil for unmanaged lines, which
// are reproduced from Raw exactly as read.
type Entry struct {
	Line  int
	Raw   string
	Share *shares.Descriptor
}

// Managed reports whether the entry is owned by sharesync.
func (e Entry) Managed() bool {
	return e.Share != nil
}

// MountPoint returns the mount point field of any table line, or "" for
// comments, blank lines and lines with fewer than two fields.
func (e Entry) MountPoint() string {
	if e.Share != nil {
		return e.Share.MountPoint
	}
	trimmed := strings.TrimSpace(e.Raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return ""
	}
	return shares.CleanPath(Unescape(fields[1]))
}

// UnmanagedEntry wraps a foreign line.
func UnmanagedEntry(raw string) Entry {
	return Entry{Raw: raw}
}

// ManagedEntry wraps a descriptor in its canonical form.
func ManagedEntry(d shares.Descriptor) Entry {
	c := d.Canonical()
	c.Managed = true
	return Entry{Share: &c}
}

// FormatLine renders a descriptor as a canonical fstab line. Options are
// sorted with the marker last and dump/pass are always zero.
func FormatLine(d shares.Descriptor) string {
	c := d.Canonical()
	opts := make([]string, 0, len(c.Options)+1)
	for _, o := range c.Options {
		if o == Marker {
			continue
		}
		opts = append(opts, escape(o))
	}
	opts = append(opts, Marker)

	return fmt.Sprintf("%s\t%s\t%s\t%s\t0\t0",
		escape(c.Remote),
		escape(c.MountPoint),
		string(c.Kind),
		strings.Join(opts, ","),
	)
}

// parseManaged returns the descriptor for a marked line. ok is false when
// the line is not marked; err is set when it is marked but unusable.
func parseManaged(line string) (d shares.Descriptor, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return d, false, nil
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 4 {
		return d, false, nil
	}

	rawOpts := strings.Split(fields[3], ",")
	marked := false
	opts := make([]string, 0, len(rawOpts))
	for _, o := range rawOpts {
		if o == Marker {
			marked = true
			continue
		}
		opts = append(opts, Unescape(o))
	}
	if !marked {
		return d, false, nil
	}

	kind := shares.KindFromFSType(fields[2])
	if kind == shares.KindUnknown {
		return d, true, fmt.Errorf("unsupported filesystem type %q", fields[2])
	}

	d = shares.Descriptor{
		Kind:       kind,
		Remote:     Unescape(fields[0]),
		MountPoint: shares.CleanPath(Unescape(fields[1])),
		Options:    shares.CanonicalOptions(opts),
		Managed:    true,
	}
	return d, true, nil
}

// escape applies the octal escapes understood by getmntent(3).
func escape(s string) string {
	if !strings.ContainsAny(s, " \t\n\\") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\\':
			fmt.Fprintf(&b, "\\%03o", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape reverses escape for any three-digit octal sequence.
func Unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
