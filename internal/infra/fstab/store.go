package fstab

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// DefaultPath is the system static mount table.
const DefaultPath = "/etc/fstab"

// Table is an immutable snapshot of the mount table taken at Load time.
type Table struct {
	// Entries holds every line in file order, with earlier duplicates of
	// a managed mount point below the shares root removed.
	Entries []Entry
	// Duplicates holds the managed entries dropped by deduplication.
	Duplicates []Entry
	// Original is the file content as read, used to skip no-op writes.
	Original string
	// Exists is false when the file was absent.
	Exists bool
}

// Managed returns the managed descriptors in table order.
func (t *Table) Managed() []shares.Descriptor {
	out := make([]shares.Descriptor, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Managed() {
			out = append(out, *e.Share)
		}
	}
	return out
}

// Unmanaged returns the foreign lines in table order.
func (t *Table) Unmanaged() []Entry {
	out := make([]Entry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if !e.Managed() {
			out = append(out, e)
		}
	}
	return out
}

// Store owns the on-disk mount table. Managed entries are deduplicated
// only below root.
type Store struct {
	path string
	root string
}

// NewStore creates a store for the table at path.
func NewStore(path, root string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, root: root}
}

// Path returns the table location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and classifies the table. An absent file is an empty table.
func (s *Store) Load() (*Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Table{}, nil
		}
		return nil, &shares.TableReadError{Path: s.path, Err: err}
	}

	t := Parse(string(data), s.root)
	t.Exists = true
	return t, nil
}

// Parse classifies table text line by line and drops all but the last
// managed entry for each mount point below root. Marked lines elsewhere
// are never deduplicated.
func Parse(text, root string) *Table {
	t := &Table{Original: text}
	if text == "" {
		return t
	}

	lines := strings.Split(text, "\n")
	if strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}

	all := make([]Entry, 0, len(lines))
	last := make(map[string]int)
	for i, line := range lines {
		d, marked, err := parseManaged(line)
		switch {
		case err != nil:
			log.Warn().Err(err).Int("line", i+1).Msg("Marked fstab line is not usable, keeping it verbatim")
			all = append(all, Entry{Line: i + 1, Raw: line})
		case marked:
			share := d
			all = append(all, Entry{Line: i + 1, Raw: line, Share: &share})
			if shares.UnderRoot(root, d.MountPoint) {
				last[d.MountPoint] = len(all) - 1
			}
		default:
			all = append(all, Entry{Line: i + 1, Raw: line})
		}
	}

	for i, e := range all {
		if !e.Managed() {
			t.Entries = append(t.Entries, e)
			continue
		}
		if keep, ok := last[e.Share.MountPoint]; ok && keep != i {
			t.Duplicates = append(t.Duplicates, e)
			continue
		}
		t.Entries = append(t.Entries, e)
	}
	return t
}

// Render serialises entries. Unmanaged lines are written as read and
// managed lines in canonical form, so unchanged state renders identically.
func Render(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		if e.Managed() {
			b.WriteString(FormatLine(*e.Share))
		} else {
			b.WriteString(e.Raw)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Save replaces the table atomically: the content goes to a temporary
// file in the same directory which is then renamed over the target.
func (s *Store) Save(text string) error {
	dir := filepath.Dir(s.path)

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".sharesync-*")
	if err != nil {
		return &shares.TableWriteError{Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return &shares.TableWriteError{Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &shares.TableWriteError{Path: s.path, Err: err}
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return &shares.TableWriteError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &shares.TableWriteError{Path: s.path, Err: err}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return &shares.TableWriteError{Path: s.path, Err: err}
	}
	success = true

	// Persist the rename itself; failure here does not undo the write.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("Directory sync failed")
		}
		d.Close()
	}

	log.Debug().Str("path", s.path).Int("bytes", len(text)).Msg("Mount table written")
	return nil
}
