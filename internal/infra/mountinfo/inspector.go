// Package mountinfo reads the kernel's table of active mounts.
package mountinfo

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/fstab"
)

// DefaultMountsPath is the mount list of the calling process's namespace.
const DefaultMountsPath = "/proc/self/mounts"

// Source lists live mounts below the shares root.
type Source interface {
	ListActive() ([]shares.LiveMount, error)
	IsMounted(path string) (bool, error)
}

// Inspector parses a /proc/mounts style file. It never mutates anything.
type Inspector struct {
	mountsPath string
	root       string
}

// NewInspector creates an inspector restricted to mounts below root.
func NewInspector(mountsPath, root string) *Inspector {
	if mountsPath == "" {
		mountsPath = DefaultMountsPath
	}
	return &Inspector{mountsPath: mountsPath, root: shares.CleanPath(root)}
}

// ListActive returns the active mounts strictly below the shares root, in
// kernel order. When a path is stacked, the topmost mount wins.
func (i *Inspector) ListActive() ([]shares.LiveMount, error) {
	all, err := i.readAll()
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var out []shares.LiveMount
	for _, m := range all {
		if !shares.UnderRoot(i.root, m.MountPoint) {
			continue
		}
		if at, ok := index[m.MountPoint]; ok {
			out[at] = m
			continue
		}
		index[m.MountPoint] = len(out)
		out = append(out, m)
	}
	return out, nil
}

// IsMounted reports whether anything is mounted at path.
func (i *Inspector) IsMounted(path string) (bool, error) {
	all, err := i.readAll()
	if err != nil {
		return false, err
	}
	path = shares.CleanPath(path)
	for _, m := range all {
		if m.MountPoint == path {
			return true, nil
		}
	}
	return false, nil
}

func (i *Inspector) readAll() ([]shares.LiveMount, error) {
	file, err := os.Open(i.mountsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", i.mountsPath, err)
	}
	defer file.Close()

	var mounts []shares.LiveMount
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m, ok := parseLine(scanner.Text())
		if !ok {
			log.Debug().Str("line", scanner.Text()).Msg("Skipping unparseable mount line")
			continue
		}
		mounts = append(mounts, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", i.mountsPath, err)
	}
	return mounts, nil
}

func parseLine(line string) (shares.LiveMount, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return shares.LiveMount{}, false
	}
	return shares.LiveMount{
		Remote:     fstab.Unescape(fields[0]),
		MountPoint: shares.CleanPath(fstab.Unescape(fields[1])),
		FSType:     fields[2],
		Kind:       shares.KindFromFSType(fields[2]),
		Active:     true,
	}, true
}
