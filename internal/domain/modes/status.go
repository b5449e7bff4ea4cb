package modes

import (
	"slices"
	"strings"

	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// ShareState is one row of the status listing.
type ShareState struct {
	MountPoint string `json:"mountPoint" yaml:"mountPoint"`
	Remote     string `json:"remote" yaml:"remote"`
	Kind       string `json:"kind" yaml:"kind"`
	Registered bool   `json:"registered" yaml:"registered"`
	Desired    bool   `json:"desired" yaml:"desired"`
	Live       bool   `json:"live" yaml:"live"`
	// InSync is set when the registered entry matches the desired share.
	InSync bool `json:"inSync" yaml:"inSync"`
}

// StatusReport is a read-only view of managed, desired and live shares.
type StatusReport struct {
	Root       string             `json:"root" yaml:"root"`
	Table      string             `json:"table" yaml:"table"`
	Shares     []ShareState       `json:"shares" yaml:"shares"`
	Orphans    []shares.LiveMount `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Duplicates int                `json:"duplicates" yaml:"duplicates"`
}

// Status lists every managed or desired share with its live state. It
// performs no mutation.
func (c *Controller) Status(desired []shares.Descriptor) (*StatusReport, error) {
	if err := shares.ValidateSet(desired, c.opts.Root); err != nil {
		return nil, err
	}
	table, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	live, err := c.live.ListActive()
	if err != nil {
		return nil, err
	}

	rep := &StatusReport{Root: c.opts.Root, Table: c.store.Path(), Duplicates: len(table.Duplicates)}

	liveAt := make(map[string]shares.LiveMount, len(live))
	for _, m := range live {
		liveAt[m.MountPoint] = m
	}

	rows := make(map[string]*ShareState)
	registered := make(map[string]shares.Descriptor)
	for _, d := range table.Managed() {
		if !shares.UnderRoot(c.opts.Root, d.MountPoint) {
			continue
		}
		registered[d.MountPoint] = d
		rows[d.MountPoint] = &ShareState{
			MountPoint: d.MountPoint,
			Remote:     d.Remote,
			Kind:       d.Kind.String(),
			Registered: true,
		}
	}
	for _, raw := range desired {
		d := raw.Canonical()
		row, ok := rows[d.MountPoint]
		if !ok {
			row = &ShareState{MountPoint: d.MountPoint, Remote: d.Remote, Kind: d.Kind.String()}
			rows[d.MountPoint] = row
		}
		row.Desired = true
		if cur, ok := registered[d.MountPoint]; ok {
			row.InSync = cur.SameTarget(d)
		}
	}

	for mp, row := range rows {
		_, row.Live = liveAt[mp]
		rep.Shares = append(rep.Shares, *row)
	}
	slices.SortFunc(rep.Shares, func(a, b ShareState) int {
		return strings.Compare(a.MountPoint, b.MountPoint)
	})

	for _, m := range live {
		if _, ok := rows[m.MountPoint]; !ok {
			rep.Orphans = append(rep.Orphans, m)
		}
	}
	return rep, nil
}
