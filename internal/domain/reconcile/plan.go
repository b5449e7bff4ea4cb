// Package reconcile computes what has to change to bring the host's shares
// and the mount table in line with the desired set.
package reconcile

import (
	"slices"
	"strings"

	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/fstab"
)

// Scope selects which differences a plan acts on.
type Scope int

const (
	// ScopeFull converges table and host on the desired set.
	ScopeFull Scope = iota
	// ScopeCleanup only removes stale managed entries. It never mounts.
	ScopeCleanup
)

// Options tunes plan construction.
type Options struct {
	Root            string
	RemountInactive bool
	Scope           Scope
}

// Addition is a share to mount and register.
type Addition struct {
	Share shares.Descriptor `json:"share" yaml:"share"`
	// Replaces is the managed entry removed first when the share changed.
	Replaces *shares.Descriptor `json:"replaces,omitempty" yaml:"replaces,omitempty"`
}

// Removal is a managed share to unmount and unregister.
type Removal struct {
	Share shares.Descriptor `json:"share" yaml:"share"`
	// Replaced is set when the removal makes room for a changed share.
	Replaced bool `json:"replaced" yaml:"replaced"`
	// Live is set when the share is currently mounted.
	Live bool `json:"live" yaml:"live"`
}

// Conflict is a desired share whose mount point is already taken by an
// unmanaged table line. The share is neither mounted nor registered.
type Conflict struct {
	Share shares.Descriptor `json:"share" yaml:"share"`
	Line  int               `json:"line" yaml:"line"`
	Raw   string            `json:"raw" yaml:"raw"`
}

// Plan is the full set of changes for one pass.
type Plan struct {
	ToAdd     []Addition          `json:"toAdd" yaml:"toAdd"`
	ToRemove  []Removal           `json:"toRemove" yaml:"toRemove"`
	Unchanged []shares.Descriptor `json:"unchanged" yaml:"unchanged"`
	// Remount holds unchanged shares that are registered but not mounted.
	Remount []shares.Descriptor `json:"remount" yaml:"remount"`
	// Orphans are live mounts below the root nobody owns.
	Orphans []shares.LiveMount `json:"orphans" yaml:"orphans"`
	// Conflicts are desired shares blocked by an unmanaged line.
	Conflicts []Conflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	// Passthrough is every table line that is not managed, in table order.
	Passthrough []fstab.Entry `json:"-" yaml:"-"`
	// Foreign are marked lines outside the shares root, kept verbatim.
	Foreign []fstab.Entry `json:"-" yaml:"-"`
	// Duplicates are earlier managed lines for an already managed mount
	// point. They are dropped from the rewrite.
	Duplicates []fstab.Entry `json:"-" yaml:"-"`
	// TableRewrite is the table text if every action succeeds.
	TableRewrite string `json:"-" yaml:"-"`

	managed []shares.Descriptor
}

// Empty reports whether the plan mutates nothing besides the table text.
func (p *Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 && len(p.Remount) == 0
}

// Build validates desired and diffs it against the table and live mounts.
// It never touches the host.
func Build(desired []shares.Descriptor, table *fstab.Table, live []shares.LiveMount, opts Options) (*Plan, error) {
	if err := shares.ValidateSet(desired, opts.Root); err != nil {
		return nil, err
	}
	if table == nil {
		table = &fstab.Table{}
	}

	p := &Plan{Duplicates: table.Duplicates}

	managedAt := make(map[string]shares.Descriptor)
	unmanagedAt := make(map[string]fstab.Entry)
	for _, e := range table.Entries {
		switch {
		case !e.Managed():
			p.Passthrough = append(p.Passthrough, e)
			if mp := e.MountPoint(); mp != "" {
				if _, seen := unmanagedAt[mp]; !seen {
					unmanagedAt[mp] = e
				}
			}
		case !shares.UnderRoot(opts.Root, e.Share.MountPoint):
			raw := fstab.Entry{Line: e.Line, Raw: e.Raw}
			p.Passthrough = append(p.Passthrough, raw)
			p.Foreign = append(p.Foreign, e)
		default:
			p.managed = append(p.managed, *e.Share)
			managedAt[e.Share.MountPoint] = *e.Share
		}
	}

	liveAt := make(map[string]shares.LiveMount, len(live))
	for _, m := range live {
		liveAt[shares.CleanPath(m.MountPoint)] = m
	}

	desiredAt := make(map[string]shares.Descriptor, len(desired))
	for _, raw := range desired {
		d := raw.Canonical()
		d.Managed = true
		desiredAt[d.MountPoint] = d

		cur, registered := managedAt[d.MountPoint]
		_, isLive := liveAt[d.MountPoint]
		other, taken := unmanagedAt[d.MountPoint]

		switch {
		case opts.Scope == ScopeCleanup:
			if registered {
				p.Unchanged = append(p.Unchanged, cur)
			}
		case !registered && taken:
			p.Conflicts = append(p.Conflicts, Conflict{Share: d, Line: other.Line, Raw: other.Raw})
		case !registered:
			p.ToAdd = append(p.ToAdd, Addition{Share: d})
		case !cur.SameTarget(d):
			old := cur
			p.ToRemove = append(p.ToRemove, Removal{Share: old, Replaced: true, Live: isLive})
			p.ToAdd = append(p.ToAdd, Addition{Share: d, Replaces: &old})
		default:
			p.Unchanged = append(p.Unchanged, cur)
			if opts.RemountInactive && !isLive {
				p.Remount = append(p.Remount, cur)
			}
		}
	}

	for _, m := range p.managed {
		if _, ok := desiredAt[m.MountPoint]; ok {
			continue
		}
		_, isLive := liveAt[m.MountPoint]
		if opts.Scope == ScopeCleanup && isLive {
			p.Unchanged = append(p.Unchanged, m)
			continue
		}
		p.ToRemove = append(p.ToRemove, Removal{Share: m, Live: isLive})
	}

	for _, m := range live {
		mp := shares.CleanPath(m.MountPoint)
		if !shares.UnderRoot(opts.Root, mp) {
			continue
		}
		if _, ok := managedAt[mp]; ok {
			continue
		}
		if _, ok := desiredAt[mp]; ok {
			continue
		}
		p.Orphans = append(p.Orphans, m)
	}

	p.TableRewrite = p.Rewrite(Outcome{})
	return p, nil
}

// Outcome lists the mount points whose actions did not succeed.
type Outcome struct {
	FailedRemovals map[string]bool
	FailedAdds     map[string]bool
}

// Rewrite renders the table that matches the actual outcome: a failed
// removal keeps its entry, a failed or blocked addition is left out.
func (p *Plan) Rewrite(o Outcome) string {
	managed := p.ManagedAfter(o)
	entries := make([]fstab.Entry, 0, len(p.Passthrough)+len(managed))
	entries = append(entries, p.Passthrough...)
	for _, d := range managed {
		entries = append(entries, fstab.ManagedEntry(d))
	}
	return fstab.Render(entries)
}

// ManagedAfter returns the managed entries below the root that remain
// registered for the given outcome, sorted by mount point.
func (p *Plan) ManagedAfter(o Outcome) []shares.Descriptor {
	final := make(map[string]shares.Descriptor, len(p.managed)+len(p.ToAdd))
	for _, m := range p.managed {
		final[m.MountPoint] = m
	}
	for _, r := range p.ToRemove {
		if !o.FailedRemovals[r.Share.MountPoint] {
			delete(final, r.Share.MountPoint)
		}
	}
	for _, a := range p.ToAdd {
		if o.FailedAdds[a.Share.MountPoint] {
			continue
		}
		if a.Replaces != nil && o.FailedRemovals[a.Replaces.MountPoint] {
			continue
		}
		final[a.Share.MountPoint] = a.Share
	}

	managed := make([]shares.Descriptor, 0, len(final))
	for _, d := range final {
		managed = append(managed, d)
	}
	slices.SortFunc(managed, func(a, b shares.Descriptor) int {
		return strings.Compare(a.MountPoint, b.MountPoint)
	})
	return managed
}
