package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/edumarques81/sharesync/internal/domain/modes"
	"github.com/edumarques81/sharesync/internal/domain/reconcile"
	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// PlanView renders a reconciliation plan.
type PlanView struct {
	Plan *reconcile.Plan
}

// Sections implements Sections.
func (v PlanView) Sections() []Section {
	p := v.Plan
	if p == nil {
		return nil
	}

	add := NewTableData("Mount Point", "Remote", "Kind", "Options", "Replaces")
	for _, a := range p.ToAdd {
		replaces := ""
		if a.Replaces != nil {
			replaces = a.Replaces.Remote
		}
		add.AddRow(a.Share.MountPoint, a.Share.Remote, a.Share.Kind.String(), strings.Join(a.Share.Options, ","), replaces)
	}

	remove := NewTableData("Mount Point", "Remote", "Kind", "Live", "Replaced")
	for _, r := range p.ToRemove {
		remove.AddRow(r.Share.MountPoint, r.Share.Remote, r.Share.Kind.String(), yesNo(r.Live), yesNo(r.Replaced))
	}

	blocked := NewTableData("Mount Point", "Remote", "Kind", "Table Line")
	for _, c := range p.Conflicts {
		blocked.AddRow(c.Share.MountPoint, c.Share.Remote, c.Share.Kind.String(), strconv.Itoa(c.Line))
	}

	return []Section{
		{Title: "Mounts to add", Table: add},
		{Title: "Blocked by unmanaged table lines", Table: blocked},
		{Title: "Mounts to remove", Table: remove},
		{Title: "Mounts to remount", Table: descriptorTable(p.Remount)},
		{Title: "Unchanged mounts", Table: descriptorTable(p.Unchanged)},
		{Title: "Orphaned mounts", Table: liveTable(p.Orphans)},
	}
}

// SummaryView renders the result of a pass.
type SummaryView struct {
	Summary *modes.Summary
}

// Sections implements Sections.
func (v SummaryView) Sections() []Section {
	s := v.Summary

	actions := NewTableData("Action", "Mount Point", "Remote", "Kind", "Status", "Reason")
	for _, a := range s.Actions {
		actions.AddRow(string(a.Action), a.MountPoint, a.Remote, a.Kind, string(a.Status), a.Reason)
	}

	totals := NewTableData("Pass", "Mode", "Succeeded", "Failed", "Blocked", "Planned", "Managed", "Table Written", "Duration")
	totals.AddRow(
		s.PassID,
		string(s.Mode),
		strconv.Itoa(s.Count(modes.StatusSucceeded)),
		strconv.Itoa(s.Count(modes.StatusFailed)),
		strconv.Itoa(s.Count(modes.StatusBlocked)),
		strconv.Itoa(s.Count(modes.StatusPlanned)),
		strconv.Itoa(s.ManagedEntries),
		yesNo(s.TableWritten),
		s.Duration.Round(time.Millisecond).String(),
	)

	sections := []Section{
		{Title: "Actions", Table: actions},
		{Title: "Orphaned mounts", Table: liveTable(s.Orphans)},
		{Title: "Summary", Table: totals},
	}
	if s.Error != "" {
		errs := NewTableData("Error")
		errs.AddRow(s.Error)
		sections = append(sections, Section{Title: "Pass aborted", Table: errs})
	}
	return sections
}

// StatusView renders a status listing.
type StatusView struct {
	Report *modes.StatusReport
}

// Sections implements Sections.
func (v StatusView) Sections() []Section {
	r := v.Report

	rows := NewTableData("Mount Point", "Remote", "Kind", "Registered", "Desired", "Live", "In Sync")
	for _, s := range r.Shares {
		inSync := "-"
		if s.Registered && s.Desired {
			inSync = yesNo(s.InSync)
		}
		rows.AddRow(s.MountPoint, s.Remote, s.Kind, yesNo(s.Registered), yesNo(s.Desired), yesNo(s.Live), inSync)
	}

	return []Section{
		{Title: "Shares under " + r.Root, Table: rows},
		{Title: "Orphaned mounts", Table: liveTable(r.Orphans)},
	}
}

func descriptorTable(ds []shares.Descriptor) *TableData {
	t := NewTableData("Mount Point", "Remote", "Kind")
	for _, d := range ds {
		t.AddRow(d.MountPoint, d.Remote, d.Kind.String())
	}
	return t
}

func liveTable(ms []shares.LiveMount) *TableData {
	t := NewTableData("Mount Point", "Remote", "FS Type")
	for _, m := range ms {
		t.AddRow(m.MountPoint, m.Remote, m.FSType)
	}
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PrintPlan prints a plan. JSON and YAML output encode the plan itself.
func (p *Printer) PrintPlan(plan *reconcile.Plan) error {
	if p.format == FormatTable {
		return p.Print(PlanView{Plan: plan})
	}
	return p.Print(plan)
}

// PrintSummary prints a pass summary.
func (p *Printer) PrintSummary(s *modes.Summary) error {
	if p.format == FormatTable {
		return p.Print(SummaryView{Summary: s})
	}
	return p.Print(s)
}

// PrintStatus prints a status listing.
func (p *Printer) PrintStatus(r *modes.StatusReport) error {
	if p.format == FormatTable {
		return p.Print(StatusView{Report: r})
	}
	return p.Print(r)
}
