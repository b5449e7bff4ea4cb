// Package modes runs reconciliation passes: load, plan, execute, save.
package modes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/edumarques81/sharesync/internal/domain/reconcile"
	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/fstab"
	"github.com/edumarques81/sharesync/internal/infra/mounter"
	"github.com/edumarques81/sharesync/internal/infra/mountinfo"
)

// TableStore loads and persists the mount table.
type TableStore interface {
	Path() string
	Load() (*fstab.Table, error)
	Save(text string) error
}

// Executor performs single mount operations.
type Executor interface {
	Validate(d shares.Descriptor) error
	Mount(ctx context.Context, d shares.Descriptor) (mounter.Report, error)
	Unmount(ctx context.Context, d shares.Descriptor) (mounter.Report, error)
	RemoveMountPoint(ctx context.Context, path string) (mounter.Report, error)
}

// Notifier is told when a pass changed the set of mounted shares.
type Notifier interface {
	NotifyChanged(ctx context.Context) error
}

// Recorder persists pass results, e.g. as metrics.
type Recorder interface {
	Record(s *Summary) error
}

// Options configures the controller.
type Options struct {
	Root            string
	Parallelism     int
	RemountInactive bool
}

// Controller runs passes against one host. Passes must not run
// concurrently.
type Controller struct {
	store    TableStore
	live     mountinfo.Source
	exec     Executor
	opts     Options
	notifier Notifier
	recorder Recorder
	now      func() time.Time
}

// NewController creates a controller.
func NewController(store TableStore, live mountinfo.Source, exec Executor, opts Options) *Controller {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Controller{
		store: store,
		live:  live,
		exec:  exec,
		opts:  opts,
		now:   time.Now,
	}
}

// SetNotifier sets the hook called after a pass that changed mounts.
func (c *Controller) SetNotifier(n Notifier) {
	c.notifier = n
}

// SetRecorder sets the sink for pass summaries.
func (c *Controller) SetRecorder(r Recorder) {
	c.recorder = r
}

// Apply converges the table and the host on desired.
func (c *Controller) Apply(ctx context.Context, desired []shares.Descriptor) *Summary {
	return c.Run(ctx, ModeApply, desired)
}

// DryRun plans like Apply and reports the actions without executing them.
func (c *Controller) DryRun(ctx context.Context, desired []shares.Descriptor) *Summary {
	return c.Run(ctx, ModeDryRun, desired)
}

// UnmountAll removes every managed share and unmounts orphans.
func (c *Controller) UnmountAll(ctx context.Context) *Summary {
	return c.Run(ctx, ModeUnmountAll, nil)
}

// Cleanup drops stale managed entries and unmounts orphans without
// mounting anything.
func (c *Controller) Cleanup(ctx context.Context, desired []shares.Descriptor) *Summary {
	return c.Run(ctx, ModeCleanup, desired)
}

// Run executes one pass in the given mode.
func (c *Controller) Run(ctx context.Context, mode Mode, desired []shares.Descriptor) *Summary {
	s := &Summary{
		PassID:  uuid.New().String(),
		Mode:    mode,
		Started: c.now(),
	}
	logger := log.With().Str("pass_id", s.PassID).Str("mode", string(mode)).Logger()
	logger.Info().Int("desired", len(desired)).Str("table", c.store.Path()).Msg("Reconciliation pass started")

	c.run(logger.WithContext(ctx), &logger, s, mode, desired)

	s.Duration = c.now().Sub(s.Started)
	c.finish(ctx, &logger, s)
	return s
}

func (c *Controller) run(ctx context.Context, logger *zerolog.Logger, s *Summary, mode Mode, desired []shares.Descriptor) {
	table, err := c.store.Load()
	if err != nil {
		s.fatal(err)
		return
	}
	live, err := c.live.ListActive()
	if err != nil {
		s.fatal(fmt.Errorf("list live mounts: %w", err))
		return
	}

	opts := reconcile.Options{Root: c.opts.Root, RemountInactive: c.opts.RemountInactive}
	switch mode {
	case ModeUnmountAll:
		desired = nil
	case ModeCleanup:
		opts.Scope = reconcile.ScopeCleanup
		opts.RemountInactive = false
	}

	plan, err := reconcile.Build(desired, table, live, opts)
	if err != nil {
		s.fatal(err)
		return
	}
	s.Plan = plan
	s.Duplicates = len(plan.Duplicates)
	for _, d := range plan.Duplicates {
		logger.Warn().Int("line", d.Line).Str("mountPoint", d.Share.MountPoint).Msg("Dropping duplicate managed entry")
	}
	for _, f := range plan.Foreign {
		logger.Warn().Int("line", f.Line).Str("mountPoint", f.Share.MountPoint).Msg("Managed entry outside shares root left untouched")
	}

	// Every share about to be mounted must be accepted by its backend
	// before anything on the host changes.
	if err := c.validate(plan); err != nil {
		s.fatal(err)
		return
	}

	unmountOrphans := mode == ModeUnmountAll || mode == ModeCleanup
	if !unmountOrphans {
		s.Orphans = plan.Orphans
		for _, o := range plan.Orphans {
			logger.Warn().Str("mountPoint", o.MountPoint).Str("remote", o.Remote).Msg("Orphaned mount left in place")
		}
	}

	conflicts := blockedConflicts(plan)
	for _, r := range conflicts {
		logger.Warn().Str("mountPoint", r.MountPoint).Str("reason", r.Reason).Msg("Share not registered")
	}

	if mode == ModeDryRun {
		s.Actions = append(planned(plan, unmountOrphans), conflicts...)
		for _, a := range s.Actions {
			if a.Status != StatusPlanned {
				continue
			}
			logger.Info().Str("action", string(a.Action)).Str("mountPoint", a.MountPoint).Str("remote", a.Remote).Msg("Would run")
		}
		s.ManagedEntries = len(plan.ManagedAfter(reconcile.Outcome{}))
		return
	}

	outcome := reconcile.Outcome{
		FailedRemovals: make(map[string]bool),
		FailedAdds:     make(map[string]bool),
	}

	// Every removal finishes before any mount starts, so two mounts never
	// share a path.
	removals := c.removePhase(ctx, plan, unmountOrphans)
	for i, r := range removals[:len(plan.ToRemove)] {
		if r.Status != StatusSucceeded {
			outcome.FailedRemovals[plan.ToRemove[i].Share.MountPoint] = true
		}
	}
	s.Actions = append(s.Actions, removals...)

	adds := c.addPhase(ctx, plan, outcome.FailedRemovals)
	for i, r := range adds[:len(plan.ToAdd)] {
		if r.Status != StatusSucceeded {
			outcome.FailedAdds[plan.ToAdd[i].Share.MountPoint] = true
		}
	}
	s.Actions = append(s.Actions, adds...)
	s.Actions = append(s.Actions, conflicts...)

	text := plan.Rewrite(outcome)
	s.ManagedEntries = len(plan.ManagedAfter(outcome))
	if text == table.Original {
		logger.Debug().Msg("Mount table unchanged")
		return
	}
	if err := c.store.Save(text); err != nil {
		s.fatal(err)
		return
	}
	s.TableWritten = true
	logger.Info().Str("path", c.store.Path()).Msg("Mount table updated")
}

func (c *Controller) removePhase(ctx context.Context, plan *reconcile.Plan, orphans bool) []ActionResult {
	n := len(plan.ToRemove)
	if orphans {
		n += len(plan.Orphans)
	}
	results := make([]ActionResult, n)

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, r := range plan.ToRemove {
		share := r.Share
		share.Managed = true
		g.Go(func() error {
			results[i] = c.remove(ctx, ActionRemove, share)
			return nil
		})
	}
	if orphans {
		for j, o := range plan.Orphans {
			i := len(plan.ToRemove) + j
			share := shares.Descriptor{Kind: o.Kind, Remote: o.Remote, MountPoint: o.MountPoint}
			g.Go(func() error {
				results[i] = c.remove(ctx, ActionOrphan, share)
				return nil
			})
		}
	}
	g.Wait()
	return results
}

func (c *Controller) remove(ctx context.Context, action Action, d shares.Descriptor) ActionResult {
	res := newResult(action, d)
	logger := zerolog.Ctx(ctx)
	if err := ctx.Err(); err != nil {
		res.Status = StatusFailed
		res.Reason = "cancelled before start"
		return res
	}

	rep, err := c.exec.Unmount(ctx, d)
	res.Report = rep
	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		logger.Error().Err(err).Str("mountPoint", d.MountPoint).Msg("Unmount failed")
		return res
	}

	if action == ActionOrphan {
		dir, err := c.exec.RemoveMountPoint(ctx, d.MountPoint)
		if err != nil {
			logger.Warn().Err(err).Str("mountPoint", d.MountPoint).Msg("Orphan mount point not removed")
		}
		res.Report.RemovedDir = dir.RemovedDir
		res.Report.Residue = dir.Residue
	}
	if res.Report.Residue {
		logger.Warn().Str("mountPoint", d.MountPoint).Msg("Mount point not empty, left in place")
	}
	res.Status = StatusSucceeded
	return res
}

func (c *Controller) addPhase(ctx context.Context, plan *reconcile.Plan, failedRemovals map[string]bool) []ActionResult {
	results := make([]ActionResult, len(plan.ToAdd)+len(plan.Remount))

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, a := range plan.ToAdd {
		if a.Replaces != nil && failedRemovals[a.Replaces.MountPoint] {
			res := newResult(ActionAdd, a.Share)
			res.Status = StatusBlocked
			res.Reason = "previous entry could not be removed"
			results[i] = res
			continue
		}
		share := a.Share
		g.Go(func() error {
			results[i] = c.mount(ctx, ActionAdd, share)
			return nil
		})
	}
	for j, d := range plan.Remount {
		i := len(plan.ToAdd) + j
		share := d
		g.Go(func() error {
			results[i] = c.mount(ctx, ActionRemount, share)
			return nil
		})
	}
	g.Wait()
	return results
}

func (c *Controller) mount(ctx context.Context, action Action, d shares.Descriptor) ActionResult {
	res := newResult(action, d)
	if err := ctx.Err(); err != nil {
		res.Status = StatusFailed
		res.Reason = "cancelled before start"
		return res
	}

	rep, err := c.exec.Mount(ctx, d)
	res.Report = rep
	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		zerolog.Ctx(ctx).Error().Err(err).Str("mountPoint", d.MountPoint).Msg("Mount failed")
		return res
	}
	res.Status = StatusSucceeded
	return res
}

func (c *Controller) finish(ctx context.Context, logger *zerolog.Logger, s *Summary) {
	if s.err != nil {
		logger.Error().Err(s.err).Bool("fatal", true).Msg("Reconciliation pass aborted")
	} else {
		logger.Info().
			Int("succeeded", s.Count(StatusSucceeded)).
			Int("failed", s.Count(StatusFailed)).
			Int("blocked", s.Count(StatusBlocked)).
			Bool("tableWritten", s.TableWritten).
			Dur("duration", s.Duration).
			Msg("Reconciliation pass finished")
	}

	if c.recorder != nil && s.Mode != ModeDryRun {
		if err := c.recorder.Record(s); err != nil {
			logger.Warn().Err(err).Msg("Failed to record pass metrics")
		}
	}

	if c.notifier != nil && s.Changed() && (s.Mode == ModeApply || s.Mode == ModeUnmountAll) {
		if err := c.notifier.NotifyChanged(logger.WithContext(context.WithoutCancel(ctx))); err != nil {
			logger.Warn().Err(err).Msg("Failed to notify about changed mounts")
		}
	}
}

func planned(plan *reconcile.Plan, orphans bool) []ActionResult {
	var out []ActionResult
	add := func(a Action, d shares.Descriptor) {
		r := newResult(a, d)
		r.Status = StatusPlanned
		out = append(out, r)
	}
	for _, r := range plan.ToRemove {
		add(ActionRemove, r.Share)
	}
	if orphans {
		for _, o := range plan.Orphans {
			add(ActionOrphan, shares.Descriptor{Kind: o.Kind, Remote: o.Remote, MountPoint: o.MountPoint})
		}
	}
	for _, a := range plan.ToAdd {
		add(ActionAdd, a.Share)
	}
	for _, d := range plan.Remount {
		add(ActionRemount, d)
	}
	return out
}

func (c *Controller) validate(plan *reconcile.Plan) error {
	check := func(d shares.Descriptor) error {
		if err := c.exec.Validate(d); err != nil {
			return &shares.ConfigError{Field: d.MountPoint, Reason: err.Error()}
		}
		return nil
	}
	for _, a := range plan.ToAdd {
		if err := check(a.Share); err != nil {
			return err
		}
	}
	for _, d := range plan.Remount {
		if err := check(d); err != nil {
			return err
		}
	}
	return nil
}

func blockedConflicts(plan *reconcile.Plan) []ActionResult {
	out := make([]ActionResult, 0, len(plan.Conflicts))
	for _, cf := range plan.Conflicts {
		r := newResult(ActionAdd, cf.Share)
		r.Status = StatusBlocked
		r.Reason = fmt.Sprintf("path registered by an unmanaged fstab line (line %d)", cf.Line)
		out = append(out, r)
	}
	return out
}
