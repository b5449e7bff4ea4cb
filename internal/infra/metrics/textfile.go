// Package metrics writes per-pass Prometheus metrics to a node_exporter
// textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/edumarques81/sharesync/internal/domain/modes"
)

// Textfile records pass summaries to a .prom file. A nil *Textfile records
// nothing.
type Textfile struct {
	path string
}

// NewTextfile returns a recorder writing to path, or nil when path is empty.
func NewTextfile(path string) *Textfile {
	if path == "" {
		return nil
	}
	return &Textfile{path: path}
}

type passMetrics struct {
	lastRun  prometheus.Gauge
	success  prometheus.Gauge
	actions  *prometheus.CounterVec
	managed  prometheus.Gauge
	orphans  prometheus.Gauge
	duration prometheus.Gauge
}

func newPassMetrics(reg prometheus.Registerer) *passMetrics {
	return &passMetrics{
		lastRun: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sharesync_last_run_timestamp_seconds",
			Help: "Unix time the last reconciliation pass started",
		}),
		success: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sharesync_last_run_success",
			Help: "1 if the last pass completed without failed actions, 0 otherwise",
		}),
		actions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharesync_actions_total",
				Help: "Actions taken by the last pass by action and status",
			},
			[]string{"action", "status"},
		),
		managed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sharesync_managed_entries",
			Help: "Managed entries in the mount table after the last pass",
		}),
		orphans: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sharesync_orphaned_mounts",
			Help: "Live mounts under the shares root not owned by any entry",
		}),
		duration: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sharesync_run_duration_seconds",
			Help: "Wall time of the last pass",
		}),
	}
}

// Record implements modes.Recorder. The file is replaced atomically.
func (t *Textfile) Record(s *modes.Summary) error {
	if t == nil || s == nil {
		return nil
	}

	reg := prometheus.NewRegistry()
	m := newPassMetrics(reg)

	m.lastRun.Set(float64(s.Started.Unix()))
	if s.ExitCode() == modes.ExitOK {
		m.success.Set(1)
	}
	for _, a := range s.Actions {
		m.actions.WithLabelValues(string(a.Action), string(a.Status)).Inc()
	}
	m.managed.Set(float64(s.ManagedEntries))
	m.orphans.Set(float64(len(s.Orphans)))
	m.duration.Set(s.Duration.Seconds())

	if err := prometheus.WriteToTextfile(t.path, reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", t.path, err)
	}
	return nil
}
