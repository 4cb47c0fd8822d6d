// Package metrics turns scheduler events into Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hivelog/hivesync/internal/replica/scheduler"
)

// Collector holds the sync metrics of every scheduler it observes.
type Collector struct {
	state     *prometheus.GaugeVec
	syncs     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	conflicts *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	mutations *prometheus.CounterVec
}

// New creates the collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hivesync",
			Subsystem: "replica",
			Name:      "state",
			Help:      "1 for the current scheduler state of a context, 0 otherwise.",
		}, []string{"context", "state"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivesync",
			Subsystem: "replica",
			Name:      "syncs_total",
			Help:      "Sync operations by kind (seed, flush, poll) and outcome.",
		}, []string{"context", "kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hivesync",
			Subsystem: "replica",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync operations by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"context", "kind"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivesync",
			Subsystem: "replica",
			Name:      "merge_conflicts_total",
			Help:      "Entities present on both sides of a merge.",
		}, []string{"context"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivesync",
			Subsystem: "replica",
			Name:      "tombstoned_entities_total",
			Help:      "Entities dropped by a merge because their id is tombstoned.",
		}, []string{"context"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivesync",
			Subsystem: "replica",
			Name:      "mutations_total",
			Help:      "Local mutations accepted by the scheduler.",
		}, []string{"context"}),
	}
	reg.MustRegister(c.state, c.syncs, c.duration, c.conflicts, c.dropped, c.mutations)
	return c
}

// Observe records one scheduler event.
func (c *Collector) Observe(e scheduler.Event) {
	ctx := e.Context.String()

	switch e.Kind {
	case scheduler.EventState:
		for _, st := range []scheduler.State{scheduler.Idle, scheduler.Dirty, scheduler.Flushing, scheduler.Polling} {
			v := 0.0
			if st == e.State {
				v = 1
			}
			c.state.WithLabelValues(ctx, st.String()).Set(v)
		}
	case scheduler.EventMutation:
		c.mutations.WithLabelValues(ctx).Inc()
	case scheduler.EventSeed, scheduler.EventFlush, scheduler.EventPoll:
		kind := string(e.Kind)
		c.syncs.WithLabelValues(ctx, kind, outcome(e)).Inc()
		c.duration.WithLabelValues(ctx, kind).Observe(e.Duration.Seconds())
		if e.Err == nil {
			c.conflicts.WithLabelValues(ctx).Add(float64(e.Stats.Conflicts))
			c.dropped.WithLabelValues(ctx).Add(float64(e.Stats.Dropped))
		}
	}
}

// Observer returns Observe as a scheduler observer.
func (c *Collector) Observer() scheduler.Observer {
	return c.Observe
}

func outcome(e scheduler.Event) string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Kind == scheduler.EventPoll && !e.Changed:
		return "unchanged"
	default:
		return "ok"
	}
}
