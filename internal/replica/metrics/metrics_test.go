package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hivelog/hivesync/internal/replica/merge"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

func TestCollector_Observe(t *testing.T) {
	c := New(prometheus.NewRegistry())
	team := scope.TeamContext("t1")
	observe := c.Observer()

	observe(scheduler.Event{Kind: scheduler.EventMutation, Context: team})
	observe(scheduler.Event{Kind: scheduler.EventMutation, Context: team})
	observe(scheduler.Event{Kind: scheduler.EventFlush, Context: team, Duration: 20 * time.Millisecond,
		Stats: merge.Stats{Conflicts: 3, Dropped: 1}})
	observe(scheduler.Event{Kind: scheduler.EventFlush, Context: team, Err: errors.New("offline"),
		Stats: merge.Stats{Conflicts: 10}})
	observe(scheduler.Event{Kind: scheduler.EventPoll, Context: team})
	observe(scheduler.Event{Kind: scheduler.EventPoll, Context: team, Changed: true})

	tests := []struct {
		name string
		got  prometheus.Collector
		want float64
	}{
		{"mutations", c.mutations.WithLabelValues("team:t1"), 2},
		{"flush ok", c.syncs.WithLabelValues("team:t1", "flush", "ok"), 1},
		{"flush error", c.syncs.WithLabelValues("team:t1", "flush", "error"), 1},
		{"poll unchanged", c.syncs.WithLabelValues("team:t1", "poll", "unchanged"), 1},
		{"poll changed", c.syncs.WithLabelValues("team:t1", "poll", "ok"), 1},
		{"conflicts from successful merges only", c.conflicts.WithLabelValues("team:t1"), 3},
		{"dropped", c.dropped.WithLabelValues("team:t1"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.got); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_StateIsOneHot(t *testing.T) {
	c := New(prometheus.NewRegistry())
	p := scope.PersonalContext()

	c.Observe(scheduler.Event{Kind: scheduler.EventState, Context: p, State: scheduler.Dirty})
	c.Observe(scheduler.Event{Kind: scheduler.EventState, Context: p, State: scheduler.Flushing})

	for st, want := range map[string]float64{"idle": 0, "dirty": 0, "flushing": 1, "polling": 0} {
		if got := testutil.ToFloat64(c.state.WithLabelValues("personal", st)); got != want {
			t.Errorf("state{%s} = %v, want %v", st, got, want)
		}
	}
}
