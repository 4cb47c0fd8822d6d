package scheduler

import (
	"time"

	"github.com/hivelog/hivesync/internal/replica/merge"
	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

// State is the scheduler's sync state.
type State int

const (
	// Idle: nothing pending, nothing in flight.
	Idle State = iota
	// Dirty: local mutations wait for the next flush.
	Dirty
	// Flushing: a pull, merge and push cycle is in flight.
	Flushing
	// Polling: a version peek or pull-only merge is in flight.
	Polling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dirty:
		return "dirty"
	case Flushing:
		return "flushing"
	case Polling:
		return "polling"
	default:
		return "unknown"
	}
}

// EventKind classifies scheduler events.
type EventKind string

const (
	EventState    EventKind = "state"
	EventMutation EventKind = "mutation"
	EventSeed     EventKind = "seed"
	EventFlush    EventKind = "flush"
	EventPoll     EventKind = "poll"
)

// Event reports a state change or the outcome of a sync operation.
type Event struct {
	Kind     EventKind
	Context  scope.Context
	State    State
	Version  remote.Version
	Stats    merge.Stats
	Changed  bool // poll found a new remote version and absorbed it
	Err      error
	Duration time.Duration
	At       time.Time
}

// Observer receives scheduler events.
type Observer func(Event)

// Status is a point-in-time view of a scheduler.
type Status struct {
	Context    scope.Context
	State      State
	Seeded     bool
	Dirty      bool
	Version    remote.Version
	LastSync   time.Time
	LastError  string
	Tombstones int
}

// Observers fans one event out to every non-nil observer, in order.
func Observers(obs ...Observer) Observer {
	return func(e Event) {
		for _, o := range obs {
			if o != nil {
				o(e)
			}
		}
	}
}
