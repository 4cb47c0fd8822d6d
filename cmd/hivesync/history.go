package main

import (
	"context"
	"log"

	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
)

// history records sync outcomes in the local sync log. Observe runs on the
// scheduler's control goroutine, so entries are queued and written by Run.
type history struct {
	store   *localstore.Store
	entries chan localstore.LogEntry
	logger  *log.Logger
}

func newHistory(store *localstore.Store, logger *log.Logger) *history {
	return &history{
		store:   store,
		entries: make(chan localstore.LogEntry, 64),
		logger:  logger,
	}
}

// Observe queues seeds, flushes, failed polls and polls that absorbed a
// remote change. Entries are dropped when the queue is full.
func (h *history) Observe(e scheduler.Event) {
	switch e.Kind {
	case scheduler.EventSeed, scheduler.EventFlush:
	case scheduler.EventPoll:
		if e.Err == nil && !e.Changed {
			return
		}
	default:
		return
	}

	entry := localstore.LogEntry{
		Context:  e.Context.String(),
		Kind:     string(e.Kind),
		Outcome:  "ok",
		Version:  string(e.Version),
		Duration: e.Duration,
		At:       e.At,
	}
	if e.Err != nil {
		entry.Outcome = "error"
		entry.Detail = e.Err.Error()
	} else if s := e.Stats; s.Conflicts+s.Dropped+s.Relocated > 0 {
		entry.Detail = s.String()
	}

	select {
	case h.entries <- entry:
	default:
	}
}

// Run writes queued entries until ctx is done, then writes what is left.
func (h *history) Run(ctx context.Context) error {
	for {
		select {
		case e := <-h.entries:
			h.write(e)
		case <-ctx.Done():
			h.Flush()
			return nil
		}
	}
}

// Flush writes every queued entry.
func (h *history) Flush() {
	for {
		select {
		case e := <-h.entries:
			h.write(e)
		default:
			return
		}
	}
}

func (h *history) write(e localstore.LogEntry) {
	if err := h.store.AppendLog(context.Background(), e); err != nil {
		h.logger.Printf("Error recording sync history: %v", err)
	}
}
