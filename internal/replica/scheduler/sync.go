package scheduler

import (
	"time"

	"github.com/hivelog/hivesync/internal/replica/merge"
	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// pullRemote fetches the snapshot, degrading "no snapshot" and "unreadable
// snapshot" to an empty remote.
func (s *Scheduler) pullRemote() (remote.Snapshot, error) {
	ctx, cancel := s.callContext()
	defer cancel()

	snap, err := s.remote.Pull(ctx, s.scope)
	if err != nil {
		if remote.TreatAsEmpty(err) {
			s.config.Logger.Printf("Treating remote %s as empty: %v", s.scope, err)
			return remote.Empty(), nil
		}
		return remote.Snapshot{}, err
	}
	if snap.Dataset == nil {
		snap.Dataset = &schema.Dataset{}
	}
	return snap, nil
}

// startPull runs a seed pull: a pull-only merge regardless of timers.
func (s *Scheduler) startPull() {
	s.pullPending = false
	s.polling = true
	s.inPullWaiters, s.pullWaiters = s.pullWaiters, nil
	started := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		snap, err := s.pullRemote()
		s.report(func() { s.finishPull(snap, err, time.Since(started)) })
	}()
}

func (s *Scheduler) finishPull(snap remote.Snapshot, err error, took time.Duration) {
	s.polling = false
	waiters := s.inPullWaiters
	s.inPullWaiters = nil

	if err != nil {
		s.lastErr = err
		s.config.Logger.Printf("Seed pull for %s failed: %v", s.scope, err)
		s.emit(Event{Kind: EventSeed, Err: err, Duration: took})
		notify(waiters, err)
		if !s.seeded {
			// A flush cannot run before the seed; its waiters get the
			// same answer.
			notify(s.flushWaiters, err)
			s.flushWaiters = nil
			s.flushDue = false
		}
		s.kick()
		return
	}

	stats := s.adopt(snap.Dataset, snap.Tombstones, snap.Version)
	s.config.Logger.Printf("Seeded %s at version %q (%s)", s.scope, snap.Version, stats)
	s.emit(Event{Kind: EventSeed, Version: snap.Version, Stats: stats, Duration: took})
	notify(waiters, nil)
	s.kick()
}

// startFlush runs one pull, merge, push cycle against the replica as it is
// now. Edits made while it runs keep the replica dirty.
func (s *Scheduler) startFlush() {
	s.flushDue = false
	s.flushing = true
	s.dirty = false
	s.stopDebounce()
	s.inFlushWaiters, s.flushWaiters = s.flushWaiters, nil

	local := s.ds.Clone()
	tombs := s.ledger.Set()
	started := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		merged, union, v, stats, err := s.flush(local, tombs)
		s.report(func() { s.finishFlush(merged, union, v, stats, err, time.Since(started)) })
	}()
}

// flush is the remote half of a flush, run off the control goroutine.
func (s *Scheduler) flush(local *schema.Dataset, tombs tombstone.Set) (*schema.Dataset, tombstone.Set, remote.Version, merge.Stats, error) {
	snap, err := s.pullRemote()
	if err != nil {
		return nil, nil, "", merge.Stats{}, err
	}

	union := tombstone.Union(tombs, snap.Tombstones)
	merged, stats := merge.MergeWithReport(local, snap.Dataset, union)

	if s.ctx.Err() != nil {
		return nil, nil, "", stats, ErrStopped
	}
	ctx, cancel := s.pushContext()
	defer cancel()
	v, err := s.remote.Push(ctx, s.scope, merged, union)
	if err != nil {
		return nil, nil, "", stats, err
	}
	return merged, union, v, stats, nil
}

func (s *Scheduler) finishFlush(merged *schema.Dataset, union tombstone.Set, v remote.Version, stats merge.Stats, err error, took time.Duration) {
	s.flushing = false
	waiters := s.inFlushWaiters
	s.inFlushWaiters = nil

	if err != nil {
		s.lastErr = err
		s.dirty = true
		s.flushDue = false
		s.armDebounce()
		s.persist(false)
		s.config.Logger.Printf("Flush for %s failed, will retry: %v", s.scope, err)
		s.emit(Event{Kind: EventFlush, Err: err, Duration: took})
		notify(waiters, err)
		s.kick()
		return
	}

	s.adopt(merged, union, v)
	s.config.Logger.Printf("Flushed %s at version %q in %s (%s)", s.scope, v, took.Round(time.Millisecond), stats)
	s.emit(Event{Kind: EventFlush, Version: v, Stats: stats, Duration: took})
	notify(waiters, nil)
	s.kick()
}

// onPollTick peeks the remote version while idle. Polls are skipped while
// dirty or while anything is in flight; an unseeded replica retries its
// seed pull instead.
func (s *Scheduler) onPollTick() {
	if s.flushing || s.polling {
		return
	}
	if !s.seeded {
		s.pullPending = true
		s.kick()
		return
	}
	if s.dirty || s.flushDue || s.pullPending {
		return
	}

	s.polling = true
	known := s.version
	started := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		snap, changed, err := s.poll(known)
		s.report(func() { s.finishPoll(snap, changed, err, time.Since(started)) })
	}()
}

// poll peeks the version and pulls only when it moved.
func (s *Scheduler) poll(known remote.Version) (remote.Snapshot, bool, error) {
	ctx, cancel := s.callContext()
	v, err := s.remote.PeekVersion(ctx, s.scope)
	cancel()
	if err != nil && !remote.TreatAsEmpty(err) {
		return remote.Snapshot{}, false, err
	}
	if v == known {
		return remote.Snapshot{}, false, nil
	}
	snap, err := s.pullRemote()
	if err != nil {
		return remote.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *Scheduler) finishPoll(snap remote.Snapshot, changed bool, err error, took time.Duration) {
	s.polling = false

	switch {
	case err != nil:
		s.lastErr = err
		s.config.Logger.Printf("Poll for %s failed: %v", s.scope, err)
		s.emit(Event{Kind: EventPoll, Err: err, Duration: took})
	case changed:
		stats := s.adopt(snap.Dataset, snap.Tombstones, snap.Version)
		s.config.Logger.Printf("Absorbed remote %s version %q (%s)", s.scope, snap.Version, stats)
		s.emit(Event{Kind: EventPoll, Changed: true, Version: snap.Version, Stats: stats, Duration: took})
	default:
		s.lastSync = time.Now()
		s.emit(Event{Kind: EventPoll, Duration: took})
	}
	s.kick()
}
