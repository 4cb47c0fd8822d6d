// Package scheduler decides when the local replica is reconciled with the
// remote one.
//
// A Scheduler serves one context. It flushes (pull, merge, push) a short
// debounce after local mutations, polls the remote version while idle and
// absorbs changes from other devices with a pull-only merge, and seeds the
// replica with a pull when started or re-authenticated.
//
// All replica state is owned by a single control goroutine. Public methods
// are requests to that goroutine; remote calls run in worker goroutines and
// report back to it, so local edits are accepted while a flush is in flight.
// At most one remote operation is in flight at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/merge"
	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

var (
	// ErrNotSeeded is returned for mutations before the replica has been
	// seeded by a pull or from persisted state.
	ErrNotSeeded = errors.New("replica not seeded yet; waiting for the first pull")

	// ErrStopped is returned by requests to a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")

	// ErrNotStarted is returned by requests before Start.
	ErrNotStarted = errors.New("scheduler not started")
)

// Storage is the local persistence the scheduler reads at start and writes
// after every mutation and adopted merge.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	SetMany(values map[string][]byte) error
}

// Scheduler reconciles the replica of one context.
type Scheduler struct {
	scope   scope.Context
	remote  remote.Store
	storage Storage
	config  *Config

	requests chan func()
	results  chan func()
	started  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the control goroutine.
	ds       *schema.Dataset
	ledger   *tombstone.Ledger
	version  remote.Version
	seeded   bool
	dirty    bool
	flushing bool
	polling  bool

	flushDue    bool // debounce fired or FlushNow asked; flush when possible
	pullPending bool // seed pull requested

	debounce  *time.Timer
	debounceC <-chan time.Time

	flushWaiters   []chan error // waiting for the next flush to start
	inFlushWaiters []chan error // waiting for the flush in flight
	pullWaiters    []chan error
	inPullWaiters  []chan error

	lastState State
	lastSync  time.Time
	lastErr   error
}

// New creates a scheduler for context c, loading any persisted replica
// state for c from storage. Use Start to begin syncing.
func New(c scope.Context, store remote.Store, storage Storage) (*Scheduler, error) {
	return NewWithConfig(c, store, storage, DefaultConfig())
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(c scope.Context, store remote.Store, storage Storage, config *Config) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid context: %w", err)
	}
	config = config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		scope:    c,
		remote:   store,
		storage:  storage,
		config:   config,
		requests: make(chan func()),
		results:  make(chan func(), 1),
		ctx:      ctx,
		cancel:   cancel,
		ds:       &schema.Dataset{},
		ledger:   tombstone.NewLedger(nil),
	}
	if err := s.load(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) load() error {
	get := func(name string) ([]byte, bool, error) {
		data, ok, err := s.storage.Get(localstore.Key(s.scope, name))
		if err != nil {
			return nil, false, fmt.Errorf("failed to load %s for %s: %w", name, s.scope, err)
		}
		return data, ok, nil
	}

	data, ok, err := get(localstore.KeyDataset)
	if err != nil {
		return err
	}
	if ok {
		ds, err := schema.DecodeDataset(data)
		if err != nil {
			s.config.Logger.Printf("Warning: persisted dataset for %s is unreadable, waiting for a pull: %v", s.scope, err)
		} else {
			s.ds = ds
			s.seeded = true
		}
	}

	data, ok, err = get(localstore.KeyTombstones)
	if err != nil {
		return err
	}
	if ok {
		tombs, err := tombstone.Decode(data)
		if err != nil {
			s.config.Logger.Printf("Warning: persisted tombstones for %s are unreadable: %v", s.scope, err)
		}
		s.ledger = tombstone.NewLedger(tombs)
		merge.Prune(s.ds, tombs)
	}

	data, ok, err = get(localstore.KeyVersion)
	if err != nil {
		return err
	}
	if ok {
		s.version = remote.Version(data)
	}

	data, ok, err = get(localstore.KeyDirty)
	if err != nil {
		return err
	}
	s.dirty = ok && string(data) == "1" && s.seeded
	return nil
}

// Context returns the context this scheduler serves.
func (s *Scheduler) Context() scope.Context {
	return s.scope
}

// Start launches the control goroutine and requests the seed pull. When
// persisted state was dirty, a flush follows the seed pull.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.config.Logger.Printf("Starting scheduler for %s (seeded=%v dirty=%v)", s.scope, s.seeded, s.dirty)

	s.pullPending = true
	s.flushDue = s.dirty
	s.lastState = s.state()

	s.wg.Add(1)
	go s.run()
}

// Stop cancels timers and in-flight pulls and polls and waits for the
// control goroutine to exit. A push already in flight is allowed to finish
// within CallTimeout, and Stop waits for it, but its result is discarded.
// Pending local edits are not flushed; they stay in local persistence,
// marked dirty, until the context is selected again.
func (s *Scheduler) Stop() error {
	s.cancel()
	s.wg.Wait()
	if s.started.Load() {
		s.config.Logger.Printf("Scheduler for %s stopped", s.scope)
	}
	return nil
}

// Update applies fn to the replica. fn runs on a copy; if it returns an
// error the replica is left unchanged. A successful update marks the
// replica dirty and re-arms the debounce.
func (s *Scheduler) Update(fn func(ds *schema.Dataset) error) error {
	var err error
	if cerr := s.call(func() { err = s.mutate(fn, nil) }); cerr != nil {
		return cerr
	}
	return err
}

// Delete records ids in the tombstone ledger and removes those entities
// from the replica at every nesting level. It returns the number of
// entities removed; recording an id that is not present is still a
// deletion, so a stale copy elsewhere cannot bring it back.
func (s *Scheduler) Delete(ids ...string) (int, error) {
	var (
		removed int
		err     error
	)
	cerr := s.call(func() {
		err = s.mutate(nil, func(ds *schema.Dataset, l *tombstone.Ledger) {
			for _, id := range ids {
				removed += l.Record(ds, id)
			}
		})
	})
	if cerr != nil {
		return 0, cerr
	}
	return removed, err
}

// Snapshot returns deep copies of the replica, its tombstones and the last
// known remote version.
func (s *Scheduler) Snapshot() (*schema.Dataset, tombstone.Set, remote.Version, error) {
	var (
		ds    *schema.Dataset
		tombs tombstone.Set
		v     remote.Version
	)
	err := s.call(func() {
		ds = s.ds.Clone()
		tombs = s.ledger.Set()
		v = s.version
	})
	return ds, tombs, v, err
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() (Status, error) {
	var st Status
	err := s.call(func() {
		st = Status{
			Context:    s.scope,
			State:      s.state(),
			Seeded:     s.seeded,
			Dirty:      s.dirty,
			Version:    s.version,
			LastSync:   s.lastSync,
			Tombstones: s.ledger.Set().Len(),
		}
		if s.lastErr != nil {
			st.LastError = s.lastErr.Error()
		}
	})
	return st, err
}

// Authenticate forces a pull-only merge, as after sign-in, and waits for
// it. It seeds an unseeded replica.
func (s *Scheduler) Authenticate(ctx context.Context) error {
	done := make(chan error, 1)
	if err := s.call(func() {
		s.pullPending = true
		s.pullWaiters = append(s.pullWaiters, done)
		s.kick()
	}); err != nil {
		return err
	}
	return wait(ctx, done)
}

// FlushNow starts a flush as soon as nothing else is in flight, whether or
// not the replica is dirty, and waits for it. A flush already in flight
// does not count: the one FlushNow waits for starts after the call.
func (s *Scheduler) FlushNow(ctx context.Context) error {
	done := make(chan error, 1)
	if err := s.call(func() {
		if !s.seeded && !s.polling {
			s.pullPending = true
		}
		s.flushDue = true
		s.flushWaiters = append(s.flushWaiters, done)
		s.kick()
	}); err != nil {
		return err
	}
	return wait(ctx, done)
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the control goroutine and waits for it.
func (s *Scheduler) call(fn func()) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	done := make(chan struct{})
	select {
	case s.requests <- func() { fn(); close(done) }:
	case <-s.ctx.Done():
		return ErrStopped
	}
	<-done
	return nil
}

// run is the control loop.
func (s *Scheduler) run() {
	defer s.wg.Done()

	poll := time.NewTicker(s.config.PollInterval)
	defer poll.Stop()
	defer s.stopDebounce()

	s.kick()
	s.emitState()

	for {
		select {
		case <-s.ctx.Done():
			s.failWaiters(ErrStopped)
			return

		case fn := <-s.requests:
			fn()

		case fn := <-s.results:
			fn()

		case <-s.debounceC:
			s.debounceC = nil
			if s.dirty {
				s.flushDue = true
			}
			s.kick()

		case <-poll.C:
			s.onPollTick()
		}
		s.emitState()
	}
}

func (s *Scheduler) state() State {
	switch {
	case s.flushing:
		return Flushing
	case s.polling:
		return Polling
	case s.dirty:
		return Dirty
	default:
		return Idle
	}
}

func (s *Scheduler) emitState() {
	st := s.state()
	if st == s.lastState {
		return
	}
	s.lastState = st
	s.emit(Event{Kind: EventState})
}

func (s *Scheduler) emit(e Event) {
	if s.config.Observer == nil {
		return
	}
	e.Context = s.scope
	e.State = s.state()
	if e.Version == "" {
		e.Version = s.version
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.config.Observer(e)
}

// kick starts whatever remote work is due. A seed pull goes before a flush.
func (s *Scheduler) kick() {
	if s.flushing || s.polling {
		return
	}
	if s.pullPending {
		s.startPull()
		return
	}
	if s.flushDue && s.seeded {
		s.startFlush()
	}
}

func (s *Scheduler) armDebounce() {
	s.stopDebounce()
	s.debounce = time.NewTimer(s.config.DebounceInterval)
	s.debounceC = s.debounce.C
}

func (s *Scheduler) stopDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceC = nil
}

func (s *Scheduler) failWaiters(err error) {
	for _, group := range [][]chan error{s.flushWaiters, s.inFlushWaiters, s.pullWaiters, s.inPullWaiters} {
		notify(group, err)
	}
	s.flushWaiters, s.inFlushWaiters, s.pullWaiters, s.inPullWaiters = nil, nil, nil, nil
}

func notify(waiters []chan error, err error) {
	for _, w := range waiters {
		w <- err
	}
}

// mutate runs a local edit. update works on a copy that replaces the
// replica on success; remove edits the replica and ledger in place.
func (s *Scheduler) mutate(update func(*schema.Dataset) error, remove func(*schema.Dataset, *tombstone.Ledger)) error {
	if !s.seeded {
		return ErrNotSeeded
	}
	if update != nil {
		next := s.ds.Clone()
		if err := update(next); err != nil {
			return err
		}
		s.ds = next
	}
	if remove != nil {
		remove(s.ds, s.ledger)
	}

	s.dirty = true
	s.armDebounce()
	s.persist(false)
	s.emit(Event{Kind: EventMutation})
	return nil
}

// persist writes the replica. withVersion also records the remote version.
func (s *Scheduler) persist(withVersion bool) {
	data, err := s.ds.Encode()
	if err != nil {
		s.config.Logger.Printf("Error encoding replica: %v", err)
		return
	}
	tombs, err := s.ledger.Set().MarshalJSON()
	if err != nil {
		s.config.Logger.Printf("Error encoding tombstones: %v", err)
		return
	}
	dirty := "0"
	if s.dirty {
		dirty = "1"
	}
	values := map[string][]byte{
		localstore.Key(s.scope, localstore.KeyDataset):    data,
		localstore.Key(s.scope, localstore.KeyTombstones): tombs,
		localstore.Key(s.scope, localstore.KeyDirty):      []byte(dirty),
	}
	if withVersion {
		values[localstore.Key(s.scope, localstore.KeyVersion)] = []byte(s.version)
	}
	if err := s.storage.SetMany(values); err != nil {
		s.config.Logger.Printf("Error persisting replica for %s: %v", s.scope, err)
	}
}

// adopt folds a remote result into the current replica. The current replica
// is the local side, so edits made while the remote call was in flight are
// kept.
func (s *Scheduler) adopt(ds *schema.Dataset, tombs tombstone.Set, v remote.Version) merge.Stats {
	s.ledger.Merge(tombs)
	merged, stats := merge.MergeWithReport(s.ds, ds, s.ledger.Set())
	s.ds = merged
	s.version = v
	s.seeded = true
	s.lastSync = time.Now()
	s.lastErr = nil
	s.persist(true)
	return stats
}

func (s *Scheduler) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.config.CallTimeout)
}

// pushContext outlives Stop: only CallTimeout bounds a push.
func (s *Scheduler) pushContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.ctx), s.config.CallTimeout)
}

// report hands a worker's result to the control goroutine. Results that
// arrive after Stop are dropped.
func (s *Scheduler) report(fn func()) {
	select {
	case s.results <- fn:
	case <-s.ctx.Done():
	}
}
