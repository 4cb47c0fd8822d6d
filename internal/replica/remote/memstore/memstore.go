// Package memstore is an in-process remote.Store.
//
// It backs the "memory" remote driver, the convergence load test, and the
// scheduler tests. Snapshots are stored encoded, so callers never share
// memory with the store. Failure injection and push gating let tests put the
// store into the states a real network produces.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Calls counts requests per operation.
type Calls struct {
	Pull int
	Push int
	Peek int
}

// Gate holds pushes until released.
type Gate struct {
	// Entered receives once per push that reaches the gate.
	Entered chan struct{}

	release chan struct{}
	once    sync.Once
}

// Release lets every held and future push through.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Store is an in-memory remote replica keyed by context.
type Store struct {
	mu      sync.Mutex
	parts   map[string][]byte
	seq     int
	latency time.Duration

	pullErr error
	pushErr error
	peekErr error
	gate    *Gate
	calls   Calls
}

// New returns an empty store.
func New() *Store {
	return &Store{parts: make(map[string][]byte)}
}

// SetLatency delays every call by d, honoring cancellation.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FailPull makes every Pull return err until cleared with nil.
func (s *Store) FailPull(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullErr = err
}

// FailPush makes every Push return err until cleared with nil.
func (s *Store) FailPush(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushErr = err
}

// FailPeek makes every PeekVersion return err until cleared with nil.
func (s *Store) FailPeek(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peekErr = err
}

// HoldPushes installs a gate that blocks pushes until it is released.
func (s *Store) HoldPushes() *Gate {
	g := &Gate{Entered: make(chan struct{}, 16), release: make(chan struct{})}
	s.mu.Lock()
	s.gate = g
	s.mu.Unlock()
	return g
}

// Calls returns the request counts so far.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Seed writes a snapshot directly, as if another device had pushed it.
func (s *Store) Seed(c scope.Context, ds *schema.Dataset, tombs tombstone.Set) remote.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.storeLocked(c, ds, tombs)
	if err != nil {
		panic(err)
	}
	return v
}

// Corrupt replaces the snapshot of c with bytes that do not parse.
func (s *Store) Corrupt(c scope.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[c.String()] = []byte(`{"dataset":`)
}

// Current decodes the stored snapshot of c.
func (s *Store) Current(c scope.Context) (remote.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.parts[c.String()]
	if !ok {
		return remote.Snapshot{}, false
	}
	snap, err := remote.DecodePayload(data)
	if err != nil {
		return remote.Snapshot{}, false
	}
	return snap, true
}

// Pull implements remote.Store.
func (s *Store) Pull(ctx context.Context, c scope.Context) (remote.Snapshot, error) {
	if err := s.wait(ctx); err != nil {
		return remote.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Pull++
	if s.pullErr != nil {
		return remote.Snapshot{}, s.pullErr
	}
	data, ok := s.parts[c.String()]
	if !ok {
		return remote.Snapshot{}, fmt.Errorf("context %s: %w", c, remote.ErrNotFound)
	}
	return remote.DecodePayload(data)
}

// Push implements remote.Store.
func (s *Store) Push(ctx context.Context, c scope.Context, ds *schema.Dataset, tombs tombstone.Set) (remote.Version, error) {
	s.mu.Lock()
	g := s.gate
	s.mu.Unlock()
	if g != nil {
		select {
		case g.Entered <- struct{}{}:
		default:
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", fmt.Errorf("push: %w: %v", remote.ErrUnreachable, ctx.Err())
		}
	}
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Push++
	if s.pushErr != nil {
		return "", s.pushErr
	}
	return s.storeLocked(c, ds, tombs)
}

// PeekVersion implements remote.Store.
func (s *Store) PeekVersion(ctx context.Context, c scope.Context) (remote.Version, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Peek++
	if s.peekErr != nil {
		return "", s.peekErr
	}
	data, ok := s.parts[c.String()]
	if !ok {
		return "", fmt.Errorf("context %s: %w", c, remote.ErrNotFound)
	}
	snap, err := remote.DecodePayload(data)
	if err != nil {
		return "", err
	}
	return snap.Version, nil
}

func (s *Store) storeLocked(c scope.Context, ds *schema.Dataset, tombs tombstone.Set) (remote.Version, error) {
	s.seq++
	v := remote.Version(fmt.Sprintf("v%d", s.seq))
	data, err := remote.EncodePayload(ds, tombs, v)
	if err != nil {
		return "", err
	}
	s.parts[c.String()] = data
	return v, nil
}

func (s *Store) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", remote.ErrUnreachable, err)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", remote.ErrUnreachable, ctx.Err())
	}
}

var _ remote.Store = (*Store)(nil)
