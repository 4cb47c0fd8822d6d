package scope

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
)

// Key is the local persistence key holding the current context.
const Key = "context"

// KV is the slice of local persistence the resolver needs.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Session is the per-context sync engine owned by a Resolver.
type Session interface {
	Stop() error
}

// Factory builds and starts the session for a context.
type Factory[S Session] func(ctx context.Context, c Context) (S, error)

// Resolver tracks which partition the local replica corresponds to and
// owns the one live session for it. Switching context is not a merge: the
// old session is stopped without flushing, and a new one is built that must
// seed itself before accepting edits.
type Resolver[S Session] struct {
	mu      sync.Mutex
	store   KV
	teams   map[string]bool
	factory Factory[S]
	logger  *log.Logger

	current Context
	session S
	started bool
}

// NewResolver loads the persisted context from store. A persisted team the
// account no longer belongs to falls back to Personal.
func NewResolver[S Session](store KV, teams []string, factory Factory[S], logger *log.Logger) (*Resolver[S], error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("factory cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[scope] ", log.LstdFlags)
	}

	r := &Resolver[S]{
		store:   store,
		teams:   make(map[string]bool, len(teams)),
		factory: factory,
		logger:  logger,
		current: PersonalContext(),
	}
	for _, t := range teams {
		r.teams[t] = true
	}

	data, ok, err := store.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	if ok {
		c, err := Parse(string(data))
		switch {
		case err != nil:
			logger.Printf("Ignoring unreadable persisted context %q: %v", data, err)
		case c.IsTeam() && !r.teams[c.TeamID]:
			logger.Printf("Persisted team %s is not configured, using personal", c.TeamID)
		default:
			r.current = c
		}
	}
	return r, nil
}

// Current returns the active context.
func (r *Resolver[S]) Current() Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Teams returns the configured team ids, sorted.
func (r *Resolver[S]) Teams() []string {
	teams := make([]string, 0, len(r.teams))
	for t := range r.teams {
		teams = append(teams, t)
	}
	sort.Strings(teams)
	return teams
}

// Session returns the live session, starting it for the current context on
// first use.
func (r *Resolver[S]) Session(ctx context.Context) (S, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return r.session, nil
	}
	s, err := r.factory(ctx, r.current)
	if err != nil {
		var zero S
		return zero, fmt.Errorf("failed to start session for %s: %w", r.current, err)
	}
	r.session = s
	r.started = true
	return s, nil
}

// Switch makes c the current context. The old session is stopped, the new
// context is persisted, and a fresh session is built for it. Switching to
// the current context is a no-op.
func (r *Resolver[S]) Switch(ctx context.Context, c Context) (S, error) {
	var zero S
	if err := c.Validate(); err != nil {
		return zero, err
	}
	if c.IsTeam() && !r.teams[c.TeamID] {
		return zero, fmt.Errorf("unknown team %q", c.TeamID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c == r.current && r.started {
		return r.session, nil
	}

	if r.started {
		if err := r.session.Stop(); err != nil {
			r.logger.Printf("Error stopping session for %s: %v", r.current, err)
		}
		r.session = zero
		r.started = false
	}

	if err := r.store.Set(Key, []byte(c.String())); err != nil {
		return zero, fmt.Errorf("failed to persist context: %w", err)
	}
	r.logger.Printf("Switched context %s -> %s", r.current, c)
	r.current = c

	s, err := r.factory(ctx, c)
	if err != nil {
		return zero, fmt.Errorf("failed to start session for %s: %w", c, err)
	}
	r.session = s
	r.started = true
	return s, nil
}

// Close stops the live session, if any.
func (r *Resolver[S]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	return r.session.Stop()
}
