// Package tombstone holds the ever-growing set of deleted entity ids that
// travels with every sync payload.
//
// An id that enters the set must never reappear in a merged dataset, at any
// nesting level. The set is union-merged between replicas at every
// reconciliation and is never pruned.
package tombstone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hivelog/hivesync/internal/replica/schema"
)

// Set is a set of deleted entity ids. The zero value (nil) is an empty set
// that can be read but not written; use New or Union to get a writable one.
type Set map[string]struct{}

// New returns a set holding ids.
func New(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was new.
func (s Set) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports whether id has been deleted.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids.
func (s Set) Len() int {
	return len(s)
}

// IDs returns the ids in sorted order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	return Union(s, nil)
}

// Union returns a new set holding every id of a and b. Neither input is
// modified.
func Union(a, b Set) Set {
	out := make(Set, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array so payloads are stable.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an array of ids. null decodes to an empty set.
func (s *Set) UnmarshalJSON(data []byte) error {
	*s = New()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to parse tombstones: %w", err)
	}
	for _, id := range ids {
		if id != "" {
			(*s)[id] = struct{}{}
		}
	}
	return nil
}

// Decode parses a persisted or pulled tombstone array. Empty input is an
// empty set.
func Decode(data []byte) (Set, error) {
	s := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := s.UnmarshalJSON(data); err != nil {
		return New(), err
	}
	return s, nil
}

// Ledger records local deletions. Recording an id excises the entity from
// the in-memory dataset immediately, so the next merge never sees it.
//
// A Ledger is not safe for concurrent use; the scheduler's control loop is
// its only writer.
type Ledger struct {
	ids Set
}

// NewLedger returns a ledger seeded with previously recorded ids.
func NewLedger(seed Set) *Ledger {
	return &Ledger{ids: seed.Clone()}
}

// Record adds id to the ledger and removes every entity with that id from
// ds at every nesting level. It returns the number of entities removed.
func (l *Ledger) Record(ds *schema.Dataset, id string) int {
	if id == "" {
		return 0
	}
	l.ids.Add(id)
	return ds.Remove(func(v string) bool { return v == id })
}

// Merge folds remote tombstones into the ledger.
func (l *Ledger) Merge(remote Set) {
	for id := range remote {
		l.ids[id] = struct{}{}
	}
}

// Has reports whether id has been recorded.
func (l *Ledger) Has(id string) bool {
	return l.ids.Has(id)
}

// Set returns a copy of the recorded ids.
func (l *Ledger) Set() Set {
	return l.ids.Clone()
}
