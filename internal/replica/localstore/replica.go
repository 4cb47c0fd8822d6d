package localstore

import (
	"context"
	"fmt"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Replica is the persisted state of one context, read without a running
// scheduler.
type Replica struct {
	Context    scope.Context
	Dataset    *schema.Dataset
	Tombstones tombstone.Set
	Version    remote.Version
	Seeded     bool
	Dirty      bool
}

// LoadReplica reads the persisted replica of c. A context that was never
// seeded returns an empty, unseeded replica.
func (s *Store) LoadReplica(ctx context.Context, c scope.Context) (*Replica, error) {
	r := &Replica{Context: c, Dataset: &schema.Dataset{}, Tombstones: tombstone.New()}

	data, ok, err := s.GetContext(ctx, Key(c, KeyDataset))
	if err != nil {
		return nil, err
	}
	if ok {
		ds, err := schema.DecodeDataset(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode replica of %s: %w", c, err)
		}
		r.Dataset = ds
		r.Seeded = true
	}

	data, ok, err = s.GetContext(ctx, Key(c, KeyTombstones))
	if err != nil {
		return nil, err
	}
	if ok {
		tombs, err := tombstone.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tombstones of %s: %w", c, err)
		}
		r.Tombstones = tombs
	}

	data, ok, err = s.GetContext(ctx, Key(c, KeyVersion))
	if err != nil {
		return nil, err
	}
	if ok {
		r.Version = remote.Version(data)
	}

	data, ok, err = s.GetContext(ctx, Key(c, KeyDirty))
	if err != nil {
		return nil, err
	}
	r.Dirty = ok && string(data) == "1" && r.Seeded
	return r, nil
}
