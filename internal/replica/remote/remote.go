// Package remote defines the boundary to the shared remote replica.
//
// A Store holds one snapshot per context: the full dataset, the tombstone
// set, and an opaque version token that changes on every successful push.
// Implementations live in subpackages (httpstore, sqlstore, s3store) and
// share the error taxonomy declared here, so the scheduler can treat every
// failure the same way: stay unconverged and retry on the next tick.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

var (
	// ErrUnreachable means the remote could not be contacted. Always
	// transient from the scheduler's point of view.
	ErrUnreachable = errors.New("remote unreachable")

	// ErrNotFound means the context has no snapshot yet. Pull callers treat
	// it as an empty remote.
	ErrNotFound = errors.New("remote snapshot not found")

	// ErrRejected means the remote refused the request, typically because
	// authorization was lost.
	ErrRejected = errors.New("remote rejected request")

	// ErrMalformedSnapshot means the stored payload could not be parsed.
	// Pull callers treat it as an empty remote.
	ErrMalformedSnapshot = errors.New("malformed remote snapshot")
)

// Version is an opaque token identifying one state of a remote snapshot.
// The empty Version means "never observed".
type Version string

// Snapshot is the remote replica of one context.
type Snapshot struct {
	Dataset    *schema.Dataset
	Tombstones tombstone.Set
	Version    Version
}

// Store is the remote replica. Timeouts on individual calls are the
// implementation's responsibility; callers pass a context for
// cancellation.
type Store interface {
	// Pull fetches the snapshot of c. It fails with ErrUnreachable,
	// ErrNotFound or ErrMalformedSnapshot.
	Pull(ctx context.Context, c scope.Context) (Snapshot, error)

	// Push replaces the snapshot of c and returns the new version. It fails
	// with ErrUnreachable or ErrRejected.
	Push(ctx context.Context, c scope.Context, ds *schema.Dataset, tombs tombstone.Set) (Version, error)

	// PeekVersion returns the current version of c without transferring the
	// dataset. It fails like Pull.
	PeekVersion(ctx context.Context, c scope.Context) (Version, error)
}

// Payload is the serialized form of a snapshot, shared by every backend so
// a dataset written by one can be read by another.
type Payload struct {
	Dataset    *schema.Dataset `json:"dataset"`
	Tombstones tombstone.Set   `json:"tombstones"`
	Version    Version         `json:"version,omitempty"`
}

// EncodePayload serializes a snapshot body.
func EncodePayload(ds *schema.Dataset, tombs tombstone.Set, v Version) ([]byte, error) {
	if ds == nil {
		ds = &schema.Dataset{}
	}
	if tombs == nil {
		tombs = tombstone.New()
	}
	data, err := json.Marshal(Payload{Dataset: ds, Tombstones: tombs, Version: v})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a snapshot body. A body that is not a payload is
// reported as ErrMalformedSnapshot.
func DecodePayload(data []byte) (Snapshot, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if p.Dataset == nil {
		p.Dataset = &schema.Dataset{}
	}
	if p.Tombstones == nil {
		p.Tombstones = tombstone.New()
	}
	return Snapshot{Dataset: p.Dataset, Tombstones: p.Tombstones, Version: p.Version}, nil
}

// Empty returns the snapshot used when the remote has nothing usable.
func Empty() Snapshot {
	return Snapshot{Dataset: &schema.Dataset{}, Tombstones: tombstone.New()}
}

// TreatAsEmpty reports whether a Pull error means "merge with nothing".
func TreatAsEmpty(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformedSnapshot)
}
