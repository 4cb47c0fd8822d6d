// Package inbox applies local edits that arrive as JSON mutation files.
//
// One-shot CLI commands (and any other local tool) express an edit as a
// Mutation written atomically into <data-dir>/inbox. The daemon watches the
// directory with fsnotify and applies each file, oldest first, through the
// scheduler of the current context; the file is removed once applied. Files
// that can never apply (bad JSON, failed validation) are moved to
// inbox/rejected so they do not block the queue.
package inbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hivelog/hivesync/internal/replica/schema"
)

// Op is the kind of edit.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
	OpMove   Op = "move"
)

// Kind names the entity type an upsert carries.
type Kind string

const (
	KindApiary     Kind = "apiary"
	KindHive       Kind = "hive"
	KindInspection Kind = "inspection"
	KindMovement   Kind = "movement"
	KindProduction Kind = "production"
	KindEvent      Kind = "event"
	KindNote       Kind = "note"
)

// ErrInvalid marks mutations that can never be applied.
var ErrInvalid = errors.New("invalid mutation")

// Mutation is one local edit.
type Mutation struct {
	Op   Op   `json:"op"`
	Kind Kind `json:"kind,omitempty"`

	// ParentID is the owning apiary of a hive, or the owning hive of an
	// inspection, movement or production record.
	ParentID string          `json:"parentId,omitempty"`
	Entity   json.RawMessage `json:"entity,omitempty"`

	// IDs lists the entities a delete removes.
	IDs []string `json:"ids,omitempty"`

	// Move fields.
	HiveID     string      `json:"hiveId,omitempty"`
	ToApiaryID string      `json:"toApiaryId,omitempty"`
	Date       schema.Date `json:"date"`
	Reason     string      `json:"reason,omitempty"`
}

// Upsert builds an upsert mutation for entity.
func Upsert(kind Kind, parentID string, entity any) (Mutation, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return Mutation{Op: OpUpsert, Kind: kind, ParentID: parentID, Entity: data}, nil
}

// Delete builds a delete mutation.
func Delete(ids ...string) Mutation {
	return Mutation{Op: OpDelete, IDs: ids}
}

// Move builds a hive transfer mutation.
func Move(hiveID, toApiaryID string, on schema.Date, reason string) Mutation {
	return Mutation{Op: OpMove, HiveID: hiveID, ToApiaryID: toApiaryID, Date: on, Reason: reason}
}

// Validate checks the mutation's shape without touching a dataset.
func (m *Mutation) Validate() error {
	switch m.Op {
	case OpUpsert:
		if len(m.Entity) == 0 {
			return fmt.Errorf("%w: upsert without entity", ErrInvalid)
		}
		switch m.Kind {
		case KindApiary, KindEvent, KindNote:
		case KindHive, KindInspection, KindMovement, KindProduction:
			if m.ParentID == "" {
				return fmt.Errorf("%w: %s upsert requires parentId", ErrInvalid, m.Kind)
			}
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalid, m.Kind)
		}
	case OpDelete:
		if len(m.IDs) == 0 {
			return fmt.Errorf("%w: delete without ids", ErrInvalid)
		}
	case OpMove:
		if m.HiveID == "" || m.ToApiaryID == "" {
			return fmt.Errorf("%w: move requires hiveId and toApiaryId", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalid, m.Op)
	}
	return nil
}

// ApplyTo performs an upsert or move on ds. Deletes go through the
// tombstone ledger instead; see Apply.
func (m *Mutation) ApplyTo(ds *schema.Dataset) error {
	if err := m.Validate(); err != nil {
		return err
	}
	switch m.Op {
	case OpMove:
		on := m.Date
		if on.IsZero() {
			on = schema.NewDate(time.Now())
		}
		if err := ds.MoveHive(m.HiveID, m.ToApiaryID, on, m.Reason); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil
	case OpUpsert:
		return m.upsert(ds)
	default:
		return fmt.Errorf("%w: %s cannot be applied to a dataset", ErrInvalid, m.Op)
	}
}

func (m *Mutation) upsert(ds *schema.Dataset) error {
	var err error
	switch m.Kind {
	case KindApiary:
		var a schema.Apiary
		if err = decode(m.Entity, &a); err == nil {
			if err = a.Validate(); err == nil {
				ds.UpsertApiary(a)
			}
		}
	case KindHive:
		var h schema.Hive
		if err = decode(m.Entity, &h); err == nil {
			if err = h.Validate(); err == nil {
				err = ds.UpsertHive(m.ParentID, h)
			}
		}
	case KindInspection:
		var in schema.Inspection
		if err = decode(m.Entity, &in); err == nil {
			err = requireID(in.ID)
			if err == nil {
				err = ds.UpsertInspection(m.ParentID, in)
			}
		}
	case KindMovement:
		var mv schema.Movement
		if err = decode(m.Entity, &mv); err == nil {
			err = requireID(mv.ID)
			if err == nil {
				err = ds.UpsertMovement(m.ParentID, mv)
			}
		}
	case KindProduction:
		var p schema.ProductionRecord
		if err = decode(m.Entity, &p); err == nil {
			if err = p.Validate(); err == nil {
				err = ds.UpsertProduction(m.ParentID, p)
			}
		}
	case KindEvent:
		var e schema.CalendarEvent
		if err = decode(m.Entity, &e); err == nil {
			if err = e.Validate(); err == nil {
				ds.UpsertEvent(e)
			}
		}
	case KindNote:
		var n schema.SeasonalNote
		if err = decode(m.Entity, &n); err == nil {
			if n.UpdatedAt.IsZero() {
				n.Touch()
			}
			if err = n.Validate(); err == nil {
				ds.UpsertNote(n)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, m.Kind, err)
	}
	return nil
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse entity: %w", err)
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

// Applier receives mutations. *scheduler.Scheduler satisfies it.
type Applier interface {
	Update(fn func(ds *schema.Dataset) error) error
	Delete(ids ...string) (int, error)
}

// Apply sends m to target.
func (m *Mutation) Apply(target Applier) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Op == OpDelete {
		_, err := target.Delete(m.IDs...)
		return err
	}
	return target.Update(m.ApplyTo)
}
