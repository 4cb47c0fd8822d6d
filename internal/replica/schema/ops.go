package schema

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an edit names a parent that does not exist.
var ErrNotFound = errors.New("not found")

// FindApiary returns the apiary with the given id, or nil.
func (d *Dataset) FindApiary(id string) *Apiary {
	for i := range d.Apiaries {
		if d.Apiaries[i].ID == id {
			return &d.Apiaries[i]
		}
	}
	return nil
}

// FindHive returns the hive with the given id and the apiary that owns it.
func (d *Dataset) FindHive(id string) (*Apiary, *Hive) {
	for i := range d.Apiaries {
		if h := d.Apiaries[i].FindHive(id); h != nil {
			return &d.Apiaries[i], h
		}
	}
	return nil, nil
}

// UpsertApiary replaces the apiary's own fields, or appends it. A nil Hives
// slice on the incoming value keeps the hives already present.
func (d *Dataset) UpsertApiary(a Apiary) {
	if cur := d.FindApiary(a.ID); cur != nil {
		if a.Hives == nil {
			a.Hives = cur.Hives
		}
		*cur = a
		return
	}
	d.Apiaries = append(d.Apiaries, a)
}

// UpsertHive replaces the hive's own fields inside apiaryID, or appends it.
// Nil nested collections on the incoming value keep the existing records.
func (d *Dataset) UpsertHive(apiaryID string, h Hive) error {
	a := d.FindApiary(apiaryID)
	if a == nil {
		return fmt.Errorf("apiary %s: %w", apiaryID, ErrNotFound)
	}
	if cur := a.FindHive(h.ID); cur != nil {
		if h.Inspections == nil {
			h.Inspections = cur.Inspections
		}
		if h.Movements == nil {
			h.Movements = cur.Movements
		}
		if h.Production == nil {
			h.Production = cur.Production
		}
		*cur = h
		return nil
	}
	if owner, _ := d.FindHive(h.ID); owner != nil {
		return fmt.Errorf("hive %s already belongs to apiary %s; move it instead", h.ID, owner.ID)
	}
	a.Hives = append(a.Hives, h)
	return nil
}

// UpsertInspection records or replaces an inspection on a hive.
func (d *Dataset) UpsertInspection(hiveID string, in Inspection) error {
	_, h := d.FindHive(hiveID)
	if h == nil {
		return fmt.Errorf("hive %s: %w", hiveID, ErrNotFound)
	}
	h.Inspections = upsert(h.Inspections, in, func(v Inspection) string { return v.ID })
	return nil
}

// UpsertMovement records or replaces a movement on a hive.
func (d *Dataset) UpsertMovement(hiveID string, m Movement) error {
	_, h := d.FindHive(hiveID)
	if h == nil {
		return fmt.Errorf("hive %s: %w", hiveID, ErrNotFound)
	}
	h.Movements = upsert(h.Movements, m, func(v Movement) string { return v.ID })
	return nil
}

// UpsertProduction records or replaces a production record on a hive.
func (d *Dataset) UpsertProduction(hiveID string, p ProductionRecord) error {
	_, h := d.FindHive(hiveID)
	if h == nil {
		return fmt.Errorf("hive %s: %w", hiveID, ErrNotFound)
	}
	h.Production = upsert(h.Production, p, func(v ProductionRecord) string { return v.ID })
	return nil
}

// UpsertEvent records or replaces a calendar event.
func (d *Dataset) UpsertEvent(e CalendarEvent) {
	d.CalendarEvents = upsert(d.CalendarEvents, e, func(v CalendarEvent) string { return v.ID })
}

// UpsertNote records or replaces a seasonal note. A nil Blooms slice keeps
// the blooms already present.
func (d *Dataset) UpsertNote(n SeasonalNote) {
	for i := range d.SeasonalNotes {
		if d.SeasonalNotes[i].ID == n.ID {
			if n.Blooms == nil {
				n.Blooms = d.SeasonalNotes[i].Blooms
			}
			d.SeasonalNotes[i] = n
			return
		}
	}
	d.SeasonalNotes = append(d.SeasonalNotes, n)
}

// MoveHive transfers a hive to another apiary: it is removed from its
// current apiary, a Movement is recorded on it, and it is appended to the
// destination. Moving a hive to the apiary it is already in is a no-op.
func (d *Dataset) MoveHive(hiveID, toApiaryID string, on Date, reason string) error {
	from, h := d.FindHive(hiveID)
	if h == nil {
		return fmt.Errorf("hive %s: %w", hiveID, ErrNotFound)
	}
	to := d.FindApiary(toApiaryID)
	if to == nil {
		return fmt.Errorf("apiary %s: %w", toApiaryID, ErrNotFound)
	}
	if from.ID == to.ID {
		return nil
	}

	moved := *h
	moved.Movements = append(moved.Movements, Movement{
		ID:           NewID(),
		Date:         on,
		FromApiaryID: from.ID,
		ToApiaryID:   to.ID,
		Reason:       reason,
	})

	from.Hives = filter(from.Hives, func(v *Hive) bool { return v.ID != hiveID })
	to.Hives = append(to.Hives, moved)
	return nil
}

func upsert[T any](in []T, v T, id func(T) string) []T {
	for i := range in {
		if id(in[i]) == id(v) {
			in[i] = v
			return in
		}
	}
	return append(in, v)
}
