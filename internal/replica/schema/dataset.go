package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Dataset is one full replica document for a context.
type Dataset struct {
	Apiaries       []Apiary        `json:"apiaries,omitempty"`
	CalendarEvents []CalendarEvent `json:"calendarEvents,omitempty"`
	SeasonalNotes  []SeasonalNote  `json:"seasonalNotes,omitempty"`
}

// DecodeDataset parses a replica document. Empty input decodes to an empty
// dataset; invalid JSON is returned as an error so callers can decide to
// treat the snapshot as malformed.
func DecodeDataset(data []byte) (*Dataset, error) {
	ds := &Dataset{}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ds, nil
	}
	if err := json.Unmarshal(data, ds); err != nil {
		return &Dataset{}, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return ds, nil
}

// Encode marshals the dataset as compact JSON.
func (d *Dataset) Encode() ([]byte, error) {
	if d == nil {
		d = &Dataset{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dataset: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy. Cloning nil yields an empty dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return &Dataset{}
	}
	return &Dataset{
		Apiaries:       cloneSlice(d.Apiaries, Apiary.Clone),
		CalendarEvents: cloneSlice(d.CalendarEvents, func(e CalendarEvent) CalendarEvent { return e }),
		SeasonalNotes:  cloneSlice(d.SeasonalNotes, SeasonalNote.Clone),
	}
}

// IsEmpty reports whether the dataset holds no top-level entities.
func (d *Dataset) IsEmpty() bool {
	return d == nil || len(d.Apiaries)+len(d.CalendarEvents)+len(d.SeasonalNotes) == 0
}

// IDs returns every entity id in the dataset, at every nesting level.
func (d *Dataset) IDs() map[string]bool {
	ids := make(map[string]bool)
	if d == nil {
		return ids
	}
	for _, a := range d.Apiaries {
		ids[a.ID] = true
		for _, h := range a.Hives {
			ids[h.ID] = true
			for _, in := range h.Inspections {
				ids[in.ID] = true
			}
			for _, m := range h.Movements {
				ids[m.ID] = true
			}
			for _, p := range h.Production {
				ids[p.ID] = true
			}
		}
	}
	for _, e := range d.CalendarEvents {
		ids[e.ID] = true
	}
	for _, n := range d.SeasonalNotes {
		ids[n.ID] = true
		for _, b := range n.Blooms {
			ids[b.ID] = true
		}
	}
	return ids
}

// Contains reports whether id is reachable anywhere in the dataset.
func (d *Dataset) Contains(id string) bool {
	return d.IDs()[id]
}

// Remove excises every entity whose id matches, at every nesting level, and
// returns how many entities were dropped. Removing an apiary drops its hives
// with it.
func (d *Dataset) Remove(match func(id string) bool) int {
	if d == nil {
		return 0
	}
	removed := 0
	d.Apiaries = filter(d.Apiaries, func(a *Apiary) bool {
		if match(a.ID) {
			removed++
			return false
		}
		a.Hives = filter(a.Hives, func(h *Hive) bool {
			if match(h.ID) {
				removed++
				return false
			}
			h.Inspections = filter(h.Inspections, func(in *Inspection) bool { return keep(match, in.ID, &removed) })
			h.Movements = filter(h.Movements, func(m *Movement) bool { return keep(match, m.ID, &removed) })
			h.Production = filter(h.Production, func(p *ProductionRecord) bool { return keep(match, p.ID, &removed) })
			return true
		})
		return true
	})
	d.CalendarEvents = filter(d.CalendarEvents, func(e *CalendarEvent) bool { return keep(match, e.ID, &removed) })
	d.SeasonalNotes = filter(d.SeasonalNotes, func(n *SeasonalNote) bool {
		if match(n.ID) {
			removed++
			return false
		}
		n.Blooms = filter(n.Blooms, func(b *BloomRecord) bool { return keep(match, b.ID, &removed) })
		return true
	})
	return removed
}

func keep(match func(string) bool, id string, removed *int) bool {
	if match(id) {
		*removed++
		return false
	}
	return true
}

// filter keeps elements for which fn returns true, in order. fn may modify
// the element in place. A slice that ends up empty becomes nil so that
// filtered and never-populated collections compare equal.
func filter[T any](in []T, fn func(*T) bool) []T {
	var out []T
	for i := range in {
		if fn(&in[i]) {
			out = append(out, in[i])
		}
	}
	return out
}

// ReadDatasetFile reads and parses a dataset JSON file.
func ReadDatasetFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file %s: %w", path, err)
	}
	ds, err := DecodeDataset(data)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset file %s: %w", path, err)
	}
	return ds, nil
}

// WriteDatasetFile writes the dataset as pretty-printed JSON, creating the
// parent directory if needed.
func WriteDatasetFile(path string, d *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset file %s: %w", path, err)
	}
	return nil
}
