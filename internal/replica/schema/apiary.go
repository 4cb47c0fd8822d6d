package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Hive status values used by the editor. Status is free text on the wire;
// these are the values the CLI offers.
const (
	StatusHealthy   = "Healthy"
	StatusWeak      = "Weak"
	StatusQueenless = "Queenless"
	StatusSwarmed   = "Swarmed"
	StatusDead      = "Dead"
)

// NewID returns a fresh client-generated entity id.
func NewID() string {
	return uuid.NewString()
}

// Apiary is the aggregate root: a site and the hives kept there.
type Apiary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Hives    []Hive   `json:"hives,omitempty"`
}

// Location is descriptive metadata about where an apiary sits.
type Location struct {
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Address   string  `json:"address,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

// Hive is a colony owned by exactly one apiary.
type Hive struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	Status      string             `json:"status,omitempty"`
	Type        string             `json:"type,omitempty"` // langstroth, top-bar, warre, ...
	Queen       Queen              `json:"queen"`
	Attributes  map[string]string  `json:"attributes,omitempty"`
	Inspections []Inspection       `json:"inspections,omitempty"`
	Movements   []Movement         `json:"movements,omitempty"`
	Production  []ProductionRecord `json:"productionRecords,omitempty"`
}

// Queen describes the hive's current queen.
type Queen struct {
	Year   int    `json:"year,omitempty"`
	Marked bool   `json:"marked,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Validate checks the apiary and every hive it owns.
func (a *Apiary) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(a.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(a.Name))
	}
	seen := make(map[string]bool, len(a.Hives))
	for i := range a.Hives {
		h := &a.Hives[i]
		if err := h.Validate(); err != nil {
			return fmt.Errorf("hive %d: %w", i, err)
		}
		if seen[h.ID] {
			return fmt.Errorf("duplicate hive id %s", h.ID)
		}
		seen[h.ID] = true
	}
	return nil
}

// Validate checks the hive's own fields and its leaf records.
func (h *Hive) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("id is required")
	}
	for i := range h.Inspections {
		if h.Inspections[i].ID == "" {
			return fmt.Errorf("inspection %d: id is required", i)
		}
	}
	for i := range h.Movements {
		if h.Movements[i].ID == "" {
			return fmt.Errorf("movement %d: id is required", i)
		}
	}
	for i := range h.Production {
		if err := h.Production[i].Validate(); err != nil {
			return fmt.Errorf("production record %d: %w", i, err)
		}
	}
	return nil
}

// FindHive returns a pointer to the hive with the given id, or nil.
func (a *Apiary) FindHive(id string) *Hive {
	for i := range a.Hives {
		if a.Hives[i].ID == id {
			return &a.Hives[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the apiary.
func (a Apiary) Clone() Apiary {
	out := a
	out.Hives = cloneSlice(a.Hives, Hive.Clone)
	return out
}

// Clone returns a deep copy of the hive.
func (h Hive) Clone() Hive {
	out := h
	out.Attributes = cloneMap(h.Attributes)
	out.Inspections = cloneSlice(h.Inspections, Inspection.Clone)
	out.Movements = cloneSlice(h.Movements, Movement.Clone)
	out.Production = cloneSlice(h.Production, ProductionRecord.Clone)
	return out
}

func cloneSlice[T any](in []T, clone func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = clone(v)
	}
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
