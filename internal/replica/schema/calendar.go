package schema

import "fmt"

// CalendarEvent is a planned or completed beekeeping task.
type CalendarEvent struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     Date   `json:"date"`
	EndDate  Date   `json:"endDate"`
	Kind     string `json:"kind,omitempty"` // inspection, treatment, harvest, feeding, other
	ApiaryID string `json:"apiaryId,omitempty"`
	HiveID   string `json:"hiveId,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// SeasonalNote is free-form seasonal prose with a structured bloom list.
// UpdatedAt decides which side wins a conflict.
type SeasonalNote struct {
	ID        string        `json:"id"`
	Season    string        `json:"season,omitempty"`
	Year      int           `json:"year,omitempty"`
	Title     string        `json:"title,omitempty"`
	Content   string        `json:"content,omitempty"`
	UpdatedAt Timestamp     `json:"updatedAt"`
	Blooms    []BloomRecord `json:"blooms,omitempty"`
}

// BloomRecord notes a forage plant flowering near the apiaries.
type BloomRecord struct {
	ID        string `json:"id"`
	Plant     string `json:"plant"`
	StartDate Date   `json:"startDate"`
	EndDate   Date   `json:"endDate"`
	Intensity string `json:"intensity,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Validate checks the event's required fields.
func (e *CalendarEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !e.EndDate.IsZero() && e.EndDate.Before(e.Date.Time) {
		return fmt.Errorf("end date %s is before start date %s", e.EndDate, e.Date)
	}
	return nil
}

// Validate checks the note's required fields. A locally written note must
// carry an UpdatedAt, otherwise it could never win a conflict.
func (n *SeasonalNote) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if n.UpdatedAt.IsZero() {
		return fmt.Errorf("updatedAt is required")
	}
	for i := range n.Blooms {
		if n.Blooms[i].ID == "" {
			return fmt.Errorf("bloom %d: id is required", i)
		}
	}
	return nil
}

// Touch sets UpdatedAt to now. Call it on every local edit of the note.
func (n *SeasonalNote) Touch() {
	n.UpdatedAt = Now()
}

// Clone returns a deep copy of the note.
func (n SeasonalNote) Clone() SeasonalNote {
	n.Blooms = cloneSlice(n.Blooms, func(b BloomRecord) BloomRecord { return b })
	return n
}
