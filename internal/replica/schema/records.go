package schema

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Inspection is one visit to a hive.
type Inspection struct {
	ID          string            `json:"id"`
	Date        Date              `json:"date"`
	Notes       string            `json:"notes,omitempty"`
	QueenSeen   bool              `json:"queenSeen,omitempty"`
	BroodFrames int               `json:"broodFrames,omitempty"`
	Temperament string            `json:"temperament,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Movement records a hive transfer between apiaries.
type Movement struct {
	ID           string            `json:"id"`
	Date         Date              `json:"date"`
	FromApiaryID string            `json:"fromApiaryId,omitempty"`
	ToApiaryID   string            `json:"toApiaryId,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// ProductionRecord is one harvest (honey, wax, pollen, propolis ...).
type ProductionRecord struct {
	ID       string            `json:"id"`
	Date     Date              `json:"date"`
	Product  string            `json:"product,omitempty"`
	Quantity decimal.Decimal   `json:"quantity"`
	Unit     string            `json:"unit,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Validate checks the record's id and quantity.
func (p *ProductionRecord) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Quantity.IsNegative() {
		return fmt.Errorf("quantity must not be negative (got %s)", p.Quantity)
	}
	return nil
}

// Clone returns a deep copy of the inspection.
func (in Inspection) Clone() Inspection {
	in.Fields = cloneMap(in.Fields)
	return in
}

// Clone returns a deep copy of the movement.
func (m Movement) Clone() Movement {
	m.Fields = cloneMap(m.Fields)
	return m
}

// Clone returns a deep copy of the production record.
func (p ProductionRecord) Clone() ProductionRecord {
	p.Fields = cloneMap(p.Fields)
	return p
}
