package merge

import "github.com/hivelog/hivesync/internal/replica/schema"

func apiaryID(a *schema.Apiary) string               { return a.ID }
func hiveID(h *schema.Hive) string                   { return h.ID }
func inspectionID(in *schema.Inspection) string      { return in.ID }
func movementID(mv *schema.Movement) string          { return mv.ID }
func productionID(p *schema.ProductionRecord) string { return p.ID }
func eventID(e *schema.CalendarEvent) string         { return e.ID }
func noteID(n *schema.SeasonalNote) string           { return n.ID }
func bloomID(b *schema.BloomRecord) string           { return b.ID }

func (m *merger) apiary(l, r *schema.Apiary) schema.Apiary {
	base, l, r := sides(l, r)
	out := *base
	out.Hives = mergeSlice(m, l.Hives, r.Hives, hiveID, m.hive)
	return out
}

func (m *merger) hive(l, r *schema.Hive) schema.Hive {
	base, l, r := sides(l, r)
	out := *base
	out.Attributes = overlay(r.Attributes, l.Attributes)
	out.Inspections = mergeSlice(m, l.Inspections, r.Inspections, inspectionID, m.inspection)
	out.Movements = mergeSlice(m, l.Movements, r.Movements, movementID, m.movement)
	out.Production = mergeSlice(m, l.Production, r.Production, productionID, m.production)
	return out
}

func (m *merger) inspection(l, r *schema.Inspection) schema.Inspection {
	base, l, r := sides(l, r)
	out := *base
	out.Fields = overlay(r.Fields, l.Fields)
	return out
}

func (m *merger) movement(l, r *schema.Movement) schema.Movement {
	base, l, r := sides(l, r)
	out := *base
	out.Fields = overlay(r.Fields, l.Fields)
	return out
}

func (m *merger) production(l, r *schema.ProductionRecord) schema.ProductionRecord {
	base, l, r := sides(l, r)
	out := *base
	out.Fields = overlay(r.Fields, l.Fields)
	return out
}

func (m *merger) event(l, r *schema.CalendarEvent) schema.CalendarEvent {
	base, _, _ := sides(l, r)
	return *base
}

func (m *merger) bloom(l, r *schema.BloomRecord) schema.BloomRecord {
	base, _, _ := sides(l, r)
	return *base
}

// note resolves seasonal notes by UpdatedAt. The newer version wins
// wholesale, a tie goes to local; blooms are merged either way.
func (m *merger) note(l, r *schema.SeasonalNote) schema.SeasonalNote {
	base, ll, rr := sides(l, r)
	if l != nil && r != nil && r.UpdatedAt.After(l.UpdatedAt.Time) {
		base = r
	}
	out := *base
	out.Blooms = mergeSlice(m, ll.Blooms, rr.Blooms, bloomID, m.bloom)
	return out
}
