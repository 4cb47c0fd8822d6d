package merge

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// universe is the pool of ids random replicas draw from, so that the two
// sides overlap the way replicas of one account do.
const (
	numApiaries    = 4
	numHives       = 8
	numInspections = 16
	numEvents      = 4
	numNotes       = 3
	numBlooms      = 6
)

var statuses = []string{schema.StatusHealthy, schema.StatusWeak, schema.StatusQueenless, schema.StatusSwarmed}

func randomReplica(rng *rand.Rand) *schema.Dataset {
	ds := &schema.Dataset{}
	for i := range numApiaries {
		if rng.Float64() < 0.75 {
			ds.Apiaries = append(ds.Apiaries, schema.Apiary{
				ID:   fmt.Sprintf("a%d", i),
				Name: fmt.Sprintf("apiary %d v%d", i, rng.IntN(3)),
			})
		}
	}
	if len(ds.Apiaries) > 0 {
		for i := range numHives {
			if rng.Float64() < 0.3 {
				continue
			}
			a := &ds.Apiaries[rng.IntN(len(ds.Apiaries))]
			h := schema.Hive{
				ID:     fmt.Sprintf("h%d", i),
				Status: statuses[rng.IntN(len(statuses))],
			}
			if rng.Float64() < 0.5 {
				h.Attributes = map[string]string{fmt.Sprintf("k%d", rng.IntN(3)): fmt.Sprintf("v%d", rng.IntN(3))}
			}
			if rng.Float64() < 0.4 {
				h.Movements = append(h.Movements, schema.Movement{
					ID:         fmt.Sprintf("m-%s-%s", h.ID, a.ID),
					Date:       day(2024, 6, 1+rng.IntN(3)),
					ToApiaryID: a.ID,
				})
			}
			for j := i; j < numInspections; j += numHives {
				if rng.Float64() < 0.5 {
					h.Inspections = append(h.Inspections, schema.Inspection{
						ID:    fmt.Sprintf("i%d", j),
						Notes: fmt.Sprintf("n%d", rng.IntN(3)),
					})
				}
			}
			a.Hives = append(a.Hives, h)
		}
	}
	for i := range numEvents {
		if rng.Float64() < 0.6 {
			ds.CalendarEvents = append(ds.CalendarEvents, schema.CalendarEvent{ID: fmt.Sprintf("e%d", i), Title: fmt.Sprintf("t%d", rng.IntN(3))})
		}
	}
	for i := range numNotes {
		if rng.Float64() < 0.6 {
			n := schema.SeasonalNote{ID: fmt.Sprintf("n%d", i), Content: fmt.Sprintf("c%d", rng.IntN(3)), UpdatedAt: at(rng.IntN(3))}
			for j := i; j < numBlooms; j += numNotes {
				if rng.Float64() < 0.5 {
					n.Blooms = append(n.Blooms, schema.BloomRecord{ID: fmt.Sprintf("b%d", j), Intensity: fmt.Sprintf("x%d", rng.IntN(2))})
				}
			}
			ds.SeasonalNotes = append(ds.SeasonalNotes, n)
		}
	}
	return ds
}

func randomTombstones(rng *rand.Rand, local, remote *schema.Dataset) tombstone.Set {
	t := tombstone.New()
	for id := range local.IDs() {
		if rng.Float64() < 0.1 {
			t.Add(id)
		}
	}
	for id := range remote.IDs() {
		if rng.Float64() < 0.1 {
			t.Add(id)
		}
	}
	return t
}

func TestMerge_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1024))

	for i := range 500 {
		local := randomReplica(rng)
		remote := randomReplica(rng)
		tombs := randomTombstones(rng, local, remote)
		name := fmt.Sprintf("case %d", i)

		got := Merge(local, remote, tombs)

		t.Run(name+"/idempotent", func(t *testing.T) {
			assertDataset(t, got, Merge(got, remote, tombs))
		})

		t.Run(name+"/tombstones win", func(t *testing.T) {
			for id := range got.IDs() {
				if tombs.Has(id) {
					t.Errorf("tombstoned id %s in result", id)
				}
			}
		})

		t.Run(name+"/one placement per hive", func(t *testing.T) {
			seen := make(map[string]string)
			for _, a := range got.Apiaries {
				for _, h := range a.Hives {
					if prev, ok := seen[h.ID]; ok {
						t.Errorf("hive %s under both %s and %s", h.ID, prev, a.ID)
					}
					seen[h.ID] = a.ID
				}
			}
		})

		t.Run(name+"/nothing lost", func(t *testing.T) {
			ids := got.IDs()
			for _, side := range []*schema.Dataset{local, remote} {
				for _, id := range survivors(side, tombs) {
					if !ids[id] {
						t.Errorf("untombstoned id %s lost", id)
					}
				}
			}
		})
	}
}

// survivors lists the ids of side that must reach the merge result: those
// neither tombstoned themselves nor owned by a tombstoned parent.
func survivors(side *schema.Dataset, tombs tombstone.Set) []string {
	var ids []string
	for _, a := range side.Apiaries {
		if tombs.Has(a.ID) {
			continue
		}
		ids = append(ids, a.ID)
		for _, h := range a.Hives {
			if tombs.Has(h.ID) {
				continue
			}
			ids = append(ids, h.ID)
			for _, in := range h.Inspections {
				if !tombs.Has(in.ID) {
					ids = append(ids, in.ID)
				}
			}
		}
	}
	for _, e := range side.CalendarEvents {
		if !tombs.Has(e.ID) {
			ids = append(ids, e.ID)
		}
	}
	for _, n := range side.SeasonalNotes {
		if tombs.Has(n.ID) {
			continue
		}
		ids = append(ids, n.ID)
		for _, b := range n.Blooms {
			if !tombs.Has(b.ID) {
				ids = append(ids, b.ID)
			}
		}
	}
	return ids
}
