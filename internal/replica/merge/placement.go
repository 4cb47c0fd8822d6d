package merge

import "github.com/hivelog/hivesync/internal/replica/schema"

// resolvePlacement leaves every hive under exactly one apiary. A hive id
// found under several apiaries in out is the trace of a transfer on one
// replica meeting the old placement on the other. The hive is kept under
// the destination of its latest Movement when that apiary holds a copy,
// otherwise under the apiary the local replica places it in, otherwise
// under the first one. The kept copy is the merge of both replicas' hives.
func (m *merger) resolvePlacement(out, local, remote *schema.Dataset) {
	placements := make(map[string][]string)
	var order []string
	for _, a := range out.Apiaries {
		for _, h := range a.Hives {
			if _, ok := placements[h.ID]; !ok {
				order = append(order, h.ID)
			}
			placements[h.ID] = append(placements[h.ID], a.ID)
		}
	}

	for _, id := range order {
		owners := placements[id]
		if len(owners) < 2 {
			continue
		}
		m.stats.Relocated++

		content := m.placedHive(out, id, owners, local, remote)
		target := pickPlacement(owners, content.Movements, ownerOf(local, id))

		for i := range out.Apiaries {
			a := &out.Apiaries[i]
			if a.FindHive(id) == nil {
				continue
			}
			if a.ID == target {
				*a.FindHive(id) = content
				continue
			}
			var kept []schema.Hive
			for _, h := range a.Hives {
				if h.ID != id {
					kept = append(kept, h)
				}
			}
			a.Hives = kept
		}
	}
}

// placedHive builds the content of a relocated hive. When both replicas
// hold the hive it is their merge; otherwise the copies found in out are
// folded together in order.
func (m *merger) placedHive(out *schema.Dataset, id string, owners []string, local, remote *schema.Dataset) schema.Hive {
	quiet := &merger{tombs: m.tombs}
	_, lh := local.FindHive(id)
	_, rh := remote.FindHive(id)
	if lh != nil && rh != nil {
		return quiet.hive(lh, rh)
	}

	content := *out.FindApiary(owners[0]).FindHive(id)
	for _, owner := range owners[1:] {
		content = quiet.hive(&content, out.FindApiary(owner).FindHive(id))
	}
	return content
}

func pickPlacement(owners []string, movements []schema.Movement, localOwner string) string {
	has := func(id string) bool {
		for _, o := range owners {
			if o == id {
				return true
			}
		}
		return false
	}

	dests := latestDestinations(movements)
	for _, d := range dests {
		if d == localOwner && has(d) {
			return d
		}
	}
	for _, d := range dests {
		if has(d) {
			return d
		}
	}
	if localOwner != "" && has(localOwner) {
		return localOwner
	}
	return owners[0]
}

// latestDestinations returns the destination apiaries of the movements on
// the most recent movement date, later-recorded movements first.
func latestDestinations(movements []schema.Movement) []string {
	var latest schema.Date
	for _, mv := range movements {
		if mv.ToApiaryID != "" && mv.Date.After(latest.Time) {
			latest = mv.Date
		}
	}
	var dests []string
	for i := len(movements) - 1; i >= 0; i-- {
		mv := movements[i]
		if mv.ToApiaryID != "" && mv.Date.Equal(latest) {
			dests = append(dests, mv.ToApiaryID)
		}
	}
	return dests
}

func ownerOf(ds *schema.Dataset, hiveID string) string {
	a, _ := ds.FindHive(hiveID)
	if a == nil {
		return ""
	}
	return a.ID
}
