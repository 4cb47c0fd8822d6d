package merge

import (
	"fmt"

	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Stats describes what a merge did. Counts cover every nesting level.
type Stats struct {
	Conflicts  int // entities present on both sides
	LocalOnly  int
	RemoteOnly int
	Dropped    int // entities removed because their id is tombstoned
	Relocated  int // hives found under more than one apiary
}

// String formats the stats for log lines.
func (s Stats) String() string {
	return fmt.Sprintf("conflicts=%d local_only=%d remote_only=%d dropped=%d relocated=%d",
		s.Conflicts, s.LocalOnly, s.RemoteOnly, s.Dropped, s.Relocated)
}

// Merge returns the converged dataset for local, remote and tombstones.
func Merge(local, remote *schema.Dataset, tombstones tombstone.Set) *schema.Dataset {
	out, _ := MergeWithReport(local, remote, tombstones)
	return out
}

// MergeWithReport is Merge, also reporting what the merge did.
func MergeWithReport(local, remote *schema.Dataset, tombstones tombstone.Set) (*schema.Dataset, Stats) {
	if local == nil {
		local = &schema.Dataset{}
	}
	if remote == nil {
		remote = &schema.Dataset{}
	}

	m := &merger{tombs: tombstones}
	out := &schema.Dataset{
		Apiaries:       mergeSlice(m, local.Apiaries, remote.Apiaries, apiaryID, m.apiary),
		CalendarEvents: mergeSlice(m, local.CalendarEvents, remote.CalendarEvents, eventID, m.event),
		SeasonalNotes:  mergeSlice(m, local.SeasonalNotes, remote.SeasonalNotes, noteID, m.note),
	}
	m.resolvePlacement(out, local, remote)
	return out, m.stats
}

// Prune removes every entity whose id is in ids, at every nesting level,
// and returns how many were removed.
func Prune(ds *schema.Dataset, ids tombstone.Set) int {
	if ds == nil || ids.Len() == 0 {
		return 0
	}
	return ds.Remove(ids.Has)
}

type merger struct {
	tombs tombstone.Set
	stats Stats
}

// mergeSlice merges one collection level. merge is called with both
// pointers set for a conflict and with one of them nil for a one-sided
// entity. The first occurrence of a duplicated id within a side wins.
func mergeSlice[T any](m *merger, local, remote []T, id func(*T) string, merge func(l, r *T) T) []T {
	remoteIdx := make(map[string]int, len(remote))
	for i := range remote {
		k := id(&remote[i])
		if _, dup := remoteIdx[k]; !dup {
			remoteIdx[k] = i
		}
	}

	var out []T
	seen := make(map[string]bool, len(local)+len(remote))
	for i := range local {
		k := id(&local[i])
		if seen[k] {
			continue
		}
		seen[k] = true
		if m.tombs.Has(k) {
			m.stats.Dropped++
			continue
		}
		if j, ok := remoteIdx[k]; ok {
			m.stats.Conflicts++
			out = append(out, merge(&local[i], &remote[j]))
			continue
		}
		m.stats.LocalOnly++
		out = append(out, merge(&local[i], nil))
	}
	for i := range remote {
		k := id(&remote[i])
		if seen[k] {
			continue
		}
		seen[k] = true
		if m.tombs.Has(k) {
			m.stats.Dropped++
			continue
		}
		m.stats.RemoteOnly++
		out = append(out, merge(nil, &remote[i]))
	}
	return out
}

// overlay returns remote's keys overwritten by local's. Both empty yields nil.
func overlay(remote, local map[string]string) map[string]string {
	if len(remote)+len(local) == 0 {
		return nil
	}
	out := make(map[string]string, len(remote)+len(local))
	for k, v := range remote {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

// sides returns the version whose scalars win, and non-nil stand-ins for
// an absent side.
func sides[T any](l, r *T) (base, local, remote *T) {
	var zero T
	base = l
	if base == nil {
		base = r
	}
	if l == nil {
		l = &zero
	}
	if r == nil {
		r = &zero
	}
	return base, l, r
}
