package tombstone

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hivelog/hivesync/internal/replica/schema"
)

func TestUnion(t *testing.T) {
	a := New("h1", "i2")
	b := New("i2", "e9")

	got := Union(a, b)
	if diff := cmp.Diff([]string{"e9", "h1", "i2"}, got.IDs()); diff != "" {
		t.Errorf("Union() mismatch (-want +got):\n%s", diff)
	}
	if a.Len() != 2 || b.Len() != 2 {
		t.Error("Union() modified its inputs")
	}
	if Union(nil, nil).Len() != 0 {
		t.Error("Union of nil sets should be empty")
	}
}

func TestSet_JSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "array", input: `["b","a","a"]`, want: []string{"a", "b"}},
		{name: "null", input: `null`, want: []string{}},
		{name: "empty", input: ``, want: []string{}},
		{name: "blank ids skipped", input: `["", "x"]`, want: []string{"x"}},
		{name: "object", input: `{"a":true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, s.IDs()); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	data, err := json.Marshal(New("zeta", "alpha", "mid"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `["alpha","mid","zeta"]` {
		t.Errorf("Marshal() = %s, want sorted array", data)
	}
}

func TestLedger_RecordExcises(t *testing.T) {
	ds := &schema.Dataset{
		Apiaries: []schema.Apiary{{
			ID:   "a1",
			Name: "Orchard",
			Hives: []schema.Hive{
				{ID: "h1", Inspections: []schema.Inspection{{ID: "i1"}, {ID: "i2"}}},
				{ID: "h2"},
			},
		}},
	}

	l := NewLedger(New("old"))
	if n := l.Record(ds, "i2"); n != 1 {
		t.Errorf("Record(i2) removed %d, want 1", n)
	}
	if n := l.Record(ds, "h2"); n != 1 {
		t.Errorf("Record(h2) removed %d, want 1", n)
	}
	if n := l.Record(ds, "ghost"); n != 0 {
		t.Errorf("Record(ghost) removed %d, want 0", n)
	}

	for _, id := range []string{"i2", "h2"} {
		if ds.Contains(id) {
			t.Errorf("%s still reachable after Record", id)
		}
	}
	if !ds.Contains("i1") || !ds.Contains("h1") {
		t.Error("Record removed unrelated entities")
	}
	if diff := cmp.Diff([]string{"ghost", "h2", "i2", "old"}, l.Set().IDs()); diff != "" {
		t.Errorf("ledger ids mismatch (-want +got):\n%s", diff)
	}
}

func TestLedger_SetIsCopy(t *testing.T) {
	seed := New("a")
	l := NewLedger(seed)
	l.Merge(New("b"))

	s := l.Set()
	s.Add("c")

	if l.Has("c") {
		t.Error("mutating Set() result leaked into the ledger")
	}
	if seed.Has("b") {
		t.Error("ledger wrote through to its seed")
	}
	if !l.Has("b") {
		t.Error("Merge did not add remote ids")
	}
}
