package localstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hivelog/hivesync/internal/replica/scope"
)

// setupTestStore opens a store in a temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "replica.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesTables(t *testing.T) {
	s := setupTestStore(t)

	if filepath.Base(s.Path()) != "replica.db" {
		t.Errorf("Path() = %q", s.Path())
	}

	for _, table := range []string{"kv", "sync_log"} {
		var count int
		err := s.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := s.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestStore_GetSet(t *testing.T) {
	s := setupTestStore(t)

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}

	if err := s.Set("personal/dataset", []byte(`{"apiaries":[]}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Set("personal/dataset", []byte(`{}`)); err != nil {
		t.Fatalf("Set() overwrite failed: %v", err)
	}

	got, ok, err := s.Get("personal/dataset")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(got) != `{}` {
		t.Errorf("Get() = %q, want {}", got)
	}

	if err := s.Set("empty", nil); err != nil {
		t.Fatalf("Set(nil) failed: %v", err)
	}
	if v, ok, _ := s.Get("empty"); !ok || len(v) != 0 {
		t.Errorf("Get(empty) = %q, %v", v, ok)
	}
}

func TestStore_SetManyAndContexts(t *testing.T) {
	s := setupTestStore(t)
	team := scope.TeamContext("north")

	err := s.SetMany(map[string][]byte{
		Key(scope.PersonalContext(), KeyDataset):    []byte(`{}`),
		Key(scope.PersonalContext(), KeyTombstones): []byte(`[]`),
		Key(team, KeyDataset):                       []byte(`{}`),
		scope.Key:                                   []byte("team:north"),
	})
	if err != nil {
		t.Fatalf("SetMany() failed: %v", err)
	}

	got, err := s.Contexts(context.Background())
	if err != nil {
		t.Fatalf("Contexts() failed: %v", err)
	}
	want := []scope.Context{scope.PersonalContext(), team}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Contexts() = %v, want %v", got, want)
	}
}

func TestKey(t *testing.T) {
	if got := Key(scope.TeamContext("north"), KeyDirty); got != "team:north/dirty" {
		t.Errorf("Key() = %q", got)
	}
	if got := Key(scope.PersonalContext(), KeyVersion); got != "personal/version" {
		t.Errorf("Key() = %q", got)
	}
}

func TestStore_SyncLog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personal := scope.PersonalContext()

	for i := 0; i < maxLogEntries+5; i++ {
		err := s.AppendLog(ctx, LogEntry{
			Context:  personal.String(),
			Kind:     "flush",
			Outcome:  "ok",
			Version:  fmt.Sprintf("v%d", i),
			Duration: 15 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("AppendLog() failed: %v", err)
		}
	}
	if err := s.AppendLog(ctx, LogEntry{Context: "team:north", Kind: "poll", Outcome: "error", Detail: "remote unreachable"}); err != nil {
		t.Fatalf("AppendLog() failed: %v", err)
	}

	recent, err := s.RecentLog(ctx, personal, 3)
	if err != nil {
		t.Fatalf("RecentLog() failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("RecentLog() returned %d entries, want 3", len(recent))
	}
	last := fmt.Sprintf("v%d", maxLogEntries+4)
	if recent[0].Version != last || recent[0].Duration != 15*time.Millisecond || recent[0].At.IsZero() {
		t.Errorf("newest entry = %+v, want version %s", recent[0], last)
	}

	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM sync_log WHERE context = ?`, personal.String()).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != maxLogEntries {
		t.Errorf("sync_log kept %d entries, want %d", count, maxLogEntries)
	}

	team, err := s.RecentLog(ctx, scope.TeamContext("north"), 0)
	if err != nil {
		t.Fatalf("RecentLog() failed: %v", err)
	}
	if len(team) != 1 || team[0].Detail != "remote unreachable" || team[0].Version != "" {
		t.Errorf("team log = %+v", team)
	}
}

func TestStore_LoadReplica(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	team := scope.TeamContext("north")

	empty, err := s.LoadReplica(ctx, team)
	if err != nil {
		t.Fatalf("LoadReplica() failed: %v", err)
	}
	if empty.Seeded || empty.Dirty || empty.Tombstones.Len() != 0 || !empty.Dataset.IsEmpty() {
		t.Errorf("unseeded replica = %+v", empty)
	}

	err = s.SetMany(map[string][]byte{
		Key(team, KeyDataset):    []byte(`{"apiaries":[{"id":"A1","name":"Orchard","location":{}}]}`),
		Key(team, KeyTombstones): []byte(`["H9"]`),
		Key(team, KeyVersion):    []byte("7"),
		Key(team, KeyDirty):      []byte("1"),
	})
	if err != nil {
		t.Fatalf("SetMany() failed: %v", err)
	}

	r, err := s.LoadReplica(ctx, team)
	if err != nil {
		t.Fatalf("LoadReplica() failed: %v", err)
	}
	if !r.Seeded || !r.Dirty || r.Version != "7" || !r.Tombstones.Has("H9") {
		t.Errorf("replica = %+v", r)
	}
	if len(r.Dataset.Apiaries) != 1 || r.Dataset.Apiaries[0].Name != "Orchard" {
		t.Errorf("dataset = %+v", r.Dataset)
	}

	if err := s.Set(Key(team, KeyDataset), []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadReplica(ctx, team); err == nil {
		t.Error("LoadReplica() of a corrupt dataset succeeded")
	}
}
