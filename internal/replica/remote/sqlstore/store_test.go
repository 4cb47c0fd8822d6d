package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "nested", "replicas.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("Open(mysql) succeeded")
	}
	if _, err := Open(context.Background(), "sqlite", ""); err == nil {
		t.Error("Open(sqlite, \"\") succeeded")
	}
}

func TestStore_PushPull(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	c := scope.TeamContext("t1")

	if _, err := s.Pull(ctx, c); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("Pull() of missing context error = %v, want ErrNotFound", err)
	}
	if _, err := s.PeekVersion(ctx, c); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("PeekVersion() of missing context error = %v, want ErrNotFound", err)
	}

	ds := &schema.Dataset{CalendarEvents: []schema.CalendarEvent{{ID: "E1", Title: "Split hives"}}}
	v1, err := s.Push(ctx, c, ds, tombstone.New("E0"))
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if v1 != "1" {
		t.Errorf("first version = %q, want 1", v1)
	}

	ds.CalendarEvents = append(ds.CalendarEvents, schema.CalendarEvent{ID: "E2"})
	v2, err := s.Push(ctx, c, ds, tombstone.New("E0"))
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if v2 != "2" {
		t.Errorf("second version = %q, want 2", v2)
	}

	peek, err := s.PeekVersion(ctx, c)
	if err != nil {
		t.Fatalf("PeekVersion() error = %v", err)
	}
	if peek != v2 {
		t.Errorf("PeekVersion() = %q, want %q", peek, v2)
	}

	snap, err := s.Pull(ctx, c)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if snap.Version != v2 {
		t.Errorf("Pull() version = %q, want %q", snap.Version, v2)
	}
	if !snap.Dataset.Contains("E2") || !snap.Tombstones.Has("E0") {
		t.Errorf("Pull() = %+v", snap)
	}
}

func TestStore_ContextsArePartitions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Push(ctx, scope.PersonalContext(), &schema.Dataset{}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Push(ctx, scope.TeamContext("b"), &schema.Dataset{}, nil); err != nil {
		t.Fatal(err)
	}
	v, err := s.Push(ctx, scope.TeamContext("a"), &schema.Dataset{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != "1" {
		t.Errorf("version of a fresh context = %q, want 1", v)
	}

	got, err := s.Contexts(ctx)
	if err != nil {
		t.Fatalf("Contexts() error = %v", err)
	}
	want := []string{"personal", "team:a", "team:b"}
	if len(got) != len(want) {
		t.Fatalf("Contexts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("Contexts()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStore_MalformedPayload(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.DB().ExecContext(ctx,
		`INSERT INTO replicas (context, version, payload, updated_at) VALUES ('personal', 3, 'not json', CURRENT_TIMESTAMP)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := s.Pull(ctx, scope.PersonalContext())
	if !errors.Is(err, remote.ErrMalformedSnapshot) {
		t.Errorf("Pull() error = %v, want ErrMalformedSnapshot", err)
	}
	if !remote.TreatAsEmpty(err) {
		t.Error("malformed payload should be treated as empty")
	}

	// A push repairs it and keeps counting.
	v, err := s.Push(ctx, scope.PersonalContext(), &schema.Dataset{}, nil)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if v != "4" {
		t.Errorf("version after repair = %q, want 4", v)
	}
}

func TestStore_ClosedIsUnreachable(t *testing.T) {
	s := setupTestStore(t)
	_ = s.Close()

	if _, err := s.PeekVersion(context.Background(), scope.PersonalContext()); !errors.Is(err, remote.ErrUnreachable) {
		t.Errorf("PeekVersion() on closed db error = %v, want ErrUnreachable", err)
	}
}

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"WHERE a = ?", "WHERE a = $1"},
		{"VALUES (?, 1, ?, ?)", "VALUES ($1, 1, $2, $3)"},
	}
	for _, tt := range tests {
		if got := rebindDollar(tt.in); got != tt.want {
			t.Errorf("rebindDollar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
