package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hivelog/hivesync/internal/config"
	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/merge"
	"github.com/hivelog/hivesync/internal/replica/remote/memstore"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "2026-05-10", false},
		{"today", "2026-05-10", false},
		{"2026-04-01", "2026-04-01", false},
		{"2026-04-01T23:00:00Z", "2026-04-01", false},
		{"yesterday", "2026-05-09", false},
		{"tomorrow", "2026-05-11", false},
		{"xyzzy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("parseDate(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenRemote(t *testing.T) {
	ctx := context.Background()

	rs, closer, err := openRemote(ctx, &config.Config{Remote: config.RemoteConfig{Driver: config.DriverMemory}})
	if err != nil || closer != nil {
		t.Fatalf("openRemote(memory) = %T, %v, %v", rs, closer, err)
	}
	if _, ok := rs.(*memstore.Store); !ok {
		t.Errorf("openRemote(memory) = %T", rs)
	}

	dsn := filepath.Join(t.TempDir(), "remote.db")
	rs, closer, err = openRemote(ctx, &config.Config{Remote: config.RemoteConfig{Driver: config.DriverSQL, SQLDriver: "sqlite", DSN: dsn}})
	if err != nil {
		t.Fatalf("openRemote(sql) error = %v", err)
	}
	if rs == nil || closer == nil {
		t.Fatal("openRemote(sql) returned no closer")
	}
	_ = closer.Close()

	if _, _, err := openRemote(ctx, &config.Config{Remote: config.RemoteConfig{Driver: "ftp"}}); err == nil {
		t.Error("openRemote(ftp) succeeded")
	}
}

func TestCountEntities(t *testing.T) {
	ds := &schema.Dataset{
		Apiaries: []schema.Apiary{{
			ID: "A1",
			Hives: []schema.Hive{
				{ID: "H1", Inspections: []schema.Inspection{{ID: "I1"}, {ID: "I2"}}},
				{ID: "H2", Production: []schema.ProductionRecord{{ID: "P1"}}},
			},
		}},
		CalendarEvents: []schema.CalendarEvent{{ID: "E1"}},
	}
	want := entityCounts{Apiaries: 1, Hives: 2, Inspections: 2, Harvests: 1, Events: 1}
	if got := countEntities(ds); got != want {
		t.Errorf("countEntities() = %+v, want %+v", got, want)
	}
}

func TestHistory(t *testing.T) {
	store, err := localstore.Open(filepath.Join(t.TempDir(), "replica.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	personal := scope.PersonalContext()
	h := newHistory(store, newLogger("test"))
	h.Observe(scheduler.Event{Kind: scheduler.EventState, Context: personal})
	h.Observe(scheduler.Event{Kind: scheduler.EventPoll, Context: personal})
	h.Observe(scheduler.Event{Kind: scheduler.EventFlush, Context: personal, Version: "3", Stats: merge.Stats{Conflicts: 2}})
	h.Observe(scheduler.Event{Kind: scheduler.EventPoll, Context: personal, Err: errors.New("remote unreachable")})
	h.Flush()

	entries, err := store.RecentLog(context.Background(), personal, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("recorded %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Kind != "poll" || entries[0].Outcome != "error" || entries[0].Detail != "remote unreachable" {
		t.Errorf("newest entry = %+v", entries[0])
	}
	if entries[1].Kind != "flush" || entries[1].Version != "3" || entries[1].Detail == "" {
		t.Errorf("flush entry = %+v", entries[1])
	}
}
