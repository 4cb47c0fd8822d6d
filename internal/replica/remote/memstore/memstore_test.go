package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

func TestStore_PushPull(t *testing.T) {
	ctx := context.Background()
	s := New()
	personal := scope.PersonalContext()
	team := scope.TeamContext("north")

	if _, err := s.Pull(ctx, personal); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("Pull() on empty store error = %v, want ErrNotFound", err)
	}

	ds := &schema.Dataset{Apiaries: []schema.Apiary{{ID: "A1", Name: "Orchard"}}}
	v1, err := s.Push(ctx, personal, ds, tombstone.New("H9"))
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ds.Apiaries[0].Name = "changed after push"

	snap, err := s.Pull(ctx, personal)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if snap.Version != v1 {
		t.Errorf("Pull() version = %q, want %q", snap.Version, v1)
	}
	if snap.Dataset.Apiaries[0].Name != "Orchard" {
		t.Error("store shares memory with the pushed dataset")
	}
	if !snap.Tombstones.Has("H9") {
		t.Error("tombstones not stored")
	}

	if _, err := s.PeekVersion(ctx, team); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("contexts are not partitioned: %v", err)
	}

	v2, _ := s.Push(ctx, personal, ds, nil)
	if v2 == v1 {
		t.Error("version did not change on push")
	}
	if peek, _ := s.PeekVersion(ctx, personal); peek != v2 {
		t.Errorf("PeekVersion() = %q, want %q", peek, v2)
	}

	if c := s.Calls(); c.Pull != 2 || c.Push != 2 || c.Peek != 2 {
		t.Errorf("Calls() = %+v", c)
	}
}

func TestStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := scope.PersonalContext()
	s.Seed(c, &schema.Dataset{}, nil)

	s.FailPush(remote.ErrRejected)
	if _, err := s.Push(ctx, c, nil, nil); !errors.Is(err, remote.ErrRejected) {
		t.Errorf("Push() error = %v, want ErrRejected", err)
	}
	s.FailPush(nil)
	if _, err := s.Push(ctx, c, nil, nil); err != nil {
		t.Errorf("Push() after clearing error = %v", err)
	}

	s.FailPull(remote.ErrUnreachable)
	if _, err := s.Pull(ctx, c); !errors.Is(err, remote.ErrUnreachable) {
		t.Errorf("Pull() error = %v, want ErrUnreachable", err)
	}
	s.FailPull(nil)

	s.Corrupt(c)
	if _, err := s.Pull(ctx, c); !errors.Is(err, remote.ErrMalformedSnapshot) {
		t.Errorf("Pull() of corrupt snapshot error = %v, want ErrMalformedSnapshot", err)
	}
}

func TestStore_HoldPushes(t *testing.T) {
	s := New()
	c := scope.PersonalContext()
	g := s.HoldPushes()

	done := make(chan error, 1)
	go func() {
		_, err := s.Push(context.Background(), c, nil, nil)
		done <- err
	}()

	select {
	case <-g.Entered:
	case <-time.After(time.Second):
		t.Fatal("push never reached the gate")
	}
	select {
	case <-done:
		t.Fatal("push completed while held")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release()
	if err := <-done; err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g2 := s.HoldPushes()
	cancel()
	if _, err := s.Push(ctx, c, nil, nil); !errors.Is(err, remote.ErrUnreachable) {
		t.Errorf("cancelled held push error = %v, want ErrUnreachable", err)
	}
	g2.Release()
}
