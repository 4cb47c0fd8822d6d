package scope

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Context
		wantErr bool
	}{
		{name: "empty is personal", input: "", want: PersonalContext()},
		{name: "personal", input: "personal", want: PersonalContext()},
		{name: "team key", input: "team:bees-r-us", want: TeamContext("bees-r-us")},
		{name: "bare team id", input: "bees-r-us", want: TeamContext("bees-r-us")},
		{name: "empty team", input: "team:", wantErr: true},
		{name: "slash", input: "team:a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestContext_StringRoundTrip(t *testing.T) {
	for _, c := range []Context{PersonalContext(), TeamContext("north")} {
		text, err := c.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}
		var back Context
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if back != c {
			t.Errorf("round trip %v -> %q -> %v", c, text, back)
		}
	}
}

type memKV map[string][]byte

func (m memKV) Get(key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memKV) Set(key string, value []byte) error {
	m[key] = value
	return nil
}

type fakeSession struct {
	ctx     Context
	stopped bool
}

func (s *fakeSession) Stop() error {
	s.stopped = true
	return nil
}

func newTestResolver(t *testing.T, kv memKV, teams ...string) (*Resolver[*fakeSession], *[]*fakeSession) {
	t.Helper()
	var built []*fakeSession
	factory := func(_ context.Context, c Context) (*fakeSession, error) {
		s := &fakeSession{ctx: c}
		built = append(built, s)
		return s, nil
	}
	r, err := NewResolver(kv, teams, factory, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r, &built
}

func TestResolver_LoadsPersistedContext(t *testing.T) {
	tests := []struct {
		name      string
		persisted string
		want      Context
	}{
		{name: "nothing persisted", want: PersonalContext()},
		{name: "known team", persisted: "team:north", want: TeamContext("north")},
		{name: "team no longer configured", persisted: "team:south", want: PersonalContext()},
		{name: "garbage", persisted: "team:", want: PersonalContext()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := memKV{}
			if tt.persisted != "" {
				kv[Key] = []byte(tt.persisted)
			}
			r, _ := newTestResolver(t, kv, "north")
			if got := r.Current(); got != tt.want {
				t.Errorf("Current() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolver_Switch(t *testing.T) {
	ctx := context.Background()
	kv := memKV{}
	r, built := newTestResolver(t, kv, "north")

	first, err := r.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if again, _ := r.Session(ctx); again != first {
		t.Error("Session() built a second session for the same context")
	}

	team, err := r.Switch(ctx, TeamContext("north"))
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if !first.stopped {
		t.Error("old session not stopped on switch")
	}
	if team.ctx != TeamContext("north") {
		t.Errorf("new session context = %v", team.ctx)
	}
	if string(kv[Key]) != "team:north" {
		t.Errorf("persisted context = %q", kv[Key])
	}

	same, err := r.Switch(ctx, TeamContext("north"))
	if err != nil || same != team || team.stopped {
		t.Error("switching to the current context should keep the session")
	}

	if _, err := r.Switch(ctx, TeamContext("south")); err == nil {
		t.Error("expected error switching to an unknown team")
	}
	if r.Current() != TeamContext("north") {
		t.Error("failed switch changed the current context")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !team.stopped {
		t.Error("Close did not stop the session")
	}
	if len(*built) != 2 {
		t.Errorf("built %d sessions, want 2", len(*built))
	}
}

func TestResolver_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewResolver(memKV{}, nil, func(context.Context, Context) (*fakeSession, error) {
		return nil, boom
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	if _, err := r.Session(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Session() error = %v, want wrapped boom", err)
	}
}

func TestNewResolver_Validation(t *testing.T) {
	factory := func(context.Context, Context) (*fakeSession, error) { return &fakeSession{}, nil }
	if _, err := NewResolver[*fakeSession](nil, nil, factory, nil); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewResolver[*fakeSession](memKV{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil factory")
	}
}
