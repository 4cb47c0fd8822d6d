package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/remote/httpstore"
	"github.com/hivelog/hivesync/internal/replica/remote/memstore"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestServer starts an HTTP server over an in-memory store.
func newTestServer(t *testing.T, modCfg func(*Config)) (*httptest.Server, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	cfg := Config{ListenAddr: ":0", APIKeys: []string{"k1", "k2"}}
	if modCfg != nil {
		modCfg(&cfg)
	}
	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func TestNewServer_NilStore(t *testing.T) {
	if _, err := NewServer(Config{}, nil); err == nil {
		t.Error("NewServer(nil) succeeded")
	}
}

func TestServer_RoundTrip(t *testing.T) {
	ts, store := newTestServer(t, nil)
	client := httpstore.New(ts.URL, "k2")
	ctx := context.Background()
	team := scope.TeamContext("north-yard")

	if _, err := client.Pull(ctx, team); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("Pull() of empty context error = %v, want ErrNotFound", err)
	}
	if _, err := client.PeekVersion(ctx, team); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("PeekVersion() of empty context error = %v, want ErrNotFound", err)
	}

	ds := &schema.Dataset{Apiaries: []schema.Apiary{{ID: "A1", Name: "Orchard", Hives: []schema.Hive{{ID: "H1"}}}}}
	v, err := client.Push(ctx, team, ds, tombstone.New("H9"))
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if v == "" {
		t.Fatal("Push() returned an empty version")
	}

	peek, err := client.PeekVersion(ctx, team)
	if err != nil {
		t.Fatalf("PeekVersion() error = %v", err)
	}
	if peek != v {
		t.Errorf("PeekVersion() = %q, want %q", peek, v)
	}

	snap, err := client.Pull(ctx, team)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if snap.Version != v || !snap.Dataset.Contains("H1") || !snap.Tombstones.Has("H9") {
		t.Errorf("Pull() = %+v", snap)
	}

	// Contexts are separate partitions.
	if _, ok := store.Current(scope.PersonalContext()); ok {
		t.Error("team push leaked into the personal context")
	}
}

func TestServer_MalformedStoredSnapshot(t *testing.T) {
	ts, store := newTestServer(t, nil)
	store.Seed(scope.PersonalContext(), &schema.Dataset{}, nil)
	store.Corrupt(scope.PersonalContext())

	_, err := httpstore.New(ts.URL, "k1").Pull(context.Background(), scope.PersonalContext())
	if !errors.Is(err, remote.ErrMalformedSnapshot) {
		t.Errorf("Pull() error = %v, want ErrMalformedSnapshot", err)
	}
}

func TestServer_Auth(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic k1", http.StatusUnauthorized},
		{"unknown key", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "Bearer k1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/replicas/personal", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	_, err := httpstore.New(ts.URL, "nope").PeekVersion(context.Background(), scope.PersonalContext())
	if !errors.Is(err, remote.ErrRejected) {
		t.Errorf("PeekVersion() with bad key error = %v, want ErrRejected", err)
	}
}

func TestServer_NoKeysConfigured(t *testing.T) {
	ts, _ := newTestServer(t, func(c *Config) { c.APIKeys = nil })
	v, err := httpstore.New(ts.URL, "").Push(context.Background(), scope.PersonalContext(), &schema.Dataset{}, nil)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if v == "" {
		t.Error("empty version")
	}
}

func TestServer_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, func(c *Config) { c.APIKeys = nil })

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid scope", http.MethodGet, "/v1/replicas/team:", "", http.StatusBadRequest},
		{"unparsable push", http.MethodPut, "/v1/replicas/personal", "{not json", http.StatusBadRequest},
		{"unknown route", http.MethodDelete, "/v1/replicas/personal", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	client := httpstore.New(ts.URL, "k1")
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if _, err := client.Push(context.Background(), scope.PersonalContext(), &schema.Dataset{}, nil); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`hivesync_server_requests_total{code="200",route="push"} 1`,
		`hivesync_server_pushes_total{kind="personal"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HIVESYNC_LISTEN_ADDR", ":9090")
	t.Setenv("HIVESYNC_API_KEYS", "a,b")
	t.Setenv("HIVESYNC_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[1] != "b" {
		t.Errorf("APIKeys = %v", cfg.APIKeys)
	}
	if cfg.ShutdownTimeout.Seconds() != 5 {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.StoreDriver != "sqlite" || cfg.LogFormat != "json" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
