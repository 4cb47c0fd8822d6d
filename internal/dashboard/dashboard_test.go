package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hivelog/hivesync/internal/replica/merge"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

// connect dials the server, reads the welcome message and waits until the
// client is registered for broadcasts.
func connect(t *testing.T, ctx context.Context, server *Server, want int) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	welcome := read(t, ctx, conn)

	deadline := time.Now().Add(3 * time.Second)
	for server.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn, welcome
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "127.0.0.1:0" {
		t.Error("GetAddr() did not resolve the listening port")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var conns []*websocket.Conn
	for i := 1; i <= 3; i++ {
		conn, welcome := connect(t, ctx, server, i)
		if welcome.Type != MessageTypeStatus {
			t.Errorf("welcome type = %s, want %s", welcome.Type, MessageTypeStatus)
		}
		conns = append(conns, conn)
	}

	data, _ := json.Marshal(MutationData{Context: "personal"})
	server.Broadcast(Message{Type: MessageTypeMutation, Data: data})

	for i, conn := range conns {
		msg := read(t, ctx, conn)
		if msg.Type != MessageTypeMutation || msg.Timestamp.IsZero() {
			t.Errorf("client %d got %+v", i, msg)
		}
	}
}

func TestHandlerBroadcastsSchedulerEvents(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := connect(t, ctx, server, 1)
	team := scope.TeamContext("t1")
	observe := handler.Observer()

	observe(scheduler.Event{Kind: scheduler.EventState, Context: team, State: scheduler.Dirty})
	observe(scheduler.Event{Kind: scheduler.EventFlush, Context: team, Version: "7",
		Duration: 12 * time.Millisecond, Stats: merge.Stats{Conflicts: 2, Dropped: 1}})

	msg := read(t, ctx, conn)
	var state StateData
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatalf("Failed to unmarshal state: %v", err)
	}
	if msg.Type != MessageTypeState || state.Context != "team:t1" || state.State != "dirty" {
		t.Errorf("state message = %s %+v", msg.Type, state)
	}

	msg = read(t, ctx, conn)
	var sync SyncData
	if err := json.Unmarshal(msg.Data, &sync); err != nil {
		t.Fatalf("Failed to unmarshal sync: %v", err)
	}
	want := SyncData{Context: "team:t1", Kind: "flush", OK: true, Version: "7", DurationMs: 12, Conflicts: 2, Dropped: 1}
	if msg.Type != MessageTypeSync || sync != want {
		t.Errorf("sync message = %s %+v, want %+v", msg.Type, sync, want)
	}
}

func TestHandlerStatus(t *testing.T) {
	server := NewServer(&Config{Logger: log.New(io.Discard, "", 0)})
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	p := scope.PersonalContext()

	handler.Track(scheduler.Status{Context: p, State: scheduler.Idle, Version: "1"})
	handler.Observe(scheduler.Event{Kind: scheduler.EventMutation, Context: p})
	handler.Observe(scheduler.Event{Kind: scheduler.EventFlush, Context: p, Err: errors.New("offline")})
	handler.Observe(scheduler.Event{Kind: scheduler.EventFlush, Context: p, Version: "2"})
	handler.Observe(scheduler.Event{Kind: scheduler.EventState, Context: scope.TeamContext("a"), State: scheduler.Polling})

	st := handler.Status()
	if len(st.Contexts) != 2 || st.Contexts[0].Context != "personal" || st.Contexts[1].Context != "team:a" {
		t.Fatalf("Status() = %+v", st)
	}
	got := st.Contexts[0]
	if got.Mutations != 1 || got.Flushes != 1 || got.Failures != 1 || got.Version != "2" || got.LastError != "" {
		t.Errorf("personal status = %+v", got)
	}
	if got.LastSync.IsZero() {
		t.Error("LastSync not set by successful flush")
	}
	if st.Contexts[1].State != "polling" {
		t.Errorf("team state = %s, want polling", st.Contexts[1].State)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	handler.Observe(scheduler.Event{Kind: scheduler.EventMutation, Context: scope.PersonalContext()})

	resp, err := http.Get("http://" + server.GetAddr() + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var st StatusData
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(st.Contexts) != 1 || st.Contexts[0].Mutations != 1 {
		t.Errorf("status = %+v", st)
	}
}
