package dashboard

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hivelog/hivesync/internal/replica/scheduler"
)

// StateData reports a scheduler state change.
type StateData struct {
	Context string `json:"context"`
	State   string `json:"state"`
}

// MutationData reports an accepted local edit.
type MutationData struct {
	Context string `json:"context"`
}

// SyncData reports the outcome of a seed, flush or poll.
type SyncData struct {
	Context    string `json:"context"`
	Kind       string `json:"kind"`
	OK         bool   `json:"ok"`
	Changed    bool   `json:"changed,omitempty"`
	Version    string `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Conflicts  int    `json:"conflicts"`
	LocalOnly  int    `json:"local_only"`
	RemoteOnly int    `json:"remote_only"`
	Dropped    int    `json:"dropped"`
	Relocated  int    `json:"relocated"`
}

// ContextStatus is the running summary of one context.
type ContextStatus struct {
	Context   string    `json:"context"`
	State     string    `json:"state"`
	Version   string    `json:"version,omitempty"`
	LastSync  time.Time `json:"last_sync,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Mutations int       `json:"mutations"`
	Flushes   int       `json:"flushes"`
	Failures  int       `json:"failures"`
}

// StatusData contains the status of every observed context.
type StatusData struct {
	Contexts []ContextStatus `json:"contexts"`
}

// Handler turns scheduler events into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger

	mu       sync.Mutex
	contexts map[string]*ContextStatus
}

// NewHandler creates a handler connected to a dashboard server. New clients
// of server receive the handler's status as their welcome message.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server:   server,
		logger:   logger,
		contexts: make(map[string]*ContextStatus),
	}
	server.SetWelcome(h.statusMessage)
	return h
}

// Observer returns the handler as a scheduler observer.
func (h *Handler) Observer() scheduler.Observer {
	return h.Observe
}

// Observe records e and broadcasts it. It runs on the scheduler's control
// goroutine and does not block.
func (h *Handler) Observe(e scheduler.Event) {
	name := e.Context.String()

	h.mu.Lock()
	st := h.contextLocked(name)
	var msgType MessageType
	var data any
	switch e.Kind {
	case scheduler.EventState:
		st.State = e.State.String()
		msgType, data = MessageTypeState, StateData{Context: name, State: st.State}
	case scheduler.EventMutation:
		st.Mutations++
		msgType, data = MessageTypeMutation, MutationData{Context: name}
	case scheduler.EventSeed, scheduler.EventFlush, scheduler.EventPoll:
		d := SyncData{
			Context:    name,
			Kind:       string(e.Kind),
			OK:         e.Err == nil,
			Changed:    e.Changed,
			Version:    string(e.Version),
			DurationMs: e.Duration.Milliseconds(),
			Conflicts:  e.Stats.Conflicts,
			LocalOnly:  e.Stats.LocalOnly,
			RemoteOnly: e.Stats.RemoteOnly,
			Dropped:    e.Stats.Dropped,
			Relocated:  e.Stats.Relocated,
		}
		if e.Err != nil {
			d.Error = e.Err.Error()
			st.LastError = d.Error
			if e.Kind == scheduler.EventFlush {
				st.Failures++
			}
		} else {
			st.LastError = ""
			if e.Version != "" {
				st.Version = string(e.Version)
			}
			if e.Kind == scheduler.EventFlush || e.Changed || e.Kind == scheduler.EventSeed {
				st.LastSync = at(e)
			}
			if e.Kind == scheduler.EventFlush {
				st.Flushes++
			}
		}
		msgType, data = MessageTypeSync, d
	default:
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.broadcast(msgType, data, at(e))
}

// Status returns the summary of every observed context, sorted by name.
func (h *Handler) Status() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := StatusData{Contexts: make([]ContextStatus, 0, len(h.contexts))}
	for _, st := range h.contexts {
		out.Contexts = append(out.Contexts, *st)
	}
	sort.Slice(out.Contexts, func(i, j int) bool {
		return out.Contexts[i].Context < out.Contexts[j].Context
	})
	return out
}

// Track seeds the summary of a context from a scheduler status, so clients
// see it before the first event arrives.
func (h *Handler) Track(s scheduler.Status) {
	h.mu.Lock()
	st := h.contextLocked(s.Context.String())
	st.State = s.State.String()
	st.Version = string(s.Version)
	st.LastSync = s.LastSync
	st.LastError = s.LastError
	h.mu.Unlock()

	h.broadcastStatus()
}

func (h *Handler) contextLocked(name string) *ContextStatus {
	st, ok := h.contexts[name]
	if !ok {
		st = &ContextStatus{Context: name, State: scheduler.Idle.String()}
		h.contexts[name] = st
	}
	return st
}

func (h *Handler) statusMessage() Message {
	data, err := json.Marshal(h.Status())
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return Message{Type: MessageTypeStatus, Timestamp: time.Now()}
	}
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: data}
}

func (h *Handler) broadcastStatus() {
	h.server.Broadcast(h.statusMessage())
}

func (h *Handler) broadcast(t MessageType, data any, ts time.Time) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{Type: t, Timestamp: ts, Data: dataJSON})
}

func at(e scheduler.Event) time.Time {
	if e.At.IsZero() {
		return time.Now()
	}
	return e.At
}
