package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/remote/httpstore"
	"github.com/hivelog/hivesync/internal/replica/scope"
)

// scopeFrom parses the {scope} path value, writing a 400 when it is invalid.
func scopeFrom(w http.ResponseWriter, r *http.Request) (scope.Context, bool) {
	c, err := scope.Parse(r.PathValue("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, httpstore.CodeBadRequest, err.Error())
		return scope.Context{}, false
	}
	return c, true
}

// writeStoreError maps a store error onto a status code and error code.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		writeError(w, http.StatusNotFound, httpstore.CodeNotFound, "no snapshot for this context")
	case errors.Is(err, remote.ErrMalformedSnapshot):
		logFor(r.Context()).Warn("stored snapshot unreadable", "err", err)
		writeError(w, http.StatusInternalServerError, httpstore.CodeMalformedSnapshot, "stored snapshot is unreadable")
	default:
		logFor(r.Context()).Error("store", "err", err)
		writeError(w, http.StatusServiceUnavailable, httpstore.CodeInternal, "store unavailable")
	}
}

// handlePull returns the full payload of a context.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	c, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	snap, err := s.store.Pull(r.Context(), c)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	body, err := remote.EncodePayload(snap.Dataset, snap.Tombstones, snap.Version)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", `"`+string(snap.Version)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handlePush replaces the snapshot of a context.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	c, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, httpstore.CodeBadRequest, "request body too large or unreadable")
		return
	}
	snap, err := remote.DecodePayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, httpstore.CodeBadRequest, err.Error())
		return
	}

	v, err := s.store.Push(r.Context(), c, snap.Dataset, snap.Tombstones)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	kind := "personal"
	if c.IsTeam() {
		kind = "team"
	}
	s.metrics.RecordPush(kind, len(body))
	logFor(r.Context()).Info("push accepted", "context", c.String(), "version", string(v), "bytes", len(body))
	writeJSON(w, http.StatusOK, httpstore.VersionResponse{Version: v})
}

// handleVersion returns the current version of a context.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	c, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	v, err := s.store.PeekVersion(r.Context(), c)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, httpstore.VersionResponse{Version: v})
}
