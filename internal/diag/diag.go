// Package diag exposes a localhost-only, read-only HTTP surface for
// inspecting the Enforcer's current state — no control actions, since
// spec.md's Design Notes rule out an IPC control channel entirely.
package diag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/focusdragon/enforcer/internal/policy"
)

// Status is the JSON body served at GET /status.
type Status struct {
	IsBlocking     bool      `json:"isBlocking"`
	BlockedDomains []string  `json:"blockedDomains"`
	LockActive     bool      `json:"lockActive"`
	LockKind       string    `json:"lockKind"`
	LastTickAt     time.Time `json:"lastTickAt"`
}

// Server serves read-only diagnostics on 127.0.0.1 only.
type Server struct {
	mu     sync.RWMutex
	status Status
	srv    *http.Server
}

// NewServer builds a chi-routed diagnostics server bound to localhost.
func NewServer(addr string) *Server {
	s := &Server{}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// ListenAndServe starts serving; intended to run in its own goroutine.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Update records the latest effective policy snapshot for reporting.
func (s *Server) Update(eff policy.Effective, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{
		IsBlocking:     eff.IsBlocking,
		BlockedDomains: eff.HostsBlockedSet,
		LockActive:     eff.LockActive,
		LockKind:       string(eff.LockKind),
		LastTickAt:     at,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status)
}

// DefaultAddr is the localhost-only diagnostics listen address.
const DefaultAddr = "127.0.0.1:8743"
