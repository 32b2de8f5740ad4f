// Copyright 2025 The Mnemosyne Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the optional HTTP sidecar used by standalone agent
// runners: it receives Heartbeat events at /events, serves /metrics from
// the observability manager, and answers /healthz. The Engine never
// depends on it; heartbeat emission is strictly a concern of the
// standalone runners.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Heartbeat is the event a running agent process emits every 10s.
type Heartbeat struct {
	AgentID   string    `json:"agent_id"`
	Namespace string    `json:"namespace,omitempty"`
	State     string    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Server is the sidecar HTTP server.
type Server struct {
	addr       string
	router     chi.Router
	httpServer *http.Server

	mu         sync.RWMutex
	heartbeats map[string]Heartbeat
}

// New builds the sidecar on addr. metricsHandler (usually
// observability.Manager.Handler) is mounted at /metrics; nil mounts a
// 503.
func New(addr string, metricsHandler http.Handler) *Server {
	s := &Server{
		addr:       addr,
		heartbeats: make(map[string]Heartbeat),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Post("/events", s.handleEvent)
	r.Get("/events", s.handleListEvents)
	if metricsHandler == nil {
		metricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	s.router = r
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown; it blocks like http.Server.ListenAndServe
// and returns http.ErrServerClosed on a clean stop.
func (s *Server) Start() error {
	slog.Info("sidecar listening", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Heartbeats returns a snapshot of the latest heartbeat per agent.
func (s *Server) Heartbeats() map[string]Heartbeat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Heartbeat, len(s.heartbeats))
	for id, hb := range s.heartbeats {
		out[id] = hb
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var hb Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		http.Error(w, "invalid heartbeat payload", http.StatusBadRequest)
		return
	}
	if hb.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.heartbeats[hb.AgentID] = hb
	s.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Heartbeats())
}
