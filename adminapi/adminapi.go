// Package adminapi serves a small read-only HTTP surface for operational
// visibility into the proxy: liveness, cache occupancy, and recent audit
// records. It shares none of its request path with the proxy's own TCP
// accept loop and never influences a cache decision; it only observes
// state the connection driver already produced. Routing follows the
// teacher's own use of go-chi/chi/v5 for its test router.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/fenwicklabs/proxycache/auditlog"
	"github.com/fenwicklabs/proxycache/cachestore"
)

// Server is the admin HTTP API. It is started and stopped by the proxy's
// server shell alongside the main accept loop.
type Server struct {
	httpServer *http.Server
	cache      *cachestore.Store
	audit      *auditlog.Sink // nil when audit persistence is disabled
	log        zerolog.Logger
	startedAt  time.Time

	requests atomic.Uint64
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// New builds a Server bound to port. audit may be nil, in which case
// /audit reports 404 rather than an empty list, making the feature's
// absence visible rather than silently returning nothing.
func New(port int, cache *cachestore.Store, audit *auditlog.Sink, log zerolog.Logger) *Server {
	s := &Server{
		cache:     cache,
		audit:     audit,
		log:       log.With().Str("component", "adminapi").Logger(),
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/cache", s.handleCache)
	if audit != nil {
		r.Get("/audit", s.handleAudit)
	}

	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: r,
	}
	return s
}

// RecordOutcome lets the connection driver update the admin API's running
// counters without coupling the hot path to chi or net/http.
func (s *Server) RecordOutcome(outcome string) {
	s.requests.Add(1)
	switch outcome {
	case "hit":
		s.hits.Add(1)
	case "stored", "not-cacheable", "bypass":
		s.misses.Add(1)
	}
}

// Run starts serving and blocks until the server is shut down. It is
// meant to be invoked on its own goroutine by the server shell.
func (s *Server) Run() {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("admin API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("admin API stopped")
	}
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) {
	s.httpServer.Shutdown(ctx)
}

// requestID attaches a fresh rs/xid identifier to every admin request as
// an X-Request-Id response header and logs the request at debug level.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := xid.New().String()
		w.Header().Set("X-Request-Id", id)
		s.log.Debug().Str("request_id", id).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type statsResponse struct {
	TotalSlots    int    `json:"totalSlots"`
	OccupiedSlots int    `json:"occupiedSlots"`
	Requests      uint64 `json:"requests"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	occupied := 0
	for _, sl := range snap {
		if sl.Occupied {
			occupied++
		}
	}
	writeJSON(w, statsResponse{
		TotalSlots:    s.cache.Len(),
		OccupiedSlots: occupied,
		Requests:      s.requests.Load(),
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cache.Snapshot())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.audit.Recent(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("could not read audit records")
		http.Error(w, "could not read audit records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
