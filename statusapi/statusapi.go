// Package statusapi exposes a small read-only HTTP surface for
// observing a running proxy process: live per-connection byte
// counters, process identity, and the effective fault configuration.
// It never blocks or participates in the TCP forwarding path; it only
// reads a snapshot of a registry the supervisor updates.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"faultline/config"
)

// ConnectionStat is a point-in-time snapshot of one active connection.
type ConnectionStat struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	AToB      int64     `json:"aToBBytes"`
	BToA      int64     `json:"bToABytes"`
}

// Registry is a thread-safe store of currently active connections,
// repurposed from the teacher's RWMutex-guarded rule map (state.go)
// into a counters registry: entries are registered on accept and
// removed when the forwarder returns, instead of being edited by a
// human through a CRUD API.
type Registry struct {
	mu    sync.RWMutex
	stats map[string]*liveStat
}

type liveStat struct {
	startedAt time.Time
	aToB      *int64
	bToA      *int64
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{stats: make(map[string]*liveStat)}
}

// Register adds connectionID to the registry, backed by the counters
// the caller continues to mutate via atomic stores. Deregister must
// be called when the connection ends.
func (r *Registry) Register(connectionID string, aToB, bToA *int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[connectionID] = &liveStat{startedAt: time.Now(), aToB: aToB, bToA: bToA}
}

// Deregister removes connectionID from the registry.
func (r *Registry) Deregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stats, connectionID)
}

// Snapshot returns a consistently-ordered copy of all active
// connection stats.
func (r *Registry) Snapshot() []ConnectionStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionStat, 0, len(r.stats))
	for id, s := range r.stats {
		out = append(out, ConnectionStat{
			ID:        id,
			StartedAt: s.startedAt,
			AToB:      loadInt64(s.aToB),
			BToA:      loadInt64(s.bToA),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func loadInt64(p *int64) int64 {
	return atomic.LoadInt64(p)
}

// Server is the status HTTP surface for one proxy process.
type Server struct {
	RunID    string
	Registry *Registry
	Config   *config.Config
}

// NewServer creates a Server with a fresh run ID.
func NewServer(registry *Registry, cfg *config.Config) *Server {
	return &Server{
		RunID:    uuid.New().String(),
		Registry: registry,
		Config:   cfg,
	}
}

// Handler builds the mux.Router for this status surface, wrapped in a
// permissive local CORS policy (teacher idiom, main.go's rs/cors
// wiring, repurposed for a local dashboard reading proxy stats
// instead of editing failure rules).
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "runId": s.RunID})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runId":       s.RunID,
		"connections": s.Registry.Snapshot(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runId":     s.RunID,
		"listen":    s.Config.Listen,
		"latency":   s.Config.Latency,
		"loss":      s.Config.Loss,
		"bandwidth": s.Config.Bandwidth,
	})
}
