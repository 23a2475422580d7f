// Package api provides the HTTP API for observing the battlefield.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/persistence"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/world"
)

// Server serves the battlefield over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // optional; enables POST /api/v1/snapshot
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RunID    string

	// Admin writes per client; nil means unlimited.
	Limiter *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/units", s.handleUnits)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/map", s.handleMap)
	mux.HandleFunc("GET /api/v1/map/{x}/{y}", s.handleTile)
	mux.HandleFunc("GET /api/v1/region/{id}/candidates", s.handleCandidates)
	mux.HandleFunc("GET /api/v1/speed", s.handleSpeed)

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("POST /api/v1/terrain", s.adminOnly(s.handleTerrain))
	mux.HandleFunc("POST /api/v1/recruit", s.adminOnly(s.handleRecruit))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "run_id", s.RunID)

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS adds a comma-separated list to the localhost dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the bearer token and applies the write rate limit.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no api.adminKey set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if s.Limiter != nil {
			ip := clientIP(r)
			if !s.Limiter.Allow(ip) {
				w.Header().Set("Retry-After", strconv.Itoa(s.Limiter.RetryAfter(ip)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot(0)
	controlled := 0
	for _, rv := range snap.Regions {
		controlled += len(rv.Tiles)
	}
	writeJSON(w, map[string]any{
		"name":       "frontline",
		"run_id":     s.RunID,
		"tick":       snap.Tick,
		"speed":      s.Eng.Speed(),
		"running":    s.Eng.Running(),
		"grid":       fmt.Sprintf("%dx%d", s.Sim.Grid.Width(), s.Sim.Grid.Height()),
		"regions":    len(snap.Regions),
		"units":      len(snap.Units),
		"controlled": controlled,
		"tiles":      humanize.Comma(int64(s.Sim.Grid.Len())),
		"stats":      snap.Stats,
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot(0).Regions)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	list := s.Sim.Snapshot(0).Units
	if region := r.URL.Query().Get("region"); region != "" {
		filtered := make([]engine.UnitView, 0, len(list))
		for _, u := range list {
			if string(u.Region) == region {
				filtered = append(filtered, u)
			}
		}
		list = filtered
	}
	writeJSON(w, list)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events := s.Sim.RecentEvents(limit)

	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := make([]engine.Event, 0, len(events))
		for _, e := range events {
			if e.Category == cat {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Map())
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	x, err1 := strconv.Atoi(r.PathValue("x"))
	y, err2 := strconv.Atoi(r.PathValue("y"))
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}
	tile, ok := s.Sim.TileAt(world.Pos{X: x, Y: y})
	if !ok {
		http.Error(w, "tile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tile)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	id := world.RegionID(r.PathValue("id"))
	cands, err := s.Sim.Candidates(id)
	if errors.Is(err, territory.ErrUnknownRegion) {
		http.Error(w, "region not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"region": id, "candidates": cands})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()
	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved in " + time.Since(start).Round(time.Millisecond).String(),
	})
}

// terrainRequest patches a tile. Absent fields are left unchanged.
type terrainRequest struct {
	X           int   `json:"x"`
	Y           int   `json:"y"`
	Water       *bool `json:"water,omitempty"`
	Maneuver    *int  `json:"maneuver,omitempty"`
	Elevation   *int  `json:"elevation,omitempty"`
	Concealment *int  `json:"concealment,omitempty"`
	Cover       *int  `json:"cover,omitempty"`
}

func (req terrainRequest) apply(t *world.Tile) {
	if req.Water != nil {
		t.Water = *req.Water
	}
	if req.Maneuver != nil {
		t.Maneuver = *req.Maneuver
	}
	if req.Elevation != nil {
		t.Elevation = *req.Elevation
	}
	if req.Concealment != nil {
		t.Concealment = *req.Concealment
	}
	if req.Cover != nil {
		t.Cover = *req.Cover
	}
}

func (s *Server) handleTerrain(w http.ResponseWriter, r *http.Request) {
	var req terrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	p := world.Pos{X: req.X, Y: req.Y}
	if err := s.Sim.ChangeTerrain(p, req.apply); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("terrain changed", "pos", p)

	tile, _ := s.Sim.TileAt(p)
	writeJSON(w, tile)
}

func (s *Server) handleRecruit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region string  `json:"region"`
		X      int     `json:"x"`
		Y      int     `json:"y"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Weight <= 0 {
		req.Weight = 1
	}

	u, err := s.Sim.Recruit(world.RegionID(req.Region), world.Pos{X: req.X, Y: req.Y}, req.Weight)
	switch {
	case errors.Is(err, territory.ErrUnknownRegion):
		http.Error(w, "region not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("unit recruited", "unit", u.ID, "region", req.Region)
	writeJSON(w, map[string]any{"id": u.ID, "region": req.Region, "pos": world.Pos{X: req.X, Y: req.Y}})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
