// Package api provides the HTTP API for watching and steering a city.
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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/agent"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/observability"
	"github.com/talgya/gridcity/internal/overlay"
	"github.com/talgya/gridcity/internal/persistence"
)

// Server serves the city over HTTP.
type Server struct {
	Eng      *engine.Engine
	DB       *persistence.DB             // nil disables snapshots and archived events
	Metrics  *observability.SimCollector // nil serves the default registry
	Layers   *agent.Layers               // nil means agent.DefaultLayers
	Hub      *Hub                        // nil disables the spectator stream
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// ActLimit bounds POST /api/v1/act per client; zero means 600 a minute.
	ActLimit int
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.Layers == nil {
		s.Layers = agent.DefaultLayers()
	}
	limit := s.ActLimit
	if limit <= 0 {
		limit = 600
	}
	actLimiter := NewRateLimiter(limit, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/observation", s.handleObservation)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/map", s.handleMapRoutes)
	mux.HandleFunc("/api/v1/map/", s.handleMapRoutes)
	mux.Handle("/metrics", s.Metrics.Handler())

	// Spectator stream (websocket).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/act", s.adminOnly(RateLimitMiddleware(actLimiter, s.handleAct)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/load", s.adminOnly(s.handleLoad))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server
// can be shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil, "archive", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
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

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no GRIDCITY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Eng.Do(func(sim *engine.Simulation) {
		status = map[string]any{
			"name":       "gridcity",
			"seed":       sim.Seed,
			"tick":       sim.CurrentTick(),
			"sim_time":   sim.Clock.SimTime(),
			"day":        sim.Clock.Day(),
			"speed":      sim.Clock.Speed,
			"paused":     sim.Clock.Paused,
			"width":      sim.Grid.Width,
			"height":     sim.Grid.Height,
			"population": sim.Stats.Population,
			"treasury":   sim.Budget.Treasury,
			"season":     sim.Weather().Season.String(),
		}
	})
	if err := s.Eng.Faulted(); err != nil {
		status["faulted"] = err.Error()
	}
	writeJSON(w, status)
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	var obs engine.Observation
	s.Eng.Do(func(sim *engine.Simulation) { obs = sim.Observe() })
	obs.Faulted = s.Eng.Faulted() != nil
	writeJSON(w, obs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var st engine.Stats
	s.Eng.Do(func(sim *engine.Simulation) { st = sim.Stats })
	writeJSON(w, st)
}

// handleEvents serves recent events, oldest first. source=db reads the
// archive written by autosave instead of the in-memory journal.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	category := r.URL.Query().Get("category")

	var events []engine.Event
	switch r.URL.Query().Get("source") {
	case "", "journal":
		s.Eng.Do(func(sim *engine.Simulation) { events = sim.Journal.Recent(0) })
	case "db":
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		archived, err := s.DB.RecentEvents(engine.MaxEvents)
		if err != nil {
			slog.Error("event archive read failed", "error", err)
			http.Error(w, "event archive unavailable", http.StatusInternalServerError)
			return
		}
		// RecentEvents is newest first.
		for i := len(archived) - 1; i >= 0; i-- {
			events = append(events, archived[i])
		}
	default:
		http.Error(w, "source must be journal or db", http.StatusBadRequest)
		return
	}

	if category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	out := events[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, out)
}

// handleQuery renders agent query layers: GET /api/v1/query?layers=a,b.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("layers"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		writeJSON(w, map[string]any{"available": s.Layers.Names()})
		return
	}
	var layers map[string]any
	var err error
	s.Eng.Do(func(sim *engine.Simulation) { layers, err = s.Layers.Render(sim, names) })
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"layers": layers})
}

// handleMapRoutes dispatches between the overview/detail map
// (GET /api/v1/map?view=detail&margin=2) and a cropped region
// (GET /api/v1/map/region?x0=&y0=&x1=&y1=). Maps are plain text.
func (s *Server) handleMapRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/map"), "/")
	q := r.URL.Query()

	var text string
	switch rest {
	case "":
		switch q.Get("view") {
		case "", "overview":
			s.Eng.Do(func(sim *engine.Simulation) { text = overlay.OverviewMap(sim.Grid) })
		case "detail":
			margin := 2
			if m, err := strconv.Atoi(q.Get("margin")); err == nil && m >= 0 && m <= 64 {
				margin = m
			}
			s.Eng.Do(func(sim *engine.Simulation) { text = overlay.DetailMap(sim.Grid, margin) })
		default:
			http.Error(w, "view must be overview or detail", http.StatusBadRequest)
			return
		}
	case "region":
		var coords [4]int
		for i, key := range []string{"x0", "y0", "x1", "y1"} {
			n, err := strconv.Atoi(q.Get(key))
			if err != nil {
				http.Error(w, "region needs integer x0, y0, x1 and y1", http.StatusBadRequest)
				return
			}
			coords[i] = n
		}
		s.Eng.Do(func(sim *engine.Simulation) {
			text = overlay.DetailRegion(sim.Grid, coords[0], coords[1], coords[2], coords[3])
		})
		if text == "" {
			http.Error(w, "region lies outside the map", http.StatusBadRequest)
			return
		}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, text)
}

// actRequest carries either one action or a batch applied atomically.
type actRequest struct {
	Action  *action.Envelope `json:"action"`
	Actions action.List      `json:"actions"`
}

func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req actRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid action: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case req.Action != nil && req.Action.Action != nil:
		var res action.Result
		var tick uint64
		s.Eng.Do(func(sim *engine.Simulation) {
			res = sim.ApplyAction(req.Action.Action)
			tick = sim.CurrentTick()
		})
		slog.Info("action applied via API", "kind", req.Action.Action.Kind(), "result", res.String())
		writeJSON(w, map[string]any{"tick": tick, "result": res})
	case req.Actions != nil:
		results, committed, err := s.Eng.ApplyBatch(req.Actions)
		if err != nil {
			slog.Error("batch rollback failed", "error", err)
			http.Error(w, "batch failed", http.StatusInternalServerError)
			return
		}
		var tick uint64
		s.Eng.Do(func(sim *engine.Simulation) { tick = sim.CurrentTick() })
		slog.Info("batch applied via API", "actions", len(req.Actions), "committed", committed)
		writeJSON(w, map[string]any{"tick": tick, "results": results, "committed": committed})
	default:
		http.Error(w, "body needs action or actions", http.StatusBadRequest)
	}
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed  *uint8 `json:"speed"`
			Paused *bool  `json:"paused"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed != nil && *req.Speed > 3 {
			http.Error(w, "speed must be 0-3", http.StatusBadRequest)
			return
		}
		s.Eng.Do(func(sim *engine.Simulation) {
			if req.Speed != nil {
				sim.ApplyAction(action.SetSpeed{Speed: *req.Speed})
			}
			if req.Paused != nil {
				sim.ApplyAction(action.SetPaused{Paused: *req.Paused})
			}
		})
		slog.Info("speed changed", "speed", req.Speed, "paused", req.Paused)
	}

	var speed uint8
	var paused bool
	s.Eng.Do(func(sim *engine.Simulation) { speed, paused = sim.Clock.Speed, sim.Clock.Paused })
	writeJSON(w, map[string]any{"speed": speed, "paused": paused})
}

// handleSnapshot lists save slots (GET) or saves the city (POST).
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		slots, err := s.DB.ListSlots()
		if err != nil {
			slog.Error("list slots failed", "error", err)
			http.Error(w, "list failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, slots)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "snapshot"
	}
	_, span := observability.Tracer().Start(r.Context(), "city.save", trace.WithAttributes(attribute.String("slot.name", name)))
	defer span.End()

	var data []byte
	var tick, seed uint64
	s.Eng.Do(func(sim *engine.Simulation) { data, tick, seed = sim.Save(), sim.CurrentTick(), sim.Seed })
	slot, err := s.DB.SaveSlot(name, tick, seed, data)
	if err != nil {
		span.RecordError(err)
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("slot.id", slot.ID), attribute.Int("slot.bytes", len(data)))

	writeJSON(w, map[string]any{
		"tick":    tick,
		"slot":    slot,
		"message": "snapshot saved (" + humanize.Bytes(uint64(len(data))) + ")",
	})
}

// handleLoad replaces the running city with a save slot:
// POST /api/v1/load {"slot": "<id>"}.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Slot string `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slot == "" {
		http.Error(w, "body needs slot", http.StatusBadRequest)
		return
	}

	_, span := observability.Tracer().Start(r.Context(), "city.load", trace.WithAttributes(attribute.String("slot.id", req.Slot)))
	defer span.End()

	slot, data, err := s.DB.LoadSlot(req.Slot)
	if errors.Is(err, persistence.ErrSlotNotFound) {
		http.Error(w, "no such slot", http.StatusNotFound)
		return
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("slot load failed", "slot", req.Slot, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	var opts engine.Options
	s.Eng.Do(func(sim *engine.Simulation) { opts = sim.Options() })
	sim, err := engine.Restore(data, opts)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "save is unreadable: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.Eng.Replace(sim)
	slog.Info("city loaded via API", "slot", slot.ID, "name", slot.Name, "tick", slot.Tick)
	writeJSON(w, map[string]any{"tick": slot.Tick, "slot": slot, "message": "city loaded"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusForbidden)
		return
	}
	if s.Hub.Len() >= MaxStreamClients {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	var obs engine.Observation
	s.Eng.Do(func(sim *engine.Simulation) { obs = sim.Observe() })
	hello, err := json.Marshal(Frame{Type: FrameObservation, Tick: obs.Tick, Payload: obs})
	if err != nil {
		http.Error(w, "encode observation", http.StatusInternalServerError)
		return
	}
	s.Hub.ServeWS(w, r, hello)
}

// StreamHook returns an engine tick hook that pushes an observation to
// stream spectators every n ticks.
func (s *Server) StreamHook(n uint64) func(*engine.Simulation) {
	return func(sim *engine.Simulation) {
		if s.Hub == nil || n == 0 || sim.CurrentTick()%n != 0 || s.Hub.Len() == 0 {
			return
		}
		obs := sim.Observe()
		data, err := json.Marshal(Frame{Type: FrameObservation, Tick: obs.Tick, Payload: obs})
		if err != nil {
			slog.Warn("stream frame encode failed", "error", err)
			return
		}
		s.Hub.Broadcast(data)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
