// Package api serves the game session over HTTP.
// GET endpoints are public and read-only. Play endpoints drive the shared
// session. POST /api/v1/new, and rolls that supply their own faces, require
// the admin bearer token.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/stackrank/internal/dice"
	"github.com/talgya/stackrank/internal/engine"
	"github.com/talgya/stackrank/internal/entropy"
	"github.com/talgya/stackrank/internal/persistence"
	"github.com/talgya/stackrank/internal/world"
)

// Server serves one game session over HTTP.
type Server struct {
	Session  *engine.Session
	Dice     dice.Source     // Server-side rolls
	Reinf    engine.Intner   // Reinforcement source for games started via /new
	Gen      world.GenConfig // Base generation config for /new
	Archive  *persistence.DB // Optional; nil disables the match endpoints
	Port     int
	AdminKey string // Bearer token for /new and supplied dice faces. Empty = disabled.

	// TrustedProxies are the addresses allowed to set X-Forwarded-For for
	// rate limiting.
	TrustedProxies []string

	streamConns int32
	upgrader    websocket.Upgrader
	httpSrv     *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	newLimiter := NewRateLimiter(20, time.Hour).TrustProxies(s.TrustedProxies...)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()

	// Public reads.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/board", s.handleBoard)
	mux.HandleFunc("GET /api/v1/region/{id}", s.handleRegion)
	mux.HandleFunc("GET /api/v1/log", s.handleLog)
	mux.HandleFunc("GET /api/v1/matches", s.handleMatches)
	mux.HandleFunc("GET /api/v1/match/{id}", s.handleMatch)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Play.
	mux.HandleFunc("POST /api/v1/select", s.handleSelect)
	mux.HandleFunc("POST /api/v1/combat", s.handleCombat)
	mux.HandleFunc("POST /api/v1/combat/roll", s.handleRoll)
	mux.HandleFunc("POST /api/v1/pass", s.handlePass)

	// Admin.
	mux.HandleFunc("POST /api/v1/new", RateLimitMiddleware(newLimiter, s.adminOnly(s.handleNew)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "archive", s.Archive != nil)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Close stops the listener.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra origins.
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
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no STACKRANK_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// regionView is a region as presented to clients.
type regionView struct {
	world.Region
	Center    world.HexCoord `json:"center"`
	Playable  bool           `json:"playable"`
	Neighbors []int          `json:"neighbors"`
	Relief    float64        `json:"relief"`
}

func viewRegion(b *world.Board, r world.Region, playable map[int]bool) regionView {
	return regionView{
		Region:    r,
		Center:    r.CenterHex(),
		Playable:  playable[r.ID],
		Neighbors: b.Neighbors(r.ID),
		Relief:    b.RegionRelief(r.ID),
	}
}

func playableSet(snap engine.Snapshot) map[int]bool {
	set := make(map[int]bool, len(snap.Playable))
	for _, id := range snap.Playable {
		set[id] = true
	}
	return set
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Session.Snapshot()
	status := map[string]any{
		"match":          s.Session.ID(),
		"players":        snap.NumPlayers,
		"turn_of_player": snap.TurnOfPlayer,
		"turn_counter":   snap.TurnCounter,
		"pending":        snap.Pending,
		"regions":        len(snap.Board.Regions),
		"regions_owned":  snap.Board.RegionsByOwner(),
		"dice_owned":     snap.Board.DiceByOwner(),
		"combats":        len(snap.Log),
		"winner":         snap.Winner,
	}
	if id, ok := s.Session.Selected(); ok {
		status["selected"] = id
	}
	writeJSON(w, status)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	snap := s.Session.Snapshot()
	playable := playableSet(snap)
	regions := make([]regionView, len(snap.Board.Regions))
	for i, reg := range snap.Board.Regions {
		regions[i] = viewRegion(snap.Board, reg, playable)
	}
	writeJSON(w, map[string]any{
		"seed":           snap.Board.Seed,
		"extent":         snap.Board.Extent,
		"turn_of_player": snap.TurnOfPlayer,
		"regions":        regions,
	})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid region id", http.StatusBadRequest)
		return
	}
	snap := s.Session.Snapshot()
	reg := snap.Board.Region(id)
	if reg == nil {
		http.Error(w, "region not found", http.StatusNotFound)
		return
	}
	writeJSON(w, viewRegion(snap.Board, *reg, playableSet(snap)))
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries := s.Session.Snapshot().Log
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, entries)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region *int `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Region == nil {
		http.Error(w, "invalid json: want {\"region\": id}", http.StatusBadRequest)
		return
	}
	res, entry, err := s.Session.Click(*req.Region)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"selected": res.Selected,
		"attack":   res.Attack,
		"combat":   entry,
	})
}

func (s *Server) handleCombat(w http.ResponseWriter, r *http.Request) {
	var req engine.Attack
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	entry, err := s.Session.Attack(req.Attacker, req.Defender)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Debug("combat declared via api", "attacker", req.Attacker, "defender", req.Defender)
	writeJSON(w, entry)
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dice1 []int `json:"dice_1"`
		Dice2 []int `json:"dice_2"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	supplied := len(req.Dice1) > 0 || len(req.Dice2) > 0
	if supplied && (s.AdminKey == "" || !s.checkBearerToken(r)) {
		http.Error(w, "supplied dice faces require the admin token", http.StatusForbidden)
		return
	}
	if supplied {
		for _, f := range append(append([]int{}, req.Dice1...), req.Dice2...) {
			if f < 1 || f > dice.Sides {
				http.Error(w, fmt.Sprintf("die face %d outside 1-%d", f, dice.Sides), http.StatusBadRequest)
				return
			}
		}
	}

	var mismatch string
	out, err := s.Session.Roll(func(a, d int) ([]int, []int) {
		if !supplied {
			return dice.RollCombat(s.Dice, a, d)
		}
		if len(req.Dice1) != a || len(req.Dice2) != d {
			mismatch = fmt.Sprintf("want %d attacker and %d defender faces", a, d)
			return nil, nil
		}
		return req.Dice1, req.Dice2
	})
	if mismatch != "" {
		http.Error(w, mismatch, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handlePass(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Session.Pass()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ts)
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Players int   `json:"players"`
		Seed    int64 `json:"seed"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	cfg := s.Gen
	if req.Players != 0 {
		cfg.Players = req.Players
	}
	cfg.Seed = req.Seed
	if cfg.Seed == 0 {
		seed, err := entropy.NewSeed()
		if err != nil {
			http.Error(w, "seed unavailable", http.StatusInternalServerError)
			return
		}
		cfg.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	board, err := world.Generate(cfg)
	if err != nil {
		slog.Warn("board generation failed", "seed", cfg.Seed, "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	id := uuid.NewString()
	s.Session.Reset(id, engine.NewGame(board, cfg.Players, s.Reinf))
	slog.Info("new game started", "match", id, "players", cfg.Players, "seed", cfg.Seed, "regions", len(board.Regions))

	writeJSONStatus(w, http.StatusCreated, map[string]any{"id": id, "players": cfg.Players, "seed": cfg.Seed})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	matches, err := s.Archive.RecentMatches(limit)
	if err != nil {
		slog.Error("list matches failed", "error", err)
		http.Error(w, "archive error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, matches)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	rec, err := s.Archive.LoadMatch(r.PathValue("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load match failed", "error", err)
		http.Error(w, "archive error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownRegion):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotAdjacent), errors.Is(err, engine.ErrEmptyRoll):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrGameOver),
		errors.Is(err, engine.ErrCombatPending),
		errors.Is(err, engine.ErrNoPendingCombat),
		errors.Is(err, engine.ErrNotYourRegion),
		errors.Is(err, engine.ErrAlreadyMoved),
		errors.Is(err, engine.ErrHasMoves):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONStatus(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}
