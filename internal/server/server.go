// Package server exposes the combat engine over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pefman/w40k-combat/internal/catalog"
	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/dice"
	"github.com/pefman/w40k-combat/internal/models"
	"github.com/pefman/w40k-combat/internal/sim"
	"github.com/pefman/w40k-combat/internal/stats"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Options tune a Server. Zero values fall back to sensible defaults.
type Options struct {
	MaxRounds int
	Workers   int
	Logger    *zap.Logger
	// Seeder picks a seed for requests that do not carry one.
	Seeder func() (uint64, error)
}

// Server serves battles between catalog units.
type Server struct {
	catalog *catalog.Catalog
	opts    Options
	log     *zap.Logger
	router  *mux.Router
	// battles served by POST /api/battles and /ws/battle
	tally stats.Tally
}

// New builds a Server over cat.
func New(cat *catalog.Catalog, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = combat.DefaultMaxRounds
	}
	if opts.Seeder == nil {
		opts.Seeder = dice.NewSeed
	}
	s := &Server{catalog: cat, opts: opts, log: opts.Logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/units", s.listUnits).Methods(http.MethodGet)
	api.HandleFunc("/units/{id}", s.getUnit).Methods(http.MethodGet)
	api.HandleFunc("/battles", s.postBattle).Methods(http.MethodPost)
	api.HandleFunc("/batches", s.postBatch).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.resetStats).Methods(http.MethodDelete)

	r.HandleFunc("/ws/battle", s.wsBattle)

	// A subrouter answers its own method mismatches; without these it
	// reports them to the root router as 404s.
	for _, rt := range []*mux.Router{r, api} {
		rt.NotFoundHandler = http.HandlerFunc(notFound)
		rt.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
	s.router = r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "unsupported path")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, r.Method+" not allowed")
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return withCORS(s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	ids := s.catalog.IDs()
	out := make([]models.UnitEntry, 0, len(ids))
	for _, id := range ids {
		u, err := s.catalog.Unit(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, models.UnitEntry{ID: id, Unit: u})
	}
	writeJSON(w, out)
}

func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, err := s.catalog.Unit(id)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, models.UnitEntry{ID: id, Unit: u})
}

func (s *Server) postBattle(w http.ResponseWriter, r *http.Request) {
	var req models.BattleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.battle(req, nil)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, resp)
}

func (s *Server) postBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	att, def, seed, err := s.matchup(req.BattleRequest)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	runner := sim.Runner{
		Workers:     s.opts.Workers,
		Seed:        seed,
		MaxRounds:   s.opts.MaxRounds,
		BattleShock: req.BattleShock,
		Logger:      s.log,
	}
	summary, err := runner.Run(r.Context(), att, def, req.Distance, req.Runs)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, models.BatchResponse{
		ID:           uuid.NewString(),
		Seed:         seed,
		Attacker:     req.Attacker,
		Defender:     req.Defender,
		AttackerName: att.Name,
		DefenderName: def.Name,
		Runs:         req.Runs,
		Summary:      summary,
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tally.Summary())
}

func (s *Server) resetStats(w http.ResponseWriter, r *http.Request) {
	s.tally.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// matchup looks up both units and settles the seed.
func (s *Server) matchup(req models.BattleRequest) (combat.Unit, combat.Unit, uint64, error) {
	att, err := s.catalog.Unit(req.Attacker)
	if err != nil {
		return combat.Unit{}, combat.Unit{}, 0, fmt.Errorf("attacker: %w", err)
	}
	def, err := s.catalog.Unit(req.Defender)
	if err != nil {
		return combat.Unit{}, combat.Unit{}, 0, fmt.Errorf("defender: %w", err)
	}
	if req.Seed != nil {
		return att, def, *req.Seed, nil
	}
	seed, err := s.opts.Seeder()
	if err != nil {
		return combat.Unit{}, combat.Unit{}, 0, err
	}
	return att, def, seed, nil
}

// battle fights one battle. When observe is set, events go there instead
// of into the response.
func (s *Server) battle(req models.BattleRequest, observe func(combat.Event)) (models.BattleResponse, error) {
	att, def, seed, err := s.matchup(req)
	if err != nil {
		return models.BattleResponse{}, err
	}
	id := uuid.NewString()
	e := combat.NewEngine(dice.NewRand(seed, 0), s.log.With(zap.String("battle", id)))
	e.MaxRounds = s.opts.MaxRounds
	e.BattleShock = req.BattleShock
	if observe != nil {
		e.Observe = observe
		e.SkipEvents = true
	}
	res, err := e.Simulate(att, def, req.Distance)
	if err != nil {
		return models.BattleResponse{}, err
	}
	s.tally.Record(res)
	return models.BattleResponse{
		ID:           id,
		Seed:         seed,
		Attacker:     req.Attacker,
		Defender:     req.Defender,
		AttackerName: att.Name,
		DefenderName: def.Name,
		Winner:       res.Winner,
		Rounds:       res.Rounds,
		Final:        models.FinalState{Attacker: res.Attacker, Defender: res.Defender},
		Events:       res.Events,
	}, nil
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, combat.ErrInvalidDistance),
		errors.Is(err, combat.ErrNoDamageSource),
		errors.Is(err, combat.ErrInvalidUnit),
		errors.Is(err, sim.ErrInvalidRuns):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: msg,
		Status:  code,
	})
}

// simple CORS for browser clients
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}
