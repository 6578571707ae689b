// Package api is the dealer's HTTP surface: status and calibration JSON,
// journal queries, remote start of games and tools, and the debug charts.
package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/db"
	"github.com/banshee-data/dealr/internal/dealer"
	"github.com/banshee-data/dealr/internal/httputil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// commandTimeout bounds how long a request waits for the control loop to
// pick up a queued command.
var commandTimeout = 2 * time.Second

var errLoopTimeout = errors.New("control loop did not respond")

type Server struct {
	dealer  *dealer.Dealer
	store   *calibration.Store
	journal *db.DB
	sim     SimControl
}

// NewServer wires the HTTP handlers to a running dealer. journal may be nil
// when no database is configured.
func NewServer(d *dealer.Dealer, store *calibration.Store, journal *db.DB) *Server {
	return &Server{
		dealer:  d,
		store:   store,
		journal: journal,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("GET /api/calibration", s.showCalibration)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}/cards", s.listSessionCards)
	mux.HandleFunc("POST /api/game", s.startGame)
	mux.HandleFunc("POST /api/tool", s.startTool)
	mux.HandleFunc("POST /api/abort", s.abort)
	if s.sim != nil {
		mux.HandleFunc("POST /api/sim/press", s.simPress)
		mux.HandleFunc("POST /api/sim/jam", s.simJam)
	}
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.dealer.Snapshot())
}

type centroidAPI struct {
	Identity int    `json:"identity"`
	Name     string `json:"name"`
	R        uint16 `json:"r"`
	G        uint16 `json:"g"`
	B        uint16 `json:"b"`
	AvgC     uint16 `json:"avg_c"`
}

type calibrationAPI struct {
	Version   uint8         `json:"version"`
	Threshold uint16        `json:"mark_threshold"`
	Table     []centroidAPI `json:"table"`
}

func (s *Server) showCalibration(w http.ResponseWriter, r *http.Request) {
	table := s.store.Table()
	out := calibrationAPI{
		Version:   calibration.FormatVersion,
		Threshold: s.store.Threshold(),
		Table:     make([]centroidAPI, len(table)),
	}
	for i, c := range table {
		id := calibration.Identity(i)
		out.Table[i] = centroidAPI{Identity: i, Name: strings.TrimSpace(id.Name()), R: c.R, G: c.G, B: c.B, AvgC: c.AvgC}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		httputil.NotFound(w, "No journal database configured")
		return
	}

	limit := defaultSessionLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxSessionLimit {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.journal.RecentSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listSessionCards(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		httputil.NotFound(w, "No journal database configured")
		return
	}
	cards, err := s.journal.SessionCards(r.PathValue("id"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve cards: %v", err))
		return
	}
	if cards == nil {
		cards = []db.Card{}
	}
	httputil.WriteJSONOK(w, cards)
}

// runOnLoop queues fn on the control loop and waits for its result.
func (s *Server) runOnLoop(r *http.Request, fn func(*dealer.Dealer) error) error {
	result := make(chan error, 1)
	if err := s.dealer.Enqueue(func(d *dealer.Dealer) { result <- fn(d) }); err != nil {
		return err
	}
	timer := time.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errLoopTimeout
	case <-r.Context().Done():
		return r.Context().Err()
	}
}

func (s *Server) writeCommandResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
	case errors.Is(err, dealer.ErrBusy):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, errLoopTimeout):
		httputil.ServiceUnavailable(w, err.Error())
	default:
		httputil.BadRequest(w, err.Error())
	}
}

func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil || index < 0 {
		httputil.BadRequest(w, "Invalid 'index' parameter")
		return
	}
	err = s.runOnLoop(r, func(d *dealer.Dealer) error { return d.StartGame(index) })
	s.writeCommandResult(w, err)
}

// toolByName accepts either the tool's display label or its long name.
func toolByName(name string) (dealer.Tool, bool) {
	for _, t := range dealer.Tools {
		if strings.EqualFold(name, t.Label()) || strings.EqualFold(name, t.String()) {
			return t, true
		}
	}
	return dealer.NoTool, false
}

func (s *Server) startTool(w http.ResponseWriter, r *http.Request) {
	tool, ok := toolByName(r.FormValue("name"))
	if !ok {
		httputil.BadRequest(w, "Invalid 'name' parameter")
		return
	}
	err := s.runOnLoop(r, func(d *dealer.Dealer) error { return d.StartTool(tool) })
	s.writeCommandResult(w, err)
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	err := s.runOnLoop(r, func(d *dealer.Dealer) error {
		d.Abort(dealer.ErrOperatorAbort)
		return nil
	})
	s.writeCommandResult(w, err)
}
