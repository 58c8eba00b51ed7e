package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/larpix-data/tracklet.report/internal/httputil"
	"github.com/larpix-data/tracklet.report/internal/trackdb"
	"github.com/larpix-data/tracklet.report/internal/units"
	"github.com/larpix-data/tracklet.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultListLimit bounds list responses unless the client asks for a
// different page size with the limit parameter.
const defaultListLimit = 100

// Unit conversion helpers
// Database stores all coordinates and lengths in mm; angles are radians and
// timestamps are clock ticks, neither is converted.
func convertTrackletLengths(t trackdb.TrackletRow, targetUnits string) trackdb.TrackletRow {
	t.XP = units.ConvertLength(t.XP, targetUnits)
	t.YP = units.ConvertLength(t.YP, targetUnits)
	t.ResidualX = units.ConvertLength(t.ResidualX, targetUnits)
	t.ResidualY = units.ConvertLength(t.ResidualY, targetUnits)
	t.ResidualZ = units.ConvertLength(t.ResidualZ, targetUnits)
	t.Length = units.ConvertLength(t.Length, targetUnits)
	t.StartX = units.ConvertLength(t.StartX, targetUnits)
	t.StartY = units.ConvertLength(t.StartY, targetUnits)
	t.StartZ = units.ConvertLength(t.StartZ, targetUnits)
	t.EndX = units.ConvertLength(t.EndX, targetUnits)
	t.EndY = units.ConvertLength(t.EndY, targetUnits)
	t.EndZ = units.ConvertLength(t.EndZ, targetUnits)
	return t
}

func convertTracklets(rows []*trackdb.TrackletRow, targetUnits string) []trackdb.TrackletRow {
	out := make([]trackdb.TrackletRow, len(rows))
	for i, t := range rows {
		out[i] = convertTrackletLengths(*t, targetUnits)
	}
	return out
}

type Server struct {
	events    *trackdb.EventStore
	runs      *trackdb.RunStore
	tracklets *trackdb.TrackletStore
	units     string
}

func NewServer(database *trackdb.DB, units string) *Server {
	return &Server{
		events:    trackdb.NewEventStore(database.DB),
		runs:      trackdb.NewRunStore(database.DB),
		tracklets: trackdb.NewTrackletStore(database.DB),
		units:     units,
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
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
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
	mux.HandleFunc("/api/health", s.health)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.showRun)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/events/", s.showEventTracklets)
	mux.HandleFunc("/api/tracklets/", s.showTracklet)
	return mux
}

// requestUnits resolves the length units for a response: the server default,
// overridden per request with ?units=mm|cm|m.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValidLength(u) {
		return "", fmt.Errorf("invalid units %q (valid: %s)", u, units.GetValidLengthUnitsString())
	}
	return u, nil
}

// listLimit parses the optional limit query parameter, defaulting to
// defaultListLimit.
func listLimit(r *http.Request) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return defaultListLimit, nil
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return parsed, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	count, err := s.events.CountEvents()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to count events: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":  "ok",
		"version": version.Info(),
		"events":  count,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":   s.units,
		"version": version.Info(),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := listLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	runs, err := s.runs.List(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*trackdb.RecoRun{}
	}

	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	runID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/runs/"))
	if runID == "" {
		httputil.BadRequest(w, "run id is required")
		return
	}

	run, err := s.runs.Get(runID)
	if err != nil {
		if errors.Is(err, trackdb.ErrNotFound) {
			httputil.NotFound(w, "run not found")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}

	httputil.WriteJSONOK(w, run)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := listLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	summaries, err := s.events.ListEventSummaries(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if summaries == nil {
		summaries = []trackdb.EventSummary{}
	}

	httputil.WriteJSONOK(w, summaries)
}

// showEventTracklets serves /api/events/{id}/tracklets: the tracklets
// reconstructed from one event, optionally filtered to a single run with
// ?run=<run_id>.
func (s *Server) showEventTracklets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/events/"), "/")
	if len(parts) != 2 || parts[1] != "tracklets" {
		httputil.NotFound(w, "unknown events resource")
		return
	}
	eventID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		httputil.BadRequest(w, "Invalid event id")
		return
	}

	targetUnits, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	rows, err := s.tracklets.ByEvent(eventID, r.URL.Query().Get("run"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve tracklets: %v", err))
		return
	}

	// An event with no reconstruction yields an empty list; an unknown event
	// is a 404.
	if len(rows) == 0 {
		ok, err := s.events.HasEvent(eventID)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to check event: %v", err))
			return
		}
		if !ok {
			httputil.NotFound(w, "event not found")
			return
		}
	}

	httputil.WriteJSONOK(w, convertTracklets(rows, targetUnits))
}

// showTracklet serves /api/tracklets/{id}: one tracklet record including its
// member hit slots and detector hit ids.
func (s *Server) showTracklet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	path := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/tracklets/"))
	trackletID, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		httputil.BadRequest(w, "Invalid tracklet id")
		return
	}

	targetUnits, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	tracklet, err := s.tracklets.Get(trackletID)
	if err != nil {
		if errors.Is(err, trackdb.ErrNotFound) {
			httputil.NotFound(w, "tracklet not found")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve tracklet: %v", err))
		return
	}

	httputil.WriteJSONOK(w, convertTrackletLengths(*tracklet, targetUnits))
}
