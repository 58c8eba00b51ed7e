package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/larpix-data/tracklet.report/internal/pipeline"
	"github.com/larpix-data/tracklet.report/internal/reco"
	"github.com/larpix-data/tracklet.report/internal/trackdb"
	"github.com/larpix-data/tracklet.report/internal/units"
)

func TestConvertTrackletLengths(t *testing.T) {
	row := trackdb.TrackletRow{
		Theta:   0.5,
		Phi:     -1.2,
		XP:      100,
		YP:      -50,
		Length:  250,
		StartZ:  -300,
		EndZ:    -50,
		TSStart: 1010,
	}

	tests := []struct {
		units      string
		wantXP     float64
		wantLength float64
	}{
		{units.MM, 100, 250},
		{units.CM, 10, 25},
		{units.M, 0.1, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			got := convertTrackletLengths(row, tt.units)
			if math.Abs(got.XP-tt.wantXP) > 1e-9 {
				t.Errorf("XP = %f, want %f", got.XP, tt.wantXP)
			}
			if math.Abs(got.Length-tt.wantLength) > 1e-9 {
				t.Errorf("Length = %f, want %f", got.Length, tt.wantLength)
			}
			// Angles and timestamps are never converted.
			if got.Theta != 0.5 || got.Phi != -1.2 {
				t.Errorf("angles changed: theta=%f phi=%f", got.Theta, got.Phi)
			}
			if got.TSStart != 1010 {
				t.Errorf("TSStart changed: %f", got.TSStart)
			}
		})
	}
}

// setupTestServer builds a server over a migrated scratch database seeded
// with two events and one completed run holding one tracklet per event.
func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	database, err := trackdb.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	events := trackdb.NewEventStore(database.DB)
	err = events.IngestEvents([]reco.Event{
		{
			ID: 1,
			T0: reco.EventT0{TS: 1000, Type: 1},
			Hits: []reco.Hit{
				{ID: 100, Valid: true, TS: 1010, Q: 2, IOGroup: 1, IOChannel: 1, PX: 10, PY: 20},
				{ID: 101, Valid: true, TS: 1020, Q: 3, IOGroup: 1, IOChannel: 1, PX: 30, PY: 40},
				{ID: 102, Valid: false},
				{ID: 103, Valid: true, TS: 1030, Q: 1, IOGroup: 1, IOChannel: 1, PX: 50, PY: 60},
			},
		},
		{
			ID: 2,
			T0: reco.EventT0{TS: 2000, Type: 2},
			Hits: []reco.Hit{
				{ID: 200, Valid: true, TS: 2005, Q: 1, IOGroup: 1, IOChannel: 1, PX: 0, PY: 0},
				{ID: 201, Valid: true, TS: 2010, Q: 1, IOGroup: 1, IOChannel: 1, PX: 10, PY: 10},
			},
		},
	})
	if err != nil {
		t.Fatalf("Failed to ingest test events: %v", err)
	}

	runs := trackdb.NewRunStore(database.DB)
	runID, err := runs.Create([]byte(`{"dbscan_eps": 25}`))
	if err != nil {
		t.Fatalf("Failed to create test run: %v", err)
	}

	tracklets := trackdb.NewTrackletStore(database.DB)
	err = tracklets.InsertAssembled(runID, []pipeline.AssembledTracklet{
		{
			EventID: 1,
			Params: reco.Tracklet{
				ID: 0, Theta: 0.5, Phi: 1.0, XP: 100, YP: -50,
				NHit: 3, Q: 6, TSStart: 1010, TSEnd: 1030,
				Residual: [3]float64{1, 2, 3}, Length: 250,
				Start: reco.Point3{X: 10, Y: 20, Z: 0},
				End:   reco.Point3{X: 50, Y: 60, Z: 240},
			},
			HitSlots: []int{0, 1, 3},
		},
		{
			EventID: 2,
			Params: reco.Tracklet{
				ID: 0, Theta: 1.2, Phi: -0.3, XP: 5, YP: 6,
				NHit: 2, Q: 2, TSStart: 2005, TSEnd: 2010,
				Residual: [3]float64{0.1, 0.2, 0.3}, Length: 30,
				Start: reco.Point3{X: 0, Y: 0, Z: 0},
				End:   reco.Point3{X: 10, Y: 10, Z: 25},
			},
			HitSlots: []int{0, 1},
		},
	})
	if err != nil {
		t.Fatalf("Failed to insert test tracklets: %v", err)
	}

	if err := runs.Complete(runID, 2, 2); err != nil {
		t.Fatalf("Failed to complete test run: %v", err)
	}

	return NewServer(database, units.MM), runID
}

func doRequest(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", health["status"])
	}
	if health["events"] != float64(2) {
		t.Errorf("Expected 2 events, got %v", health["events"])
	}
	if health["version"] == "" {
		t.Error("Expected a version string")
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/health")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestShowConfig(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/config")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var config map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&config); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if config["units"] != units.MM {
		t.Errorf("Expected units mm, got %v", config["units"])
	}
}

func TestListRuns(t *testing.T) {
	server, runID := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var runs []trackdb.RecoRun
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].RunID != runID {
		t.Errorf("Expected run %s, got %s", runID, runs[0].RunID)
	}
	if runs[0].Status != trackdb.RunStatusCompleted {
		t.Errorf("Expected completed run, got %s", runs[0].Status)
	}
	if runs[0].NTracklets != 2 {
		t.Errorf("Expected 2 tracklets, got %d", runs[0].NTracklets)
	}
}

func TestListRuns_InvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/runs?limit=zero")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestShowRun(t *testing.T) {
	server, runID := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/runs/"+runID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var run trackdb.RecoRun
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if run.RunID != runID {
		t.Errorf("Expected run %s, got %s", runID, run.RunID)
	}

	var params map[string]float64
	if err := json.Unmarshal(run.ParamsJSON, &params); err != nil {
		t.Fatalf("Failed to decode params: %v", err)
	}
	if params["dbscan_eps"] != 25 {
		t.Errorf("Expected dbscan_eps 25, got %v", params["dbscan_eps"])
	}
}

func TestShowRun_NotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/runs/no-such-run")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var summaries []trackdb.EventSummary
	if err := json.NewDecoder(w.Body).Decode(&summaries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(summaries))
	}
	first := summaries[0]
	if first.EventID != 1 {
		t.Errorf("Expected event 1 first, got %d", first.EventID)
	}
	if first.NHits != 4 || first.NValid != 3 {
		t.Errorf("Expected 4 hits with 3 valid, got %d/%d", first.NHits, first.NValid)
	}
}

func TestListEvents_Limit(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var summaries []trackdb.EventSummary
	if err := json.NewDecoder(w.Body).Decode(&summaries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("Expected 1 event with limit, got %d", len(summaries))
	}
}

func TestShowEventTracklets(t *testing.T) {
	server, runID := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events/1/tracklets")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var rows []trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 tracklet, got %d", len(rows))
	}
	got := rows[0]
	if got.EventID != 1 || got.RunID != runID {
		t.Errorf("Unexpected tracklet identity: event=%d run=%s", got.EventID, got.RunID)
	}
	if got.NHit != 3 {
		t.Errorf("Expected 3 hits, got %d", got.NHit)
	}
	if math.Abs(got.XP-100) > 1e-9 || math.Abs(got.Length-250) > 1e-9 {
		t.Errorf("Expected mm values, got xp=%f length=%f", got.XP, got.Length)
	}
}

func TestShowEventTracklets_UnitsOverride(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events/1/tracklets?units=cm")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var rows []trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 tracklet, got %d", len(rows))
	}
	got := rows[0]
	if math.Abs(got.XP-10) > 1e-9 || math.Abs(got.Length-25) > 1e-9 {
		t.Errorf("Expected cm values, got xp=%f length=%f", got.XP, got.Length)
	}
	if math.Abs(got.Theta-0.5) > 1e-9 {
		t.Errorf("Theta must stay in radians, got %f", got.Theta)
	}
}

func TestShowEventTracklets_InvalidUnits(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events/1/tracklets?units=furlong")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestShowEventTracklets_UnknownEvent(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events/99/tracklets")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestShowEventTracklets_BadPath(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/events/1/hits")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown subresource, got %d", w.Code)
	}

	w = doRequest(t, server, http.MethodGet, "/api/events/one/tracklets")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad event id, got %d", w.Code)
	}
}

func TestShowEventTracklets_RunFilter(t *testing.T) {
	server, _ := setupTestServer(t)

	// A second run over the same event.
	otherRunID, err := server.runs.Create(nil)
	if err != nil {
		t.Fatalf("Failed to create second run: %v", err)
	}
	err = server.tracklets.InsertAssembled(otherRunID, []pipeline.AssembledTracklet{
		{
			EventID:  1,
			Params:   reco.Tracklet{ID: 0, NHit: 2, Length: 10},
			HitSlots: []int{0, 1},
		},
	})
	if err != nil {
		t.Fatalf("Failed to insert second run tracklet: %v", err)
	}

	w := doRequest(t, server, http.MethodGet, "/api/events/1/tracklets")
	var all []trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 tracklets across runs, got %d", len(all))
	}

	w = doRequest(t, server, http.MethodGet, "/api/events/1/tracklets?run="+otherRunID)
	var filtered []trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&filtered); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(filtered) != 1 || filtered[0].RunID != otherRunID {
		t.Errorf("Expected 1 tracklet from run %s, got %d", otherRunID, len(filtered))
	}

	// Known event, run with no tracklets for it: empty list, not a 404.
	w = doRequest(t, server, http.MethodGet, "/api/events/2/tracklets?run="+otherRunID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var none []trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&none); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no tracklets, got %d", len(none))
	}
}

func TestShowTracklet(t *testing.T) {
	server, runID := setupTestServer(t)

	// Global ids are assigned by the database in insertion order.
	w := doRequest(t, server, http.MethodGet, "/api/tracklets/1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.TrackletID != 1 || got.EventID != 1 || got.RunID != runID {
		t.Errorf("Unexpected tracklet identity: id=%d event=%d run=%s", got.TrackletID, got.EventID, got.RunID)
	}
	if fmt.Sprintf("%v", got.HitSlots) != "[0 1 3]" {
		t.Errorf("Expected hit slots [0 1 3], got %v", got.HitSlots)
	}
	if fmt.Sprintf("%v", got.HitIDs) != "[100 101 103]" {
		t.Errorf("Expected hit ids [100 101 103], got %v", got.HitIDs)
	}
}

func TestShowTracklet_UnitsOverride(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/tracklets/1?units=m")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got trackdb.TrackletRow
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if math.Abs(got.Length-0.25) > 1e-9 {
		t.Errorf("Expected length 0.25 m, got %f", got.Length)
	}
	if math.Abs(got.EndZ-0.24) > 1e-9 {
		t.Errorf("Expected end_z 0.24 m, got %f", got.EndZ)
	}
}

func TestShowTracklet_NotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/tracklets/999")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = doRequest(t, server, http.MethodGet, "/api/tracklets/abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad id, got %d", w.Code)
	}
}
