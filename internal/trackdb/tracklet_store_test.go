package trackdb

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/larpix-data/tracklet.report/internal/pipeline"
	"github.com/larpix-data/tracklet.report/internal/reco"
)

// seedRunWithEvents creates a run record plus the events the tracklets will
// reference, returning the run id.
func seedRunWithEvents(t *testing.T, db *DB, eventIDs ...int64) string {
	t.Helper()

	events := NewEventStore(db.DB)
	var evs []reco.Event
	for _, id := range eventIDs {
		evs = append(evs, reco.Event{
			ID: id,
			T0: reco.EventT0{TS: 0},
			Hits: []reco.Hit{
				{ID: 1, Valid: true}, {ID: 2, Valid: true}, {ID: 3, Valid: true},
			},
		})
	}
	if err := events.IngestEvents(evs); err != nil {
		t.Fatalf("failed to seed events: %v", err)
	}

	runs := NewRunStore(db.DB)
	runID, err := runs.Create(nil)
	if err != nil {
		t.Fatalf("failed to seed run: %v", err)
	}
	return runID
}

func sampleAssembled() []pipeline.AssembledTracklet {
	return []pipeline.AssembledTracklet{
		{
			EventID: 1,
			Params: reco.Tracklet{
				ID: 0, Theta: 0.5, Phi: -1.2, XP: 10, YP: -20,
				NHit: 2, Q: 7.5, TSStart: 100, TSEnd: 140,
				Residual: [3]float64{0.1, 0.2, 0.3}, Length: 42,
				Start: reco.Point3{X: 1, Y: 2, Z: 3},
				End:   reco.Point3{X: 4, Y: 5, Z: 6},
			},
			HitSlots: []int{0, 2},
		},
		{
			EventID: 1,
			Params: reco.Tracklet{
				ID: 1, Theta: 1.1, NHit: 1, Q: 2,
				Start: reco.Point3{}, End: reco.Point3{},
			},
			HitSlots: []int{1},
		},
		{
			EventID:  2,
			Params:   reco.Tracklet{ID: 0, Theta: 0.9, NHit: 2, Q: 3},
			HitSlots: []int{0, 1},
		},
	}
}

func TestTrackletStore_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	runID := seedRunWithEvents(t, db, 1, 2)
	store := NewTrackletStore(db.DB)

	if err := store.InsertAssembled(runID, sampleAssembled()); err != nil {
		t.Fatalf("InsertAssembled failed: %v", err)
	}

	rows, err := store.ByRun(runID)
	if err != nil {
		t.Fatalf("ByRun failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 tracklets, got %d", len(rows))
	}

	got, err := store.Get(rows[0].TrackletID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RunID != runID || got.EventID != 1 || got.TrackIndex != 0 {
		t.Errorf("identity mismatch: run=%s event=%d index=%d", got.RunID, got.EventID, got.TrackIndex)
	}
	if got.Theta != 0.5 || got.Phi != -1.2 || got.XP != 10 || got.YP != -20 {
		t.Errorf("angle/intersection mismatch: theta=%f phi=%f xp=%f yp=%f", got.Theta, got.Phi, got.XP, got.YP)
	}
	if got.NHit != 2 || got.Q != 7.5 || got.TSStart != 100 || got.TSEnd != 140 {
		t.Errorf("summary mismatch: nhit=%d q=%f ts=[%f,%f]", got.NHit, got.Q, got.TSStart, got.TSEnd)
	}
	if got.ResidualX != 0.1 || got.ResidualY != 0.2 || got.ResidualZ != 0.3 {
		t.Errorf("residual mismatch: (%f,%f,%f)", got.ResidualX, got.ResidualY, got.ResidualZ)
	}
	if got.Length != 42 || got.StartZ != 3 || got.EndX != 4 {
		t.Errorf("extent mismatch: length=%f start_z=%f end_x=%f", got.Length, got.StartZ, got.EndX)
	}
	if diff := cmp.Diff([]int{0, 2}, got.HitSlots); diff != "" {
		t.Errorf("hit slots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 3}, got.HitIDs); diff != "" {
		t.Errorf("hit ids mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackletStore_ByRunOrdered(t *testing.T) {
	db := newTestDB(t)
	runID := seedRunWithEvents(t, db, 1, 2)
	store := NewTrackletStore(db.DB)

	if err := store.InsertAssembled(runID, sampleAssembled()); err != nil {
		t.Fatalf("InsertAssembled failed: %v", err)
	}

	rows, err := store.ByRun(runID)
	if err != nil {
		t.Fatalf("ByRun failed: %v", err)
	}

	type key struct {
		event int64
		index int
	}
	var got []key
	for _, r := range rows {
		got = append(got, key{r.EventID, r.TrackIndex})
	}
	want := []key{{1, 0}, {1, 1}, {2, 0}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(key{})); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	// List queries leave HitSlots unpopulated.
	if rows[0].HitSlots != nil {
		t.Error("ByRun should not populate hit slots")
	}
}

func TestTrackletStore_ByEvent(t *testing.T) {
	db := newTestDB(t)
	runID := seedRunWithEvents(t, db, 1, 2)
	store := NewTrackletStore(db.DB)

	if err := store.InsertAssembled(runID, sampleAssembled()); err != nil {
		t.Fatalf("InsertAssembled failed: %v", err)
	}

	rows, err := store.ByEvent(1, runID)
	if err != nil {
		t.Fatalf("ByEvent failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 tracklets for event 1, got %d", len(rows))
	}

	all, err := store.ByEvent(1, "")
	if err != nil {
		t.Fatalf("ByEvent without run filter failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 tracklets without filter, got %d", len(all))
	}

	none, err := store.ByEvent(99, "")
	if err != nil {
		t.Fatalf("ByEvent for unknown event failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no tracklets for unknown event, got %d", len(none))
	}
}

func TestTrackletStore_GetNotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewTrackletStore(db.DB)

	_, err := store.Get(12345)
	if err == nil {
		t.Fatal("expected error for nonexistent tracklet, got nil")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrackletStore_InsertEmpty(t *testing.T) {
	db := newTestDB(t)
	store := NewTrackletStore(db.DB)

	if err := store.InsertAssembled("run", nil); err != nil {
		t.Errorf("empty insert should be a no-op, got %v", err)
	}
}

func TestTrackletStore_MembershipReferencesGlobalIDs(t *testing.T) {
	db := newTestDB(t)
	runID := seedRunWithEvents(t, db, 1, 2)
	store := NewTrackletStore(db.DB)

	if err := store.InsertAssembled(runID, sampleAssembled()); err != nil {
		t.Fatalf("InsertAssembled failed: %v", err)
	}

	// Every membership row must point at an existing tracklet row.
	var orphans int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM tracklet_hits th
		LEFT JOIN tracklets t ON t.tracklet_id = th.tracklet_id
		WHERE t.tracklet_id IS NULL`).Scan(&orphans)
	if err != nil {
		t.Fatalf("orphan check failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected 0 orphan membership rows, got %d", orphans)
	}

	var memberships int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tracklet_hits`).Scan(&memberships); err != nil {
		t.Fatalf("membership count failed: %v", err)
	}
	if memberships != 5 {
		t.Errorf("expected 5 membership rows, got %d", memberships)
	}
}
