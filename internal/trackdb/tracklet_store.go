package trackdb

import (
	"database/sql"
	"fmt"

	"github.com/larpix-data/tracklet.report/internal/pipeline"
)

// TrackletRow is a persisted tracklet. TrackletID is database-global and is
// what tracklet_hits references; TrackIndex is the id the extractor assigned
// within the event. HitSlots and HitIDs are only populated by Get.
type TrackletRow struct {
	TrackletID int64   `json:"tracklet_id"`
	RunID      string  `json:"run_id"`
	EventID    int64   `json:"event_id"`
	TrackIndex int     `json:"track_index"`
	Theta      float64 `json:"theta"`
	Phi        float64 `json:"phi"`
	XP         float64 `json:"xp"`
	YP         float64 `json:"yp"`
	NHit       int     `json:"nhit"`
	Q          float64 `json:"q"`
	TSStart    float64 `json:"ts_start"`
	TSEnd      float64 `json:"ts_end"`
	ResidualX  float64 `json:"residual_x"`
	ResidualY  float64 `json:"residual_y"`
	ResidualZ  float64 `json:"residual_z"`
	Length     float64 `json:"length"`
	StartX     float64 `json:"start_x"`
	StartY     float64 `json:"start_y"`
	StartZ     float64 `json:"start_z"`
	EndX       float64 `json:"end_x"`
	EndY       float64 `json:"end_y"`
	EndZ       float64 `json:"end_z"`
	HitSlots   []int   `json:"hit_slots,omitempty"`
	HitIDs     []int64 `json:"hit_ids,omitempty"`
}

// TrackletStore provides persistence for reconstructed tracklets and their
// hit membership.
type TrackletStore struct {
	db *sql.DB
}

// NewTrackletStore creates a new TrackletStore.
func NewTrackletStore(db *sql.DB) *TrackletStore {
	return &TrackletStore{db: db}
}

// InsertAssembled stores a run's tracklets and their hit membership in one
// transaction; either the whole run output lands or none of it. The database
// assigns each tracklet its global id, and membership rows are written
// against that id.
func (s *TrackletStore) InsertAssembled(runID string, tracklets []pipeline.AssembledTracklet) error {
	if len(tracklets) == 0 {
		return nil
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tracklet insert: %w", err)
		}
		defer tx.Rollback()

		insertTracklet, err := tx.Prepare(`
			INSERT INTO tracklets (
				run_id, event_id, track_index, theta, phi, xp, yp,
				nhit, q, ts_start, ts_end,
				residual_x, residual_y, residual_z, length,
				start_x, start_y, start_z, end_x, end_y, end_z
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare tracklet insert: %w", err)
		}
		defer insertTracklet.Close()

		insertHit, err := tx.Prepare(`
			INSERT INTO tracklet_hits (tracklet_id, event_id, slot)
			VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare membership insert: %w", err)
		}
		defer insertHit.Close()

		for _, at := range tracklets {
			p := at.Params
			result, err := insertTracklet.Exec(
				runID, at.EventID, p.ID, p.Theta, p.Phi, p.XP, p.YP,
				p.NHit, p.Q, p.TSStart, p.TSEnd,
				p.Residual[0], p.Residual[1], p.Residual[2], p.Length,
				p.Start.X, p.Start.Y, p.Start.Z, p.End.X, p.End.Y, p.End.Z,
			)
			if err != nil {
				return fmt.Errorf("insert tracklet %d of event %d: %w", p.ID, at.EventID, err)
			}

			trackletID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("tracklet id for event %d: %w", at.EventID, err)
			}

			for _, slot := range at.HitSlots {
				if _, err := insertHit.Exec(trackletID, at.EventID, slot); err != nil {
					return fmt.Errorf("insert membership slot %d of tracklet %d: %w", slot, trackletID, err)
				}
			}
		}

		return tx.Commit()
	})
}

const trackletColumns = `
	tracklet_id, run_id, event_id, track_index, theta, phi, xp, yp,
	nhit, q, ts_start, ts_end,
	residual_x, residual_y, residual_z, length,
	start_x, start_y, start_z, end_x, end_y, end_z`

// Get returns a single tracklet with its member hit slots.
func (s *TrackletStore) Get(trackletID int64) (*TrackletRow, error) {
	row := s.db.QueryRow(`
		SELECT `+trackletColumns+`
		FROM tracklets
		WHERE tracklet_id = ?`, trackletID)

	t, err := scanTracklet(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tracklet %d: %w", trackletID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan tracklet: %w", err)
	}

	slots, ids, err := s.members(trackletID)
	if err != nil {
		return nil, err
	}
	t.HitSlots = slots
	t.HitIDs = ids

	return t, nil
}

// ByRun returns all tracklets of a run, ordered by event then track index.
func (s *TrackletStore) ByRun(runID string) ([]*TrackletRow, error) {
	rows, err := s.db.Query(`
		SELECT `+trackletColumns+`
		FROM tracklets
		WHERE run_id = ?
		ORDER BY event_id ASC, track_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tracklets by run: %w", err)
	}
	return collectTracklets(rows)
}

// ByEvent returns an event's tracklets. With a non-empty runID only that
// run's output is returned, otherwise tracklets from every run.
func (s *TrackletStore) ByEvent(eventID int64, runID string) ([]*TrackletRow, error) {
	query := `
		SELECT ` + trackletColumns + `
		FROM tracklets
		WHERE event_id = ?`
	args := []interface{}{eventID}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY run_id ASC, track_index ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracklets by event: %w", err)
	}
	return collectTracklets(rows)
}

// members returns a tracklet's hit slots and the detector hit ids stored in
// those slots, in ascending slot order.
func (s *TrackletStore) members(trackletID int64) ([]int, []int64, error) {
	rows, err := s.db.Query(`
		SELECT th.slot, h.hit_id
		FROM tracklet_hits th
		JOIN hits h ON h.event_id = th.event_id AND h.slot = th.slot
		WHERE th.tracklet_id = ?
		ORDER BY th.slot ASC`, trackletID)
	if err != nil {
		return nil, nil, fmt.Errorf("query tracklet hits: %w", err)
	}
	defer rows.Close()

	var slots []int
	var ids []int64
	for rows.Next() {
		var slot int
		var hitID int64
		if err := rows.Scan(&slot, &hitID); err != nil {
			return nil, nil, fmt.Errorf("scan tracklet hit: %w", err)
		}
		slots = append(slots, slot)
		ids = append(ids, hitID)
	}
	return slots, ids, rows.Err()
}

func collectTracklets(rows *sql.Rows) ([]*TrackletRow, error) {
	defer rows.Close()

	var tracklets []*TrackletRow
	for rows.Next() {
		t, err := scanTracklet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan tracklet row: %w", err)
		}
		tracklets = append(tracklets, t)
	}
	return tracklets, rows.Err()
}

func scanTracklet(scan func(...interface{}) error) (*TrackletRow, error) {
	var t TrackletRow
	if err := scan(
		&t.TrackletID, &t.RunID, &t.EventID, &t.TrackIndex, &t.Theta, &t.Phi, &t.XP, &t.YP,
		&t.NHit, &t.Q, &t.TSStart, &t.TSEnd,
		&t.ResidualX, &t.ResidualY, &t.ResidualZ, &t.Length,
		&t.StartX, &t.StartY, &t.StartZ, &t.EndX, &t.EndY, &t.EndZ,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
