package trackdb

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/larpix-data/tracklet.report/internal/timeutil"
)

// Run statuses. A run is created running and ends completed or failed; the
// error column is only populated on failure.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RecoRun represents one reconstruction run: which parameters were used, when
// it ran and how it ended.
type RecoRun struct {
	RunID      string          `json:"run_id"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
	NEvents    int             `json:"n_events"`
	NTracklets int             `json:"n_tracklets"`
}

// RunStore provides persistence for reconstruction runs. The clock stamps
// started_at/finished_at and is swapped for a mock in tests.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// Create records a new run in running state and returns its generated id.
// params is the JSON-encoded parameter set the run was started with, kept so
// any output can be traced back to its exact configuration.
func (s *RunStore) Create(params []byte) (string, error) {
	runID := uuid.New().String()
	startedAt := s.clock.Now().UnixNano()
	if len(params) == 0 {
		params = []byte("{}")
	}

	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO reco_runs (run_id, params_json, status, started_at)
			VALUES (?, ?, ?, ?)`,
			runID, string(params), RunStatusRunning, startedAt,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	return runID, nil
}

// Complete marks a run as completed and records its output counts.
func (s *RunStore) Complete(runID string, nEvents, nTracklets int) error {
	return s.finish(runID, RunStatusCompleted, "", nEvents, nTracklets)
}

// Fail marks a run as failed with the given cause. Counts stay at zero; a
// failed run persists no tracklets.
func (s *RunStore) Fail(runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(runID, RunStatusFailed, msg, 0, 0)
}

func (s *RunStore) finish(runID, status, errMsg string, nEvents, nTracklets int) error {
	finishedAt := s.clock.Now().UnixNano()

	return retryOnBusy(func() error {
		result, err := s.db.Exec(`
			UPDATE reco_runs
			SET status = ?, error = ?, finished_at = ?, n_events = ?, n_tracklets = ?
			WHERE run_id = ?`,
			status, nullIfEmpty(errMsg), finishedAt, nEvents, nTracklets, runID,
		)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// Get returns a single run by id.
func (s *RunStore) Get(runID string) (*RecoRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, params_json, status, error, started_at, finished_at, n_events, n_tracklets
		FROM reco_runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, most recently started first. A limit of zero
// or less means no limit.
func (s *RunStore) List(limit int) ([]*RecoRun, error) {
	query := `
		SELECT run_id, params_json, status, error, started_at, finished_at, n_events, n_tracklets
		FROM reco_runs
		ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RecoRun
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// scanRun scans a run from a row or rows cursor.
func scanRun(scan func(...interface{}) error) (*RecoRun, error) {
	var r RecoRun
	var paramsStr string
	var errMsg sql.NullString
	var finishedAt sql.NullInt64
	if err := scan(
		&r.RunID, &paramsStr, &r.Status, &errMsg, &r.StartedAt, &finishedAt, &r.NEvents, &r.NTracklets,
	); err != nil {
		return nil, err
	}
	r.ParamsJSON = json.RawMessage(paramsStr)
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.Int64
	}
	return &r, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
