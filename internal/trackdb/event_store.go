package trackdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larpix-data/tracklet.report/internal/reco"
)

// EventSummary is the listing view of a stored event.
type EventSummary struct {
	EventID   int64   `json:"event_id"`
	NHits     int     `json:"n_hits"`
	NValid    int     `json:"n_valid"`
	T0TS      float64 `json:"t0_ts"`
	T0Type    int32   `json:"t0_type"`
	CreatedAt int64   `json:"created_at"`
}

// EventStore provides persistence for raw events, their hit blocks and
// reference times.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates a new EventStore.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// IngestEvents stores the given events in a single transaction. Every hit
// slot is written, invalid ones included, so reloading reproduces the event
// byte for byte. An event id that already exists fails the whole batch.
func (s *EventStore) IngestEvents(events []reco.Event) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UnixNano()

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin ingest: %w", err)
		}
		defer tx.Rollback()

		insertHit, err := tx.Prepare(`
			INSERT INTO hits (event_id, slot, hit_id, valid, ts, q, io_group, io_channel, px, py)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare hit insert: %w", err)
		}
		defer insertHit.Close()

		for _, ev := range events {
			nValid := 0
			for _, h := range ev.Hits {
				if h.Valid {
					nValid++
				}
			}

			if _, err := tx.Exec(`
				INSERT INTO events (event_id, n_hits, n_valid, created_at)
				VALUES (?, ?, ?, ?)`,
				ev.ID, len(ev.Hits), nValid, now,
			); err != nil {
				return fmt.Errorf("insert event %d: %w", ev.ID, err)
			}

			for slot, h := range ev.Hits {
				if _, err := insertHit.Exec(
					ev.ID, slot, h.ID, h.Valid, h.TS, h.Q, h.IOGroup, h.IOChannel, h.PX, h.PY,
				); err != nil {
					return fmt.Errorf("insert hit %d of event %d: %w", slot, ev.ID, err)
				}
			}

			if _, err := tx.Exec(`
				INSERT INTO event_t0 (event_id, ts, t0_type)
				VALUES (?, ?, ?)`,
				ev.ID, ev.T0.TS, ev.T0.Type,
			); err != nil {
				return fmt.Errorf("insert t0 for event %d: %w", ev.ID, err)
			}
		}

		return tx.Commit()
	})
}

// LoadEvents returns all stored events in ascending event id order, hit
// blocks in slot order. An event without a t0 record is an error; nothing
// downstream can place its hits in space.
func (s *EventStore) LoadEvents() ([]reco.Event, error) {
	rows, err := s.db.Query(`
		SELECT e.event_id, t.ts, t.t0_type
		FROM events e
		LEFT JOIN event_t0 t ON t.event_id = e.event_id
		ORDER BY e.event_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []reco.Event
	index := make(map[int64]int)
	for rows.Next() {
		var ev reco.Event
		var t0TS sql.NullFloat64
		var t0Type sql.NullInt32
		if err := rows.Scan(&ev.ID, &t0TS, &t0Type); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if !t0TS.Valid {
			return nil, fmt.Errorf("event %d has no t0 record", ev.ID)
		}
		ev.T0 = reco.EventT0{TS: t0TS.Float64, Type: t0Type.Int32}
		index[ev.ID] = len(events)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hitRows, err := s.db.Query(`
		SELECT event_id, hit_id, valid, ts, q, io_group, io_channel, px, py
		FROM hits
		ORDER BY event_id ASC, slot ASC`)
	if err != nil {
		return nil, fmt.Errorf("query hits: %w", err)
	}
	defer hitRows.Close()

	for hitRows.Next() {
		var eventID int64
		var h reco.Hit
		if err := hitRows.Scan(&eventID, &h.ID, &h.Valid, &h.TS, &h.Q, &h.IOGroup, &h.IOChannel, &h.PX, &h.PY); err != nil {
			return nil, fmt.Errorf("scan hit row: %w", err)
		}
		i, ok := index[eventID]
		if !ok {
			return nil, fmt.Errorf("hit references unknown event %d", eventID)
		}
		events[i].Hits = append(events[i].Hits, h)
	}
	if err := hitRows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// LoadEvent returns a single event with its hit block and t0.
func (s *EventStore) LoadEvent(eventID int64) (*reco.Event, error) {
	row := s.db.QueryRow(`
		SELECT e.event_id, t.ts, t.t0_type
		FROM events e
		LEFT JOIN event_t0 t ON t.event_id = e.event_id
		WHERE e.event_id = ?`, eventID)

	var ev reco.Event
	var t0TS sql.NullFloat64
	var t0Type sql.NullInt32
	if err := row.Scan(&ev.ID, &t0TS, &t0Type); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if !t0TS.Valid {
		return nil, fmt.Errorf("event %d has no t0 record", eventID)
	}
	ev.T0 = reco.EventT0{TS: t0TS.Float64, Type: t0Type.Int32}

	hitRows, err := s.db.Query(`
		SELECT hit_id, valid, ts, q, io_group, io_channel, px, py
		FROM hits
		WHERE event_id = ?
		ORDER BY slot ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query hits: %w", err)
	}
	defer hitRows.Close()

	for hitRows.Next() {
		var h reco.Hit
		if err := hitRows.Scan(&h.ID, &h.Valid, &h.TS, &h.Q, &h.IOGroup, &h.IOChannel, &h.PX, &h.PY); err != nil {
			return nil, fmt.Errorf("scan hit row: %w", err)
		}
		ev.Hits = append(ev.Hits, h)
	}
	if err := hitRows.Err(); err != nil {
		return nil, err
	}

	return &ev, nil
}

// HasEvent reports whether an event with the given id is stored.
func (s *EventStore) HasEvent(eventID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM events WHERE event_id = ?`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	return true, nil
}

// CountEvents returns the number of stored events.
func (s *EventStore) CountEvents() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// ListEventSummaries returns up to limit event summaries in ascending event
// id order. A limit of zero or less means no limit.
func (s *EventStore) ListEventSummaries(limit int) ([]EventSummary, error) {
	query := `
		SELECT e.event_id, e.n_hits, e.n_valid, t.ts, t.t0_type, e.created_at
		FROM events e
		LEFT JOIN event_t0 t ON t.event_id = e.event_id
		ORDER BY e.event_id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event summaries: %w", err)
	}
	defer rows.Close()

	var summaries []EventSummary
	for rows.Next() {
		var sm EventSummary
		var t0TS sql.NullFloat64
		var t0Type sql.NullInt32
		if err := rows.Scan(&sm.EventID, &sm.NHits, &sm.NValid, &t0TS, &t0Type, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event summary: %w", err)
		}
		sm.T0TS = t0TS.Float64
		sm.T0Type = t0Type.Int32
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}
