package trackdb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/larpix-data/tracklet.report/internal/reco"
)

// Event fixture files are JSON: a top-level events array, each event carrying
// its id, t0 and hit block in slot order. The same format is produced by the
// gen-events tool and accepted by the -ingest flag, so synthetic and exported
// real data move through one path.

type eventFile struct {
	Events []eventJSON `json:"events"`
}

type eventJSON struct {
	EventID int64     `json:"event_id"`
	T0      t0JSON    `json:"t0"`
	Hits    []hitJSON `json:"hits"`
}

type t0JSON struct {
	TS   float64 `json:"ts"`
	Type int32   `json:"type"`
}

type hitJSON struct {
	HitID     int64   `json:"hit_id"`
	Valid     bool    `json:"valid"`
	TS        float64 `json:"ts"`
	Q         float64 `json:"q"`
	IOGroup   uint8   `json:"io_group"`
	IOChannel uint8   `json:"io_channel"`
	PX        float64 `json:"px"`
	PY        float64 `json:"py"`
}

// ReadEventsJSON decodes an event fixture from r. Duplicate event ids within
// one file are rejected; the store would refuse them anyway but the error
// here names the file position problem directly.
func ReadEventsJSON(r io.Reader) ([]reco.Event, error) {
	var file eventFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse events JSON: %w", err)
	}

	seen := make(map[int64]bool)
	events := make([]reco.Event, 0, len(file.Events))
	for _, ej := range file.Events {
		if seen[ej.EventID] {
			return nil, fmt.Errorf("duplicate event id %d", ej.EventID)
		}
		seen[ej.EventID] = true

		ev := reco.Event{
			ID: ej.EventID,
			T0: reco.EventT0{TS: ej.T0.TS, Type: ej.T0.Type},
		}
		for _, hj := range ej.Hits {
			ev.Hits = append(ev.Hits, reco.Hit{
				ID:        hj.HitID,
				Valid:     hj.Valid,
				TS:        hj.TS,
				Q:         hj.Q,
				IOGroup:   hj.IOGroup,
				IOChannel: hj.IOChannel,
				PX:        hj.PX,
				PY:        hj.PY,
			})
		}
		events = append(events, ev)
	}

	return events, nil
}

// LoadEventsFile reads an event fixture from disk.
func LoadEventsFile(path string) ([]reco.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	events, err := ReadEventsJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// WriteEventsJSON encodes events as an indented fixture file.
func WriteEventsJSON(w io.Writer, events []reco.Event) error {
	file := eventFile{Events: make([]eventJSON, 0, len(events))}
	for _, ev := range events {
		ej := eventJSON{
			EventID: ev.ID,
			T0:      t0JSON{TS: ev.T0.TS, Type: ev.T0.Type},
		}
		for _, h := range ev.Hits {
			ej.Hits = append(ej.Hits, hitJSON{
				HitID:     h.ID,
				Valid:     h.Valid,
				TS:        h.TS,
				Q:         h.Q,
				IOGroup:   h.IOGroup,
				IOChannel: h.IOChannel,
				PX:        h.PX,
				PY:        h.PY,
			})
		}
		file.Events = append(file.Events, ej)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("failed to encode events JSON: %w", err)
	}
	return nil
}
