// Package pipeline drives tracklet reconstruction over batches of events:
// project hits into detector coordinates, extract track ids, compute tracklet
// parameters, and hand the assembled output to storage. Events are processed
// by a small worker pool; each event gets its own seeded rng so the output is
// identical for a given input order and master seed no matter how the
// scheduler interleaves workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/larpix-data/tracklet.report/internal/geom"
	"github.com/larpix-data/tracklet.report/internal/monitoring"
	"github.com/larpix-data/tracklet.report/internal/reco"
)

// RunRecorder tracks the lifecycle of a reconstruction run in storage.
type RunRecorder interface {
	Create(params []byte) (string, error)
	Complete(runID string, nEvents, nTracklets int) error
	Fail(runID string, cause error) error
}

// TrackletSink persists a run's assembled tracklets.
type TrackletSink interface {
	InsertAssembled(runID string, tracklets []AssembledTracklet) error
}

// Deps carries everything a Reconstructor needs. Runs and Sink are optional:
// without them reconstruction happens in memory only, which is what the tests
// and the gen-events tool want. A Sink without a RunRecorder is rejected
// because persisted tracklets must belong to a recorded run.
type Deps struct {
	Geometry  geom.DriftService
	Extractor *reco.TrackExtractor
	Runs      RunRecorder
	Sink      TrackletSink
	RunParams []byte
	Workers   int
	Seed      int64
}

// EventResult is the reconstruction output for one event. TrackIDs is
// parallel to the event's hit slots.
type EventResult struct {
	EventID   int64
	TrackIDs  []int
	Tracklets []reco.Tracklet
}

// Result is the output of one pipeline run. RunID is empty when no
// RunRecorder was configured.
type Result struct {
	RunID     string
	Events    []EventResult
	Tracklets []AssembledTracklet
}

// Reconstructor runs the reconstruction pipeline. It is safe for concurrent
// use; each Run derives its event seeds from the configured master seed.
type Reconstructor struct {
	geometry  geom.DriftService
	extractor *reco.TrackExtractor
	runs      RunRecorder
	sink      TrackletSink
	runParams []byte
	workers   int
	seed      int64
}

// New validates deps and returns a Reconstructor.
func New(deps Deps) (*Reconstructor, error) {
	if deps.Geometry == nil {
		return nil, errors.New("pipeline: nil geometry service")
	}
	if deps.Extractor == nil {
		return nil, errors.New("pipeline: nil track extractor")
	}
	if deps.Sink != nil && deps.Runs == nil {
		return nil, errors.New("pipeline: tracklet sink requires a run recorder")
	}
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}
	return &Reconstructor{
		geometry:  deps.Geometry,
		extractor: deps.Extractor,
		runs:      deps.Runs,
		sink:      deps.Sink,
		runParams: deps.RunParams,
		workers:   workers,
		seed:      deps.Seed,
	}, nil
}

// Run reconstructs the given events. Any event failure aborts the whole run:
// a partially reconstructed batch is worse than a clean failure because
// nothing marks which events are missing. An empty batch is a valid run with
// empty output.
func (r *Reconstructor) Run(ctx context.Context, events []reco.Event) (*Result, error) {
	runID := ""
	if r.runs != nil {
		var err error
		runID, err = r.runs.Create(r.runParams)
		if err != nil {
			return nil, fmt.Errorf("create run record: %w", err)
		}
		monitoring.Logf("pipeline: run %s started with %d events", runID, len(events))
	}

	results, err := r.reconstruct(ctx, events)
	if err != nil {
		r.failRun(runID, err)
		return nil, err
	}

	assembled := Assemble(results)

	if r.sink != nil {
		if err := r.sink.InsertAssembled(runID, assembled); err != nil {
			err = fmt.Errorf("persist tracklets: %w", err)
			r.failRun(runID, err)
			return nil, err
		}
	}
	if r.runs != nil {
		if err := r.runs.Complete(runID, len(events), len(assembled)); err != nil {
			return nil, fmt.Errorf("complete run record: %w", err)
		}
		monitoring.Logf("pipeline: run %s completed, %d tracklets from %d events", runID, len(assembled), len(events))
	}

	return &Result{RunID: runID, Events: results, Tracklets: assembled}, nil
}

func (r *Reconstructor) failRun(runID string, cause error) {
	if r.runs == nil || runID == "" {
		return
	}
	if err := r.runs.Fail(runID, cause); err != nil {
		monitoring.Logf("pipeline: failed to mark run %s failed: %v", runID, err)
	}
}

// reconstruct fans events out over the worker pool and collects results in
// input order. The first event error cancels the rest of the batch.
func (r *Reconstructor) reconstruct(ctx context.Context, events []reco.Event) ([]EventResult, error) {
	if len(events) == 0 {
		return nil, nil
	}

	// Seeds are drawn up front from the master rng, so which worker picks
	// up which event has no bearing on its rng stream.
	master := rand.New(rand.NewSource(r.seed))
	seeds := make([]int64, len(events))
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := r.workers
	if workers > len(events) {
		workers = len(events)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]EventResult, len(events))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result, err := r.reconstructEvent(events[i], seeds[i])
				if err != nil {
					fail(err)
					return
				}
				results[i] = result
			}
		}()
	}

feed:
	for i := range events {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// reconstructEvent runs the full chain for one event: project, extract,
// parametrize.
func (r *Reconstructor) reconstructEvent(ev reco.Event, seed int64) (EventResult, error) {
	if math.IsNaN(ev.T0.TS) || math.IsInf(ev.T0.TS, 0) {
		return EventResult{}, fmt.Errorf("event %d: non-finite t0 timestamp", ev.ID)
	}

	points := geom.ProjectEvent(ev.Hits, ev.T0, r.geometry)

	valid := make([]bool, len(ev.Hits))
	for i, h := range ev.Hits {
		valid[i] = h.Valid
		if h.Valid && !points[i].IsFinite() {
			return EventResult{}, fmt.Errorf(
				"event %d: hit slot %d projects outside known geometry (io_group=%d io_channel=%d)",
				ev.ID, i, h.IOGroup, h.IOChannel)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	ids := r.extractor.FindTracks(points, valid, rng)
	tracklets := reco.CalcTracklets(ev.Hits, points, ids)

	monitoring.Debugf("pipeline: event=%d hits=%d tracklets=%d", ev.ID, len(ev.Hits), len(tracklets))

	return EventResult{EventID: ev.ID, TrackIDs: ids, Tracklets: tracklets}, nil
}
