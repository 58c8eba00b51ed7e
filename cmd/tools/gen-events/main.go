// Command gen-events generates synthetic detector event fixtures for testing
// reconstruction: straight ionization tracks through the drift volume plus
// uniform noise hits, written in the JSON format reco -ingest reads.
package main

import (
	"flag"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/larpix-data/tracklet.report/internal/geom"
	"github.com/larpix-data/tracklet.report/internal/reco"
	"github.com/larpix-data/tracklet.report/internal/trackdb"
)

var (
	output     = flag.String("o", "events.json", "output path")
	numEvents  = flag.Int("n", 10, "number of events")
	numTracks  = flag.Int("tracks", 2, "straight tracks per event")
	numHits    = flag.Int("hits", 20, "hits per track")
	numNoise   = flag.Int("noise", 5, "uniform noise hits per event")
	numDead    = flag.Int("dead", 2, "invalid padding slots per event")
	spacing    = flag.Float64("spacing", 8.0, "hit spacing along the track in mm")
	jitter     = flag.Float64("jitter", 1.5, "Gaussian hit position jitter in mm")
	seed       = flag.Int64("seed", 1, "generator seed")
	layoutPath = flag.String("layout", "config/tile_layout.yaml", "tile layout YAML file")
	vdrift     = flag.Float64("vdrift", 1.648, "drift velocity in mm/µs")
	tick       = flag.Float64("tick", 0.1, "clock tick duration in µs")
)

// halfWidth bounds the generated pixel coordinates in mm.
const halfWidth = 300.0

type generator struct {
	rng    *rand.Rand
	layout *geom.TileLayout
	nextID int64
}

func (g *generator) tile() geom.Tile {
	return g.layout.Tiles[g.rng.Intn(len(g.layout.Tiles))]
}

// driftSpan returns the z range read out by a tile, from just off the anode
// to just short of the cathode at z=0.
func driftSpan(t geom.Tile) (lo, hi float64) {
	const margin = 10.0
	if t.DriftDir > 0 {
		return t.AnodeZ + margin, -margin
	}
	return margin, t.AnodeZ - margin
}

// exitDistance returns how far a point at p can travel along direction d
// before leaving [lo, hi] on one axis.
func exitDistance(p, d, lo, hi float64) float64 {
	if d > 0 {
		return (hi - p) / d
	}
	if d < 0 {
		return (lo - p) / d
	}
	return math.Inf(1)
}

// hitAt emits a hit whose timestamp encodes the drift time from z back to the
// tile's anode plane, so projecting it reproduces (x, y, z).
func (g *generator) hitAt(t geom.Tile, t0, x, y, z float64) reco.Hit {
	g.nextID++
	driftDistance := (z - t.AnodeZ) / t.DriftDir
	return reco.Hit{
		ID:        g.nextID,
		Valid:     true,
		TS:        t0 + driftDistance/(*vdrift**tick),
		Q:         1 + 5*g.rng.Float64(),
		IOGroup:   t.IOGroup,
		IOChannel: t.IOChannels[g.rng.Intn(len(t.IOChannels))],
		PX:        x,
		PY:        y,
	}
}

// direction draws a uniformly distributed unit vector.
func (g *generator) direction() (dx, dy, dz float64) {
	z := 2*g.rng.Float64() - 1
	phi := 2 * math.Pi * g.rng.Float64()
	r := math.Sqrt(1 - z*z)
	return r * math.Cos(phi), r * math.Sin(phi), z
}

func (g *generator) track(t geom.Tile, t0 float64) []reco.Hit {
	zLo, zHi := driftSpan(t)
	x0 := (2*g.rng.Float64() - 1) * (halfWidth - 50)
	y0 := (2*g.rng.Float64() - 1) * (halfWidth - 50)
	z0 := zLo + g.rng.Float64()*(zHi-zLo)
	dx, dy, dz := g.direction()

	// Shrink the hit spacing if the track would exit the readout volume.
	maxLen := exitDistance(x0, dx, -halfWidth, halfWidth)
	maxLen = math.Min(maxLen, exitDistance(y0, dy, -halfWidth, halfWidth))
	maxLen = math.Min(maxLen, exitDistance(z0, dz, zLo, zHi))
	step := *spacing
	if need := step * float64(*numHits-1); need > maxLen {
		step = maxLen / float64(*numHits-1)
	}

	hits := make([]reco.Hit, 0, *numHits)
	for k := 0; k < *numHits; k++ {
		d := step * float64(k)
		x := x0 + d*dx + g.rng.NormFloat64()**jitter
		y := y0 + d*dy + g.rng.NormFloat64()**jitter
		z := z0 + d*dz + g.rng.NormFloat64()**jitter
		hits = append(hits, g.hitAt(t, t0, x, y, z))
	}
	return hits
}

func (g *generator) noise(t0 float64) reco.Hit {
	t := g.tile()
	zLo, zHi := driftSpan(t)
	x := (2*g.rng.Float64() - 1) * halfWidth
	y := (2*g.rng.Float64() - 1) * halfWidth
	z := zLo + g.rng.Float64()*(zHi-zLo)
	return g.hitAt(t, t0, x, y, z)
}

func (g *generator) event(id int64) reco.Event {
	t0 := reco.EventT0{TS: float64(id) * 1e6, Type: 1}

	var hits []reco.Hit
	for i := 0; i < *numTracks; i++ {
		hits = append(hits, g.track(g.tile(), t0.TS)...)
	}
	for i := 0; i < *numNoise; i++ {
		hits = append(hits, g.noise(t0.TS))
	}
	for i := 0; i < *numDead; i++ {
		hits = append(hits, reco.Hit{})
	}
	g.rng.Shuffle(len(hits), func(i, j int) { hits[i], hits[j] = hits[j], hits[i] })

	return reco.Event{ID: id, Hits: hits, T0: t0}
}

func main() {
	flag.Parse()

	if *numEvents < 1 || *numHits < 2 {
		log.Fatal("need at least 1 event and 2 hits per track")
	}
	if *spacing <= 0 || *vdrift <= 0 || *tick <= 0 {
		log.Fatal("spacing, vdrift and tick must be positive")
	}

	layout, err := geom.LoadTileLayout(*layoutPath)
	if err != nil {
		log.Fatalf("Failed to load tile layout: %v", err)
	}

	g := &generator{rng: rand.New(rand.NewSource(*seed)), layout: layout}

	events := make([]reco.Event, 0, *numEvents)
	totalHits := 0
	for i := 1; i <= *numEvents; i++ {
		ev := g.event(int64(i))
		totalHits += len(ev.Hits)
		events = append(events, ev)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	if err := trackdb.WriteEventsJSON(f, events); err != nil {
		log.Fatalf("Failed to write events: %v", err)
	}
	log.Printf("✓ Created: %s (%d events, %d hits)", *output, len(events), totalHits)
}
