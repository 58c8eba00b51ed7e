package geom

import (
	"fmt"
	"math"

	"github.com/larpix-data/tracklet.report/internal/reco"
	"github.com/larpix-data/tracklet.report/internal/units"
)

// DriftService converts channel identity plus drift distance into a z
// coordinate and exposes the run-wide unit scalars. Supplied at construction
// to whatever needs hit projection, so nothing reaches for global detector
// state.
type DriftService interface {
	// ZCoordinate returns the z position in mm of charge read out on the
	// given channel after drifting driftDistance mm, or NaN for a channel
	// the layout does not know.
	ZCoordinate(ioGroup, ioChannel uint8, driftDistance float64) float64

	// DriftVelocity returns the drift velocity in mm/µs.
	DriftVelocity() float64

	// TickDuration returns the clock tick duration in µs.
	TickDuration() float64
}

type channelKey struct {
	group, channel uint8
}

type anodePlane struct {
	z, dir float64
}

// Service is the DriftService backed by a tile layout and the run's unit
// scalars.
type Service struct {
	vDrift float64
	tick   float64
	anodes map[channelKey]anodePlane
}

// NewService builds a Service from a validated layout. driftVelocity is in
// mm/µs, tickDuration in µs per clock tick.
func NewService(layout *TileLayout, driftVelocity, tickDuration float64) (*Service, error) {
	if layout == nil {
		return nil, fmt.Errorf("nil tile layout")
	}
	if driftVelocity <= 0 {
		return nil, fmt.Errorf("drift velocity must be positive, got %v", driftVelocity)
	}
	if tickDuration <= 0 {
		return nil, fmt.Errorf("tick duration must be positive, got %v", tickDuration)
	}

	anodes := make(map[channelKey]anodePlane)
	for _, tile := range layout.Tiles {
		for _, ch := range tile.IOChannels {
			anodes[channelKey{tile.IOGroup, ch}] = anodePlane{z: tile.AnodeZ, dir: tile.DriftDir}
		}
	}

	return &Service{vDrift: driftVelocity, tick: tickDuration, anodes: anodes}, nil
}

// ZCoordinate implements DriftService. Unknown channels return NaN, which the
// pipeline boundary rejects before reconstruction.
func (s *Service) ZCoordinate(ioGroup, ioChannel uint8, driftDistance float64) float64 {
	plane, ok := s.anodes[channelKey{ioGroup, ioChannel}]
	if !ok {
		return math.NaN()
	}
	return plane.z + plane.dir*driftDistance
}

// DriftVelocity implements DriftService.
func (s *Service) DriftVelocity() float64 { return s.vDrift }

// TickDuration implements DriftService.
func (s *Service) TickDuration() float64 { return s.tick }

// ProjectHit maps one hit into detector coordinates: x and y are the pixel
// position, z is looked up from the drift distance accumulated since the
// event's reference time. No validation happens here; a non-finite z is the
// caller's problem to reject.
func ProjectHit(h reco.Hit, t0 reco.EventT0, svc DriftService) reco.Point3 {
	driftTime := units.TicksToMicroseconds(h.TS-t0.TS, svc.TickDuration())
	driftDist := driftTime * svc.DriftVelocity()
	return reco.Point3{
		X: h.PX,
		Y: h.PY,
		Z: svc.ZCoordinate(h.IOGroup, h.IOChannel, driftDist),
	}
}

// ProjectEvent maps all of an event's hit slots, invalid ones included; the
// returned slice is parallel to hits. Invalid slots carry whatever the
// formula produces from their stale fields and are screened off by the
// validity mask downstream.
func ProjectEvent(hits []reco.Hit, t0 reco.EventT0, svc DriftService) []reco.Point3 {
	points := make([]reco.Point3, len(hits))
	for i, h := range hits {
		points[i] = ProjectHit(h, t0, svc)
	}
	return points
}
