package reco

import "math"

// Hit is a single charge measurement from the pixelated readout. Coordinates
// are the pixel centre in the anode plane (mm); TS is the raw PPS timestamp in
// clock ticks; Q is the calibrated charge in mV. Slots in an event's hit block
// that carry no measurement have Valid=false and are ignored everywhere.
type Hit struct {
	ID        int64
	Valid     bool
	TS        float64
	Q         float64
	IOGroup   uint8
	IOChannel uint8
	PX        float64
	PY        float64
}

// EventT0 is the event reference time used to convert drift time into a
// spatial coordinate. TS is in the same clock ticks as Hit.TS.
type EventT0 struct {
	TS   float64
	Type int32
}

// Event bundles one event's hits with its reference time.
type Event struct {
	ID   int64
	Hits []Hit
	T0   EventT0
}

// Point3 is a position in detector coordinates (mm).
type Point3 struct {
	X, Y, Z float64
}

// Add returns p + q.
func (p Point3) Add(q Point3) Point3 {
	return Point3{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// Sub returns p − q.
func (p Point3) Sub(q Point3) Point3 {
	return Point3{p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// Scale returns p scaled by s.
func (p Point3) Scale(s float64) Point3 {
	return Point3{p.X * s, p.Y * s, p.Z * s}
}

// Dot returns the dot product of p and q.
func (p Point3) Dot(q Point3) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Norm returns the Euclidean length of p.
func (p Point3) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// IsFinite reports whether all three components are finite.
func (p Point3) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// Unassigned is the track id of a hit that no surviving track claimed.
const Unassigned = -1
