package reco

import (
	"errors"
	"math/rand"
)

// Default robust-fit parameters mirror production reconstruction values.
const (
	// DefaultRANSACMinSamples is the sample size per trial (2 defines a line exactly)
	DefaultRANSACMinSamples = 2
	// DefaultRANSACResidualThreshold is the inlier distance cut in mm
	DefaultRANSACResidualThreshold = 8.0
	// DefaultRANSACMaxTrials bounds the number of random samples drawn
	DefaultRANSACMaxTrials = 100
)

// ErrInsufficientSamples is returned when a candidate point set holds fewer
// points than the per-trial sample size.
var ErrInsufficientSamples = errors.New("ransac: fewer points than min samples")

// RANSACParams contains parameters for the robust line fit.
type RANSACParams struct {
	MinSamples        int     // Points drawn per trial; must be >= 2
	ResidualThreshold float64 // Perpendicular distance cut for inliers, mm
	MaxTrials         int     // Trial budget
}

// DefaultRANSACParams returns the production robust-fit parameters.
func DefaultRANSACParams() RANSACParams {
	return RANSACParams{
		MinSamples:        DefaultRANSACMinSamples,
		ResidualThreshold: DefaultRANSACResidualThreshold,
		MaxTrials:         DefaultRANSACMaxTrials,
	}
}

// Line is an infinite line in 3D in point-direction form. Direction has unit
// length.
type Line struct {
	Origin    Point3
	Direction Point3
}

// DistanceTo returns the perpendicular distance from p to the line.
func (l Line) DistanceTo(p Point3) float64 {
	v := p.Sub(l.Origin)
	along := l.Direction.Scale(v.Dot(l.Direction))
	return v.Sub(along).Norm()
}

// FitLine fits a line through pts: the exact connecting line for two points,
// the least-squares principal axis through the centroid otherwise. ok is false
// when the points do not determine a direction (fewer than two points, or all
// coincident).
func FitLine(pts []Point3) (Line, bool) {
	switch {
	case len(pts) < 2:
		return Line{}, false
	case len(pts) == 2:
		d := pts[1].Sub(pts[0])
		norm := d.Norm()
		if norm == 0 {
			return Line{}, false
		}
		mid := pts[0].Add(pts[1]).Scale(0.5)
		return Line{Origin: mid, Direction: flipToCanonical(d.Scale(1 / norm))}, true
	default:
		centroid, axis, variance, ok := principalAxis(pts)
		if !ok || variance == 0 {
			return Line{}, false
		}
		return Line{Origin: centroid, Direction: axis}, true
	}
}

// RANSACInliers finds the largest set of points consistent with a single line.
// Each trial draws MinSamples distinct points from rng, fits a line through
// them, and counts the points within ResidualThreshold of it; the mask of the
// trial with the most inliers wins, ties broken by earliest trial. Degenerate
// samples consume their trial. If no trial produces a valid line the returned
// mask is all false.
//
// rng must not be shared across goroutines; callers derive one per event from
// the run seed so results are reproducible.
func RANSACInliers(pts []Point3, params RANSACParams, rng *rand.Rand) ([]bool, error) {
	n := len(pts)
	if params.MinSamples < 2 {
		return nil, errors.New("ransac: min samples must be >= 2")
	}
	if n < params.MinSamples {
		return nil, ErrInsufficientSamples
	}

	best := make([]bool, n)
	cur := make([]bool, n)
	bestCount := 0
	sample := make([]Point3, params.MinSamples)

	for trial := 0; trial < params.MaxTrials; trial++ {
		perm := rng.Perm(n)
		for i := 0; i < params.MinSamples; i++ {
			sample[i] = pts[perm[i]]
		}

		line, ok := FitLine(sample)
		if !ok {
			continue
		}

		count := 0
		for i, p := range pts {
			in := line.DistanceTo(p) <= params.ResidualThreshold
			cur[i] = in
			if in {
				count++
			}
		}

		// Strict improvement keeps the earliest best trial on ties.
		if count > bestCount {
			best, cur = cur, best
			bestCount = count
		}
	}

	return best, nil
}
