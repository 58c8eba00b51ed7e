package reco

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestFitLine_TwoPoints(t *testing.T) {
	line, ok := FitLine([]Point3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 2, Z: 3}})
	if !ok {
		t.Fatal("expected fit to succeed")
	}
	if math.Abs(line.Direction.X-1) > 1e-12 || math.Abs(line.Direction.Y) > 1e-12 || math.Abs(line.Direction.Z) > 1e-12 {
		t.Errorf("direction = %+v, want (1,0,0)", line.Direction)
	}
	if d := line.DistanceTo(Point3{X: 2.5, Y: 2, Z: 3}); d > 1e-12 {
		t.Errorf("on-line point distance = %g, want 0", d)
	}
	if d := line.DistanceTo(Point3{X: 2.5, Y: 5, Z: 3}); math.Abs(d-3) > 1e-12 {
		t.Errorf("off-line point distance = %g, want 3", d)
	}
}

func TestFitLine_Degenerate(t *testing.T) {
	if _, ok := FitLine(nil); ok {
		t.Error("expected failure for no points")
	}
	if _, ok := FitLine([]Point3{{X: 1, Y: 1, Z: 1}}); ok {
		t.Error("expected failure for a single point")
	}
	if _, ok := FitLine([]Point3{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}}); ok {
		t.Error("expected failure for coincident points")
	}
}

func TestFitLine_LeastSquares(t *testing.T) {
	// Points jittered around the x axis: the principal axis must recover the
	// x direction, and the fitted line must pass near the centroid.
	pts := []Point3{
		{X: 0, Y: 0.1, Z: -0.1},
		{X: 1, Y: -0.1, Z: 0.1},
		{X: 2, Y: 0.1, Z: 0.0},
		{X: 3, Y: -0.1, Z: 0.0},
		{X: 4, Y: 0.0, Z: -0.1},
		{X: 5, Y: 0.0, Z: 0.1},
	}

	line, ok := FitLine(pts)
	if !ok {
		t.Fatal("expected fit to succeed")
	}
	if line.Direction.X < 0.99 {
		t.Errorf("direction = %+v, want ≈(1,0,0)", line.Direction)
	}
	for _, p := range pts {
		if d := line.DistanceTo(p); d > 0.25 {
			t.Errorf("point %+v distance = %f, want small", p, d)
		}
	}
}

func TestRANSACInliers_RejectsOutliers(t *testing.T) {
	// Ten colinear points plus two gross outliers: the consensus line must
	// include every colinear point and neither outlier.
	var pts []Point3
	for i := 0; i < 10; i++ {
		pts = append(pts, Point3{X: float64(i), Y: 0, Z: 0})
	}
	pts = append(pts, Point3{X: 3, Y: 40, Z: 0}, Point3{X: 7, Y: -35, Z: 12})

	rng := rand.New(rand.NewSource(11))
	inliers, err := RANSACInliers(pts, RANSACParams{MinSamples: 2, ResidualThreshold: 0.5, MaxTrials: 100}, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		if !inliers[i] {
			t.Errorf("colinear point %d not an inlier", i)
		}
	}
	if inliers[10] || inliers[11] {
		t.Errorf("outliers marked inliers: %v %v", inliers[10], inliers[11])
	}
}

func TestRANSACInliers_SeedReproducibility(t *testing.T) {
	pts := []Point3{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0.2, Z: 0}, {X: 2, Y: -0.1, Z: 0.1},
		{X: 3, Y: 0.1, Z: -0.2}, {X: 4, Y: 0, Z: 0}, {X: 2, Y: 5, Z: 1},
	}
	params := RANSACParams{MinSamples: 2, ResidualThreshold: 0.4, MaxTrials: 25}

	first, err := RANSACInliers(pts, params, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := RANSACInliers(pts, params, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("point %d: inlier flag differs for identical seeds", i)
		}
	}
}

func TestRANSACInliers_InsufficientSamples(t *testing.T) {
	_, err := RANSACInliers([]Point3{{X: 1}}, DefaultRANSACParams(), rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrInsufficientSamples) {
		t.Errorf("expected ErrInsufficientSamples, got %v", err)
	}
}

func TestRANSACInliers_InvalidMinSamples(t *testing.T) {
	pts := []Point3{{X: 0}, {X: 1}, {X: 2}}
	_, err := RANSACInliers(pts, RANSACParams{MinSamples: 1, ResidualThreshold: 1, MaxTrials: 10}, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Error("expected error for min samples below 2")
	}
}

func TestRANSACInliers_AllCoincident(t *testing.T) {
	// Every sample is degenerate, so no trial yields a line and the mask
	// comes back empty rather than erroring.
	pts := []Point3{{X: 2, Y: 2, Z: 2}, {X: 2, Y: 2, Z: 2}, {X: 2, Y: 2, Z: 2}}
	inliers, err := RANSACInliers(pts, RANSACParams{MinSamples: 2, ResidualThreshold: 1, MaxTrials: 10}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, in := range inliers {
		if in {
			t.Errorf("point %d marked inlier with no valid line", i)
		}
	}
}
