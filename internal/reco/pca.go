package reco

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// principalAxis computes the centroid of pts and the unit-length leading
// principal component of the centered point set, with the variance explained
// along it. The axis sign is normalized so its largest-magnitude component is
// positive, making the returned direction deterministic (a principal component
// is otherwise only defined up to sign).
//
// Requires len(pts) >= 2; ok is false below that or if the decomposition
// fails. A fully degenerate (all-coincident) point set reports ok with zero
// variance and a basis-vector axis.
func principalAxis(pts []Point3) (centroid, axis Point3, variance float64, ok bool) {
	n := len(pts)
	if n < 2 {
		return Point3{}, Point3{}, 0, false
	}

	var sx, sy, sz float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
		sz += p.Z
	}
	centroid = Point3{sx / float64(n), sy / float64(n), sz / float64(n)}

	data := mat.NewDense(n, 3, nil)
	for i, p := range pts {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
		data.Set(i, 2, p.Z)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return centroid, Point3{}, 0, false
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	// Components are ordered by descending variance: leading axis is column 0.
	axis = Point3{vecs.At(0, 0), vecs.At(1, 0), vecs.At(2, 0)}
	variance = vars[0]

	return centroid, flipToCanonical(axis), variance, true
}

// flipToCanonical flips v so that the component with the largest absolute
// value is positive.
func flipToCanonical(v Point3) Point3 {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	var lead float64
	switch {
	case ax >= ay && ax >= az:
		lead = v.X
	case ay >= az:
		lead = v.Y
	default:
		lead = v.Z
	}
	if lead < 0 {
		return v.Scale(-1)
	}
	return v
}
