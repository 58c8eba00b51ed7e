package reco

import "math"

// Tracklet is the parameter record of one reconstructed straight-line segment.
// ID is the event-local track index; the store persists it as such and the
// database assigns global identity. Angles are radians: Theta measured from
// the drift (z) axis, Phi in the anode (x,y) plane. Start/End are the
// projected extent of the member hits along the fitted axis, never
// extrapolating beyond the members' bounding box.
type Tracklet struct {
	ID       int
	Theta    float64
	Phi      float64
	XP       float64
	YP       float64
	NHit     int
	Q        float64
	TSStart  float64
	TSEnd    float64
	Residual [3]float64
	Length   float64
	Start    Point3
	End      Point3
}

// CalcTracklets computes the parameter record for every assigned track id with
// at least two member hits, in ascending id order. hits, points and ids are
// parallel; points are the projected 3D coordinates of the hits. Tracks with a
// single member are silently dropped — one hit does not define a direction.
func CalcTracklets(hits []Hit, points []Point3, ids []int) []Tracklet {
	maxID := -1
	for _, id := range ids {
		if id > maxID {
			maxID = id
		}
	}

	tracklets := make([]Tracklet, 0, maxID+1)
	for id := 0; id <= maxID; id++ {
		var members []int
		for i, hid := range ids {
			if hid == id && hits[i].Valid {
				members = append(members, i)
			}
		}
		if len(members) < 2 {
			continue
		}

		pts := make([]Point3, len(members))
		for j, i := range members {
			pts[j] = points[i]
		}

		centroid, axis, _, ok := principalAxis(pts)
		if !ok {
			continue
		}

		t := Tracklet{ID: id, NHit: len(members)}

		// Signed projections of members onto the axis, and their per-axis
		// bounding box: the reported endpoints are the extreme projections
		// clipped to the box so they never extrapolate beyond observed data.
		sMin, sMax := math.Inf(1), math.Inf(-1)
		bbMin := pts[0]
		bbMax := pts[0]
		var resX, resY, resZ float64
		for _, p := range pts {
			s := p.Sub(centroid).Dot(axis)
			if s < sMin {
				sMin = s
			}
			if s > sMax {
				sMax = s
			}
			bbMin.X = math.Min(bbMin.X, p.X)
			bbMin.Y = math.Min(bbMin.Y, p.Y)
			bbMin.Z = math.Min(bbMin.Z, p.Z)
			bbMax.X = math.Max(bbMax.X, p.X)
			bbMax.Y = math.Max(bbMax.Y, p.Y)
			bbMax.Z = math.Max(bbMax.Z, p.Z)

			onLine := centroid.Add(axis.Scale(s))
			resX += math.Abs(p.X - onLine.X)
			resY += math.Abs(p.Y - onLine.Y)
			resZ += math.Abs(p.Z - onLine.Z)
		}

		nf := float64(len(pts))
		t.Residual = [3]float64{resX / nf, resY / nf, resZ / nf}

		t.Start = clipToBox(centroid.Add(axis.Scale(sMin)), bbMin, bbMax)
		t.End = clipToBox(centroid.Add(axis.Scale(sMax)), bbMin, bbMax)
		t.Length = t.End.Sub(t.Start).Norm()

		t.Theta = math.Atan2(math.Hypot(axis.X, axis.Y), axis.Z)
		t.Phi = math.Atan2(axis.Y, axis.X)

		// Intersection with the z=0 anode plane. A line parallel to the plane
		// has no unique intersection; the centroid's (x,y) stands in by
		// convention.
		if axis.Z == 0 {
			t.XP = centroid.X
			t.YP = centroid.Y
		} else {
			s := -centroid.Z / axis.Z
			t.XP = centroid.X + s*axis.X
			t.YP = centroid.Y + s*axis.Y
		}

		t.TSStart = math.Inf(1)
		t.TSEnd = math.Inf(-1)
		for _, i := range members {
			h := hits[i]
			t.Q += h.Q
			t.TSStart = math.Min(t.TSStart, h.TS)
			t.TSEnd = math.Max(t.TSEnd, h.TS)
		}

		tracklets = append(tracklets, t)
	}

	return tracklets
}

// clipToBox clamps each component of p to [lo, hi].
func clipToBox(p, lo, hi Point3) Point3 {
	return Point3{
		X: math.Min(math.Max(p.X, lo.X), hi.X),
		Y: math.Min(math.Max(p.Y, lo.Y), hi.Y),
		Z: math.Min(math.Max(p.Z, lo.Z), hi.Z),
	}
}
