package reco

import "math"

// EstimatedPointsPerCell is used for initial spatial index capacity estimation
const EstimatedPointsPerCell = 4

// SpatialIndex provides efficient nearest neighbor queries over a 3D point set
// using a regular grid. Cell size should approximately match the DBSCAN eps
// parameter so that a neighborhood query only has to scan the 3×3×3 block of
// cells around a point.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell key → point indices
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the spatial index from points, indexing only the positions
// whose index appears in subset. Point indices keep their original meaning so
// query results can be scattered straight back to the caller's arrays.
func (si *SpatialIndex) Build(points []Point3, subset []int) {
	si.Grid = make(map[int64][]int, len(subset)/EstimatedPointsPerCell+1)

	for _, i := range subset {
		p := points[i]
		key := si.cellKeyFor(p)
		si.Grid[key] = append(si.Grid[key], i)
	}
}

func (si *SpatialIndex) cellCoords(p Point3) (int64, int64, int64) {
	cx := int64(math.Floor(p.X / si.CellSize))
	cy := int64(math.Floor(p.Y / si.CellSize))
	cz := int64(math.Floor(p.Z / si.CellSize))
	return cx, cy, cz
}

func (si *SpatialIndex) cellKeyFor(p Point3) int64 {
	cx, cy, cz := si.cellCoords(p)
	return cellKey(cx, cy, cz)
}

// cellKey computes a cell identifier from signed 3D cell coordinates: zigzag
// encoding maps each axis to a non-negative integer, then Szudzik's pairing
// function combines them pairwise. Far from the origin the second pairing can
// overflow and wrap; that only merges cells into one map bucket, and the
// distance check in RegionQuery keeps results exact.
func cellKey(cx, cy, cz int64) int64 {
	return szudzik(szudzik(zigzag(cx), zigzag(cy)), zigzag(cz))
}

// zigzag maps signed integers to non-negative ones (0,-1,1,-2,2 → 0,1,2,3,4).
func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// szudzik pairs two non-negative integers into one.
func szudzik(a, b int64) int64 {
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// RegionQuery returns indices of all indexed points within eps distance of
// points[idx], including idx itself. Euclidean distance over all three axes;
// squared distances avoid the sqrt.
func (si *SpatialIndex) RegionQuery(points []Point3, idx int, eps float64) []int {
	p := points[idx]
	neighbors := []int{}
	eps2 := eps * eps

	cx, cy, cz := si.cellCoords(p)

	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				key := cellKey(cx+dx, cy+dy, cz+dz)
				for _, candidateIdx := range si.Grid[key] {
					candidate := points[candidateIdx]
					ddx := candidate.X - p.X
					ddy := candidate.Y - p.Y
					ddz := candidate.Z - p.Z
					dist2 := ddx*ddx + ddy*ddy + ddz*ddz

					if dist2 <= eps2 {
						neighbors = append(neighbors, candidateIdx)
					}
				}
			}
		}
	}

	return neighbors
}
