package reco

// Constants for clustering configuration
const (
	// DefaultDBSCANEps is the default neighborhood radius in mm for DBSCAN
	DefaultDBSCANEps = 25.0
	// DefaultDBSCANMinSamples is the default minimum neighborhood population
	// (the point itself included) for a core point
	DefaultDBSCANMinSamples = 5
)

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps        float64 // Neighborhood radius in mm
	MinSamples int     // Minimum points (self included) to form a core point
}

// DefaultDBSCANParams returns the production clustering parameters.
func DefaultDBSCANParams() DBSCANParams {
	return DBSCANParams{
		Eps:        DefaultDBSCANEps,
		MinSamples: DefaultDBSCANMinSamples,
	}
}

// ClusterLabels performs density-based clustering over the active subset of a
// 3D point set and returns one label per point: −1 for noise and for inactive
// points, 0..k−1 for cluster membership in first-discovery order. A point is
// core if its closed eps-neighborhood holds at least MinSamples active points;
// clusters are the density-connected components of core points plus the border
// points their neighborhoods reach. The partition and the label numbering are
// deterministic for a fixed input ordering.
//
// A nil active mask treats every point as active.
func ClusterLabels(points []Point3, active []bool, params DBSCANParams) []int {
	n := len(points)
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	if n == 0 {
		return out
	}

	subset := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if active == nil || active[i] {
			subset = append(subset, i)
		}
	}
	if len(subset) == 0 {
		return out
	}

	// labels over the full index space: 0=unvisited, -1=noise, >0=clusterID.
	// Inactive points stay at 0 and are skipped; they are reported as -1.
	labels := make([]int, n)
	clusterID := 0

	// Build spatial index over the active points (required for performance)
	spatialIndex := NewSpatialIndex(params.Eps)
	spatialIndex.Build(points, subset)

	for _, i := range subset {
		if labels[i] != 0 {
			continue // Already processed
		}

		neighbors := spatialIndex.RegionQuery(points, i, params.Eps)

		if len(neighbors) < params.MinSamples {
			labels[i] = -1 // Mark as noise
			continue
		}

		clusterID++
		expandCluster(points, spatialIndex, labels, i, neighbors, clusterID, params.Eps, params.MinSamples)
	}

	for _, i := range subset {
		if labels[i] > 0 {
			out[i] = labels[i] - 1
		}
	}
	return out
}

// expandCluster expands a cluster from a core point.
func expandCluster(points []Point3, si *SpatialIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minSamples int) {

	labels[seedIdx] = clusterID

	// Use a queue-based approach for expansion
	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // Noise becomes border point
		}

		if labels[idx] != 0 {
			continue // Already processed
		}

		labels[idx] = clusterID
		newNeighbors := si.RegionQuery(points, idx, eps)

		if len(newNeighbors) >= minSamples {
			// Core point - add its neighbors to the queue
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}

// countLabels returns the number of distinct non-noise labels, which is also
// 1 + the maximum label value since ClusterLabels numbers clusters densely.
func countLabels(labels []int) int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max + 1
}
