package reco

import (
	"fmt"
	"math/rand"

	"github.com/larpix-data/tracklet.report/internal/monitoring"
)

// TrackExtractor assigns track ids to an event's hits by iterating a
// cluster → fit → split → assign loop: density-cluster the still-eligible
// points, robust-fit a line through each sufficiently large cluster, re-cluster
// the fit's inliers to separate groups the line crosses without connecting,
// and give every resulting sub-cluster a fresh id. Assigned points leave the
// eligible set, so later rounds work on the residue; the loop stops when a
// round produces only noise, no eligible points remain, or MaxIterations is
// reached. Points never claimed stay at Unassigned, which is an accepted
// partial result rather than an error.

// DefaultMaxIterations bounds the number of extraction rounds per event.
const DefaultMaxIterations = 100

// ExtractorParams contains the full parameter set of the extraction loop.
type ExtractorParams struct {
	DBSCAN        DBSCANParams
	RANSAC        RANSACParams
	MaxIterations int
}

// DefaultExtractorParams returns the production extraction parameters.
func DefaultExtractorParams() ExtractorParams {
	return ExtractorParams{
		DBSCAN:        DefaultDBSCANParams(),
		RANSAC:        DefaultRANSACParams(),
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate checks parameter ranges.
func (p ExtractorParams) Validate() error {
	if p.DBSCAN.Eps <= 0 {
		return fmt.Errorf("dbscan eps must be positive, got %v", p.DBSCAN.Eps)
	}
	if p.DBSCAN.MinSamples < 1 {
		return fmt.Errorf("dbscan min samples must be >= 1, got %d", p.DBSCAN.MinSamples)
	}
	if p.RANSAC.MinSamples < 2 {
		return fmt.Errorf("ransac min samples must be >= 2, got %d", p.RANSAC.MinSamples)
	}
	if p.RANSAC.ResidualThreshold <= 0 {
		return fmt.Errorf("ransac residual threshold must be positive, got %v", p.RANSAC.ResidualThreshold)
	}
	if p.RANSAC.MaxTrials < 1 {
		return fmt.Errorf("ransac max trials must be >= 1, got %d", p.RANSAC.MaxTrials)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", p.MaxIterations)
	}
	return nil
}

// TrackExtractor runs the extraction loop with a fixed parameter set. It holds
// no per-event state; one extractor may serve many events, including
// concurrently, as long as each call gets its own rng.
type TrackExtractor struct {
	params ExtractorParams
}

// NewTrackExtractor validates params and returns an extractor.
func NewTrackExtractor(params ExtractorParams) (*TrackExtractor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extractor params: %w", err)
	}
	return &TrackExtractor{params: params}, nil
}

// Params returns the extractor's parameter set.
func (e *TrackExtractor) Params() ExtractorParams {
	return e.params
}

// FindTracks assigns a track id to each point and returns the ids, parallel to
// points, with Unassigned for points no track claimed. valid marks which slots
// hold real hits; a nil valid treats all points as real. Ids are allocated in
// strictly increasing order starting at 0 and are unique within the event.
//
// For a fixed point order and rng seed the result is identical across runs.
func (e *TrackExtractor) FindTracks(points []Point3, valid []bool, rng *rand.Rand) []int {
	n := len(points)
	ids := make([]int, n)
	for i := range ids {
		ids[i] = Unassigned
	}

	eligible := make([]bool, n)
	anyEligible := false
	for i := 0; i < n; i++ {
		if valid == nil || valid[i] {
			eligible[i] = true
			anyEligible = true
		}
	}

	nextID := -1
	for iter := 0; iter < e.params.MaxIterations; iter++ {
		if !anyEligible {
			break
		}

		labels := ClusterLabels(points, eligible, e.params.DBSCAN)
		nLabels := countLabels(labels)
		monitoring.Debugf("extractor: round=%d eligible=%d clusters=%d", iter, countTrue(eligible), nLabels)

		for label := 0; label < nLabels; label++ {
			members := make([]int, 0)
			for i, l := range labels {
				if l == label {
					members = append(members, i)
				}
			}

			// Clusters no bigger than the fit sample size cannot produce a
			// meaningful consensus; leave their points for later rounds.
			if len(members) <= e.params.RANSAC.MinSamples {
				continue
			}

			clusterPts := make([]Point3, len(members))
			for j, i := range members {
				clusterPts[j] = points[i]
			}

			inliers, err := RANSACInliers(clusterPts, e.params.RANSAC, rng)
			if err != nil {
				continue
			}

			inlierMask := make([]bool, n)
			inlierCount := 0
			for j, in := range inliers {
				if in {
					inlierMask[members[j]] = true
					inlierCount++
				}
			}
			if inlierCount == 0 {
				continue
			}

			// A single fitted line can thread through two disjoint hit groups;
			// re-clustering the inliers splits those apart before ids are
			// handed out.
			subLabels := ClusterLabels(points, inlierMask, e.params.DBSCAN)
			nSub := countLabels(subLabels)
			monitoring.Debugf("extractor: round=%d cluster=%d size=%d inliers=%d subclusters=%d",
				iter, label, len(members), inlierCount, nSub)

			for sub := 0; sub < nSub; sub++ {
				nextID++
				for i, l := range subLabels {
					if l == sub {
						ids[i] = nextID
						eligible[i] = false
					}
				}
			}
		}

		anyEligible = countTrue(eligible) > 0
		if nLabels == 0 || !anyEligible {
			break
		}
	}

	return ids
}

func countTrue(mask []bool) int {
	count := 0
	for _, m := range mask {
		if m {
			count++
		}
	}
	return count
}
