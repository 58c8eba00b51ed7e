package pipeline

import "github.com/larpix-data/tracklet.report/internal/reco"

// AssembledTracklet is one tracklet with its event context and hit
// membership. Params.ID stays event-local; storage assigns the global
// identity when the tracklet is persisted.
type AssembledTracklet struct {
	EventID  int64
	Params   reco.Tracklet
	HitSlots []int
}

// Assemble flattens per-event results into a single list: events in input
// order, tracklets within an event in ascending track id order. The ordering
// is what makes reruns comparable row for row. Hit membership comes from the
// assignment array, so the slots of a tracklet are exactly the slots carrying
// its id.
func Assemble(results []EventResult) []AssembledTracklet {
	var assembled []AssembledTracklet
	for _, res := range results {
		for _, t := range res.Tracklets {
			slots := make([]int, 0, t.NHit)
			for slot, id := range res.TrackIDs {
				if id == t.ID {
					slots = append(slots, slot)
				}
			}
			assembled = append(assembled, AssembledTracklet{
				EventID:  res.EventID,
				Params:   t,
				HitSlots: slots,
			})
		}
	}
	return assembled
}
