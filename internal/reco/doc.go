// Package reco implements tracklet reconstruction over one event's 3D hits.
//
// The entry points are TrackExtractor.FindTracks, which partitions hits into
// straight-line candidates by iterating density clustering (DBSCAN), robust
// line fitting (RANSAC) and inlier re-clustering, and CalcTracklets, which
// turns a finished id assignment into per-track parameter records via
// principal component analysis.
//
// The package is pure computation: no I/O, no global state, and all
// randomness flows through explicitly injected generators so identical inputs
// and seeds reproduce identical output.
package reco
