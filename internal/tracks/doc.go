// Package tracks owns ingestion of centrosome trajectories.
//
// Responsibilities: parsing per-detection records produced by the external
// particle tracker, grouping them into Tracks, and validating each track in
// isolation. A malformed track is rejected with a DataError scoped to that
// track; the rest of the movie is still ingested.
package tracks
