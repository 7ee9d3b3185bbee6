package pairing

import (
	"sort"

	"github.com/banshee-data/mitosis.report/internal/monitoring"
)

// Assign resolves accepted pairs that share a track. Accepted pairs are
// matched one-to-one between their lower-id and higher-id tracks by an
// optimal assignment maximising total score; a track that still ends up in
// two kept pairs (once on each side) keeps only its higher-scoring pair.
// Losing pairs are returned with Conflict set. Pairs that are not accepted
// pass through unchanged. The input slice is not modified.
func Assign(pairs []TrackPair) []TrackPair {
	out := make([]TrackPair, len(pairs))
	copy(out, pairs)

	var accepted []int
	for i, p := range out {
		if p.Label == Accepted {
			accepted = append(accepted, i)
		}
	}
	if len(accepted) < 2 {
		return out
	}

	rowIdx := map[string]int{}
	colIdx := map[string]int{}
	for _, i := range accepted {
		if _, ok := rowIdx[out[i].A.ID]; !ok {
			rowIdx[out[i].A.ID] = len(rowIdx)
		}
		if _, ok := colIdx[out[i].B.ID]; !ok {
			colIdx[out[i].B.ID] = len(colIdx)
		}
	}

	cost := make([][]float64, len(rowIdx))
	owner := make([][]int, len(rowIdx))
	for r := range cost {
		cost[r] = make([]float64, len(colIdx))
		owner[r] = make([]int, len(colIdx))
		for c := range cost[r] {
			cost[r][c] = forbidden
			owner[r][c] = -1
		}
	}
	for _, i := range accepted {
		r, c := rowIdx[out[i].A.ID], colIdx[out[i].B.ID]
		cost[r][c] = 1 - out[i].Score.Value
		owner[r][c] = i
	}

	kept := map[int]bool{}
	for r, c := range hungarianAssign(cost) {
		if c >= 0 && owner[r][c] >= 0 {
			kept[owner[r][c]] = true
		}
	}

	// Rows and columns are separate track roles, so a track can still
	// appear once as A and once as B.
	order := make([]int, 0, len(kept))
	for i := range kept {
		order = append(order, i)
	}
	sort.Slice(order, func(x, y int) bool {
		px, py := out[order[x]], out[order[y]]
		if px.Score.Value != py.Score.Value {
			return px.Score.Value > py.Score.Value
		}
		return px.ID < py.ID
	})
	usedTrack := map[string]bool{}
	for _, i := range order {
		a, b := out[i].A.ID, out[i].B.ID
		if usedTrack[a] || usedTrack[b] {
			delete(kept, i)
			continue
		}
		usedTrack[a] = true
		usedTrack[b] = true
	}

	for _, i := range accepted {
		out[i].Conflict = !kept[i]
		if out[i].Conflict {
			monitoring.Logf("[pairing] pair %s conflicts with a higher-scoring pair", out[i].ID)
		}
	}
	return out
}
