package store

import (
	"math"
	"sort"
)

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||). It returns 0 for
// mismatched lengths or zero-magnitude vectors instead of failing; a score
// of 0 simply ranks the row last.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// candidate pairs a prospective match with its stored vector for ranking.
type candidate struct {
	match Match
	vec   []float32
}

// rankCandidates scores every candidate against the query vector, sorts
// descending by similarity (stable, preserving scan order on ties), takes
// the first topK, and fills in Distance = 1 - similarity.
func rankCandidates(queryVec []float32, cands []candidate, topK int) []Match {
	if topK <= 0 || len(cands) == 0 {
		return nil
	}

	sims := make([]float64, len(cands))
	order := make([]int, len(cands))
	for i := range cands {
		sims[i] = CosineSimilarity(queryVec, cands[i].vec)
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return sims[order[i]] > sims[order[j]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]Match, 0, topK)
	for _, idx := range order[:topK] {
		m := cands[idx].match
		m.Distance = 1 - sims[idx]
		out = append(out, m)
	}
	return out
}
