package model

import "sort"

// PairKey identifies a (candidate, opportunity) pair.
type PairKey struct {
	CandidateID   string
	OpportunityID string
}

// ScoreMatrix holds one score per (candidate, opportunity) pair. It is
// immutable once built; absent pairs score 0.
type ScoreMatrix struct {
	scores map[PairKey]float64
}

// NewScoreMatrix copies scores into a new matrix.
func NewScoreMatrix(scores map[PairKey]float64) ScoreMatrix {
	m := make(map[PairKey]float64, len(scores))
	for k, v := range scores {
		m[k] = v
	}
	return ScoreMatrix{scores: m}
}

// Get returns the score for a pair, or 0 when the pair is absent.
func (m ScoreMatrix) Get(candidateID, opportunityID string) float64 {
	return m.scores[PairKey{CandidateID: candidateID, OpportunityID: opportunityID}]
}

// Lookup returns the score and whether the pair is present.
func (m ScoreMatrix) Lookup(candidateID, opportunityID string) (float64, bool) {
	v, ok := m.scores[PairKey{CandidateID: candidateID, OpportunityID: opportunityID}]
	return v, ok
}

// Len returns the number of explicit entries.
func (m ScoreMatrix) Len() int { return len(m.scores) }

// Pairs returns the explicit keys ordered by candidate id, then opportunity id.
func (m ScoreMatrix) Pairs() []PairKey {
	keys := make([]PairKey, 0, len(m.scores))
	for k := range m.scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CandidateID != keys[j].CandidateID {
			return keys[i].CandidateID < keys[j].CandidateID
		}
		return keys[i].OpportunityID < keys[j].OpportunityID
	})
	return keys
}
