package cluster

import "github.com/fyrsmithlabs/sketchd/internal/recognition"

// RankedResult pairs a recognizer result with its rank.
type RankedResult struct {
	Rank   int
	Result recognition.Result
}

// Score aggregates a recognizer's ranked results for one cluster. Ranking
// order is taken from the recognizer as is.
type Score struct {
	ranked []RankedResult
}

// NewScore builds a score from results in recognizer order.
func NewScore(results []recognition.Result) *Score {
	ranked := make([]RankedResult, len(results))
	for i, r := range results {
		ranked[i] = RankedResult{Rank: i, Result: r}
	}
	return &Score{ranked: ranked}
}

// Ranked returns the rank/result pairs.
func (s *Score) Ranked() []RankedResult {
	out := make([]RankedResult, len(s.ranked))
	copy(out, s.ranked)
	return out
}

// TopMatch returns the rank-0 result, or false when there were none.
func (s *Score) TopMatch() (recognition.Result, bool) {
	if s == nil || len(s.ranked) == 0 {
		return recognition.Result{}, false
	}
	return s.ranked[0].Result, true
}

// Value is the fused score of the top match, 0 without one.
func (s *Score) Value() float64 {
	top, ok := s.TopMatch()
	if !ok {
		return 0
	}
	return top.FusedScore
}
