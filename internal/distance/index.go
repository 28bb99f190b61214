// Package distance provides the precomputed pairwise stroke-distance table
// used by candidate search to find a cluster's nearest outside strokes.
package distance

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// ErrNoEntries is returned when a stroke has no entries in the index.
var ErrNoEntries = errors.New("no distance entries for stroke")

// Pair is the minimum distance between two strokes.
type Pair struct {
	A, B *sketch.Stroke
	Min  float64
}

// Other returns the stroke of the pair that is not st, or nil when st is
// not part of the pair.
func (p Pair) Other(st *sketch.Stroke) *sketch.Stroke {
	switch st {
	case p.A:
		return p.B
	case p.B:
		return p.A
	}
	return nil
}

// Index maps each stroke to its distance entries, ascending by distance.
// It is read-only once built and safe for concurrent readers.
type Index struct {
	entries map[sketch.StrokeID][]Pair
}

// NewIndex creates an index from explicit pairs. Each pair is listed under
// both of its strokes.
func NewIndex(pairs []Pair) *Index {
	idx := &Index{entries: make(map[sketch.StrokeID][]Pair)}
	for _, p := range pairs {
		idx.entries[p.A.ID] = append(idx.entries[p.A.ID], p)
		idx.entries[p.B.ID] = append(idx.entries[p.B.ID], p)
	}
	for id := range idx.entries {
		list := idx.entries[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Min < list[j].Min })
	}
	return idx
}

// Build computes the minimum planar distance between every pair of strokes.
func Build(strokes []*sketch.Stroke) *Index {
	pairs := make([]Pair, 0, len(strokes)*(len(strokes)-1)/2+1)
	for i := 0; i < len(strokes); i++ {
		for j := i + 1; j < len(strokes); j++ {
			pairs = append(pairs, Pair{
				A:   strokes[i],
				B:   strokes[j],
				Min: MinDistance(strokes[i].Points, strokes[j].Points),
			})
		}
	}
	return NewIndex(pairs)
}

// Entries returns the distance entries recorded for a stroke.
func (x *Index) Entries(id sketch.StrokeID) ([]Pair, error) {
	list, ok := x.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntries, id)
	}
	return list, nil
}

// Len returns the number of strokes with entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// MinDistance returns the smallest distance between two polylines, measured
// from every vertex of each to the other. Single-point lines are handled as
// points.
func MinDistance(a, b orb.LineString) float64 {
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1)
	}
	best := math.Inf(1)
	for _, p := range a {
		if d := distanceFrom(b, p); d < best {
			best = d
		}
	}
	for _, p := range b {
		if d := distanceFrom(a, p); d < best {
			best = d
		}
	}
	return best
}

func distanceFrom(ls orb.LineString, p orb.Point) float64 {
	if len(ls) == 1 {
		return planar.Distance(ls[0], p)
	}
	return planar.DistanceFrom(ls, p)
}
