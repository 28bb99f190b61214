package cluster

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/distance"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// TieEpsilon is added to a distance key that collides with one already
// recorded, so equal distances keep a total order and no neighbor is lost.
const TieEpsilon = 1e-11

// ID is a cluster's index in its arena.
type ID int

// NoParent marks a top-level cluster.
const NoParent ID = -1

// Neighbor is a stroke outside a cluster and its distance key.
type Neighbor struct {
	Stroke   *sketch.Stroke
	Distance float64
}

// Cluster is an immutable candidate grouping of strokes.
type Cluster struct {
	id            ID
	strokes       []*sketch.Stroke
	className     string
	bounds        orb.Bound
	nearest       []Neighbor
	modifications []Modification
	isParent      bool
	parent        ID
	hash          uint64
}

// ID returns the cluster's arena index.
func (c *Cluster) ID() ID { return c.id }

// ClassName returns the cluster's label.
func (c *Cluster) ClassName() string { return c.className }

// Hash returns the content hash.
func (c *Cluster) Hash() uint64 { return c.hash }

// IsParent reports whether the cluster is a top-level hypothesis rather
// than a derived child.
func (c *Cluster) IsParent() bool { return c.isParent }

// Parent returns the arena index of the cluster this one was derived from,
// or NoParent.
func (c *Cluster) Parent() ID { return c.parent }

// Bounds returns the bounding box of the member strokes.
func (c *Cluster) Bounds() orb.Bound { return c.bounds }

// Len returns the number of member strokes.
func (c *Cluster) Len() int { return len(c.strokes) }

// Strokes returns the member strokes in order.
func (c *Cluster) Strokes() []*sketch.Stroke {
	out := make([]*sketch.Stroke, len(c.strokes))
	copy(out, c.strokes)
	return out
}

// StrokeIDs returns the member stroke ids in order.
func (c *Cluster) StrokeIDs() []sketch.StrokeID {
	ids := make([]sketch.StrokeID, len(c.strokes))
	for i, st := range c.strokes {
		ids[i] = st.ID
	}
	return ids
}

// Nearest returns the nearby non-member strokes, ascending by distance.
func (c *Cluster) Nearest() []Neighbor {
	out := make([]Neighbor, len(c.nearest))
	copy(out, c.nearest)
	return out
}

// Modifications returns the pending one-step modifications.
func (c *Cluster) Modifications() []Modification {
	out := make([]Modification, len(c.modifications))
	copy(out, c.modifications)
	return out
}

// Contains reports whether st is a member.
func (c *Cluster) Contains(st *sketch.Stroke) bool {
	return containsStroke(c.strokes, st)
}

// GenerateModifications returns a Remove for every member followed by an Add
// for each of the n nearest outside strokes.
func (c *Cluster) GenerateModifications(n int) []Modification {
	mods := make([]Modification, 0, len(c.strokes)+n)
	for _, st := range c.strokes {
		mods = append(mods, Remove(st))
	}
	added := 0
	for _, nb := range c.nearest {
		if added >= n {
			break
		}
		if c.Contains(nb.Stroke) {
			continue
		}
		mods = append(mods, Add(nb.Stroke))
		added++
	}
	return mods
}

// GenerateModificationsWithinRadius returns a Remove for every member
// followed by an Add for every outside stroke no farther than radius.
func (c *Cluster) GenerateModificationsWithinRadius(radius float64) []Modification {
	mods := make([]Modification, 0, len(c.strokes))
	for _, st := range c.strokes {
		mods = append(mods, Remove(st))
	}
	for _, nb := range c.nearest {
		if nb.Distance > radius {
			break
		}
		if c.Contains(nb.Stroke) {
			continue
		}
		mods = append(mods, Add(nb.Stroke))
	}
	return mods
}

// NearestStrokes lists the strokes closest to any member that are not
// members themselves, ascending by distance, each stroke once at its
// smallest key. A stroke whose distance entries cannot be read is logged and
// contributes no neighbors.
func NearestStrokes(members []*sketch.Stroke, index *distance.Index, logger *zap.Logger) []Neighbor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if index == nil {
		logger.Warn("neighbor discovery skipped: no distance index")
		return nil
	}

	keyed := make(map[float64]*sketch.Stroke)
	for _, m := range members {
		entries, err := index.Entries(m.ID)
		if err != nil {
			logger.Warn("neighbor discovery failed for stroke",
				zap.String("stroke_id", string(m.ID)),
				zap.Error(err))
			continue
		}
		for _, e := range entries {
			other := e.Other(m)
			if other == nil || containsStroke(members, other) {
				continue
			}
			keyed[uniqueKey(keyed, e.Min)] = other
		}
	}

	keys := make([]float64, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	seen := make(map[*sketch.Stroke]struct{}, len(keys))
	out := make([]Neighbor, 0, len(keys))
	for _, k := range keys {
		st := keyed[k]
		if _, dup := seen[st]; dup {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, Neighbor{Stroke: st, Distance: k})
	}
	return out
}

// uniqueKey perturbs key upward until it is not already taken.
func uniqueKey(taken map[float64]*sketch.Stroke, key float64) float64 {
	for {
		if _, ok := taken[key]; !ok {
			return key
		}
		next := key + TieEpsilon
		if next == key {
			next = math.Nextafter(key, math.Inf(1))
		}
		key = next
	}
}

// ContentHash is the deduplication key of a candidate: the hash of the
// stroke-id set XOR the hash of the class name. Member order does not matter.
func ContentHash(strokes []*sketch.Stroke, className string) uint64 {
	ids := make([]string, len(strokes))
	for i, st := range strokes {
		ids[i] = string(st.ID)
	}
	sort.Strings(ids)

	d := xxhash.New()
	for _, id := range ids {
		_, _ = d.WriteString(id)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64() ^ xxhash.Sum64String(className)
}

func boundsOf(strokes []*sketch.Stroke) orb.Bound {
	if len(strokes) == 0 {
		return orb.Bound{}
	}
	b := strokes[0].Bound()
	for _, st := range strokes[1:] {
		b = b.Union(st.Bound())
	}
	return b
}
