package cluster

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/distance"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Mode selects how Add modifications are generated.
type Mode string

const (
	// ModeCount adds the N nearest outside strokes.
	ModeCount Mode = "count"
	// ModeRadius adds every outside stroke within a radius.
	ModeRadius Mode = "radius"
)

// Default search neighborhood.
const (
	DefaultNeighborhoodCount  = 4
	DefaultNeighborhoodRadius = 500.0
)

// Options control modification generation.
type Options struct {
	NeighborhoodCount  int     `json:"neighborhood_count" koanf:"neighborhood_count"`
	NeighborhoodRadius float64 `json:"neighborhood_radius" koanf:"neighborhood_radius"`
	Mode               Mode    `json:"mode" koanf:"mode"`
}

// DefaultOptions returns count-based generation with the default
// neighborhood.
func DefaultOptions() Options {
	return Options{
		NeighborhoodCount:  DefaultNeighborhoodCount,
		NeighborhoodRadius: DefaultNeighborhoodRadius,
		Mode:               ModeCount,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeCount, "":
		if o.NeighborhoodCount < 0 {
			return fmt.Errorf("%w: neighborhood count must be >= 0, got %d", ErrInvalidOptions, o.NeighborhoodCount)
		}
	case ModeRadius:
		if o.NeighborhoodRadius < 0 {
			return fmt.Errorf("%w: neighborhood radius must be >= 0, got %f", ErrInvalidOptions, o.NeighborhoodRadius)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, o.Mode)
	}
	return nil
}

// Arena owns the clusters of one search. Clusters refer to each other by
// arena index. An Arena is not safe for concurrent use; run independent
// searches in separate arenas.
type Arena struct {
	index    *distance.Index
	opts     Options
	logger   *zap.Logger
	clusters []*Cluster
}

// NewArena creates an arena backed by a distance index.
func NewArena(index *distance.Index, opts Options, logger *zap.Logger) *Arena {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arena{
		index:  index,
		opts:   opts,
		logger: logger,
	}
}

// Len returns the number of clusters in the arena.
func (a *Arena) Len() int { return len(a.clusters) }

// Get returns the cluster at id, or nil.
func (a *Arena) Get(id ID) *Cluster {
	if id < 0 || int(id) >= len(a.clusters) {
		return nil
	}
	return a.clusters[id]
}

// NewSeed creates a top-level cluster from one, two or any number of
// strokes. Duplicate strokes are kept once.
func (a *Arena) NewSeed(className string, strokes ...*sketch.Stroke) (*Cluster, error) {
	members := make([]*sketch.Stroke, 0, len(strokes))
	for _, st := range strokes {
		if st != nil && !containsStroke(members, st) {
			members = append(members, st)
		}
	}
	if len(members) == 0 {
		return nil, ErrEmptyCluster
	}
	return a.add(members, className, true, NoParent), nil
}

// Merge returns a new top-level cluster holding c1's strokes followed by
// those of c2 not already present, labeled with c1's class.
func (a *Arena) Merge(c1, c2 *Cluster) *Cluster {
	members := make([]*sketch.Stroke, 0, c1.Len()+c2.Len())
	members = append(members, c1.strokes...)
	for _, st := range c2.strokes {
		if !containsStroke(members, st) {
			members = append(members, st)
		}
	}
	return a.add(members, c1.className, true, NoParent)
}

// Child materializes the cluster produced by applying mod to parent. It
// returns false when the result would be empty.
func (a *Arena) Child(parent *Cluster, mod Modification) (*Cluster, bool) {
	members := mod.apply(parent.strokes)
	if len(members) == 0 {
		return nil, false
	}
	return a.add(members, parent.className, false, parent.id), true
}

func (a *Arena) add(members []*sketch.Stroke, className string, isParent bool, parent ID) *Cluster {
	c := &Cluster{
		id:        ID(len(a.clusters)),
		strokes:   members,
		className: className,
		bounds:    boundsOf(members),
		isParent:  isParent,
		parent:    parent,
		hash:      ContentHash(members, className),
	}
	c.nearest = NearestStrokes(members, a.index, a.logger)
	c.modifications = a.modificationsFor(c)
	a.clusters = append(a.clusters, c)
	return c
}

func (a *Arena) modificationsFor(c *Cluster) []Modification {
	if a.opts.Mode == ModeRadius {
		return c.GenerateModificationsWithinRadius(a.opts.NeighborhoodRadius)
	}
	return c.GenerateModifications(a.opts.NeighborhoodCount)
}

// Expansion is the deduplicated set of candidates discovered by Expand, in
// discovery order.
type Expansion struct {
	order  []uint64
	byHash map[uint64]*Cluster

	// Duplicates counts derived clusters dropped because their content hash
	// had already been seen.
	Duplicates int
}

func newExpansion() *Expansion {
	return &Expansion{byHash: make(map[uint64]*Cluster)}
}

// Len returns the number of distinct candidates.
func (e *Expansion) Len() int { return len(e.order) }

// Contains reports whether a candidate with the given hash was found.
func (e *Expansion) Contains(hash uint64) bool {
	_, ok := e.byHash[hash]
	return ok
}

// Get returns the candidate with the given hash.
func (e *Expansion) Get(hash uint64) (*Cluster, bool) {
	c, ok := e.byHash[hash]
	return c, ok
}

// Hashes returns the candidate hashes in discovery order.
func (e *Expansion) Hashes() []uint64 {
	out := make([]uint64, len(e.order))
	copy(out, e.order)
	return out
}

// Clusters returns the candidates in discovery order.
func (e *Expansion) Clusters() []*Cluster {
	out := make([]*Cluster, len(e.order))
	for i, h := range e.order {
		out[i] = e.byHash[h]
	}
	return out
}

// insert adds c unless its hash is already present; first seen wins.
func (e *Expansion) insert(c *Cluster) bool {
	if _, ok := e.byHash[c.hash]; ok {
		return false
	}
	e.byHash[c.hash] = c
	e.order = append(e.order, c.hash)
	return true
}

type expansionItem struct {
	cluster *Cluster
	depth   int
}

// Expand discovers every non-empty cluster reachable from root by applying
// between 1 and maxDepth-currentDepth modifications. The root itself is only
// part of the result if a derivation leads back to it. When currentDepth is
// already at or past maxDepth the result is empty.
func (a *Arena) Expand(root *Cluster, maxDepth, currentDepth int) *Expansion {
	exp := newExpansion()
	if root == nil || currentDepth >= maxDepth {
		return exp
	}

	expanded := map[uint64]struct{}{root.hash: {}}
	queue := []expansionItem{{cluster: root, depth: currentDepth}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxDepth {
			continue
		}

		parent := item.cluster
		for _, mod := range parent.modifications {
			members := mod.apply(parent.strokes)
			if len(members) == 0 {
				continue
			}
			hash := ContentHash(members, parent.className)
			if exp.Contains(hash) {
				exp.Duplicates++
				continue
			}

			child := a.add(members, parent.className, false, parent.id)
			exp.insert(child)

			if _, done := expanded[hash]; done {
				continue
			}
			expanded[hash] = struct{}{}
			queue = append(queue, expansionItem{cluster: child, depth: item.depth + 1})
		}
	}

	a.logger.Debug("cluster expanded",
		zap.Int("root_id", int(root.id)),
		zap.Int("max_depth", maxDepth),
		zap.Int("candidates", exp.Len()),
		zap.Int("duplicates", exp.Duplicates))
	return exp
}
