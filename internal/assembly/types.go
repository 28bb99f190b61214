package assembly

import (
	"context"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Classification maps each stroke to its classifier label.
type Classification map[sketch.StrokeID]string

// Label returns the label of a stroke, or sketch.LabelUnknown.
func (c Classification) Label(id sketch.StrokeID) string {
	if label, ok := c[id]; ok && label != "" {
		return label
	}
	return sketch.LabelUnknown
}

// JoinedPair is the grouper's decision about two strokes.
type JoinedPair struct {
	A      sketch.StrokeID `json:"a" toml:"a"`
	B      sketch.StrokeID `json:"b" toml:"b"`
	Label  string          `json:"label" toml:"label"`
	Joined bool            `json:"joined" toml:"joined"`
}

// Grouping is a completed grouper result. Pairs are processed in order.
type Grouping struct {
	Pairs []JoinedPair
}

// Joined returns only the pairs the grouper decided belong together, in
// their original order.
func (g *Grouping) Joined() []JoinedPair {
	if g == nil {
		return nil
	}
	out := make([]JoinedPair, 0, len(g.Pairs))
	for _, p := range g.Pairs {
		if p.Joined {
			out = append(out, p)
		}
	}
	return out
}

// Grouper derives joined stroke pairs from strokes and their labels.
type Grouper interface {
	Group(ctx context.Context, strokes []*sketch.Stroke, labels Classification) (*Grouping, error)
}

// GrouperFunc adapts a function to Grouper.
type GrouperFunc func(ctx context.Context, strokes []*sketch.Stroke, labels Classification) (*Grouping, error)

// Group calls f.
func (f GrouperFunc) Group(ctx context.Context, strokes []*sketch.Stroke, labels Classification) (*Grouping, error) {
	return f(ctx, strokes, labels)
}

// Report summarizes one merge pass.
type Report struct {
	// Merges is the number of shape merges performed.
	Merges int
	// Skipped counts joined pairs dropped because of a structural mismatch
	// or an unknown stroke.
	Skipped int
	// Relabeled counts unknown-typed shapes that took their stroke's label.
	Relabeled int
}
