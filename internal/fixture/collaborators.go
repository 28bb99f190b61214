package fixture

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/fyrsmithlabs/sketchd/internal/assembly"
	"github.com/fyrsmithlabs/sketchd/internal/pipeline"
	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Features are the per-stroke measurements the featurizer records.
type Features struct {
	Length float64
	Bound  orb.Bound
	Points int
}

// Featurizer measures strokes. It fails on strokes with no points.
type Featurizer struct {
	mu       sync.RWMutex
	features map[sketch.StrokeID]Features
}

// NewFeaturizer creates an empty featurizer.
func NewFeaturizer() *Featurizer {
	return &Featurizer{features: make(map[sketch.StrokeID]Features)}
}

// Featurize implements pipeline.Featurizer.
func (f *Featurizer) Featurize(ctx context.Context, strokes []*sketch.Stroke) error {
	out := make(map[sketch.StrokeID]Features, len(strokes))
	for _, st := range strokes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(st.Points) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyStroke, st.ID)
		}
		out[st.ID] = Features{
			Length: planar.Length(st.Points),
			Bound:  st.Bound(),
			Points: len(st.Points),
		}
	}
	f.mu.Lock()
	f.features = out
	f.mu.Unlock()
	return nil
}

// Features returns the measurements from the last featurization.
func (f *Featurizer) Features(id sketch.StrokeID) (Features, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ft, ok := f.features[id]
	return ft, ok
}

// Classifier answers from the document's label table. Unlabeled strokes get
// sketch.LabelUnknown.
type Classifier struct {
	labels map[sketch.StrokeID]string
}

// Classify implements pipeline.Classifier.
func (c *Classifier) Classify(ctx context.Context, strokes []*sketch.Stroke) (assembly.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(assembly.Classification, len(strokes))
	for _, st := range strokes {
		label, ok := c.labels[st.ID]
		if !ok || label == "" {
			label = sketch.LabelUnknown
		}
		out[st.ID] = label
	}
	return out, nil
}

// Grouper answers from the document's pair table, keeping only pairs whose
// strokes are both present.
type Grouper struct {
	pairs []assembly.JoinedPair
}

// Group implements assembly.Grouper.
func (g *Grouper) Group(ctx context.Context, strokes []*sketch.Stroke, _ assembly.Classification) (*assembly.Grouping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	present := idSet(strokes)
	out := &assembly.Grouping{Pairs: make([]assembly.JoinedPair, 0, len(g.pairs))}
	for _, p := range g.pairs {
		if present[p.A] && present[p.B] {
			out.Pairs = append(out.Pairs, p)
		}
	}
	return out, nil
}

// Recognizer matches stroke sets against the document's templates.
//
// An exact match returns the template's score and errors. A partial overlap
// returns the score scaled by Jaccard similarity, with an extra-stroke error
// for every input stroke outside the template. Results are ranked by fused
// score, then symbol.
type Recognizer struct {
	templates []Template
}

// Recognize implements recognition.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, strokes []*sketch.Stroke) ([]recognition.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input := idSet(strokes)

	var results []recognition.Result
	for _, tpl := range r.templates {
		members := make(map[sketch.StrokeID]bool, len(tpl.Strokes))
		for _, id := range tpl.Strokes {
			members[id] = true
		}
		shared := 0
		for id := range input {
			if members[id] {
				shared++
			}
		}
		if shared == 0 {
			continue
		}

		res := recognition.Result{Symbol: tpl.Symbol, Metadata: tpl.Metadata}
		union := len(input) + len(members) - shared
		if shared == len(input) && shared == len(members) {
			res.FusedScore = tpl.Score
			res.Errors = append(res.Errors, tpl.Errors...)
		} else {
			res.FusedScore = tpl.Score * float64(shared) / float64(union)
			for _, st := range strokes {
				if !members[st.ID] {
					res.Errors = append(res.Errors, recognition.StructuralError{
						Kind:   recognition.ErrorExtraStroke,
						Stroke: st.ID,
					})
				}
			}
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].Symbol < results[j].Symbol
	})
	return results, nil
}

// Collaborators builds the full collaborator set from the document.
func (d *Document) Collaborators() pipeline.Collaborators {
	labels := make(map[sketch.StrokeID]string, len(d.Labels))
	for id, label := range d.Labels {
		labels[sketch.StrokeID(id)] = label
	}
	return pipeline.Collaborators{
		Featurizer: NewFeaturizer(),
		Classifier: &Classifier{labels: labels},
		Grouper:    &Grouper{pairs: append([]assembly.JoinedPair(nil), d.Pairs...)},
		Recognizer: &Recognizer{templates: append([]Template(nil), d.Templates...)},
	}
}

func idSet(strokes []*sketch.Stroke) map[sketch.StrokeID]bool {
	out := make(map[sketch.StrokeID]bool, len(strokes))
	for _, st := range strokes {
		out[st.ID] = true
	}
	return out
}
