package assembly

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Engine applies classification and grouping results to a sketch. It is not
// safe for concurrent use; the pipeline serializes access.
type Engine struct {
	sketch  *sketch.Sketch
	grouper Grouper
	logger  *zap.Logger

	labels Classification
}

// Option configures an Engine.
type Option func(*Engine)

// WithGrouper sets the grouper used when GroupSketch has no result.
func WithGrouper(g Grouper) Option {
	return func(e *Engine) { e.grouper = g }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over sk.
func NewEngine(sk *sketch.Sketch, opts ...Option) *Engine {
	e := &Engine{
		sketch: sk,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("assembly")
	return e
}

// Labels returns the last applied classification.
func (e *Engine) Labels() Classification {
	return e.labels
}

// Reset forgets the applied classification. Committed shapes are kept.
func (e *Engine) Reset() {
	e.labels = nil
}

// ApplyClassifications stamps every stroke with its label and creates a
// singleton shape for each stroke that has none. An empty result for a
// sketch with strokes is a failed classification, not a set of unknowns.
func (e *Engine) ApplyClassifications(result Classification) error {
	strokes := e.sketch.Strokes()
	if len(result) == 0 && len(strokes) > 0 {
		return fmt.Errorf("%w: classification", ErrMissingResult)
	}
	if result == nil {
		result = Classification{}
	}
	created := 0
	for _, st := range strokes {
		label := result.Label(st.ID)
		st.Classification = label
		if st.PrimaryShape() == nil {
			e.sketch.NewSingleton(st, label)
			created++
		}
	}
	e.labels = result
	e.logger.Debug("classifications applied",
		zap.Int("strokes", len(result)),
		zap.Int("singletons_created", created))
	return nil
}

// GroupSketch rebuilds composite shapes from a grouping. A nil grouping is
// derived through the configured grouper from the applied labels. Joined
// pairs are merged in order, so chains of pairs collapse into one shape.
func (e *Engine) GroupSketch(ctx context.Context, grouping *Grouping) (Report, error) {
	var report Report
	if grouping == nil {
		derived, err := e.derive(ctx)
		if err != nil {
			return report, err
		}
		grouping = derived
	}

	e.sketch.ClearGroupings()

	for _, st := range e.sketch.Strokes() {
		sh := st.PrimaryShape()
		if sh != nil && sh.Type == sketch.LabelUnknown && st.Classification != sketch.LabelUnknown {
			sh.Type = st.Classification
			report.Relabeled++
		}
	}

	for _, pair := range grouping.Joined() {
		merged, err := e.mergePair(pair)
		if err != nil {
			report.Skipped++
			e.logger.Warn("joined pair skipped",
				zap.String("stroke_a", string(pair.A)),
				zap.String("stroke_b", string(pair.B)),
				zap.Error(err))
			continue
		}
		if merged {
			report.Merges++
		}
	}

	e.logger.Debug("sketch grouped",
		zap.Int("pairs", len(grouping.Pairs)),
		zap.Int("merges", report.Merges),
		zap.Int("skipped", report.Skipped),
		zap.Int("shapes", len(e.sketch.Shapes())))
	return report, nil
}

func (e *Engine) derive(ctx context.Context) (*Grouping, error) {
	if e.labels == nil {
		return nil, fmt.Errorf("%w: grouping and classification", ErrMissingResult)
	}
	if e.grouper == nil {
		return nil, fmt.Errorf("%w: grouping: %w", ErrMissingResult, ErrNoGrouper)
	}
	grouping, err := e.grouper.Group(ctx, e.sketch.Strokes(), e.labels)
	if err != nil {
		return nil, fmt.Errorf("derive grouping: %w", err)
	}
	if grouping == nil {
		return nil, fmt.Errorf("%w: grouping", ErrMissingResult)
	}
	return grouping, nil
}

// mergePair merges the primary shapes of a joined pair. It reports false
// when both strokes already share a shape.
func (e *Engine) mergePair(pair JoinedPair) (bool, error) {
	a, ok := e.sketch.Stroke(pair.A)
	if !ok {
		return false, fmt.Errorf("%w: %s", sketch.ErrStrokeNotFound, pair.A)
	}
	b, ok := e.sketch.Stroke(pair.B)
	if !ok {
		return false, fmt.Errorf("%w: %s", sketch.ErrStrokeNotFound, pair.B)
	}

	label := pairLabel(pair, a)
	a.Classification = label
	b.Classification = label

	first, second := a.PrimaryShape(), b.PrimaryShape()
	if first == nil || second == nil || first.Len() == 0 || second.Len() == 0 {
		return false, ErrStructuralMismatch
	}
	if first == second {
		return false, nil
	}

	first.Type = label
	second.Type = label
	merged, err := e.sketch.MergeShapes(first, second)
	if err != nil {
		return false, fmt.Errorf("merge shapes: %w", err)
	}
	merged.Probability = 0
	return true, nil
}

// pairLabel is the pair's own label, falling back to the first stroke's.
func pairLabel(pair JoinedPair, a *sketch.Stroke) string {
	if pair.Label != "" {
		return pair.Label
	}
	return a.Classification
}
