// Package verify submits assembled shapes to the template recognizer,
// repairs shapes that carry extraneous strokes and commits the recognized
// label and confidence.
package verify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// MinCompositeStrokes is the stroke count at which a shape is submitted
// even when its type is not a listed category.
const MinCompositeStrokes = 2

// Config configures verification.
type Config struct {
	// RateLimit caps recognizer calls per second. Zero means unlimited.
	RateLimit float64 `json:"rate_limit" koanf:"rate_limit"`
	Burst     int     `json:"burst" koanf:"burst"`

	// Categories are shape types always submitted to the recognizer.
	Categories []string `json:"categories" koanf:"categories"`

	// SearchCandidates runs candidate search over composite shapes after
	// repair.
	SearchCandidates bool `json:"search_candidates" koanf:"search_candidates"`
}

// DefaultConfig returns unthrottled verification with no explicit
// categories.
func DefaultConfig() Config {
	return Config{Burst: 1}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RateLimit < 0 {
		return fmt.Errorf("verify rate limit must be >= 0, got %f", c.RateLimit)
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		return fmt.Errorf("verify burst must be >= 1 when rate limited, got %d", c.Burst)
	}
	return nil
}

// Outcome is what happened to one submitted shape.
type Outcome struct {
	Shape      *sketch.Shape
	Symbol     string
	Score      float64
	Removed    []sketch.StrokeID
	Unresolved []recognition.StructuralError
}

// Err returns ErrUnresolved when structural errors remain, else nil.
func (o Outcome) Err() error {
	if len(o.Unresolved) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d error(s) on shape %s", ErrUnresolved, len(o.Unresolved), o.Shape.ID)
}

// Report summarizes one verification pass.
type Report struct {
	Submitted     int
	Skipped       int
	EmptyRemoved  int
	NoMatch       int
	Failed        int
	Recoverable   int
	Unresolved    int
	StrokesPruned int
	Outcomes      []Outcome
}

// Verifier runs verification and repair over a sketch.
type Verifier struct {
	recognizer recognition.Recognizer
	categories map[string]struct{}
	logger     *zap.Logger
}

// NewVerifier creates a Verifier. The recognizer is throttled according to
// cfg.
func NewVerifier(rec recognition.Recognizer, cfg Config, logger *zap.Logger) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	categories := make(map[string]struct{}, len(cfg.Categories))
	for _, c := range cfg.Categories {
		categories[c] = struct{}{}
	}
	return &Verifier{
		recognizer: recognition.NewLimited(rec, cfg.RateLimit, cfg.Burst),
		categories: categories,
		logger:     logger.Named("verify"),
	}, nil
}

// Recognizable reports whether a shape is submitted to the recognizer: its
// type is a listed category, or it is a labeled composite shape.
func (v *Verifier) Recognizable(sh *sketch.Shape) bool {
	if _, ok := v.categories[sh.Type]; ok {
		return true
	}
	return sh.Type != sketch.LabelUnknown && sh.Len() >= MinCompositeStrokes
}

// VerifyAndRepair removes empty shapes, submits every recognizable shape
// and applies the result. Strokes reported as extra are taken out of the
// shape and placed in their own singleton shape; they are never added back.
// Recognizer failures are logged and counted. Only context cancellation is
// returned as an error.
func (v *Verifier) VerifyAndRepair(ctx context.Context, sk *sketch.Sketch) (Report, error) {
	var report Report

	for _, sh := range sk.Shapes() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if sh.Len() == 0 {
			_ = sk.RemoveShape(sh)
			report.EmptyRemoved++
			continue
		}
		if !v.Recognizable(sh) {
			report.Skipped++
			continue
		}

		report.Submitted++
		results, err := v.recognizer.Recognize(ctx, sh.Strokes())
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			v.logger.Warn("shape recognition failed",
				zap.String("shape_id", string(sh.ID)),
				zap.String("type", sh.Type),
				zap.Error(err))
			continue
		}
		if len(results) == 0 {
			report.NoMatch++
			continue
		}

		out := v.apply(sk, sh, results[0])
		report.Recoverable += len(out.Removed)
		report.StrokesPruned += len(out.Removed)
		if len(out.Unresolved) > 0 {
			report.Unresolved++
			v.logger.Info("shape left unresolved",
				zap.String("shape_id", string(sh.ID)),
				zap.String("symbol", out.Symbol),
				zap.Error(out.Err()))
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	v.logger.Debug("verification pass complete",
		zap.Int("submitted", report.Submitted),
		zap.Int("recoverable", report.Recoverable),
		zap.Int("unresolved", report.Unresolved))
	return report, nil
}

func (v *Verifier) apply(sk *sketch.Sketch, sh *sketch.Shape, top recognition.Result) Outcome {
	out := Outcome{Shape: sh, Symbol: top.Symbol, Score: top.FusedScore}

	for _, serr := range top.Errors {
		if serr.Kind != recognition.ErrorExtraStroke {
			out.Unresolved = append(out.Unresolved, serr)
			continue
		}
		st, ok := sk.Stroke(serr.Stroke)
		if !ok || !sh.Contains(st) {
			out.Unresolved = append(out.Unresolved, serr)
			continue
		}
		sh.RemoveStroke(st)
		if st.PrimaryShape() == nil {
			sk.NewSingleton(st, st.Classification)
		}
		out.Removed = append(out.Removed, st.ID)
		v.logger.Debug("extra stroke removed",
			zap.String("shape_id", string(sh.ID)),
			zap.String("stroke_id", string(st.ID)),
			zap.NamedError("reason", ErrRecoverable))
	}

	if sh.Len() == 0 {
		_ = sk.RemoveShape(sh)
	}

	sh.Type = top.Symbol
	sh.Probability = top.FusedScore
	sh.Unresolved = len(out.Unresolved) > 0
	sh.Errors = nil
	for _, serr := range out.Unresolved {
		sh.Errors = append(sh.Errors, sketch.StructuralError{Kind: string(serr.Kind), Stroke: serr.Stroke})
	}
	return out
}
