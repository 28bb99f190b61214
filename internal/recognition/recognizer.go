// Package recognition defines the contract of the template recognizer that
// matches an assembled group of strokes against reference templates.
package recognition

import (
	"context"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// ErrorKind tags a structural error reported by the recognizer.
type ErrorKind string

const (
	// ErrorExtraStroke means a stroke does not belong to the matched
	// template. It is repaired automatically by removing the stroke.
	ErrorExtraStroke ErrorKind = "extra"

	// ErrorMissingStroke means the template expects a stroke the input
	// does not have.
	ErrorMissingStroke ErrorKind = "missing"

	// ErrorMisplaced means a stroke matched a template part but sits in
	// the wrong place.
	ErrorMisplaced ErrorKind = "misplaced"
)

// StructuralError is one complaint about a match.
type StructuralError struct {
	Kind ErrorKind `json:"kind" toml:"kind"`

	// Stroke is the offending stroke, when the error has one.
	Stroke sketch.StrokeID `json:"stroke,omitempty" toml:"stroke"`
}

// Result is one ranked match.
type Result struct {
	Symbol     string            `json:"symbol"`
	FusedScore float64           `json:"fused_score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Errors     []StructuralError `json:"errors,omitempty"`
}

// Recognizer matches strokes against templates. Results are ranked best
// first; an empty slice means nothing matched.
type Recognizer interface {
	Recognize(ctx context.Context, strokes []*sketch.Stroke) ([]Result, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, strokes []*sketch.Stroke) ([]Result, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, strokes []*sketch.Stroke) ([]Result, error) {
	return f(ctx, strokes)
}
