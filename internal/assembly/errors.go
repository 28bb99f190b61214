package assembly

import "errors"

var (
	// ErrMissingResult is returned when a required upstream result
	// (classification or grouping) is not available.
	ErrMissingResult = errors.New("upstream result missing")

	// ErrStructuralMismatch marks a joined pair whose shape has no strokes
	// at merge time. The pair is skipped.
	ErrStructuralMismatch = errors.New("joined pair references an empty shape")

	// ErrNoGrouper is returned when a grouping must be derived but no
	// grouper is configured.
	ErrNoGrouper = errors.New("no grouper configured")
)
