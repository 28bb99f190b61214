package fixture

import "errors"

var (
	// ErrInvalidDocument is returned for malformed or inconsistent documents.
	ErrInvalidDocument = errors.New("invalid sketch document")

	// ErrUnsupportedFormat is returned for files that are neither JSON nor
	// TOML.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDocumentTooLarge is returned for documents above the size limit.
	ErrDocumentTooLarge = errors.New("sketch document too large")

	// ErrEmptyStroke is returned by the featurizer for a stroke with no
	// points.
	ErrEmptyStroke = errors.New("stroke has no points")
)
