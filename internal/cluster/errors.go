package cluster

import "errors"

var (
	// ErrEmptyCluster is returned when a cluster would have no strokes.
	ErrEmptyCluster = errors.New("cluster has no strokes")

	// ErrInvalidOptions is returned for unusable search options.
	ErrInvalidOptions = errors.New("invalid search options")
)
