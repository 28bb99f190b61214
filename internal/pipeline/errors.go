package pipeline

import "errors"

// Stage errors.
var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrStaleRevision     = errors.New("completion is for a stale sketch revision")
	ErrStageInFlight     = errors.New("a stage request is already outstanding")
	ErrNotMerged         = errors.New("pipeline has not reached the merged stage")
)

// Setup errors.
var (
	ErrMissingCollaborator = errors.New("required collaborator is nil")
	ErrNoRecognizer        = errors.New("no template recognizer configured")
	ErrNotStarted          = errors.New("orchestrator not started")
)
