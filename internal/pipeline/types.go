package pipeline

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/sketchd/internal/assembly"
	"github.com/fyrsmithlabs/sketchd/internal/cluster"
	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Stage is the orchestrator's position in the pipeline.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageFeaturizing Stage = "featurizing"
	StageClassifying Stage = "classifying"
	StageGrouping    Stage = "grouping"
	StageMerged      Stage = "merged"
	StageVerifying   Stage = "verifying"
	StageVerified    Stage = "verified"

	// StageStalled is entered when a stage fails. Only a sketch mutation
	// moves the pipeline on.
	StageStalled Stage = "stalled"
)

// ValidTransitions defines allowed stage transitions. Every stage except
// Verifying can fall back to Featurizing when the sketch changes.
var ValidTransitions = map[Stage][]Stage{
	StageIdle:        {StageFeaturizing, StageMerged},
	StageFeaturizing: {StageFeaturizing, StageClassifying, StageStalled},
	StageClassifying: {StageFeaturizing, StageGrouping, StageStalled},
	StageGrouping:    {StageFeaturizing, StageMerged, StageStalled},
	StageMerged:      {StageFeaturizing, StageVerifying},
	StageVerifying:   {StageVerified, StageMerged},
	StageVerified:    {StageFeaturizing, StageVerifying},
	StageStalled:     {StageFeaturizing},
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s Stage) CanTransitionTo(target Stage) bool {
	allowed, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// Featurizer computes stroke features. Only completion matters here.
type Featurizer interface {
	Featurize(ctx context.Context, strokes []*sketch.Stroke) error
}

// Classifier labels each stroke.
type Classifier interface {
	Classify(ctx context.Context, strokes []*sketch.Stroke) (assembly.Classification, error)
}

// Collaborators are the external stages the orchestrator drives.
// Recognizer is optional; without it Verify fails with ErrNoRecognizer.
type Collaborators struct {
	Featurizer Featurizer
	Classifier Classifier
	Grouper    assembly.Grouper
	Recognizer recognition.Recognizer
}

func (c Collaborators) validate() error {
	switch {
	case c.Featurizer == nil:
		return fmt.Errorf("%w: featurizer", ErrMissingCollaborator)
	case c.Classifier == nil:
		return fmt.Errorf("%w: classifier", ErrMissingCollaborator)
	case c.Grouper == nil:
		return fmt.Errorf("%w: grouper", ErrMissingCollaborator)
	}
	return nil
}

// Config configures the orchestrator.
type Config struct {
	// NotificationBuffer is the capacity of each completion channel. When a
	// channel is full further notifications of that kind are coalesced.
	NotificationBuffer int `json:"notification_buffer" koanf:"notification_buffer"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{NotificationBuffer: 1}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NotificationBuffer < 1 {
		return fmt.Errorf("notification buffer must be >= 1, got %d", c.NotificationBuffer)
	}
	return nil
}

// ShapeView is a read-only snapshot of a committed shape.
type ShapeView struct {
	ID          sketch.ShapeID
	Type        string
	Probability float64
	Unresolved  bool
	Strokes     []sketch.StrokeID
	Errors      []sketch.StructuralError
}

// FinalCluster is the best candidate found around a committed shape during
// verification. It is advisory and never written back to the sketch.
type FinalCluster struct {
	Shape     sketch.ShapeID
	Candidate cluster.Candidate
}

// Snapshot is the observable state of the orchestrator.
type Snapshot struct {
	Stage    Stage
	Revision uint64
	Shapes   []ShapeView
	Err      error
}
