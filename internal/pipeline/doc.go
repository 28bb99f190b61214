// Package pipeline drives a sketch through featurization, classification,
// grouping and shape merge, and runs verification on request.
//
// The Orchestrator is an explicit state machine:
//
//	Idle -> Featurizing -> Classifying -> Grouping -> Merged -> Verifying -> Verified
//
// Collaborator calls run on their own goroutines and report back through a
// single completion loop, so at most one stage transition is handled at a
// time and at most one collaborator request is outstanding. Each request is
// stamped with the sketch revision it was issued for; a completion whose
// revision no longer matches the sketch is discarded and featurization is
// issued again for the current revision.
//
// Adding or removing a stroke drops the cached classification and grouping
// and re-enters Featurizing. Committed shapes stay as they are until the
// pipeline completes again.
//
// Consumers subscribe to the completion channels (FeaturizationDone,
// ClassificationDone, InitialClustersDone, FinalClustersDone) and read fresh
// state through the accessors. A failing stage is logged, recorded on its
// span and leaves the pipeline Stalled without a notification.
package pipeline
