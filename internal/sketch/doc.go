// Package sketch holds the mutable sketch model consumed by the recognition
// pipeline: strokes (already segmented substrokes), shapes (labeled groups of
// strokes) and the sketch that owns both.
//
// # Ownership
//
// Strokes are owned by the caller that captured them. A stroke carries a
// mutable classification label and the list of shapes it currently belongs
// to; index 0 of that list is the stroke's primary shape and is authoritative
// for merge decisions.
//
// Shapes are owned by the Sketch. They are created as singletons when a stroke
// has no parent shape yet, grow when another shape is merged into them, and are
// removed when a merge subsumes them or when they become empty.
//
// # Revisions
//
// Every stroke addition or removal bumps the sketch revision. The pipeline
// stamps each stage request with the revision it was issued for and discards
// completions whose revision is behind.
//
// Sketch is not safe for concurrent use; the pipeline serializes access.
package sketch
