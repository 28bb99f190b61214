// Package assembly turns classifier and grouper output into committed
// shapes: it stamps stroke labels, creates singleton shapes and merges the
// shapes of joined stroke pairs into composite shapes.
package assembly
