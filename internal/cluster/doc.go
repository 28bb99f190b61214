// Package cluster implements hypothesis search over alternative stroke
// groupings.
//
// A Cluster is an immutable candidate grouping of strokes with a class label.
// At construction it records the strokes nearest to it that are not members
// (from the distance index) and the one-step modifications it can produce:
// a Remove for every member and an Add for each nearby outside stroke.
//
// Clusters live in an Arena and refer to their parent by arena index, so a
// chain of derived clusters never holds live references to each other.
//
// Expand explores every cluster reachable from a root within a depth bound,
// breadth first over an explicit work queue. Candidates are deduplicated by
// content hash (the stroke set hashed and XOR-ed with the class name's hash):
// two clusters with the same members and label are the same hypothesis no
// matter how they were derived, and only the first one seen is kept.
//
// Searcher runs expansions for several independent seeds in parallel and
// scores every candidate through the template recognizer, caching scores by
// content hash so an identical candidate is never scored twice.
package cluster
