package sketch

import (
	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// LabelUnknown is the label carried by strokes and shapes before
// classification has assigned a real one.
const LabelUnknown = "unknown"

// StrokeID identifies a stroke.
type StrokeID string

// NewStrokeID returns a random stroke identifier.
func NewStrokeID() StrokeID {
	return StrokeID(uuid.NewString())
}

// ShapeID identifies a shape.
type ShapeID string

// Stroke is an atomic captured pen movement.
type Stroke struct {
	ID     StrokeID
	Points orb.LineString

	// Classification is the label assigned by the classifier (or stamped by
	// the grouping stage for joined pairs).
	Classification string

	parents []*Shape
}

// NewStroke creates an unclassified stroke. An empty id gets a random one.
func NewStroke(id StrokeID, points orb.LineString) *Stroke {
	if id == "" {
		id = NewStrokeID()
	}
	return &Stroke{
		ID:             id,
		Points:         points,
		Classification: LabelUnknown,
	}
}

// ParentShapes returns the shapes this stroke currently belongs to, primary
// shape first.
func (s *Stroke) ParentShapes() []*Shape {
	out := make([]*Shape, len(s.parents))
	copy(out, s.parents)
	return out
}

// PrimaryShape returns the stroke's authoritative parent shape, or nil.
func (s *Stroke) PrimaryShape() *Shape {
	if len(s.parents) == 0 {
		return nil
	}
	return s.parents[0]
}

// Bound returns the stroke's bounding box.
func (s *Stroke) Bound() orb.Bound {
	return s.Points.Bound()
}

func (s *Stroke) addParent(sh *Shape) {
	for _, p := range s.parents {
		if p == sh {
			return
		}
	}
	s.parents = append(s.parents, sh)
}

func (s *Stroke) removeParent(sh *Shape) {
	for i, p := range s.parents {
		if p == sh {
			s.parents = append(s.parents[:i], s.parents[i+1:]...)
			return
		}
	}
}

// StructuralError is an unresolved recognizer complaint kept on a shape for
// downstream inspection.
type StructuralError struct {
	Kind   string
	Stroke StrokeID
}

// Shape is an ordered, non-empty set of strokes sharing one type label and
// one probability.
type Shape struct {
	ID          ShapeID
	Type        string
	Probability float64

	// Unresolved is set by verification when structural errors remain after
	// automatic repair.
	Unresolved bool
	Errors     []StructuralError

	strokes []*Stroke
}

func newShape(label string) *Shape {
	return &Shape{
		ID:   ShapeID(uuid.NewString()),
		Type: label,
	}
}

// Strokes returns the member strokes in order.
func (sh *Shape) Strokes() []*Stroke {
	out := make([]*Stroke, len(sh.strokes))
	copy(out, sh.strokes)
	return out
}

// Len returns the number of member strokes.
func (sh *Shape) Len() int {
	return len(sh.strokes)
}

// Contains reports whether the stroke is a member.
func (sh *Shape) Contains(st *Stroke) bool {
	for _, m := range sh.strokes {
		if m == st {
			return true
		}
	}
	return false
}

// StrokeIDs returns the member stroke ids in order.
func (sh *Shape) StrokeIDs() []StrokeID {
	ids := make([]StrokeID, len(sh.strokes))
	for i, st := range sh.strokes {
		ids[i] = st.ID
	}
	return ids
}

// Bound returns the union of the member strokes' bounding boxes.
func (sh *Shape) Bound() orb.Bound {
	if len(sh.strokes) == 0 {
		return orb.Bound{}
	}
	b := sh.strokes[0].Bound()
	for _, st := range sh.strokes[1:] {
		b = b.Union(st.Bound())
	}
	return b
}

// AddStroke appends a stroke and records the shape as one of its parents.
func (sh *Shape) AddStroke(st *Stroke) {
	if sh.Contains(st) {
		return
	}
	sh.strokes = append(sh.strokes, st)
	st.addParent(sh)
}

// RemoveStroke removes a member stroke and drops the back-reference. It
// reports whether the stroke was a member.
func (sh *Shape) RemoveStroke(st *Stroke) bool {
	for i, m := range sh.strokes {
		if m == st {
			sh.strokes = append(sh.strokes[:i], sh.strokes[i+1:]...)
			st.removeParent(sh)
			return true
		}
	}
	return false
}
