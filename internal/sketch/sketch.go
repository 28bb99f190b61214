package sketch

import (
	"fmt"

	"github.com/google/uuid"
)

// Sketch owns the stroke set and the shapes built over it.
type Sketch struct {
	ID string

	strokes  []*Stroke
	byID     map[StrokeID]*Stroke
	shapes   []*Shape
	revision uint64
}

// New creates an empty sketch.
func New() *Sketch {
	return &Sketch{
		ID:   uuid.NewString(),
		byID: make(map[StrokeID]*Stroke),
	}
}

// Revision returns the stroke-set revision. It increases on every stroke
// addition or removal.
func (s *Sketch) Revision() uint64 {
	return s.revision
}

// AddStroke adds a stroke to the sketch.
func (s *Sketch) AddStroke(st *Stroke) error {
	if _, ok := s.byID[st.ID]; ok {
		return fmt.Errorf("%w: %s", ErrStrokeExists, st.ID)
	}
	s.strokes = append(s.strokes, st)
	s.byID[st.ID] = st
	s.revision++
	return nil
}

// RemoveStroke removes a stroke and detaches it from every shape it belongs
// to. Shapes left empty are removed from the sketch.
func (s *Sketch) RemoveStroke(id StrokeID) error {
	st, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStrokeNotFound, id)
	}
	for _, sh := range st.ParentShapes() {
		sh.RemoveStroke(st)
		if sh.Len() == 0 {
			s.dropShape(sh)
		}
	}
	for i, cur := range s.strokes {
		if cur == st {
			s.strokes = append(s.strokes[:i], s.strokes[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
	s.revision++
	return nil
}

// Stroke looks up a stroke by id.
func (s *Sketch) Stroke(id StrokeID) (*Stroke, bool) {
	st, ok := s.byID[id]
	return st, ok
}

// Strokes returns the strokes in insertion order.
func (s *Sketch) Strokes() []*Stroke {
	out := make([]*Stroke, len(s.strokes))
	copy(out, s.strokes)
	return out
}

// Shapes returns the registered shapes in registration order.
func (s *Sketch) Shapes() []*Shape {
	out := make([]*Shape, len(s.shapes))
	copy(out, s.shapes)
	return out
}

// HasShape reports whether the shape is registered.
func (s *Sketch) HasShape(sh *Shape) bool {
	for _, cur := range s.shapes {
		if cur == sh {
			return true
		}
	}
	return false
}

// NewSingleton creates a shape holding only st, labeled with label, and
// registers it.
func (s *Sketch) NewSingleton(st *Stroke, label string) *Shape {
	sh := newShape(label)
	sh.AddStroke(st)
	s.shapes = append(s.shapes, sh)
	return sh
}

// AddShape registers a shape built elsewhere.
func (s *Sketch) AddShape(sh *Shape) {
	if s.HasShape(sh) {
		return
	}
	s.shapes = append(s.shapes, sh)
}

// RemoveShape unregisters a shape and detaches its remaining strokes.
func (s *Sketch) RemoveShape(sh *Shape) error {
	if !s.HasShape(sh) {
		return ErrShapeNotFound
	}
	for _, st := range sh.Strokes() {
		sh.RemoveStroke(st)
	}
	s.dropShape(sh)
	return nil
}

// MergeShapes moves every stroke of second into first, keeping first's
// order and appending second's strokes after it, then removes second. Each
// moved stroke's reference to second is replaced in place by first so a
// stroke whose primary shape was second now reports first as primary.
func (s *Sketch) MergeShapes(first, second *Shape) (*Shape, error) {
	if first == second {
		return nil, ErrSameShape
	}
	if !s.HasShape(first) || !s.HasShape(second) {
		return nil, ErrShapeNotFound
	}
	for _, st := range second.strokes {
		if first.Contains(st) {
			st.removeParent(second)
			continue
		}
		first.strokes = append(first.strokes, st)
		replaced := false
		for i, p := range st.parents {
			if p == second {
				st.parents[i] = first
				replaced = true
				break
			}
		}
		if !replaced {
			st.addParent(first)
		}
	}
	second.strokes = nil
	s.dropShape(second)
	return first, nil
}

// ClearGroupings splits every multi-stroke shape back into singletons
// labeled with each stroke's classification, restoring the state right after
// classification was applied.
func (s *Sketch) ClearGroupings() {
	for _, sh := range s.Shapes() {
		if sh.Len() <= 1 {
			continue
		}
		members := sh.Strokes()
		for _, st := range members {
			sh.RemoveStroke(st)
		}
		s.dropShape(sh)
		for _, st := range members {
			if st.PrimaryShape() == nil {
				s.NewSingleton(st, st.Classification)
			}
		}
	}
}

func (s *Sketch) dropShape(sh *Shape) {
	for i, cur := range s.shapes {
		if cur == sh {
			s.shapes = append(s.shapes[:i], s.shapes[i+1:]...)
			return
		}
	}
}
