package cluster

import (
	"fmt"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Verb is the kind of edit a modification applies.
type Verb string

const (
	VerbAdd    Verb = "add"
	VerbRemove Verb = "remove"
)

// Modification is a single add or remove of one stroke.
type Modification struct {
	Verb   Verb
	Stroke *sketch.Stroke
}

// Add returns an Add modification for st.
func Add(st *sketch.Stroke) Modification {
	return Modification{Verb: VerbAdd, Stroke: st}
}

// Remove returns a Remove modification for st.
func Remove(st *sketch.Stroke) Modification {
	return Modification{Verb: VerbRemove, Stroke: st}
}

func (m Modification) String() string {
	return fmt.Sprintf("%s(%s)", m.Verb, m.Stroke.ID)
}

// apply returns a copy of strokes with the modification applied. Adding a
// member or removing a non-member leaves the copy unchanged.
func (m Modification) apply(strokes []*sketch.Stroke) []*sketch.Stroke {
	out := make([]*sketch.Stroke, 0, len(strokes)+1)
	switch m.Verb {
	case VerbRemove:
		for _, st := range strokes {
			if st != m.Stroke {
				out = append(out, st)
			}
		}
	case VerbAdd:
		out = append(out, strokes...)
		if !containsStroke(strokes, m.Stroke) {
			out = append(out, m.Stroke)
		}
	default:
		out = append(out, strokes...)
	}
	return out
}

func containsStroke(strokes []*sketch.Stroke, st *sketch.Stroke) bool {
	for _, cur := range strokes {
		if cur == st {
			return true
		}
	}
	return false
}
