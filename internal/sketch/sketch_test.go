package sketch

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(x0, y0, x1, y1 float64) orb.LineString {
	return orb.LineString{{x0, y0}, {x1, y1}}
}

func newTestSketch(t *testing.T, ids ...StrokeID) (*Sketch, []*Stroke) {
	t.Helper()
	s := New()
	strokes := make([]*Stroke, len(ids))
	for i, id := range ids {
		strokes[i] = NewStroke(id, line(float64(i), 0, float64(i), 10))
		require.NoError(t, s.AddStroke(strokes[i]))
	}
	return s, strokes
}

func TestSketch_AddStrokeBumpsRevision(t *testing.T) {
	s := New()
	assert.Equal(t, uint64(0), s.Revision())

	require.NoError(t, s.AddStroke(NewStroke("a", line(0, 0, 1, 1))))
	assert.Equal(t, uint64(1), s.Revision())

	err := s.AddStroke(NewStroke("a", line(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrStrokeExists)
	assert.Equal(t, uint64(1), s.Revision())
}

func TestSketch_NewStrokeDefaults(t *testing.T) {
	st := NewStroke("", line(0, 0, 1, 1))
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, LabelUnknown, st.Classification)
	assert.Nil(t, st.PrimaryShape())
}

func TestSketch_RemoveStrokeDropsEmptyShape(t *testing.T) {
	s, strokes := newTestSketch(t, "a", "b")
	shA := s.NewSingleton(strokes[0], "Wire")
	s.NewSingleton(strokes[1], "Wire")

	require.NoError(t, s.RemoveStroke("a"))

	assert.False(t, s.HasShape(shA))
	assert.Len(t, s.Shapes(), 1)
	assert.Len(t, s.Strokes(), 1)
	assert.Equal(t, uint64(3), s.Revision())

	assert.ErrorIs(t, s.RemoveStroke("a"), ErrStrokeNotFound)
}

func TestSketch_MergeShapesRewritesPrimaryParent(t *testing.T) {
	s, strokes := newTestSketch(t, "a", "b", "c")
	shA := s.NewSingleton(strokes[0], "Wire")
	shB := s.NewSingleton(strokes[1], "Wire")
	shC := s.NewSingleton(strokes[2], "Wire")

	merged, err := s.MergeShapes(shA, shB)
	require.NoError(t, err)
	assert.Same(t, shA, merged)
	assert.Same(t, shA, strokes[1].PrimaryShape())
	assert.False(t, s.HasShape(shB))

	_, err = s.MergeShapes(strokes[2].PrimaryShape(), strokes[1].PrimaryShape())
	require.NoError(t, err)

	assert.Len(t, s.Shapes(), 1)
	assert.Same(t, shC, s.Shapes()[0])
	assert.Equal(t, []StrokeID{"c", "a", "b"}, shC.StrokeIDs())
	for _, st := range strokes {
		assert.Same(t, shC, st.PrimaryShape())
		assert.Len(t, st.ParentShapes(), 1)
	}
}

func TestSketch_MergeShapesErrors(t *testing.T) {
	s, strokes := newTestSketch(t, "a")
	sh := s.NewSingleton(strokes[0], "Wire")

	_, err := s.MergeShapes(sh, sh)
	assert.ErrorIs(t, err, ErrSameShape)

	orphan := newShape("Wire")
	_, err = s.MergeShapes(sh, orphan)
	assert.ErrorIs(t, err, ErrShapeNotFound)
}

func TestSketch_MergeWithEmptyShapeKeepsMembership(t *testing.T) {
	s, strokes := newTestSketch(t, "a", "b")
	shA := s.NewSingleton(strokes[0], "Gate")
	shA.AddStroke(strokes[1])
	empty := newShape("Gate")
	s.AddShape(empty)

	merged, err := s.MergeShapes(shA, empty)
	require.NoError(t, err)
	assert.Equal(t, []StrokeID{"a", "b"}, merged.StrokeIDs())
}

func TestSketch_ClearGroupings(t *testing.T) {
	s, strokes := newTestSketch(t, "a", "b", "c")
	strokes[0].Classification = "AND"
	strokes[1].Classification = "Wire"
	strokes[2].Classification = "Wire"
	shA := s.NewSingleton(strokes[0], "AND")
	shB := s.NewSingleton(strokes[1], "Wire")
	shC := s.NewSingleton(strokes[2], "Wire")
	_, err := s.MergeShapes(shB, shC)
	require.NoError(t, err)

	s.ClearGroupings()

	shapes := s.Shapes()
	require.Len(t, shapes, 3)
	assert.Same(t, shA, shapes[0])
	for _, st := range strokes {
		require.NotNil(t, st.PrimaryShape())
		assert.Equal(t, 1, st.PrimaryShape().Len())
		assert.Equal(t, st.Classification, st.PrimaryShape().Type)
	}
}

func TestShape_Bound(t *testing.T) {
	s := New()
	a := NewStroke("a", line(0, 0, 5, 5))
	b := NewStroke("b", line(10, -2, 12, 3))
	require.NoError(t, s.AddStroke(a))
	require.NoError(t, s.AddStroke(b))
	sh := s.NewSingleton(a, "Gate")
	sh.AddStroke(b)

	bound := sh.Bound()
	assert.Equal(t, orb.Point{0, -2}, bound.Min)
	assert.Equal(t, orb.Point{12, 5}, bound.Max)
}

func TestSketch_RemoveShapeDetachesStrokes(t *testing.T) {
	s, strokes := newTestSketch(t, "a")
	sh := s.NewSingleton(strokes[0], "Gate")

	require.NoError(t, s.RemoveShape(sh))
	assert.Nil(t, strokes[0].PrimaryShape())
	assert.ErrorIs(t, s.RemoveShape(sh), ErrShapeNotFound)
}
