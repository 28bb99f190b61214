package verify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// mockRecognizer answers from a function and counts calls.
type mockRecognizer struct {
	recognizeFunc func(strokes []*sketch.Stroke) ([]recognition.Result, error)
	calls         int
}

func (m *mockRecognizer) Recognize(_ context.Context, strokes []*sketch.Stroke) ([]recognition.Result, error) {
	m.calls++
	return m.recognizeFunc(strokes)
}

// compositeSketch builds one shape of the given type holding n strokes
// s0..s(n-1).
func compositeSketch(t *testing.T, label string, n int) (*sketch.Sketch, *sketch.Shape) {
	t.Helper()
	sk := sketch.New()
	var shape *sketch.Shape
	for i := 0; i < n; i++ {
		x := float64(i)
		st := sketch.NewStroke(sketch.StrokeID(fmt.Sprintf("s%d", i)), orb.LineString{{x, 0}, {x, 1}})
		st.Classification = label
		require.NoError(t, sk.AddStroke(st))
		single := sk.NewSingleton(st, label)
		if shape == nil {
			shape = single
			continue
		}
		_, err := sk.MergeShapes(shape, single)
		require.NoError(t, err)
	}
	return sk, shape
}

func newVerifier(t *testing.T, rec recognition.Recognizer, cfg Config) *Verifier {
	t.Helper()
	v, err := NewVerifier(rec, cfg, nil)
	require.NoError(t, err)
	return v
}

func TestVerifyAndRepair_RemovesExtraStrokes(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 5)
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{
			Symbol:     "AND",
			FusedScore: 0.82,
			Errors: []recognition.StructuralError{
				{Kind: recognition.ErrorExtraStroke, Stroke: "s1"},
				{Kind: recognition.ErrorExtraStroke, Stroke: "s4"},
			},
		}}, nil
	}}

	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)

	assert.Equal(t, []sketch.StrokeID{"s0", "s2", "s3"}, shape.StrokeIDs())
	assert.Equal(t, "AND", shape.Type)
	assert.Equal(t, 0.82, shape.Probability)
	assert.False(t, shape.Unresolved)
	assert.Empty(t, shape.Errors)
	assert.Equal(t, 2, report.Recoverable)
	assert.Equal(t, 0, report.Unresolved)
	require.Len(t, report.Outcomes, 1)
	assert.NoError(t, report.Outcomes[0].Err())

	// removed strokes land in their own shapes
	s1, _ := sk.Stroke("s1")
	require.NotNil(t, s1.PrimaryShape())
	assert.NotSame(t, shape, s1.PrimaryShape())
	assert.Len(t, sk.Shapes(), 3)
}

func TestVerifyAndRepair_RemovesEmptyShapes(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 2)

	// One shape registered empty, one emptied after registration.
	ghost := &sketch.Shape{ID: "ghost", Type: "Gate"}
	sk.AddShape(ghost)
	extra := sketch.NewStroke("loose", orb.LineString{{9, 0}, {9, 1}})
	require.NoError(t, sk.AddStroke(extra))
	emptied := sk.NewSingleton(extra, "Gate")
	require.True(t, emptied.RemoveStroke(extra))
	require.Len(t, sk.Shapes(), 3)

	rec := &mockRecognizer{recognizeFunc: func(strokes []*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{Symbol: "AND", FusedScore: 0.9}}, nil
	}}
	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)

	assert.Equal(t, 2, report.EmptyRemoved)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, rec.calls)
	assert.False(t, sk.HasShape(ghost))
	assert.False(t, sk.HasShape(emptied))
	require.Len(t, sk.Shapes(), 1)
	assert.Same(t, shape, sk.Shapes()[0])
}

func TestVerifyAndRepair_FlagsUnresolved(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 3)
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{
			Symbol:     "OR",
			FusedScore: 0.4,
			Errors: []recognition.StructuralError{
				{Kind: recognition.ErrorExtraStroke, Stroke: "s2"},
				{Kind: recognition.ErrorMissingStroke},
			},
		}}, nil
	}}

	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)

	assert.Equal(t, 2, shape.Len())
	assert.True(t, shape.Unresolved)
	assert.Equal(t, []sketch.StructuralError{{Kind: "missing"}}, shape.Errors)
	assert.Equal(t, "OR", shape.Type, "best guess is still committed")
	assert.Equal(t, 1, report.Unresolved)
	assert.ErrorIs(t, report.Outcomes[0].Err(), ErrUnresolved)
}

func TestVerifyAndRepair_IdempotentOnCleanShapes(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 3)
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{Symbol: "AND", FusedScore: 0.9}}, nil
	}}
	v := newVerifier(t, rec, DefaultConfig())

	_, err := v.VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	first := shape.StrokeIDs()

	_, err = v.VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.Equal(t, first, shape.StrokeIDs())
	assert.Equal(t, "AND", shape.Type)
	assert.Equal(t, 0.9, shape.Probability)
	assert.Len(t, sk.Shapes(), 1)
}

func TestVerifyAndRepair_NeverAddsStrokes(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 2)
	other := sketch.NewStroke("outside", orb.LineString{{9, 9}, {9, 10}})
	require.NoError(t, sk.AddStroke(other))
	sk.NewSingleton(other, "Gate")

	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{
			Symbol: "AND",
			Errors: []recognition.StructuralError{{Kind: recognition.ErrorExtraStroke, Stroke: "outside"}},
		}}, nil
	}}

	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.Equal(t, 2, shape.Len())
	assert.True(t, shape.Unresolved)
	assert.Zero(t, report.Recoverable)
}

func TestVerifyAndRepair_CategoryFilter(t *testing.T) {
	sk := sketch.New()
	single := sketch.NewStroke("single", orb.LineString{{0, 0}, {1, 1}})
	unknown := sketch.NewStroke("unknown", orb.LineString{{5, 5}, {6, 6}})
	require.NoError(t, sk.AddStroke(single))
	require.NoError(t, sk.AddStroke(unknown))
	sk.NewSingleton(single, "Resistor")
	sk.NewSingleton(unknown, sketch.LabelUnknown)

	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{Symbol: "Resistor", FusedScore: 1}}, nil
	}}

	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.Zero(t, rec.calls)
	assert.Equal(t, 2, report.Skipped)

	report, err = newVerifier(t, rec, Config{Categories: []string{"Resistor"}}).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 1, report.Submitted)
}

func TestVerifyAndRepair_RecognizerFailureIsCounted(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 2)
	shape.Probability = 0.3
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return nil, errors.New("template store offline")
	}}

	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "Gate", shape.Type)
	assert.Equal(t, 0.3, shape.Probability)
}

func TestVerifyAndRepair_NoMatchLeavesShape(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 2)
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return nil, nil
	}}

	report, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NoMatch)
	assert.Equal(t, "Gate", shape.Type)
}

func TestVerifyAndRepair_AllStrokesExtraDropsShape(t *testing.T) {
	sk, shape := compositeSketch(t, "Gate", 2)
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return []recognition.Result{{
			Symbol: "AND",
			Errors: []recognition.StructuralError{
				{Kind: recognition.ErrorExtraStroke, Stroke: "s0"},
				{Kind: recognition.ErrorExtraStroke, Stroke: "s1"},
			},
		}}, nil
	}}

	_, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(context.Background(), sk)
	require.NoError(t, err)
	assert.False(t, sk.HasShape(shape))
	assert.Len(t, sk.Shapes(), 2)
}

func TestVerifyAndRepair_Cancelled(t *testing.T) {
	sk, _ := compositeSketch(t, "Gate", 2)
	rec := &mockRecognizer{recognizeFunc: func([]*sketch.Stroke) ([]recognition.Result, error) {
		return nil, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newVerifier(t, rec, DefaultConfig()).VerifyAndRepair(ctx, sk)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rec.calls)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{RateLimit: -1}.Validate())
	assert.Error(t, Config{RateLimit: 5, Burst: 0}.Validate())
	assert.NoError(t, Config{RateLimit: 5, Burst: 2}.Validate())
}
