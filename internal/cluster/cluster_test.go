package cluster

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/sketchd/internal/distance"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

func stroke(id string, x float64) *sketch.Stroke {
	return sketch.NewStroke(sketch.StrokeID(id), orb.LineString{{x, 0}, {x, 10}})
}

// gateFixture builds S1..S3 with S2 at distance 10 and S3 at distance 25
// from S1.
func gateFixture() (s1, s2, s3 *sketch.Stroke, idx *distance.Index) {
	s1, s2, s3 = stroke("S1", 0), stroke("S2", 10), stroke("S3", 25)
	idx = distance.NewIndex([]distance.Pair{
		{A: s1, B: s2, Min: 10},
		{A: s1, B: s3, Min: 25},
		{A: s2, B: s3, Min: 40},
	})
	return s1, s2, s3, idx
}

func countOptions(n int) Options {
	return Options{NeighborhoodCount: n, NeighborhoodRadius: DefaultNeighborhoodRadius, Mode: ModeCount}
}

func TestNearestStrokes_OrderingAndDedup(t *testing.T) {
	a, b, c, d := stroke("a", 0), stroke("b", 1), stroke("c", 2), stroke("d", 3)
	idx := distance.NewIndex([]distance.Pair{
		{A: a, B: b, Min: 1},
		{A: a, B: c, Min: 5},
		{A: a, B: d, Min: 5},
		{A: b, B: c, Min: 3},
		{A: b, B: d, Min: 7},
	})

	got := NearestStrokes([]*sketch.Stroke{a, b}, idx, nil)

	require.Len(t, got, 2)
	assert.Same(t, c, got[0].Stroke)
	assert.Equal(t, 3.0, got[0].Distance)
	assert.Same(t, d, got[1].Stroke)
	assert.InDelta(t, 5.0, got[1].Distance, 1e-9)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Distance, got[i-1].Distance)
	}
	for _, nb := range got {
		assert.NotSame(t, a, nb.Stroke)
		assert.NotSame(t, b, nb.Stroke)
	}
}

func TestNearestStrokes_TieBreakKeepsBoth(t *testing.T) {
	a, b, c := stroke("a", 0), stroke("b", 1), stroke("c", 2)
	idx := distance.NewIndex([]distance.Pair{
		{A: a, B: b, Min: 5},
		{A: a, B: c, Min: 5},
	})

	got := NearestStrokes([]*sketch.Stroke{a}, idx, nil)

	require.Len(t, got, 2)
	assert.Equal(t, 5.0, got[0].Distance)
	assert.Equal(t, 5.0+TieEpsilon, got[1].Distance)
	assert.ElementsMatch(t, []*sketch.Stroke{b, c}, []*sketch.Stroke{got[0].Stroke, got[1].Stroke})
}

func TestNearestStrokes_TieBreakOnLargeKeys(t *testing.T) {
	a, b, c := stroke("a", 0), stroke("b", 1), stroke("c", 2)
	idx := distance.NewIndex([]distance.Pair{
		{A: a, B: b, Min: 1e9},
		{A: a, B: c, Min: 1e9},
	})

	got := NearestStrokes([]*sketch.Stroke{a}, idx, nil)

	require.Len(t, got, 2)
	assert.Greater(t, got[1].Distance, got[0].Distance)
}

func TestNearestStrokes_MissingEntryIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a, b := stroke("a", 0), stroke("b", 1)
	ghost := stroke("ghost", 9)
	idx := distance.NewIndex([]distance.Pair{{A: a, B: b, Min: 2}})

	got := NearestStrokes([]*sketch.Stroke{ghost, a}, idx, zap.New(core))

	require.Len(t, got, 1)
	assert.Same(t, b, got[0].Stroke)
	assert.Equal(t, 1, logs.FilterMessage("neighbor discovery failed for stroke").Len())
}

func TestNearestStrokes_NilIndex(t *testing.T) {
	assert.Empty(t, NearestStrokes([]*sketch.Stroke{stroke("a", 0)}, nil, nil))
}

func TestGenerateModifications_Scenario(t *testing.T) {
	s1, s2, s3, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)

	seed, err := arena.NewSeed("Gate", s1)
	require.NoError(t, err)

	mods := seed.GenerateModifications(2)
	assert.Equal(t, []Modification{Remove(s1), Add(s2), Add(s3)}, mods)
	assert.Equal(t, mods, seed.Modifications())

	assert.Equal(t, []Modification{Remove(s1), Add(s2)}, seed.GenerateModifications(1))
}

func TestGenerateModificationsWithinRadius(t *testing.T) {
	s1, s2, s3, idx := gateFixture()
	arena := NewArena(idx, Options{Mode: ModeRadius, NeighborhoodRadius: 20}, nil)

	seed, err := arena.NewSeed("Gate", s1)
	require.NoError(t, err)

	assert.Equal(t, []Modification{Remove(s1), Add(s2)}, seed.Modifications())
	assert.Equal(t, []Modification{Remove(s1), Add(s2), Add(s3)}, seed.GenerateModificationsWithinRadius(25))
}

func TestExpand_DepthOneScenario(t *testing.T) {
	s1, s2, s3, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)
	seed, err := arena.NewSeed("Gate", s1)
	require.NoError(t, err)

	exp := arena.Expand(seed, 1, 0)

	require.Equal(t, 2, exp.Len())
	assert.True(t, exp.Contains(ContentHash([]*sketch.Stroke{s1, s2}, "Gate")))
	assert.True(t, exp.Contains(ContentHash([]*sketch.Stroke{s1, s3}, "Gate")))
	assert.False(t, exp.Contains(seed.Hash()))

	for _, c := range exp.Clusters() {
		assert.False(t, c.IsParent())
		assert.Equal(t, seed.ID(), c.Parent())
		assert.Equal(t, "Gate", c.ClassName())
	}
}

func TestExpand_DepthTwoDedup(t *testing.T) {
	s1, s2, s3, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)
	seed, err := arena.NewSeed("Gate", s1)
	require.NoError(t, err)

	exp := arena.Expand(seed, 2, 0)

	want := [][]*sketch.Stroke{
		{s1, s2}, {s1, s3}, {s2}, {s1}, {s1, s2, s3}, {s3},
	}
	require.Equal(t, len(want), exp.Len())
	for _, set := range want {
		assert.True(t, exp.Contains(ContentHash(set, "Gate")))
	}
	assert.Equal(t, 2, exp.Duplicates)

	hashes := exp.Hashes()
	unique := make(map[uint64]struct{})
	for _, h := range hashes {
		unique[h] = struct{}{}
	}
	assert.Len(t, unique, len(hashes))
}

func TestExpand_Deterministic(t *testing.T) {
	strokes := []*sketch.Stroke{stroke("a", 0), stroke("b", 3), stroke("c", 7), stroke("d", 12), stroke("e", 20)}
	idx := distance.Build(strokes)

	run := func() []uint64 {
		arena := NewArena(idx, countOptions(3), nil)
		seed, err := arena.NewSeed("Wire", strokes[0], strokes[1])
		require.NoError(t, err)
		return arena.Expand(seed, 3, 0).Hashes()
	}

	first := run()
	second := run()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestExpand_BaseCase(t *testing.T) {
	s1, _, _, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)
	seed, err := arena.NewSeed("Gate", s1)
	require.NoError(t, err)

	assert.Equal(t, 0, arena.Expand(seed, 2, 2).Len())
	assert.Equal(t, 0, arena.Expand(seed, 1, 5).Len())
	assert.Equal(t, 0, arena.Expand(nil, 3, 0).Len())
}

func TestExpand_EmptyChildExcluded(t *testing.T) {
	lonely := stroke("lonely", 0)
	arena := NewArena(distance.NewIndex(nil), countOptions(4), nil)
	seed, err := arena.NewSeed("Gate", lonely)
	require.NoError(t, err)

	require.Equal(t, []Modification{Remove(lonely)}, seed.Modifications())
	assert.Equal(t, 0, arena.Expand(seed, 3, 0).Len())
}

func TestArena_Seeds(t *testing.T) {
	s1, s2, _, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)

	_, err := arena.NewSeed("Gate")
	assert.ErrorIs(t, err, ErrEmptyCluster)

	pair, err := arena.NewSeed("Gate", s1, s2, s1)
	require.NoError(t, err)
	assert.Equal(t, []sketch.StrokeID{"S1", "S2"}, pair.StrokeIDs())
	assert.True(t, pair.IsParent())
	assert.Equal(t, NoParent, pair.Parent())
	assert.Same(t, pair, arena.Get(pair.ID()))
	assert.Nil(t, arena.Get(99))
}

func TestArena_Child(t *testing.T) {
	s1, s2, _, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)
	seed, err := arena.NewSeed("Gate", s1)
	require.NoError(t, err)

	child, ok := arena.Child(seed, Add(s2))
	require.True(t, ok)
	assert.Equal(t, []sketch.StrokeID{"S1", "S2"}, child.StrokeIDs())
	assert.Equal(t, seed.ID(), child.Parent())
	assert.Equal(t, []sketch.StrokeID{"S1"}, seed.StrokeIDs())

	_, ok = arena.Child(seed, Remove(s1))
	assert.False(t, ok)
}

func TestArena_Merge(t *testing.T) {
	s1, s2, s3, idx := gateFixture()
	arena := NewArena(idx, countOptions(2), nil)
	c1, err := arena.NewSeed("Gate", s1, s2)
	require.NoError(t, err)
	c2, err := arena.NewSeed("Wire", s3, s2)
	require.NoError(t, err)

	merged := arena.Merge(c1, c2)

	assert.Equal(t, []sketch.StrokeID{"S1", "S2", "S3"}, merged.StrokeIDs())
	assert.Equal(t, "Gate", merged.ClassName())
	assert.True(t, merged.IsParent())
	assert.Equal(t, NoParent, merged.Parent())
	assert.Empty(t, merged.Nearest())
	assert.Equal(t, orb.Point{0, 0}, merged.Bounds().Min)
	assert.Equal(t, orb.Point{25, 10}, merged.Bounds().Max)
}

func TestContentHash(t *testing.T) {
	a, b := stroke("a", 0), stroke("b", 1)

	assert.Equal(t, ContentHash([]*sketch.Stroke{a, b}, "Gate"), ContentHash([]*sketch.Stroke{b, a}, "Gate"))
	assert.NotEqual(t, ContentHash([]*sketch.Stroke{a, b}, "Gate"), ContentHash([]*sketch.Stroke{a, b}, "Wire"))
	assert.NotEqual(t, ContentHash([]*sketch.Stroke{a}, "Gate"), ContentHash([]*sketch.Stroke{a, b}, "Gate"))
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: DefaultOptions()},
		{name: "negative count", opts: Options{Mode: ModeCount, NeighborhoodCount: -1}, wantErr: true},
		{name: "negative radius", opts: Options{Mode: ModeRadius, NeighborhoodRadius: -5}, wantErr: true},
		{name: "unknown mode", opts: Options{Mode: "nearest"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			assert.NoError(t, err)
		})
	}
}
