package cluster

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/sketchd/internal/distance"
	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// SearchConfig configures a Searcher.
type SearchConfig struct {
	Options `koanf:",squash"`

	MaxDepth int `json:"max_depth" koanf:"max_depth"`
	Workers  int `json:"workers" koanf:"workers"`
}

// DefaultSearchConfig returns the default search configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Options:  DefaultOptions(),
		MaxDepth: 2,
		Workers:  4,
	}
}

// Validate checks the configuration.
func (c SearchConfig) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must be >= 0, got %d", ErrInvalidOptions, c.MaxDepth)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidOptions, c.Workers)
	}
	return nil
}

// Seed is the starting hypothesis of one search.
type Seed struct {
	ClassName string
	Strokes   []*sketch.Stroke
}

// Candidate is a scored cluster.
type Candidate struct {
	Cluster *Cluster
	Score   *Score
}

// SearchResult holds the ranked candidates found around one seed. The seed
// itself competes as a candidate.
type SearchResult struct {
	Seed       *Cluster
	Candidates []Candidate
}

// Best returns the highest ranked candidate.
func (r SearchResult) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Searcher expands seeds into candidates and scores them. Scores are cached
// by content hash for the life of the Searcher (or until Reset), and
// concurrent requests for the same hash share a single recognizer call.
type Searcher struct {
	index      *distance.Index
	recognizer recognition.Recognizer
	config     SearchConfig
	logger     *zap.Logger

	flight singleflight.Group

	mu     sync.RWMutex
	scores map[uint64]*Score
}

// NewSearcher creates a Searcher.
func NewSearcher(index *distance.Index, recognizer recognition.Recognizer, config SearchConfig, logger *zap.Logger) (*Searcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		index:      index,
		recognizer: recognizer,
		config:     config,
		logger:     logger.Named("search"),
		scores:     make(map[uint64]*Score),
	}, nil
}

// Reset drops every cached score.
func (s *Searcher) Reset() {
	s.mu.Lock()
	s.scores = make(map[uint64]*Score)
	s.mu.Unlock()
}

// CachedScores returns the number of cached scores.
func (s *Searcher) CachedScores() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}

// Search expands and scores every seed. Seeds run in parallel, each in its
// own arena. Results are returned in seed order. Empty seeds yield an empty
// result rather than an error.
func (s *Searcher) Search(ctx context.Context, seeds []Seed) ([]SearchResult, error) {
	results := make([]SearchResult, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i := range seeds {
		i := i
		g.Go(func() error {
			res, err := s.searchOne(gctx, seeds[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Searcher) searchOne(ctx context.Context, seed Seed) (SearchResult, error) {
	start := time.Now()
	defer func() { ExpansionDuration.Observe(time.Since(start).Seconds()) }()

	arena := NewArena(s.index, s.config.Options, s.logger)
	root, err := arena.NewSeed(seed.ClassName, seed.Strokes...)
	if err != nil {
		s.logger.Debug("skipping empty seed", zap.String("class", seed.ClassName))
		return SearchResult{}, nil
	}

	exp := arena.Expand(root, s.config.MaxDepth, 0)
	CandidatesGenerated.Add(float64(exp.Len()))
	DuplicatesSkipped.Add(float64(exp.Duplicates))

	clusters := append([]*Cluster{root}, exp.Clusters()...)
	candidates := make([]Candidate, 0, len(clusters))
	seen := make(map[uint64]struct{}, len(clusters))
	for _, c := range clusters {
		if _, dup := seen[c.hash]; dup {
			continue
		}
		seen[c.hash] = struct{}{}

		score, err := s.score(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return SearchResult{}, ctx.Err()
			}
			s.logger.Warn("candidate scoring failed",
				zap.Uint64("hash", c.hash),
				zap.Int("strokes", c.Len()),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, Candidate{Cluster: c, Score: score})
	}

	rankCandidates(candidates)
	return SearchResult{Seed: root, Candidates: candidates}, nil
}

// Score returns the score of c, calling the recognizer only when no score is
// cached for its content hash.
func (s *Searcher) Score(ctx context.Context, c *Cluster) (*Score, error) {
	return s.score(ctx, c)
}

func (s *Searcher) score(ctx context.Context, c *Cluster) (*Score, error) {
	s.mu.RLock()
	cached, ok := s.scores[c.hash]
	s.mu.RUnlock()
	if ok {
		ScoreCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	ScoreCacheLookups.WithLabelValues("miss").Inc()

	key := strconv.FormatUint(c.hash, 16)
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		s.mu.RLock()
		cached, ok := s.scores[c.hash]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
		results, err := s.recognizer.Recognize(ctx, c.Strokes())
		if err != nil {
			return nil, fmt.Errorf("recognize candidate: %w", err)
		}
		score := NewScore(results)
		s.mu.Lock()
		s.scores[c.hash] = score
		s.mu.Unlock()
		return score, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Score), nil
}

// rankCandidates orders by score descending, then fewer strokes, keeping
// discovery order for full ties.
func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := candidates[i].Score.Value(), candidates[j].Score.Value()
		if si != sj {
			return si > sj
		}
		return candidates[i].Cluster.Len() < candidates[j].Cluster.Len()
	})
}
