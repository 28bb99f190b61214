package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/assembly"
	"github.com/fyrsmithlabs/sketchd/internal/cluster"
	"github.com/fyrsmithlabs/sketchd/internal/distance"
	"github.com/fyrsmithlabs/sketchd/internal/logging"
	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
	"github.com/fyrsmithlabs/sketchd/internal/verify"
)

// completion is the result of one collaborator request.
type completion struct {
	stage    Stage
	revision uint64
	started  time.Time
	labels   assembly.Classification
	grouping *assembly.Grouping
	err      error

	ctx  context.Context
	span trace.Span
}

// Orchestrator owns a sketch and advances it through the pipeline.
type Orchestrator struct {
	sketch     *sketch.Sketch
	collab     Collaborators
	engine     *assembly.Engine
	recognizer recognition.Recognizer
	verifier   *verify.Verifier
	search     *cluster.SearchConfig
	verifyCfg  verify.Config
	config     Config
	logger     *Logger
	metrics    *Metrics
	tracer     trace.Tracer

	mu             sync.Mutex
	stage          Stage
	inFlight       bool
	classification assembly.Classification
	grouping       *assembly.Grouping
	finalClusters  []FinalCluster
	lastErr        error

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	completions chan completion

	featurizationDone   chan struct{}
	classificationDone  chan struct{}
	initialClustersDone chan struct{}
	finalClustersDone   chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = NewLogger(logger)
	}
}

// WithMetrics sets the OTel metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider sets the provider spans are started from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(InstrumentationName)
	}
}

// WithVerifyConfig sets the verification configuration.
func WithVerifyConfig(cfg verify.Config) Option {
	return func(o *Orchestrator) {
		o.verifyCfg = cfg
	}
}

// WithCandidateSearch enables candidate search during verification.
func WithCandidateSearch(cfg cluster.SearchConfig) Option {
	return func(o *Orchestrator) {
		o.search = &cfg
	}
}

// New creates an orchestrator over sk. Call Start to begin processing.
func New(sk *sketch.Sketch, collab Collaborators, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		sketch:              sk,
		collab:              collab,
		config:              cfg,
		verifyCfg:           verify.DefaultConfig(),
		logger:              NewLogger(nil),
		stage:               StageIdle,
		completions:         make(chan completion),
		featurizationDone:   make(chan struct{}, cfg.NotificationBuffer),
		classificationDone:  make(chan struct{}, cfg.NotificationBuffer),
		initialClustersDone: make(chan struct{}, cfg.NotificationBuffer),
		finalClustersDone:   make(chan struct{}, cfg.NotificationBuffer),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.engine = assembly.NewEngine(sk,
		assembly.WithGrouper(collab.Grouper),
		assembly.WithLogger(o.logger.Zap()))

	if err := o.verifyCfg.Validate(); err != nil {
		return nil, err
	}
	if o.search != nil {
		if err := o.search.Validate(); err != nil {
			return nil, err
		}
	}
	if collab.Recognizer != nil {
		// one token bucket shared by verification and candidate search
		o.recognizer = recognition.NewLimited(collab.Recognizer, o.verifyCfg.RateLimit, o.verifyCfg.Burst)
		vcfg := o.verifyCfg
		vcfg.RateLimit = 0
		v, err := verify.NewVerifier(o.recognizer, vcfg, o.logger.Zap())
		if err != nil {
			return nil, err
		}
		o.verifier = v
	}

	if len(sk.Strokes()) > 0 {
		o.stage = StageFeaturizing
	}
	return o, nil
}

// Start launches the completion loop and issues featurization when the
// sketch already has strokes. A sketch without strokes has nothing to merge:
// it moves straight to Merged and signals InitialClustersDone. Start is a
// no-op on a started orchestrator.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx = logging.WithSketchID(ctx, o.sketch.ID)
	o.ctx, o.cancel = context.WithCancel(ctx)

	o.wg.Add(1)
	go o.loop()

	switch {
	case o.stage == StageIdle:
		o.mergeEmptyLocked()
	case o.stage == StageFeaturizing && !o.inFlight:
		o.issueLocked(StageFeaturizing)
	}
}

// mergeEmptyLocked completes the pipeline for a sketch with no strokes.
func (o *Orchestrator) mergeEmptyLocked() {
	ctx := o.logContext()
	if err := o.transitionLocked(StageMerged); err != nil {
		o.logger.Error(ctx, "cannot merge empty sketch", err)
		return
	}
	rev := o.sketch.Revision()
	o.logger.ShapesMerged(ctx, rev, 0, 0, 0)
	o.notify(ctx, o.initialClustersDone, "initial_clusters_done")
}

// Close stops the completion loop and waits for outstanding requests to
// return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	cancel := o.cancel
	if cancel != nil {
		cancel()
	}
	o.mu.Unlock()
	if cancel != nil {
		o.wg.Wait()
	}
}

func (o *Orchestrator) loop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case c := <-o.completions:
			o.handle(c)
		}
	}
}

// AddStroke adds a stroke and restarts the pipeline from featurization.
func (o *Orchestrator) AddStroke(st *sketch.Stroke) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.sketch.AddStroke(st); err != nil {
		return err
	}
	o.invalidateLocked()
	return nil
}

// RemoveStroke removes a stroke and restarts the pipeline from
// featurization.
func (o *Orchestrator) RemoveStroke(id sketch.StrokeID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.sketch.RemoveStroke(id); err != nil {
		return err
	}
	o.invalidateLocked()
	return nil
}

// invalidateLocked drops cached stage results and re-enters Featurizing. An
// outstanding request is left to complete; its result will be stale.
func (o *Orchestrator) invalidateLocked() {
	o.classification = nil
	o.grouping = nil
	o.finalClusters = nil
	o.lastErr = nil
	o.engine.Reset()

	if err := o.transitionLocked(StageFeaturizing); err != nil {
		o.logger.Error(o.logContext(), "cannot restart pipeline", err)
		return
	}
	if !o.inFlight {
		o.issueLocked(StageFeaturizing)
	}
}

// issueLocked sends a collaborator request for the current revision.
func (o *Orchestrator) issueLocked(stage Stage) {
	if o.ctx == nil || o.ctx.Err() != nil {
		return
	}
	rev := o.sketch.Revision()
	strokes := o.sketch.Strokes()
	labels := o.classification
	o.inFlight = true

	ctx := logging.WithRevision(o.ctx, rev)
	o.logger.StageStarted(ctx, stage, rev)
	started := time.Now()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		c := o.call(ctx, stage, rev, strokes, labels)
		c.started = started
		select {
		case o.completions <- c:
		case <-o.ctx.Done():
			c.span.End()
		}
	}()
}

// call runs one collaborator. The returned completion carries an open span
// that the handler ends.
func (o *Orchestrator) call(ctx context.Context, stage Stage, rev uint64, strokes []*sketch.Stroke, labels assembly.Classification) completion {
	ctx, span := StartSpan(ctx, o.tracer, spanName(stage), o.sketch.ID, stage, rev)
	c := completion{stage: stage, revision: rev, ctx: ctx, span: span}

	switch stage {
	case StageFeaturizing:
		c.err = o.collab.Featurizer.Featurize(ctx, strokes)
	case StageClassifying:
		c.labels, c.err = o.collab.Classifier.Classify(ctx, strokes)
	case StageGrouping:
		c.grouping, c.err = o.collab.Grouper.Group(ctx, strokes, labels)
	default:
		c.err = fmt.Errorf("%w: no collaborator for stage %s", ErrInvalidTransition, stage)
	}
	return c
}

// handle applies one completion. It runs on the loop goroutine only.
func (o *Orchestrator) handle(c completion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer c.span.End()

	o.inFlight = false
	ctx := c.ctx
	elapsed := time.Since(c.started)

	if current := o.sketch.Revision(); c.revision != current || o.stage != c.stage {
		o.logger.StaleCompletion(ctx, c.stage, c.revision, current)
		o.metrics.RecordStage(ctx, c.stage, OutcomeStale, elapsed)
		SetSpanStatus(ctx, codes.Unset, ErrStaleRevision.Error())
		if o.stage == StageFeaturizing {
			o.issueLocked(StageFeaturizing)
		}
		return
	}

	if c.err != nil {
		o.failLocked(ctx, c.stage, c.revision, c.err, elapsed)
		return
	}

	switch c.stage {
	case StageFeaturizing:
		if err := o.transitionLocked(StageClassifying); err != nil {
			o.failLocked(ctx, c.stage, c.revision, err, elapsed)
			return
		}
		o.completedLocked(ctx, c, elapsed)
		o.notify(ctx, o.featurizationDone, "featurization_done")
		o.issueLocked(StageClassifying)

	case StageClassifying:
		if len(c.labels) == 0 && len(o.sketch.Strokes()) > 0 {
			o.failLocked(ctx, c.stage, c.revision, fmt.Errorf("%w: classifier returned no labels", assembly.ErrMissingResult), elapsed)
			return
		}
		if err := o.engine.ApplyClassifications(c.labels); err != nil {
			o.failLocked(ctx, c.stage, c.revision, err, elapsed)
			return
		}
		o.classification = c.labels
		if err := o.transitionLocked(StageGrouping); err != nil {
			o.failLocked(ctx, c.stage, c.revision, err, elapsed)
			return
		}
		o.completedLocked(ctx, c, elapsed)
		o.notify(ctx, o.classificationDone, "classification_done")
		o.issueLocked(StageGrouping)

	case StageGrouping:
		report, err := o.engine.GroupSketch(ctx, c.grouping)
		if err != nil {
			o.failLocked(ctx, c.stage, c.revision, err, elapsed)
			return
		}
		o.grouping = c.grouping
		if err := o.transitionLocked(StageMerged); err != nil {
			o.failLocked(ctx, c.stage, c.revision, err, elapsed)
			return
		}
		o.completedLocked(ctx, c, elapsed)
		o.metrics.RecordMerges(ctx, report.Merges)
		o.logger.ShapesMerged(ctx, c.revision, report.Merges, report.Skipped, len(o.sketch.Shapes()))
		o.notify(ctx, o.initialClustersDone, "initial_clusters_done")
	}
}

func (o *Orchestrator) completedLocked(ctx context.Context, c completion, elapsed time.Duration) {
	o.logger.StageCompleted(ctx, c.stage, c.revision, elapsed)
	o.metrics.RecordStage(ctx, c.stage, OutcomeCompleted, elapsed)
	SetSpanStatus(ctx, codes.Ok, "")
}

// failLocked stalls the pipeline. No notification is sent.
func (o *Orchestrator) failLocked(ctx context.Context, stage Stage, rev uint64, err error, elapsed time.Duration) {
	o.lastErr = fmt.Errorf("%s: %w", stage, err)
	o.logger.StageFailed(ctx, stage, rev, err)
	o.metrics.RecordStage(ctx, stage, OutcomeFailed, elapsed)
	RecordError(ctx, err)
	SetSpanStatus(ctx, codes.Error, err.Error())
	if o.stage.CanTransitionTo(StageStalled) {
		o.stage = StageStalled
	}
}

func (o *Orchestrator) transitionLocked(target Stage) error {
	if !o.stage.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.stage, target)
	}
	o.stage = target
	return nil
}

// notify sends a completion marker without blocking. A full channel already
// holds an unread marker of the same kind.
func (o *Orchestrator) notify(ctx context.Context, ch chan struct{}, name string) {
	select {
	case ch <- struct{}{}:
	default:
		o.logger.NotificationDropped(ctx, name)
	}
}

// Verify runs verification and repair over the merged shapes and, when
// candidate search is enabled, computes the final clusters. It requires a
// started orchestrator in the Merged or Verified stage with no outstanding
// request.
//
// Verify holds the orchestrator lock for the whole recognizer pass and
// candidate search, rate limiter waits included, because both read and
// repair the live sketch. Accessors, sketch mutations and stage completions
// block until it returns; bound the wait with ctx.
func (o *Orchestrator) Verify(ctx context.Context) (verify.Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel == nil {
		return verify.Report{}, ErrNotStarted
	}
	if o.verifier == nil {
		return verify.Report{}, ErrNoRecognizer
	}
	if o.inFlight {
		return verify.Report{}, ErrStageInFlight
	}
	if o.stage != StageMerged && o.stage != StageVerified {
		return verify.Report{}, fmt.Errorf("%w: stage is %s", ErrNotMerged, o.stage)
	}

	rev := o.sketch.Revision()
	ctx = logging.WithRevision(logging.WithSketchID(ctx, o.sketch.ID), rev)
	ctx, span := StartSpan(ctx, o.tracer, spanName(StageVerifying), o.sketch.ID, StageVerifying, rev)
	defer span.End()

	start := time.Now()
	if err := o.transitionLocked(StageVerifying); err != nil {
		return verify.Report{}, err
	}

	report, err := o.verifier.VerifyAndRepair(ctx, o.sketch)
	if err != nil {
		o.stage = StageMerged
		o.logger.StageFailed(ctx, StageVerifying, rev, err)
		o.metrics.RecordStage(ctx, StageVerifying, OutcomeFailed, time.Since(start))
		RecordError(ctx, err)
		SetSpanStatus(ctx, codes.Error, err.Error())
		return report, err
	}
	o.metrics.RecordRepairs(ctx, report.StrokesPruned)

	o.finalClusters = o.searchLocked(ctx)
	if err := o.transitionLocked(StageVerified); err != nil {
		return report, err
	}

	elapsed := time.Since(start)
	o.metrics.RecordStage(ctx, StageVerifying, OutcomeCompleted, elapsed)
	o.logger.Verified(ctx, rev, report.Submitted, report.StrokesPruned, report.Unresolved, len(o.finalClusters), elapsed)
	SetSpanStatus(ctx, codes.Ok, "")
	o.notify(ctx, o.finalClustersDone, "final_clusters_done")
	return report, nil
}

// searchLocked seeds a candidate search with every composite shape and
// keeps the best candidate of each.
func (o *Orchestrator) searchLocked(ctx context.Context) []FinalCluster {
	if o.search == nil {
		return nil
	}

	var (
		seeds  []cluster.Seed
		owners []sketch.ShapeID
	)
	for _, sh := range o.sketch.Shapes() {
		if sh.Len() < verify.MinCompositeStrokes {
			continue
		}
		seeds = append(seeds, cluster.Seed{ClassName: sh.Type, Strokes: sh.Strokes()})
		owners = append(owners, sh.ID)
	}
	if len(seeds) == 0 {
		return nil
	}

	index := distance.Build(o.sketch.Strokes())
	searcher, err := cluster.NewSearcher(index, o.recognizer, *o.search, o.logger.Zap())
	if err != nil {
		o.logger.Error(ctx, "candidate search unavailable", err)
		return nil
	}
	results, err := searcher.Search(ctx, seeds)
	if err != nil {
		o.logger.Error(ctx, "candidate search failed", err, zap.Int("seeds", len(seeds)))
		return nil
	}

	final := make([]FinalCluster, 0, len(results))
	for i, res := range results {
		if best, ok := res.Best(); ok {
			final = append(final, FinalCluster{Shape: owners[i], Candidate: best})
		}
	}
	return final
}

func (o *Orchestrator) logContext() context.Context {
	ctx := o.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.WithRevision(logging.WithSketchID(ctx, o.sketch.ID), o.sketch.Revision())
}

// FeaturizationDone signals completed featurization.
func (o *Orchestrator) FeaturizationDone() <-chan struct{} { return o.featurizationDone }

// ClassificationDone signals applied classifications.
func (o *Orchestrator) ClassificationDone() <-chan struct{} { return o.classificationDone }

// InitialClustersDone signals that grouping and shape merge completed.
func (o *Orchestrator) InitialClustersDone() <-chan struct{} { return o.initialClustersDone }

// FinalClustersDone signals a completed verification.
func (o *Orchestrator) FinalClustersDone() <-chan struct{} { return o.finalClustersDone }

// Stage returns the current stage.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Revision returns the sketch revision.
func (o *Orchestrator) Revision() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sketch.Revision()
}

// Err returns the failure that stalled the pipeline, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Classification returns a copy of the current classification result, or
// nil when none is valid for the current revision.
func (o *Orchestrator) Classification() assembly.Classification {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.classification == nil {
		return nil
	}
	out := make(assembly.Classification, len(o.classification))
	for k, v := range o.classification {
		out[k] = v
	}
	return out
}

// Grouping returns the grouping result applied at the current revision.
func (o *Orchestrator) Grouping() *assembly.Grouping {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.grouping == nil {
		return nil
	}
	return &assembly.Grouping{Pairs: append([]assembly.JoinedPair(nil), o.grouping.Pairs...)}
}

// Shapes returns a snapshot of the committed shapes.
func (o *Orchestrator) Shapes() []ShapeView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shapesLocked()
}

func (o *Orchestrator) shapesLocked() []ShapeView {
	shapes := o.sketch.Shapes()
	out := make([]ShapeView, len(shapes))
	for i, sh := range shapes {
		out[i] = ShapeView{
			ID:          sh.ID,
			Type:        sh.Type,
			Probability: sh.Probability,
			Unresolved:  sh.Unresolved,
			Strokes:     sh.StrokeIDs(),
			Errors:      append([]sketch.StructuralError(nil), sh.Errors...),
		}
	}
	return out
}

// FinalClusters returns the advisory best candidates from the last
// verification.
func (o *Orchestrator) FinalClusters() []FinalCluster {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]FinalCluster(nil), o.finalClusters...)
}

// Snapshot returns stage, revision, shapes and the stall error at once.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Stage:    o.stage,
		Revision: o.sketch.Revision(),
		Shapes:   o.shapesLocked(),
		Err:      o.lastErr,
	}
}

// Await blocks until ch fires or ctx is done.
func Await(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
