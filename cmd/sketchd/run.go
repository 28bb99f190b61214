package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/fixture"
	"github.com/fyrsmithlabs/sketchd/internal/logging"
	"github.com/fyrsmithlabs/sketchd/internal/pipeline"
	"github.com/fyrsmithlabs/sketchd/internal/verify"
)

// stallPollInterval is how often a waiting run checks for a stalled pipeline.
const stallPollInterval = 25 * time.Millisecond

var (
	runVerify bool
	runSearch bool
)

var runCmd = &cobra.Command{
	Use:   "run <document>",
	Short: "Run the pipeline over a sketch document",
	Long: `Run the pipeline over a sketch document and print the merged shapes.

Examples:
  # Merge only
  sketchd run drawing.json

  # Merge, verify and repair, then search for better clusters
  sketchd run --verify --search drawing.toml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		res, err := a.runDocument(ctx, args[0], runOptions{
			verify: runVerify || runSearch,
			search: runSearch || a.cfg.Verify.SearchCandidates,
		})
		if err != nil {
			a.logger.Error(ctx, "run failed", zap.String("document", args[0]), zap.Error(err))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runVerify, "verify", false, "verify and repair merged shapes")
	runCmd.Flags().BoolVar(&runSearch, "search", false, "search for better stroke clusters (implies --verify)")
}

type runOptions struct {
	verify bool
	search bool
}

// runResult is what one pipeline run over a document produced.
type runResult struct {
	Document string
	SketchID string
	Revision uint64
	Shapes   []pipeline.ShapeView
	Final    []pipeline.FinalCluster
	Report   *verify.Report
	Elapsed  time.Duration
}

// runDocument loads the document at path and drives a fresh orchestrator
// through merging and, when requested, verification.
func (a *app) runDocument(ctx context.Context, path string, opts runOptions) (*runResult, error) {
	start := time.Now()
	ctx = logging.WithRunID(ctx, uuid.NewString())

	doc, err := fixture.Load(path)
	if err != nil {
		return nil, err
	}
	sk, err := doc.Sketch()
	if err != nil {
		return nil, fmt.Errorf("building sketch: %w", err)
	}

	metrics, err := pipeline.NewMetrics(a.telemetry.Meter(pipeline.InstrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating pipeline metrics: %w", err)
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(a.logger.Underlying().Named("pipeline")),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracerProvider(a.telemetry.TracerProvider()),
		pipeline.WithVerifyConfig(a.cfg.Verify),
	}
	if opts.search {
		pipelineOpts = append(pipelineOpts, pipeline.WithCandidateSearch(a.cfg.Search))
	}

	orch, err := pipeline.New(sk, doc.Collaborators(),
		pipeline.Config{NotificationBuffer: a.cfg.Pipeline.NotificationBuffer},
		pipelineOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	defer orch.Close()

	log := a.logger.ForSketch(sk.ID)
	orch.Start(ctx)
	if err := awaitMerged(ctx, orch); err != nil {
		if orch.Stage() == pipeline.StageStalled {
			log.Stage(string(pipeline.StageStalled), orch.Revision()).Warn(ctx, "run stalled", zap.Error(orch.Err()))
		}
		return nil, err
	}

	res := &runResult{Document: path, SketchID: sk.ID}
	if opts.verify || opts.search {
		report, err := orch.Verify(ctx)
		if err != nil {
			return nil, fmt.Errorf("verification: %w", err)
		}
		res.Report = &report
		res.Final = orch.FinalClusters()
	}

	snap := orch.Snapshot()
	res.Revision = snap.Revision
	res.Shapes = snap.Shapes
	res.Elapsed = time.Since(start)

	log.Info(ctx, "run complete",
		zap.String("document", path),
		zap.Int("shapes", len(res.Shapes)),
		zap.Int("final_clusters", len(res.Final)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// awaitMerged waits for the initial clusters. A failed stage never
// notifies, so the stage is polled for a stall as well.
func awaitMerged(ctx context.Context, orch *pipeline.Orchestrator) error {
	ticker := time.NewTicker(stallPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-orch.InitialClustersDone():
			return nil
		case <-ticker.C:
			if orch.Stage() == pipeline.StageStalled {
				return fmt.Errorf("pipeline stalled: %w", orch.Err())
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
