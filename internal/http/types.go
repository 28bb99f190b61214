package http

import (
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/pipeline"
	"github.com/fyrsmithlabs/sketchd/internal/verify"
)

// RunState is the outcome of the most recent pipeline run.
type RunState struct {
	Document string
	SketchID string
	Revision uint64
	Runs     int
	Finished time.Time
	Err      error
	Shapes   []pipeline.ShapeView
	Final    []pipeline.FinalCluster
	Report   *verify.Report
}

// Source reports pipeline runs and accepts requests for new ones.
type Source interface {
	// LastRun returns the latest run, or false before the first one ends.
	LastRun() (RunState, bool)

	// Trigger schedules a run. It does not wait for the run.
	Trigger()
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Telemetry string `json:"telemetry"`
	Runs      int    `json:"runs"`
	LastError string `json:"last_error,omitempty"`
}

// ResultResponse is the response body for GET /api/v1/result.
type ResultResponse struct {
	Document      string            `json:"document"`
	SketchID      string            `json:"sketch_id"`
	Revision      uint64            `json:"revision"`
	Finished      time.Time         `json:"finished"`
	Error         string            `json:"error,omitempty"`
	Shapes        []ShapeResponse   `json:"shapes"`
	FinalClusters []ClusterResponse `json:"final_clusters,omitempty"`
	Verification  *ReportResponse   `json:"verification,omitempty"`
}

// ShapeResponse is one committed shape.
type ShapeResponse struct {
	ID          string   `json:"id"`
	Type        string   `json:"type,omitempty"`
	Probability float64  `json:"probability"`
	Unresolved  bool     `json:"unresolved,omitempty"`
	Strokes     []string `json:"strokes"`
	Errors      int      `json:"errors,omitempty"`
}

// ClusterResponse is the best candidate found around a shape.
type ClusterResponse struct {
	Shape   string   `json:"shape"`
	Score   float64  `json:"score"`
	Strokes []string `json:"strokes"`
}

// ReportResponse summarizes a verification pass.
type ReportResponse struct {
	Submitted     int `json:"submitted"`
	Skipped       int `json:"skipped"`
	EmptyRemoved  int `json:"empty_removed"`
	NoMatch       int `json:"no_match"`
	Failed        int `json:"failed"`
	Recoverable   int `json:"recoverable"`
	Unresolved    int `json:"unresolved"`
	StrokesPruned int `json:"strokes_pruned"`
}

func newResultResponse(run RunState) ResultResponse {
	resp := ResultResponse{
		Document: run.Document,
		SketchID: run.SketchID,
		Revision: run.Revision,
		Finished: run.Finished,
		Shapes:   make([]ShapeResponse, 0, len(run.Shapes)),
	}
	if run.Err != nil {
		resp.Error = run.Err.Error()
	}
	for _, sh := range run.Shapes {
		strokes := make([]string, len(sh.Strokes))
		for i, id := range sh.Strokes {
			strokes[i] = string(id)
		}
		resp.Shapes = append(resp.Shapes, ShapeResponse{
			ID:          string(sh.ID),
			Type:        sh.Type,
			Probability: sh.Probability,
			Unresolved:  sh.Unresolved,
			Strokes:     strokes,
			Errors:      len(sh.Errors),
		})
	}
	for _, fc := range run.Final {
		cr := ClusterResponse{Shape: string(fc.Shape)}
		if fc.Candidate.Score != nil {
			cr.Score = fc.Candidate.Score.Value()
		}
		if fc.Candidate.Cluster != nil {
			for _, id := range fc.Candidate.Cluster.StrokeIDs() {
				cr.Strokes = append(cr.Strokes, string(id))
			}
		}
		resp.FinalClusters = append(resp.FinalClusters, cr)
	}
	if r := run.Report; r != nil {
		resp.Verification = &ReportResponse{
			Submitted:     r.Submitted,
			Skipped:       r.Skipped,
			EmptyRemoved:  r.EmptyRemoved,
			NoMatch:       r.NoMatch,
			Failed:        r.Failed,
			Recoverable:   r.Recoverable,
			Unresolved:    r.Unresolved,
			StrokesPruned: r.StrokesPruned,
		}
	}
	return resp
}
