// Package optimizer searches BESS durations for the best lifetime economics.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/optimization"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDurations are the candidate storage durations in hours.
var DefaultDurations = []float64{2, 4, 6, 8}

// maxParallel bounds concurrent candidate evaluations.
const maxParallel = 4

const objectiveEpsilon = 0.005

// Quoter produces a quote for a request.
type Quoter interface {
	Quote(ctx context.Context, req engine.QuoteRequest) (engine.Quote, error)
}

// Runner evaluates a request at several durations.
type Runner struct {
	logger *zap.Logger
	quoter Quoter
}

// Result holds the best quote and how it was chosen.
type Result struct {
	Best    engine.Quote         `json:"best"`
	Summary optimization.Summary `json:"summary"`
}

type evaluation struct {
	duration float64
	quote    engine.Quote
	err      error
}

func (e evaluation) feasible() bool {
	return e.err == nil
}

func (e evaluation) objective() float64 {
	return e.quote.Financials.Metrics.NPV
}

// NewRunner constructs a Runner around quoter.
func NewRunner(logger *zap.Logger, quoter Quoter) (*Runner, error) {
	if quoter == nil {
		return nil, fmt.Errorf("quoter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, quoter: quoter}, nil
}

// Run quotes req at the baseline duration and at every candidate, then
// returns the quote with the highest NPV. Ties go to the shorter duration.
// Nil candidates select DefaultDurations.
func (r *Runner) Run(ctx context.Context, req engine.QuoteRequest, candidates []float64) (*Result, error) {
	if len(candidates) == 0 {
		candidates = DefaultDurations
	}
	durations, err := normalizeCandidates(candidates)
	if err != nil {
		return nil, err
	}

	baseline, err := r.quoter.Quote(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("optimizer baseline quote failed: %w", err)
	}

	evals := make([]evaluation, len(durations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, d := range durations {
		i, d := i, d
		g.Go(func() error {
			candidate := req
			duration := d
			candidate.Facility.Overrides.DurationHours = &duration
			q, err := r.quoter.Quote(gctx, candidate)
			evals[i] = evaluation{duration: d, quote: q, err: err}
			// A context failure aborts the sweep; anything else only rules the candidate out.
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("optimizer sweep aborted: %w", err)
	}

	summary := optimization.Summary{
		Scope:           baseline.Sizing.UseCaseSlug,
		Field:           "durationHours",
		Objective:       "npv",
		Original:        baseline.Sizing.DurationHours,
		OriginalDisplay: formatDuration(baseline.Sizing.DurationHours),
		OriginalScore:   baseline.Financials.Metrics.NPV,
		Iterations:      len(evals),
	}

	bestIndex := -1
	for i, eval := range evals {
		c := optimization.Candidate{Value: eval.duration, Feasible: eval.feasible()}
		if eval.feasible() {
			c.Objective = eval.objective()
			if bestIndex < 0 || eval.objective() > evals[bestIndex].objective()+objectiveEpsilon {
				bestIndex = i
			}
		} else {
			c.Note = eval.err.Error()
			summary.Notes = append(summary.Notes, fmt.Sprintf("%s rejected: %v", formatDuration(eval.duration), eval.err))
		}
		summary.Candidates = append(summary.Candidates, c)
	}

	best := baseline
	if bestIndex >= 0 && evals[bestIndex].objective() > baseline.Financials.Metrics.NPV+objectiveEpsilon {
		best = evals[bestIndex].quote
	}
	summary.Converged = bestIndex >= 0
	if !summary.Converged {
		summary.Notes = append(summary.Notes, "no candidate duration produced a quote; keeping the baseline")
	}
	summary.Value = best.Sizing.DurationHours
	summary.ValueDisplay = formatDuration(summary.Value)
	summary.BestScore = best.Financials.Metrics.NPV
	summary.Improvement = mathutil.Round(summary.BestScore - summary.OriginalScore)

	r.logger.Info("optimizer selected duration",
		zap.String("op", "optimizer.Run"),
		zap.String("use_case", summary.Scope),
		zap.Float64("original_hours", summary.Original),
		zap.Float64("optimized_hours", summary.Value),
		zap.Float64("original_npv", summary.OriginalScore),
		zap.Float64("optimized_npv", summary.BestScore),
		zap.Int("iterations", summary.Iterations),
		zap.Bool("converged", summary.Converged),
	)
	return &Result{Best: best, Summary: summary}, nil
}

func normalizeCandidates(candidates []float64) ([]float64, error) {
	seen := make(map[float64]bool, len(candidates))
	out := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		if !mathutil.IsFinite(c) || c <= 0 {
			return nil, fmt.Errorf("candidate duration must be a positive number, got %v", c)
		}
		c = mathutil.RoundTo(c, 2)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Float64s(out)
	return out, nil
}

func formatDuration(hours float64) string {
	if hours == math.Trunc(hours) {
		return fmt.Sprintf("%.0f h", hours)
	}
	return fmt.Sprintf("%.2f h", hours)
}
