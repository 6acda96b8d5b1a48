package optimizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/testutil"
)

type stubQuoter struct {
	mu       sync.Mutex
	calls    int
	npv      func(hours float64) float64
	failures map[float64]error
}

func (s *stubQuoter) Quote(_ context.Context, req engine.QuoteRequest) (engine.Quote, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	hours := 4.0
	if req.Facility.Overrides.DurationHours != nil {
		hours = *req.Facility.Overrides.DurationHours
	}
	if err, ok := s.failures[hours]; ok {
		return engine.Quote{}, err
	}
	var q engine.Quote
	q.Sizing.UseCaseSlug = req.Facility.UseCaseSlug
	q.Sizing.DurationHours = hours
	q.Financials.Metrics.NPV = s.npv(hours)
	return q, nil
}

func request() engine.QuoteRequest {
	return engine.QuoteRequest{Facility: testutil.HotelFacility(), Equipment: cost.EquipmentConfig{Region: "us"}, Rates: testutil.HotelRates()}
}

func TestNewRunnerRequiresQuoter(t *testing.T) {
	if _, err := NewRunner(nil, nil); err == nil {
		t.Fatal("expected error for nil quoter")
	}
}

func TestRunSelectsHighestNPV(t *testing.T) {
	quoter := &stubQuoter{npv: func(h float64) float64 { return 1000 - (h-6)*(h-6)*100 }}
	runner, err := NewRunner(nil, quoter)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	result, err := runner.Run(context.Background(), request(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	s := result.Summary
	if s.Value != 6 || result.Best.Sizing.DurationHours != 6 {
		t.Errorf("expected 6 h, got summary %.2f best %.2f", s.Value, result.Best.Sizing.DurationHours)
	}
	if s.Original != 4 || s.OriginalDisplay != "4 h" || s.ValueDisplay != "6 h" {
		t.Errorf("unexpected displays %+v", s)
	}
	if !s.Converged || !s.Changed() {
		t.Errorf("expected converged change, got %+v", s)
	}
	if s.Iterations != len(DefaultDurations) || len(s.Candidates) != len(DefaultDurations) {
		t.Errorf("expected %d candidates, got %d", len(DefaultDurations), len(s.Candidates))
	}
	if s.Improvement != 400 {
		t.Errorf("expected improvement 400, got %.2f", s.Improvement)
	}
	if quoter.calls != len(DefaultDurations)+1 {
		t.Errorf("expected %d quotes, got %d", len(DefaultDurations)+1, quoter.calls)
	}
}

func TestRunTiesKeepShorterDuration(t *testing.T) {
	quoter := &stubQuoter{npv: func(float64) float64 { return 500 }}
	runner, _ := NewRunner(nil, quoter)

	result, err := runner.Run(context.Background(), request(), []float64{8, 2, 2, 6})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Summary.Value != 4 {
		t.Errorf("equal NPV must keep the baseline duration, got %.2f", result.Summary.Value)
	}
	if len(result.Summary.Candidates) != 3 || result.Summary.Candidates[0].Value != 2 {
		t.Errorf("candidates must be de-duplicated and sorted, got %+v", result.Summary.Candidates)
	}
	if result.Summary.Changed() {
		t.Errorf("unchanged duration reported as a change")
	}
}

func TestRunRecordsRejectedCandidates(t *testing.T) {
	quoter := &stubQuoter{
		npv:      func(h float64) float64 { return h * 10 },
		failures: map[float64]error{8: errors.New("duration too long")},
	}
	runner, _ := NewRunner(nil, quoter)

	result, err := runner.Run(context.Background(), request(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Summary.Value != 6 {
		t.Errorf("expected 6 h once 8 h is rejected, got %.2f", result.Summary.Value)
	}
	if len(result.Summary.Notes) != 1 || !strings.Contains(result.Summary.Notes[0], "8 h rejected") {
		t.Errorf("expected a rejection note, got %v", result.Summary.Notes)
	}
	last := result.Summary.Candidates[len(result.Summary.Candidates)-1]
	if last.Feasible || last.Note == "" {
		t.Errorf("rejected candidate not marked: %+v", last)
	}
}

func TestRunWithoutFeasibleCandidates(t *testing.T) {
	boom := errors.New("boom")
	quoter := &stubQuoter{
		npv:      func(float64) float64 { return 1 },
		failures: map[float64]error{2: boom, 6: boom},
	}
	runner, _ := NewRunner(nil, quoter)

	result, err := runner.Run(context.Background(), request(), []float64{2, 6})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Summary.Converged {
		t.Errorf("expected no convergence")
	}
	if result.Summary.Value != 4 {
		t.Errorf("expected baseline duration, got %.2f", result.Summary.Value)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name       string
		quoter     *stubQuoter
		candidates []float64
	}{
		{"non-positive candidate", &stubQuoter{npv: func(float64) float64 { return 0 }}, []float64{2, 0}},
		{"baseline fails", &stubQuoter{npv: func(float64) float64 { return 0 }, failures: map[float64]error{4: errors.New("bad")}}, []float64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, _ := NewRunner(nil, tt.quoter)
			if _, err := runner.Run(context.Background(), request(), tt.candidates); err == nil {
				t.Errorf("Run() expected error")
			}
		})
	}
}

func TestRunAgainstEngine(t *testing.T) {
	runner, err := NewRunner(nil, engine.New(nil, nil, nil, engine.Options{}))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	result, err := runner.Run(context.Background(), request(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Best.Financials.Metrics.NPV < result.Summary.OriginalScore {
		t.Errorf("optimized NPV %.2f below baseline %.2f", result.Best.Financials.Metrics.NPV, result.Summary.OriginalScore)
	}
	best := result.Best.Sizing
	if best.EnergyMWh != best.PowerMW*best.DurationHours {
		t.Errorf("energy %.4f != power x duration", best.EnergyMWh)
	}
	for _, c := range result.Summary.Candidates {
		if !c.Feasible {
			t.Errorf("candidate %.0f h unexpectedly rejected: %s", c.Value, c.Note)
		}
	}
}
