// Package engine exposes the sizing, pricing and financial operations over a
// use case catalog, a pricing table and a calculation cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/bess-engine/pkg/cache"
	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/financial"
	"github.com/iwvelando/bess-engine/pkg/financing"
	"github.com/iwvelando/bess-engine/pkg/mathutil"
	"github.com/iwvelando/bess-engine/pkg/pricing"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/iwvelando/bess-engine/pkg/usecase"
	"go.uber.org/zap"
)

// DefaultCollaboratorTimeout bounds catalog and pricing calls.
const DefaultCollaboratorTimeout = 2 * time.Second

// ErrInvalidFinancing rejects debt terms.
var ErrInvalidFinancing = errors.New("invalid financing terms")

// Options configure an Engine. Zero values select the defaults, except
// OpexPct where only nil does.
type Options struct {
	Cache               cache.Options
	Defaults            financial.Input
	ITCPct              float64
	OpexPct             *float64
	CollaboratorTimeout time.Duration
	StaleAfterMonths    int
	Now                 func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	logger     *zap.Logger
	catalog    usecase.Catalog
	calculator *sizing.Calculator
	estimator  *cost.Estimator
	sizings    *cache.Cache[sizing.Result]
	metrics    *cache.Cache[financial.Result]
	opts       Options
}

// FinancialParams are the caller's lifetime and incentive assumptions.
// Nil fields keep the engine defaults.
type FinancialParams struct {
	financial.LifetimeParams `yaml:",inline"`
	ITCPct                   *float64         `json:"itcPct,omitempty" yaml:"itcPct,omitempty"`
	OpexPct                  *float64         `json:"opexPct,omitempty" yaml:"opexPct,omitempty"`
	Financing                *financing.Terms `json:"financing,omitempty" yaml:"financing,omitempty"`
}

// FinancialReport is the outcome of ComputeFinancials.
type FinancialReport struct {
	TotalProjectCost float64               `json:"totalProjectCost" yaml:"totalProjectCost"`
	ITCPct           float64               `json:"itcPct" yaml:"itcPct"`
	ITCAmount        float64               `json:"itcAmount" yaml:"itcAmount"`
	NetCapex         float64               `json:"netCapex" yaml:"netCapex"`
	AnnualOpex       float64               `json:"annualOpex" yaml:"annualOpex"`
	Revenue          revenue.AnnualRevenue `json:"revenue" yaml:"revenue"`
	Input            financial.Input       `json:"input" yaml:"input"`
	Metrics          financial.Result      `json:"metrics" yaml:"metrics"`
	Financing        *financing.Schedule   `json:"financing,omitempty" yaml:"financing,omitempty"`
	Source           provenance.Source     `json:"source" yaml:"source"`
	Warnings         []string              `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// QuoteRequest runs the whole pipeline for one facility.
type QuoteRequest struct {
	Facility  sizing.FacilityInput `json:"facility" yaml:"facility"`
	Equipment cost.EquipmentConfig `json:"equipment,omitempty" yaml:"equipment,omitempty"`
	Rates     revenue.TariffInput  `json:"rates,omitempty" yaml:"rates,omitempty"`
	Financial FinancialParams      `json:"financial,omitempty" yaml:"financial,omitempty"`
}

// Quote is a complete, identified result. IRRPreviewPct is a closed-form
// estimate kept apart from the reported IRR in Financials.
type Quote struct {
	ID            string            `json:"id" yaml:"id"`
	CreatedAt     time.Time         `json:"createdAt" yaml:"createdAt"`
	UseCaseName   string            `json:"useCaseName" yaml:"useCaseName"`
	Sizing        sizing.Result     `json:"sizing" yaml:"sizing"`
	Costs         cost.Breakdown    `json:"costs" yaml:"costs"`
	Financials    FinancialReport   `json:"financials" yaml:"financials"`
	IRRPreviewPct *float64          `json:"irrPreviewPct,omitempty" yaml:"irrPreviewPct,omitempty"`
	Source        provenance.Source `json:"source" yaml:"source"`
	Warnings      []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// New builds an engine. A nil catalog or table selects the builtin data.
func New(logger *zap.Logger, catalog usecase.Catalog, table pricing.Table, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if opts.Defaults.ProjectLifetimeYears == 0 {
		opts.Defaults = financial.DefaultInput()
	}
	if opts.OpexPct == nil {
		opex := constants.DefaultOpexPct
		opts.OpexPct = &opex
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache.Logger == nil {
		opts.Cache.Logger = logger
	}

	if catalog == nil {
		catalog = usecase.Builtin()
	}
	if _, ok := catalog.(*usecase.TimeoutCatalog); !ok {
		catalog = usecase.WithTimeout(catalog, nil, opts.CollaboratorTimeout, logger)
	}

	return &Engine{
		logger:     logger,
		catalog:    catalog,
		calculator: sizing.NewCalculator(logger),
		estimator: cost.NewEstimator(logger, table, cost.Options{
			LookupTimeout:    opts.CollaboratorTimeout,
			StaleAfterMonths: opts.StaleAfterMonths,
			Now:              opts.Now,
		}),
		sizings: cache.New[sizing.Result](opts.Cache),
		metrics: cache.New[financial.Result](opts.Cache),
		opts:    opts,
	}
}

// Catalog returns the catalog the engine resolves use cases from.
func (e *Engine) Catalog() usecase.Catalog {
	return e.catalog
}

// CacheStats reports the sizing and financial cache counters.
func (e *Engine) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"sizing":    e.sizings.Stats(),
		"financial": e.metrics.Stats(),
	}
}

// PurgeCache drops every in-process sizing and financial entry. Entries in
// the shared store expire on their own TTL.
func (e *Engine) PurgeCache() {
	sizings, metrics := e.sizings.Len(), e.metrics.Len()
	e.sizings.Purge()
	e.metrics.Purge()
	e.logger.Info("purged caches",
		zap.String("op", "engine.PurgeCache"),
		zap.Int("sizing_entries", sizings),
		zap.Int("financial_entries", metrics),
	)
}

func (e *Engine) resolve(ctx context.Context, slug string) (usecase.UseCaseProfile, error) {
	normalized := usecase.NormalizeSlug(slug)
	if normalized == "" {
		return usecase.UseCaseProfile{}, fmt.Errorf("%w: empty use case slug", sizing.ErrUnknownUseCase)
	}
	profile, err := e.catalog.Resolve(ctx, normalized)
	if errors.Is(err, usecase.ErrNotFound) {
		return usecase.UseCaseProfile{}, fmt.Errorf("%w: %s", sizing.ErrUnknownUseCase, slug)
	}
	if err != nil {
		return usecase.UseCaseProfile{}, fmt.Errorf("resolve use case %s: %w", slug, err)
	}
	return profile, nil
}

// SizeFacility resolves the facility's use case and sizes the BESS. Results
// are cached by the fingerprint of the facility and the resolved profile.
func (e *Engine) SizeFacility(ctx context.Context, facility sizing.FacilityInput) (sizing.Result, error) {
	profile, err := e.resolve(ctx, facility.UseCaseSlug)
	if err != nil {
		return sizing.Result{}, err
	}

	key, err := cache.Fingerprint("sizing", struct {
		Facility sizing.FacilityInput   `json:"facility"`
		Profile  usecase.UseCaseProfile `json:"profile"`
	}{facility, profile})
	if err != nil {
		// Unencodable input (NaN, Inf) is rejected by the calculator itself.
		return e.calculator.Size(profile, facility)
	}
	result, hit, err := e.sizings.GetOrCompute(ctx, key, func(context.Context) (sizing.Result, error) {
		return e.calculator.Size(profile, facility)
	})
	if err != nil {
		return sizing.Result{}, err
	}
	e.logger.Debug("sized facility",
		zap.String("op", "engine.SizeFacility"),
		zap.String("use_case", profile.Slug),
		zap.Bool("cache_hit", hit),
	)
	return result, nil
}

// PriceEquipment produces the reconciled cost breakdown.
func (e *Engine) PriceEquipment(ctx context.Context, sz sizing.Result, cfg cost.EquipmentConfig) (cost.Breakdown, error) {
	return e.estimator.Estimate(ctx, sz, cfg)
}

// ComputeFinancials derives net capex and opex from the breakdown, values the
// revenue streams and evaluates the lifetime metrics. The breakdown is
// reconciled again first; a mismatch is fatal.
func (e *Engine) ComputeFinancials(ctx context.Context, breakdown cost.Breakdown, rates revenue.TariffInput, params FinancialParams) (FinancialReport, error) {
	if err := breakdown.Reconcile(); err != nil {
		e.logger.Error("refusing to evaluate an unreconciled breakdown",
			zap.String("op", "engine.ComputeFinancials"),
			zap.Error(err),
		)
		return FinancialReport{}, err
	}

	profile, err := e.resolve(ctx, breakdown.Sizing.UseCaseSlug)
	if err != nil {
		return FinancialReport{}, err
	}

	itcPct := e.opts.ITCPct
	if params.ITCPct != nil {
		itcPct = *params.ITCPct
	}
	opexPct := *e.opts.OpexPct
	if params.OpexPct != nil {
		opexPct = *params.OpexPct
	}
	if !mathutil.IsFinite(itcPct) || itcPct < 0 || itcPct > constants.PercentageMultiplier {
		return FinancialReport{}, &financial.InvalidInputError{Field: "itcPct", Value: itcPct, Reason: "must be between 0 and 100"}
	}
	if !mathutil.IsFinite(opexPct) || opexPct < 0 {
		return FinancialReport{}, &financial.InvalidInputError{Field: "opexPct", Value: opexPct, Reason: "must be a non-negative finite number"}
	}

	annual, err := revenue.Aggregate(breakdown.Sizing, rates, profile, renewablesOf(breakdown))
	if err != nil {
		return FinancialReport{}, err
	}

	itc := mathutil.Round(mathutil.ApplyPercentage(breakdown.TotalProjectCost, itcPct))
	in := params.LifetimeParams.Resolve(e.opts.Defaults)
	in.NetCapex = mathutil.Round(breakdown.TotalProjectCost - itc)
	in.AnnualRevenue = annual.Total
	in.AnnualOpex = mathutil.Round(mathutil.ApplyPercentage(breakdown.TotalProjectCost, opexPct))
	in.AnnualEnergyMWh = revenue.AnnualEnergyDeliveredMWh(breakdown.Sizing, rates)

	if err := in.Validate(); err != nil {
		return FinancialReport{}, err
	}
	key, err := cache.Fingerprint("financial", in)
	if err != nil {
		return FinancialReport{}, err
	}
	metrics, hit, err := e.metrics.GetOrCompute(ctx, key, func(context.Context) (financial.Result, error) {
		return financial.Evaluate(in)
	})
	if err != nil {
		return FinancialReport{}, err
	}

	report := FinancialReport{
		TotalProjectCost: breakdown.TotalProjectCost,
		ITCPct:           itcPct,
		ITCAmount:        itc,
		NetCapex:         in.NetCapex,
		AnnualOpex:       in.AnnualOpex,
		Revenue:          annual,
		Input:            in,
		Metrics:          metrics,
		Source:           provenance.Worst(breakdown.Source, breakdown.Sizing.DataSource),
	}
	report.Warnings = append(report.Warnings, metrics.Warnings...)

	if params.Financing != nil {
		schedule, err := financing.Build(in.NetCapex, *params.Financing)
		if err != nil {
			return FinancialReport{}, fmt.Errorf("%w: %v", ErrInvalidFinancing, err)
		}
		report.Financing = &schedule
	}

	for _, w := range metrics.Warnings {
		e.logger.Warn(w,
			zap.String("op", "engine.ComputeFinancials"),
			zap.String("use_case", profile.Slug),
		)
	}
	e.logger.Debug("computed financials",
		zap.String("op", "engine.ComputeFinancials"),
		zap.String("use_case", profile.Slug),
		zap.Float64("net_capex", in.NetCapex),
		zap.Float64("npv", metrics.NPV),
		zap.Bool("cache_hit", hit),
	)
	return report, nil
}

// Quote sizes, prices and evaluates req and assigns the result an identifier.
func (e *Engine) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	profile, err := e.resolve(ctx, req.Facility.UseCaseSlug)
	if err != nil {
		return Quote{}, err
	}
	sz, err := e.SizeFacility(ctx, req.Facility)
	if err != nil {
		return Quote{}, err
	}
	breakdown, err := e.PriceEquipment(ctx, sz, req.Equipment)
	if err != nil {
		return Quote{}, err
	}

	rates := req.Rates
	if rates.ElectricityRate == 0 {
		rates.ElectricityRate = req.Facility.ElectricityRate
	}
	report, err := e.ComputeFinancials(ctx, breakdown, rates, req.Financial)
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{
		ID:            uuid.NewString(),
		CreatedAt:     e.opts.Now().UTC(),
		UseCaseName:   profile.Name,
		Sizing:        sz,
		Costs:         breakdown,
		Financials:    report,
		IRRPreviewPct: financial.EstimateIRR(report.Input),
		Source:        report.Source,
	}
	quote.Warnings = append(quote.Warnings, sz.Warnings...)
	quote.Warnings = append(quote.Warnings, breakdown.Fallbacks...)
	quote.Warnings = append(quote.Warnings, breakdown.Warnings...)
	quote.Warnings = append(quote.Warnings, report.Warnings...)

	e.logger.Info("quote generated",
		zap.String("op", "engine.Quote"),
		zap.String("quote_id", quote.ID),
		zap.String("use_case", profile.Slug),
		zap.Float64("power_mw", sz.PowerMW),
		zap.Float64("energy_mwh", sz.EnergyMWh),
		zap.Float64("total_cost", breakdown.TotalProjectCost),
		zap.Float64("npv", report.Metrics.NPV),
		zap.String("source", string(quote.Source)),
	)
	return quote, nil
}

// UseCases lists the slugs the catalog knows.
func (e *Engine) UseCases(ctx context.Context) ([]string, error) {
	lister, ok := e.catalog.(usecase.Lister)
	if !ok {
		return nil, fmt.Errorf("catalog cannot list use cases")
	}
	return lister.Slugs(ctx)
}

func renewablesOf(b cost.Breakdown) revenue.Renewables {
	var r revenue.Renewables
	for _, item := range b.Items {
		switch item.Category {
		case pricing.Solar:
			r.SolarMW += item.Quantity / constants.KWPerMW
		case pricing.Wind:
			r.WindMW += item.Quantity / constants.KWPerMW
		}
	}
	return r
}

// IsInvalidInput reports whether err rejects a caller-supplied value.
func IsInvalidInput(err error) bool {
	var numeric *sizing.InvalidNumericInputError
	var fin *financial.InvalidInputError
	return errors.As(err, &numeric) ||
		errors.As(err, &fin) ||
		errors.Is(err, sizing.ErrUnknownGridReliability) ||
		errors.Is(err, cost.ErrUnknownEquipment) ||
		errors.Is(err, ErrInvalidFinancing)
}
