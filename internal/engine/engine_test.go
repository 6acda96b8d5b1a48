package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/bess-engine/pkg/cost"
	"github.com/iwvelando/bess-engine/pkg/financial"
	"github.com/iwvelando/bess-engine/pkg/financing"
	"github.com/iwvelando/bess-engine/pkg/pricing"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/iwvelando/bess-engine/pkg/revenue"
	"github.com/iwvelando/bess-engine/pkg/sizing"
	"github.com/iwvelando/bess-engine/pkg/testutil"
	"github.com/iwvelando/bess-engine/pkg/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCatalog struct{}

func (failingCatalog) Resolve(context.Context, string) (usecase.UseCaseProfile, error) {
	return usecase.UseCaseProfile{}, errors.New("connection refused")
}

type failingTable struct{}

func (failingTable) Lookup(context.Context, pricing.Category, pricing.ScaleTier, string) (pricing.Price, error) {
	return pricing.Price{}, errors.New("connection refused")
}

type countingCatalog struct {
	mu    sync.Mutex
	calls int
	inner usecase.Catalog
}

func (c *countingCatalog) Resolve(ctx context.Context, slug string) (usecase.UseCaseProfile, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Resolve(ctx, slug)
}

func hotelRequest() QuoteRequest {
	return QuoteRequest{
		Facility:  testutil.HotelFacility(),
		Equipment: cost.EquipmentConfig{Region: "us"},
		Rates:     testutil.HotelRates(),
	}
}

func TestQuoteHotel(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := New(nil, nil, nil, Options{Now: func() time.Time { return fixed }})

	q, err := e.Quote(context.Background(), hotelRequest())
	require.NoError(t, err)

	_, err = uuid.Parse(q.ID)
	assert.NoError(t, err)
	assert.Equal(t, fixed, q.CreatedAt)
	assert.Equal(t, "Hotel", q.UseCaseName)

	assert.InDelta(t, 1.465, q.Sizing.PowerMW, 1e-9)
	assert.InDelta(t, 5.86, q.Sizing.EnergyMWh, 1e-9)
	assert.InDelta(t, 3512923.50, q.Costs.TotalProjectCost, 0.001)

	fin := q.Financials
	assert.InDelta(t, 272709.75, fin.Revenue.Value(revenue.PeakShaving), 0.001)
	assert.InDelta(t, 263700.00, fin.Revenue.Value(revenue.DemandCharge), 0.001)
	assert.InDelta(t, 536409.75, fin.Revenue.Total, 0.001)
	assert.InDelta(t, 52693.85, fin.AnnualOpex, 0.001)
	assert.Equal(t, 0.0, fin.ITCAmount)
	assert.InDelta(t, 3512923.50, fin.NetCapex, 0.001)
	assert.Nil(t, fin.Financing)

	expected, err := financial.Evaluate(fin.Input)
	require.NoError(t, err)
	assert.Equal(t, expected.NPV, fin.Metrics.NPV)
	assert.Equal(t, expected.PaybackYears, fin.Metrics.PaybackYears)
	require.NotNil(t, fin.Metrics.IRRPct)
	assert.Equal(t, *expected.IRRPct, *fin.Metrics.IRRPct)
	require.NotNil(t, fin.Metrics.LevelizedCostOfStorage)

	require.NotNil(t, q.IRRPreviewPct)
	assert.Equal(t, provenance.Calculated, q.Source)
}

func TestComputeFinancialsAppliesIncentives(t *testing.T) {
	e := New(nil, nil, nil, Options{ITCPct: 30})
	ctx := context.Background()

	sz, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)
	b, err := e.PriceEquipment(ctx, sz, cost.EquipmentConfig{Region: "us"})
	require.NoError(t, err)

	report, err := e.ComputeFinancials(ctx, b, testutil.HotelRates(), FinancialParams{})
	require.NoError(t, err)
	assert.Equal(t, 30.0, report.ITCPct)
	assert.InDelta(t, 1053877.05, report.ITCAmount, 0.001)
	assert.InDelta(t, 2459046.45, report.NetCapex, 0.001)
	// Opex is charged on the gross project cost.
	assert.InDelta(t, 52693.85, report.AnnualOpex, 0.001)

	report, err = e.ComputeFinancials(ctx, b, testutil.HotelRates(), FinancialParams{
		ITCPct:         testutil.Float(0),
		OpexPct:        testutil.Float(2),
		LifetimeParams: financial.LifetimeParams{ProjectLifetimeYears: testutil.Int(15), DiscountRatePct: testutil.Float(6)},
		Financing:      &financing.Terms{DebtPct: 60, InterestRatePct: 7, TermYears: 10},
	})
	require.NoError(t, err)
	assert.InDelta(t, 3512923.50, report.NetCapex, 0.001)
	assert.InDelta(t, 70258.47, report.AnnualOpex, 0.001)
	assert.Equal(t, 15, report.Input.ProjectLifetimeYears)
	assert.Equal(t, 6.0, report.Input.DiscountRatePct)
	assert.Len(t, report.Metrics.CashFlows, 15)
	require.NotNil(t, report.Financing)
	assert.InDelta(t, 2107754.10, report.Financing.Principal, 0.001)
}

func TestOptionsOpexZeroIsKept(t *testing.T) {
	tests := []struct {
		name string
		opex *float64
		want float64
	}{
		{"unset uses default", nil, 52693.85},
		{"explicit zero", testutil.Float(0), 0},
		{"explicit rate", testutil.Float(2), 70258.47},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(nil, nil, nil, Options{OpexPct: tt.opex})
			q, err := e.Quote(context.Background(), hotelRequest())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, q.Financials.AnnualOpex, 0.001)
		})
	}
}

func TestComputeFinancialsRejectsInvalidParams(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	ctx := context.Background()
	sz, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)
	b, err := e.PriceEquipment(ctx, sz, cost.EquipmentConfig{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params FinancialParams
	}{
		{"itc above 100", FinancialParams{ITCPct: testutil.Float(120)}},
		{"negative opex", FinancialParams{OpexPct: testutil.Float(-1)}},
		{"zero lifetime", FinancialParams{LifetimeParams: financial.LifetimeParams{ProjectLifetimeYears: testutil.Int(0)}}},
		{"bad financing", FinancialParams{Financing: &financing.Terms{DebtPct: 50}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ComputeFinancials(ctx, b, revenue.TariffInput{}, tt.params)
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err), "%v", err)
		})
	}
}

func TestComputeFinancialsRefusesTamperedBreakdown(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	ctx := context.Background()
	sz, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)
	b, err := e.PriceEquipment(ctx, sz, cost.EquipmentConfig{Region: "us"})
	require.NoError(t, err)

	b.TotalProjectCost += 0.01
	_, err = e.ComputeFinancials(ctx, b, testutil.HotelRates(), FinancialParams{})
	var mismatch *cost.ReconciliationError
	require.ErrorAs(t, err, &mismatch)
	assert.False(t, IsInvalidInput(err))
}

func TestComputeFinancialsRefusesResizedBreakdown(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	ctx := context.Background()
	sz, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)
	b, err := e.PriceEquipment(ctx, sz, cost.EquipmentConfig{Region: "us"})
	require.NoError(t, err)

	b.Sizing.PowerMW *= 10
	b.Sizing.EnergyMWh *= 10
	_, err = e.ComputeFinancials(ctx, b, testutil.HotelRates(), FinancialParams{})
	var mismatch *cost.ReconciliationError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "battery quantity", mismatch.Component)
}

func TestPriceEquipmentRejectsInconsistentEnergy(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	ctx := context.Background()
	sz, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)

	sz.EnergyMWh = sz.PowerMW
	_, err = e.PriceEquipment(ctx, sz, cost.EquipmentConfig{Region: "us"})
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
	var invalid *sizing.InvalidNumericInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "sizing.energyMWh", invalid.Field)
}

func TestSizeFacilityUnknownUseCase(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	for _, slug := range []string{"spaceport", ""} {
		_, err := e.SizeFacility(context.Background(), sizing.FacilityInput{UseCaseSlug: slug})
		assert.ErrorIs(t, err, sizing.ErrUnknownUseCase, "slug %q", slug)
	}
}

func TestSizeFacilityIsCached(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	ctx := context.Background()

	first, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)
	second, err := e.SizeFacility(ctx, testutil.HotelFacility())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stats := e.CacheStats()["sizing"]
	assert.Equal(t, int64(1), stats.Computations)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestPurgeCacheForcesRecompute(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	ctx := context.Background()

	_, err := e.Quote(ctx, hotelRequest())
	require.NoError(t, err)
	e.PurgeCache()
	_, err = e.Quote(ctx, hotelRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(2), e.CacheStats()["sizing"].Computations)
	assert.Equal(t, int64(2), e.CacheStats()["financial"].Computations)
}

func TestSizeFacilityRejectsInvalidInputWithoutCaching(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	facility := testutil.HotelFacility()
	facility.ExistingSolarMW = -1

	_, err := e.SizeFacility(context.Background(), facility)
	var invalid *sizing.InvalidNumericInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, int64(0), e.CacheStats()["sizing"].Computations)
	assert.True(t, IsInvalidInput(err))
}

func TestCatalogOutageFallsBack(t *testing.T) {
	e := New(nil, failingCatalog{}, nil, Options{CollaboratorTimeout: 50 * time.Millisecond})
	sz, err := e.SizeFacility(context.Background(), testutil.HotelFacility())
	require.NoError(t, err)
	assert.Equal(t, provenance.Fallback, sz.DataSource)
	assert.InDelta(t, 1.465, sz.PowerMW, 1e-9)
}

func TestPricingOutageKeepsEveryLineItem(t *testing.T) {
	e := New(nil, nil, failingTable{}, Options{CollaboratorTimeout: 50 * time.Millisecond})
	q, err := e.Quote(context.Background(), hotelRequest())
	require.NoError(t, err)

	assert.Equal(t, provenance.Fallback, q.Costs.Source)
	assert.Equal(t, provenance.Fallback, q.Source)
	require.NotNil(t, testutil.FindLineItem(q.Costs.Items, pricing.Battery))
	require.NotNil(t, testutil.FindLineItem(q.Costs.Items, pricing.PCS))
	assert.InDelta(t, 3512923.50, q.Costs.TotalProjectCost, 0.001)
	assert.NotEmpty(t, q.Warnings)
}

func TestConcurrentQuotesShareComputation(t *testing.T) {
	catalog := &countingCatalog{inner: usecase.Builtin()}
	e := New(nil, catalog, nil, Options{})

	var wg sync.WaitGroup
	quotes := make([]Quote, 8)
	errs := make([]error, 8)
	for i := range quotes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			quotes[i], errs[i] = e.Quote(context.Background(), hotelRequest())
		}(i)
	}
	wg.Wait()

	for i := range quotes {
		require.NoError(t, errs[i])
		assert.Equal(t, quotes[0].Financials.Metrics.NPV, quotes[i].Financials.Metrics.NPV)
		if i > 0 {
			assert.NotEqual(t, quotes[0].ID, quotes[i].ID)
		}
	}
	assert.Equal(t, int64(1), e.CacheStats()["sizing"].Computations)
	assert.Equal(t, int64(1), e.CacheStats()["financial"].Computations)
}

func TestUseCases(t *testing.T) {
	e := New(nil, nil, nil, Options{})
	slugs, err := e.UseCases(context.Background())
	require.NoError(t, err)
	assert.Contains(t, slugs, "hotel")
	assert.Contains(t, slugs, "ev-charging")
}
