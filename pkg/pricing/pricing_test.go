package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iwvelando/bess-engine/pkg/datetime"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		name      string
		energyMWh float64
		powerMW   float64
		want      ScaleTier
	}{
		{"small commercial", 5.86, 1.465, Small},
		{"power threshold", 10, 5, Large},
		{"energy threshold", 24, 4, Large},
		{"just below", 19.9, 4.99, Small},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierFor(tt.energyMWh, tt.powerMW))
		})
	}
}

func TestBuiltinLookup(t *testing.T) {
	table := Builtin()
	ctx := context.Background()

	tests := []struct {
		category Category
		tier     ScaleTier
		region   string
		want     float64
	}{
		{Battery, Small, "us", 350},
		{Battery, Large, "us", 250},
		{PCS, Large, "eu", 100},
		{GeneratorDiesel, Small, "", 500},
		{EVChargerDCFast150, Large, "us", 95000},
		{BOSPct, Small, "us", 0.12},
		{EPCPct, Large, "us", 0.15},
		{TariffPct, Small, "US", 0.25},
		{TariffPct, Small, "mars", 0},
		{ShippingPerKg, Small, "eu", 0.60},
		{ShippingPerKg, Small, "mars", 0.80},
	}
	for _, tt := range tests {
		price, err := table.Lookup(ctx, tt.category, tt.tier, tt.region)
		require.NoError(t, err, tt.category)
		assert.Equal(t, tt.want, price.UnitCost, "%s/%s/%s", tt.category, tt.tier, tt.region)
		assert.Equal(t, provenance.Calculated, price.Source)
		assert.Equal(t, Currency, price.Currency)
	}

	_, err := table.Lookup(ctx, Category("flux-capacitor"), Small, "us")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIsStale(t *testing.T) {
	now := datetime.MustParseMonth("2026-10")
	fresh := Price{AsOf: datetime.MustParseMonth("2026-01")}
	old := Price{AsOf: datetime.MustParseMonth("2024-06")}

	assert.False(t, IsStale(fresh, now, 12))
	assert.True(t, IsStale(old, now, 12))
	assert.False(t, IsStale(old, now, 0))
	assert.False(t, IsStale(Price{}, now, 12))
}

type priceRow struct {
	cost     float64
	currency string
	asOf     time.Time
	err      error
}

func (r priceRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*float64) = r.cost
	*dest[1].(*string) = r.currency
	*dest[2].(*time.Time) = r.asOf
	return nil
}

type priceQuerier struct {
	row  priceRow
	args []any
}

func (q *priceQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.args = args
	return q.row
}

func TestPostgresTable(t *testing.T) {
	asOf := datetime.MustParseMonth("2026-03")
	q := &priceQuerier{row: priceRow{cost: 240, currency: "USD", asOf: asOf}}
	table := NewPostgresTable(q)

	price, err := table.Lookup(context.Background(), Battery, Large, " EU ")
	require.NoError(t, err)
	assert.Equal(t, []any{"battery", "large", "eu"}, q.args)
	assert.Equal(t, 240.0, price.UnitCost)
	assert.Equal(t, provenance.Database, price.Source)
	assert.Equal(t, asOf, price.AsOf)

	missing := NewPostgresTable(&priceQuerier{row: priceRow{err: pgx.ErrNoRows}})
	_, err = missing.Lookup(context.Background(), Battery, Large, "eu")
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Battery, ue.Category)

	negative := NewPostgresTable(&priceQuerier{row: priceRow{cost: -1, asOf: asOf}})
	_, err = negative.Lookup(context.Background(), PCS, Small, "us")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type stubTable struct {
	price Price
	err   error
	delay time.Duration
}

func (s stubTable) Lookup(context.Context, Category, ScaleTier, string) (Price, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.price, s.err
}

func TestWithFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("primary price passes through", func(t *testing.T) {
		table := WithFallback(stubTable{price: Price{UnitCost: 300, Source: provenance.Database}}, time.Second, nil)
		price, err := table.Lookup(ctx, Battery, Small, "us")
		require.NoError(t, err)
		assert.Equal(t, 300.0, price.UnitCost)
		assert.Equal(t, provenance.Database, price.Source)
	})

	t.Run("unavailable falls back to builtin", func(t *testing.T) {
		primary := stubTable{err: &UnavailableError{Category: Battery, Tier: Small, Region: "us", Err: ErrUnavailable}}
		table := WithFallback(primary, time.Second, nil)
		price, err := table.Lookup(ctx, Battery, Small, "us")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 350.0, price.UnitCost)
		assert.Equal(t, provenance.Fallback, price.Source)
	})

	t.Run("timeout falls back to builtin", func(t *testing.T) {
		table := WithFallback(stubTable{price: Price{UnitCost: 1}, delay: 200 * time.Millisecond}, 10*time.Millisecond, nil)
		price, err := table.Lookup(ctx, PCS, Large, "us")
		var ue *UnavailableError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, PCS, ue.Category)
		assert.Equal(t, 100.0, price.UnitCost)
		assert.Equal(t, provenance.Fallback, price.Source)
	})

	t.Run("generic error is wrapped", func(t *testing.T) {
		table := WithFallback(stubTable{err: errors.New("boom")}, time.Second, nil)
		price, err := table.Lookup(ctx, Solar, Small, "eu")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 1200.0, price.UnitCost)
	})

	t.Run("nil primary serves builtin", func(t *testing.T) {
		table := WithFallback(nil, time.Second, nil)
		price, err := table.Lookup(ctx, Wind, Large, "us")
		require.NoError(t, err)
		assert.Equal(t, provenance.Calculated, price.Source)
		assert.Equal(t, 1600.0, price.UnitCost)
	})
}
