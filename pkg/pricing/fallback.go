package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/iwvelando/bess-engine/pkg/bounded"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"go.uber.org/zap"
)

// FallbackTable guards a primary table with a deadline and the builtin
// constants.
type FallbackTable struct {
	primary Table
	builtin *BuiltinTable
	timeout time.Duration
	logger  *zap.Logger
}

// WithFallback wraps primary. A nil primary serves builtin constants directly.
func WithFallback(primary Table, timeout time.Duration, logger *zap.Logger) *FallbackTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackTable{primary: primary, builtin: Builtin(), timeout: timeout, logger: logger}
}

// Lookup always yields a price for a known category. When the primary fails
// or times out, the builtin price is returned tagged fallback together with a
// non-nil *UnavailableError describing what was replaced; the caller decides
// whether to record it. Unknown categories return the zero Price and the error.
func (f *FallbackTable) Lookup(ctx context.Context, category Category, tier ScaleTier, region string) (Price, error) {
	if f.primary == nil {
		return f.builtin.Lookup(ctx, category, tier, region)
	}

	price, err := bounded.Call(ctx, f.timeout, func(callCtx context.Context) (Price, error) {
		return f.primary.Lookup(callCtx, category, tier, region)
	})
	if err == nil {
		return price, nil
	}

	fallback, fbErr := f.builtin.Lookup(ctx, category, tier, region)
	if fbErr != nil {
		return Price{}, fbErr
	}
	fallback.Source = provenance.Fallback

	f.logger.Warn("pricing lookup failed, using builtin constant",
		zap.String("op", "pricing.Lookup"),
		zap.String("category", string(category)),
		zap.String("tier", string(tier)),
		zap.String("region", region),
		zap.Float64("unit_cost", fallback.UnitCost),
		zap.Error(err),
	)
	return fallback, asUnavailable(err, category, tier, region)
}

func asUnavailable(err error, category Category, tier ScaleTier, region string) *UnavailableError {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue
	}
	return &UnavailableError{Category: category, Tier: tier, Region: NormalizeRegion(region), Err: err}
}
