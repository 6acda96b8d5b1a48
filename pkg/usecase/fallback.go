package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/bess-engine/pkg/bounded"
	"github.com/iwvelando/bess-engine/pkg/provenance"
	"go.uber.org/zap"
)

// TimeoutCatalog resolves through a primary catalog under a deadline and
// falls back to a secondary catalog when the primary fails or hangs.
type TimeoutCatalog struct {
	primary  Catalog
	fallback Catalog
	timeout  time.Duration
	logger   *zap.Logger
}

// WithTimeout wraps primary. A nil fallback uses the builtin catalog.
func WithTimeout(primary, fallback Catalog, timeout time.Duration, logger *zap.Logger) *TimeoutCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = Builtin()
	}
	return &TimeoutCatalog{primary: primary, fallback: fallback, timeout: timeout, logger: logger}
}

// Resolve returns the primary profile when available. ErrNotFound from the
// primary is authoritative and is returned unchanged; any other failure is
// recovered from the fallback catalog with the profile tagged fallback.
func (c *TimeoutCatalog) Resolve(ctx context.Context, slug string) (UseCaseProfile, error) {
	profile, err := bounded.Call(ctx, c.timeout, func(callCtx context.Context) (UseCaseProfile, error) {
		return c.primary.Resolve(callCtx, slug)
	})
	if err == nil {
		return profile, nil
	}
	if errors.Is(err, ErrNotFound) {
		return UseCaseProfile{}, err
	}
	if ctx.Err() != nil {
		return UseCaseProfile{}, ctx.Err()
	}

	c.logger.Warn("use case catalog unavailable, using fallback profile",
		zap.String("op", "usecase.Resolve"),
		zap.String("slug", slug),
		zap.Error(err),
	)
	profile, fbErr := c.fallback.Resolve(ctx, slug)
	if fbErr != nil {
		return UseCaseProfile{}, fmt.Errorf("fallback catalog: %w (primary: %v)", fbErr, err)
	}
	profile.Source = provenance.Fallback
	return profile, nil
}

// Slugs lists the primary catalog's slugs when it can enumerate them, else the
// fallback's.
func (c *TimeoutCatalog) Slugs(ctx context.Context) ([]string, error) {
	if lister, ok := c.primary.(Lister); ok {
		slugs, err := bounded.Call(ctx, c.timeout, lister.Slugs)
		if err == nil {
			return slugs, nil
		}
		c.logger.Warn("use case catalog listing failed, using fallback",
			zap.String("op", "usecase.Slugs"),
			zap.Error(err),
		)
	}
	if lister, ok := c.fallback.(Lister); ok {
		return lister.Slugs(ctx)
	}
	return nil, fmt.Errorf("use case catalog cannot list slugs")
}
