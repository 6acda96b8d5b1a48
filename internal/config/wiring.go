package config

import (
	"context"
	"fmt"

	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/pkg/cache"
	"github.com/iwvelando/bess-engine/pkg/financial"
	"github.com/iwvelando/bess-engine/pkg/pricing"
	"github.com/iwvelando/bess-engine/pkg/usecase"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Collaborators are the external resources an engine is built over. Close
// releases every pool and client that was opened.
type Collaborators struct {
	Catalog usecase.Catalog
	Pricing pricing.Table
	Remote  cache.RemoteStore

	closers []func()
}

// Close releases the opened resources in reverse order.
func (c *Collaborators) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Connect opens the configured catalog, pricing table and shared cache.
// Postgres sources that name the same URL share one pool.
func (c *Configuration) Connect(ctx context.Context, logger *zap.Logger) (*Collaborators, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := &Collaborators{}
	pools := map[string]*pgxpool.Pool{}
	pool := func(url string) (*pgxpool.Pool, error) {
		if p, ok := pools[url]; ok {
			return p, nil
		}
		p, err := openPool(ctx, url)
		if err != nil {
			return nil, err
		}
		pools[url] = p
		out.closers = append(out.closers, p.Close)
		return p, nil
	}

	switch c.Catalog.Source {
	case SourceFile:
		catalog, err := usecase.LoadFile(c.Catalog.File)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("load use case catalog: %w", err)
		}
		out.Catalog = catalog
	case SourcePostgres:
		p, err := pool(c.Catalog.DatabaseURL)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("connect use case catalog: %w", err)
		}
		out.Catalog = usecase.NewPostgresCatalog(p)
	default:
		out.Catalog = usecase.Builtin()
	}
	out.Catalog = usecase.WithTimeout(out.Catalog, nil, c.Catalog.Timeout, logger)

	switch c.Pricing.Source {
	case SourcePostgres:
		p, err := pool(c.Pricing.DatabaseURL)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("connect pricing table: %w", err)
		}
		out.Pricing = pricing.NewPostgresTable(p)
	default:
		out.Pricing = pricing.Builtin()
	}

	if c.Cache.Redis.Address != "" {
		client, store := cache.DialRedis(c.Cache.Redis)
		out.Remote = store
		out.closers = append(out.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client",
					zap.String("op", "config.Connect"),
					zap.Error(err),
				)
			}
		})
	}

	logger.Info("collaborators connected",
		zap.String("op", "config.Connect"),
		zap.String("catalog", c.Catalog.Source),
		zap.String("pricing", c.Pricing.Source),
		zap.Bool("shared_cache", out.Remote != nil),
	)
	return out, nil
}

func openPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return p, nil
}

// EngineOptions maps the configuration onto engine options. remote may be nil.
func (c *Configuration) EngineOptions(logger *zap.Logger, remote cache.RemoteStore) engine.Options {
	opexPct := c.Financial.OpexPct
	return engine.Options{
		Cache: cache.Options{
			TTL:        c.Cache.TTL,
			MaxEntries: c.Cache.MaxEntries,
			Remote:     remote,
			Logger:     logger,
		},
		Defaults: financial.Input{
			DegradationRatePct:     c.Financial.DegradationRatePct,
			PriceEscalationRatePct: c.Financial.EscalationRatePct,
			DiscountRatePct:        c.Financial.DiscountRatePct,
			ProjectLifetimeYears:   c.Financial.ProjectLifetimeYears,
		},
		ITCPct:              c.Financial.ITCPct,
		OpexPct:             &opexPct,
		CollaboratorTimeout: c.Pricing.Timeout,
		StaleAfterMonths:    c.Pricing.StaleAfterMonths,
	}
}

// NewEngine connects the collaborators and builds an engine over them. The
// returned Collaborators must be closed by the caller.
func (c *Configuration) NewEngine(ctx context.Context, logger *zap.Logger) (*engine.Engine, *Collaborators, error) {
	collab, err := c.Connect(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	e := engine.New(logger, collab.Catalog, collab.Pricing, c.EngineOptions(logger, collab.Remote))
	return e, collab, nil
}
