package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of *pgxpool.Pool used by the Postgres table.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Region-specific rows win over the default row.
const lookupPriceSQL = `
	SELECT unit_cost, currency, as_of
	FROM bess_pricing
	WHERE category = $1 AND scale_tier = $2 AND region IN ($3, 'default')
	ORDER BY CASE WHEN region = $3 THEN 0 ELSE 1 END, as_of DESC
	LIMIT 1
`

// PostgresTable reads prices from the bess_pricing table.
type PostgresTable struct {
	db Querier
}

// NewPostgresTable wraps a pgx pool (or any Querier).
func NewPostgresTable(db Querier) *PostgresTable {
	return &PostgresTable{db: db}
}

// Lookup returns the newest matching row. Missing rows and query failures
// are reported as *UnavailableError.
func (t *PostgresTable) Lookup(ctx context.Context, category Category, tier ScaleTier, region string) (Price, error) {
	region = NormalizeRegion(region)
	var (
		p    Price
		asOf time.Time
	)
	err := t.db.QueryRow(ctx, lookupPriceSQL, string(category), string(tier), region).Scan(&p.UnitCost, &p.Currency, &asOf)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrUnavailable
		} else {
			err = fmt.Errorf("query bess_pricing: %w", err)
		}
		return Price{}, &UnavailableError{Category: category, Tier: tier, Region: region, Err: err}
	}
	if p.UnitCost < 0 {
		return Price{}, &UnavailableError{Category: category, Tier: tier, Region: region,
			Err: fmt.Errorf("negative unit cost %.2f", p.UnitCost)}
	}
	if p.Currency == "" {
		p.Currency = Currency
	}
	p.AsOf = asOf
	p.Source = provenance.Database
	return p, nil
}
