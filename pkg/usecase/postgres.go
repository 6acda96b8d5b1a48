package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iwvelando/bess-engine/pkg/provenance"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of *pgxpool.Pool used by the Postgres catalog.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const resolveProfileSQL = `
	SELECT slug, name, category, critical,
	       scaling_mode, scaling_attribute, reference_unit, reference_power_mw,
	       reference_duration_hours, default_attribute_value, diversity_factor, devices,
	       demand_charge_multiplier, default_savings_pct, backup_value_multiplier
	FROM use_case_profiles
	WHERE slug = $1 AND active
	LIMIT 1
`

// PostgresCatalog resolves profiles from the use_case_profiles table.
type PostgresCatalog struct {
	db Querier
}

// NewPostgresCatalog wraps a pgx pool (or any Querier).
func NewPostgresCatalog(db Querier) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Resolve loads one profile. Missing rows map to ErrNotFound.
func (c *PostgresCatalog) Resolve(ctx context.Context, slug string) (UseCaseProfile, error) {
	var (
		p          UseCaseProfile
		devicesRaw []byte
	)
	normalized := NormalizeSlug(slug)
	err := c.db.QueryRow(ctx, resolveProfileSQL, normalized).Scan(
		&p.Slug, &p.Name, &p.Category, &p.Critical,
		&p.ScalingRule.Mode, &p.ScalingRule.AttributeName, &p.ScalingRule.ReferenceUnit, &p.ScalingRule.ReferencePowerMW,
		&p.ScalingRule.ReferenceDurationHours, &p.ScalingRule.DefaultAttributeValue, &p.ScalingRule.DiversityFactor, &devicesRaw,
		&p.FinancialSensitivity.DemandChargeMultiplier, &p.FinancialSensitivity.DefaultSavingsPct, &p.FinancialSensitivity.BackupValueMultiplier,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UseCaseProfile{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
		}
		return UseCaseProfile{}, fmt.Errorf("failed to query use case %s: %w", normalized, err)
	}

	if len(devicesRaw) > 0 {
		if err := json.Unmarshal(devicesRaw, &p.ScalingRule.Devices); err != nil {
			return UseCaseProfile{}, fmt.Errorf("use case %s: invalid devices column: %w", normalized, err)
		}
	}

	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return UseCaseProfile{}, err
	}
	p.Source = provenance.Database
	return p, nil
}
