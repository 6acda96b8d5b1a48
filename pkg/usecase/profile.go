// Package usecase defines the per-industry scaling rules used to size a
// facility and the catalogs that resolve them.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iwvelando/bess-engine/pkg/provenance"
)

// ErrNotFound is returned when a catalog has no profile for a slug.
var ErrNotFound = errors.New("use case not found")

// Scaling modes.
const (
	// ModeRatio scales a reference power by one facility attribute.
	ModeRatio = "ratio"
	// ModeDevices sums rated device power times declared quantities.
	ModeDevices = "devices"
)

// UseCaseProfile is the immutable description of one industry template.
type UseCaseProfile struct {
	Slug                 string               `yaml:"slug" json:"slug"`
	Name                 string               `yaml:"name" json:"name"`
	Category             string               `yaml:"category" json:"category"`
	Critical             bool                 `yaml:"critical,omitempty" json:"critical,omitempty"`
	ScalingRule          ScalingRule          `yaml:"scalingRule" json:"scalingRule"`
	FinancialSensitivity FinancialSensitivity `yaml:"financialSensitivity" json:"financialSensitivity"`
	Source               provenance.Source    `yaml:"-" json:"source"`
}

// ScalingRule converts facility attributes into a power scale.
type ScalingRule struct {
	Mode                   string       `yaml:"mode,omitempty" json:"mode,omitempty"`
	AttributeName          string       `yaml:"attributeName,omitempty" json:"attributeName,omitempty"`
	ReferenceUnit          float64      `yaml:"referenceUnit,omitempty" json:"referenceUnit,omitempty"`
	ReferencePowerMW       float64      `yaml:"referencePowerMW,omitempty" json:"referencePowerMW,omitempty"`
	ReferenceDurationHours float64      `yaml:"referenceDurationHours" json:"referenceDurationHours"`
	DefaultAttributeValue  float64      `yaml:"defaultAttributeValue,omitempty" json:"defaultAttributeValue,omitempty"`
	Devices                []DeviceRule `yaml:"devices,omitempty" json:"devices,omitempty"`
	DiversityFactor        float64      `yaml:"diversityFactor,omitempty" json:"diversityFactor,omitempty"`
}

// DeviceRule maps a facility attribute holding a device count to a device type
// whose rated power lives in the sizing device table.
type DeviceRule struct {
	Attribute  string `yaml:"attribute" json:"attribute"`
	DeviceType string `yaml:"deviceType" json:"deviceType"`
}

// FinancialSensitivity tunes the revenue streams for an industry.
type FinancialSensitivity struct {
	DemandChargeMultiplier float64 `yaml:"demandChargeMultiplier" json:"demandChargeMultiplier"`
	DefaultSavingsPct      float64 `yaml:"defaultSavingsPct" json:"defaultSavingsPct"`
	BackupValueMultiplier  float64 `yaml:"backupValueMultiplier,omitempty" json:"backupValueMultiplier,omitempty"`
}

// Catalog resolves use case slugs to profiles.
type Catalog interface {
	Resolve(ctx context.Context, slug string) (UseCaseProfile, error)
}

// Lister is implemented by catalogs that can enumerate their slugs.
type Lister interface {
	Slugs(ctx context.Context) ([]string, error)
}

// NormalizeSlug lower-cases a slug and folds spaces and underscores into dashes.
func NormalizeSlug(slug string) string {
	s := strings.ToLower(strings.TrimSpace(slug))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.Join(strings.Fields(s), "-")
	return s
}

// IsDeviceDriven reports whether the profile sizes from device inventories.
func (p UseCaseProfile) IsDeviceDriven() bool {
	return p.ScalingRule.Mode == ModeDevices
}

// Validate checks that a profile can drive the sizing calculator.
func (p UseCaseProfile) Validate() error {
	if p.Slug == "" {
		return fmt.Errorf("use case profile missing slug")
	}
	rule := p.ScalingRule
	if rule.ReferenceDurationHours <= 0 {
		return fmt.Errorf("use case %s: referenceDurationHours must be positive", p.Slug)
	}
	switch rule.Mode {
	case "", ModeRatio:
		if rule.AttributeName == "" {
			return fmt.Errorf("use case %s: ratio rule requires attributeName", p.Slug)
		}
		if rule.ReferenceUnit <= 0 || rule.ReferencePowerMW <= 0 {
			return fmt.Errorf("use case %s: ratio rule requires positive referenceUnit and referencePowerMW", p.Slug)
		}
	case ModeDevices:
		if len(rule.Devices) == 0 {
			return fmt.Errorf("use case %s: devices rule requires at least one device", p.Slug)
		}
		if rule.DiversityFactor <= 0 || rule.DiversityFactor > 1 {
			return fmt.Errorf("use case %s: diversityFactor must be in (0, 1]", p.Slug)
		}
	default:
		return fmt.Errorf("use case %s: unknown scaling mode %q", p.Slug, rule.Mode)
	}
	if p.FinancialSensitivity.DemandChargeMultiplier < 0 || p.FinancialSensitivity.BackupValueMultiplier < 0 {
		return fmt.Errorf("use case %s: financial multipliers cannot be negative", p.Slug)
	}
	return nil
}

// withDefaults fills optional fields so downstream code never branches on zero values.
func (p UseCaseProfile) withDefaults() UseCaseProfile {
	p.Slug = NormalizeSlug(p.Slug)
	if p.ScalingRule.Mode == "" {
		p.ScalingRule.Mode = ModeRatio
	}
	if p.ScalingRule.DefaultAttributeValue <= 0 {
		p.ScalingRule.DefaultAttributeValue = p.ScalingRule.ReferenceUnit
		if p.ScalingRule.Mode == ModeDevices {
			p.ScalingRule.DefaultAttributeValue = 1
		}
	}
	if p.FinancialSensitivity.DemandChargeMultiplier == 0 {
		p.FinancialSensitivity.DemandChargeMultiplier = 1
	}
	if p.FinancialSensitivity.BackupValueMultiplier == 0 {
		p.FinancialSensitivity.BackupValueMultiplier = 1
		if p.Critical {
			p.FinancialSensitivity.BackupValueMultiplier = 2
		}
	}
	return p
}
