// Package output provides utilities for formatting and displaying quotes.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/bess-engine/internal/engine"
	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/iwvelando/bess-engine/pkg/financial"
	"github.com/iwvelando/bess-engine/pkg/format"
	"github.com/iwvelando/bess-engine/pkg/optimization"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report is a quote plus the optional duration optimization that produced it.
type Report struct {
	Quote        engine.Quote          `json:"quote"`
	Optimization *optimization.Summary `json:"optimization,omitempty"`
}

// Write renders report in the named format.
func Write(w io.Writer, outputFormat string, report Report) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, report)
	case constants.OutputFormatCSV:
		return CsvFormat(w, report)
	case constants.OutputFormatJSON:
		return JSONFormat(w, report)
	}
	return fmt.Errorf("unsupported output format %q", outputFormat)
}

// PrettyFormat outputs a human-readable rather than machine-readable summary.
func PrettyFormat(w io.Writer, report Report) error {
	p := message.NewPrinter(language.English)
	q := report.Quote
	sz := q.Sizing
	fin := q.Financials
	m := fin.Metrics

	lines := []string{
		fmt.Sprintf("--- Quote %s for %s (%s) ---", q.ID, q.UseCaseName, sz.UseCaseSlug),
		fmt.Sprintf("Power:          %s", format.Power(sz.PowerMW)),
		fmt.Sprintf("Duration:       %.2f h", sz.DurationHours),
		fmt.Sprintf("Energy:         %s", format.Energy(sz.EnergyMWh)),
		fmt.Sprintf("Net peak:       %s", format.Power(sz.NetPeakDemandMW)),
	}
	if sz.GenerationRecommendedMW != nil {
		lines = append(lines, fmt.Sprintf("Generation:     %s recommended", format.Power(*sz.GenerationRecommendedMW)))
	}
	if sz.GridShortfallMW != nil {
		lines = append(lines, fmt.Sprintf("Grid shortfall: %s", format.Power(*sz.GridShortfallMW)))
	}
	lines = append(lines, "", "Item                     | Quantity        | Unit cost    | Subtotal", "____                     | ________        | _________    | ________")
	for _, item := range q.Costs.Items {
		lines = append(lines, p.Sprintf("%-24s | %12.2f %-3s | $%11.2f | $%.2f", item.Name, item.Quantity, item.Unit, item.UnitCost, item.Subtotal))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Equipment:      %s", format.Currency(q.Costs.EquipmentSubtotal)),
		fmt.Sprintf("BOS:            %s", format.Currency(q.Costs.BOSCost)),
		fmt.Sprintf("EPC:            %s", format.Currency(q.Costs.EPCCost)),
		fmt.Sprintf("Tariff:         %s", format.Currency(q.Costs.TariffCost)),
		fmt.Sprintf("Shipping:       %s", format.Currency(q.Costs.ShippingCost)),
		fmt.Sprintf("Total cost:     %s", format.Currency(q.Costs.TotalProjectCost)),
		"",
	)
	for _, s := range fin.Revenue.Streams {
		lines = append(lines, fmt.Sprintf("%-15s %s/yr", s.Kind+":", format.Currency(s.AnnualValue)))
	}
	lines = append(lines,
		fmt.Sprintf("Total revenue:  %s/yr", format.Currency(fin.Revenue.Total)),
		"",
		fmt.Sprintf("Net capex:      %s (ITC %s)", format.Currency(fin.NetCapex), format.Currency(fin.ITCAmount)),
		fmt.Sprintf("Annual O&M:     %s", format.Currency(fin.AnnualOpex)),
		fmt.Sprintf("Payback:        %s", format.Years(m.PaybackYears, financial.PaybackNever)),
		fmt.Sprintf("Disc. payback:  %s", optionalYears(m.DiscountedPaybackYears)),
		fmt.Sprintf("NPV:            %s", format.Currency(m.NPV)),
		fmt.Sprintf("IRR:            %s", optionalPercent(m.IRRPct)),
		fmt.Sprintf("ROI 10 / 25 yr: %s / %s", format.Percent(m.ROI10YearPct), format.Percent(m.ROI25YearPct)),
		fmt.Sprintf("LCOS:           %s", optionalLCOS(m.LevelizedCostOfStorage)),
		fmt.Sprintf("Data source:    %s", q.Source),
	)
	if q.IRRPreviewPct != nil {
		lines = append(lines, fmt.Sprintf("IRR preview:    %s (estimate)", format.Percent(*q.IRRPreviewPct)))
	}
	if fin.Financing != nil {
		lines = append(lines, fmt.Sprintf("Debt service:   %s/yr on %s", format.Currency(fin.Financing.AnnualDebtService), format.Currency(fin.Financing.Principal)))
	}

	if s := report.Optimization; s != nil {
		lines = append(lines, "", "Duration optimization:")
		if s.Changed() {
			lines = append(lines, fmt.Sprintf("  - %s: %s -> %s (NPV %s -> %s)",
				s.Field, s.OriginalDisplay, s.ValueDisplay, format.Currency(s.OriginalScore), format.Currency(s.BestScore)))
		} else {
			lines = append(lines, fmt.Sprintf("  - %s: %s kept (NPV %s)", s.Field, s.OriginalDisplay, format.Currency(s.OriginalScore)))
		}
		for _, note := range s.Notes {
			lines = append(lines, "    note: "+note)
		}
	}
	if len(q.Warnings) > 0 {
		lines = append(lines, "", "Warnings:")
		for _, warning := range q.Warnings {
			lines = append(lines, "  - "+warning)
		}
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// CsvFormat outputs in comma-separated value format, one metric per row.
func CsvFormat(w io.Writer, report Report) error {
	q := report.Quote
	m := q.Financials.Metrics
	rows := [][]string{
		{"metric", "value"},
		{"quote_id", q.ID},
		{"use_case", q.Sizing.UseCaseSlug},
		{"power_mw", fmt.Sprintf("%.3f", q.Sizing.PowerMW)},
		{"duration_hours", fmt.Sprintf("%.2f", q.Sizing.DurationHours)},
		{"energy_mwh", fmt.Sprintf("%.3f", q.Sizing.EnergyMWh)},
		{"net_peak_demand_mw", fmt.Sprintf("%.3f", q.Sizing.NetPeakDemandMW)},
		{"generation_recommended_mw", optionalFloat(q.Sizing.GenerationRecommendedMW, "%.0f")},
	}
	for _, item := range q.Costs.Items {
		rows = append(rows, []string{"cost_" + string(item.Category), fmt.Sprintf("%.2f", item.Subtotal)})
	}
	rows = append(rows,
		[]string{"equipment_subtotal", fmt.Sprintf("%.2f", q.Costs.EquipmentSubtotal)},
		[]string{"bos_cost", fmt.Sprintf("%.2f", q.Costs.BOSCost)},
		[]string{"epc_cost", fmt.Sprintf("%.2f", q.Costs.EPCCost)},
		[]string{"tariff_cost", fmt.Sprintf("%.2f", q.Costs.TariffCost)},
		[]string{"shipping_cost", fmt.Sprintf("%.2f", q.Costs.ShippingCost)},
		[]string{"total_project_cost", fmt.Sprintf("%.2f", q.Costs.TotalProjectCost)},
	)
	for _, s := range q.Financials.Revenue.Streams {
		rows = append(rows, []string{"revenue_" + strings.ReplaceAll(string(s.Kind), "-", "_"), fmt.Sprintf("%.2f", s.AnnualValue)})
	}
	rows = append(rows,
		[]string{"revenue_total", fmt.Sprintf("%.2f", q.Financials.Revenue.Total)},
		[]string{"net_capex", fmt.Sprintf("%.2f", q.Financials.NetCapex)},
		[]string{"annual_opex", fmt.Sprintf("%.2f", q.Financials.AnnualOpex)},
		[]string{"payback_years", fmt.Sprintf("%.2f", m.PaybackYears)},
		[]string{"discounted_payback_years", optionalFloat(m.DiscountedPaybackYears, "%.0f")},
		[]string{"npv", fmt.Sprintf("%.2f", m.NPV)},
		[]string{"irr_pct", optionalFloat(m.IRRPct, "%.4f")},
		[]string{"roi_10_year_pct", fmt.Sprintf("%.2f", m.ROI10YearPct)},
		[]string{"roi_25_year_pct", fmt.Sprintf("%.2f", m.ROI25YearPct)},
		[]string{"lcos_per_mwh", optionalFloat(m.LevelizedCostOfStorage, "%.2f")},
		[]string{"source", string(q.Source)},
		[]string{"warnings", strings.Join(q.Warnings, "; ")},
	)
	if s := report.Optimization; s != nil {
		rows = append(rows,
			[]string{"optimized_duration_hours", fmt.Sprintf("%.2f", s.Value)},
			[]string{"optimization_improvement", fmt.Sprintf("%.2f", s.Improvement)},
		)
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// JSONFormat outputs the full report as indented JSON.
func JSONFormat(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func optionalYears(years *float64) string {
	if years == nil {
		return "not within lifetime"
	}
	return fmt.Sprintf("%.0f yrs", *years)
}

func optionalPercent(pct *float64) string {
	if pct == nil {
		return "n/a"
	}
	return format.Percent(*pct)
}

func optionalLCOS(lcos *float64) string {
	if lcos == nil {
		return "n/a"
	}
	return format.Currency(*lcos) + "/MWh"
}

func optionalFloat(v *float64, layout string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(layout, *v)
}
