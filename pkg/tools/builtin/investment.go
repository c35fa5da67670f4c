package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jarz/rentagent/pkg/a2ui"
	"github.com/jarz/rentagent/pkg/tools"
)

type investmentParams struct {
	Location       string  `json:"location" jsonschema:"Location to analyze (UK postcode or area name)"`
	PropertyValue  float64 `json:"property_value,omitempty" jsonschema:"Purchase price in GBP. If omitted, the area's median sale price is used."`
	DepositPercent float64 `json:"deposit_percent,omitempty" jsonschema:"Deposit percentage. Default is 25."`
	MortgageRate   float64 `json:"mortgage_rate,omitempty" jsonschema:"Annual mortgage rate percentage. Defaults to the current market rate."`
	MortgageYears  int     `json:"mortgage_years,omitempty" jsonschema:"Mortgage term in years. Default is 25."`
}

// operatingCostShare covers maintenance, insurance, management, and void
// periods as a share of rent.
const operatingCostShare = 0.25

type investmentOutput struct {
	Location         string  `json:"location"`
	PropertyValue    float64 `json:"property_value"`
	PredictedRentPCM float64 `json:"predicted_rent_pcm"`
	DepositAmount    float64 `json:"deposit_amount"`
	MortgageAmount   float64 `json:"mortgage_amount"`
	MortgageRate     float64 `json:"mortgage_rate"`
	MonthlyMortgage  float64 `json:"monthly_mortgage"`
	MonthlyCosts     float64 `json:"monthly_costs"`
	MonthlyCashFlow  float64 `json:"monthly_cash_flow"`
	GrossYield       float64 `json:"gross_yield"`
	NetYield         float64 `json:"net_yield"`
	AnnualROI        float64 `json:"annual_roi"`
	BreakEvenYears   float64 `json:"break_even_years"`
}

func (t *Toolset) investmentTool() tools.Tool {
	return tools.Tool{
		Name:        "get_investment_analysis",
		Description: "Analyze the buy-to-let investment potential of a UK area: rental yield, mortgage costs, monthly cash flow, ROI on deposit, and break-even period. Use when the user asks whether an area is a good investment.",
		Parameters:  tools.MustSchemaFor[investmentParams](),
		Handler: tools.NewHandler(func(ctx context.Context, params investmentParams) (*tools.ToolCallResult, error) {
			return t.runInvestment(ctx, params)
		}),
		Annotations: tools.ToolAnnotations{Title: "Investment analysis", ReadOnlyHint: true},
	}
}

func (t *Toolset) runInvestment(ctx context.Context, params investmentParams) (*tools.ToolCallResult, error) {
	forecast, err := t.forecast(ctx, params.Location, 6, 5)
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Error analyzing investment for %q: %v", params.Location, err)), nil
	}
	rentPCM := forecast.Prediction.P50
	area := areaName(forecast)

	propertyValue := params.PropertyValue
	if propertyValue <= 0 {
		propertyValue = t.marketSalePrice(ctx, forecast.Location.AreaCodeDistrict)
	}

	depositPercent := params.DepositPercent
	if depositPercent <= 0 {
		depositPercent = 25
	}
	rate := params.MortgageRate
	if rate <= 0 {
		rate = t.rates.CurrentRate(ctx)
	}
	years := params.MortgageYears
	if years <= 0 {
		years = 25
	}

	deposit := propertyValue * depositPercent / 100
	mortgageAmount := propertyValue - deposit
	monthlyMortgage := amortizedPayment(mortgageAmount, rate, years)

	operatingCosts := rentPCM * operatingCostShare
	monthlyCosts := monthlyMortgage + operatingCosts
	cashFlow := rentPCM - monthlyCosts

	annualRent := rentPCM * 12
	annualCashFlow := cashFlow * 12

	grossYield := annualRent / propertyValue * 100
	netYield := annualCashFlow / propertyValue * 100
	annualROI := 0.0
	if deposit > 0 {
		annualROI = annualCashFlow / deposit * 100
	}
	breakEvenYears := math.Inf(1)
	if annualCashFlow > 0 {
		breakEvenYears = deposit / annualCashFlow
	}

	out := &investmentOutput{
		Location:         area,
		PropertyValue:    propertyValue,
		PredictedRentPCM: rentPCM,
		DepositAmount:    deposit,
		MortgageAmount:   mortgageAmount,
		MortgageRate:     rate,
		MonthlyMortgage:  monthlyMortgage,
		MonthlyCosts:     monthlyCosts,
		MonthlyCashFlow:  cashFlow,
		GrossYield:       grossYield,
		NetYield:         netYield,
		AnnualROI:        annualROI,
		BreakEvenYears:   finiteOrZero(breakEvenYears),
	}

	summary := fmt.Sprintf(
		"%s £%.0f: Rent £%.0f/mo, Gross %.1f%% Net %.1f%%, Cash flow £%+.0f/mo, ROI %.1f%%",
		area, propertyValue, rentPCM, grossYield, netYield, cashFlow, annualROI,
	)
	if breakEvenYears < 20 {
		summary += fmt.Sprintf(", Break-even %.1fyr", breakEvenYears)
	} else if cashFlow < 0 {
		summary += " (neg. cash flow)"
	}

	result := tools.ResultSuccess(summary, out)
	result.RenderMessages = investmentUI(out)
	return result, nil
}

// marketSalePrice looks up the area's median sale price, falling back to
// a typical London figure when the market data has none.
func (t *Toolset) marketSalePrice(ctx context.Context, district string) float64 {
	const fallbackPrice = 350000

	raw, err := t.market.SaleDemand(ctx, district)
	if err != nil || raw == nil {
		return fallbackPrice
	}

	var demand struct {
		MedianSalePrice float64 `json:"median_sale_price"`
		MeanSalePrice   float64 `json:"mean_sale_price"`
	}
	// The demand payload is sometimes wrapped in a single-element array.
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		raw = list[0]
	}
	if json.Unmarshal(raw, &demand) != nil {
		return fallbackPrice
	}

	switch {
	case demand.MedianSalePrice > 0:
		return demand.MedianSalePrice
	case demand.MeanSalePrice > 0:
		return demand.MeanSalePrice
	default:
		return fallbackPrice
	}
}

// amortizedPayment is the standard fixed-rate mortgage payment formula.
func amortizedPayment(principal, annualRatePct float64, years int) float64 {
	monthlyRate := annualRatePct / 100 / 12
	n := float64(years * 12)
	if monthlyRate == 0 {
		return principal / n
	}
	factor := math.Pow(1+monthlyRate, n)
	return principal * monthlyRate * factor / (factor - 1)
}

func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func investmentUI(out *investmentOutput) []a2ui.Message {
	gbp := func(v float64) string { return fmt.Sprintf("£%.0f", v) }

	cashFlowStatus := "positive"
	cashFlowVariant := "success"
	if out.MonthlyCashFlow < 0 {
		cashFlowStatus = "negative"
		cashFlowVariant = "destructive"
	}
	yieldQuality := "low"
	switch {
	case out.GrossYield >= 5:
		yieldQuality = "strong"
	case out.GrossYield >= 3:
		yieldQuality = "moderate"
	}
	yieldVariant := "default"
	if out.GrossYield >= 5 {
		yieldVariant = "primary"
	}
	breakEven := "N/A"
	if out.BreakEvenYears > 0 && out.BreakEvenYears < 50 {
		breakEven = fmt.Sprintf("%.1f years", out.BreakEvenYears)
	}

	components := []a2ui.Message{
		a2ui.TextComponent("investment_header", fmt.Sprintf("Investment Analysis: %s", out.Location), "heading1"),
		a2ui.TextComponent("investment_summary", fmt.Sprintf(
			"Analysis for a %s property in %s. Expected monthly rent: %s. The gross yield is %.2f%% (%s) with a %s monthly cash flow of %s.",
			gbp(out.PropertyValue), out.Location, gbp(out.PredictedRentPCM),
			out.GrossYield, yieldQuality, cashFlowStatus, gbp(out.MonthlyCashFlow)), "body"),
		a2ui.CardComponent("property_details_card", "Property Details", []a2ui.CardItem{
			{Label: "Property Value", Value: gbp(out.PropertyValue)},
			{Label: "Required Deposit", Value: gbp(out.DepositAmount)},
			{Label: "Mortgage Amount", Value: gbp(out.MortgageAmount)},
			{Label: "Expected Monthly Rent", Value: gbp(out.PredictedRentPCM)},
		}, "default"),
		a2ui.CardComponent("yield_metrics_card", "Rental Yield", []a2ui.CardItem{
			{Label: "Gross Yield", Value: fmt.Sprintf("%.2f%%", out.GrossYield), Highlight: out.GrossYield >= 5},
			{Label: "Net Yield", Value: fmt.Sprintf("%.2f%%", out.NetYield), Highlight: out.NetYield >= 3},
			{Label: "Annual ROI (on deposit)", Value: fmt.Sprintf("%.1f%%", out.AnnualROI), Highlight: out.AnnualROI >= 10},
			{Label: "Break-even Period", Value: breakEven},
		}, yieldVariant),
		a2ui.CardComponent("cash_flow_card", "Monthly Cash Flow", []a2ui.CardItem{
			{Label: "Monthly Rent Income", Value: gbp(out.PredictedRentPCM)},
			{Label: "Monthly Mortgage", Value: "-" + gbp(out.MonthlyMortgage)},
			{Label: "Operating Costs (25%)", Value: "-" + gbp(out.PredictedRentPCM*operatingCostShare)},
			{Label: "Net Cash Flow", Value: gbp(out.MonthlyCashFlow), Highlight: true},
		}, cashFlowVariant),
	}

	return []a2ui.Message{
		a2ui.SurfaceUpdate(components),
		a2ui.DataModelUpdate([]a2ui.DataEntry{
			a2ui.NumberEntry("property_value", out.PropertyValue),
			a2ui.NumberEntry("predicted_rent", out.PredictedRentPCM),
			a2ui.NumberEntry("gross_yield", out.GrossYield),
			a2ui.NumberEntry("net_yield", out.NetYield),
			a2ui.NumberEntry("monthly_cash_flow", out.MonthlyCashFlow),
			a2ui.NumberEntry("annual_roi", out.AnnualROI),
			a2ui.NumberEntry("break_even_years", out.BreakEvenYears),
			a2ui.NumberEntry("monthly_mortgage", out.MonthlyMortgage),
			a2ui.NumberEntry("monthly_costs", out.MonthlyCosts),
			a2ui.NumberEntry("deposit_amount", out.DepositAmount),
		}, "/investment"),
		a2ui.BeginRendering("root"),
	}
}
