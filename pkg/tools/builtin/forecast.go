package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jarz/rentagent/pkg/a2ui"
	"github.com/jarz/rentagent/pkg/scansan"
	"github.com/jarz/rentagent/pkg/tools"
	"github.com/jarz/rentagent/pkg/valuation"
)

type forecastParams struct {
	Location      string `json:"location" jsonschema:"The location to forecast rent for. Can be a UK postcode (e.g. NW1, E14, SW1A), area name (e.g. Camden, Canary Wharf), or district."`
	HorizonMonths int    `json:"horizon_months,omitempty" jsonschema:"Forecast horizon in months (1, 3, 6, or 12). Default is 6."`
	KNeighbors    int    `json:"k_neighbors,omitempty" jsonschema:"Number of spatial neighbors to consider. Default is 5."`
}

type forecastOutput struct {
	Prediction  *valuation.PredictionResult  `json:"prediction"`
	Explanation *valuation.ExplanationResult `json:"explanation"`
	Location    *scansan.ResolvedLocation    `json:"location"`
	Neighbors   []scansan.Neighbor           `json:"neighbors"`
}

func (t *Toolset) forecastTool() tools.Tool {
	return tools.Tool{
		Name:        "get_rent_forecast",
		Description: "Get a rental price forecast for a specific location in the UK. Analyzes the area, considers spatial neighbors, and predicts P10/P50/P90 rent values. Use when the user asks about rent prices, rental forecasts, or property valuations.",
		Parameters:  tools.MustSchemaFor[forecastParams](),
		Handler: tools.NewHandler(func(ctx context.Context, params forecastParams) (*tools.ToolCallResult, error) {
			return t.runForecast(ctx, params)
		}),
		Annotations: tools.ToolAnnotations{Title: "Rent forecast", ReadOnlyHint: true},
	}
}

func (t *Toolset) runForecast(ctx context.Context, params forecastParams) (*tools.ToolCallResult, error) {
	out, err := t.forecast(ctx, params.Location, params.HorizonMonths, params.KNeighbors)
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Could not produce a forecast for %q: %v", params.Location, err)), nil
	}

	result := tools.ResultSuccess(forecastSummary(out), out)
	result.RenderMessages = forecastUI(out)
	return result, nil
}

// forecast runs the full valuation pipeline for one location.
func (t *Toolset) forecast(ctx context.Context, location string, horizonMonths, kNeighbors int) (*forecastOutput, error) {
	horizonMonths = normalizeHorizon(horizonMonths)
	if kNeighbors <= 0 {
		kNeighbors = 5
	}

	features, resolved, neighbors, err := t.features.Build(ctx, location, horizonMonths, kNeighbors)
	if err != nil {
		return nil, err
	}

	prediction, err := t.model.PredictQuantiles(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("running prediction: %w", err)
	}

	return &forecastOutput{
		Prediction:  prediction,
		Explanation: valuation.Explain(features),
		Location:    resolved,
		Neighbors:   neighbors,
	}, nil
}

func forecastSummary(out *forecastOutput) string {
	p := out.Prediction
	areaName := out.Location.DisplayName
	if areaName == "" {
		areaName = out.Location.AreaCode
	}

	var drivers []string
	for i, d := range out.Explanation.Drivers {
		if i == 3 {
			break
		}
		verb := "increasing"
		if d.Direction == "negative" {
			verb = "decreasing"
		}
		drivers = append(drivers, fmt.Sprintf("%s (%s rent by ~%.0f GBP)", d.Name, verb, d.Contribution))
	}
	driverText := ""
	if len(drivers) > 0 {
		driverText = " Key factors: " + strings.Join(drivers, ", ") + "."
	}

	return fmt.Sprintf(
		"For %s, the %d-month rental forecast shows: P50 (median) rent of %.0f %s, with a confidence band from %.0f (P10) to %.0f (P90) %s.%s",
		areaName, p.HorizonMonths, p.P50, p.Unit, p.P10, p.P90, p.Unit, driverText,
	)
}

func forecastUI(out *forecastOutput) []a2ui.Message {
	p := out.Prediction
	areaName := out.Location.DisplayName
	if areaName == "" {
		areaName = out.Location.AreaCode
	}

	components := []a2ui.Message{
		a2ui.TextComponent("forecast_header", fmt.Sprintf("Rent Forecast: %s", areaName), "heading1"),
		a2ui.TextComponent("forecast_takeaway", takeaway(p, areaName), "body"),
		a2ui.ForecastChart("forecast_chart", forecastPoints(p), p.Unit),
	}

	if len(out.Neighbors) > 0 {
		entries := make([]a2ui.NeighborMapEntry, 0, len(out.Neighbors))
		for _, n := range out.Neighbors {
			entries = append(entries, a2ui.NeighborMapEntry{
				AreaCode: n.AreaCode,
				Rent:     n.MedianRent,
				Distance: n.DistanceKm,
			})
		}
		components = append(components, a2ui.NeighborMap("neighbor_map", out.Location.AreaCode, entries))
	}

	return []a2ui.Message{
		a2ui.SurfaceUpdate(components),
		a2ui.DataModelUpdate([]a2ui.DataEntry{
			a2ui.NumberEntry("p10", p.P10),
			a2ui.NumberEntry("p50", p.P50),
			a2ui.NumberEntry("p90", p.P90),
		}, "/prediction"),
		a2ui.BeginRendering("root"),
	}
}

func takeaway(p *valuation.PredictionResult, areaName string) string {
	spreadPct := (p.P90 - p.P10) / p.P50 * 100
	confidence := "wider uncertainty"
	switch {
	case spreadPct < 20:
		confidence = "high confidence"
	case spreadPct < 35:
		confidence = "moderate confidence"
	}
	return fmt.Sprintf("Expected rent in %s is £%.0f/month with %s (range: £%.0f - £%.0f).",
		areaName, p.P50, confidence, p.P10, p.P90)
}

// forecastPoints interpolates from just under today's level out to the
// forecast quantiles, one point per month.
func forecastPoints(p *valuation.PredictionResult) []a2ui.ChartPoint {
	months := p.HorizonMonths
	if months < 1 {
		months = 1
	}

	now := time.Now()
	points := make([]a2ui.ChartPoint, 0, months+1)
	for i := 0; i <= months; i++ {
		progress := float64(i) / float64(months)
		interp := func(target float64) float64 {
			start := target * 0.98
			return start + (target-start)*progress
		}
		points = append(points, a2ui.ChartPoint{
			Label: now.AddDate(0, i, 0).Format("2006-01"),
			P10:   interp(p.P10),
			P50:   interp(p.P50),
			P90:   interp(p.P90),
		})
	}
	return points
}
