package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/jarz/rentagent/pkg/a2ui"
	"github.com/jarz/rentagent/pkg/tools"
)

type compareAreasParams struct {
	Location1     string `json:"location1" jsonschema:"First location to compare"`
	Location2     string `json:"location2" jsonschema:"Second location to compare"`
	HorizonMonths int    `json:"horizon_months,omitempty" jsonschema:"Forecast horizon in months (1, 3, 6, or 12). Default is 6."`
}

type compareAreasOutput struct {
	First      *forecastOutput `json:"first"`
	Second     *forecastOutput `json:"second"`
	DiffP50    float64         `json:"diff_p50"`
	DiffP50Pct float64         `json:"diff_p50_pct"`
	Cheaper    string          `json:"cheaper"`
}

func (t *Toolset) compareAreasTool() tools.Tool {
	return tools.Tool{
		Name:        "compare_areas",
		Description: "Compare rental forecasts between two different UK areas. Runs a forecast for each and reports the difference in expected rent.",
		Parameters:  tools.MustSchemaFor[compareAreasParams](),
		Handler: tools.NewHandler(func(ctx context.Context, params compareAreasParams) (*tools.ToolCallResult, error) {
			return t.runCompare(ctx, params)
		}),
		Annotations: tools.ToolAnnotations{Title: "Area comparison", ReadOnlyHint: true},
	}
}

func (t *Toolset) runCompare(ctx context.Context, params compareAreasParams) (*tools.ToolCallResult, error) {
	horizon := normalizeHorizon(params.HorizonMonths)

	first, err := t.forecast(ctx, params.Location1, horizon, 5)
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Could not forecast %q: %v", params.Location1, err)), nil
	}
	second, err := t.forecast(ctx, params.Location2, horizon, 5)
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Could not forecast %q: %v", params.Location2, err)), nil
	}

	diff := first.Prediction.P50 - second.Prediction.P50
	cheaper := areaName(first)
	if diff > 0 {
		cheaper = areaName(second)
	}
	diffPct := 0.0
	if second.Prediction.P50 > 0 {
		diffPct = diff / second.Prediction.P50 * 100
	}

	out := &compareAreasOutput{
		First:      first,
		Second:     second,
		DiffP50:    diff,
		DiffP50Pct: diffPct,
		Cheaper:    cheaper,
	}

	summary := fmt.Sprintf(
		"%d-month comparison: %s P50 £%.0f/mo vs %s P50 £%.0f/mo. %s is cheaper by £%.0f/mo (%.1f%%).",
		horizon, areaName(first), first.Prediction.P50,
		areaName(second), second.Prediction.P50,
		cheaper, math.Abs(diff), math.Abs(diffPct),
	)

	result := tools.ResultSuccess(summary, out)
	result.RenderMessages = compareUI(out, horizon)
	return result, nil
}

func areaName(out *forecastOutput) string {
	if out.Location.DisplayName != "" {
		return out.Location.DisplayName
	}
	return out.Location.AreaCode
}

func compareUI(out *compareAreasOutput, horizon int) []a2ui.Message {
	card := func(id string, f *forecastOutput, highlight bool) a2ui.Message {
		p := f.Prediction
		variant := "default"
		if highlight {
			variant = "primary"
		}
		return a2ui.CardComponent(id, areaName(f), []a2ui.CardItem{
			{Label: "Median Rent (P50)", Value: fmt.Sprintf("£%.0f/mo", p.P50), Highlight: highlight},
			{Label: "Low Estimate (P10)", Value: fmt.Sprintf("£%.0f/mo", p.P10)},
			{Label: "High Estimate (P90)", Value: fmt.Sprintf("£%.0f/mo", p.P90)},
		}, variant)
	}

	firstCheaper := out.Cheaper == areaName(out.First)
	components := []a2ui.Message{
		a2ui.TextComponent("compare_header",
			fmt.Sprintf("Area Comparison: %s vs %s (%d months)", areaName(out.First), areaName(out.Second), horizon),
			"heading1"),
		card("compare_first", out.First, firstCheaper),
		card("compare_second", out.Second, !firstCheaper),
		a2ui.TextComponent("compare_verdict",
			fmt.Sprintf("%s is cheaper by £%.0f/month (%.1f%%).", out.Cheaper, math.Abs(out.DiffP50), math.Abs(out.DiffP50Pct)),
			"body"),
	}

	return []a2ui.Message{
		a2ui.SurfaceUpdate(components),
		a2ui.DataModelUpdate([]a2ui.DataEntry{
			a2ui.NumberEntry("first_p50", out.First.Prediction.P50),
			a2ui.NumberEntry("second_p50", out.Second.Prediction.P50),
			a2ui.NumberEntry("diff_p50", out.DiffP50),
		}, "/comparison"),
		a2ui.BeginRendering("root"),
	}
}
