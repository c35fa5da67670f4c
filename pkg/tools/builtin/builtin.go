// Package builtin provides the tools the assistant can call: rent
// forecasts, location search, area comparison, and investment analysis.
package builtin

import (
	"context"
	"encoding/json"

	"github.com/jarz/rentagent/pkg/mortgage"
	"github.com/jarz/rentagent/pkg/scansan"
	"github.com/jarz/rentagent/pkg/tools"
	"github.com/jarz/rentagent/pkg/valuation"
)

// Market is the slice of the property data client the tools use.
type Market interface {
	SearchAreaCodes(ctx context.Context, query string) (*scansan.ResolvedLocation, error)
	AreaSummary(ctx context.Context, areaCode string) (json.RawMessage, error)
	DistrictDemand(ctx context.Context, district string) (json.RawMessage, error)
	DistrictGrowth(ctx context.Context, district string) (json.RawMessage, error)
	SaleDemand(ctx context.Context, district string) (json.RawMessage, error)
	Neighbors(ctx context.Context, areaCode string, k int) ([]scansan.Neighbor, error)
}

// Toolset bundles the collaborators shared by all builtin tools.
type Toolset struct {
	market   Market
	features *valuation.FeatureBuilder
	model    valuation.Adapter
	rates    *mortgage.RateSource
}

func NewToolset(market Market, model valuation.Adapter, rates *mortgage.RateSource) *Toolset {
	return &Toolset{
		market:   market,
		features: valuation.NewFeatureBuilder(market),
		model:    model,
		rates:    rates,
	}
}

// Register adds every builtin tool to the registry.
func (t *Toolset) Register(reg *tools.Registry) error {
	for _, tool := range []tools.Tool{
		t.forecastTool(),
		t.searchLocationTool(),
		t.compareAreasTool(),
		t.investmentTool(),
	} {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// normalizeHorizon clamps the forecast horizon to the supported values.
func normalizeHorizon(months int) int {
	switch months {
	case 1, 3, 12:
		return months
	default:
		return 6
	}
}
