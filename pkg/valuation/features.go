// Package valuation builds model features from market data and turns
// them into rent forecasts with quantile bounds and driver explanations.
package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jarz/rentagent/pkg/scansan"
)

// ModelFeatures is the full input to the forecasting model.
type ModelFeatures struct {
	AreaCode         string `json:"area_code"`
	AreaCodeDistrict string `json:"area_code_district,omitempty"`

	Month          int     `json:"month"`
	Quarter        int     `json:"quarter"`
	RentGrowthMoM  float64 `json:"rent_growth_mom"`
	RentGrowthYoY  float64 `json:"rent_growth_yoy"`
	DemandIndex    float64 `json:"demand_index"`
	DemandIndexLag float64 `json:"demand_index_lag1"`
	HorizonMonths  int     `json:"horizon_months"`

	NeighborAvgRent   *float64 `json:"neighbor_avg_rent,omitempty"`
	NeighborAvgDemand *float64 `json:"neighbor_avg_demand,omitempty"`
	NeighborCount     int      `json:"neighbor_count"`

	MedianRent   *float64 `json:"median_rent,omitempty"`
	AvgRent      *float64 `json:"avg_rent,omitempty"`
	ListingCount *int     `json:"listing_count,omitempty"`
}

// marketData is the subset of the ScanSan client the builder needs.
type marketData interface {
	SearchAreaCodes(ctx context.Context, query string) (*scansan.ResolvedLocation, error)
	AreaSummary(ctx context.Context, areaCode string) (json.RawMessage, error)
	DistrictDemand(ctx context.Context, district string) (json.RawMessage, error)
	DistrictGrowth(ctx context.Context, district string) (json.RawMessage, error)
	Neighbors(ctx context.Context, areaCode string, k int) ([]scansan.Neighbor, error)
}

// FeatureBuilder assembles ModelFeatures from live market data.
type FeatureBuilder struct {
	market marketData
	now    func() time.Time
}

func NewFeatureBuilder(market marketData) *FeatureBuilder {
	return &FeatureBuilder{market: market, now: time.Now}
}

// Build resolves the location and gathers temporal and spatial features.
// The second return value is the resolved location, the third the
// neighbors used for the spatial averages.
func (b *FeatureBuilder) Build(ctx context.Context, locationQuery string, horizonMonths, kNeighbors int) (*ModelFeatures, *scansan.ResolvedLocation, []scansan.Neighbor, error) {
	location, err := b.market.SearchAreaCodes(ctx, locationQuery)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving location %q: %w", locationQuery, err)
	}
	if location == nil {
		return nil, nil, nil, fmt.Errorf("could not resolve location %q", locationQuery)
	}

	district := location.AreaCodeDistrict
	if district == "" {
		district = location.AreaCode
	}

	now := b.now()
	features := &ModelFeatures{
		AreaCode:         location.AreaCode,
		AreaCodeDistrict: location.AreaCodeDistrict,
		Month:            int(now.Month()),
		Quarter:          (int(now.Month())-1)/3 + 1,
		DemandIndex:      75.0,
		DemandIndexLag:   75.0 * 0.98,
		HorizonMonths:    horizonMonths,
	}

	// Data gaps degrade the forecast but never fail it.
	if summary, err := b.market.AreaSummary(ctx, location.AreaCode); err == nil && summary != nil {
		var s struct {
			MedianRent   *float64 `json:"median_rent"`
			AvgRent      *float64 `json:"avg_rent"`
			ListingCount *int     `json:"listing_count"`
		}
		if json.Unmarshal(summary, &s) == nil {
			features.MedianRent = s.MedianRent
			features.AvgRent = s.AvgRent
			features.ListingCount = s.ListingCount
		}
	}

	if growth, err := b.market.DistrictGrowth(ctx, district); err == nil && growth != nil {
		var g struct {
			MoMGrowth float64 `json:"mom_growth"`
			YoYGrowth float64 `json:"yoy_growth"`
		}
		if json.Unmarshal(growth, &g) == nil {
			features.RentGrowthMoM = g.MoMGrowth
			features.RentGrowthYoY = g.YoYGrowth
		}
	}

	if demand, err := b.market.DistrictDemand(ctx, district); err == nil && demand != nil {
		var d struct {
			DemandIndex *float64 `json:"demand_index"`
		}
		if json.Unmarshal(demand, &d) == nil && d.DemandIndex != nil {
			features.DemandIndex = *d.DemandIndex
			features.DemandIndexLag = *d.DemandIndex * 0.98
		}
	}

	if kNeighbors <= 0 {
		kNeighbors = 5
	}
	neighbors, err := b.market.Neighbors(ctx, location.AreaCode, kNeighbors)
	if err == nil && len(neighbors) > 0 {
		var rentSum float64
		for _, n := range neighbors {
			rentSum += n.MedianRent
		}
		avgRent := rentSum / float64(len(neighbors))
		features.NeighborAvgRent = &avgRent
		features.NeighborCount = len(neighbors)
	}

	return features, location, neighbors, nil
}
