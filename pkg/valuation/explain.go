package valuation

import (
	"math"
	"sort"
)

// Driver is one factor contributing to a forecast, with its estimated
// monthly-rent impact in GBP.
type Driver struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
}

type ExplanationResult struct {
	Drivers   []Driver `json:"drivers"`
	BaseValue float64  `json:"base_value"`
}

const maxDrivers = 8

// Explain derives heuristic driver contributions from the features that
// shaped the forecast. Contributions are magnitudes; Direction carries
// the sign.
func Explain(f *ModelFeatures) *ExplanationResult {
	var drivers []Driver

	demandDiff := f.DemandIndex - 75.0
	if math.Abs(demandDiff) > 1 {
		drivers = append(drivers, Driver{
			Name:         "Rental Demand Index",
			Contribution: round1(math.Abs(demandDiff) * 5),
			Direction:    direction(demandDiff),
		})
	}

	if math.Abs(f.RentGrowthYoY) > 0.1 {
		drivers = append(drivers, Driver{
			Name:         "Year-over-Year Growth",
			Contribution: round1(math.Abs(f.RentGrowthYoY) * 50),
			Direction:    direction(f.RentGrowthYoY),
		})
	}

	if f.NeighborAvgRent != nil && f.MedianRent != nil {
		diff := *f.NeighborAvgRent - *f.MedianRent
		if math.Abs(diff) > 50 {
			drivers = append(drivers, Driver{
				Name:         "Neighboring Area Rents",
				Contribution: round1(math.Abs(diff) * 0.2),
				Direction:    direction(diff),
			})
		}
	}

	switch {
	case f.Month >= 6 && f.Month <= 9:
		drivers = append(drivers, Driver{
			Name:         "Seasonal Demand (Summer)",
			Contribution: round1(50 + float64(f.Month)*5),
			Direction:    "positive",
		})
	case f.Month == 12 || f.Month <= 2:
		drivers = append(drivers, Driver{
			Name:         "Seasonal Effect (Winter)",
			Contribution: round1(30 + float64(12-f.Month)*3),
			Direction:    "negative",
		})
	}

	if f.HorizonMonths > 3 {
		drivers = append(drivers, Driver{
			Name:         "Forecast Horizon",
			Contribution: round1(float64(f.HorizonMonths) * 10),
			Direction:    "positive",
		})
	}

	if f.NeighborCount > 0 {
		drivers = append(drivers, Driver{
			Name:         "Spatial Connectivity",
			Contribution: round1(float64(f.NeighborCount) * 8),
			Direction:    "positive",
		})
	}

	if f.ListingCount != nil {
		switch {
		case *f.ListingCount > 200:
			drivers = append(drivers, Driver{
				Name:         "Market Liquidity",
				Contribution: round1(float64(*f.ListingCount-200) * 0.1),
				Direction:    "positive",
			})
		case *f.ListingCount < 100:
			// Scarce supply pushes rents up.
			drivers = append(drivers, Driver{
				Name:         "Limited Supply",
				Contribution: round1(float64(100-*f.ListingCount) * 0.2),
				Direction:    "positive",
			})
		}
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].Contribution > drivers[j].Contribution
	})
	if len(drivers) > maxDrivers {
		drivers = drivers[:maxDrivers]
	}

	baseValue := 2000.0
	if f.MedianRent != nil {
		baseValue = *f.MedianRent
	}

	return &ExplanationResult{Drivers: drivers, BaseValue: baseValue}
}

func direction(v float64) string {
	if v > 0 {
		return "positive"
	}
	return "negative"
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
