package scansan

// ResolvedLocation is a user query resolved to a ScanSan area code.
type ResolvedLocation struct {
	AreaCode         string   `json:"area_code"`
	AreaCodeDistrict string   `json:"area_code_district"`
	DisplayName      string   `json:"display_name"`
	Lat              *float64 `json:"lat,omitempty"`
	Lon              *float64 `json:"lon,omitempty"`
}

// Neighbor is a nearby area used for comparable-rent lookups.
type Neighbor struct {
	AreaCode   string  `json:"area_code"`
	MedianRent float64 `json:"median_rent"`
	DistanceKm float64 `json:"distance_km"`
}
