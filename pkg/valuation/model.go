package valuation

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// PredictionResult carries the forecast quantiles. P50 is the central
// estimate, P10 and P90 the uncertainty band.
type PredictionResult struct {
	P10           float64 `json:"p10"`
	P50           float64 `json:"p50"`
	P90           float64 `json:"p90"`
	Unit          string  `json:"unit"`
	HorizonMonths int     `json:"horizon_months"`
	ModelVersion  string  `json:"model_version"`
}

// Adapter is the boundary between the orchestrator and the forecasting
// model. Implementations must be deterministic for equal features.
type Adapter interface {
	PredictQuantiles(ctx context.Context, features *ModelFeatures) (*PredictionResult, error)
}

// StubAdapter produces deterministic, plausible forecasts from a feature
// hash. It stands in until a trained model is wired up.
type StubAdapter struct {
	BaseRent float64
}

var _ Adapter = (*StubAdapter)(nil)

const stubVersion = "stub-v1"

func NewStubAdapter() *StubAdapter {
	return &StubAdapter{BaseRent: 2000}
}

func (a *StubAdapter) featureHash(f *ModelFeatures) uint32 {
	medianRent := 0.0
	if f.MedianRent != nil {
		medianRent = *f.MedianRent
	}
	key := strings.Join([]string{
		f.AreaCode,
		fmt.Sprint(f.Month),
		fmt.Sprint(f.HorizonMonths),
		fmt.Sprint(medianRent),
		fmt.Sprint(f.DemandIndex),
	}, "|")
	sum := md5.Sum([]byte(key))
	return binary.BigEndian.Uint32(sum[:4])
}

func (a *StubAdapter) PredictQuantiles(_ context.Context, f *ModelFeatures) (*PredictionResult, error) {
	seed := a.featureHash(f)

	base := a.BaseRent
	if f.MedianRent != nil && *f.MedianRent > 0 {
		base = *f.MedianRent
	}

	modifiers := 1.0
	modifiers += (f.DemandIndex - 75) / 100 * 0.15
	modifiers += f.RentGrowthYoY / 100 * 0.5
	if f.NeighborAvgRent != nil && base > 0 {
		modifiers += (*f.NeighborAvgRent - base) / base * 0.2
	}
	modifiers *= 1 + float64(f.HorizonMonths-1)*0.005

	p50 := base * modifiers

	// 15-25% spread, chosen deterministically from the seed.
	variation := float64(seed%1000)/1000*0.1 + 0.15
	p10 := roundTo25(p50 * (1 - variation))
	p90 := roundTo25(p50 * (1 + variation))
	p50 = roundTo25(p50)

	return &PredictionResult{
		P10:           p10,
		P50:           p50,
		P90:           p90,
		Unit:          "GBP/month",
		HorizonMonths: f.HorizonMonths,
		ModelVersion:  stubVersion,
	}, nil
}

func roundTo25(v float64) float64 {
	return math.Round(v/25) * 25
}

// HTTPAdapter calls a remote model service. Failures fall back to the
// stub so a down model service degrades rather than breaks forecasts.
type HTTPAdapter struct {
	URL      string
	Client   *http.Client
	Fallback Adapter
}

var _ Adapter = (*HTTPAdapter)(nil)

func NewHTTPAdapter(modelURL string) *HTTPAdapter {
	return &HTTPAdapter{
		URL:      modelURL,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Fallback: NewStubAdapter(),
	}
}

func (a *HTTPAdapter) PredictQuantiles(ctx context.Context, f *ModelFeatures) (*PredictionResult, error) {
	result, err := a.call(ctx, f)
	if err != nil && a.Fallback != nil {
		return a.Fallback.PredictQuantiles(ctx, f)
	}
	return result, err
}

func (a *HTTPAdapter) call(ctx context.Context, f *ModelFeatures) (*PredictionResult, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling model service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("model service returned status %d", resp.StatusCode)
	}

	var out struct {
		P10          float64 `json:"p10"`
		P50          float64 `json:"p50"`
		P90          float64 `json:"p90"`
		Unit         string  `json:"unit"`
		ModelVersion string  `json:"model_version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}

	unit := out.Unit
	if unit == "" {
		unit = "GBP/month"
	}
	version := out.ModelVersion
	if version == "" {
		version = "http-v1"
	}

	return &PredictionResult{
		P10:           out.P10,
		P50:           out.P50,
		P90:           out.P90,
		Unit:          unit,
		HorizonMonths: f.HorizonMonths,
		ModelVersion:  version,
	}, nil
}
