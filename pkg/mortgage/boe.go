package mortgage

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	boeRatesURL = "https://www.bankofengland.co.uk/boeapps/database/fromshowcolumns.asp"

	// boeSeriesCode is the average 2-year fixed mortgage rate at 75% LTV,
	// representative of standard buy-to-let pricing.
	boeSeriesCode = "IUMBV42"
)

// NewBoEFetcher returns a Fetcher that reads the latest published
// observation of the representative mortgage series from the Bank of
// England statistical database.
func NewBoEFetcher(client *http.Client) Fetcher {
	return newBoEFetcher(client, boeRatesURL)
}

func newBoEFetcher(client *http.Client, endpoint string) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context) (float64, error) {
		now := time.Now()
		params := url.Values{
			"csv.x":       {"yes"},
			"Datefrom":    {now.AddDate(0, -6, 0).Format("02/Jan/2006")},
			"Dateto":      {now.Format("02/Jan/2006")},
			"SeriesCodes": {boeSeriesCode},
			"CSVF":        {"TN"},
			"UsingCodes":  {"Y"},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return 0, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("fetching BoE rate: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("BoE rate endpoint returned status %d", resp.StatusCode)
		}

		rate, err := parseBoESeries(csv.NewReader(resp.Body))
		if err != nil {
			return 0, err
		}
		return rate, nil
	}
}

// parseBoESeries returns the most recent observation in a BoE series CSV
// (a DATE column followed by the series value, oldest first).
func parseBoESeries(r *csv.Reader) (float64, error) {
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("reading BoE series: %w", err)
	}

	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if len(record) < 2 {
			continue
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(record[len(record)-1]), 64)
		if err != nil {
			// Header row or malformed observation.
			continue
		}
		return rate, nil
	}
	return 0, fmt.Errorf("no observations in BoE series response")
}
