// Package steward implements the autonomous city steward.
// It observes the city via the API, picks at most one intervention per
// cycle from fixed rules, and acts via the admin action endpoint.
package steward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CitySnapshot holds all data collected during an observation cycle.
type CitySnapshot struct {
	City CityStatus `json:"city"`
	Lots []Lot      `json:"lots"`
}

// CityStatus mirrors the parts of GET /api/v1/observation the rules read.
type CityStatus struct {
	Tick  uint64 `json:"tick"`
	Day   uint32 `json:"day"`
	Stats struct {
		Population   uint32 `json:"population"`
		Employed     uint32 `json:"employed"`
		Unemployed   uint32 `json:"unemployed"`
		Buildings    int    `json:"buildings"`
		PoweredCells int    `json:"powered_cells"`
		WateredCells int    `json:"watered_cells"`
	} `json:"stats"`
	Budget struct {
		Treasury        float64 `json:"treasury"`
		TaxRate         float64 `json:"tax_rate"`
		MonthlyIncome   float64 `json:"monthly_income"`
		MonthlyExpenses float64 `json:"monthly_expenses"`
	} `json:"budget"`
	Loans struct {
		Count    int  `json:"count"`
		Bankrupt bool `json:"bankrupt"`
	} `json:"loans"`
	Demand struct {
		Residential float32 `json:"residential"`
		Commercial  float32 `json:"commercial"`
		Industrial  float32 `json:"industrial"`
		Office      float32 `json:"office"`
	} `json:"demand"`
	Power struct {
		DemandMW       float32 `json:"demand_mw"`
		CapacityMW     float32 `json:"capacity_mw"`
		ReserveMargin  float32 `json:"reserve_margin"`
		Deficit        bool    `json:"deficit"`
		BlackoutActive bool    `json:"blackout_active"`
	} `json:"power"`
	Water struct {
		ReservoirLevel float32 `json:"reservoir_level"`
		Critical       bool    `json:"critical"`
	} `json:"water"`
}

// Lot mirrors items of the lots query layer.
type Lot struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Zone string `json:"zone"`
}

// Observer fetches city state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches the observation and the vacant lots.
func (o *Observer) Observe(ctx context.Context) (*CitySnapshot, error) {
	snap := &CitySnapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/observation", &snap.City); err != nil {
		return nil, fmt.Errorf("fetch observation: %w", err)
	}
	var q struct {
		Layers struct {
			Lots []Lot `json:"lots"`
		} `json:"layers"`
	}
	if err := o.fetchJSON(ctx, "/api/v1/query?layers=lots", &q); err != nil {
		return nil, fmt.Errorf("fetch lots: %w", err)
	}
	snap.Lots = q.Layers.Lots

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
