package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultOSRMBaseURL = "https://router.project-osrm.org"

// OSRMProvider talks to an OSRM instance over its public HTTP API. No API
// key; the demo server rate-limits aggressively, so production deployments
// should point BaseURL at their own instance.
type OSRMProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRMProvider(baseURL string) *OSRMProvider {
	if baseURL == "" {
		baseURL = defaultOSRMBaseURL
	}

	return &OSRMProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

func (o *OSRMProvider) Route(ctx context.Context, origin, destination Coordinate) (*Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		o.baseURL,
		origin.Longitude, origin.Latitude,
		destination.Longitude, destination.Latitude,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OSRM request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OSRM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OSRM request failed with status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode OSRM response: %w", err)
	}

	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, fmt.Errorf("OSRM returned no route (code=%s)", body.Code)
	}

	route := body.Routes[0]
	points := make([]Coordinate, len(route.Geometry.Coordinates))
	for i, c := range route.Geometry.Coordinates {
		if len(c) < 2 {
			return nil, fmt.Errorf("OSRM returned malformed coordinate at index %d", i)
		}
		points[i] = Coordinate{
			Latitude:  c[1],
			Longitude: c[0],
		}
	}

	return &Route{
		Points:     points,
		DistanceKM: route.Distance / 1000.0,
		Duration:   time.Duration(route.Duration * float64(time.Second)),
	}, nil
}
