package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

type GoogleMapsProvider struct {
	client *maps.Client
}

func NewGoogleMapsProvider(apiKey string) (*GoogleMapsProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return &GoogleMapsProvider{
		client: client,
	}, nil
}

func (g *GoogleMapsProvider) Route(ctx context.Context, origin, destination Coordinate) (*Route, error) {
	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Latitude, origin.Longitude),
		Destination: fmt.Sprintf("%f,%f", destination.Latitude, destination.Longitude),
		Mode:        maps.TravelModeDriving,
	}

	resp, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}
	if len(resp) == 0 || len(resp[0].Legs) == 0 {
		return nil, fmt.Errorf("directions request returned no route")
	}

	route := resp[0]
	leg := route.Legs[0]

	decoded, err := route.OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode route polyline: %w", err)
	}

	points := make([]Coordinate, len(decoded))
	for i, p := range decoded {
		points[i] = Coordinate{
			Latitude:  p.Lat,
			Longitude: p.Lng,
		}
	}

	return &Route{
		Points:     points,
		DistanceKM: float64(leg.Distance.Meters) / 1000.0,
		Duration:   leg.Duration.Round(time.Second),
		Summary:    route.Summary,
	}, nil
}
