package directions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/dispatch-client/internal/models"
)

// ORSClient fetches driving routes from the OpenRouteService directions API.
type ORSClient struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
	Limiter  *rate.Limiter
}

func NewORSClient(endpoint, apiKey string, rps float64) *ORSClient {
	return &ORSClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 5 * time.Second},
		Limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type orsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (o *ORSClient) Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	// ORS takes [lon, lat] pairs
	body, err := json.Marshal(map[string]any{
		"coordinates": [][]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint+"/v2/directions/driving-car/geojson", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", o.APIKey)

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrRouteUnavailable
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ors directions: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var out orsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ors directions decode: %w", err)
	}
	if len(out.Features) == 0 {
		return nil, ErrRouteUnavailable
	}
	return fromLonLat(out.Features[0].Geometry.Coordinates)
}

func fromLonLat(coords [][]float64) ([]models.Coord, error) {
	if len(coords) == 0 {
		return nil, ErrRouteUnavailable
	}
	pts := make([]models.Coord, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("malformed coordinate %v", c)
		}
		pts = append(pts, models.Coord{Lat: c[1], Lon: c[0]})
	}
	return pts, nil
}
