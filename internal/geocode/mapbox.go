package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/dispatch-client/internal/models"
)

// MapboxClient resolves place names and address suggestions with the Mapbox
// geocoding API.
type MapboxClient struct {
	Endpoint    string
	AccessToken string
	Client      *http.Client
	Limiter     *rate.Limiter
}

func NewMapboxClient(endpoint, token string, rps float64) *MapboxClient {
	return &MapboxClient{
		Endpoint:    strings.TrimRight(endpoint, "/"),
		AccessToken: token,
		Client:      &http.Client{Timeout: 3 * time.Second},
		Limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SuggestLimit caps the candidates returned by Suggest.
const SuggestLimit = 5

type mapboxResponse struct {
	Features []struct {
		PlaceName string     `json:"place_name"`
		Center    [2]float64 `json:"center"`
	} `json:"features"`
}

func (m *MapboxClient) PlaceName(ctx context.Context, at models.Coord) (string, error) {
	q := url.Values{}
	q.Set("types", "place,poi,address")
	q.Set("limit", "1")
	// mapbox takes {lon},{lat}
	out, err := m.places(ctx, fmt.Sprintf("%.6f,%.6f", at.Lon, at.Lat), q)
	if err != nil {
		return "", err
	}
	if len(out.Features) == 0 || out.Features[0].PlaceName == "" {
		return "", ErrGeocodeUnavailable
	}
	return out.Features[0].PlaceName, nil
}

// Suggest runs a forward autocomplete search. An empty query has no
// suggestions.
func (m *MapboxClient) Suggest(ctx context.Context, query string) ([]models.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("autocomplete", "true")
	q.Set("limit", strconv.Itoa(SuggestLimit))
	out, err := m.places(ctx, url.PathEscape(query), q)
	if err != nil {
		return nil, err
	}
	places := make([]models.Place, 0, len(out.Features))
	for _, f := range out.Features {
		// center is [lon, lat]
		places = append(places, models.Place{Coord: models.Coord{Lat: f.Center[1], Lon: f.Center[0]}, Name: f.PlaceName})
	}
	return places, nil
}

func (m *MapboxClient) places(ctx context.Context, search string, q url.Values) (mapboxResponse, error) {
	var out mapboxResponse
	if m.Limiter != nil {
		if err := m.Limiter.Wait(ctx); err != nil {
			return out, err
		}
	}
	q.Set("access_token", m.AccessToken)
	u := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", m.Endpoint, search, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return out, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("mapbox geocoding: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("mapbox geocoding decode: %w", err)
	}
	return out, nil
}
