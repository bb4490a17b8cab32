package directions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/dispatch-client/internal/cache"
	"github.com/example/dispatch-client/internal/models"
)

var (
	pickup  = models.Coord{Lat: 12.9, Lon: 77.6}
	dropoff = models.Coord{Lat: 12.95, Lon: 77.65}
)

func TestORSRouteConvertsCoordinateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/directions/driving-car/geojson" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "key" {
			t.Errorf("missing api key")
		}
		var body struct {
			Coordinates [][]float64 `json:"coordinates"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Coordinates[0][0] != 77.6 || body.Coordinates[0][1] != 12.9 {
			t.Errorf("expected lon,lat order, got %v", body.Coordinates)
		}
		w.Write([]byte(`{"features":[{"geometry":{"coordinates":[[77.6,12.9],[77.62,12.92],[77.65,12.95]]}}]}`))
	}))
	defer srv.Close()

	c := NewORSClient(srv.URL, "key", 100)
	pts, err := c.Route(context.Background(), pickup, dropoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 3 || pts[0] != pickup || pts[2] != dropoff {
		t.Fatalf("unexpected route %v", pts)
	}
}

func TestORSNoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	_, err := NewORSClient(srv.URL, "key", 100).Route(context.Background(), pickup, dropoff)
	if !errors.Is(err, ErrRouteUnavailable) {
		t.Fatalf("expected ErrRouteUnavailable, got %v", err)
	}
}

func TestORSServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewORSClient(srv.URL, "key", 100).Route(context.Background(), pickup, dropoff)
	if err == nil || errors.Is(err, ErrRouteUnavailable) || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestOSRMRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/77.600000,12.900000;77.650000,12.950000") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[77.6,12.9],[77.65,12.95]]}}]}`))
	}))
	defer srv.Close()

	pts, err := NewOSRMClient(srv.URL, 100).Route(context.Background(), pickup, dropoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[1] != dropoff {
		t.Fatalf("unexpected route %v", pts)
	}
}

func TestOSRMNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewOSRMClient(srv.URL, 100).Route(context.Background(), pickup, dropoff)
	if !errors.Is(err, ErrRouteUnavailable) {
		t.Fatalf("expected ErrRouteUnavailable, got %v", err)
	}
}

type countingClient struct {
	calls int
	err   error
}

func (c *countingClient) Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []models.Coord{from, to}, nil
}

func TestCachedRoute(t *testing.T) {
	next := &countingClient{}
	c := NewCached(next, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		pts, err := c.Route(ctx, pickup, dropoff)
		if err != nil || len(pts) != 2 {
			t.Fatalf("unexpected result %v %v", pts, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one provider call, got %d", next.calls)
	}
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	next := &countingClient{err: ErrRouteUnavailable}
	c := NewCached(next, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	_, _ = c.Route(ctx, pickup, dropoff)
	_, err := c.Route(ctx, pickup, dropoff)
	if !errors.Is(err, ErrRouteUnavailable) || next.calls != 2 {
		t.Fatalf("failures must not be cached: calls=%d err=%v", next.calls, err)
	}
}

func TestKeyRounds(t *testing.T) {
	a := Key(models.Coord{Lat: 1.0000001, Lon: 2}, pickup)
	b := Key(models.Coord{Lat: 1.0000002, Lon: 2}, pickup)
	if a != b {
		t.Fatalf("expected rounding to collapse keys: %s vs %s", a, b)
	}
}
