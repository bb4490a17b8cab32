package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/dispatch-client/internal/cache"
	"github.com/example/dispatch-client/internal/models"
)

var spot = models.Coord{Lat: 12.9, Lon: 77.6}

func TestMapboxPlaceName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocoding/v5/mapbox.places/77.600000,12.900000.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("access_token") != "tok" || q.Get("limit") != "1" || q.Get("types") != "place,poi,address" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"features":[{"place_name":"MG Road, Bengaluru"}]}`))
	}))
	defer srv.Close()

	name, err := NewMapboxClient(srv.URL, "tok", 100).PlaceName(context.Background(), spot)
	if err != nil || name != "MG Road, Bengaluru" {
		t.Fatalf("unexpected %q %v", name, err)
	}
}

func TestMapboxSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocoding/v5/mapbox.places/MG Road/Bengaluru.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("access_token") != "tok" || q.Get("autocomplete") != "true" || q.Get("limit") != "5" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"features":[
			{"place_name":"MG Road, Bengaluru","center":[77.6094,12.9756]},
			{"place_name":"MG Road Metro","center":[77.6066,12.9755]}]}`))
	}))
	defer srv.Close()

	c := NewMapboxClient(srv.URL, "tok", 100)
	places, err := c.Suggest(context.Background(), "  MG Road/Bengaluru ")
	if err != nil {
		t.Fatal(err)
	}
	if len(places) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", places)
	}
	if places[0].Name != "MG Road, Bengaluru" || places[0].Lat != 12.9756 || places[0].Lon != 77.6094 {
		t.Fatalf("center not mapped to lat/lon: %+v", places[0])
	}

	none, err := c.Suggest(context.Background(), " ")
	if err != nil || none != nil {
		t.Fatalf("empty query should have no suggestions, got %v %v", none, err)
	}
}

func TestMapboxSuggestRateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := NewMapboxClient(srv.URL, "tok", 0.001)
	if _, err := c.Suggest(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Suggest(ctx, "ab"); err == nil {
		t.Fatal("second lookup should wait on the limiter and give up")
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
}

func TestMapboxNoFeature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := NewMapboxClient(srv.URL, "tok", 100)
	if _, err := c.PlaceName(context.Background(), spot); !errors.Is(err, ErrGeocodeUnavailable) {
		t.Fatalf("expected ErrGeocodeUnavailable, got %v", err)
	}
	if got := PlaceNameOrPlaceholder(context.Background(), c, spot); got != Placeholder {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

type fakeGeocoder struct {
	calls int
	name  string
	err   error
}

func (f *fakeGeocoder) PlaceName(ctx context.Context, at models.Coord) (string, error) {
	f.calls++
	return f.name, f.err
}

func TestCachedPlaceName(t *testing.T) {
	next := &fakeGeocoder{name: "Indiranagar"}
	c := NewCached(next, cache.NewMemory(), time.Minute, nil)
	for i := 0; i < 2; i++ {
		if name, err := c.PlaceName(context.Background(), spot); err != nil || name != "Indiranagar" {
			t.Fatalf("unexpected %q %v", name, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected single lookup, got %d", next.calls)
	}
}

func TestPlaceholderOnError(t *testing.T) {
	next := &fakeGeocoder{err: errors.New("timeout")}
	if got := PlaceNameOrPlaceholder(context.Background(), next, spot); got != Placeholder {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := PlaceNameOrPlaceholder(context.Background(), nil, spot); got != Placeholder {
		t.Fatalf("nil client should degrade, got %q", got)
	}
}
