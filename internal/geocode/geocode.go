package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/dispatch-client/internal/cache"
	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
)

// Placeholder is shown wherever a place name could not be resolved.
const Placeholder = "Unknown Location"

// ErrGeocodeUnavailable means the provider has no place for the point.
var ErrGeocodeUnavailable = errors.New("geocode unavailable")

type Client interface {
	PlaceName(ctx context.Context, at models.Coord) (string, error)
}

// Suggester completes a partly typed address into candidate places.
type Suggester interface {
	Suggest(ctx context.Context, query string) ([]models.Place, error)
}

// PlaceNameOrPlaceholder never fails: any lookup error degrades to Placeholder.
func PlaceNameOrPlaceholder(ctx context.Context, c Client, at models.Coord) string {
	if c == nil {
		return Placeholder
	}
	name, err := c.PlaceName(ctx, at)
	if err != nil || name == "" {
		if errors.Is(err, ErrGeocodeUnavailable) {
			observability.GeocodeLookups.WithLabelValues("unavailable").Inc()
		} else {
			observability.GeocodeLookups.WithLabelValues("error").Inc()
		}
		return Placeholder
	}
	observability.GeocodeLookups.WithLabelValues("ok").Inc()
	return name
}

// Cached stores resolved names; failures are not cached.
type Cached struct {
	Next   Client
	Store  cache.Store
	TTL    time.Duration
	Logger *slog.Logger
}

func NewCached(next Client, store cache.Store, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{Next: next, Store: store, TTL: ttl, Logger: logging.OrDiscard(logger)}
}

func (c *Cached) PlaceName(ctx context.Context, at models.Coord) (string, error) {
	key := fmt.Sprintf("place:%.6f,%.6f", at.Lat, at.Lon)
	if b, ok, err := c.Store.Get(ctx, key); err != nil {
		c.Logger.Warn("place cache read failed", "key", key, "error", err)
	} else if ok {
		return string(b), nil
	}
	name, err := c.Next.PlaceName(ctx, at)
	if err != nil {
		return "", err
	}
	if err := c.Store.Set(ctx, key, []byte(name), c.TTL); err != nil {
		c.Logger.Warn("place cache write failed", "key", key, "error", err)
	}
	return name, nil
}
