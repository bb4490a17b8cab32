package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/dispatch-client/internal/cache"
	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
)

// ErrRouteUnavailable means the provider answered but has no route between the points.
var ErrRouteUnavailable = errors.New("route unavailable")

// Client resolves the driving route between two points as an ordered polyline.
type Client interface {
	Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error)
}

// Key identifies an endpoint pair; coordinates are rounded to 1e-6 degrees.
func Key(from, to models.Coord) string {
	return fmtCoord(from) + "->" + fmtCoord(to)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Cached consults a cache.Store before asking the provider. Failures are not cached.
type Cached struct {
	Next   Client
	Store  cache.Store
	TTL    time.Duration
	Logger *slog.Logger
}

func NewCached(next Client, store cache.Store, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{Next: next, Store: store, TTL: ttl, Logger: logging.OrDiscard(logger)}
}

func (c *Cached) Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	key := "route:" + Key(from, to)
	if b, ok, err := c.Store.Get(ctx, key); err != nil {
		c.Logger.Warn("route cache read failed", "key", key, "error", err)
	} else if ok {
		var pts []models.Coord
		if err := json.Unmarshal(b, &pts); err == nil {
			observability.RouteFetches.WithLabelValues("cache_hit").Inc()
			return pts, nil
		}
	}

	pts, err := c.Next.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(pts); err == nil {
		if err := c.Store.Set(ctx, key, b, c.TTL); err != nil {
			c.Logger.Warn("route cache write failed", "key", key, "error", err)
		}
	}
	return pts, nil
}
