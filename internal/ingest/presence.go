package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-client/internal/models"
)

// PresenceWriter records the latest known position of a driver.
type PresenceWriter interface {
	Record(ctx context.Context, p models.DriverPresence) error
}

// GeoClient is the subset of go-redis the presence store needs.
type GeoClient interface {
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisPresence keeps driver positions in a GEO set and the rest of the
// presence record in one hash per driver.
type RedisPresence struct {
	client GeoClient
	key    string
}

const defaultGeoKey = "drivers_geo"

func NewRedisPresence(addr, password, prefix string) *RedisPresence {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisPresenceWithClient(c, prefix)
}

func NewRedisPresenceWithClient(c GeoClient, prefix string) *RedisPresence {
	return &RedisPresence{client: c, key: prefix + defaultGeoKey}
}

func (r *RedisPresence) Record(ctx context.Context, p models.DriverPresence) error {
	if p.Location != nil {
		loc := &redis.GeoLocation{Name: p.DriverID, Latitude: p.Location.Lat, Longitude: p.Location.Lon}
		if err := r.client.GeoAdd(ctx, r.key, loc).Err(); err != nil {
			return err
		}
	}
	return r.client.HSet(ctx, r.metaKey(p.DriverID),
		"online", strconv.FormatBool(p.Online),
		"booking_id", p.BookingID,
		"updated", p.Updated.UTC().Format(time.RFC3339),
	).Err()
}

func (r *RedisPresence) metaKey(id string) string { return r.key + ":meta:" + id }

// Ping checks connectivity when the underlying client supports it.
func (r *RedisPresence) Ping(ctx context.Context) error {
	if p, ok := r.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	}); ok {
		return p.Ping(ctx).Err()
	}
	return nil
}

func (r *RedisPresence) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
