package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/dispatch-client/internal/directions"
	"github.com/example/dispatch-client/internal/geocode"
	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
)

const defaultFetchTimeout = 10 * time.Second

// PlaceNames are the resolved labels of a booking's endpoints.
type PlaceNames struct {
	Pickup  string `json:"pickup"`
	Dropoff string `json:"dropoff"`
}

// Collaborators are the optional lookups and hooks shared by both controllers.
type Collaborators struct {
	Directions directions.Client
	Geocoder   geocode.Client
	Places     geocode.Suggester
	Logger     *slog.Logger

	// OnChange runs after any state change, outside the controller lock.
	OnChange func()
	// Spawn runs background lookups; nil means one goroutine per job.
	Spawn        func(func())
	FetchTimeout time.Duration
}

// derived holds the route and place names computed from booking state. Its
// fields are guarded by mu, the owning controller's lock. Lookups run as jobs
// outside the lock and only apply their result when it is still wanted.
type derived struct {
	mu sync.Mutex

	dirs     directions.Client
	geo      geocode.Client
	places   geocode.Suggester
	logger   *slog.Logger
	onChange func()
	spawn    func(func())
	timeout  time.Duration

	legKey string // endpoint pair of the last requested route
	route  []models.Coord
	names  map[string]PlaceNames
}

func (d *derived) setup(c Collaborators) {
	d.dirs = c.Directions
	d.geo = c.Geocoder
	d.places = c.Places
	d.logger = logging.OrDiscard(c.Logger)
	d.onChange = c.OnChange
	d.spawn = c.Spawn
	d.timeout = c.FetchTimeout
	d.names = make(map[string]PlaceNames)
	if d.spawn == nil {
		d.spawn = func(f func()) { go f() }
	}
	if d.timeout <= 0 {
		d.timeout = defaultFetchTimeout
	}
}

func (d *derived) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}

func (d *derived) run(jobs []func()) {
	for _, j := range jobs {
		if j != nil {
			d.spawn(j)
		}
	}
}

// clearLocked drops every booking-scoped derived value.
func (d *derived) clearLocked() {
	d.legKey = ""
	d.route = nil
	clear(d.names)
}

// routeJobLocked returns the fetch for the pair, or nil when the pair is the
// one already requested. A result for a pair that is no longer current is
// discarded.
func (d *derived) routeJobLocked(from, to models.Coord, ok bool) func() {
	if !ok {
		d.legKey = ""
		d.route = nil
		return nil
	}
	key := directions.Key(from, to)
	if key == d.legKey {
		return nil
	}
	d.legKey = key
	if d.dirs == nil {
		return nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		pts, err := d.dirs.Route(ctx, from, to)
		switch {
		case err == nil:
			observability.RouteFetches.WithLabelValues("ok").Inc()
		case errors.Is(err, directions.ErrRouteUnavailable):
			observability.RouteFetches.WithLabelValues("unavailable").Inc()
			d.logger.Info("no route between endpoints", "leg", key)
		default:
			observability.RouteFetches.WithLabelValues("error").Inc()
			d.logger.Warn("route fetch failed", "leg", key, "error", err)
		}

		d.mu.Lock()
		if d.legKey != key {
			d.mu.Unlock()
			return
		}
		d.route = pts
		if err != nil && !errors.Is(err, directions.ErrRouteUnavailable) {
			// transient: allow the next update to ask again
			d.legKey = ""
		}
		d.mu.Unlock()
		d.changed()
	}
}

// nameJobLocked resolves the endpoint names of b once per booking id. Names
// the backend already supplied are used as is.
func (d *derived) nameJobLocked(b models.Booking) func() {
	if _, ok := d.names[b.ID]; ok {
		return nil
	}
	d.names[b.ID] = PlaceNames{Pickup: b.Pickup.Name, Dropoff: b.Dropoff.Name}
	if b.Pickup.Name != "" && b.Dropoff.Name != "" {
		return nil
	}
	id := b.ID
	pickup, dropoff := b.Pickup, b.Dropoff
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		var n PlaceNames
		if n.Pickup = pickup.Name; n.Pickup == "" {
			n.Pickup = geocode.PlaceNameOrPlaceholder(ctx, d.geo, pickup.Coord())
		}
		if n.Dropoff = dropoff.Name; n.Dropoff == "" {
			n.Dropoff = geocode.PlaceNameOrPlaceholder(ctx, d.geo, dropoff.Coord())
		}

		d.mu.Lock()
		if _, ok := d.names[id]; !ok {
			d.mu.Unlock()
			return
		}
		d.names[id] = n
		d.mu.Unlock()
		d.changed()
	}
}

func (d *derived) routeCopyLocked() []models.Coord {
	if len(d.route) == 0 {
		return nil
	}
	return append([]models.Coord(nil), d.route...)
}
