package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/dispatch-client/internal/directions"
	"github.com/example/dispatch-client/internal/fleet"
	"github.com/example/dispatch-client/internal/geocode"
	"github.com/example/dispatch-client/internal/lifecycle"
	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/mapview"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/realtime"
	"github.com/example/dispatch-client/internal/session"
	"github.com/example/dispatch-client/internal/tracker"
)

// Backend is every backend call a dashboard of any role may make.
// *backend.Client implements it.
type Backend interface {
	lifecycle.UserBackend
	lifecycle.DriverBackend
	fleet.AdminAPI
	tracker.LocationUpdater
}

type Deps struct {
	Session *session.Session
	// Role, when set, is the dashboard the caller asked for; the session
	// must carry it. Empty mounts the session's own role.
	Role       session.Role
	Bus        *realtime.Bus
	Backend    Backend
	Directions directions.Client
	Geocoder   geocode.Client
	Places     geocode.Suggester

	// Source feeds the location tracker; without one nothing is tracked.
	Source       tracker.Source
	Interval     time.Duration
	ExtraSinks   []tracker.Sink
	OfferTimeout time.Duration
	Logger       *slog.Logger

	// Spawn overrides how background lookups run.
	Spawn func(func())
}

// Notice is a transient message for the operator: a failed call or an
// unavailable position.
type Notice struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

const maxNotices = 20

// Dashboard is one mounted role view. Everything it starts is stopped by Close.
type Dashboard struct {
	role    session.Role
	userID  string
	user    *lifecycle.UserController
	driver  *lifecycle.DriverController
	fleet   *fleet.View
	tracker *tracker.Tracker
	sub     *realtime.Subscription
	logger  *slog.Logger

	fitter mapview.Fitter
	kick   chan struct{}

	mu      sync.RWMutex
	frame   mapview.Frame
	notices []Notice

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var ErrNoBus = errors.New("dashboard: event bus is required")

// Mount checks the session, builds the controller for its role, subscribes to
// that role's events, restores any booking in progress and starts the event
// loop. A failed restore is reported as a notice; it does not stop the mount.
func Mount(ctx context.Context, deps Deps) (*Dashboard, error) {
	if deps.Session == nil {
		return nil, session.ErrUnauthenticated
	}
	if err := deps.Session.Gate(deps.Role); err != nil {
		return nil, err
	}
	if deps.Bus == nil {
		return nil, ErrNoBus
	}
	role := deps.Session.Role()
	logger := logging.OrDiscard(deps.Logger).With("role", string(role), "user_id", deps.Session.UserID())

	d := &Dashboard{
		role:   role,
		userID: deps.Session.UserID(),
		logger: logger,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	collab := lifecycle.Collaborators{
		Directions: deps.Directions,
		Geocoder:   deps.Geocoder,
		Places:     deps.Places,
		Logger:     logger,
		OnChange:   d.poke,
		Spawn:      deps.Spawn,
	}
	opts := tracker.Options{Interval: deps.Interval, Logger: logger, OnError: d.locationError}

	switch role {
	case session.RoleUser:
		d.user = lifecycle.NewUserController(deps.Backend, collab)
		d.sub = deps.Bus.Subscribe("user-dashboard", realtime.TypeBookingAccepted, realtime.TypeStatusUpdate, realtime.TypeDriverLocation)
		if deps.Source != nil {
			opts.OnSample = d.user.SetUserLocation
			// the backend takes positions from drivers only
			d.tracker = tracker.New(deps.Source, multi(deps.ExtraSinks), opts)
		}
		if err := d.user.LoadActive(ctx); err != nil {
			d.notify("warn", "could not load active booking: "+err.Error())
		}
	case session.RoleDriver:
		d.driver = lifecycle.NewDriverController(deps.Backend, deps.OfferTimeout, collab)
		d.sub = deps.Bus.Subscribe("driver-dashboard", realtime.TypeNewBookingRequest, realtime.TypeStatusUpdate)
		if deps.Source != nil {
			opts.OnSample = d.driver.SetLocation
			sinks := append([]tracker.Sink{tracker.RESTSink{API: deps.Backend}}, deps.ExtraSinks...)
			d.tracker = tracker.New(deps.Source, multi(sinks), opts)
		}
		if err := d.driver.LoadActive(ctx); err != nil {
			d.notify("warn", "could not load active booking: "+err.Error())
		}
	case session.RoleAdmin:
		d.fleet = fleet.New(deps.Backend, logger)
		d.sub = deps.Bus.Subscribe("admin-dashboard", realtime.TypeDriverStatusUpdate)
		if err := d.fleet.Load(ctx); err != nil {
			d.notify("warn", "could not load fleet: "+err.Error())
		}
	default:
		d.cancel()
		return nil, fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
	}

	go d.loop()
	d.poke()
	logger.Info("dashboard mounted")
	return d, nil
}

func multi(sinks []tracker.Sink) tracker.Sink {
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	}
	return tracker.Multi(sinks)
}

// poke asks the loop to reconcile. It never blocks, so it is safe to call
// from controller callbacks and tracker ticks.
func (d *Dashboard) poke() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Dashboard) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.sub.Ready():
			for _, ev := range d.sub.Poll() {
				d.handle(ev)
			}
		case <-d.kick:
			d.reconcile()
		}
	}
}

func (d *Dashboard) handle(ev realtime.Event) {
	var applied bool
	switch {
	case d.user != nil:
		applied = d.user.HandleEvent(ev)
	case d.driver != nil:
		applied = d.driver.HandleEvent(ev)
	case d.fleet != nil:
		applied = d.fleet.HandleEvent(ev)
	}
	d.logger.Debug("realtime event", "type", ev.Type(), "applied", applied)
	if applied {
		d.poke()
	}
}

// reconcile starts or stops the tracker to match the controller and
// recomputes the map frame.
func (d *Dashboard) reconcile() {
	if d.tracker != nil {
		should := d.shouldTrack()
		switch {
		case should && !d.tracker.Running():
			d.tracker.Start(d.ctx)
		case !should && d.tracker.Running():
			d.tracker.Stop()
		}
	}
	frame := d.fitter.Apply(mapview.Derive(d.mapInput()))
	d.mu.Lock()
	d.frame = frame
	d.mu.Unlock()
}

func (d *Dashboard) shouldTrack() bool {
	switch {
	case d.user != nil:
		return d.user.ShouldTrack()
	case d.driver != nil:
		return d.driver.ShouldTrack()
	}
	return false
}

func (d *Dashboard) mapInput() mapview.Input {
	in := mapview.Input{Role: d.role}
	var b *models.Booking
	var names lifecycle.PlaceNames
	switch {
	case d.user != nil:
		v := d.user.View()
		b, names, in.Route = v.Booking, v.Names, v.Route
		in.Own, in.Counterpart = v.UserPos, v.DriverPos
	case d.driver != nil:
		v := d.driver.View()
		b, names, in.Route = v.Current, v.Names, v.Route
		in.Own = v.Position
	}
	if b != nil {
		p, q := b.Pickup.Coord(), b.Dropoff.Coord()
		in.Status = b.Status
		in.Pickup, in.Dropoff = &p, &q
		in.PickupName, in.DropoffName = names.Pickup, names.Dropoff
	}
	return in
}

func (d *Dashboard) locationError(err error) {
	if errors.Is(err, tracker.ErrLocationUnavailable) {
		d.notify("warn", "location unavailable")
		return
	}
	d.notify("warn", "location update failed: "+err.Error())
}

func (d *Dashboard) notify(level, msg string) {
	d.mu.Lock()
	d.notices = append(d.notices, Notice{At: time.Now(), Level: level, Message: msg})
	if len(d.notices) > maxNotices {
		d.notices = d.notices[len(d.notices)-maxNotices:]
	}
	d.mu.Unlock()
}

// Report records the outcome of an operator action as a notice and passes
// the error through.
func (d *Dashboard) Report(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *lifecycle.StateError
	if errors.As(err, &se) {
		d.logger.Warn("action refused", "op", op, "error", err)
	} else {
		d.logger.Error("action failed", "op", op, "error", err)
	}
	d.notify("error", op+": "+err.Error())
	return err
}

func (d *Dashboard) Role() session.Role                  { return d.role }
func (d *Dashboard) User() *lifecycle.UserController     { return d.user }
func (d *Dashboard) Driver() *lifecycle.DriverController { return d.driver }
func (d *Dashboard) Fleet() *fleet.View                  { return d.fleet }
func (d *Dashboard) Tracking() bool                      { return d.tracker != nil && d.tracker.Running() }

// BookingID is the booking the dashboard is currently showing, or "".
func (d *Dashboard) BookingID() string {
	switch {
	case d.user != nil:
		if b := d.user.View().Booking; b != nil {
			return b.ID
		}
	case d.driver != nil:
		if v := d.driver.View(); v.Active && v.Current != nil {
			return v.Current.ID
		}
	}
	return ""
}

func (d *Dashboard) Frame() mapview.Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frame
}

func (d *Dashboard) Notices() []Notice {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Notice(nil), d.notices...)
}

// Close stops the loop and the tracker, cancels offer timers and releases the
// subscription. It is safe to call more than once.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
		if d.tracker != nil {
			d.tracker.Stop()
		}
		if d.driver != nil {
			d.driver.Close()
		}
		d.sub.Close()
		d.logger.Info("dashboard closed")
	})
}
