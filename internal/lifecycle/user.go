package lifecycle

import (
	"context"
	"time"

	"github.com/example/dispatch-client/internal/backend"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
	"github.com/example/dispatch-client/internal/realtime"
)

// UserBackend is the part of the backend API a user dashboard calls.
type UserBackend interface {
	CreateBooking(ctx context.Context, in backend.BookingRequest) (models.Booking, error)
	ActiveBooking(ctx context.Context) (*models.Booking, error)
	EstimatePrice(ctx context.Context, in backend.EstimateRequest) (float64, error)
	BookingDriver(ctx context.Context, bookingID string) (models.DriverDetails, error)
}

// Place is a picked point with the label the user saw when picking it.
type Place = models.Place

// BookingInput is the booking form. Pickup and Dropoff are nil until chosen.
type BookingInput struct {
	Pickup        *Place
	Dropoff       *Place
	VehicleType   models.VehicleType
	ScheduledTime *time.Time
}

// UserView is a consistent snapshot of the user dashboard state.
type UserView struct {
	Booking   *models.Booking       `json:"booking"`
	Driver    *models.DriverDetails `json:"driver,omitempty"`
	DriverPos *models.Coord         `json:"driver_position,omitempty"`
	UserPos   *models.Coord         `json:"user_position,omitempty"`
	Leg       Leg                   `json:"leg"`
	Route     []models.Coord        `json:"route"`
	Names     PlaceNames            `json:"names"`
	Estimate  float64               `json:"estimate,omitempty"`
}

// UserController tracks the one booking a user has in flight.
type UserController struct {
	derived

	api UserBackend
	now func() time.Time

	booking   *models.Booking
	driver    *models.DriverDetails
	driverPos *models.Coord
	userPos   *models.Coord
	estimate  float64
}

func NewUserController(api UserBackend, c Collaborators) *UserController {
	u := &UserController{api: api, now: time.Now}
	u.derived.setup(c)
	return u
}

func (u *UserController) validate(in BookingInput, needVehicle bool) error {
	if in.Pickup == nil {
		return &ValidationError{Field: "pickup_location", Reason: "must be set"}
	}
	if in.Dropoff == nil {
		return &ValidationError{Field: "dropoff_location", Reason: "must be set"}
	}
	if needVehicle && !in.VehicleType.Valid() {
		return &ValidationError{Field: "vehicle_type", Reason: "must be bike, car or van"}
	}
	if in.ScheduledTime != nil && in.ScheduledTime.Before(u.now()) {
		return &ValidationError{Field: "scheduled_time", Reason: "must be in the future"}
	}
	return nil
}

// CreateBooking submits the form. State changes only once the backend has
// accepted the booking; the new booking is always Pending.
func (u *UserController) CreateBooking(ctx context.Context, in BookingInput) (models.Booking, error) {
	if err := u.validate(in, true); err != nil {
		return models.Booking{}, err
	}
	u.mu.Lock()
	if u.booking != nil {
		b := *u.booking
		u.mu.Unlock()
		return models.Booking{}, &StateError{Op: "create booking", BookingID: b.ID, From: b.Status, Reason: "a booking is already in progress"}
	}
	u.mu.Unlock()

	req := backend.BookingRequest{
		Pickup:        models.NewLocation(in.Pickup.Coord, in.Pickup.Name),
		Dropoff:       models.NewLocation(in.Dropoff.Coord, in.Dropoff.Name),
		VehicleType:   in.VehicleType,
		ScheduledTime: in.ScheduledTime,
	}
	b, err := u.api.CreateBooking(ctx, req)
	if err != nil {
		return models.Booking{}, err
	}
	b.Status = models.StatusPending
	if b.Pickup.IsZero() {
		b.Pickup = req.Pickup
	}
	if b.Dropoff.IsZero() {
		b.Dropoff = req.Dropoff
	}
	if b.VehicleType == "" {
		b.VehicleType = in.VehicleType
	}
	if b.ScheduledTime == nil {
		b.ScheduledTime = in.ScheduledTime
	}
	observability.StatusTransitions.WithLabelValues(string(b.Status)).Inc()

	u.mu.Lock()
	jobs := u.adoptLocked(b)
	u.mu.Unlock()
	u.run(jobs)
	u.changed()
	return b, nil
}

// SearchPlaces suggests pickup or dropoff places for a partly typed address.
// Without a configured place search there are no suggestions.
func (u *UserController) SearchPlaces(ctx context.Context, query string) ([]Place, error) {
	if u.places == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	places, err := u.places.Suggest(ctx, query)
	if err != nil {
		u.logger.Warn("place search failed", "error", err)
		return nil, err
	}
	return places, nil
}

// EstimatePrice asks the backend for a quote without creating anything.
func (u *UserController) EstimatePrice(ctx context.Context, in BookingInput) (float64, error) {
	if err := u.validate(in, false); err != nil {
		return 0, err
	}
	price, err := u.api.EstimatePrice(ctx, backend.EstimateRequest{
		Pickup:      models.NewLocation(in.Pickup.Coord, ""),
		Dropoff:     models.NewLocation(in.Dropoff.Coord, ""),
		VehicleType: in.VehicleType,
	})
	if err != nil {
		return 0, err
	}
	u.mu.Lock()
	u.estimate = price
	u.mu.Unlock()
	u.changed()
	return price, nil
}

// LoadActive restores a booking left in progress by an earlier session.
func (u *UserController) LoadActive(ctx context.Context) error {
	b, err := u.api.ActiveBooking(ctx)
	if err != nil {
		return err
	}
	if b == nil || b.Status.Terminal() {
		return nil
	}
	u.mu.Lock()
	jobs := u.adoptLocked(*b)
	if b.Status != models.StatusPending {
		jobs = append(jobs, u.driverJob(b.ID))
	}
	u.mu.Unlock()
	u.run(jobs)
	u.changed()
	return nil
}

func (u *UserController) adoptLocked(b models.Booking) []func() {
	u.clearLocked()
	u.booking = &b
	u.driver = nil
	u.driverPos = nil
	return []func(){u.nameJobLocked(b), u.routeLocked()}
}

func (u *UserController) routeLocked() func() {
	if u.booking == nil {
		return u.routeJobLocked(models.Coord{}, models.Coord{}, false)
	}
	from, to, ok := LegFor(u.booking.Status).Endpoints(u.booking.Pickup.Coord(), u.booking.Dropoff.Coord(), u.driverPos)
	return u.routeJobLocked(from, to, ok)
}

func (u *UserController) retireLocked() {
	u.booking = nil
	u.driver = nil
	u.driverPos = nil
	u.clearLocked()
}

// driverJob fetches the assigned driver and seeds the driver position from it
// when no live position has arrived yet.
func (u *UserController) driverJob(bookingID string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()
		d, err := u.api.BookingDriver(ctx, bookingID)
		if err != nil {
			u.logger.Warn("driver details fetch failed", "booking_id", bookingID, "error", err)
			return
		}
		u.mu.Lock()
		if u.booking == nil || u.booking.ID != bookingID {
			u.mu.Unlock()
			return
		}
		u.driver = &d
		var jobs []func()
		if u.driverPos == nil && !d.Location.IsZero() {
			pos := d.Location.Coord()
			u.driverPos = &pos
			jobs = append(jobs, u.routeLocked())
		}
		u.mu.Unlock()
		u.run(jobs)
		u.changed()
	}
}

// HandleEvent applies a pushed event. It reports whether state changed;
// events for any booking other than the tracked one are ignored.
func (u *UserController) HandleEvent(ev realtime.Event) bool {
	u.mu.Lock()
	var (
		jobs    []func()
		applied bool
	)
	switch e := ev.(type) {
	case realtime.BookingAccepted:
		if u.booking == nil || u.booking.ID != e.BookingID || u.booking.Status != models.StatusPending {
			break
		}
		u.booking.Status = models.StatusDriverAssigned
		if e.DriverID != "" {
			u.booking.DriverID = e.DriverID
		}
		observability.StatusTransitions.WithLabelValues(string(u.booking.Status)).Inc()
		jobs = append(jobs, u.routeLocked(), u.driverJob(u.booking.ID))
		applied = true
	case realtime.StatusUpdate:
		if u.booking == nil || u.booking.ID != e.BookingID {
			break
		}
		if !e.Status.Valid() {
			u.logger.Warn("ignoring unknown booking status", "booking_id", e.BookingID, "status", e.Status)
			break
		}
		observability.StatusTransitions.WithLabelValues(string(e.Status)).Inc()
		applied = true
		if e.Status.Terminal() {
			u.retireLocked()
			break
		}
		fetchDriver := u.driver == nil && u.booking.Status == models.StatusPending && e.Status != models.StatusPending
		u.booking.Status = e.Status
		jobs = append(jobs, u.routeLocked())
		if fetchDriver {
			jobs = append(jobs, u.driverJob(u.booking.ID))
		}
	case realtime.DriverLocation:
		if u.booking == nil || u.booking.ID != e.BookingID {
			break
		}
		pos := e.Coord()
		u.driverPos = &pos
		jobs = append(jobs, u.routeLocked())
		applied = true
	case realtime.NewBookingRequest, realtime.DriverStatusUpdate, realtime.LocationUpdate, realtime.Unknown:
	}
	u.mu.Unlock()
	if applied {
		u.run(jobs)
		u.changed()
	}
	return applied
}

// SetUserLocation records the user's own position for the map.
func (u *UserController) SetUserLocation(at models.Coord) {
	u.mu.Lock()
	u.userPos = &at
	u.mu.Unlock()
	u.changed()
}

// ShouldTrack holds while a booking is in progress.
func (u *UserController) ShouldTrack() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.booking != nil && !u.booking.Status.Terminal()
}

func (u *UserController) View() UserView {
	u.mu.Lock()
	defer u.mu.Unlock()
	v := UserView{
		Route:    u.routeCopyLocked(),
		Estimate: u.estimate,
	}
	if u.booking != nil {
		b := *u.booking
		v.Booking = &b
		v.Leg = LegFor(b.Status)
		v.Names = u.names[b.ID]
	}
	if u.driver != nil {
		d := *u.driver
		v.Driver = &d
	}
	if u.driverPos != nil {
		p := *u.driverPos
		v.DriverPos = &p
	}
	if u.userPos != nil {
		p := *u.userPos
		v.UserPos = &p
	}
	return v
}
