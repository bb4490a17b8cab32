package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/dispatch-client/internal/backend"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
	"github.com/example/dispatch-client/internal/realtime"
)

// DriverBackend is the part of the backend API a driver dashboard calls.
type DriverBackend interface {
	RespondBooking(ctx context.Context, bookingID string, d backend.Decision) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status models.Status) error
	SetDriverStatus(ctx context.Context, status string) error
	DriverActiveBookings(ctx context.Context) ([]models.Booking, error)
	DriverBooking(ctx context.Context, bookingID string) (models.Booking, error)
}

// DriverView is a consistent snapshot of the driver dashboard state.
type DriverView struct {
	Online   bool             `json:"online"`
	Requests []models.Booking `json:"requests"`
	// Current is the displayed request while Active is false, otherwise the
	// accepted booking.
	Current  *models.Booking `json:"current"`
	Active   bool            `json:"active"`
	Position *models.Coord   `json:"position,omitempty"`
	Leg      Leg             `json:"leg"`
	Route    []models.Coord  `json:"route"`
	Names    PlaceNames      `json:"names"`
}

// DriverController holds the queue of offered requests and at most one
// accepted booking. Accepting a request clears the rest of the queue.
type DriverController struct {
	derived

	api          DriverBackend
	offerTimeout time.Duration

	online  bool
	queue   []models.Booking
	current *models.Booking
	pos     *models.Coord
	timers  map[string]*time.Timer
	closed  bool
}

// NewDriverController builds a controller; offerTimeout <= 0 keeps offers
// until the driver answers.
func NewDriverController(api DriverBackend, offerTimeout time.Duration, c Collaborators) *DriverController {
	d := &DriverController{
		api:          api,
		offerTimeout: offerTimeout,
		timers:       make(map[string]*time.Timer),
	}
	d.derived.setup(c)
	return d
}

func (d *DriverController) activeLocked() bool {
	return d.current != nil && d.current.Status != models.StatusPending
}

func (d *DriverController) indexLocked(id string) int {
	for i := range d.queue {
		if d.queue[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *DriverController) routeLocked() func() {
	if d.current == nil {
		return d.routeJobLocked(models.Coord{}, models.Coord{}, false)
	}
	from, to, ok := LegFor(d.current.Status).Endpoints(d.current.Pickup.Coord(), d.current.Dropoff.Coord(), d.pos)
	return d.routeJobLocked(from, to, ok)
}

func (d *DriverController) queueChangedLocked() {
	observability.RequestQueueDepth.Set(float64(len(d.queue)))
}

func (d *DriverController) stopTimerLocked(id string) {
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
}

func (d *DriverController) stopTimersLocked() {
	for id := range d.timers {
		d.stopTimerLocked(id)
	}
}

// SetOnline tells the backend about availability and, once it agrees,
// starts or stops accepting offers.
func (d *DriverController) SetOnline(ctx context.Context, online bool) error {
	status := backend.DriverOffline
	if online {
		status = backend.DriverAvailable
	}
	if err := d.api.SetDriverStatus(ctx, status); err != nil {
		return err
	}
	d.mu.Lock()
	d.online = online
	d.mu.Unlock()
	d.changed()
	return nil
}

// Offer queues a pushed request. It is refused while the driver is offline,
// already has an accepted booking, or has the id queued.
func (d *DriverController) Offer(b models.Booking) bool {
	if b.ID == "" {
		d.logger.Warn("ignoring booking request without id")
		return false
	}
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	d.mu.Lock()
	if d.closed || !d.online || d.activeLocked() || b.Status != models.StatusPending || d.indexLocked(b.ID) >= 0 {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, b)
	d.queueChangedLocked()
	jobs := []func(){d.nameJobLocked(b)}
	if d.current == nil {
		cur := b
		d.current = &cur
		jobs = append(jobs, d.routeLocked())
	}
	if d.offerTimeout > 0 {
		id := b.ID
		d.timers[id] = time.AfterFunc(d.offerTimeout, func() { d.expire(id) })
	}
	d.mu.Unlock()
	d.run(jobs)
	d.changed()
	return true
}

func (d *DriverController) expire(id string) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.logger.Info("booking request timed out", "booking_id", id)
	var se *StateError
	if err := d.Respond(ctx, id, backend.Reject); err != nil && !errors.As(err, &se) {
		d.logger.Warn("auto reject failed", "booking_id", id, "error", err)
	}
}

// Select displays a queued request without answering it.
func (d *DriverController) Select(id string) error {
	d.mu.Lock()
	if d.activeLocked() {
		cur := d.current.ID
		d.mu.Unlock()
		return &StateError{Op: "select", BookingID: id, Reason: "booking " + cur + " is in progress"}
	}
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return &StateError{Op: "select", BookingID: id, Reason: "not in request queue"}
	}
	cur := d.queue[i]
	d.current = &cur
	job := d.routeLocked()
	d.mu.Unlock()
	d.run([]func(){job})
	d.changed()
	return nil
}

// Respond answers a queued request. The backend is told first; local state
// changes only after it accepts the answer.
func (d *DriverController) Respond(ctx context.Context, id string, decision backend.Decision) error {
	if decision != backend.Accept && decision != backend.Reject {
		return fmt.Errorf("respond %s: unknown decision %q", id, decision)
	}
	d.mu.Lock()
	if d.indexLocked(id) < 0 {
		d.mu.Unlock()
		return &StateError{Op: "respond", BookingID: id, Reason: "not in request queue"}
	}
	d.mu.Unlock()

	if err := d.api.RespondBooking(ctx, id, decision); err != nil {
		return err
	}

	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		// withdrawn while the answer was in flight
		d.mu.Unlock()
		return nil
	}
	var jobs []func()
	if decision == backend.Accept {
		b := d.queue[i]
		b.Status = models.StatusDriverAssigned
		d.stopTimersLocked()
		d.queue = nil
		for k := range d.names {
			if k != id {
				delete(d.names, k)
			}
		}
		d.current = &b
		observability.StatusTransitions.WithLabelValues(string(b.Status)).Inc()
		jobs = append(jobs, d.nameJobLocked(b), d.routeLocked())
	} else {
		jobs = append(jobs, d.removeRequestLocked(id))
	}
	d.queueChangedLocked()
	d.mu.Unlock()
	d.run(jobs)
	d.changed()
	return nil
}

// removeRequestLocked drops a queued request; if it was displayed the first
// remaining request takes its place.
func (d *DriverController) removeRequestLocked(id string) func() {
	i := d.indexLocked(id)
	if i < 0 {
		return nil
	}
	d.stopTimerLocked(id)
	d.queue = append(d.queue[:i:i], d.queue[i+1:]...)
	delete(d.names, id)
	if d.current == nil || d.current.ID != id {
		return nil
	}
	d.current = nil
	if len(d.queue) > 0 {
		next := d.queue[0]
		d.current = &next
	}
	return d.routeLocked()
}

// AdvanceStatus moves the accepted booking exactly one step forward.
func (d *DriverController) AdvanceStatus(ctx context.Context, id string, next models.Status) error {
	d.mu.Lock()
	if !d.activeLocked() {
		d.mu.Unlock()
		return &StateError{Op: "advance status", BookingID: id, To: next, Reason: "no active booking"}
	}
	if d.current.ID != id {
		cur := d.current.ID
		d.mu.Unlock()
		return &StateError{Op: "advance status", BookingID: id, To: next, Reason: "active booking is " + cur}
	}
	from := d.current.Status
	if !from.CanAdvance(next) {
		d.mu.Unlock()
		return &StateError{Op: "advance status", BookingID: id, From: from, To: next, Reason: "not the next status"}
	}
	d.mu.Unlock()

	if err := d.api.UpdateBookingStatus(ctx, id, next); err != nil {
		return err
	}

	d.mu.Lock()
	if d.current == nil || d.current.ID != id || d.current.Status.Rank() >= next.Rank() {
		d.mu.Unlock()
		return nil
	}
	observability.StatusTransitions.WithLabelValues(string(next)).Inc()
	var jobs []func()
	if next == models.StatusCompleted {
		jobs = d.completeLocked()
	} else {
		d.current.Status = next
		jobs = append(jobs, d.routeLocked(), d.refreshJob(id))
	}
	d.mu.Unlock()
	d.run(jobs)
	d.changed()
	return nil
}

// completeLocked retires the accepted booking and shows the next queued
// request, if any.
func (d *DriverController) completeLocked() []func() {
	d.current = nil
	d.clearLocked()
	if len(d.queue) == 0 {
		return nil
	}
	next := d.queue[0]
	d.current = &next
	jobs := make([]func(), 0, len(d.queue)+1)
	for _, b := range d.queue {
		jobs = append(jobs, d.nameJobLocked(b))
	}
	return append(jobs, d.routeLocked())
}

// refreshJob reloads the booking after an advance; it never moves the status
// backwards.
func (d *DriverController) refreshJob(id string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fresh, err := d.api.DriverBooking(ctx, id)
		if err != nil {
			d.logger.Warn("booking refresh failed", "booking_id", id, "error", err)
			return
		}
		d.mu.Lock()
		if d.current == nil || d.current.ID != id || fresh.Status.Rank() < d.current.Status.Rank() {
			d.mu.Unlock()
			return
		}
		var jobs []func()
		if fresh.Status == models.StatusCompleted {
			jobs = d.completeLocked()
		} else {
			if fresh.Pickup.IsZero() {
				fresh.Pickup = d.current.Pickup
			}
			if fresh.Dropoff.IsZero() {
				fresh.Dropoff = d.current.Dropoff
			}
			d.current = &fresh
			jobs = append(jobs, d.routeLocked())
		}
		d.mu.Unlock()
		d.run(jobs)
		d.changed()
	}
}

// HandleEvent applies a pushed event and reports whether state changed.
func (d *DriverController) HandleEvent(ev realtime.Event) bool {
	switch e := ev.(type) {
	case realtime.NewBookingRequest:
		return d.Offer(e.Booking)
	case realtime.StatusUpdate:
		return d.applyStatus(e)
	case realtime.BookingAccepted, realtime.DriverLocation, realtime.DriverStatusUpdate, realtime.LocationUpdate, realtime.Unknown:
	}
	return false
}

func (d *DriverController) applyStatus(e realtime.StatusUpdate) bool {
	if !e.Status.Valid() {
		d.logger.Warn("ignoring unknown booking status", "booking_id", e.BookingID, "status", e.Status)
		return false
	}
	d.mu.Lock()
	var (
		jobs    []func()
		applied bool
	)
	switch {
	case d.activeLocked() && d.current.ID == e.BookingID:
		applied = true
		observability.StatusTransitions.WithLabelValues(string(e.Status)).Inc()
		if e.Status.Terminal() {
			jobs = d.completeLocked()
			break
		}
		d.current.Status = e.Status
		jobs = append(jobs, d.routeLocked())
	case d.indexLocked(e.BookingID) >= 0 && e.Status != models.StatusPending:
		// the request was taken or withdrawn elsewhere
		applied = true
		jobs = append(jobs, d.removeRequestLocked(e.BookingID))
		d.queueChangedLocked()
	}
	d.mu.Unlock()
	if applied {
		d.run(jobs)
		d.changed()
	}
	return applied
}

// SetLocation records the driver's own position from the tracker.
func (d *DriverController) SetLocation(at models.Coord) {
	d.mu.Lock()
	d.pos = &at
	job := d.routeLocked()
	d.mu.Unlock()
	d.run([]func(){job})
	d.changed()
}

// LoadActive restores an accepted booking left in progress.
func (d *DriverController) LoadActive(ctx context.Context) error {
	list, err := d.api.DriverActiveBookings(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	b := list[0]
	if b.Status.Terminal() || b.Status == models.StatusPending {
		return nil
	}
	d.mu.Lock()
	if d.activeLocked() {
		d.mu.Unlock()
		return nil
	}
	d.current = &b
	jobs := []func(){d.nameJobLocked(b), d.routeLocked()}
	d.mu.Unlock()
	d.run(jobs)
	d.changed()
	return nil
}

// ShouldTrack holds while the driver is online or has a booking in progress.
func (d *DriverController) ShouldTrack() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online || d.activeLocked()
}

func (d *DriverController) View() DriverView {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := DriverView{
		Online:   d.online,
		Requests: append([]models.Booking(nil), d.queue...),
		Active:   d.activeLocked(),
		Route:    d.routeCopyLocked(),
	}
	if d.current != nil {
		b := *d.current
		v.Current = &b
		v.Leg = LegFor(b.Status)
		v.Names = d.names[b.ID]
	}
	if d.pos != nil {
		p := *d.pos
		v.Position = &p
	}
	return v
}

// Close cancels pending offer timers; later offers are refused.
func (d *DriverController) Close() {
	d.mu.Lock()
	d.closed = true
	d.stopTimersLocked()
	d.mu.Unlock()
}
