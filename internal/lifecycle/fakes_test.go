package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/dispatch-client/internal/backend"
	"github.com/example/dispatch-client/internal/models"
)

func inline(f func()) { f() }

type fakeDirections struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeDirections) Route(_ context.Context, from, to models.Coord) ([]models.Coord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%v->%v", from, to))
	if f.err != nil {
		return nil, f.err
	}
	return []models.Coord{from, to}, nil
}

func (f *fakeDirections) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGeocoder struct {
	err error
}

func (f *fakeGeocoder) PlaceName(_ context.Context, at models.Coord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "place " + at.String(), nil
}

type fakePlaces struct {
	query string
	err   error
}

func (f *fakePlaces) Suggest(_ context.Context, query string) ([]models.Place, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return []models.Place{{Coord: pickup, Name: "Indiranagar"}, {Coord: dropoff, Name: "Koramangala"}}, nil
}

type fakeUserAPI struct {
	mu       sync.Mutex
	created  []backend.BookingRequest
	booking  models.Booking
	active   *models.Booking
	driver   models.DriverDetails
	estimate float64
	err      error
	drivers  int
}

func (f *fakeUserAPI) CreateBooking(_ context.Context, in backend.BookingRequest) (models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	if f.err != nil {
		return models.Booking{}, f.err
	}
	return f.booking, nil
}

func (f *fakeUserAPI) ActiveBooking(context.Context) (*models.Booking, error) { return f.active, f.err }

func (f *fakeUserAPI) EstimatePrice(context.Context, backend.EstimateRequest) (float64, error) {
	return f.estimate, f.err
}

func (f *fakeUserAPI) BookingDriver(context.Context, string) (models.DriverDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drivers++
	return f.driver, nil
}

type fakeDriverAPI struct {
	mu        sync.Mutex
	responses []string
	statuses  []models.Status
	online    []string
	active    []models.Booking
	fresh     map[string]models.Booking
	err       error
}

func (f *fakeDriverAPI) RespondBooking(_ context.Context, id string, d backend.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.responses = append(f.responses, id+":"+string(d))
	return nil
}

func (f *fakeDriverAPI) UpdateBookingStatus(_ context.Context, _ string, s models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statuses = append(f.statuses, s)
	return nil
}

func (f *fakeDriverAPI) SetDriverStatus(_ context.Context, s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, s)
	return f.err
}

func (f *fakeDriverAPI) DriverActiveBookings(context.Context) ([]models.Booking, error) {
	return f.active, nil
}

func (f *fakeDriverAPI) DriverBooking(_ context.Context, id string) (models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.fresh[id]
	if !ok {
		return models.Booking{}, &backend.NetworkError{Method: "GET", Path: "/drivers/bookings/" + id, Status: 404}
	}
	return b, nil
}

func (f *fakeDriverAPI) responded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.responses...)
}

var (
	pickup  = models.Coord{Lat: 12.9, Lon: 77.6}
	dropoff = models.Coord{Lat: 12.95, Lon: 77.65}
)

func request(id string) models.Booking {
	return models.Booking{
		ID:          id,
		Pickup:      models.NewLocation(pickup, ""),
		Dropoff:     models.NewLocation(dropoff, ""),
		VehicleType: models.VehicleCar,
		Status:      models.StatusPending,
	}
}
