package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/realtime"
)

// AdminAPI is the admin part of the backend.
type AdminAPI interface {
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	Statistics(ctx context.Context) (models.Statistics, error)
	AssignVehicle(ctx context.Context, driverID, vehicleID string) error
	CreateVehicle(ctx context.Context, v models.Vehicle) error
	DeleteVehicle(ctx context.Context, vehicleID string) error
}

type Snapshot struct {
	Drivers    []models.Driver   `json:"drivers"`
	Vehicles   []models.Vehicle  `json:"vehicles"`
	Statistics models.Statistics `json:"statistics"`
}

// View is the admin's live driver table.
type View struct {
	api    AdminAPI
	logger *slog.Logger

	mu       sync.RWMutex
	drivers  map[string]models.Driver
	vehicles []models.Vehicle
	stats    models.Statistics
}

func New(api AdminAPI, logger *slog.Logger) *View {
	return &View{api: api, logger: logging.OrDiscard(logger), drivers: make(map[string]models.Driver)}
}

// Load refreshes drivers, vehicles and statistics. Each part is kept from the
// previous load when its request fails; the failures are joined.
func (v *View) Load(ctx context.Context) error {
	var errs []error
	drivers, err := v.api.ListDrivers(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	vehicles, verr := v.api.ListVehicles(ctx)
	if verr != nil {
		errs = append(errs, verr)
	}
	stats, serr := v.api.Statistics(ctx)
	if serr != nil {
		errs = append(errs, serr)
	}

	v.mu.Lock()
	if err == nil {
		v.drivers = make(map[string]models.Driver, len(drivers))
		for _, d := range drivers {
			v.drivers[d.ID] = d
		}
	}
	if verr == nil {
		v.vehicles = vehicles
	}
	if serr == nil {
		v.stats = stats
	}
	v.mu.Unlock()
	return errors.Join(errs...)
}

// HandleEvent applies driver_status_update; every other event is ignored.
func (v *View) HandleEvent(ev realtime.Event) bool {
	e, ok := ev.(realtime.DriverStatusUpdate)
	if !ok || e.DriverID == "" {
		return false
	}
	v.mu.Lock()
	d, known := v.drivers[e.DriverID]
	if !known {
		d = models.Driver{ID: e.DriverID}
	}
	d.Status = e.Status
	v.drivers[e.DriverID] = d
	v.mu.Unlock()
	v.logger.Info("driver status updated", "driver_id", e.DriverID, "status", e.Status, "known", known)
	return true
}

// ErrInvalidInput rejects an admin action before the backend is called.
var ErrInvalidInput = errors.New("invalid fleet input")

// AssignVehicle links a driver and vehicle, then reloads the table.
func (v *View) AssignVehicle(ctx context.Context, driverID, vehicleID string) error {
	if driverID == "" || vehicleID == "" {
		return fmt.Errorf("%w: assign vehicle needs a driver and a vehicle", ErrInvalidInput)
	}
	if err := v.api.AssignVehicle(ctx, driverID, vehicleID); err != nil {
		return err
	}
	return v.Load(ctx)
}

func (v *View) AddVehicle(ctx context.Context, veh models.Vehicle) error {
	if veh.LicensePlate == "" || !veh.VehicleType.Valid() {
		return fmt.Errorf("%w: vehicle needs a license plate and a valid type", ErrInvalidInput)
	}
	if err := v.api.CreateVehicle(ctx, veh); err != nil {
		return err
	}
	return v.Load(ctx)
}

// RemoveVehicle deletes a vehicle, then reloads the table.
func (v *View) RemoveVehicle(ctx context.Context, vehicleID string) error {
	if vehicleID == "" {
		return fmt.Errorf("%w: remove vehicle needs an id", ErrInvalidInput)
	}
	if err := v.api.DeleteVehicle(ctx, vehicleID); err != nil {
		return err
	}
	return v.Load(ctx)
}

// Snapshot returns the table sorted by driver id.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s := Snapshot{
		Drivers:    make([]models.Driver, 0, len(v.drivers)),
		Vehicles:   append([]models.Vehicle(nil), v.vehicles...),
		Statistics: v.stats,
	}
	for _, d := range v.drivers {
		s.Drivers = append(s.Drivers, d)
	}
	sort.Slice(s.Drivers, func(i, j int) bool { return s.Drivers[i].ID < s.Drivers[j].ID })
	return s
}
