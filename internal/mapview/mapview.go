package mapview

import (
	"fmt"
	"sync"

	"github.com/example/dispatch-client/internal/geo"
	"github.com/example/dispatch-client/internal/lifecycle"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/session"
)

type MarkerKind string

const (
	MarkerSelf    MarkerKind = "self"
	MarkerDriver  MarkerKind = "driver"
	MarkerPickup  MarkerKind = "pickup"
	MarkerDropoff MarkerKind = "dropoff"
)

type Marker struct {
	Kind  MarkerKind   `json:"kind"`
	At    models.Coord `json:"at"`
	Label string       `json:"label,omitempty"`
}

// Input is everything a frame depends on. Status is empty without a booking.
// Counterpart is the driver as seen by a user; drivers use Own.
type Input struct {
	Role        session.Role
	Status      models.Status
	Own         *models.Coord
	Counterpart *models.Coord
	Pickup      *models.Coord
	Dropoff     *models.Coord
	PickupName  string
	DropoffName string
	Route       []models.Coord
}

type Frame struct {
	Markers  []Marker       `json:"markers"`
	Polyline []models.Coord `json:"polyline"`
	Viewbox  *geo.Bounds    `json:"viewbox,omitempty"`
	Leg      lifecycle.Leg  `json:"leg"`
	// DistanceMeters is the length of the polyline.
	DistanceMeters float64 `json:"distance_meters"`
	// FitKey names the endpoints the viewbox frames; moving points are not
	// part of it.
	FitKey string `json:"fit_key"`
	// Refit is set by Fitter when the view should jump to Viewbox.
	Refit bool `json:"refit"`
}

const (
	padRatio = 0.15
	minSpan  = 0.005
)

// Derive maps state to a frame. It has no side effects.
func Derive(in Input) Frame {
	var f Frame
	if in.Own != nil {
		f.Markers = append(f.Markers, Marker{Kind: MarkerSelf, At: *in.Own})
	}
	if in.Status != "" {
		f.Leg = lifecycle.LegFor(in.Status)
	}

	driver := in.Counterpart
	if in.Role == session.RoleDriver {
		driver = in.Own
	}

	var focus []models.Coord
	switch f.Leg {
	case lifecycle.LegPickupToDropoff:
		focus = addEndpoint(&f, MarkerPickup, in.Pickup, in.PickupName, focus)
		focus = addEndpoint(&f, MarkerDropoff, in.Dropoff, in.DropoffName, focus)
		f.FitKey = fitKey(f.Leg, in.Pickup, in.Dropoff)
	case lifecycle.LegDriverToPickup:
		focus = addDriver(&f, in.Role, driver, focus)
		focus = addEndpoint(&f, MarkerPickup, in.Pickup, in.PickupName, focus)
		f.FitKey = fitKey(f.Leg, in.Pickup, nil)
	case lifecycle.LegDriverToDropoff:
		focus = addDriver(&f, in.Role, driver, focus)
		focus = addEndpoint(&f, MarkerDropoff, in.Dropoff, in.DropoffName, focus)
		f.FitKey = fitKey(f.Leg, nil, in.Dropoff)
	default:
		if in.Own != nil {
			focus = append(focus, *in.Own)
		}
		f.FitKey = "idle"
	}

	if f.Leg != lifecycle.LegNone && len(in.Route) > 0 {
		f.Polyline = append([]models.Coord(nil), in.Route...)
		f.DistanceMeters = geo.PathLength(f.Polyline)
		focus = append(focus, f.Polyline...)
	}
	if b, ok := geo.BoundsOf(focus...); ok {
		padded := b.Pad(padRatio, minSpan)
		f.Viewbox = &padded
	}
	return f
}

func addEndpoint(f *Frame, kind MarkerKind, at *models.Coord, label string, focus []models.Coord) []models.Coord {
	if at == nil {
		return focus
	}
	f.Markers = append(f.Markers, Marker{Kind: kind, At: *at, Label: label})
	return append(focus, *at)
}

// addDriver marks the driver for users; a driver already sees itself as self.
func addDriver(f *Frame, role session.Role, driver *models.Coord, focus []models.Coord) []models.Coord {
	if driver == nil {
		return focus
	}
	if role != session.RoleDriver {
		f.Markers = append(f.Markers, Marker{Kind: MarkerDriver, At: *driver})
	}
	return append(focus, *driver)
}

func fitKey(leg lifecycle.Leg, a, b *models.Coord) string {
	s := string(leg)
	for _, p := range []*models.Coord{a, b} {
		if p != nil {
			s += fmt.Sprintf("|%s", p)
		}
	}
	return s
}

// Fitter remembers which endpoints the view was last fitted to and flags a
// refit only when they change, so location ticks never fight the user's pan
// and zoom.
type Fitter struct {
	mu   sync.Mutex
	last string
}

func (ft *Fitter) Apply(f Frame) Frame {
	if f.Viewbox == nil {
		return f
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if f.FitKey != ft.last {
		f.Refit = true
		ft.last = f.FitKey
	}
	return f
}

func (ft *Fitter) Reset() {
	ft.mu.Lock()
	ft.last = ""
	ft.mu.Unlock()
}
