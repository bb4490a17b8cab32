package lifecycle

import "github.com/example/dispatch-client/internal/models"

// Leg is the segment that needs a route for a given status.
type Leg string

const (
	LegNone            Leg = ""
	LegPickupToDropoff Leg = "pickup_to_dropoff"
	LegDriverToPickup  Leg = "driver_to_pickup"
	LegDriverToDropoff Leg = "driver_to_dropoff"
)

func LegFor(s models.Status) Leg {
	switch s {
	case models.StatusPending:
		return LegPickupToDropoff
	case models.StatusDriverAssigned, models.StatusEnRouteToPickup:
		return LegDriverToPickup
	case models.StatusGoodsCollected, models.StatusInTransit:
		return LegDriverToDropoff
	}
	return LegNone
}

// Endpoints resolves the leg to concrete points. ok is false when the leg is
// LegNone or needs a driver position that is not known yet.
func (l Leg) Endpoints(pickup, dropoff models.Coord, driver *models.Coord) (from, to models.Coord, ok bool) {
	switch l {
	case LegPickupToDropoff:
		return pickup, dropoff, true
	case LegDriverToPickup:
		if driver != nil {
			return *driver, pickup, true
		}
	case LegDriverToDropoff:
		if driver != nil {
			return *driver, dropoff, true
		}
	}
	return models.Coord{}, models.Coord{}, false
}
