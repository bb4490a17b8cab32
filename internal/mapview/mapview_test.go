package mapview

import (
	"testing"

	"github.com/example/dispatch-client/internal/lifecycle"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/session"
)

var (
	pickup  = models.Coord{Lat: 12.9, Lon: 77.6}
	dropoff = models.Coord{Lat: 12.95, Lon: 77.65}
	driver  = models.Coord{Lat: 12.85, Lon: 77.55}
	me      = models.Coord{Lat: 12.91, Lon: 77.61}
)

func kinds(f Frame) map[MarkerKind]int {
	out := map[MarkerKind]int{}
	for _, m := range f.Markers {
		out[m.Kind]++
	}
	return out
}

func TestMarkersFollowLeg(t *testing.T) {
	cases := []struct {
		name   string
		in     Input
		leg    lifecycle.Leg
		expect []MarkerKind
		absent []MarkerKind
	}{
		{
			"user pending",
			Input{Role: session.RoleUser, Status: models.StatusPending, Own: &me, Pickup: &pickup, Dropoff: &dropoff},
			lifecycle.LegPickupToDropoff,
			[]MarkerKind{MarkerSelf, MarkerPickup, MarkerDropoff},
			[]MarkerKind{MarkerDriver},
		},
		{
			"user en route",
			Input{Role: session.RoleUser, Status: models.StatusEnRouteToPickup, Own: &me, Counterpart: &driver, Pickup: &pickup, Dropoff: &dropoff},
			lifecycle.LegDriverToPickup,
			[]MarkerKind{MarkerSelf, MarkerDriver, MarkerPickup},
			[]MarkerKind{MarkerDropoff},
		},
		{
			"driver in transit",
			Input{Role: session.RoleDriver, Status: models.StatusInTransit, Own: &driver, Pickup: &pickup, Dropoff: &dropoff},
			lifecycle.LegDriverToDropoff,
			[]MarkerKind{MarkerSelf, MarkerDropoff},
			[]MarkerKind{MarkerDriver, MarkerPickup},
		},
		{
			"delivered",
			Input{Role: session.RoleUser, Status: models.StatusDelivered, Own: &me, Pickup: &pickup, Dropoff: &dropoff, Route: []models.Coord{pickup, dropoff}},
			lifecycle.LegNone,
			[]MarkerKind{MarkerSelf},
			[]MarkerKind{MarkerPickup, MarkerDropoff, MarkerDriver},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := Derive(c.in)
			if f.Leg != c.leg {
				t.Fatalf("leg %q, want %q", f.Leg, c.leg)
			}
			k := kinds(f)
			for _, want := range c.expect {
				if k[want] != 1 {
					t.Fatalf("expected one %s marker, got %v", want, f.Markers)
				}
			}
			for _, not := range c.absent {
				if k[not] != 0 {
					t.Fatalf("unexpected %s marker in %v", not, f.Markers)
				}
			}
			if c.leg == lifecycle.LegNone && f.Polyline != nil {
				t.Fatal("no polyline without a leg")
			}
		})
	}
}

func TestViewboxCoversRoute(t *testing.T) {
	route := []models.Coord{pickup, {Lat: 13.0, Lon: 77.7}, dropoff}
	f := Derive(Input{Role: session.RoleUser, Status: models.StatusPending, Pickup: &pickup, Dropoff: &dropoff, Route: route})
	if f.Viewbox == nil {
		t.Fatal("expected viewbox")
	}
	for _, p := range route {
		if !f.Viewbox.Contains(p) {
			t.Fatalf("viewbox %+v misses %v", f.Viewbox, p)
		}
	}
	if f.DistanceMeters <= 0 {
		t.Fatal("expected route distance")
	}
}

func TestNothingKnownHasNoViewbox(t *testing.T) {
	f := Derive(Input{Role: session.RoleDriver})
	if f.Viewbox != nil || len(f.Markers) != 0 {
		t.Fatalf("empty input should be an empty frame: %+v", f)
	}
}

func TestFitterRefitsOncePerEndpointPair(t *testing.T) {
	var ft Fitter
	in := Input{Role: session.RoleUser, Status: models.StatusEnRouteToPickup, Counterpart: &driver, Pickup: &pickup, Dropoff: &dropoff}
	if !ft.Apply(Derive(in)).Refit {
		t.Fatal("first frame should fit")
	}
	for i := 1; i <= 5; i++ {
		moved := models.Coord{Lat: driver.Lat + float64(i)*0.001, Lon: driver.Lon}
		in.Counterpart = &moved
		if ft.Apply(Derive(in)).Refit {
			t.Fatalf("tick %d refit on driver movement", i)
		}
	}
	in.Status = models.StatusGoodsCollected
	if !ft.Apply(Derive(in)).Refit {
		t.Fatal("new leg should refit")
	}
	ft.Reset()
	if !ft.Apply(Derive(in)).Refit {
		t.Fatal("reset should allow a refit")
	}
}
