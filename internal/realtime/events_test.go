package realtime

import (
	"errors"
	"testing"

	"github.com/example/dispatch-client/internal/models"
)

func TestDecodeKnownTypes(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"new_booking_request","payload":{"id":"b1","status":"Pending","pickup_location":{"type":"Point","coordinates":[12.9,77.6]}}}`))
	if err != nil {
		t.Fatal(err)
	}
	nb, ok := ev.(NewBookingRequest)
	if !ok || nb.Booking.ID != "b1" || nb.Booking.Status != models.StatusPending {
		t.Fatalf("unexpected event %#v", ev)
	}
	if nb.Booking.Pickup.Coord().Lat != 12.9 {
		t.Fatalf("pickup latitude should come first: %+v", nb.Booking.Pickup)
	}

	ev, err = Decode([]byte(`{"type":"status_update","payload":{"booking_id":"b1","status":"In Transit"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if su := ev.(StatusUpdate); su.Status != models.StatusInTransit {
		t.Fatalf("unexpected status %q", su.Status)
	}

	ev, err = Decode([]byte(`{"type":"driver_location","payload":{"booking_id":"b1","latitude":1.5,"longitude":2.5}}`))
	if err != nil {
		t.Fatal(err)
	}
	if c := ev.(DriverLocation).Coord(); c.Lat != 1.5 || c.Lon != 2.5 {
		t.Fatalf("unexpected coord %v", c)
	}
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"promo","payload":{"x":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	if u, ok := ev.(Unknown); !ok || u.Type() != "promo" {
		t.Fatalf("expected Unknown, got %#v", ev)
	}

	for _, in := range []string{`not json`, `{"payload":{}}`, `{"type":"status_update","payload":"nope"}`,
		`{"type":"new_booking_request","payload":null}`, `{"type":"new_booking_request","payload":{"status":"Pending"}}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Encode(LocationUpdate{Latitude: 3, Longitude: 4})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"location_update","payload":{"latitude":3,"longitude":4}}` {
		t.Fatalf("unexpected frame %s", data)
	}
}
