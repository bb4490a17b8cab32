package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/dispatch-client/internal/models"
)

type EventType string

const (
	TypeNewBookingRequest  EventType = "new_booking_request"
	TypeBookingAccepted    EventType = "booking_accepted"
	TypeStatusUpdate       EventType = "status_update"
	TypeDriverLocation     EventType = "driver_location"
	TypeDriverStatusUpdate EventType = "driver_status_update"

	// TypeLocationUpdate is only ever sent by the client.
	TypeLocationUpdate EventType = "location_update"
)

// Event is the closed set of realtime messages. Only types in this package
// implement it; switch on the concrete type to handle one.
type Event interface {
	Type() EventType
	isEvent()
}

type NewBookingRequest struct {
	Booking models.Booking
}

type BookingAccepted struct {
	BookingID string `json:"booking_id"`
	DriverID  string `json:"driver_id,omitempty"`
}

type StatusUpdate struct {
	BookingID string        `json:"booking_id"`
	Status    models.Status `json:"status"`
}

type DriverLocation struct {
	BookingID string  `json:"booking_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (d DriverLocation) Coord() models.Coord { return models.Coord{Lat: d.Latitude, Lon: d.Longitude} }

type DriverStatusUpdate struct {
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Unknown carries a tag this client does not understand; it is delivered so
// it can be observed, but no controller acts on it.
type Unknown struct {
	Tag     EventType
	Payload json.RawMessage
}

func (NewBookingRequest) Type() EventType  { return TypeNewBookingRequest }
func (BookingAccepted) Type() EventType    { return TypeBookingAccepted }
func (StatusUpdate) Type() EventType       { return TypeStatusUpdate }
func (DriverLocation) Type() EventType     { return TypeDriverLocation }
func (DriverStatusUpdate) Type() EventType { return TypeDriverStatusUpdate }
func (LocationUpdate) Type() EventType     { return TypeLocationUpdate }
func (u Unknown) Type() EventType          { return u.Tag }

func (NewBookingRequest) isEvent()  {}
func (BookingAccepted) isEvent()    {}
func (StatusUpdate) isEvent()       {}
func (DriverLocation) isEvent()     {}
func (DriverStatusUpdate) isEvent() {}
func (LocationUpdate) isEvent()     {}
func (Unknown) isEvent()            {}

type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var ErrMalformed = errors.New("malformed realtime message")

// Decode parses one wire frame {type, payload}.
var errMissingID = errors.New("missing booking id")

func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeNewBookingRequest:
		var b models.Booking
		err = json.Unmarshal(env.Payload, &b)
		if err == nil && b.ID == "" {
			err = errMissingID
		}
		ev = NewBookingRequest{Booking: b}
	case TypeBookingAccepted:
		var p BookingAccepted
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeStatusUpdate:
		var p StatusUpdate
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeDriverLocation:
		var p DriverLocation
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeDriverStatusUpdate:
		var p DriverStatusUpdate
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case TypeLocationUpdate:
		var p LocationUpdate
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	default:
		return Unknown{Tag: env.Type, Payload: env.Payload}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return ev, nil
}

// Encode renders an event as a wire frame.
func Encode(ev Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case NewBookingRequest:
		payload = e.Booking
	case Unknown:
		payload = e.Payload
	default:
		payload = e
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: ev.Type(), Payload: raw})
}
