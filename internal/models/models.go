package models

import (
	"fmt"
	"time"
)

// Coord is a plain latitude/longitude pair, the shape the backend expects for
// location updates and the shape providers return route geometry in.
type Coord struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

func (c Coord) String() string { return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon) }

// Place is a point with a human readable label.
type Place struct {
	Coord
	Name string `json:"name"`
}

// Location is the backend's point representation for bookings and drivers.
// Coordinates are ordered [latitude, longitude].
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Name        string     `json:"name,omitempty"`
}

func NewLocation(c Coord, name string) Location {
	return Location{Type: "Point", Coordinates: [2]float64{c.Lat, c.Lon}, Name: name}
}

func (l Location) Coord() Coord { return Coord{Lat: l.Coordinates[0], Lon: l.Coordinates[1]} }

// IsZero reports whether the location was never set.
func (l Location) IsZero() bool {
	return l.Type == "" && l.Coordinates == [2]float64{}
}

type VehicleType string

const (
	VehicleBike VehicleType = "bike"
	VehicleCar  VehicleType = "car"
	VehicleVan  VehicleType = "van"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleBike, VehicleCar, VehicleVan:
		return true
	}
	return false
}

type Booking struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id,omitempty"`
	DriverID      string      `json:"driver_id,omitempty"`
	VehicleID     string      `json:"vehicle_id,omitempty"`
	Pickup        Location    `json:"pickup_location"`
	Dropoff       Location    `json:"dropoff_location"`
	VehicleType   VehicleType `json:"vehicle_type"`
	PriceEstimate float64     `json:"price_estimate"`
	Status        Status      `json:"status"`
	ScheduledTime *time.Time  `json:"scheduled_time,omitempty"`
	CreatedAt     *time.Time  `json:"created_at,omitempty"`
}

// DriverDetails is what a user sees about the driver assigned to their booking.
type DriverDetails struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	VehicleID string   `json:"vehicle_id"`
	Status    string   `json:"status"`
	Location  Location `json:"location"`
}

// DriverPresence is the ephemeral online/location record of one driver.
type DriverPresence struct {
	DriverID  string    `json:"driver_id"`
	Name      string    `json:"name,omitempty"`
	Online    bool      `json:"online"`
	Status    string    `json:"status"`
	Location  *Coord    `json:"location,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Updated   time.Time `json:"updated"`
}

type Vehicle struct {
	ID           string      `json:"id"`
	Make         string      `json:"make"`
	Model        string      `json:"model"`
	Year         int         `json:"year"`
	LicensePlate string      `json:"license_plate"`
	VehicleType  VehicleType `json:"vehicle_type"`
	DriverID     string      `json:"driver_id,omitempty"`
}

type Statistics struct {
	AverageTripTime float64 `json:"average_trip_time"`
	TotalBookings   int     `json:"total_bookings"`
	TotalDrivers    int     `json:"total_drivers"`
	TotalUsers      int     `json:"total_users"`
}

// Driver is one row of the admin driver table.
type Driver struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	Status                 string `json:"status"`
	VehicleID              string `json:"vehicle_id,omitempty"`
	TotalBookingsCount     int    `json:"total_bookings_count"`
	AcceptedBookingsCount  int    `json:"accepted_bookings_count"`
	CompletedBookingsCount int    `json:"completed_bookings_count"`
}

// PerformanceScore is the mean of acceptance and completion rates, in percent.
func (d Driver) PerformanceScore() float64 {
	if d.TotalBookingsCount == 0 {
		return 0
	}
	acceptance := float64(d.AcceptedBookingsCount) / float64(d.TotalBookingsCount) * 100
	var completion float64
	if d.AcceptedBookingsCount > 0 {
		completion = float64(d.CompletedBookingsCount) / float64(d.AcceptedBookingsCount) * 100
	}
	return (acceptance + completion) / 2
}
