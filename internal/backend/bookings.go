package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/example/dispatch-client/internal/models"
)

type BookingRequest struct {
	Pickup        models.Location    `json:"pickup_location"`
	Dropoff       models.Location    `json:"dropoff_location"`
	VehicleType   models.VehicleType `json:"vehicle_type"`
	ScheduledTime *time.Time         `json:"scheduled_time"`
}

type EstimateRequest struct {
	Pickup      models.Location    `json:"pickup_location"`
	Dropoff     models.Location    `json:"dropoff_location"`
	VehicleType models.VehicleType `json:"vehicle_type"`
}

func (c *Client) CreateBooking(ctx context.Context, in BookingRequest) (models.Booking, error) {
	var out models.Booking
	err := c.do(ctx, http.MethodPost, "/bookings", "/bookings", in, &out)
	return out, err
}

// ActiveBooking returns nil when the user has no booking in progress.
func (c *Client) ActiveBooking(ctx context.Context) (*models.Booking, error) {
	var out *models.Booking
	err := c.do(ctx, http.MethodGet, "/active-booking", "/active-booking", nil, &out)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out != nil && out.ID == "" {
		return nil, nil
	}
	return out, nil
}

func (c *Client) EstimatePrice(ctx context.Context, in EstimateRequest) (float64, error) {
	var out struct {
		EstimatedPrice float64 `json:"estimated_price"`
	}
	err := c.do(ctx, http.MethodPost, "/bookings/estimate", "/bookings/estimate", in, &out)
	return out.EstimatedPrice, err
}

// BookingDriver returns the driver assigned to bookingID.
func (c *Client) BookingDriver(ctx context.Context, bookingID string) (models.DriverDetails, error) {
	var out models.DriverDetails
	err := c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(bookingID)+"/driver", "/bookings/{id}/driver", nil, &out)
	return out, err
}
