package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/dispatch-client/internal/models"
)

type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// Availability values accepted by POST /drivers/status.
const (
	DriverAvailable = "Available"
	DriverOffline   = "Offline"
)

func (c *Client) RespondBooking(ctx context.Context, bookingID string, d Decision) error {
	body := map[string]string{"booking_id": bookingID, "response": string(d)}
	return c.do(ctx, http.MethodPost, "/drivers/respond-booking", "/drivers/respond-booking", body, nil)
}

func (c *Client) UpdateBookingStatus(ctx context.Context, bookingID string, status models.Status) error {
	body := map[string]string{"booking_id": bookingID, "status": string(status)}
	return c.do(ctx, http.MethodPost, "/drivers/booking-status", "/drivers/booking-status", body, nil)
}

func (c *Client) UpdateLocation(ctx context.Context, at models.Coord) error {
	return c.do(ctx, http.MethodPost, "/drivers/update-location", "/drivers/update-location", at, nil)
}

func (c *Client) SetDriverStatus(ctx context.Context, status string) error {
	return c.do(ctx, http.MethodPost, "/drivers/status", "/drivers/status", map[string]string{"status": status}, nil)
}

// DriverActiveBookings lists bookings the driver has accepted and not completed.
// A 404 means none.
func (c *Client) DriverActiveBookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	err := c.do(ctx, http.MethodGet, "/drivers/active-bookings", "/drivers/active-bookings", nil, &out)
	if isNotFound(err) {
		return nil, nil
	}
	return out, err
}

func (c *Client) DriverBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	var out models.Booking
	err := c.do(ctx, http.MethodGet, "/drivers/bookings/"+url.PathEscape(bookingID), "/drivers/bookings/{id}", nil, &out)
	return out, err
}
