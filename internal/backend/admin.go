package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/dispatch-client/internal/models"
)

func (c *Client) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	var out []models.Driver
	err := c.do(ctx, http.MethodGet, "/admin/drivers", "/admin/drivers", nil, &out)
	return out, err
}

func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	err := c.do(ctx, http.MethodGet, "/admin/vehicles", "/admin/vehicles", nil, &out)
	return out, err
}

func (c *Client) CreateVehicle(ctx context.Context, v models.Vehicle) error {
	return c.do(ctx, http.MethodPost, "/admin/vehicles", "/admin/vehicles", v, nil)
}

func (c *Client) DeleteVehicle(ctx context.Context, vehicleID string) error {
	return c.do(ctx, http.MethodDelete, "/admin/vehicles/"+url.PathEscape(vehicleID), "/admin/vehicles/{id}", nil, nil)
}

// AssignVehicle links a driver and a vehicle. The backend keeps the link on
// both records, so both are updated; the first failure stops the pair.
func (c *Client) AssignVehicle(ctx context.Context, driverID, vehicleID string) error {
	if err := c.do(ctx, http.MethodPut, "/admin/drivers/"+url.PathEscape(driverID), "/admin/drivers/{id}",
		map[string]string{"vehicleID": vehicleID}, nil); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/admin/vehicles/"+url.PathEscape(vehicleID), "/admin/vehicles/{id}",
		map[string]string{"driverID": driverID}, nil)
}

func (c *Client) Statistics(ctx context.Context) (models.Statistics, error) {
	var out models.Statistics
	err := c.do(ctx, http.MethodGet, "/admin/statistics", "/admin/statistics", nil, &out)
	return out, err
}
