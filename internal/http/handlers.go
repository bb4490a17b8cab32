package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/dispatch-client/internal/backend"
	"github.com/example/dispatch-client/internal/dashboard"
	"github.com/example/dispatch-client/internal/fleet"
	"github.com/example/dispatch-client/internal/lifecycle"
	"github.com/example/dispatch-client/internal/mapview"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/session"
)

type stateResponse struct {
	Role    session.Role          `json:"role"`
	User    *lifecycle.UserView   `json:"user,omitempty"`
	Driver  *lifecycle.DriverView `json:"driver,omitempty"`
	Frame   mapview.Frame         `json:"frame"`
	Notices []dashboard.Notice    `json:"notices"`
	Track   bool                  `json:"tracking"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.dash == nil || (s.ready != nil && !s.ready()) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.dash == nil {
		http.Error(w, "no dashboard mounted", http.StatusServiceUnavailable)
		return
	}
	resp := stateResponse{
		Role:    s.dash.Role(),
		Frame:   s.dash.Frame(),
		Notices: s.dash.Notices(),
		Track:   s.dash.Tracking(),
	}
	if u := s.dash.User(); u != nil {
		v := u.View()
		resp.User = &v
	}
	if d := s.dash.Driver(); d != nil {
		v := d.View()
		resp.Driver = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type placeBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

func (p *placeBody) place() *lifecycle.Place {
	if p == nil {
		return nil
	}
	return &lifecycle.Place{Coord: models.Coord{Lat: p.Latitude, Lon: p.Longitude}, Name: p.Name}
}

type bookingBody struct {
	Pickup        *placeBody         `json:"pickup_location"`
	Dropoff       *placeBody         `json:"dropoff_location"`
	VehicleType   models.VehicleType `json:"vehicle_type"`
	ScheduledTime *time.Time         `json:"scheduled_time,omitempty"`
}

func (b bookingBody) input() lifecycle.BookingInput {
	return lifecycle.BookingInput{
		Pickup:        b.Pickup.place(),
		Dropoff:       b.Dropoff.place(),
		VehicleType:   b.VehicleType,
		ScheduledTime: b.ScheduledTime,
	}
}

func (s *Server) user(w http.ResponseWriter) *lifecycle.UserController {
	if s.dash == nil || s.dash.User() == nil {
		writeError(w, session.ErrForbidden)
		return nil
	}
	return s.dash.User()
}

func (s *Server) driver(w http.ResponseWriter) *lifecycle.DriverController {
	if s.dash == nil || s.dash.Driver() == nil {
		writeError(w, session.ErrForbidden)
		return nil
	}
	return s.dash.Driver()
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	u := s.user(w)
	if u == nil {
		return
	}
	var body bookingBody
	if !decode(w, r, &body) {
		return
	}
	b, err := u.CreateBooking(r.Context(), body.input())
	if err != nil {
		writeError(w, s.dash.Report("create booking", err))
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	u := s.user(w)
	if u == nil {
		return
	}
	var body bookingBody
	if !decode(w, r, &body) {
		return
	}
	price, err := u.EstimatePrice(r.Context(), body.input())
	if err != nil {
		writeError(w, s.dash.Report("estimate price", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"estimated_price": price})
}

func (s *Server) handleSearchPlaces(w http.ResponseWriter, r *http.Request) {
	u := s.user(w)
	if u == nil {
		return
	}
	places, err := u.SearchPlaces(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, s.dash.Report("search places", err))
		return
	}
	if places == nil {
		places = []lifecycle.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	d := s.driver(w)
	if d == nil {
		return
	}
	var body struct {
		Online bool `json:"online"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := d.SetOnline(r.Context(), body.Online); err != nil {
		writeError(w, s.dash.Report("set online", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	d := s.driver(w)
	if d == nil {
		return
	}
	if err := d.Select(mux.Vars(r)["id"]); err != nil {
		writeError(w, s.dash.Report("select request", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	d := s.driver(w)
	if d == nil {
		return
	}
	var body struct {
		Decision backend.Decision `json:"decision"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Decision != backend.Accept && body.Decision != backend.Reject {
		http.Error(w, "decision must be accept or reject", http.StatusBadRequest)
		return
	}
	if err := d.Respond(r.Context(), mux.Vars(r)["id"], body.Decision); err != nil {
		writeError(w, s.dash.Report("respond", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	d := s.driver(w)
	if d == nil {
		return
	}
	var body struct {
		Status models.Status `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := d.AdvanceStatus(r.Context(), mux.Vars(r)["id"], body.Status); err != nil {
		writeError(w, s.dash.Report("advance status", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fleetView(w http.ResponseWriter) bool {
	if s.dash == nil || s.dash.Fleet() == nil {
		writeError(w, session.ErrForbidden)
		return false
	}
	return true
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	if !s.fleetView(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.dash.Fleet().Snapshot())
}

func (s *Server) handleFleetReload(w http.ResponseWriter, r *http.Request) {
	if !s.fleetView(w) {
		return
	}
	if err := s.dash.Fleet().Load(r.Context()); err != nil {
		writeError(w, s.dash.Report("reload fleet", err))
		return
	}
	writeJSON(w, http.StatusOK, s.dash.Fleet().Snapshot())
}

func (s *Server) handleAddVehicle(w http.ResponseWriter, r *http.Request) {
	if !s.fleetView(w) {
		return
	}
	var v models.Vehicle
	if !decode(w, r, &v) {
		return
	}
	if err := s.dash.Fleet().AddVehicle(r.Context(), v); err != nil {
		writeError(w, s.dash.Report("add vehicle", err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if !s.fleetView(w) {
		return
	}
	if err := s.dash.Fleet().RemoveVehicle(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, s.dash.Report("delete vehicle", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignVehicle(w http.ResponseWriter, r *http.Request) {
	if !s.fleetView(w) {
		return
	}
	var body struct {
		VehicleID string `json:"vehicle_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.dash.Fleet().AssignVehicle(r.Context(), mux.Vars(r)["id"], body.VehicleID); err != nil {
		writeError(w, s.dash.Report("assign vehicle", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps controller and backend errors onto HTTP codes.
func statusFor(err error) int {
	var ve *lifecycle.ValidationError
	var se *lifecycle.StateError
	switch {
	case errors.As(err, &ve), errors.Is(err, fleet.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &se):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnauthenticated), errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, backend.ErrNetwork):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
