package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/dispatch-client/internal/dashboard"
	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/session"
)

// Server is the agent's local status and control surface. It exposes health,
// metrics and the mounted dashboard's state, and forwards operator actions to
// the dashboard's controller.
type Server struct {
	dash   *dashboard.Dashboard
	ready  func() bool
	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires routes for dash. ready reports whether the realtime channel
// is up; nil treats it as always up.
func NewServer(dash *dashboard.Dashboard, ready func() bool, logger *slog.Logger) *Server {
	s := &Server{dash: dash, ready: ready, logger: logging.OrDiscard(logger), mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/state", s.handleState).Methods(http.MethodGet)

	u := s.mux.PathPrefix("/user").Subrouter()
	u.Use(s.requireRole(session.RoleUser))
	u.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	u.HandleFunc("/estimate", s.handleEstimate).Methods(http.MethodPost)
	u.HandleFunc("/places", s.handleSearchPlaces).Methods(http.MethodGet)

	d := s.mux.PathPrefix("/driver").Subrouter()
	d.Use(s.requireRole(session.RoleDriver))
	d.HandleFunc("/online", s.handleOnline).Methods(http.MethodPost)
	d.HandleFunc("/requests/{id}/select", s.handleSelect).Methods(http.MethodPost)
	d.HandleFunc("/requests/{id}/respond", s.handleRespond).Methods(http.MethodPost)
	d.HandleFunc("/bookings/{id}/status", s.handleAdvance).Methods(http.MethodPost)

	a := s.mux.PathPrefix("/admin").Subrouter()
	a.Use(s.requireRole(session.RoleAdmin))
	a.HandleFunc("/fleet", s.handleFleet).Methods(http.MethodGet)
	a.HandleFunc("/fleet/reload", s.handleFleetReload).Methods(http.MethodPost)
	a.HandleFunc("/vehicles", s.handleAddVehicle).Methods(http.MethodPost)
	a.HandleFunc("/vehicles/{id}", s.handleDeleteVehicle).Methods(http.MethodDelete)
	a.HandleFunc("/drivers/{id}/vehicle", s.handleAssignVehicle).Methods(http.MethodPut)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
