package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/observability"
	"github.com/example/dispatch-client/internal/session"
)

// pollRoutes are read by health checks and scrapers; they log at debug only.
var pollRoutes = map[string]bool{"/healthz": true, "/ready": true, "/metrics": true, "/state": true}

func (s *Server) registerMiddleware() {
	s.mux.Use(s.recoverPanics, s.tagAction, s.recordAction)
}

// tagAction gives every operator action an id. The id travels in the
// request context, so the backend calls the action causes carry it too.
func (s *Server) tagAction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// recordAction counts and logs each request against the dashboard it was
// meant for.
func (s *Server) recordAction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := routeOf(r)
		code := strconv.Itoa(rec.status)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())

		log := s.logger.With(
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", logging.RequestID(r.Context()),
		)
		switch {
		case rec.status >= http.StatusInternalServerError:
			log.Error("operator action failed")
		case pollRoutes[route]:
			log.Debug("status polled")
		case rec.status >= http.StatusBadRequest:
			log.Warn("operator action refused")
		default:
			log.Info("operator action")
		}
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panicked", "panic", v, "route", routeOf(r), "request_id", logging.RequestID(r.Context()))
				writeError(w, errors.New("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireRole refuses a whole route group unless the mounted dashboard is
// for role.
func (s *Server) requireRole(role session.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.dash == nil || s.dash.Role() != role {
				have := session.Role("")
				if s.dash != nil {
					have = s.dash.Role()
				}
				writeError(w, fmt.Errorf("%w: %s routes need a %s dashboard, have %q", session.ErrForbidden, role, role, have))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeOf(r *http.Request) string {
	if rt := mux.CurrentRoute(r); rt != nil {
		if tmpl, err := rt.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
