package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/dispatch-client/internal/backend"
	"github.com/example/dispatch-client/internal/cache"
	"github.com/example/dispatch-client/internal/config"
	"github.com/example/dispatch-client/internal/dashboard"
	"github.com/example/dispatch-client/internal/directions"
	"github.com/example/dispatch-client/internal/geocode"
	httpapi "github.com/example/dispatch-client/internal/http"
	"github.com/example/dispatch-client/internal/ingest"
	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/realtime"
	"github.com/example/dispatch-client/internal/session"
	"github.com/example/dispatch-client/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := newSession(cfg)
	api := backend.New(cfg.APIBaseURL, cfg.BackendTimeout, sess.Token, logger)
	if err := openSession(ctx, cfg, sess, api); err != nil {
		logger.Error("no usable session", "error", err)
		os.Exit(1)
	}
	logger = logger.With("user_id", sess.UserID(), "role", string(sess.Role()))
	api.Logger = logger

	store, closeStore := cacheStore(ctx, cfg, logger)
	defer closeStore()
	dirs := directions.NewCached(routeProvider(cfg), store, cfg.CacheTTL, logger)
	var (
		places geocode.Client
		search geocode.Suggester
	)
	if cfg.MapboxToken != "" {
		mapbox := geocode.NewMapboxClient(cfg.MapboxEndpoint, cfg.MapboxToken, cfg.ProviderRPS)
		places = geocode.NewCached(mapbox, store, cfg.CacheTTL, logger)
		search = mapbox
	}

	bus := realtime.NewBus()
	channel := realtime.NewChannel(cfg.WSURL, sess.Token, bus, logger)
	channel.MinBackoff, channel.MaxBackoff = cfg.ReconnectMin, cfg.ReconnectMax
	channelDone := make(chan struct{})
	go func() {
		defer close(channelDone)
		_ = channel.Run(ctx)
	}()

	var current atomic.Pointer[dashboard.Dashboard]
	bookingID := func() string {
		if d := current.Load(); d != nil {
			return d.BookingID()
		}
		return ""
	}

	var sinks []tracker.Sink
	if cfg.HasSink(config.SinkWS) {
		sinks = append(sinks, tracker.ChannelSink{Channel: channel})
	}
	var kafkaSink *ingest.KafkaSink
	if cfg.HasSink(config.SinkKafka) && sess.Role() == session.RoleDriver {
		kafkaSink = ingest.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, sess.UserID(), bookingID)
		sinks = append(sinks, kafkaSink)
	}

	dash, err := dashboard.Mount(ctx, dashboard.Deps{
		Session:      sess,
		Bus:          bus,
		Backend:      api,
		Directions:   dirs,
		Geocoder:     places,
		Places:       search,
		Source:       locationSource(cfg),
		Interval:     cfg.LocationInterval,
		ExtraSinks:   sinks,
		OfferTimeout: cfg.OfferTimeout,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("dashboard mount failed", "error", err)
		stop()
		<-channelDone
		os.Exit(1)
	}
	current.Store(dash)

	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           httpapi.NewServer(dash, channel.Connected, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown", "error", err)
	}
	dash.Close()
	<-channelDone
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("kafka writer close", "error", err)
		}
	}
	logger.Info("stopped")
}

func newSession(cfg config.ClientConfig) *session.Session {
	opts := []session.Option{session.WithSecret(cfg.JWTSecret)}
	if cfg.TokenFile != "" {
		opts = append(opts, session.WithStore(session.FileStore{Path: cfg.TokenFile}))
	}
	return session.New(opts...)
}

// openSession tries the persisted token, then DISPATCH_TOKEN, then the
// LOGIN_* credentials. Whatever succeeds is persisted.
func openSession(ctx context.Context, cfg config.ClientConfig, s *session.Session, auth session.Authenticator) error {
	var restoreErr error
	if cfg.TokenFile != "" {
		restoreErr = s.Restore()
		if restoreErr == nil && s.Authenticated() {
			return nil
		}
	}
	if cfg.Token != "" {
		return s.Login(cfg.Token)
	}
	if cfg.LoginEmail != "" {
		return s.SignIn(ctx, auth, session.Role(cfg.LoginRole), cfg.LoginEmail, cfg.LoginPassword)
	}
	if restoreErr != nil {
		return restoreErr
	}
	return session.ErrUnauthenticated
}

func cacheStore(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (cache.Store, func()) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(), func() {}
	}
	r := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, using in-process cache", "addr", cfg.RedisAddr, "error", err)
		_ = r.Close()
		return cache.NewMemory(), func() {}
	}
	return r, func() { _ = r.Close() }
}

func routeProvider(cfg config.ClientConfig) directions.Client {
	if cfg.DirectionsProvider == config.ProviderOSRM {
		return directions.NewOSRMClient(cfg.OSRMEndpoint, cfg.ProviderRPS)
	}
	return directions.NewORSClient(cfg.ORSEndpoint, cfg.ORSAPIKey, cfg.ProviderRPS)
}

func locationSource(cfg config.ClientConfig) tracker.Source {
	start := models.Coord{Lat: cfg.StartLat, Lon: cfg.StartLon}
	if cfg.SimulateMovement {
		return tracker.NewWalk(start, 25, uint64(time.Now().UnixNano()))
	}
	return tracker.Static{At: start}
}
