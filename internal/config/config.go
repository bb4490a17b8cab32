package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig captures all tunable parameters for one agent session.
// Values are loaded from environment variables with defaults that point at a
// local backend, so the binary runs with nothing but a token.
type ClientConfig struct {
	APIBaseURL string
	WSURL      string

	Token     string
	TokenFile string
	JWTSecret string

	// LoginEmail and LoginPassword sign in against the backend when no
	// stored or configured token is usable.
	LoginEmail    string
	LoginPassword string
	LoginRole     string

	StatusAddr      string
	BackendTimeout  time.Duration
	ShutdownTimeout time.Duration

	ReconnectMin time.Duration
	ReconnectMax time.Duration

	LocationInterval time.Duration
	LocationSinks    []string
	OfferTimeout     time.Duration
	StartLat         float64
	StartLon         float64
	SimulateMovement bool

	DirectionsProvider string
	ORSEndpoint        string
	ORSAPIKey          string
	OSRMEndpoint       string
	MapboxEndpoint     string
	MapboxToken        string
	ProviderRPS        float64
	CacheTTL           time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

const (
	ProviderORS  = "ors"
	ProviderOSRM = "osrm"

	SinkREST  = "rest"
	SinkWS    = "ws"
	SinkKafka = "kafka"
)

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:         "http://localhost:8080",
		LoginRole:          "user",
		WSURL:              "ws://localhost:8080/ws",
		StatusAddr:         ":9090",
		BackendTimeout:     10 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		ReconnectMin:       time.Second,
		ReconnectMax:       30 * time.Second,
		LocationInterval:   5 * time.Second,
		LocationSinks:      []string{SinkREST},
		DirectionsProvider: ProviderORS,
		ORSEndpoint:        "https://api.openrouteservice.org",
		OSRMEndpoint:       "https://router.project-osrm.org",
		MapboxEndpoint:     "https://api.mapbox.com",
		ProviderRPS:        2,
		CacheTTL:           10 * time.Minute,
		RedisKeyPrefix:     "dispatch:",
		KafkaTopic:         "driver-locations",
		LogLevel:           "info",
	}
}

func LoadClientConfig() (ClientConfig, error) {
	cfg := defaultClientConfig()
	var errs []error

	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setStringFromEnv(&cfg.WSURL, "WS_URL")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	cfg.Token = strings.TrimSpace(os.Getenv("DISPATCH_TOKEN"))
	cfg.TokenFile = strings.TrimSpace(os.Getenv("TOKEN_FILE"))
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.LoginEmail = strings.TrimSpace(os.Getenv("LOGIN_EMAIL"))
	cfg.LoginPassword = os.Getenv("LOGIN_PASSWORD")
	if v := os.Getenv("LOGIN_ROLE"); v != "" {
		cfg.LoginRole = strings.ToLower(strings.TrimSpace(v))
	}

	setStringFromEnv(&cfg.StatusAddr, "STATUS_ADDR")
	setDurationFromEnv(&cfg.BackendTimeout, "BACKEND_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ReconnectMin, "WS_RECONNECT_MIN", &errs)
	setDurationFromEnv(&cfg.ReconnectMax, "WS_RECONNECT_MAX", &errs)

	setDurationFromEnv(&cfg.LocationInterval, "LOCATION_INTERVAL", &errs)
	if v := os.Getenv("LOCATION_SINKS"); v != "" {
		cfg.LocationSinks = splitAndTrim(strings.ToLower(v))
	}
	setDurationFromEnv(&cfg.OfferTimeout, "OFFER_TIMEOUT", &errs)
	setFloatFromEnv(&cfg.StartLat, "START_LAT", &errs)
	setFloatFromEnv(&cfg.StartLon, "START_LON", &errs)
	cfg.SimulateMovement = strings.EqualFold(os.Getenv("LOCATION_SIMULATE"), "true")

	if v := os.Getenv("DIRECTIONS_PROVIDER"); v != "" {
		cfg.DirectionsProvider = strings.ToLower(strings.TrimSpace(v))
	}
	setStringFromEnv(&cfg.ORSEndpoint, "ORS_ENDPOINT")
	cfg.ORSAPIKey = os.Getenv("ORS_API_KEY")
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setStringFromEnv(&cfg.MapboxEndpoint, "MAPBOX_ENDPOINT")
	cfg.MapboxToken = os.Getenv("MAPBOX_ACCESS_TOKEN")
	setFloatFromEnv(&cfg.ProviderRPS, "PROVIDER_RPS", &errs)
	setDurationFromEnv(&cfg.CacheTTL, "CACHE_TTL", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func (c ClientConfig) validate() []error {
	var errs []error
	if c.LocationInterval <= 0 {
		errs = append(errs, fmt.Errorf("LOCATION_INTERVAL must be > 0"))
	}
	if c.OfferTimeout < 0 {
		errs = append(errs, fmt.Errorf("OFFER_TIMEOUT must be >= 0"))
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		errs = append(errs, fmt.Errorf("WS_RECONNECT_MIN must be > 0 and <= WS_RECONNECT_MAX"))
	}
	if c.LoginEmail != "" {
		if c.LoginPassword == "" {
			errs = append(errs, fmt.Errorf("LOGIN_EMAIL is set but LOGIN_PASSWORD is empty"))
		}
		switch c.LoginRole {
		case "user", "driver", "admin":
		default:
			errs = append(errs, fmt.Errorf("LOGIN_ROLE must be user, driver or admin, got %q", c.LoginRole))
		}
	}
	if c.ProviderRPS <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_RPS must be > 0"))
	}
	switch c.DirectionsProvider {
	case ProviderORS, ProviderOSRM:
	default:
		errs = append(errs, fmt.Errorf("DIRECTIONS_PROVIDER must be %q or %q, got %q", ProviderORS, ProviderOSRM, c.DirectionsProvider))
	}
	if c.StartLat < -90 || c.StartLat > 90 || c.StartLon < -180 || c.StartLon > 180 {
		errs = append(errs, fmt.Errorf("START_LAT/START_LON out of range"))
	}
	for _, s := range c.LocationSinks {
		switch s {
		case SinkREST, SinkWS:
		case SinkKafka:
			if len(c.KafkaBrokers) == 0 {
				errs = append(errs, fmt.Errorf("LOCATION_SINKS includes kafka but KAFKA_BROKERS is empty"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown location sink %q", s))
		}
	}
	return errs
}

// HasSink reports whether the named location sink is enabled.
func (c ClientConfig) HasSink(name string) bool {
	for _, s := range c.LocationSinks {
		if s == name {
			return true
		}
	}
	return false
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
