package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadClientConfig()
	if err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.LocationInterval != 5*time.Second {
		t.Fatalf("expected 5s interval, got %s", cfg.LocationInterval)
	}
	if !cfg.HasSink(SinkREST) || cfg.HasSink(SinkKafka) {
		t.Fatalf("unexpected sinks %v", cfg.LocationSinks)
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.test/")
	t.Setenv("LOCATION_INTERVAL", "2s")
	t.Setenv("DIRECTIONS_PROVIDER", "OSRM")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOCATION_SINKS", "rest,kafka")

	cfg, err := LoadClientConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBaseURL != "https://api.example.test" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.APIBaseURL)
	}
	if cfg.LocationInterval != 2*time.Second || cfg.DirectionsProvider != ProviderOSRM {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestErrorsAccumulate(t *testing.T) {
	t.Setenv("LOCATION_INTERVAL", "soon")
	t.Setenv("DIRECTIONS_PROVIDER", "carrier-pigeon")
	t.Setenv("LOCATION_SINKS", "kafka")

	_, err := LoadClientConfig()
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	for _, want := range []string{"LOCATION_INTERVAL", "DIRECTIONS_PROVIDER", "KAFKA_BROKERS"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestRelayConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	t.Setenv("KAFKA_GROUP", "relay-a")

	cfg, err := LoadRelayConfig()
	if err == nil || !strings.Contains(err.Error(), "KAFKA_BROKERS") {
		t.Fatalf("expected broker error, got %v", err)
	}
	if cfg.KafkaGroup != "relay-a" || cfg.KafkaTopic != "driver-locations" {
		t.Fatalf("unexpected relay config %+v", cfg)
	}
}

func TestLoginCredentials(t *testing.T) {
	t.Setenv("LOGIN_EMAIL", "d@example.test")
	t.Setenv("LOGIN_PASSWORD", "pw")
	t.Setenv("LOGIN_ROLE", "Driver")

	cfg, err := LoadClientConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LoginRole != "driver" || cfg.LoginEmail != "d@example.test" {
		t.Fatalf("login settings not applied: %+v", cfg)
	}

	t.Setenv("LOGIN_PASSWORD", "")
	t.Setenv("LOGIN_ROLE", "guest")
	_, err = LoadClientConfig()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"LOGIN_PASSWORD", "LOGIN_ROLE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err)
		}
	}
}
