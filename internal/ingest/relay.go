package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
)

// MessageReader is the part of *kafka.Reader the relay uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Relay consumes the location topic the agents publish to and keeps the latest
// position of every driver in a presence store.
type Relay struct {
	reader MessageReader
	store  PresenceWriter
	logger *slog.Logger

	Attempts   int
	RetryDelay time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewRelay(brokers []string, topic, group string, store PresenceWriter, logger *slog.Logger) *Relay {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 1, MaxBytes: 10e6})
	return NewRelayWithReader(r, store, logger)
}

func NewRelayWithReader(r MessageReader, store PresenceWriter, logger *slog.Logger) *Relay {
	return &Relay{
		reader:     r,
		store:      store,
		logger:     logging.OrDiscard(logger),
		Attempts:   3,
		RetryDelay: 200 * time.Millisecond,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Run reads until ctx is cancelled. Read failures back off; bad records and
// store failures are counted and skipped.
func (r *Relay) Run(ctx context.Context) error {
	defer r.reader.Close()
	backoff := r.MinBackoff
	for {
		m, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("kafka read failed", "error", err, "backoff", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, r.MaxBackoff)
			continue
		}
		backoff = r.MinBackoff
		if err := r.handle(ctx, m); err != nil && ctx.Err() == nil {
			r.logger.Warn("location record dropped", "key", string(m.Key), "error", err)
		}
	}
}

var errBadRecord = errors.New("bad location record")

func (r *Relay) handle(ctx context.Context, m kafka.Message) error {
	var rec LocationRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		observability.RelayMessages.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", errBadRecord, err)
	}
	if rec.DriverID == "" {
		observability.RelayMessages.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: missing driver_id", errBadRecord)
	}
	at := models.Coord{Lat: rec.Latitude, Lon: rec.Longitude}
	p := models.DriverPresence{
		DriverID:  rec.DriverID,
		Online:    true,
		Location:  &at,
		BookingID: rec.BookingID,
		Updated:   rec.Timestamp,
	}
	if err := r.recordWithRetry(ctx, p); err != nil {
		observability.RelayMessages.WithLabelValues("store_failed").Inc()
		return err
	}
	observability.RelayMessages.WithLabelValues("stored").Inc()
	return nil
}

func (r *Relay) recordWithRetry(ctx context.Context, p models.DriverPresence) error {
	delay := r.RetryDelay
	var err error
	for i := 0; i < r.Attempts; i++ {
		if err = r.store.Record(ctx, p); err == nil {
			return nil
		}
		if i == r.Attempts-1 || !sleep(ctx, delay) {
			break
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
