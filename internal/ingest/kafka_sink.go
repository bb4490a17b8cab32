package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/dispatch-client/internal/models"
)

// LocationRecord is one sample as published to the location topic.
type LocationRecord struct {
	DriverID  string    `json:"driver_id"`
	BookingID string    `json:"booking_id,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors tracker samples to a topic keyed by driver id, so every
// sample of one driver lands on the same partition in order.
type KafkaSink struct {
	writer    MessageWriter
	driverID  string
	bookingID func() string
	timeout   time.Duration
	now       func() time.Time
}

func NewKafkaSink(brokers []string, topic, driverID string, bookingID func() string) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaSinkWithWriter(w, driverID, bookingID)
}

func NewKafkaSinkWithWriter(w MessageWriter, driverID string, bookingID func() string) *KafkaSink {
	return &KafkaSink{writer: w, driverID: driverID, bookingID: bookingID, timeout: 2 * time.Second, now: time.Now}
}

func (k *KafkaSink) Send(ctx context.Context, at models.Coord) error {
	rec := LocationRecord{
		DriverID:  k.driverID,
		Latitude:  at.Lat,
		Longitude: at.Lon,
		Timestamp: k.now().UTC(),
	}
	if k.bookingID != nil {
		rec.BookingID = k.bookingID()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(k.driverID), Value: b})
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
