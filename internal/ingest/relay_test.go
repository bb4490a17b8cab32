package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
)

// fakeReader serves queued messages, then blocks until cancelled.
type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	errs   int
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.errs > 0 {
		f.errs--
		f.mu.Unlock()
		return kafka.Message{}, errors.New("broker down")
	}
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakePresence struct {
	mu   sync.Mutex
	fail int
	got  []models.DriverPresence
	done chan struct{}
}

func (f *fakePresence) Record(_ context.Context, p models.DriverPresence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("redis down")
	}
	f.got = append(f.got, p)
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
	return nil
}

func record(t *testing.T, rec LocationRecord) kafka.Message {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(rec.DriverID), Value: b}
}

func TestRelayStoresLatestPosition(t *testing.T) {
	stored := make(chan struct{})
	store := &fakePresence{fail: 1, done: stored}
	reader := &fakeReader{
		errs: 1,
		msgs: []kafka.Message{
			{Value: []byte("{not json")},
			record(t, LocationRecord{DriverID: "d1", BookingID: "b1", Latitude: 12.9, Longitude: 77.6, Timestamp: time.Unix(100, 0)}),
		},
	}
	r := NewRelayWithReader(reader, store, nil)
	r.MinBackoff, r.RetryDelay = time.Millisecond, time.Millisecond
	invalid := testutil.ToFloat64(observability.RelayMessages.WithLabelValues("invalid"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	select {
	case <-stored:
	case <-time.After(2 * time.Second):
		t.Fatal("record never stored")
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(store.got) != 1 {
		t.Fatalf("expected one stored record, got %d", len(store.got))
	}
	p := store.got[0]
	if p.DriverID != "d1" || p.BookingID != "b1" || p.Location == nil || p.Location.Lat != 12.9 || !p.Online {
		t.Fatalf("unexpected presence %+v", p)
	}
	if got := testutil.ToFloat64(observability.RelayMessages.WithLabelValues("invalid")) - invalid; got != 1 {
		t.Fatalf("expected one invalid record, got %v", got)
	}
	if !reader.closed {
		t.Fatal("reader not closed")
	}
}

func TestRelayGivesUpAfterAttempts(t *testing.T) {
	store := &fakePresence{fail: 5}
	r := NewRelayWithReader(&fakeReader{}, store, nil)
	r.RetryDelay = time.Millisecond
	err := r.handle(context.Background(), record(t, LocationRecord{DriverID: "d1"}))
	if err == nil {
		t.Fatal("expected store error")
	}
	if store.fail != 2 {
		t.Fatalf("expected 3 attempts, %d failures left", store.fail)
	}
	if err := r.handle(context.Background(), record(t, LocationRecord{})); !errors.Is(err, errBadRecord) {
		t.Fatalf("expected errBadRecord, got %v", err)
	}
}

type fakeGeo struct {
	geo  map[string]*redis.GeoLocation
	meta map[string][]interface{}
}

func (f *fakeGeo) GeoAdd(ctx context.Context, key string, locs ...*redis.GeoLocation) *redis.IntCmd {
	for _, l := range locs {
		f.geo[key+"/"+l.Name] = l
	}
	cmd := redis.NewIntCmd(ctx, "geoadd", key)
	cmd.SetVal(int64(len(locs)))
	return cmd
}

func (f *fakeGeo) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.meta[key] = values
	cmd := redis.NewIntCmd(ctx, "hset", key)
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func TestRedisPresenceRecord(t *testing.T) {
	f := &fakeGeo{geo: map[string]*redis.GeoLocation{}, meta: map[string][]interface{}{}}
	r := NewRedisPresenceWithClient(f, "dispatch:")
	at := models.Coord{Lat: 12.9, Lon: 77.6}
	err := r.Record(context.Background(), models.DriverPresence{DriverID: "d1", Online: true, Location: &at, Updated: time.Unix(0, 0)})
	if err != nil {
		t.Fatal(err)
	}
	loc := f.geo["dispatch:drivers_geo/d1"]
	if loc == nil || loc.Latitude != 12.9 || loc.Longitude != 77.6 {
		t.Fatalf("geo entry not written: %v", f.geo)
	}
	meta := f.meta["dispatch:drivers_geo:meta:d1"]
	if len(meta) != 6 || meta[1] != "true" {
		t.Fatalf("unexpected meta %v", meta)
	}
}
