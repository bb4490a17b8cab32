package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/observability"
)

const DefaultInterval = 5 * time.Second

// ErrLocationUnavailable matches every *UnavailableError.
var ErrLocationUnavailable = errors.New("location unavailable")

// UnavailableError is one failed position read. The tracker keeps running.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return ErrLocationUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrLocationUnavailable, e.Err)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrLocationUnavailable }
func (e *UnavailableError) Unwrap() error        { return e.Err }

// Source reads the current device position.
type Source interface {
	Current(ctx context.Context) (models.Coord, error)
}

type SourceFunc func(ctx context.Context) (models.Coord, error)

func (f SourceFunc) Current(ctx context.Context) (models.Coord, error) { return f(ctx) }

// Sink receives every successful sample.
type Sink interface {
	Send(ctx context.Context, at models.Coord) error
}

type Options struct {
	Interval time.Duration
	// OnSample updates local state before the sample is sent.
	OnSample func(models.Coord)
	// OnError receives one error per failed read or send.
	OnError func(error)
	Logger  *slog.Logger
}

// Tracker samples a Source immediately on Start and then once per interval
// until Stop. A failed read is reported and retried on the next tick only.
type Tracker struct {
	src  Source
	sink Sink
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(src Source, sink Sink, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Tracker{src: src, sink: sink, opts: opts, log: logging.OrDiscard(opts.Logger)}
}

// Start begins sampling; it is a no-op while already running.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
	t.log.Info("location tracking started", "interval", t.opts.Interval.String())
}

// Stop cancels sampling and waits for an in-flight tick. No sample is sent
// after Stop returns. It is a no-op when not running.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.log.Info("location tracking stopped")
}

func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t.tick(ctx)
	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	at, err := t.src.Current(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		var ue *UnavailableError
		if !errors.As(err, &ue) {
			err = &UnavailableError{Err: err}
		}
		observability.LocationSamples.WithLabelValues("unavailable").Inc()
		t.log.Warn("location read failed", "error", err)
		t.report(err)
		return
	}
	if t.opts.OnSample != nil {
		t.opts.OnSample(at)
	}
	if t.sink == nil {
		observability.LocationSamples.WithLabelValues("ok").Inc()
		return
	}
	if err := t.sink.Send(ctx, at); err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.LocationSamples.WithLabelValues("send_failed").Inc()
		t.log.Warn("location send failed", "error", err)
		t.report(err)
		return
	}
	observability.LocationSamples.WithLabelValues("ok").Inc()
}

func (t *Tracker) report(err error) {
	if t.opts.OnError != nil {
		t.opts.OnError(err)
	}
}
