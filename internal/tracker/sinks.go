package tracker

import (
	"context"
	"errors"

	"github.com/example/dispatch-client/internal/models"
	"github.com/example/dispatch-client/internal/realtime"
)

// LocationUpdater is the backend call behind POST /drivers/update-location.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, at models.Coord) error
}

type RESTSink struct {
	API LocationUpdater
}

func (s RESTSink) Send(ctx context.Context, at models.Coord) error {
	return s.API.UpdateLocation(ctx, at)
}

// Sender is the outbound half of the realtime channel.
type Sender interface {
	Send(ev realtime.Event)
}

// ChannelSink mirrors samples over the realtime channel. Delivery is best
// effort, so it never fails.
type ChannelSink struct {
	Channel Sender
}

func (s ChannelSink) Send(_ context.Context, at models.Coord) error {
	s.Channel.Send(realtime.LocationUpdate{Latitude: at.Lat, Longitude: at.Lon})
	return nil
}

// Multi fans a sample out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, at models.Coord) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
