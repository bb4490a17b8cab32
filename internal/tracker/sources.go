package tracker

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/example/dispatch-client/internal/models"
)

// Static always reports the same point, or Err when set.
type Static struct {
	At  models.Coord
	Err error
}

func (s Static) Current(context.Context) (models.Coord, error) {
	if s.Err != nil {
		return models.Coord{}, &UnavailableError{Err: s.Err}
	}
	return s.At, nil
}

const metersPerDegree = 111_320.0

// Walk simulates a moving device: every read moves up to StepMeters in a
// random direction from the previous point.
type Walk struct {
	StepMeters float64

	mu  sync.Mutex
	at  models.Coord
	rnd *rand.Rand
}

func NewWalk(start models.Coord, stepMeters float64, seed uint64) *Walk {
	return &Walk{StepMeters: stepMeters, at: start, rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (w *Walk) Current(context.Context) (models.Coord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dist := w.rnd.Float64() * w.StepMeters
	bearing := w.rnd.Float64() * 2 * math.Pi
	dLat := dist * math.Cos(bearing) / metersPerDegree
	dLon := dist * math.Sin(bearing) / (metersPerDegree * math.Max(math.Cos(w.at.Lat*math.Pi/180), 1e-6))
	w.at.Lat = math.Max(-90, math.Min(90, w.at.Lat+dLat))
	w.at.Lon = math.Mod(w.at.Lon+dLon+540, 360) - 180
	return w.at, nil
}

// MoveTo jumps the walk to p, e.g. towards a pickup.
func (w *Walk) MoveTo(p models.Coord) {
	w.mu.Lock()
	w.at = p
	w.mu.Unlock()
}
