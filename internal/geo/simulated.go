package geo

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aidar/groupmap/internal/domain"
)

// SimulatedDevice walks randomly around a starting point. The same seed
// yields the same walk.
type SimulatedDevice struct {
	mu      sync.Mutex
	current domain.Location
	step    float64
	rng     *rand.Rand
	denied  bool
}

// NewSimulatedDevice creates a device starting at start that moves at most
// step degrees along each axis per reading.
func NewSimulatedDevice(start domain.Location, step float64, seed uint64) *SimulatedDevice {
	return &SimulatedDevice{
		current: start,
		step:    step,
		rng:     rand.New(rand.NewPCG(seed, seed)),
	}
}

// SetDenied makes subsequent reads fail as if the user refused access.
func (d *SimulatedDevice) SetDenied(denied bool) {
	d.mu.Lock()
	d.denied = denied
	d.mu.Unlock()
}

// ReadPosition implements Device.
func (d *SimulatedDevice) ReadPosition(ctx context.Context, opts Options) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.denied {
		return Reading{}, domain.ErrPermissionDenied
	}

	d.current.Longitude = clamp(d.current.Longitude+d.jitter(), -180, 180)
	d.current.Latitude = clamp(d.current.Latitude+d.jitter(), -90, 90)

	accuracy := 25.0
	if opts.HighAccuracy {
		accuracy = 5
	}

	return Reading{
		Location:  d.current,
		Accuracy:  accuracy,
		Timestamp: time.Now(),
	}, nil
}

func (d *SimulatedDevice) jitter() float64 {
	return (d.rng.Float64()*2 - 1) * d.step
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
