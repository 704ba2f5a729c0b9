// Package geo turns a device's position readings into a stream of events
// and tracks whether the user has allowed location access.
package geo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aidar/groupmap/internal/domain"
)

// PermissionState is the location permission as last observed.
type PermissionState int

// Permission states. Unknown moves to Prompting on Start; the first reading
// settles it to Granted or Denied.
const (
	PermissionUnknown PermissionState = iota
	PermissionPrompting
	PermissionGranted
	PermissionDenied
)

func (p PermissionState) String() string {
	switch p {
	case PermissionPrompting:
		return "prompting"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Options are passed to the device on every read.
type Options struct {
	HighAccuracy bool
	MaximumAge   time.Duration // zero means never reuse a cached reading
	Timeout      time.Duration
}

// DefaultOptions asks for a fresh high-accuracy fix within five seconds.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		MaximumAge:   0,
		Timeout:      5 * time.Second,
	}
}

// Reading is one position fix.
type Reading struct {
	Location  domain.Location
	Accuracy  float64 // meters
	Timestamp time.Time
	Options   Options
}

// Event carries either a reading or the error that replaced it.
type Event struct {
	Reading *Reading
	Err     error
}

// Device reads the current position. It returns domain.ErrPermissionDenied
// when the user refuses access.
type Device interface {
	ReadPosition(ctx context.Context, opts Options) (Reading, error)
}

// Source polls a Device on a fixed interval while subscribed.
// At most one subscription is active at a time.
type Source struct {
	device   Device
	interval time.Duration
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  PermissionState
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource creates a Source. Nothing is read until Start.
func NewSource(device Device, interval time.Duration, opts Options, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		device:   device,
		interval: interval,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// State returns the current permission state.
func (s *Source) State() PermissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start subscribes to position updates. Calling Start while a subscription
// is active returns the existing stream. After a denial Start fails with
// domain.ErrPermissionDenied until Retry.
func (s *Source) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == PermissionDenied {
		return nil, domain.ErrPermissionDenied
	}
	if s.events != nil {
		return s.events, nil
	}
	if s.state == PermissionUnknown {
		s.state = PermissionPrompting
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event)
	done := make(chan struct{})

	s.events, s.cancel, s.done = events, cancel, done

	go s.run(ctx, events, done)

	return events, nil
}

// Stop ends the subscription and closes its stream. It is safe to call
// repeatedly and without a prior Start.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.events, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Retry clears a previous denial and subscribes again.
func (s *Source) Retry(ctx context.Context) (<-chan Event, error) {
	s.Stop()

	s.mu.Lock()
	s.state = PermissionUnknown
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Source) run(ctx context.Context, events chan<- Event, done chan struct{}) {
	defer close(done)
	defer close(events)
	defer s.detach(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		ev, stop := s.read(ctx)
		if ctx.Err() != nil {
			return
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
		if stop {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// read performs one bounded read. stop reports that the subscription ends.
func (s *Source) read(ctx context.Context) (Event, bool) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	type result struct {
		reading Reading
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := s.device.ReadPosition(rctx, s.opts)
		ch <- result{r, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-rctx.Done():
		res.err = rctx.Err()
	}

	switch {
	case res.err == nil:
		s.setState(PermissionGranted)
		reading := res.reading
		reading.Options = s.opts
		if reading.Timestamp.IsZero() {
			reading.Timestamp = s.now()
		}
		return Event{Reading: &reading}, false

	case errors.Is(res.err, domain.ErrPermissionDenied):
		s.setState(PermissionDenied)
		s.logger.Warn("location permission denied")
		return Event{Err: domain.ErrPermissionDenied}, true

	case errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.Warn("location reading timed out", "timeout", s.opts.Timeout)
		return Event{Err: domain.ErrReadingTimeout}, false

	default:
		s.logger.Warn("location reading failed", "error", res.err)
		return Event{Err: res.err}, false
	}
}

func (s *Source) setState(state PermissionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// detach forgets a subscription that ended on its own.
func (s *Source) detach(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.cancel()
		s.events, s.cancel, s.done = nil, nil, nil
	}
}
