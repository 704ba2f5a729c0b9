package geo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidar/groupmap/internal/domain"
)

// scriptedDevice replays results in order, then repeats the last one.
type scriptedDevice struct {
	mu      sync.Mutex
	results []error
	reads   int
	block   bool
	opts    []Options
}

func (d *scriptedDevice) ReadPosition(ctx context.Context, opts Options) (Reading, error) {
	d.mu.Lock()
	i := d.reads
	d.reads++
	d.opts = append(d.opts, opts)
	block := d.block
	var err error
	if len(d.results) > 0 {
		err = d.results[min(i, len(d.results)-1)]
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return Reading{}, ctx.Err()
	}
	if err != nil {
		return Reading{}, err
	}
	return Reading{Location: domain.Location{Longitude: float64(i), Latitude: 1}}, nil
}

func (d *scriptedDevice) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func waitClosed(t *testing.T, events <-chan Event) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed")
		}
	}
}

func TestSource_LazyUntilStart(t *testing.T) {
	dev := &scriptedDevice{}
	src := NewSource(dev, 10*time.Millisecond, DefaultOptions(), nil)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, dev.readCount())
	assert.Equal(t, PermissionUnknown, src.State())
}

func TestSource_GrantedReadings(t *testing.T) {
	dev := &scriptedDevice{}
	src := NewSource(dev, 10*time.Millisecond, DefaultOptions(), nil)

	events, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	ev := next(t, events)
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Reading)
	assert.False(t, ev.Reading.Timestamp.IsZero())
	assert.Equal(t, DefaultOptions(), ev.Reading.Options)
	assert.Equal(t, PermissionGranted, src.State())

	ev = next(t, events)
	require.NotNil(t, ev.Reading)
	assert.Equal(t, 1.0, ev.Reading.Location.Longitude)

	dev.mu.Lock()
	assert.True(t, dev.opts[0].HighAccuracy)
	assert.Zero(t, dev.opts[0].MaximumAge)
	assert.Equal(t, 5*time.Second, dev.opts[0].Timeout)
	dev.mu.Unlock()
}

func TestSource_StartIsSingleSubscription(t *testing.T) {
	src := NewSource(&scriptedDevice{}, time.Hour, DefaultOptions(), nil)

	first, err := src.Start(context.Background())
	require.NoError(t, err)
	second, err := src.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	src.Stop()
	src.Stop()
	waitClosed(t, first)
}

func TestSource_Denied(t *testing.T) {
	dev := &scriptedDevice{results: []error{domain.ErrPermissionDenied}}
	src := NewSource(dev, 10*time.Millisecond, DefaultOptions(), nil)

	events, err := src.Start(context.Background())
	require.NoError(t, err)

	ev := next(t, events)
	assert.ErrorIs(t, ev.Err, domain.ErrPermissionDenied)
	waitClosed(t, events)
	assert.Equal(t, PermissionDenied, src.State())

	_, err = src.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	dev.mu.Lock()
	dev.results = nil
	dev.mu.Unlock()

	events, err = src.Retry(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	ev = next(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, PermissionGranted, src.State())
}

func TestSource_TimeoutContinues(t *testing.T) {
	dev := &scriptedDevice{block: true}
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	src := NewSource(dev, 10*time.Millisecond, opts, nil)

	events, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	ev := next(t, events)
	assert.ErrorIs(t, ev.Err, domain.ErrReadingTimeout)
	assert.Equal(t, PermissionPrompting, src.State())

	dev.mu.Lock()
	dev.block = false
	dev.mu.Unlock()

	// A tick may already be queued, so more timeouts can precede the first reading.
	for {
		ev = next(t, events)
		if ev.Err == nil {
			break
		}
		require.ErrorIs(t, ev.Err, domain.ErrReadingTimeout)
	}
	assert.Equal(t, PermissionGranted, src.State())
}

func TestSource_ParentCancelClosesStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewSource(&scriptedDevice{}, time.Hour, DefaultOptions(), nil)

	events, err := src.Start(ctx)
	require.NoError(t, err)
	next(t, events)

	cancel()
	waitClosed(t, events)
}

func TestSimulatedDevice(t *testing.T) {
	start := domain.Location{Longitude: 10, Latitude: 20}
	a := NewSimulatedDevice(start, 0.01, 42)
	b := NewSimulatedDevice(start, 0.01, 42)

	for i := 0; i < 5; i++ {
		ra, err := a.ReadPosition(context.Background(), DefaultOptions())
		require.NoError(t, err)
		rb, err := b.ReadPosition(context.Background(), DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, ra.Location, rb.Location)
		assert.InDelta(t, 10, ra.Location.Longitude, 0.01*float64(i+1))
		assert.InDelta(t, 20, ra.Location.Latitude, 0.01*float64(i+1))
	}

	a.SetDenied(true)
	_, err := a.ReadPosition(context.Background(), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}
