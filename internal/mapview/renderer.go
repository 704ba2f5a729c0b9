// Package mapview keeps a set of rendered map markers in step with roster
// snapshots.
package mapview

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/aidar/groupmap/internal/domain"
)

// Handle identifies a marker created by a Renderer.
type Handle string

// Renderer is the map widget the reconciler drives.
type Renderer interface {
	Create(loc domain.Location, label, avatarURL string) Handle
	Move(h Handle, loc domain.Location)
	Remove(h Handle)
	FitBounds(bounds orb.Bound, padding int)
	SetView(center domain.Location, zoom int)
}

// LogRenderer renders by logging each call. It stands in for a map widget in
// headless runs.
type LogRenderer struct {
	logger *slog.Logger

	mu   sync.Mutex
	next int
}

// NewLogRenderer creates a LogRenderer writing to logger.
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger}
}

// Create implements Renderer.
func (r *LogRenderer) Create(loc domain.Location, label, avatarURL string) Handle {
	r.mu.Lock()
	r.next++
	h := Handle(fmt.Sprintf("marker-%d", r.next))
	r.mu.Unlock()

	r.logger.Info("marker created", "handle", h, "label", label, "avatar_url", avatarURL,
		"lng", loc.Longitude, "lat", loc.Latitude)
	return h
}

// Move implements Renderer.
func (r *LogRenderer) Move(h Handle, loc domain.Location) {
	r.logger.Info("marker moved", "handle", h, "lng", loc.Longitude, "lat", loc.Latitude)
}

// Remove implements Renderer.
func (r *LogRenderer) Remove(h Handle) {
	r.logger.Info("marker removed", "handle", h)
}

// FitBounds implements Renderer.
func (r *LogRenderer) FitBounds(bounds orb.Bound, padding int) {
	r.logger.Info("viewport fitted",
		"min_lng", bounds.Min.Lon(), "min_lat", bounds.Min.Lat(),
		"max_lng", bounds.Max.Lon(), "max_lat", bounds.Max.Lat(),
		"padding", padding)
}

// SetView implements Renderer.
func (r *LogRenderer) SetView(center domain.Location, zoom int) {
	r.logger.Info("viewport set", "lng", center.Longitude, "lat", center.Latitude, "zoom", zoom)
}
