// Package tracker runs the client side of presence: it reports every
// position reading, fetches the visible roster and reconciles the map.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/geo"
	"github.com/aidar/groupmap/internal/mapview"
	"github.com/aidar/groupmap/internal/roster"
)

// PositionSource produces position events.
type PositionSource interface {
	Start(ctx context.Context) (<-chan geo.Event, error)
	Stop()
}

// API is the part of the server the tracker talks to.
type API interface {
	ReportPosition(ctx context.Context, update domain.ProfileUpdate) (*domain.PositionedUser, error)
	FetchVisibleRoster(ctx context.Context) ([]domain.GroupRoster, error)
}

// Profile is sent with the first report of a session.
type Profile struct {
	DisplayName string
	AvatarURL   string
	Email       string
}

// Config tunes a Tracker.
type Config struct {
	// RefreshInterval is the minimum spacing of roster fetches triggered by
	// position readings. Explicit refreshes bypass it.
	RefreshInterval time.Duration

	// GroupID limits the map to one group's members. uuid.Nil shows every
	// group of the viewer.
	GroupID uuid.UUID
}

// Tracker drives one viewer's presence session. Report, fetch and reconcile
// run sequentially on the Run goroutine.
type Tracker struct {
	source     PositionSource
	api        API
	reconciler *mapview.Reconciler
	profile    Profile
	limiter    *rate.Limiter
	logger     *slog.Logger

	refresh     chan struct{}
	sentProfile bool
	self        *domain.Location // latest device fix
	rosters     []domain.GroupRoster

	mu      sync.Mutex
	groupID uuid.UUID
}

// New creates a Tracker.
func New(source PositionSource, api API, reconciler *mapview.Reconciler, profile Profile, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RefreshInterval > 0 {
		limit = rate.Every(cfg.RefreshInterval)
	}

	return &Tracker{
		source:     source,
		api:        api,
		reconciler: reconciler,
		profile:    profile,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		refresh:    make(chan struct{}, 1),
		groupID:    cfg.GroupID,
	}
}

// SelectGroup switches the map to one group, or to every group for
// uuid.Nil, and triggers a refresh.
func (t *Tracker) SelectGroup(groupID uuid.UUID) {
	t.mu.Lock()
	t.groupID = groupID
	t.mu.Unlock()
	t.Refresh()
}

func (t *Tracker) selectedGroup() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.groupID
}

// Refresh asks Run to fetch and render the roster now, regardless of the
// refresh interval. Call it after joining, leaving or deleting a group.
func (t *Tracker) Refresh() {
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

// Stop ends the position subscription; Run returns once the stream closes.
// An upsert already in flight still completes.
func (t *Tracker) Stop() {
	t.source.Stop()
}

// Run processes events until ctx is done, Stop is called or location access
// is denied. A denial is returned as domain.ErrPermissionDenied.
func (t *Tracker) Run(ctx context.Context) error {
	events, err := t.source.Start(ctx)
	if err != nil {
		return fmt.Errorf("start position source: %w", err)
	}
	defer t.source.Stop()

	t.sync(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-t.refresh:
			t.sync(ctx)

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := t.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (t *Tracker) handle(ctx context.Context, ev geo.Event) error {
	if ev.Err != nil {
		if errors.Is(ev.Err, domain.ErrPermissionDenied) {
			t.logger.Warn("location permission denied, stopping presence reports")
			return domain.ErrPermissionDenied
		}
		t.logger.Warn("position reading failed", "error", ev.Err)
		return nil
	}

	t.report(ctx, ev.Reading)

	if t.limiter.Allow() {
		t.sync(ctx)
	} else {
		t.render()
	}
	return nil
}

func (t *Tracker) report(ctx context.Context, reading *geo.Reading) {
	loc := reading.Location
	ts := reading.Timestamp
	t.self = &loc

	update := domain.ProfileUpdate{Location: &loc, ReportedAt: &ts}

	if !t.sentProfile {
		if t.profile.DisplayName != "" {
			update.DisplayName = &t.profile.DisplayName
		}
		if t.profile.AvatarURL != "" {
			update.AvatarURL = &t.profile.AvatarURL
		}
		if t.profile.Email != "" {
			update.Email = &t.profile.Email
		}
	}

	// The write is not abandoned when the session stops.
	if _, err := t.api.ReportPosition(context.WithoutCancel(ctx), update); err != nil {
		t.logger.Warn("position report failed", "error", err)
		return
	}
	t.sentProfile = true
}

// sync fetches the roster and renders it. On failure the last fetched roster
// is rendered again, so only the viewer's own marker can change.
func (t *Tracker) sync(ctx context.Context) {
	rosters, err := t.api.FetchVisibleRoster(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("roster fetch failed, keeping last render", "error", err)
		}
	} else {
		t.rosters = rosters
	}
	t.render()
}

// render reconciles the last fetched roster with the viewer's latest fix.
func (t *Tracker) render() {
	r := roster.Merge(filterGroup(t.rosters, t.selectedGroup()))
	plan := t.reconciler.Reconcile(r, t.self)
	if !plan.Empty() {
		t.logger.Debug("map reconciled",
			"created", len(plan.Creates),
			"moved", len(plan.Moves),
			"removed", len(plan.Removes),
			"viewport", plan.Viewport != nil)
	}
}

// filterGroup keeps only groupID's roster; uuid.Nil keeps all of them.
func filterGroup(rosters []domain.GroupRoster, groupID uuid.UUID) []domain.GroupRoster {
	if groupID == uuid.Nil {
		return rosters
	}
	for _, gr := range rosters {
		if gr.Group.ID == groupID {
			return []domain.GroupRoster{gr}
		}
	}
	return nil
}
