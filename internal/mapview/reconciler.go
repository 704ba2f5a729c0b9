package mapview

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/roster"
)

// Viewport defaults.
const (
	FitPadding  = 50
	DefaultZoom = 2
)

// DefaultCenter is shown when no marker has a location.
var DefaultCenter = domain.Location{Longitude: -122.4241, Latitude: 37.7762}

// SelfLabel labels the viewer's own marker.
const SelfLabel = "You"

// Marker is one rendered identity.
type Marker struct {
	Handle   Handle
	Location domain.Location
	Label    string
}

// Viewport is either a fit over Bounds or a fixed Center and Zoom.
type Viewport struct {
	Fit     bool
	Bounds  orb.Bound
	Padding int
	Center  domain.Location
	Zoom    int
}

// State is what has been rendered so far.
type State struct {
	Markers  map[string]Marker
	Viewport *Viewport // nil until the first viewport call
}

// NewState returns an empty State.
func NewState() State {
	return State{Markers: make(map[string]Marker)}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{Markers: maps.Clone(s.Markers)}
	if out.Markers == nil {
		out.Markers = make(map[string]Marker)
	}
	if s.Viewport != nil {
		vp := *s.Viewport
		out.Viewport = &vp
	}
	return out
}

// CreateOp adds a marker for ID.
type CreateOp struct {
	ID        string
	Location  domain.Location
	Label     string
	AvatarURL string
}

// MoveOp repositions an existing marker.
type MoveOp struct {
	ID       string
	Handle   Handle
	Location domain.Location
}

// RemoveOp deletes a marker whose identity left the roster.
type RemoveOp struct {
	ID     string
	Handle Handle
}

// Plan is the set of renderer calls that brings a State in line with a
// roster. Operations within each list are ordered by identity.
type Plan struct {
	Creates  []CreateOp
	Moves    []MoveOp
	Removes  []RemoveOp
	Viewport *Viewport // nil when the viewport is already right
}

// Empty reports whether the plan issues no calls.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Moves) == 0 && len(p.Removes) == 0 && p.Viewport == nil
}

// Diff computes the plan for rendering r as seen by viewer. It does not
// modify state.
//
// self is the viewer's own device fix. When set it places the viewer's
// marker instead of the roster copy, and the viewer is drawn even when absent
// from r. The viewer's marker is never removed.
//
// Users without a location are never created, moved or removed: an existing
// marker for them stays where it was.
func Diff(state State, viewer string, r roster.Roster, self *domain.Location) Plan {
	var plan Plan
	ambiguous := len(r[viewer].Groups) > 1
	r = withSelf(r, viewer, self)

	// Resulting marker positions, for the viewport.
	rendered := make(map[string]domain.Location, len(state.Markers))
	for id, m := range state.Markers {
		rendered[id] = m.Location
	}

	for _, id := range slices.Sorted(maps.Keys(r)) {
		entry := r[id]
		if entry.User.Location == nil {
			continue
		}
		loc := *entry.User.Location

		if m, ok := state.Markers[id]; ok {
			if m.Location != loc {
				plan.Moves = append(plan.Moves, MoveOp{ID: id, Handle: m.Handle, Location: loc})
				rendered[id] = loc
			}
			continue
		}

		plan.Creates = append(plan.Creates, CreateOp{
			ID:        id,
			Location:  loc,
			Label:     Label(viewer, entry, ambiguous),
			AvatarURL: entry.User.AvatarURL,
		})
		rendered[id] = loc
	}

	for _, id := range slices.Sorted(maps.Keys(state.Markers)) {
		if _, ok := r[id]; ok || id == viewer {
			continue
		}
		plan.Removes = append(plan.Removes, RemoveOp{ID: id, Handle: state.Markers[id].Handle})
		delete(rendered, id)
	}

	target := viewportFor(rendered)
	if state.Viewport == nil || *state.Viewport != target {
		plan.Viewport = &target
	}

	return plan
}

// withSelf returns r with the viewer's entry placed at self. r is not modified.
func withSelf(r roster.Roster, viewer string, self *domain.Location) roster.Roster {
	if self == nil {
		return r
	}

	out := maps.Clone(r)
	if out == nil {
		out = make(roster.Roster, 1)
	}
	entry := out[viewer]
	entry.User.ID = viewer
	loc := *self
	entry.User.Location = &loc
	out[viewer] = entry
	return out
}

// Label returns the marker text for entry. When the viewer shares more than
// one group, the names of the groups the entry was seen through are appended.
func Label(viewer string, entry roster.Entry, ambiguous bool) string {
	if entry.User.ID == viewer {
		return SelfLabel
	}

	name := entry.User.DisplayName
	if name == "" {
		name = entry.User.ID
	}
	if ambiguous && len(entry.Groups) > 0 {
		name += " (" + strings.Join(entry.Groups, ", ") + ")"
	}
	return name
}

func viewportFor(rendered map[string]domain.Location) Viewport {
	if len(rendered) == 0 {
		return Viewport{Center: DefaultCenter, Zoom: DefaultZoom}
	}

	points := make(orb.MultiPoint, 0, len(rendered))
	for _, loc := range rendered {
		points = append(points, orb.Point{loc.Longitude, loc.Latitude})
	}
	return Viewport{Fit: true, Bounds: points.Bound(), Padding: FitPadding}
}

// Apply issues plan to renderer and returns the resulting state. Removes go
// first, then moves, creates and finally the viewport.
func Apply(state State, plan Plan, renderer Renderer) State {
	next := state.Clone()

	for _, op := range plan.Removes {
		renderer.Remove(op.Handle)
		delete(next.Markers, op.ID)
	}

	for _, op := range plan.Moves {
		renderer.Move(op.Handle, op.Location)
		m := next.Markers[op.ID]
		m.Location = op.Location
		next.Markers[op.ID] = m
	}

	for _, op := range plan.Creates {
		h := renderer.Create(op.Location, op.Label, op.AvatarURL)
		next.Markers[op.ID] = Marker{Handle: h, Location: op.Location, Label: op.Label}
	}

	if vp := plan.Viewport; vp != nil {
		if vp.Fit {
			renderer.FitBounds(vp.Bounds, vp.Padding)
		} else {
			renderer.SetView(vp.Center, vp.Zoom)
		}
		applied := *vp
		next.Viewport = &applied
	}

	return next
}

// Reconciler owns the rendered state for one viewer and one Renderer.
type Reconciler struct {
	renderer Renderer
	viewer   string

	mu    sync.Mutex
	state State
}

// NewReconciler creates a Reconciler with nothing rendered.
func NewReconciler(renderer Renderer, viewer string) *Reconciler {
	return &Reconciler{
		renderer: renderer,
		viewer:   viewer,
		state:    NewState(),
	}
}

// Reconcile renders r together with the viewer's own fix (nil when unknown)
// and returns the plan that was applied. An unchanged input yields an empty
// plan.
func (rc *Reconciler) Reconcile(r roster.Roster, self *domain.Location) Plan {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	plan := Diff(rc.state, rc.viewer, r, self)
	rc.state = Apply(rc.state, plan, rc.renderer)
	return plan
}

// State returns a copy of the rendered state.
func (rc *Reconciler) State() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state.Clone()
}
