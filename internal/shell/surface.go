// Package shell is the window presentation core: it tracks every
// managed top-level window through its lifecycle, mediates grabs and
// focus, and translates between compositor events and the remote
// presentation channel.
package shell

import (
	"github.com/IcebergThings/railshell/internal/compositor"
)

// ShowState is a window's presentation state as reported to the remote
// side.
type ShowState int

const (
	ShowNormal ShowState = iota
	ShowMinimized
	ShowMaximized
	ShowFullscreen
)

// ResizeEdge is a bitmask of grabbed window edges.
type ResizeEdge uint32

const (
	EdgeNone   ResizeEdge = 0
	EdgeTop    ResizeEdge = 1
	EdgeBottom ResizeEdge = 2
	EdgeLeft   ResizeEdge = 4
	EdgeRight  ResizeEdge = 8
)

// validResizeEdges is the whitelist of edge combinations a resize grab
// accepts: single edges and corners, never opposing pairs and never
// none.
var validResizeEdges = map[ResizeEdge]bool{
	EdgeTop:                true,
	EdgeBottom:             true,
	EdgeLeft:               true,
	EdgeRight:              true,
	EdgeTop | EdgeLeft:     true,
	EdgeTop | EdgeRight:    true,
	EdgeBottom | EdgeLeft:  true,
	EdgeBottom | EdgeRight: true,
}

// SnapState is the bookkeeping for a remote-initiated partial maximize.
// Snapping is tracked independently of the maximized state; the two are
// mutually exclusive.
type SnapState struct {
	Snapped bool
	// MaximizePending defers a maximize that arrived during a local
	// move until the follow-up snap message lands.
	MaximizePending bool

	X, Y, W, H int
	// SavedW/SavedH restore the pre-snap size on unsnap.
	SavedW, SavedH int
	// LastGrabX/LastGrabY is where the last move grab ended; a deferred
	// maximize retargets its output by this point.
	LastGrabX, LastGrabY float64
}

// Surface is one managed window: the shell-side record attached 1:1 to
// a desktop surface and its view.
type Surface struct {
	ds   compositor.DesktopSurface
	view compositor.View

	parent   compositor.SurfaceID
	children []compositor.SurfaceID

	mapped bool
	lastW  int
	lastH  int

	savedPos      compositor.Point
	savedPosValid bool

	savedShow      ShowState
	savedShowValid bool

	savedRotation      compositor.Matrix
	savedRotationValid bool

	fullscreen bool
	maximized  bool
	minimized  bool
	lowered    bool
	snap       SnapState

	xwaylandHintSet bool
	xwaylandHintX   int
	xwaylandHintY   int

	rotation compositor.Matrix
	rotated  bool

	// backdrop is the black view kept immediately below a fullscreen
	// view in the same layer.
	backdrop compositor.View

	focusCount  int
	resizeEdges ResizeEdge

	unresponsive bool
	grabbed      bool
	resizing     bool
	destroying   bool

	// localMovePending is set while a move grab has been handed to the
	// remote side; any real motion event cancels it.
	localMovePending bool

	iconDefault     bool
	iconSet         bool
	iconTriggerSent bool

	layer Layer
	title string

	cancelMeta func()
}

// ID returns the surface identity.
func (s *Surface) ID() compositor.SurfaceID {
	return s.ds.ID()
}

// Title returns the cached window title, refreshing it after a metadata
// change invalidated the cache.
func (s *Surface) Title() string {
	if s.title == "" {
		s.title = s.ds.Title()
	}
	return s.title
}

// ShowState derives the presentation state from the flags.
func (s *Surface) ShowState() ShowState {
	switch {
	case s.minimized:
		return ShowMinimized
	case s.fullscreen:
		return ShowFullscreen
	case s.maximized:
		return ShowMaximized
	default:
		return ShowNormal
	}
}

// Mapped reports whether the surface has committed a non-zero buffer.
func (s *Surface) Mapped() bool {
	return s.mapped
}

// Snapped reports whether the surface is currently snapped.
func (s *Surface) Snapped() bool {
	return s.snap.Snapped
}

// SetXWaylandHint records the position hint an X client supplied before
// mapping.
func (s *Surface) SetXWaylandHint(x, y int) {
	s.xwaylandHintSet = true
	s.xwaylandHintX = x
	s.xwaylandHintY = y
}

// addChild links a mapped transient under this surface. Last inserted
// wins the activation descent.
func (s *Surface) addChild(id compositor.SurfaceID) {
	for _, c := range s.children {
		if c == id {
			return
		}
	}
	s.children = append(s.children, id)
}

// removeChild unlinks a transient.
func (s *Surface) removeChild(id compositor.SurfaceID) {
	for i, c := range s.children {
		if c == id {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
