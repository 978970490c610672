package shell

import (
	"math"

	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/rail"
)

// Pointer button codes (linux input event codes).
const (
	BtnLeft  uint32 = 0x110
	BtnRight uint32 = 0x111
)

// rotateResetRadius is the pointer distance from the grab start below
// which a rotate grab resets the window to upright instead of rotating.
const rotateResetRadius = 20.0

// Grabber owns the pointer (or touch) for the duration of an
// interactive operation. Events are routed here instead of to client
// surfaces.
type Grabber interface {
	Focus(x, y float64)
	Motion(x, y float64)
	Button(button uint32, pressed bool)
	Axis(value float64)
	Frame()
	Cancel()
}

// surfaceGrab is implemented by grabs bound to a single surface, so the
// manager can sever them when that surface is destroyed.
type surfaceGrab interface {
	surface() *Surface
}

// PointerEvent routes a pointer event through the active grab, if any.
// It reports whether the event was consumed.
func (m *Manager) PointerMotion(x, y float64) bool {
	if m.grab == nil {
		return false
	}
	m.grab.Motion(x, y)
	return true
}

// PointerButton routes a button event through the active grab.
func (m *Manager) PointerButton(button uint32, pressed bool) bool {
	if m.grab == nil {
		return false
	}
	m.grab.Button(button, pressed)
	return true
}

// PointerAxis routes a scroll event through the active grab.
func (m *Manager) PointerAxis(value float64) bool {
	if m.grab == nil {
		return false
	}
	m.grab.Axis(value)
	return true
}

func (m *Manager) setGrab(g Grabber) {
	if m.grab != nil {
		m.grab.Cancel()
	}
	m.grab = g
}

func (m *Manager) endGrab() {
	m.grab = nil
}

// StartMoveGrab begins an interactive move. When the remote side
// supports local moves the drag is handed over; the remote reports the
// final position through a move command. Any real motion seen before
// that cancels the handoff and the move completes locally.
func (m *Manager) StartMoveGrab(id compositor.SurfaceID, seat compositor.Seat) {
	s := m.surfaces[id]
	if s == nil || !s.mapped || s.fullscreen || s.maximized {
		return
	}
	pos := seat.Pointer().Position()

	if s.snap.Snapped {
		m.unsnap(s, &pos)
	}

	g := &moveGrab{
		m:         m,
		s:         s,
		seat:      seat,
		startPtr:  pos,
		startView: s.view.Position(),
	}
	s.grabbed = true

	if m.opts.LocalMove && m.channel.SupportsLocalMove() {
		if err := m.channel.StartWindowMove(rail.WindowID(id), int(pos.X), int(pos.Y)); err != nil {
			m.logChannelErr(err, "local move handoff failed")
		} else {
			s.localMovePending = true
		}
	}
	m.setGrab(g)
}

type moveGrab struct {
	m    *Manager
	s    *Surface
	seat compositor.Seat

	startPtr  compositor.Point
	startView compositor.Point
	lastPtr   compositor.Point
}

func (g *moveGrab) surface() *Surface { return g.s }

func (g *moveGrab) Focus(x, y float64) {}

func (g *moveGrab) Motion(x, y float64) {
	g.lastPtr = compositor.Point{X: x, Y: y}

	// The compositor still sees motion: the remote side did not take the
	// drag after all, so finish it locally.
	if g.s.localMovePending {
		g.s.localMovePending = false
		g.m.logChannelErr(g.m.channel.EndWindowMove(rail.WindowID(g.s.ID())), "end window move failed")
	}
	g.s.view.SetPosition(g.startView.X+(x-g.startPtr.X), g.startView.Y+(y-g.startPtr.Y))
}

func (g *moveGrab) Button(button uint32, pressed bool) {
	if pressed || button != BtnLeft {
		return
	}
	g.stop(false)
}

func (g *moveGrab) Axis(value float64) {}
func (g *moveGrab) Frame()             {}

func (g *moveGrab) Cancel() { g.stop(true) }

func (g *moveGrab) stop(cancelled bool) {
	s := g.s
	s.grabbed = false

	end := g.lastPtr
	if end == (compositor.Point{}) {
		end = g.startPtr
	}
	s.snap.LastGrabX, s.snap.LastGrabY = end.X, end.Y

	if s.localMovePending {
		s.localMovePending = false
		g.m.logChannelErr(g.m.channel.EndWindowMove(rail.WindowID(s.ID())), "end window move failed")
	}
	s.resizeEdges = EdgeNone

	if !cancelled && !s.destroying {
		g.seat.Pointer().SetFocus(s.ID(), 0, 0)
	}
	g.m.endGrab()
}

// StartResizeGrab begins an interactive resize from the given edges.
// Invalid edge combinations are refused.
func (m *Manager) StartResizeGrab(id compositor.SurfaceID, seat compositor.Seat, edges ResizeEdge) {
	s := m.surfaces[id]
	if s == nil || !s.mapped || s.fullscreen || s.maximized || s.snap.Snapped {
		return
	}
	if !validResizeEdges[edges] {
		m.log.Debug().Uint32("edges", uint32(edges)).Msg("Invalid resize edges")
		return
	}
	pos := seat.Pointer().Position()

	min := s.ds.MinSize()
	max := s.ds.MaxSize()
	m.logChannelErr(m.channel.SendWindowMinMaxInfo(rail.WindowID(id), rail.MinMaxInfo{
		MinWidth:  min.W,
		MinHeight: min.H,
		MaxWidth:  max.W,
		MaxHeight: max.H,
	}), "min-max info notify failed")

	s.resizeEdges = edges
	s.resizing = true
	s.ds.SetResizing(true)

	m.setGrab(&resizeGrab{
		m:         m,
		s:         s,
		edges:     edges,
		startPtr:  pos,
		startView: s.view.Position(),
		startW:    s.lastW,
		startH:    s.lastH,
	})
}

type resizeGrab struct {
	m     *Manager
	s     *Surface
	edges ResizeEdge

	startPtr  compositor.Point
	startView compositor.Point
	startW    int
	startH    int
}

func (g *resizeGrab) surface() *Surface { return g.s }

func (g *resizeGrab) Focus(x, y float64) {}

func (g *resizeGrab) Motion(x, y float64) {
	dx := int(x - g.startPtr.X)
	dy := int(y - g.startPtr.Y)

	w, h := g.startW, g.startH
	if g.edges&EdgeRight != 0 {
		w += dx
	}
	if g.edges&EdgeLeft != 0 {
		w -= dx
	}
	if g.edges&EdgeBottom != 0 {
		h += dy
	}
	if g.edges&EdgeTop != 0 {
		h -= dy
	}
	w, h = clampSize(g.s, w, h)

	// Left/top edges move the view so the opposite edge stays put.
	px, py := g.startView.X, g.startView.Y
	if g.edges&EdgeLeft != 0 {
		px += float64(g.startW - w)
	}
	if g.edges&EdgeTop != 0 {
		py += float64(g.startH - h)
	}
	g.s.view.SetPosition(px, py)
	g.s.ds.SetSize(w, h)
}

func (g *resizeGrab) Button(button uint32, pressed bool) {
	if pressed || button != BtnLeft {
		return
	}
	g.stop()
}

func (g *resizeGrab) Axis(value float64) {}
func (g *resizeGrab) Frame()             {}
func (g *resizeGrab) Cancel()            { g.stop() }

func (g *resizeGrab) stop() {
	s := g.s
	s.resizing = false
	s.resizeEdges = EdgeNone
	if !s.destroying {
		s.ds.SetResizing(false)
	}
	g.m.endGrab()
}

// StartRotateGrab begins an interactive rotation around the surface
// center. Releasing the button inside the reset radius snaps the window
// back upright.
func (m *Manager) StartRotateGrab(id compositor.SurfaceID, seat compositor.Seat) {
	s := m.surfaces[id]
	if s == nil || !s.mapped || s.fullscreen || s.maximized {
		return
	}
	pos := seat.Pointer().Position()
	geom := s.ds.Geometry()
	vpos := s.view.Position()
	center := compositor.Point{
		X: vpos.X + float64(geom.X) + float64(geom.W)/2,
		Y: vpos.Y + float64(geom.Y) + float64(geom.H)/2,
	}

	m.setGrab(&rotateGrab{
		m:        m,
		s:        s,
		center:   center,
		startPtr: pos,
		base:     s.rotation,
	})
}

type rotateGrab struct {
	m *Manager
	s *Surface

	center   compositor.Point
	startPtr compositor.Point
	base     compositor.Matrix
	delta    compositor.Matrix
	active   bool
}

func (g *rotateGrab) surface() *Surface { return g.s }

func (g *rotateGrab) Focus(x, y float64) {}

func (g *rotateGrab) Motion(x, y float64) {
	dx := x - g.center.X
	dy := y - g.center.Y
	if math.Hypot(dx, dy) <= rotateResetRadius {
		// Inside the dead zone: show the window upright.
		g.active = false
		g.s.view.ClearTransform()
		return
	}
	g.active = true

	startAngle := math.Atan2(g.startPtr.Y-g.center.Y, g.startPtr.X-g.center.X)
	angle := math.Atan2(dy, dx) - startAngle
	sin, cos := math.Sin(angle), math.Cos(angle)
	g.delta = compositor.Matrix{cos, -sin, 0, sin, cos, 0, 0, 0, 1}

	g.s.view.SetTransform(g.base.Mul(g.delta))
}

func (g *rotateGrab) Button(button uint32, pressed bool) {
	if pressed || button != BtnRight {
		return
	}
	g.stop()
}

func (g *rotateGrab) Axis(value float64) {}
func (g *rotateGrab) Frame()             {}
func (g *rotateGrab) Cancel()            { g.stop() }

func (g *rotateGrab) stop() {
	s := g.s
	if !g.active {
		s.rotation = compositor.Identity()
		s.rotated = false
		if !s.destroying {
			s.view.ClearTransform()
		}
	} else {
		s.rotation = g.base.Mul(g.delta)
		s.rotated = !s.rotation.IsIdentity()
		if !s.destroying {
			s.view.SetTransform(s.rotation)
		}
	}
	g.m.endGrab()
}

// startBusyGrab raises the busy cursor over an unresponsive surface.
// Clicks still activate; dragging still moves or rotates the window.
func (m *Manager) startBusyGrab(s *Surface) {
	m.setGrab(&busyGrab{m: m, s: s})
}

type busyGrab struct {
	m *Manager
	s *Surface
}

func (g *busyGrab) surface() *Surface { return g.s }

func (g *busyGrab) Focus(x, y float64) {}
func (g *busyGrab) Motion(x, y float64) {}

func (g *busyGrab) Button(button uint32, pressed bool) {
	if !pressed {
		return
	}
	seats := g.m.comp.Seats()
	if len(seats) == 0 {
		return
	}
	seat := seats[0]
	s := g.s

	switch button {
	case BtnLeft:
		g.m.Activate(s.ID())
		g.m.endGrab()
		g.m.StartMoveGrab(s.ID(), seat)
	case BtnRight:
		g.m.Activate(s.ID())
		g.m.endGrab()
		g.m.StartRotateGrab(s.ID(), seat)
	}
}

func (g *busyGrab) Axis(value float64) {}
func (g *busyGrab) Frame()             {}
func (g *busyGrab) Cancel()            {}

// StartTouchMoveGrab begins a touch-driven move.
func (m *Manager) StartTouchMoveGrab(id compositor.SurfaceID, startX, startY float64) {
	s := m.surfaces[id]
	if s == nil || !s.mapped || s.fullscreen || s.maximized {
		return
	}
	if s.snap.Snapped {
		p := compositor.Point{X: startX, Y: startY}
		m.unsnap(s, &p)
	}
	if m.touchGrab != nil {
		m.touchGrab.Cancel()
	}
	m.touchGrab = &touchMoveGrab{
		m:         m,
		s:         s,
		startPtr:  compositor.Point{X: startX, Y: startY},
		startView: s.view.Position(),
	}
	s.grabbed = true
}

// TouchMotion routes a touch motion into the touch grab.
func (m *Manager) TouchMotion(x, y float64) bool {
	if m.touchGrab == nil {
		return false
	}
	m.touchGrab.Motion(x, y)
	return true
}

// TouchUp ends the touch grab.
func (m *Manager) TouchUp() {
	if m.touchGrab == nil {
		return
	}
	m.touchGrab.Cancel()
	m.touchGrab = nil
}

type touchMoveGrab struct {
	m *Manager
	s *Surface

	startPtr  compositor.Point
	startView compositor.Point
	lastPtr   compositor.Point
}

func (g *touchMoveGrab) surface() *Surface { return g.s }

func (g *touchMoveGrab) Focus(x, y float64) {}

func (g *touchMoveGrab) Motion(x, y float64) {
	g.lastPtr = compositor.Point{X: x, Y: y}
	g.s.view.SetPosition(g.startView.X+(x-g.startPtr.X), g.startView.Y+(y-g.startPtr.Y))
}

func (g *touchMoveGrab) Button(button uint32, pressed bool) {}
func (g *touchMoveGrab) Axis(value float64)                 {}
func (g *touchMoveGrab) Frame()                             {}

func (g *touchMoveGrab) Cancel() {
	s := g.s
	s.grabbed = false
	end := g.lastPtr
	if end == (compositor.Point{}) {
		end = g.startPtr
	}
	s.snap.LastGrabX, s.snap.LastGrabY = end.X, end.Y
	g.m.touchGrab = nil
}
