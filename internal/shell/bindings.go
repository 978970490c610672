package shell

import (
	"github.com/IcebergThings/railshell/internal/compositor"
)

// Modifier is a bitmask of held modifier keys.
type Modifier uint32

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModSuper
	ModShift
)

// Keycodes the bindings care about (linux input event codes).
const (
	KeyBackspace uint32 = 14
	KeyF         uint32 = 33
	KeyK         uint32 = 37
	KeyM         uint32 = 50
	KeyF4        uint32 = 62
)

// Surface alpha step and bounds for the transparency binding.
const (
	alphaStep = 0.005
	alphaMin  = 0.005
	alphaMax  = 1.0
)

// HandleKeyBinding runs the shell's keyboard bindings against a pressed
// key. It reports whether the key was consumed.
func (m *Manager) HandleKeyBinding(seat compositor.Seat, key uint32, mods Modifier) bool {
	switch {
	case key == KeyBackspace && mods == ModCtrl|ModAlt:
		if !m.opts.AllowZap {
			return false
		}
		m.log.Info().Msg("Zap binding triggered, exiting")
		m.comp.Exit()
		return true

	case key == KeyF4 && mods == ModAlt:
		if !m.opts.AllowAltF4Close {
			return false
		}
		if s := m.focusedSurface(seat); s != nil {
			m.remoteClose(s)
			return true
		}
		return false

	case key == KeyM && mods == ModSuper|ModShift:
		if s := m.focusedSurface(seat); s != nil {
			m.SetMaximized(s.ID(), !s.maximized)
			return true
		}
		return false

	case key == KeyF && mods == ModSuper|ModShift:
		if s := m.focusedSurface(seat); s != nil {
			m.SetFullscreen(s.ID(), !s.fullscreen)
			return true
		}
		return false

	case key == KeyK && mods == ModSuper:
		s := m.focusedSurface(seat)
		if s == nil {
			return false
		}
		// Never kill the shell's own helper client.
		pid := m.comp.ClientPID(s.ID())
		if m.respawn != nil && m.respawn.ownsPID(pid) {
			return false
		}
		m.comp.KillClient(s.ID())
		return true
	}
	return false
}

// HandleButtonBinding runs the shell's pointer-button bindings for a
// press over the given surface. It reports whether the press was
// consumed.
func (m *Manager) HandleButtonBinding(seat compositor.Seat, id compositor.SurfaceID, button uint32, mods Modifier) bool {
	s := m.surfaces[id]
	if s == nil || !s.mapped {
		return false
	}

	switch {
	case button == BtnLeft && mods == ModSuper:
		m.Activate(id)
		m.StartMoveGrab(id, seat)
		return true

	case (button == BtnRight && mods == ModSuper) ||
		(button == BtnLeft && mods == ModSuper|ModShift):
		m.Activate(id)
		m.StartResizeGrab(id, seat, m.edgesFromPointer(s, seat))
		return true

	case mods == 0:
		// A plain click raises and focuses, then passes through to the
		// client.
		m.Activate(id)
		return false
	}
	return false
}

// HandleAxisBinding runs the scroll bindings: Super+Alt+scroll adjusts
// the focused view's opacity.
func (m *Manager) HandleAxisBinding(seat compositor.Seat, value float64, mods Modifier) bool {
	if mods != ModSuper|ModAlt {
		return false
	}
	s := m.focusedSurface(seat)
	if s == nil {
		return false
	}

	alpha := s.view.Alpha() - value*alphaStep
	if alpha < alphaMin {
		alpha = alphaMin
	}
	if alpha > alphaMax {
		alpha = alphaMax
	}
	s.view.SetAlpha(alpha)
	s.view.Damage()
	return true
}

// edgesFromPointer derives resize edges from which third of the window
// the pointer sits in; the dead center resizes from the bottom-right.
func (m *Manager) edgesFromPointer(s *Surface, seat compositor.Seat) ResizeEdge {
	pos := seat.Pointer().Position()
	geom := s.ds.Geometry()
	vpos := s.view.Position()

	relX := pos.X - vpos.X - float64(geom.X)
	relY := pos.Y - vpos.Y - float64(geom.Y)

	var edges ResizeEdge
	switch {
	case relX < float64(geom.W)/3:
		edges |= EdgeLeft
	case relX > 2*float64(geom.W)/3:
		edges |= EdgeRight
	}
	switch {
	case relY < float64(geom.H)/3:
		edges |= EdgeTop
	case relY > 2*float64(geom.H)/3:
		edges |= EdgeBottom
	}
	if edges == EdgeNone {
		edges = EdgeBottom | EdgeRight
	}
	return edges
}

// focusedSurface returns the shell record for the seat's keyboard focus,
// skipping the focus proxy.
func (m *Manager) focusedSurface(seat compositor.Seat) *Surface {
	id := seat.Keyboard().FocusedSurface()
	if id == 0 || m.IsFocusProxy(id) {
		return nil
	}
	return m.surfaces[id]
}
