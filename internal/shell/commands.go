package shell

import (
	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/rail"
)

// HandleWindowCommand dispatches one inbound window operation from the
// remote side. The channel marshals onto the compositor thread before
// calling in, so no locking happens here.
func (m *Manager) HandleWindowCommand(cmd rail.WindowCommand) {
	s := m.surfaces[compositor.SurfaceID(cmd.Window)]
	if s == nil || s.destroying {
		m.log.Debug().Uint64("window", uint64(cmd.Window)).
			Str("kind", string(cmd.Kind)).Msg("Command for unknown window")
		return
	}

	switch cmd.Kind {
	case rail.CommandRestore:
		m.remoteRestore(s)
	case rail.CommandMinimize:
		m.Minimize(s.ID())
	case rail.CommandMaximize:
		m.remoteMaximize(s)
	case rail.CommandSnap:
		m.remoteSnap(s, cmd)
	case rail.CommandMove:
		m.remoteMove(s, cmd)
	case rail.CommandActivate:
		m.Activate(s.ID())
	case rail.CommandClose:
		m.remoteClose(s)
	default:
		m.log.Debug().Str("kind", string(cmd.Kind)).Msg("Unknown window command")
	}
}

// remoteRestore undoes the current minimize/maximize/fullscreen/snap.
// X windows get their maximize state cleared through the bridge so the
// X server's view stays consistent.
func (m *Manager) remoteRestore(s *Surface) {
	if m.xb != nil && m.xb.IsXSurface(s.ID()) && s.maximized && !s.minimized {
		m.xb.SetMaximized(s.ID(), false)
		return
	}
	m.Restore(s.ID())
}

// remoteMaximize maximizes the window. A maximize landing while a local
// move grab is in flight is deferred: the follow-up snap message carries
// the drop point, and the maximize retargets its output there.
func (m *Manager) remoteMaximize(s *Surface) {
	if s.grabbed {
		s.snap.MaximizePending = true
		return
	}
	if m.xb != nil && m.xb.IsXSurface(s.ID()) {
		m.xb.SetMaximized(s.ID(), true)
		return
	}
	m.SetMaximized(s.ID(), true)
}

// remoteSnap applies a remote-computed partial-maximize rectangle,
// clamped to the window's advertised size limits, or executes a
// deferred maximize. Snapping a maximized window is a protocol fault
// and is rejected.
func (m *Manager) remoteSnap(s *Surface, cmd rail.WindowCommand) {
	if s.snap.MaximizePending {
		s.snap.MaximizePending = false
		so := m.outputAt(s.snap.LastGrabX, s.snap.LastGrabY)
		if so == nil {
			so = m.primaryShellOutput()
		}
		if so != nil {
			m.maximizeOn(s, so)
		}
		return
	}

	if s.maximized || s.fullscreen {
		m.log.Debug().Uint64("window", uint64(s.ID())).
			Msg("Snap rejected on maximized or fullscreen window")
		return
	}
	if cmd.W <= 0 || cmd.H <= 0 {
		m.log.Debug().Uint64("window", uint64(s.ID())).Msg("Snap with degenerate size")
		return
	}

	if !s.snap.Snapped {
		s.snap.SavedW, s.snap.SavedH = s.lastW, s.lastH
	}
	w, h := clampSize(s, cmd.W, cmd.H)
	s.snap.Snapped = true
	s.snap.X, s.snap.Y, s.snap.W, s.snap.H = cmd.X, cmd.Y, w, h

	geom := s.ds.Geometry()
	s.view.SetPosition(float64(cmd.X-geom.X), float64(cmd.Y-geom.Y))
	s.ds.SetSize(w, h)
}

// remoteMove repositions a window after a remote-side drag. A size
// change smuggled into a move is rejected; the position is still
// honored. X windows additionally get the new position synced to the X
// server.
func (m *Manager) remoteMove(s *Surface, cmd rail.WindowCommand) {
	if cmd.W > 0 && cmd.H > 0 && (cmd.W != s.lastW || cmd.H != s.lastH) {
		m.log.Debug().Uint64("window", uint64(s.ID())).
			Int("w", cmd.W).Int("h", cmd.H).
			Msg("Size change in move command rejected")
	}

	geom := s.ds.Geometry()
	s.view.SetPosition(float64(cmd.X-geom.X), float64(cmd.Y-geom.Y))
	s.localMovePending = false

	if m.xb != nil && m.xb.IsXSurface(s.ID()) {
		m.xb.SendPosition(s.ID(), cmd.X, cmd.Y)
	}
}

// remoteClose asks the client to close the window. X windows are closed
// through the bridge so WM_DELETE_WINDOW semantics apply.
func (m *Manager) remoteClose(s *Surface) {
	if m.xb != nil && m.xb.IsXSurface(s.ID()) {
		m.xb.CloseWindow(s.ID())
		return
	}
	s.ds.Close()
}

// Activate raises and focuses a window. Activation descends to the
// deepest mapped transient; among siblings the last inserted wins.
func (m *Manager) Activate(id compositor.SurfaceID) {
	s := m.surfaces[id]
	if s == nil || !s.mapped {
		return
	}

	target := m.activationTarget(s)
	if target.minimized {
		m.Restore(target.ID())
	}
	m.promote(target)
	for _, seat := range m.comp.Seats() {
		seat.Keyboard().SetFocus(target.ID())
	}
}

// activationTarget walks down the transient tree to the surface that
// should actually receive focus.
func (m *Manager) activationTarget(s *Surface) *Surface {
	for {
		var next *Surface
		for i := len(s.children) - 1; i >= 0; i-- {
			if child := m.surfaces[s.children[i]]; child != nil && child.mapped && !child.destroying {
				next = child
				break
			}
		}
		if next == nil {
			return s
		}
		s = next
	}
}
