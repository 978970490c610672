package shell

import (
	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/rail"
)

// FocusState tracks one seat's keyboard focus inside the shell. It
// holds a destroy listener on the seat so a removed seat releases its
// activation reference.
type FocusState struct {
	seat          compositor.Seat
	focused       compositor.SurfaceID
	cancelDestroy func()
}

// SetFocusProxy registers the helper client's zero-area surface as the
// seat focus proxy. While it holds focus, keyboard input is understood
// to belong to a remote-side window.
func (m *Manager) SetFocusProxy(id compositor.SurfaceID) {
	m.focusProxyID = id
	m.logChannelErr(m.channel.NotifyWindowProxySurface(rail.WindowID(id)), "proxy surface notify failed")
}

// IsFocusProxy reports whether the surface is the focus proxy.
func (m *Manager) IsFocusProxy(id compositor.SurfaceID) bool {
	return m.focusProxyID != 0 && id == m.focusProxyID
}

func (m *Manager) focusStateFor(seat compositor.Seat) *FocusState {
	fs := m.focus[seat.Name()]
	if fs == nil {
		fs = &FocusState{seat: seat}
		fs.cancelDestroy = seat.OnDestroy(func() { m.seatDestroyed(seat.Name()) })
		m.focus[seat.Name()] = fs
	}
	return fs
}

// seatDestroyed drops a destroyed seat's focus state, releasing the
// activation reference its focus held.
func (m *Manager) seatDestroyed(name string) {
	fs := m.focus[name]
	if fs == nil {
		return
	}
	if old := m.surfaces[fs.focused]; old != nil {
		old.focusCount--
		if old.focusCount == 0 && !old.destroying {
			old.ds.SetActivated(false)
		}
	}
	delete(m.focus, name)
}

// KeyboardFocusChanged is called by the compositor whenever a seat's
// keyboard focus moves. Activation is refcounted per surface: a window
// focused on any seat stays activated.
func (m *Manager) KeyboardFocusChanged(seat compositor.Seat, to compositor.SurfaceID) {
	fs := m.focusStateFor(seat)
	if fs.focused == to {
		return
	}

	if old := m.surfaces[fs.focused]; old != nil {
		old.focusCount--
		if old.focusCount == 0 && !old.destroying {
			old.ds.SetActivated(false)
		}
	}

	fs.focused = to

	// The busy cursor holds only while the unresponsive client keeps
	// focus; moving to another client's window releases it, even without
	// a pong.
	if g, ok := m.grab.(*busyGrab); ok {
		if to == 0 || m.comp.ClientPID(to) != m.comp.ClientPID(g.s.ID()) {
			m.endGrab()
		}
	}

	next := m.surfaces[to]
	if next == nil {
		return
	}
	next.focusCount++
	if next.focusCount == 1 {
		next.ds.SetActivated(true)
	}

	// Handing focus to the proxy means a remote window took over. Any
	// keys still held would otherwise repeat forever on the old surface,
	// so release them first.
	if m.IsFocusProxy(to) {
		kbd := seat.Keyboard()
		for _, key := range kbd.PressedKeys() {
			kbd.SynthesizeRelease(key)
		}
	}
}

// focusSurfaceDestroyed reroutes focus away from a surface that is going
// down: the topmost remaining mapped non-proxy window in the workspace
// layer inherits it, otherwise focus clears.
func (m *Manager) focusSurfaceDestroyed(id compositor.SurfaceID) {
	if m.focusProxyID == id {
		m.focusProxyID = 0
	}
	for name, fs := range m.focus {
		if fs.focused != id {
			continue
		}
		fs.focused = 0

		next := m.nextFocusCandidate(id)
		if next == nil {
			fs.seat.Keyboard().SetFocus(0)
			if fs.cancelDestroy != nil {
				fs.cancelDestroy()
			}
			delete(m.focus, name)
			continue
		}
		fs.seat.Keyboard().SetFocus(next.ID())
	}
}

// nextFocusCandidate picks the topmost mapped window in the workspace
// layer, skipping the proxy and the dying surface.
func (m *Manager) nextFocusCandidate(dying compositor.SurfaceID) *Surface {
	for _, s := range m.layers[LayerNormal].surfaces {
		if s.ID() == dying || s.destroying || !s.mapped || m.IsFocusProxy(s.ID()) {
			continue
		}
		return s
	}
	return nil
}
