package shell

import (
	"errors"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/IcebergThings/railshell/internal/appcatalog"
	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/config"
	"github.com/IcebergThings/railshell/internal/desktop"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/logger"
	"github.com/IcebergThings/railshell/internal/rail"
)

// Title-bar grab margin used when validating an xwayland position hint
// against output work areas.
const (
	titleBarMarginW = 30
	titleBarMarginH = 10
)

// Manager is the window presentation manager. It runs entirely on the
// compositor thread: surface lifecycle events come in from the
// compositor, remote commands are marshalled onto the same thread, and
// all registry mutation happens here.
type Manager struct {
	comp    compositor.Compositor
	channel rail.Channel
	catalog *appcatalog.Service
	xb      compositor.XBridge
	store   *icon.Store
	opts    *config.Options
	log     *zerolog.Logger

	surfaces map[compositor.SurfaceID]*Surface
	layers   map[Layer]*layerList
	outputs  map[string]*ShellOutput
	focus    map[string]*FocusState

	grab      Grabber
	touchGrab Grabber

	// focusProxyID marks the zero-area surface the helper client
	// reserves to represent remote-side focus.
	focusProxyID compositor.SurfaceID

	respawn *respawner
	rng     *rand.Rand
}

// NewManager wires the presentation manager. xb may be nil when no X
// bridge is available.
func NewManager(comp compositor.Compositor, channel rail.Channel, catalog *appcatalog.Service,
	xb compositor.XBridge, store *icon.Store, opts *config.Options) *Manager {

	m := &Manager{
		comp:     comp,
		channel:  channel,
		catalog:  catalog,
		xb:       xb,
		store:    store,
		opts:     opts,
		log:      logger.WithComponent("shell"),
		surfaces: make(map[compositor.SurfaceID]*Surface),
		layers: map[Layer]*layerList{
			LayerCursor:     {},
			LayerFullscreen: {},
			LayerNormal:     {},
			LayerMinimized:  {},
		},
		outputs: make(map[string]*ShellOutput),
		focus:   make(map[string]*FocusState),
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}

	for _, o := range comp.Outputs() {
		m.OutputAdded(o)
	}
	if opts.FocusProxyCommand != "" {
		m.respawn = newRespawner(opts.FocusProxyCommand, comp)
		m.respawn.launch()
	}
	return m
}

func (m *Manager) logChannelErr(err error, msg string) {
	if err != nil && !errors.Is(err, rail.ErrNotConnected) {
		m.log.Debug().Err(err).Msg(msg)
	}
}

// Surface returns the managed record for an id, or nil.
func (m *Manager) Surface(id compositor.SurfaceID) *Surface {
	return m.surfaces[id]
}

// SurfaceAdded allocates the shell record for a new desktop surface.
// The surface stays unmapped until its first non-zero commit.
func (m *Manager) SurfaceAdded(ds compositor.DesktopSurface) *Surface {
	s := &Surface{
		ds:       ds,
		rotation: compositor.Identity(),
		layer:    LayerNormal,
	}
	s.view = m.comp.CreateView(ds)
	if out := m.pickOutput(); out != nil {
		s.view.SetOutput(out)
	}
	s.cancelMeta = ds.OnMetadataChange(func() {
		s.title = ""
	})
	s.ds.SetActivated(s.focusCount > 0)

	m.surfaces[ds.ID()] = s
	m.layers[LayerNormal].pushTop(s)

	if m.respawn != nil && m.respawn.needsRespawn() {
		m.comp.ScheduleIdle(m.respawn.launch)
	}

	m.log.Debug().Uint64("surface", uint64(ds.ID())).Msg("Surface added")
	return s
}

// SurfaceRemoved tears the record down: any active grab is severed,
// parent/child links are unlinked through the registry, and focus moves
// on.
func (m *Manager) SurfaceRemoved(id compositor.SurfaceID) {
	s := m.surfaces[id]
	if s == nil {
		return
	}
	s.destroying = true

	if g, ok := m.grab.(surfaceGrab); ok && g.surface() == s {
		m.grab.Cancel()
		m.grab = nil
	}
	if g, ok := m.touchGrab.(surfaceGrab); ok && g.surface() == s {
		m.touchGrab.Cancel()
		m.touchGrab = nil
	}

	if parent := m.surfaces[s.parent]; parent != nil {
		parent.removeChild(id)
	}
	for _, cid := range s.children {
		if child := m.surfaces[cid]; child != nil {
			child.parent = 0
		}
	}

	if s.backdrop != nil {
		m.comp.DestroyView(s.backdrop)
		s.backdrop = nil
	}

	m.layers[s.layer].remove(s)
	if s.cancelMeta != nil {
		s.cancelMeta()
	}
	delete(m.surfaces, id)

	m.focusSurfaceDestroyed(id)
	m.comp.DestroyView(s.view)

	m.log.Debug().Uint64("surface", uint64(id)).Msg("Surface removed")
}

// SurfaceCommitted handles a buffer commit. The first non-zero commit
// maps the surface and runs initial placement; every commit may bind
// the window icon.
func (m *Manager) SurfaceCommitted(id compositor.SurfaceID, w, h int) {
	s := m.surfaces[id]
	if s == nil {
		return
	}

	if !s.mapped {
		if w <= 0 || h <= 0 {
			return
		}
		s.mapped = true
		s.lastW, s.lastH = w, h
		s.view.SetMapped(true)

		// Link into the parent now that both sides are mapped.
		if pid := s.ds.Parent(); pid != 0 {
			if parent := m.surfaces[pid]; parent != nil && parent.mapped {
				s.parent = pid
				parent.addChild(id)
			}
		}

		m.placeFirstMap(s)
		m.recomputeLayer(s)
	} else {
		s.lastW, s.lastH = w, h
	}

	if !s.iconSet {
		m.bindIcon(s, nil)
	}
}

// placeFirstMap positions a freshly mapped surface. First matching rule
// wins.
func (m *Manager) placeFirstMap(s *Surface) {
	geom := s.ds.Geometry()

	// 1. Fullscreen: center on the chosen output, black backdrop below.
	if s.fullscreen {
		so := m.primaryShellOutput()
		if so != nil {
			m.centerOnRect(s, so.output.Bounds())
			m.ensureBackdrop(s, so.output)
		}
		return
	}

	// 2. Maximized: work-area origin minus window-geometry origin.
	if s.maximized {
		so := m.primaryShellOutput()
		if so != nil {
			m.placeMaximized(s, so)
		}
		return
	}

	// 3. Xwayland position hint, if the hinted point (with the
	// title-bar grab margin) lands inside some output's work area.
	if s.xwaylandHintSet {
		for _, so := range m.outputs {
			wa := so.workArea
			hit := compositor.Rect{
				X: wa.X - titleBarMarginW,
				Y: wa.Y - titleBarMarginH,
				W: wa.W + 2*titleBarMarginW,
				H: wa.H + 2*titleBarMarginH,
			}
			if hit.Contains(s.xwaylandHintX, s.xwaylandHintY) {
				s.view.SetPosition(
					float64(s.xwaylandHintX-geom.X),
					float64(s.xwaylandHintY-geom.Y),
				)
				return
			}
		}
	}

	// 4. Transient: center on the parent's window geometry.
	if parent := m.surfaces[s.parent]; parent != nil {
		pgeom := parent.ds.Geometry()
		ppos := parent.view.Position()
		cx := ppos.X + float64(pgeom.X) + float64(pgeom.W)/2
		cy := ppos.Y + float64(pgeom.Y) + float64(pgeom.H)/2
		s.view.SetPosition(cx-float64(geom.X)-float64(geom.W)/2, cy-float64(geom.Y)-float64(geom.H)/2)
		return
	}

	// 5. Default: random offset inside the primary work area, clamped
	// so the full surface fits.
	so := m.primaryShellOutput()
	if so == nil {
		return
	}
	wa := so.workArea
	maxX := wa.W - geom.W
	maxY := wa.H - geom.H
	var dx, dy int
	if maxX > 0 {
		dx = m.rng.Intn(maxX)
	}
	if maxY > 0 {
		dy = m.rng.Intn(maxY)
	}
	s.view.SetPosition(float64(wa.X+dx-geom.X), float64(wa.Y+dy-geom.Y))
	s.view.SetOutput(so.output)
}

// centerOnRect centers the surface geometry on the rectangle.
func (m *Manager) centerOnRect(s *Surface, r compositor.Rect) {
	geom := s.ds.Geometry()
	x := r.X + (r.W-geom.W)/2 - geom.X
	y := r.Y + (r.H-geom.H)/2 - geom.Y
	s.view.SetPosition(float64(x), float64(y))
}

// placeMaximized pins the surface to the output's work-area origin.
func (m *Manager) placeMaximized(s *Surface, so *ShellOutput) {
	geom := s.ds.Geometry()
	wa := so.workArea
	s.view.SetPosition(float64(wa.X-geom.X), float64(wa.Y-geom.Y))
	s.ds.SetSize(wa.W, wa.H)
	s.view.SetOutput(so.output)
}

// ensureBackdrop creates the black view kept immediately below a
// fullscreen surface.
func (m *Manager) ensureBackdrop(s *Surface, o compositor.Output) {
	if s.backdrop != nil {
		return
	}
	s.backdrop = m.comp.CreateSolidView(o.Bounds())
	s.backdrop.SetMapped(true)
}

// captureSaved records position, show state and rotation before a
// reversible transition. Rotation is removed for the duration.
func (m *Manager) captureSaved(s *Surface) {
	if !s.savedPosValid {
		s.savedPos = s.view.Position()
		s.savedPosValid = true
	}
	if !s.savedShowValid {
		s.savedShow = s.ShowState()
		s.savedShowValid = true
	}
	if s.rotated && !s.savedRotationValid {
		s.savedRotation = s.rotation
		s.savedRotationValid = true
		s.rotation = compositor.Identity()
		s.rotated = false
		s.view.ClearTransform()
	}
}

// restoreSaved undoes captureSaved in reverse order. A surface that was
// maximized when the transition began only unwinds one step: it
// re-enters the maximized state, and the position and rotation saves
// stay armed for the eventual unmaximize.
func (m *Manager) restoreSaved(s *Surface) {
	if s.savedShowValid && s.savedShow == ShowMaximized && !s.maximized {
		s.savedShowValid = false
		s.maximized = true
		s.ds.SetMaximized(true)
		if so := m.primaryShellOutput(); so != nil {
			m.placeMaximized(s, so)
		}
		return
	}
	if s.savedRotationValid {
		s.rotation = s.savedRotation
		s.rotated = !s.rotation.IsIdentity()
		s.view.SetTransform(s.rotation)
		s.savedRotationValid = false
	}
	if s.savedShowValid {
		s.savedShowValid = false
	}
	if s.savedPosValid {
		s.view.SetPosition(s.savedPos.X, s.savedPos.Y)
		s.savedPosValid = false
	}
	s.ds.SetSize(s.lastSavedSize())
}

// lastSavedSize returns the size to restore after leaving
// fullscreen/maximized.
func (s *Surface) lastSavedSize() (int, int) {
	if s.snap.SavedW > 0 && s.snap.SavedH > 0 {
		return s.snap.SavedW, s.snap.SavedH
	}
	return s.lastW, s.lastH
}

// SetFullscreen drives the fullscreen transition for a surface.
func (m *Manager) SetFullscreen(id compositor.SurfaceID, on bool) {
	s := m.surfaces[id]
	if s == nil || s.fullscreen == on {
		return
	}

	if on {
		m.captureSaved(s)
		// The state being left wins over an older save, so leaving
		// fullscreen lands back in it.
		s.savedShow = s.ShowState()
		s.savedShowValid = true
		s.snap.SavedW, s.snap.SavedH = s.lastW, s.lastH
		s.snap.Snapped = false
		s.maximized = false
		s.fullscreen = true
		s.ds.SetFullscreen(true)

		so := m.primaryShellOutput()
		if so != nil {
			m.centerOnRect(s, so.output.Bounds())
			s.ds.SetSize(so.output.Bounds().W, so.output.Bounds().H)
			m.ensureBackdrop(s, so.output)
		}
	} else {
		s.fullscreen = false
		s.ds.SetFullscreen(false)
		if s.backdrop != nil {
			m.comp.DestroyView(s.backdrop)
			s.backdrop = nil
		}
		m.restoreSaved(s)
		s.snap.SavedW, s.snap.SavedH = 0, 0
	}
	m.recomputeLayer(s)
}

// SetMaximized drives the maximize transition. Snapping and maximize
// are mutually exclusive; an active snap is dissolved first.
func (m *Manager) SetMaximized(id compositor.SurfaceID, on bool) {
	s := m.surfaces[id]
	if s == nil || s.maximized == on {
		return
	}

	if on {
		m.captureSaved(s)
		if !s.snap.Snapped {
			s.snap.SavedW, s.snap.SavedH = s.lastW, s.lastH
		}
		s.snap.Snapped = false
		s.maximized = true
		s.ds.SetMaximized(true)

		if so := m.primaryShellOutput(); so != nil {
			m.placeMaximized(s, so)
		}
	} else {
		s.maximized = false
		s.ds.SetMaximized(false)
		m.restoreSaved(s)
		s.snap.SavedW, s.snap.SavedH = 0, 0
	}
	m.recomputeLayer(s)
}

// maximizeOn maximizes onto a specific output, used by deferred
// maximize retargeting.
func (m *Manager) maximizeOn(s *Surface, so *ShellOutput) {
	if s.maximized {
		return
	}
	m.captureSaved(s)
	if !s.snap.Snapped {
		s.snap.SavedW, s.snap.SavedH = s.lastW, s.lastH
	}
	s.snap.Snapped = false
	s.maximized = true
	s.ds.SetMaximized(true)
	m.placeMaximized(s, so)
	m.recomputeLayer(s)
}

// Minimize sinks the surface into the minimized layer.
func (m *Manager) Minimize(id compositor.SurfaceID) {
	s := m.surfaces[id]
	if s == nil || s.minimized {
		return
	}
	if !s.savedShowValid {
		s.savedShow = s.ShowState()
		s.savedShowValid = true
	}
	s.minimized = true
	s.view.SetMapped(false)
	m.recomputeLayer(s)
}

// Restore returns a minimized, maximized or fullscreen surface to its
// previous presentation.
func (m *Manager) Restore(id compositor.SurfaceID) {
	s := m.surfaces[id]
	if s == nil {
		return
	}

	switch {
	case s.minimized:
		s.minimized = false
		s.view.SetMapped(true)
		prev := s.savedShow
		s.savedShowValid = false
		m.recomputeLayer(s)
		switch prev {
		case ShowMaximized:
			if !s.maximized {
				m.SetMaximized(id, true)
			}
		case ShowFullscreen:
			if !s.fullscreen {
				m.SetFullscreen(id, true)
			}
		}
	case s.fullscreen:
		m.SetFullscreen(id, false)
	case s.maximized:
		m.SetMaximized(id, false)
	case s.snap.Snapped:
		m.unsnap(s, nil)
	}
}

// unsnap dissolves a snap, restoring the pre-snap size. When a pointer
// position is supplied (move-grab unsnap) the window re-centers under
// it so the grab stays on the title bar.
func (m *Manager) unsnap(s *Surface, pointer *compositor.Point) {
	if !s.snap.Snapped {
		return
	}
	s.snap.Snapped = false

	if s.snap.SavedW > 0 && s.snap.SavedH > 0 {
		s.ds.SetSize(s.snap.SavedW, s.snap.SavedH)
	}
	if pointer != nil {
		geom := s.ds.Geometry()
		w := s.snap.SavedW
		if w <= 0 {
			w = geom.W
		}
		s.view.SetPosition(pointer.X-float64(w)/2-float64(geom.X), pointer.Y-float64(titleBarMarginH)/2-float64(geom.Y))
	}
	s.snap.SavedW, s.snap.SavedH = 0, 0
}

// clampSize bounds a requested size to the surface's advertised limits.
func clampSize(s *Surface, w, h int) (int, int) {
	min := s.ds.MinSize()
	max := s.ds.MaxSize()
	if min.W > 0 && w < min.W {
		w = min.W
	}
	if min.H > 0 && h < min.H {
		h = min.H
	}
	if max.W > 0 && w > max.W {
		w = max.W
	}
	if max.H > 0 && h > max.H {
		h = max.H
	}
	return w, h
}

// bindIcon resolves and publishes the window's taskbar icon. supplied
// carries caller-provided 32bpp pixel data (the X bridge re-enters here
// with it); the remaining fallbacks run in order: catalog by app id, X
// class name as app-id key, configured default.
func (m *Manager) bindIcon(s *Surface, supplied *icon.Image) {
	if s.iconSet || s.destroying {
		return
	}
	id := s.ID()

	img := supplied
	isX := m.xb != nil && m.xb.IsXSurface(id)

	if img == nil && isX && !s.iconTriggerSent {
		s.iconTriggerSent = true
		m.xb.TriggerSetWindowIcon(id)
		if s.iconSet {
			return
		}
	}

	if img == nil {
		if appID := s.ds.AppID(); appID != "" {
			img = m.catalog.LoadIcon(desktop.DeriveKey(appID))
		}
	}
	if img == nil && isX {
		if class := m.xb.ClassName(id); class != "" {
			img = m.catalog.LoadIcon(desktop.DeriveKey(class))
		}
	}
	if img == nil {
		img = m.store.RawDefaultIcon()
		s.iconDefault = img != nil
	}
	if img == nil {
		return
	}

	out := img
	if !s.iconDefault {
		out = m.store.ForTaskbar(img)
	} else {
		out = m.store.ForTaskbar(m.store.RawDefaultIcon())
	}

	if err := m.channel.SetWindowIcon(rail.WindowID(id), out); err != nil {
		m.logChannelErr(err, "window icon notify failed")
		return
	}
	s.iconSet = true
}

// SetWindowIconBits is the X bridge's re-entry point carrying raw icon
// pixels. Only 32bpp data is accepted.
func (m *Manager) SetWindowIconBits(id compositor.SurfaceID, w, h, stride, bpp int, pix []byte) {
	s := m.surfaces[id]
	if s == nil || bpp != 32 {
		return
	}
	m.bindIcon(s, icon.FromBGRA(w, h, stride, pix))
}

// PingTimeout marks a client unresponsive and raises the busy-cursor
// grab over its surface.
func (m *Manager) PingTimeout(id compositor.SurfaceID) {
	s := m.surfaces[id]
	if s == nil || s.unresponsive {
		return
	}
	s.unresponsive = true
	m.startBusyGrab(s)
}

// Pong clears the unresponsive state and ends the busy-cursor grab.
func (m *Manager) Pong(id compositor.SurfaceID) {
	s := m.surfaces[id]
	if s == nil || !s.unresponsive {
		return
	}
	s.unresponsive = false
	if g, ok := m.grab.(*busyGrab); ok && g.s == s {
		m.endGrab()
	}
}

// Shutdown severs grabs and releases per-surface listeners.
func (m *Manager) Shutdown() {
	if m.grab != nil {
		m.grab.Cancel()
		m.grab = nil
	}
	if m.respawn != nil {
		m.respawn.stop()
	}
	for id := range m.surfaces {
		m.SurfaceRemoved(id)
	}
}
