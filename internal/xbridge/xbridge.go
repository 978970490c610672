// Package xbridge implements the X compatibility bridge on top of a
// direct X server connection. It maps shell surfaces to the X windows
// backing them and carries the handful of operations that must go
// through the X server: WM_CLASS lookup, EWMH maximize, polite close
// and window-icon retrieval.
package xbridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/logger"
)

// IconSink receives raw icon pixel data read from an X window. The
// shell's icon binding implements this.
type IconSink interface {
	SetWindowIconBits(id compositor.SurfaceID, w, h, stride, bpp int, pix []byte)
}

// Bridge implements compositor.XBridge over an xgb connection.
type Bridge struct {
	conn *xgb.Conn
	root xproto.Window
	log  *zerolog.Logger

	mu      sync.RWMutex
	windows map[compositor.SurfaceID]xproto.Window
	atoms   map[string]xproto.Atom

	sink IconSink
}

// New connects to the X server named by display ("" uses $DISPLAY).
func New(display string) (*Bridge, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &Bridge{
		conn:    conn,
		root:    screen.Root,
		log:     logger.WithComponent("xbridge"),
		windows: make(map[compositor.SurfaceID]xproto.Window),
		atoms:   make(map[string]xproto.Atom),
	}, nil
}

// SetIconSink registers the receiver for TriggerSetWindowIcon results.
func (b *Bridge) SetIconSink(sink IconSink) {
	b.sink = sink
}

// RegisterSurface records that a shell surface is backed by an X window.
func (b *Bridge) RegisterSurface(id compositor.SurfaceID, win uint32) {
	b.mu.Lock()
	b.windows[id] = xproto.Window(win)
	b.mu.Unlock()
}

// UnregisterSurface drops the mapping for a destroyed surface.
func (b *Bridge) UnregisterSurface(id compositor.SurfaceID) {
	b.mu.Lock()
	delete(b.windows, id)
	b.mu.Unlock()
}

// IsXSurface reports whether the surface is backed by an X window.
func (b *Bridge) IsXSurface(id compositor.SurfaceID) bool {
	b.mu.RLock()
	_, ok := b.windows[id]
	b.mu.RUnlock()
	return ok
}

func (b *Bridge) window(id compositor.SurfaceID) (xproto.Window, bool) {
	b.mu.RLock()
	win, ok := b.windows[id]
	b.mu.RUnlock()
	return win, ok
}

// ClassName returns the window's WM_CLASS class component.
// WM_CLASS is two null-terminated strings: instance, then class.
func (b *Bridge) ClassName(id compositor.SurfaceID) string {
	win, ok := b.window(id)
	if !ok {
		return ""
	}

	raw, err := b.getProperty(win, xproto.AtomWmClass)
	if err != nil {
		b.log.Debug().Uint64("surface", uint64(id)).Err(err).Msg("WM_CLASS read failed")
		return ""
	}
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return ""
}

// SetMaximized toggles the window's EWMH maximized state via a
// _NET_WM_STATE client message to the root window.
func (b *Bridge) SetMaximized(id compositor.SurfaceID, on bool) {
	win, ok := b.window(id)
	if !ok {
		return
	}

	stateAtom, err1 := b.atom("_NET_WM_STATE")
	vertAtom, err2 := b.atom("_NET_WM_STATE_MAXIMIZED_VERT")
	horzAtom, err3 := b.atom("_NET_WM_STATE_MAXIMIZED_HORZ")
	if err1 != nil || err2 != nil || err3 != nil {
		b.log.Debug().Uint64("surface", uint64(id)).Msg("EWMH atoms unavailable")
		return
	}

	// _NET_WM_STATE_REMOVE = 0, _NET_WM_STATE_ADD = 1
	action := uint32(0)
	if on {
		action = 1
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   stateAtom,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			action, uint32(vertAtom), uint32(horzAtom), 0, 0,
		}),
	}
	xproto.SendEvent(
		b.conn,
		false,
		b.root,
		xproto.EventMaskSubstructureNotify|xproto.EventMaskSubstructureRedirect,
		string(ev.Bytes()),
	)
}

// CloseWindow asks the window to close via WM_DELETE_WINDOW.
func (b *Bridge) CloseWindow(id compositor.SurfaceID) {
	win, ok := b.window(id)
	if !ok {
		return
	}

	protoAtom, err1 := b.atom("WM_PROTOCOLS")
	deleteAtom, err2 := b.atom("WM_DELETE_WINDOW")
	if err1 != nil || err2 != nil {
		// No polite path; sever the client connection instead.
		xproto.KillClient(b.conn, uint32(win))
		return
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   protoAtom,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(deleteAtom), uint32(xproto.TimeCurrentTime), 0, 0, 0,
		}),
	}
	xproto.SendEvent(b.conn, false, win, xproto.EventMaskNoEvent, string(ev.Bytes()))
}

// TriggerSetWindowIcon reads the window's _NET_WM_ICON property and
// hands the largest variant to the icon sink as 32bpp pixel data.
func (b *Bridge) TriggerSetWindowIcon(id compositor.SurfaceID) {
	win, ok := b.window(id)
	if !ok || b.sink == nil {
		return
	}

	iconAtom, err := b.atom("_NET_WM_ICON")
	if err != nil {
		return
	}
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		iconAtom,
		xproto.AtomCardinal,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil || reply.ValueLen == 0 {
		return
	}

	w, h, pix := largestIcon(reply.Value)
	if pix == nil {
		return
	}
	b.sink.SetWindowIconBits(id, w, h, w*4, 32, pix)
}

// largestIcon walks the _NET_WM_ICON cardinal array, which is a
// sequence of (width, height, ARGB pixels...) records, and returns the
// biggest one as BGRA bytes.
func largestIcon(value []byte) (int, int, []byte) {
	card := func(off int) uint32 {
		return uint32(value[off]) |
			uint32(value[off+1])<<8 |
			uint32(value[off+2])<<16 |
			uint32(value[off+3])<<24
	}

	bestW, bestH := 0, 0
	bestOff := -1
	for off := 0; off+8 <= len(value); {
		w := int(card(off))
		h := int(card(off + 4))
		if w <= 0 || h <= 0 || off+8+w*h*4 > len(value) {
			break
		}
		if w*h > bestW*bestH {
			bestW, bestH, bestOff = w, h, off+8
		}
		off += 8 + w*h*4
	}
	if bestOff < 0 {
		return 0, 0, nil
	}

	// Cardinals are little-endian ARGB words; reading them byte-wise
	// yields B, G, R, A which is exactly the 32bpp layout icon.FromBGRA
	// expects.
	pix := make([]byte, bestW*bestH*4)
	copy(pix, value[bestOff:bestOff+len(pix)])
	return bestW, bestH, pix
}

// SendPosition syncs a window's position to the X server after a move.
func (b *Bridge) SendPosition(id compositor.SurfaceID, x, y int) {
	win, ok := b.window(id)
	if !ok {
		return
	}
	xproto.ConfigureWindow(
		b.conn,
		win,
		xproto.ConfigWindowX|xproto.ConfigWindowY,
		[]uint32{uint32(int32(x)), uint32(int32(y))},
	)
}

// Close tears the X connection down.
func (b *Bridge) Close() {
	b.conn.Close()
}

func (b *Bridge) atom(name string) (xproto.Atom, error) {
	b.mu.RLock()
	a, ok := b.atoms[name]
	b.mu.RUnlock()
	if ok {
		return a, nil
	}

	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	b.atoms[name] = reply.Atom
	b.mu.Unlock()
	return reply.Atom, nil
}

func (b *Bridge) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}

var _ compositor.XBridge = (*Bridge)(nil)
