package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/config"
)

func TestZapBinding(t *testing.T) {
	f := newShellFixture(&config.Options{AllowZap: false})
	defer f.close()

	assert.False(t, f.m.HandleKeyBinding(f.seat, KeyBackspace, ModCtrl|ModAlt))
	assert.False(t, f.comp.exited)

	f2 := newShellFixture(&config.Options{AllowZap: true})
	defer f2.close()

	assert.True(t, f2.m.HandleKeyBinding(f2.seat, KeyBackspace, ModCtrl|ModAlt))
	assert.True(t, f2.comp.exited)
}

func TestAltF4Binding(t *testing.T) {
	f := newShellFixture(&config.Options{AllowAltF4Close: true})
	defer f.close()

	_, ds := f.addWindow(1, 400, 300)
	f.seat.kbd.focused = 1

	assert.True(t, f.m.HandleKeyBinding(f.seat, KeyF4, ModAlt))
	assert.True(t, ds.closed)
}

func TestAltF4BindingDisabled(t *testing.T) {
	f := newShellFixture(&config.Options{AllowAltF4Close: false})
	defer f.close()

	_, ds := f.addWindow(1, 400, 300)
	f.seat.kbd.focused = 1

	assert.False(t, f.m.HandleKeyBinding(f.seat, KeyF4, ModAlt))
	assert.False(t, ds.closed)
}

func TestMaximizeToggleBinding(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	s, _ := f.addWindow(1, 400, 300)
	f.seat.kbd.focused = 1

	require.True(t, f.m.HandleKeyBinding(f.seat, KeyM, ModSuper|ModShift))
	assert.True(t, s.maximized)

	require.True(t, f.m.HandleKeyBinding(f.seat, KeyM, ModSuper|ModShift))
	assert.False(t, s.maximized)
}

func TestFullscreenToggleBinding(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	s, _ := f.addWindow(1, 400, 300)
	f.seat.kbd.focused = 1

	require.True(t, f.m.HandleKeyBinding(f.seat, KeyF, ModSuper|ModShift))
	assert.True(t, s.fullscreen)
}

func TestKillClientBinding(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	f.addWindow(1, 400, 300)
	f.seat.kbd.focused = 1
	f.comp.pids[1] = 4242

	assert.True(t, f.m.HandleKeyBinding(f.seat, KeyK, ModSuper))
	assert.Equal(t, []compositor.SurfaceID{1}, f.comp.killed)
}

func TestMoveButtonBinding(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	f.addWindow(1, 400, 300)

	assert.True(t, f.m.HandleButtonBinding(f.seat, 1, BtnLeft, ModSuper))
	require.IsType(t, &moveGrab{}, f.m.grab)
	f.m.PointerButton(BtnLeft, false)
}

func TestResizeButtonBindingEdgesFromThirds(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	s, _ := f.addWindow(1, 400, 300)
	v := f.view(s)
	v.SetPosition(0, 0)

	tests := []struct {
		x, y  float64
		edges ResizeEdge
	}{
		{10, 10, EdgeTop | EdgeLeft},
		{390, 290, EdgeBottom | EdgeRight},
		{200, 10, EdgeTop},
		{10, 150, EdgeLeft},
		{200, 150, EdgeBottom | EdgeRight}, // dead center default
	}
	for _, tt := range tests {
		f.seat.ptr.pos = compositor.Point{X: tt.x, Y: tt.y}
		require.True(t, f.m.HandleButtonBinding(f.seat, 1, BtnRight, ModSuper))
		assert.Equal(t, tt.edges, s.resizeEdges, "pointer at (%v, %v)", tt.x, tt.y)
		f.m.PointerButton(BtnLeft, false)
	}
}

func TestPlainClickActivatesAndPassesThrough(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	f.addWindow(1, 400, 300)
	f.addWindow(2, 400, 300)

	// Activation happens, but the click is not consumed.
	assert.False(t, f.m.HandleButtonBinding(f.seat, 1, BtnLeft, 0))
	assert.Equal(t, compositor.SurfaceID(1), f.seat.kbd.focused)
}

func TestAlphaBindingClamps(t *testing.T) {
	f := newShellFixture(nil)
	defer f.close()

	s, _ := f.addWindow(1, 400, 300)
	f.seat.kbd.focused = 1
	v := f.view(s)
	require.Equal(t, 1.0, v.alpha)

	// Scrolling down fades the window, floored at the minimum.
	assert.True(t, f.m.HandleAxisBinding(f.seat, 1000, ModSuper|ModAlt))
	assert.Equal(t, alphaMin, v.alpha)

	// Scrolling up brightens, capped at opaque.
	assert.True(t, f.m.HandleAxisBinding(f.seat, -1000, ModSuper|ModAlt))
	assert.Equal(t, alphaMax, v.alpha)

	// Wrong modifiers pass through.
	assert.False(t, f.m.HandleAxisBinding(f.seat, 1, ModSuper))
}
