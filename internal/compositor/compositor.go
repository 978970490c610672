// Package compositor declares the capability interfaces the shell core
// consumes from its host compositor. The shell never reaches past these:
// surfaces, views, seats and outputs are owned by the compositor, and the
// X compatibility bridge is a separate collaborator. Implementations live
// outside this repository, except for the xgb-backed bridge in
// internal/xbridge.
package compositor

// SurfaceID identifies a surface for the lifetime of the compositor.
type SurfaceID uint64

// Point is a position in the global compositor coordinate space.
type Point struct {
	X, Y float64
}

// Size is a width/height pair in surface units.
type Size struct {
	W, H int
}

// Rect is an axis-aligned rectangle in global coordinates.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Matrix is a row-major 3x3 transform applied to a view around its
// center.
type Matrix [9]float64

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Mul returns m * n.
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[row*3+k] * n[k*3+col]
			}
			out[row*3+col] = sum
		}
	}
	return out
}

// IsIdentity reports whether m is the identity transform.
func (m Matrix) IsIdentity() bool {
	return m == Identity()
}

// DesktopSurface is one top-level or transient window as exposed by the
// compositor's desktop-surface abstraction.
type DesktopSurface interface {
	ID() SurfaceID
	Title() string
	AppID() string
	PID() int

	// Geometry is the window geometry within the surface: the visible
	// extents excluding client-side shadows.
	Geometry() Rect
	// SurfaceSize is the full committed surface size.
	SurfaceSize() Size
	MinSize() Size
	MaxSize() Size

	SetSize(w, h int)
	SetActivated(active bool)
	SetFullscreen(on bool)
	SetMaximized(on bool)
	SetResizing(on bool)
	Close()
	Ping()

	// Parent returns the parent surface ID for transients, or 0.
	Parent() SurfaceID

	// OnMetadataChange registers a callback fired when title or app id
	// change. Returns a deregistration func.
	OnMetadataChange(fn func()) func()
}

// View is the scene-graph node presenting a surface.
type View interface {
	Position() Point
	SetPosition(x, y float64)
	Mapped() bool
	SetMapped(on bool)
	Alpha() float64
	SetAlpha(a float64)
	Output() Output
	SetOutput(o Output)
	SetTransform(m Matrix)
	ClearTransform()
	Damage()
}

// Output is one display as seen by the compositor.
type Output interface {
	Name() string
	Bounds() Rect
	OnDestroy(fn func()) func()
}

// Keyboard is a seat's keyboard device.
type Keyboard interface {
	FocusedSurface() SurfaceID
	SetFocus(id SurfaceID)
	// PressedKeys returns the keycodes currently held.
	PressedKeys() []uint32
	// SynthesizeRelease emits a release event for a held key.
	SynthesizeRelease(key uint32)
}

// Pointer is a seat's pointer device.
type Pointer interface {
	Position() Point
	// SetFocus moves pointer focus to a surface at surface-local
	// coordinates.
	SetFocus(id SurfaceID, sx, sy float64)
}

// Seat groups the input devices of one user.
type Seat interface {
	Name() string
	Keyboard() Keyboard
	Pointer() Pointer
	OnDestroy(fn func()) func()
}

// Compositor is the host the shell plugs into.
type Compositor interface {
	Outputs() []Output
	PrimaryOutput() Output
	Seats() []Seat

	// CreateView allocates a view for a desktop surface.
	CreateView(ds DesktopSurface) View
	// CreateSolidView allocates a borderless black view, used for
	// fullscreen backdrops.
	CreateSolidView(bounds Rect) View
	DestroyView(v View)

	// ScheduleIdle queues fn to run on the compositor thread when idle.
	ScheduleIdle(fn func())
	// KillClient force-disconnects the client owning the surface.
	KillClient(id SurfaceID)
	// ClientPID returns the pid of the client owning the surface.
	ClientPID(id SurfaceID) int
	// Exit requests an orderly compositor shutdown.
	Exit()
}

// XBridge is the X compatibility bridge for surfaces backed by the X
// server.
type XBridge interface {
	IsXSurface(id SurfaceID) bool
	ClassName(id SurfaceID) string
	SetMaximized(id SurfaceID, on bool)
	CloseWindow(id SurfaceID)
	// TriggerSetWindowIcon asks the bridge to query the X window icon;
	// the bridge re-enters the shell's icon binding with the pixel data.
	TriggerSetWindowIcon(id SurfaceID)
	SendPosition(id SurfaceID, x, y int)
}
