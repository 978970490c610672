package shell

import (
	"sync"

	"github.com/IcebergThings/railshell/internal/appcatalog"
	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/config"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/nsgate"
	"github.com/IcebergThings/railshell/internal/rail"
)

type fakeDS struct {
	id    compositor.SurfaceID
	title string
	appID string
	pid   int

	geom     compositor.Rect
	surfSize compositor.Size
	minSize  compositor.Size
	maxSize  compositor.Size
	parent   compositor.SurfaceID

	setW, setH int
	activated  bool
	fullscreen bool
	maximized  bool
	resizing   bool
	closed     bool
	pinged     bool

	metaFn func()
}

func newFakeDS(id compositor.SurfaceID, w, h int) *fakeDS {
	return &fakeDS{
		id:       id,
		geom:     compositor.Rect{X: 0, Y: 0, W: w, H: h},
		surfSize: compositor.Size{W: w, H: h},
	}
}

func (d *fakeDS) ID() compositor.SurfaceID       { return d.id }
func (d *fakeDS) Title() string                  { return d.title }
func (d *fakeDS) AppID() string                  { return d.appID }
func (d *fakeDS) PID() int                       { return d.pid }
func (d *fakeDS) Geometry() compositor.Rect      { return d.geom }
func (d *fakeDS) SurfaceSize() compositor.Size   { return d.surfSize }
func (d *fakeDS) MinSize() compositor.Size       { return d.minSize }
func (d *fakeDS) MaxSize() compositor.Size       { return d.maxSize }
func (d *fakeDS) SetSize(w, h int)               { d.setW, d.setH = w, h }
func (d *fakeDS) SetActivated(on bool)           { d.activated = on }
func (d *fakeDS) SetFullscreen(on bool)          { d.fullscreen = on }
func (d *fakeDS) SetMaximized(on bool)           { d.maximized = on }
func (d *fakeDS) SetResizing(on bool)            { d.resizing = on }
func (d *fakeDS) Close()                         { d.closed = true }
func (d *fakeDS) Ping()                          { d.pinged = true }
func (d *fakeDS) Parent() compositor.SurfaceID   { return d.parent }
func (d *fakeDS) OnMetadataChange(fn func()) func() {
	d.metaFn = fn
	return func() { d.metaFn = nil }
}

type fakeView struct {
	pos       compositor.Point
	mapped    bool
	alpha     float64
	output    compositor.Output
	transform compositor.Matrix
	hasXform  bool
	damaged   int
}

func (v *fakeView) Position() compositor.Point        { return v.pos }
func (v *fakeView) SetPosition(x, y float64)          { v.pos = compositor.Point{X: x, Y: y} }
func (v *fakeView) Mapped() bool                      { return v.mapped }
func (v *fakeView) SetMapped(on bool)                 { v.mapped = on }
func (v *fakeView) Alpha() float64                    { return v.alpha }
func (v *fakeView) SetAlpha(a float64)                { v.alpha = a }
func (v *fakeView) Output() compositor.Output         { return v.output }
func (v *fakeView) SetOutput(o compositor.Output)     { v.output = o }
func (v *fakeView) SetTransform(m compositor.Matrix)  { v.transform, v.hasXform = m, true }
func (v *fakeView) ClearTransform()                   { v.transform, v.hasXform = compositor.Identity(), false }
func (v *fakeView) Damage()                           { v.damaged++ }

type fakeOutput struct {
	name      string
	bounds    compositor.Rect
	destroyFn func()
}

func (o *fakeOutput) Name() string           { return o.name }
func (o *fakeOutput) Bounds() compositor.Rect { return o.bounds }
func (o *fakeOutput) OnDestroy(fn func()) func() {
	o.destroyFn = fn
	return func() { o.destroyFn = nil }
}

type fakeKeyboard struct {
	focused  compositor.SurfaceID
	pressed  []uint32
	released []uint32
	onFocus  func(compositor.SurfaceID)
}

func (k *fakeKeyboard) FocusedSurface() compositor.SurfaceID { return k.focused }
func (k *fakeKeyboard) SetFocus(id compositor.SurfaceID) {
	k.focused = id
	if k.onFocus != nil {
		k.onFocus(id)
	}
}
func (k *fakeKeyboard) PressedKeys() []uint32      { return append([]uint32(nil), k.pressed...) }
func (k *fakeKeyboard) SynthesizeRelease(key uint32) { k.released = append(k.released, key) }

type fakePointer struct {
	pos     compositor.Point
	focusID compositor.SurfaceID
}

func (p *fakePointer) Position() compositor.Point { return p.pos }
func (p *fakePointer) SetFocus(id compositor.SurfaceID, sx, sy float64) {
	p.focusID = id
}

type fakeSeat struct {
	name      string
	kbd       *fakeKeyboard
	ptr       *fakePointer
	onDestroy func()
}

func (s *fakeSeat) Name() string                  { return s.name }
func (s *fakeSeat) Keyboard() compositor.Keyboard { return s.kbd }
func (s *fakeSeat) Pointer() compositor.Pointer   { return s.ptr }
func (s *fakeSeat) OnDestroy(fn func()) func() {
	s.onDestroy = fn
	return func() { s.onDestroy = nil }
}

// destroy fires the registered seat destroy listener.
func (s *fakeSeat) destroy() {
	if s.onDestroy != nil {
		s.onDestroy()
	}
}

type fakeComp struct {
	outputs []compositor.Output
	primary compositor.Output
	seats   []compositor.Seat

	views     map[compositor.DesktopSurface]*fakeView
	solids    []*fakeView
	destroyed []compositor.View
	killed    []compositor.SurfaceID
	pids      map[compositor.SurfaceID]int
	exited    bool
}

func newFakeComp() (*fakeComp, *fakeOutput, *fakeSeat) {
	out := &fakeOutput{name: "HDMI-1", bounds: compositor.Rect{X: 0, Y: 0, W: 1920, H: 1080}}
	seat := &fakeSeat{name: "seat0", kbd: &fakeKeyboard{}, ptr: &fakePointer{}}
	c := &fakeComp{
		outputs: []compositor.Output{out},
		primary: out,
		seats:   []compositor.Seat{seat},
		views:   make(map[compositor.DesktopSurface]*fakeView),
		pids:    make(map[compositor.SurfaceID]int),
	}
	return c, out, seat
}

func (c *fakeComp) Outputs() []compositor.Output      { return c.outputs }
func (c *fakeComp) PrimaryOutput() compositor.Output  { return c.primary }
func (c *fakeComp) Seats() []compositor.Seat          { return c.seats }
func (c *fakeComp) CreateView(ds compositor.DesktopSurface) compositor.View {
	v := &fakeView{alpha: 1.0}
	c.views[ds] = v
	return v
}
func (c *fakeComp) CreateSolidView(bounds compositor.Rect) compositor.View {
	v := &fakeView{alpha: 1.0}
	c.solids = append(c.solids, v)
	return v
}
func (c *fakeComp) DestroyView(v compositor.View)     { c.destroyed = append(c.destroyed, v) }
func (c *fakeComp) ScheduleIdle(fn func())            { fn() }
func (c *fakeComp) KillClient(id compositor.SurfaceID) { c.killed = append(c.killed, id) }
func (c *fakeComp) ClientPID(id compositor.SurfaceID) int { return c.pids[id] }
func (c *fakeComp) Exit()                             { c.exited = true }

type fakeXBridge struct {
	xSurfaces map[compositor.SurfaceID]bool
	classes   map[compositor.SurfaceID]string

	maximized map[compositor.SurfaceID]bool
	closed    []compositor.SurfaceID
	triggered []compositor.SurfaceID
	positions map[compositor.SurfaceID]compositor.Point
}

func newFakeXBridge() *fakeXBridge {
	return &fakeXBridge{
		xSurfaces: make(map[compositor.SurfaceID]bool),
		classes:   make(map[compositor.SurfaceID]string),
		maximized: make(map[compositor.SurfaceID]bool),
		positions: make(map[compositor.SurfaceID]compositor.Point),
	}
}

func (b *fakeXBridge) IsXSurface(id compositor.SurfaceID) bool  { return b.xSurfaces[id] }
func (b *fakeXBridge) ClassName(id compositor.SurfaceID) string { return b.classes[id] }
func (b *fakeXBridge) SetMaximized(id compositor.SurfaceID, on bool) {
	b.maximized[id] = on
}
func (b *fakeXBridge) CloseWindow(id compositor.SurfaceID) { b.closed = append(b.closed, id) }
func (b *fakeXBridge) TriggerSetWindowIcon(id compositor.SurfaceID) {
	b.triggered = append(b.triggered, id)
}
func (b *fakeXBridge) SendPosition(id compositor.SurfaceID, x, y int) {
	b.positions[id] = compositor.Point{X: float64(x), Y: float64(y)}
}

type fakeShellChannel struct {
	mu sync.Mutex

	zorders    [][]rail.WindowID
	minmax     map[rail.WindowID]rail.MinMaxInfo
	moveStarts []rail.WindowID
	moveEnds   []rail.WindowID
	icons      map[rail.WindowID]*icon.Image
	proxies    []rail.WindowID

	localMove     bool
	primaryOutput string
}

func newFakeShellChannel() *fakeShellChannel {
	return &fakeShellChannel{
		minmax: make(map[rail.WindowID]rail.MinMaxInfo),
		icons:  make(map[rail.WindowID]*icon.Image),
	}
}

func (c *fakeShellChannel) NotifyAppList(*rail.AppListFrame) error { return nil }
func (c *fakeShellChannel) SetWindowIcon(id rail.WindowID, img *icon.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.icons[id] = img
	return nil
}
func (c *fakeShellChannel) NotifyWindowProxySurface(id rail.WindowID) error {
	c.proxies = append(c.proxies, id)
	return nil
}
func (c *fakeShellChannel) StartWindowMove(id rail.WindowID, x, y int) error {
	c.moveStarts = append(c.moveStarts, id)
	return nil
}
func (c *fakeShellChannel) EndWindowMove(id rail.WindowID) error {
	c.moveEnds = append(c.moveEnds, id)
	return nil
}
func (c *fakeShellChannel) SendWindowMinMaxInfo(id rail.WindowID, info rail.MinMaxInfo) error {
	c.minmax[id] = info
	return nil
}
func (c *fakeShellChannel) NotifyWindowZOrderChange(ids []rail.WindowID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zorders = append(c.zorders, append([]rail.WindowID(nil), ids...))
	return nil
}
func (c *fakeShellChannel) PrimaryOutput() string    { return c.primaryOutput }
func (c *fakeShellChannel) SupportsLocalMove() bool  { return c.localMove }

func (c *fakeShellChannel) lastZOrder() []rail.WindowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.zorders) == 0 {
		return nil
	}
	return c.zorders[len(c.zorders)-1]
}

// shellFixture bundles a manager with its fakes.
type shellFixture struct {
	m       *Manager
	comp    *fakeComp
	out     *fakeOutput
	seat    *fakeSeat
	channel *fakeShellChannel
	xb      *fakeXBridge
	catalog *appcatalog.Service
}

func newShellFixture(opts *config.Options) *shellFixture {
	if opts == nil {
		opts = &config.Options{}
	}
	comp, out, seat := newFakeComp()
	channel := newFakeShellChannel()
	xb := newFakeXBridge()
	store := icon.NewStore(icon.PNGRaster{}, icon.StoreConfig{})

	catalog := appcatalog.NewService(opts, nsgate.New(""), store, channel)
	catalog.Start()

	return &shellFixture{
		m:       NewManager(comp, channel, catalog, xb, store, opts),
		comp:    comp,
		out:     out,
		seat:    seat,
		channel: channel,
		xb:      xb,
		catalog: catalog,
	}
}

func (f *shellFixture) close() {
	f.catalog.Stop()
}

// addWindow creates and maps a surface of the given size.
func (f *shellFixture) addWindow(id compositor.SurfaceID, w, h int) (*Surface, *fakeDS) {
	ds := newFakeDS(id, w, h)
	s := f.m.SurfaceAdded(ds)
	f.m.SurfaceCommitted(id, w, h)
	return s, ds
}

func (f *shellFixture) view(s *Surface) *fakeView {
	return s.view.(*fakeView)
}
