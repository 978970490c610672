package appcatalog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IcebergThings/railshell/internal/config"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/nsgate"
	"github.com/IcebergThings/railshell/internal/rail"
)

// fakeChannel records every app-list frame the worker emits.
type fakeChannel struct {
	mu     sync.Mutex
	frames []*rail.AppListFrame
}

func (c *fakeChannel) NotifyAppList(frame *rail.AppListFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *frame
	c.frames = append(c.frames, &cp)
	return nil
}

func (c *fakeChannel) SetWindowIcon(rail.WindowID, *icon.Image) error           { return nil }
func (c *fakeChannel) NotifyWindowProxySurface(rail.WindowID) error             { return nil }
func (c *fakeChannel) StartWindowMove(rail.WindowID, int, int) error            { return nil }
func (c *fakeChannel) EndWindowMove(rail.WindowID) error                        { return nil }
func (c *fakeChannel) SendWindowMinMaxInfo(rail.WindowID, rail.MinMaxInfo) error { return nil }
func (c *fakeChannel) NotifyWindowZOrderChange([]rail.WindowID) error           { return nil }
func (c *fakeChannel) PrimaryOutput() string                                    { return "" }
func (c *fakeChannel) SupportsLocalMove() bool                                  { return false }

func (c *fakeChannel) snapshot() []*rail.AppListFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*rail.AppListFrame(nil), c.frames...)
}

// waitFrames polls until at least n frames arrived.
func (c *fakeChannel) waitFrames(t *testing.T, n int) []*rail.AppListFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if frames := c.snapshot(); len(frames) >= n {
			return frames
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, have %d", n, len(c.snapshot()))
	return nil
}

func writeDesktopFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func desktopContent(name, exec string) string {
	return "[Desktop Entry]\nType=Application\nName=" + name + "\nExec=" + exec + "\n"
}

// newTestService builds a worker confined to a temp directory.
func newTestService(t *testing.T, opts *config.Options) (*Service, *fakeChannel, string) {
	t.Helper()

	// Keep the host system's application directories out of the test.
	saved := BaseAppDirs
	BaseAppDirs = nil
	t.Cleanup(func() { BaseAppDirs = saved })

	t.Setenv("LC_ALL", "en_US.UTF-8")

	dir := t.TempDir()
	if opts == nil {
		opts = &config.Options{}
	}
	if opts.DistroName == "" {
		opts.DistroName = "TestDistro"
	}
	opts.AppListPaths = append(opts.AppListPaths, dir)

	store := icon.NewStore(icon.PNGRaster{}, icon.StoreConfig{})
	channel := &fakeChannel{}
	svc := NewService(opts, nsgate.New(""), store, channel)
	return svc, channel, dir
}

func TestFullSyncTransaction(t *testing.T) {
	svc, channel, dir := newTestService(t, nil)
	writeDesktopFile(t, dir, "beta.desktop", desktopContent("Beta", "beta"))
	writeDesktopFile(t, dir, "alpha.desktop", desktopContent("Alpha", "alpha"))

	svc.Start()
	defer svc.Stop()

	svc.StartFeed("en_US")
	frames := channel.waitFrames(t, 2)
	require.Len(t, frames, 2)

	// Ordered by key, bracketed by the sync flags, all in-sync.
	assert.Equal(t, "alpha", frames[0].AppID)
	assert.Equal(t, "beta", frames[1].AppID)
	for i, f := range frames {
		assert.NoError(t, f.Validate())
		assert.True(t, f.NewAppID)
		assert.True(t, f.InSync)
		assert.Equal(t, i == 0, f.SyncStart, "frame %d", i)
		assert.Equal(t, i == len(frames)-1, f.SyncEnd, "frame %d", i)
		assert.Equal(t, "TestDistro", f.AppProvider)
		assert.Equal(t, "TestDistro", f.AppGroup)
	}
	assert.Equal(t, "Alpha", frames[0].AppDesc)
	assert.Equal(t, "alpha", frames[0].AppExecPath)
}

func TestStopFeedEmitsProviderTeardown(t *testing.T) {
	svc, channel, dir := newTestService(t, nil)
	writeDesktopFile(t, dir, "app.desktop", desktopContent("App", "app"))

	svc.Start()
	defer svc.Stop()

	svc.StartFeed("en_US")
	channel.waitFrames(t, 1)

	svc.StopFeed()
	frames := channel.waitFrames(t, 2)
	last := frames[len(frames)-1]
	assert.True(t, last.DeleteAppProvider)
	assert.Equal(t, "TestDistro", last.AppProvider)
	assert.NoError(t, last.Validate())

	// With the feed inactive, catalog changes stay silent.
	before := len(channel.snapshot())
	writeDesktopFile(t, dir, "late.desktop", desktopContent("Late", "late"))
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, channel.snapshot(), before)
}

func TestFeedDeltas(t *testing.T) {
	svc, channel, dir := newTestService(t, nil)
	svc.Start()
	defer svc.Stop()

	svc.StartFeed("en_US")

	// Creation while the feed is active emits a delta outside any sync.
	path := writeDesktopFile(t, dir, "gamma.desktop", desktopContent("Gamma", "gamma"))
	frames := channel.waitFrames(t, 1)
	added := frames[len(frames)-1]
	assert.True(t, added.NewAppID)
	assert.False(t, added.InSync)
	assert.Equal(t, "gamma", added.AppID)

	// Removal emits a deleteAppId delta.
	require.NoError(t, os.Remove(path))
	frames = channel.waitFrames(t, 2)
	removed := frames[len(frames)-1]
	assert.True(t, removed.DeleteAppID)
	assert.Equal(t, "gamma", removed.AppID)
	assert.NoError(t, removed.Validate())
}

func TestRejectedRewriteRemovesEntry(t *testing.T) {
	svc, channel, dir := newTestService(t, nil)
	path := writeDesktopFile(t, dir, "app.desktop", desktopContent("App", "app"))

	svc.Start()
	defer svc.Stop()

	svc.StartFeed("en_US")
	channel.waitFrames(t, 1)

	// The descriptor turns hidden; its published entry must disappear.
	writeDesktopFile(t, dir, filepath.Base(path),
		"[Desktop Entry]\nType=Application\nHidden=true\nName=App\nExec=app\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		frames := channel.snapshot()
		last := frames[len(frames)-1]
		if last.DeleteAppID && last.AppID == "app" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for deleteAppId frame")
}

func TestLocaleResync(t *testing.T) {
	svc, channel, dir := newTestService(t, nil)
	writeDesktopFile(t, dir, "editor.desktop",
		"[Desktop Entry]\nType=Application\nName=Editor\nName[fr_FR]=Editeur\nExec=editor\n")

	svc.Start()
	defer svc.Stop()

	svc.StartFeed("en_US")
	frames := channel.waitFrames(t, 1)
	assert.Equal(t, "Editor", frames[0].AppDesc)

	svc.NotifyLocaleChanged("fr_FR")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		frames := channel.snapshot()
		last := frames[len(frames)-1]
		if last.NewAppID && last.AppDesc == "Editeur" {
			assert.True(t, last.InSync, "resync frames run as a transaction")
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for relocalized frame")
}

func TestDistroDecoration(t *testing.T) {
	svc, channel, dir := newTestService(t, &config.Options{
		DistroName:                "Ubuntu",
		AppendDistroNameStartMenu: true,
	})
	writeDesktopFile(t, dir, "files.desktop", desktopContent("Files", "files"))

	svc.Start()
	defer svc.Stop()

	svc.StartFeed("en_US")
	frames := channel.waitFrames(t, 1)
	assert.Equal(t, "Files (Ubuntu)", frames[0].AppDesc)
	assert.Equal(t, "Ubuntu", frames[0].AppProvider)
}

func TestLoadIconUnknownKey(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	svc.Start()
	defer svc.Stop()

	assert.Nil(t, svc.LoadIcon("nonexistent"))
}

func TestFindImageNameFallback(t *testing.T) {
	// Without wslpath the translation is a plain separator swap.
	svc, _, _ := newTestService(t, nil)
	svc.Start()
	defer svc.Stop()

	name := svc.FindImageName(os.Getpid(), true)
	require.NotEmpty(t, name)
	assert.True(t, strings.HasPrefix(name, `\`), "got %q", name)
	assert.NotContains(t, name, "/")
}

func TestRequestsSerialize(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	svc.Start()
	defer svc.Stop()

	// Concurrent requests must serialize on the single reply slot
	// without tripping the in-flight assertion.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.Nil(t, svc.LoadIcon("missing"))
			}
		}()
	}
	wg.Wait()
}

func TestCatalogRoundTrip(t *testing.T) {
	c := NewCatalog()
	assert.Equal(t, 0, c.Len())

	prev := c.Upsert(&Entry{Key: "b", Name: "B"})
	assert.Nil(t, prev)
	prev = c.Upsert(&Entry{Key: "a", Name: "A"})
	assert.Nil(t, prev)

	// Replacing returns the displaced entry.
	prev = c.Upsert(&Entry{Key: "a", Name: "A2"})
	require.NotNil(t, prev)
	assert.Equal(t, "A", prev.Name)

	assert.Equal(t, []string{"a", "b"}, c.OrderedKeys())
	assert.Equal(t, "A2", c.Get("a").Name)

	removed := c.Delete("a")
	require.NotNil(t, removed)
	assert.Nil(t, c.Get("a"))
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotListsCatalog(t *testing.T) {
	svc, _, dir := newTestService(t, nil)
	writeDesktopFile(t, dir, "beta.desktop", desktopContent("Beta", "/usr/bin/beta"))
	writeDesktopFile(t, dir, "alpha.desktop", desktopContent("Alpha", "/usr/bin/alpha"))
	svc.Start()
	defer svc.Stop()

	apps := svc.Snapshot()
	require.Len(t, apps, 2)
	assert.Equal(t, "alpha", apps[0].Key)
	assert.Equal(t, "Alpha", apps[0].Name)
	assert.Equal(t, "/usr/bin/alpha", apps[0].Exec)
	assert.Equal(t, "beta", apps[1].Key)
}
