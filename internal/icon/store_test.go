package icon

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRaster returns canned images per path.
type fakeRaster struct {
	images map[string]*Image
}

func (r *fakeRaster) LoadImage(path string) (*Image, error) {
	if img, ok := r.images[path]; ok {
		return img, nil
	}
	return nil, ErrUnsupported
}

func solidImage(w, h int, b, g, rr, a byte) *Image {
	img := NewImage(w, h)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = b
		img.Pix[i+1] = g
		img.Pix[i+2] = rr
		img.Pix[i+3] = a
	}
	return img
}

func newTestStore(existing map[string]bool, raster Raster) *Store {
	if raster == nil {
		raster = &fakeRaster{}
	}
	s := NewStore(raster, StoreConfig{})
	s.fileExists = func(path string) bool { return existing[path] }
	return s
}

func TestResolveAbsolutePath(t *testing.T) {
	s := newTestStore(map[string]bool{"/opt/app/icon.png": true}, nil)

	path, ok := s.Resolve("/opt/app/icon.png")
	require.True(t, ok)
	assert.Equal(t, "/opt/app/icon.png", path)

	// An absolute name that does not exist never falls back to the
	// search list.
	_, ok = s.Resolve("/opt/app/missing.png")
	assert.False(t, ok)
}

func TestResolveSearchOrder(t *testing.T) {
	// The same name exists in two search directories; the earlier
	// directory must win.
	s := newTestStore(map[string]bool{
		"/usr/share/icons/hicolor/64x64/apps/editor.png": true,
		"/usr/share/pixmaps/editor.png":                  true,
	}, nil)

	path, ok := s.Resolve("editor")
	require.True(t, ok)
	assert.Equal(t, "/usr/share/icons/hicolor/64x64/apps/editor.png", path)
}

func TestResolveExtensionOrder(t *testing.T) {
	// Within one directory the bare name beats .png beats .svg.
	s := newTestStore(map[string]bool{
		"/usr/share/pixmaps/editor.png": true,
		"/usr/share/pixmaps/editor.svg": true,
	}, nil)

	path, ok := s.Resolve("editor")
	require.True(t, ok)
	assert.Equal(t, "/usr/share/pixmaps/editor.png", path)
}

func TestResolveEmptyName(t *testing.T) {
	s := newTestStore(nil, nil)
	_, ok := s.Resolve("")
	assert.False(t, ok)
}

func TestLoadCachesDecodedImages(t *testing.T) {
	img := solidImage(4, 4, 1, 2, 3, 255)
	raster := &fakeRaster{images: map[string]*Image{
		"/usr/share/pixmaps/editor.png": img,
	}}
	s := newTestStore(map[string]bool{"/usr/share/pixmaps/editor.png": true}, raster)

	got1, path, err := s.Load("editor")
	require.NoError(t, err)
	assert.Equal(t, "/usr/share/pixmaps/editor.png", path)

	got2, _, err := s.Load("editor")
	require.NoError(t, err)

	// Same underlying buffer, one extra reference per Load.
	assert.Same(t, got1, got2)
	assert.Equal(t, 3, got1.Refs())
}

func TestLoadMissingIcon(t *testing.T) {
	s := newTestStore(nil, nil)
	_, _, err := s.Load("nonexistent")
	assert.True(t, errors.Is(err, os.ErrNotExist), "want not-exist error, got %v", err)
}

func TestRetryAccounting(t *testing.T) {
	s := newTestStore(nil, nil)
	assert.Equal(t, 0, s.PendingRetries())

	// First miss makes the entry pending.
	count := s.RecordMiss(0)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, s.PendingRetries())

	// Intermediate misses leave the counter alone.
	for count < MaxIconRetry-1 {
		count = s.RecordMiss(count)
		assert.Equal(t, 1, s.PendingRetries())
	}

	// The final miss abandons the entry.
	count = s.RecordMiss(count)
	assert.Equal(t, MaxIconRetry, count)
	assert.Equal(t, 0, s.PendingRetries())

	// Misses past the cap change nothing.
	assert.Equal(t, MaxIconRetry, s.RecordMiss(count))
	assert.Equal(t, 0, s.PendingRetries())
}

func TestForgetPending(t *testing.T) {
	s := newTestStore(nil, nil)

	// Entry removed mid-retry must drop the pending count.
	count := s.RecordMiss(0)
	require.Equal(t, 1, s.PendingRetries())
	s.ForgetPending(count)
	assert.Equal(t, 0, s.PendingRetries())

	// Never-missed and abandoned entries are not pending.
	s.ForgetPending(0)
	s.ForgetPending(MaxIconRetry)
	assert.Equal(t, 0, s.PendingRetries())
}

func TestBlendOverlayDimensions(t *testing.T) {
	app := solidImage(64, 64, 0, 0, 255, 255)
	overlay := solidImage(32, 32, 255, 0, 0, 255)

	out := BlendOverlay(app, overlay)
	require.NotNil(t, out)

	// Output matches the app icon's dimensions; inputs are untouched.
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 64, out.Height)
	assert.NotSame(t, app, out)

	// The overlay is rendered at appSize/1.75 centered, so the corners
	// keep the app icon's pixels while the center carries the overlay.
	assert.Equal(t, byte(0), out.Pix[0], "corner blue should come from the app icon")
	assert.Equal(t, byte(255), out.Pix[2], "corner red should come from the app icon")
	center := (32*out.Stride + 32*4)
	assert.Equal(t, byte(255), out.Pix[center+0], "center blue should come from the overlay")
}

func TestBlendOverlayNilInputs(t *testing.T) {
	app := solidImage(16, 16, 0, 0, 0, 255)
	assert.Nil(t, BlendOverlay(nil, app))
	assert.Same(t, app, BlendOverlay(app, nil))
}

func TestImageRefCounting(t *testing.T) {
	img := NewImage(2, 2)
	assert.Equal(t, 1, img.Refs())

	img.Ref()
	assert.Equal(t, 2, img.Refs())

	img.Unref()
	img.Unref()
	assert.Equal(t, 0, img.Refs())

	assert.Panics(t, func() { img.Unref() })
}

func TestFromBGRAStride(t *testing.T) {
	// 2x2 image with 12-byte rows: 8 bytes of pixels plus padding.
	pix := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 0xee, 0xee, 0xee, 0xee,
		9, 10, 11, 12, 13, 14, 15, 16, 0xee, 0xee, 0xee, 0xee,
	}
	img := FromBGRA(2, 2, 12, pix)
	assert.Equal(t, 8, img.Stride)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, img.Pix)
}
