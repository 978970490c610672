package icon

import (
	"os"
	"path/filepath"

	"github.com/IcebergThings/railshell/internal/logger"
)

// MaxIconRetry is the number of resolution attempts before an icon is
// permanently abandoned.
const MaxIconRetry = 5

// iconSearchDirs is the ordered search list: hicolor pixmaps at
// decreasing preferred sizes, plain pixmaps, flatpak exports,
// HighContrast, then scalable SVG as a last resort.
var iconSearchDirs = []string{
	"/usr/share/icons/hicolor/96x96/apps",
	"/usr/share/icons/hicolor/64x64/apps",
	"/usr/share/icons/hicolor/48x48/apps",
	"/usr/share/icons/hicolor/32x32/apps",
	"/usr/share/pixmaps",
	"/var/lib/flatpak/exports/share/icons/hicolor/96x96/apps",
	"/var/lib/flatpak/exports/share/icons/hicolor/64x64/apps",
	"/var/lib/flatpak/exports/share/icons/hicolor/48x48/apps",
	"/var/lib/flatpak/exports/share/icons/hicolor/32x32/apps",
	"/usr/share/icons/HighContrast/48x48/apps",
	"/usr/share/icons/HighContrast/32x32/apps",
	"/usr/share/icons/hicolor/scalable/apps",
	"/var/lib/flatpak/exports/share/icons/hicolor/scalable/apps",
}

// StoreConfig selects the process-wide default icons and blending
// behavior.
type StoreConfig struct {
	// DefaultIconPath and DefaultOverlayIconPath are image paths or the
	// literal "disabled".
	DefaultIconPath        string
	DefaultOverlayIconPath string
	BlendOverlayAppList    bool
	BlendOverlayTaskbar    bool
}

// Store resolves icon names to decoded images and tracks retry
// accounting for icons that failed to resolve. All mutating calls happen
// on the catalog worker.
type Store struct {
	raster     Raster
	searchDirs []string

	defaultIcon        *Image
	defaultOverlay     *Image
	blendedDefault     *Image
	blendOverlayAppLst bool
	blendOverlayTask   bool

	// pendingRetries counts entries with 0 < retry < MaxIconRetry.
	// Worker-owned.
	pendingRetries int

	cache map[string]*Image

	// fileExists is swappable for tests.
	fileExists func(path string) bool
}

// NewStore builds a store using the given raster and configuration.
// Default icons are decoded once; when overlay blending is enabled for
// the app list, the default icon is preblended here so it is never
// composited twice.
func NewStore(raster Raster, cfg StoreConfig) *Store {
	s := &Store{
		raster:             raster,
		searchDirs:         iconSearchDirs,
		blendOverlayAppLst: cfg.BlendOverlayAppList,
		blendOverlayTask:   cfg.BlendOverlayTaskbar,
		cache:              make(map[string]*Image),
		fileExists:         fileExists,
	}

	log := logger.WithComponent("icon-store")
	if p := cfg.DefaultIconPath; p != "" && p != "disabled" {
		img, err := raster.LoadImage(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to load default icon")
		} else {
			s.defaultIcon = img
		}
	}
	if p := cfg.DefaultOverlayIconPath; p != "" && p != "disabled" {
		img, err := raster.LoadImage(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to load default overlay icon")
		} else {
			s.defaultOverlay = img
		}
	}
	if s.defaultIcon != nil && s.defaultOverlay != nil {
		s.blendedDefault = BlendOverlay(s.defaultIcon, s.defaultOverlay)
	}
	return s
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Resolve maps an icon name to a file path. Absolute names are used
// verbatim when the file exists; otherwise the search list is walked
// trying the name as-is, then with .png, then with .svg. First hit wins.
func (s *Store) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		if s.fileExists(name) {
			return name, true
		}
		return "", false
	}
	for _, dir := range s.searchDirs {
		for _, candidate := range []string{name, name + ".png", name + ".svg"} {
			path := filepath.Join(dir, candidate)
			if s.fileExists(path) {
				return path, true
			}
		}
	}
	return "", false
}

// Load resolves and decodes an icon by name, consulting the cache first.
// The returned image carries a fresh reference.
func (s *Store) Load(name string) (*Image, string, error) {
	path, ok := s.Resolve(name)
	if !ok {
		return nil, "", os.ErrNotExist
	}
	if img, hit := s.cache[path]; hit {
		return img.Ref(), path, nil
	}
	img, err := s.raster.LoadImage(path)
	if err != nil {
		return nil, path, err
	}
	s.cache[path] = img
	return img.Ref(), path, nil
}

// RecordMiss advances an entry's retry count after a failed resolution
// and maintains the global pending-retry counter: bumped when a count
// first becomes non-zero, dropped once the entry reaches MaxIconRetry
// and is permanently abandoned.
func (s *Store) RecordMiss(prev int) int {
	if prev >= MaxIconRetry {
		return prev
	}
	if prev == 0 {
		s.pendingRetries++
	}
	next := prev + 1
	if next == MaxIconRetry {
		s.pendingRetries--
	}
	return next
}

// ForgetPending drops the pending-retry accounting for an entry that is
// removed while still eligible for retry.
func (s *Store) ForgetPending(count int) {
	if count > 0 && count < MaxIconRetry {
		s.pendingRetries--
	}
}

// PendingRetries returns the number of entries awaiting an icon retry.
func (s *Store) PendingRetries() int {
	return s.pendingRetries
}

// DefaultIcon returns the process-wide default app icon, preblended with
// the overlay when app-list blending is on. May be nil.
func (s *Store) DefaultIcon() *Image {
	if s.blendOverlayAppLst && s.blendedDefault != nil {
		return s.blendedDefault
	}
	return s.defaultIcon
}

// RawDefaultIcon returns the default icon without overlay blending.
func (s *Store) RawDefaultIcon() *Image {
	return s.defaultIcon
}

// OverlayIcon returns the configured overlay icon, or nil.
func (s *Store) OverlayIcon() *Image {
	return s.defaultOverlay
}

// ForAppList applies the configured app-list overlay to a non-default
// icon. The default icon was preblended at init.
func (s *Store) ForAppList(img *Image) *Image {
	if img == nil || !s.blendOverlayAppLst || s.defaultOverlay == nil || img == s.defaultIcon {
		return img
	}
	return BlendOverlay(img, s.defaultOverlay)
}

// ForTaskbar applies the configured taskbar overlay to a window icon.
func (s *Store) ForTaskbar(img *Image) *Image {
	if img == nil || !s.blendOverlayTask || s.defaultOverlay == nil {
		return img
	}
	if img == s.defaultIcon && s.blendedDefault != nil {
		return s.blendedDefault
	}
	return BlendOverlay(img, s.defaultOverlay)
}
