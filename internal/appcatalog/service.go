package appcatalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/IcebergThings/railshell/internal/config"
	"github.com/IcebergThings/railshell/internal/desktop"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/logger"
	"github.com/IcebergThings/railshell/internal/nsgate"
	"github.com/IcebergThings/railshell/internal/rail"
)

// BaseAppDirs is the fixed set of application directories scanned on
// start, before WESTON_RDPRAIL_SHELL_APP_LIST_PATH additions.
var BaseAppDirs = []string{
	"/usr/share/applications",
	"/usr/local/share/applications",
	"/var/lib/snapd/desktop/applications",
	"/var/lib/flatpak/exports/share/applications",
}

// iconRetryInterval bounds the worker's wait while any entry awaits an
// icon retry.
const iconRetryInterval = 2 * time.Second

type eventKind int

const (
	evStop eventKind = iota
	evStartFeed
	evStopFeed
	evLoadIcon
	evFindImage
	evLocaleChanged
	evSnapshot
)

// AppInfo is a read-only summary of one catalog entry, served by the
// debug HTTP endpoint.
type AppInfo struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Exec     string `json:"exec"`
	IconPath string `json:"icon_path,omitempty"`
	Path     string `json:"path"`
}

type ctlEvent struct {
	kind      eventKind
	locale    string
	key       string
	pid       int
	isWayland bool
	reply     chan ctlReply
}

type ctlReply struct {
	img  *icon.Image
	name string
	apps []AppInfo
}

// Service is the application catalog worker. All fields below the
// control channel are owned by the worker goroutine.
type Service struct {
	opts    *config.Options
	gate    *nsgate.Gate
	store   *icon.Store
	channel rail.Channel
	log     *zerolog.Logger

	ctl  chan ctlEvent
	done chan struct{}

	catalog    *Catalog
	watcher    *fsnotify.Watcher
	locale     string
	feedActive bool
	// fatalErr aborts the worker; set when the namespace gate fails to
	// detach.
	fatalErr error

	reqMu    sync.Mutex
	inFlight atomic.Bool
}

// NewService wires the catalog worker. Call Start to launch it.
func NewService(opts *config.Options, gate *nsgate.Gate, store *icon.Store, channel rail.Channel) *Service {
	return &Service{
		opts:    opts,
		gate:    gate,
		store:   store,
		channel: channel,
		log:     logger.WithComponent("appcatalog"),
		ctl:     make(chan ctlEvent),
		done:    make(chan struct{}),
		catalog: NewCatalog(),
	}
}

// Start launches the worker goroutine. The initial directory scan
// happens on the worker before it begins serving events.
func (s *Service) Start() {
	go s.run()
}

// Stop signals the worker and waits for it to drain and exit. No
// request may be in flight.
func (s *Service) Stop() {
	select {
	case s.ctl <- ctlEvent{kind: evStop}:
	case <-s.done:
		return
	}
	<-s.done
}

// StartFeed activates the application feed for the given locale,
// rebuilding the catalog first if the locale changed.
func (s *Service) StartFeed(locale string) {
	s.post(ctlEvent{kind: evStartFeed, locale: locale})
}

// StopFeed deactivates the feed. It blocks until the worker has emitted
// the deleteAppProvider frame, so a subsequent Stop never races it.
func (s *Service) StopFeed() {
	s.request(ctlEvent{kind: evStopFeed})
}

// LoadIcon returns a referenced icon image for the catalog key, or nil.
// The caller must Unref the image when done.
func (s *Service) LoadIcon(key string) *icon.Image {
	return s.request(ctlEvent{kind: evLoadIcon, key: key}).img
}

// FindImageName resolves a client pid to its Windows-style executable
// path. An empty return means translation failed and the caller should
// fall back.
func (s *Service) FindImageName(pid int, isWayland bool) string {
	return s.request(ctlEvent{kind: evFindImage, pid: pid, isWayland: isWayland}).name
}

// Snapshot returns a summary of every catalog entry in key order.
func (s *Service) Snapshot() []AppInfo {
	return s.request(ctlEvent{kind: evSnapshot}).apps
}

// NotifyLocaleChanged re-syncs the active feed under a new locale. A
// no-op while no feed is active.
func (s *Service) NotifyLocaleChanged(locale string) {
	s.post(ctlEvent{kind: evLocaleChanged, locale: locale})
}

// FeedStarted implements rail.FeedListener.
func (s *Service) FeedStarted(locale string) { s.StartFeed(locale) }

// FeedStopped implements rail.FeedListener.
func (s *Service) FeedStopped() { s.StopFeed() }

// post sends a no-reply event to the worker.
func (s *Service) post(ev ctlEvent) {
	select {
	case s.ctl <- ev:
	case <-s.done:
	}
}

// request performs the single-slot request-reply rendezvous. Callers
// serialize on reqMu; the in-flight flag asserts the slot was empty.
func (s *Service) request(ev ctlEvent) ctlReply {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	if !s.inFlight.CompareAndSwap(false, true) {
		panic("appcatalog: request posted while another is in flight")
	}
	defer s.inFlight.Store(false)

	ev.reply = make(chan ctlReply, 1)
	select {
	case s.ctl <- ev:
	case <-s.done:
		return ctlReply{}
	}
	select {
	case r := <-ev.reply:
		return r
	case <-s.done:
		return ctlReply{}
	}
}

// run is the worker loop. It owns the catalog, the namespace gate, the
// filesystem watches and the path-translation subprocess.
func (s *Service) run() {
	defer close(s.done)

	if err := s.gate.PinWorker(); err != nil {
		s.log.Error().Err(err).Msg("Failed to pin catalog worker")
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create filesystem watcher")
		return
	}
	s.watcher = watcher
	defer watcher.Close()

	s.locale = systemLocale()
	s.scanAll()

	s.log.Info().
		Int("entries", s.catalog.Len()).
		Str("locale", s.locale).
		Msg("Initial application scan complete")

	for {
		if s.fatalErr != nil {
			s.log.Error().Err(s.fatalErr).Msg("Catalog worker aborting")
			return
		}

		// Bounded wait only while an icon retry is pending.
		var retryC <-chan time.Time
		if s.store.PendingRetries() > 0 {
			retryC = time.After(iconRetryInterval)
		}

		select {
		case ev := <-s.ctl:
			switch ev.kind {
			case evStop:
				return
			case evStartFeed:
				s.handleStartFeed(ev.locale)
			case evStopFeed:
				s.handleStopFeed()
				ev.reply <- ctlReply{}
			case evLoadIcon:
				ev.reply <- ctlReply{img: s.handleLoadIcon(ev.key)}
			case evFindImage:
				ev.reply <- ctlReply{name: s.handleFindImage(ev.pid, ev.isWayland)}
			case evLocaleChanged:
				s.handleLocaleChanged(ev.locale)
			case evSnapshot:
				ev.reply <- ctlReply{apps: s.handleSnapshot()}
			}
		case fe, ok := <-watcher.Events:
			if ok {
				s.handleFSEvent(fe)
			}
		case werr, ok := <-watcher.Errors:
			if ok {
				s.log.Warn().Err(werr).Msg("Filesystem watcher error")
			}
		case <-retryC:
			s.retryIcons()
		}
	}
}

// inGate runs fn in the user namespace, recording detach failure as a
// fatal worker error.
func (s *Service) inGate(fn func() error) error {
	err := s.gate.WithUserNamespace(fn)
	if errors.Is(err, nsgate.ErrDetachFailed) {
		s.fatalErr = err
	}
	return err
}

// systemLocale derives the worker's startup locale from the
// environment, dropping any encoding suffix.
func systemLocale() string {
	for _, env := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(env); v != "" {
			if dot := strings.IndexByte(v, '.'); dot >= 0 {
				return v[:dot]
			}
			return v
		}
	}
	return ""
}

// parseOptions builds the descriptor parse options for the current
// locale.
func (s *Service) parseOptions() desktop.Options {
	return desktop.Options{
		Locale:     s.locale,
		NameSuffix: s.opts.DistroDecoration(),
	}
}

// handleStartFeed rebuilds the catalog if the locale changed, then emits
// the full ordered transaction and activates delta emission.
func (s *Service) handleStartFeed(locale string) {
	if locale != "" && locale != s.locale {
		s.log.Info().Str("from", s.locale).Str("to", locale).Msg("Locale changed, rebuilding catalog")
		s.locale = locale
		s.resync()
	}
	s.feedActive = true
	s.emitFullSync()
}

// handleLocaleChanged re-syncs an active feed under a new locale.
func (s *Service) handleLocaleChanged(locale string) {
	if !s.feedActive || locale == "" || locale == s.locale {
		return
	}
	s.handleStartFeed(locale)
}

// handleStopFeed emits the provider teardown frame and clears the
// feed-active flag. Catalog entries are neither removed nor mutated.
func (s *Service) handleStopFeed() {
	s.notify(&rail.AppListFrame{
		DeleteAppProvider: true,
		AppProvider:       s.opts.ProviderName(),
	})
	s.feedActive = false
}

func (s *Service) handleLoadIcon(key string) *icon.Image {
	e := s.catalog.Get(key)
	if e == nil || e.IconImage == nil {
		return nil
	}
	return e.IconImage.Ref()
}

// handleFindImage reads the client's executable link and translates it
// to a Windows-style path. Wayland clients live in the system mount
// namespace and must not be read through the gate.
func (s *Service) handleFindImage(pid int, isWayland bool) string {
	exeLink := fmt.Sprintf("/proc/%d/exe", pid)

	var target string
	read := func() error {
		t, err := os.Readlink(exeLink)
		if err != nil {
			return err
		}
		target = t
		return nil
	}

	var err error
	if isWayland {
		err = read()
	} else {
		err = s.inGate(read)
	}
	if err != nil {
		s.log.Debug().Err(err).Int("pid", pid).Msg("Failed to read client executable link")
		return ""
	}

	return s.translateWindowsPath(target)
}

// handleSnapshot summarizes the catalog for the debug endpoint.
func (s *Service) handleSnapshot() []AppInfo {
	keys := s.catalog.OrderedKeys()
	apps := make([]AppInfo, 0, len(keys))
	for _, key := range keys {
		e := s.catalog.Get(key)
		apps = append(apps, AppInfo{
			Key:      e.Key,
			Name:     e.Name,
			Exec:     e.ExecPath(),
			IconPath: e.IconPath,
			Path:     e.Path,
		})
	}
	return apps
}

// emitFullSync streams every entry as one transaction: the first frame
// carries syncStart, the last syncEnd, all carry inSync.
func (s *Service) emitFullSync() {
	keys := s.catalog.OrderedKeys()
	for i, key := range keys {
		e := s.catalog.Get(key)
		frame := s.frameFor(e)
		frame.InSync = true
		frame.SyncStart = i == 0
		frame.SyncEnd = i == len(keys)-1
		s.notify(frame)
	}
	s.log.Debug().Int("entries", len(keys)).Msg("Emitted full application sync")
}

// frameFor builds a newAppId frame for an entry, outside any sync.
func (s *Service) frameFor(e *Entry) *rail.AppListFrame {
	provider := s.opts.ProviderName()

	var img *icon.Image
	if e.IconImage != nil {
		img = s.store.ForAppList(e.IconImage)
	} else {
		img = s.store.DefaultIcon()
	}

	return &rail.AppListFrame{
		NewAppID:      true,
		AppProvider:   provider,
		AppID:         e.Key,
		AppGroup:      provider,
		AppExecPath:   e.ExecPath(),
		AppWorkingDir: e.WorkingDir,
		AppDesc:       e.Name,
		AppIcon:       img,
	}
}

// notify sends a frame to the channel. Channel failures are the
// channel's problem; the catalog never retries them.
func (s *Service) notify(frame *rail.AppListFrame) {
	if err := s.channel.NotifyAppList(frame); err != nil && !errors.Is(err, rail.ErrNotConnected) {
		s.log.Debug().Err(err).Msg("App-list notify failed")
	}
}

// resync drops every entry and rescans under the current locale.
func (s *Service) resync() {
	for _, e := range s.catalog.Clear() {
		s.dropEntryResources(e)
	}
	s.scanAll()
}

// dropEntryResources releases an entry's icon and retry accounting.
func (s *Service) dropEntryResources(e *Entry) {
	if e.IconImage != nil {
		e.IconImage.Unref()
		e.IconImage = nil
	} else {
		s.store.ForgetPending(e.IconRetryCount)
	}
}

// retryIcons rescans entries whose icon is still unresolved and not yet
// abandoned.
func (s *Service) retryIcons() {
	var resolved []*Entry

	err := s.inGate(func() error {
		for _, key := range s.catalog.OrderedKeys() {
			e := s.catalog.Get(key)
			if e.IconImage != nil || e.IconName == "" || e.IconRetryCount >= icon.MaxIconRetry {
				continue
			}
			img, path, err := s.store.Load(e.IconName)
			if err != nil {
				e.IconRetryCount = s.store.RecordMiss(e.IconRetryCount)
				continue
			}
			s.store.ForgetPending(e.IconRetryCount)
			e.IconRetryCount = 0
			e.IconImage = img
			e.IconPath = path
			resolved = append(resolved, e)
		}
		return nil
	})
	if err != nil {
		return
	}

	// A late icon changes the published entry; refresh it on the feed.
	if s.feedActive {
		for _, e := range resolved {
			s.notify(s.frameFor(e))
		}
	}
}
