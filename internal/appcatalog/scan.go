package appcatalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/IcebergThings/railshell/internal/desktop"
	"github.com/IcebergThings/railshell/internal/rail"
)

// appDirs returns the base set plus the configured extras.
func (s *Service) appDirs() []string {
	dirs := append([]string(nil), BaseAppDirs...)
	dirs = append(dirs, s.opts.AppListPaths...)
	return dirs
}

// scanAll walks every application directory, registering a filesystem
// watch for each one that exists and parsing every descriptor in it.
func (s *Service) scanAll() {
	for _, dir := range s.appDirs() {
		s.scanDir(dir)
	}
}

// scanDir registers a watch on dir and feeds its descriptors through the
// parser. Home-relative directories are expanded inside the user
// namespace, where $HOME actually resolves.
func (s *Service) scanDir(dir string) {
	var files []string

	err := s.inGate(func() error {
		if strings.HasPrefix(dir, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil
			}
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}

		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil
		}

		if err := s.watcher.Add(dir); err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("Failed to watch application directory")
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("Failed to enumerate application directory")
			return nil
		}
		for _, ent := range entries {
			if ent.IsDir() || !strings.HasSuffix(ent.Name(), desktop.Suffix) {
				continue
			}
			files = append(files, filepath.Join(dir, ent.Name()))
		}
		return nil
	})
	if err != nil {
		return
	}

	for _, path := range files {
		s.upsertFromFile(path, false)
	}
}

// handleFSEvent reacts to descriptor create/modify/delete notifications.
// Deltas are emitted only while the feed is active, always outside any
// sync.
func (s *Service) handleFSEvent(fe fsnotify.Event) {
	if !strings.HasSuffix(fe.Name, desktop.Suffix) {
		return
	}

	switch {
	case fe.Op.Has(fsnotify.Create) || fe.Op.Has(fsnotify.Write):
		s.upsertFromFile(fe.Name, true)
	case fe.Op.Has(fsnotify.Remove) || fe.Op.Has(fsnotify.Rename):
		s.removeByPath(fe.Name, true)
	}
}

// upsertFromFile parses one descriptor and installs the result. A
// descriptor that no longer parses (or is now filtered) deletes the
// entry it previously produced. emit controls delta frames.
func (s *Service) upsertFromFile(path string, emit bool) {
	var parsed *desktop.Entry

	err := s.inGate(func() error {
		e, err := desktop.ParseFile(path, s.parseOptions())
		if err != nil {
			return err
		}
		parsed = e
		return nil
	})

	if err != nil {
		var rej *desktop.RejectedError
		if errors.As(err, &rej) {
			s.log.Debug().Str("path", path).Str("reason", rej.Reason.String()).Msg("Descriptor rejected")
		} else {
			s.log.Debug().Err(err).Str("path", path).Msg("Descriptor unreadable")
		}
		// A previously published entry whose descriptor is now rejected
		// disappears from the catalog.
		s.removeByPath(path, emit)
		return
	}

	entry := &Entry{
		Key:        parsed.Key,
		Name:       parsed.Name,
		Exec:       parsed.Exec,
		TryExec:    parsed.TryExec,
		WorkingDir: parsed.WorkingDir,
		IconName:   parsed.IconName,
		Path:       path,
	}
	s.loadEntryIcon(entry)

	if prev := s.catalog.Upsert(entry); prev != nil {
		s.dropEntryResources(prev)
	}

	if emit && s.feedActive {
		s.notify(s.frameFor(entry))
	}
}

// loadEntryIcon attempts the first icon resolution for a new entry,
// starting retry accounting on a miss.
func (s *Service) loadEntryIcon(e *Entry) {
	if e.IconName == "" {
		return
	}
	err := s.inGate(func() error {
		img, path, err := s.store.Load(e.IconName)
		if err != nil {
			return err
		}
		e.IconImage = img
		e.IconPath = path
		return nil
	})
	if err != nil && e.IconImage == nil {
		e.IconRetryCount = s.store.RecordMiss(e.IconRetryCount)
	}
}

// removeByPath deletes the entry derived from a descriptor path, if that
// path is the one the entry was parsed from.
func (s *Service) removeByPath(path string, emit bool) {
	key := desktop.DeriveKey(path)
	e := s.catalog.Get(key)
	if e == nil || e.Path != path {
		return
	}

	s.catalog.Delete(key)
	s.dropEntryResources(e)

	if emit && s.feedActive {
		s.notify(&rail.AppListFrame{
			DeleteAppID: true,
			AppProvider: s.opts.ProviderName(),
			AppID:       key,
		})
	}
}
