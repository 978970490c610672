package appcatalog

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/IcebergThings/railshell/internal/logger"
)

const (
	locale1Path  = "/org/freedesktop/locale1"
	locale1Iface = "org.freedesktop.locale1"
)

// LocaleWatcher listens for system locale changes on D-Bus and re-syncs
// the active application feed under the new locale.
type LocaleWatcher struct {
	conn    *dbus.Conn
	svc     *Service
	signals chan *dbus.Signal
}

// NewLocaleWatcher subscribes to org.freedesktop.locale1 property
// changes on the system bus.
func NewLocaleWatcher(svc *Service) (*LocaleWatcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(locale1Path),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to match locale1 signals: %w", err)
	}

	w := &LocaleWatcher{
		conn:    conn,
		svc:     svc,
		signals: make(chan *dbus.Signal, 16),
	}
	conn.Signal(w.signals)
	go w.watch()
	return w, nil
}

func (w *LocaleWatcher) watch() {
	log := logger.WithComponent("localewatch")
	for sig := range w.signals {
		locale, ok := localeFromSignal(sig)
		if !ok {
			continue
		}
		log.Info().Str("locale", locale).Msg("System locale changed")
		w.svc.NotifyLocaleChanged(locale)
	}
}

// localeFromSignal digs the LANG entry out of a locale1
// PropertiesChanged signal.
func localeFromSignal(sig *dbus.Signal) (string, bool) {
	if len(sig.Body) < 2 {
		return "", false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != locale1Iface {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	variant, ok := changed["Locale"]
	if !ok {
		return "", false
	}
	assignments, ok := variant.Value().([]string)
	if !ok {
		return "", false
	}
	for _, kv := range assignments {
		if after, found := strings.CutPrefix(kv, "LANG="); found {
			if dot := strings.IndexByte(after, '.'); dot >= 0 {
				after = after[:dot]
			}
			return after, after != ""
		}
	}
	return "", false
}

// Close tears the subscription down.
func (w *LocaleWatcher) Close() {
	w.conn.RemoveSignal(w.signals)
	w.conn.Close()
}
