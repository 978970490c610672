// Package rail models the remote window presentation channel: the
// app-list feed frames, the window commands arriving from the remote
// side, and a websocket transport carrying both.
package rail

import (
	"errors"

	"github.com/IcebergThings/railshell/internal/icon"
)

// WindowID identifies a window on the channel. It equals the shell's
// surface id.
type WindowID uint64

// MinMaxInfo advertises a window's size limits to the remote side.
type MinMaxInfo struct {
	MinWidth  int `json:"min_width"`
	MinHeight int `json:"min_height"`
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
}

// ErrNotConnected is returned by notifications while no remote
// subscriber is attached. Callers ignore it; the channel owns its own
// reconnection.
var ErrNotConnected = errors.New("rail: no remote subscriber connected")

// Channel is the outbound capability surface of the remote presentation
// channel.
type Channel interface {
	NotifyAppList(frame *AppListFrame) error
	SetWindowIcon(id WindowID, img *icon.Image) error
	NotifyWindowProxySurface(id WindowID) error
	StartWindowMove(id WindowID, x, y int) error
	EndWindowMove(id WindowID) error
	SendWindowMinMaxInfo(id WindowID, info MinMaxInfo) error
	NotifyWindowZOrderChange(ids []WindowID) error

	// PrimaryOutput names the output the remote side considers primary,
	// or "".
	PrimaryOutput() string
	// SupportsLocalMove reports whether the remote side takes over move
	// grabs.
	SupportsLocalMove() bool
}

// CommandKind enumerates remote-initiated window operations.
type CommandKind string

const (
	CommandRestore  CommandKind = "restore"
	CommandMinimize CommandKind = "minimize"
	CommandMaximize CommandKind = "maximize"
	CommandSnap     CommandKind = "snap"
	CommandMove     CommandKind = "move"
	CommandActivate CommandKind = "activate"
	CommandClose    CommandKind = "close"
)

// WindowCommand is one inbound window operation. X/Y/W/H are meaningful
// for snap and move.
type WindowCommand struct {
	Kind   CommandKind `json:"kind"`
	Window WindowID    `json:"window"`
	X      int         `json:"x,omitempty"`
	Y      int         `json:"y,omitempty"`
	W      int         `json:"w,omitempty"`
	H      int         `json:"h,omitempty"`
}

// CommandHandler receives inbound window commands on the host thread.
type CommandHandler interface {
	HandleWindowCommand(cmd WindowCommand)
}

// FeedListener is told when the remote subscriber connects and
// disconnects, driving the catalog feed lifecycle.
type FeedListener interface {
	FeedStarted(locale string)
	FeedStopped()
}
