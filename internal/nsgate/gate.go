// Package nsgate scopes catalog-worker filesystem operations into the
// user distribution's mount namespace. The shell may run inside the
// system distribution whose mount table does not contain the user's
// /usr/share/applications or $HOME; the gate switches the worker thread
// over for the duration of one operation and guarantees the switch back.
package nsgate

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/IcebergThings/railshell/internal/logger"
)

const (
	systemNSPath = "/proc/self/ns/mnt"
	// The user distribution's init is PID 2 as seen from the system
	// distribution.
	userNSPath = "/proc/2/ns/mnt"
)

var (
	// ErrReentered is returned when a scoped operation is entered while
	// another is active on the worker.
	ErrReentered = errors.New("nsgate: namespace gate entered while attached")
	// ErrDetachFailed reports a failed switch back to the system
	// namespace. Callers must treat this as fatal for the worker.
	ErrDetachFailed = errors.New("nsgate: failed to return to system namespace")
)

// Gate holds the system and user mount-namespace handles. A Gate without
// handles is valid and runs every operation in the current namespace.
type Gate struct {
	systemNS *os.File
	userNS   *os.File
	attached bool
	pinned   bool
}

// New opens the namespace handles when vmID indicates a split-distro
// setup (WSL2_VM_ID set). Failure to open either handle disables the
// gate rather than failing the shell.
func New(vmID string) *Gate {
	g := &Gate{}
	if vmID == "" {
		return g
	}

	log := logger.WithComponent("nsgate")
	sysNS, err := os.Open(systemNSPath)
	if err != nil {
		log.Warn().Err(err).Str("path", systemNSPath).Msg("Cannot open system mount namespace, gate disabled")
		return g
	}
	userNS, err := os.Open(userNSPath)
	if err != nil {
		log.Warn().Err(err).Str("path", userNSPath).Msg("Cannot open user mount namespace, gate disabled")
		sysNS.Close()
		return g
	}

	g.systemNS = sysNS
	g.userNS = userNS
	log.Info().Msg("Mount namespace gate armed")
	return g
}

// Enabled reports whether scoped operations actually switch namespaces.
func (g *Gate) Enabled() bool {
	return g.systemNS != nil && g.userNS != nil
}

// Attached reports whether the worker currently holds the user
// namespace. Must be false whenever a scoped operation returns.
func (g *Gate) Attached() bool {
	return g.attached
}

// PinWorker binds the calling goroutine to its OS thread and detaches
// its filesystem view from the rest of the process, so namespace
// switches never leak into the compositor thread. Must be called once at
// worker start, before any scoped operation.
func (g *Gate) PinWorker() error {
	runtime.LockOSThread()
	g.pinned = true
	if !g.Enabled() {
		return nil
	}
	if err := unix.Unshare(unix.CLONE_FS); err != nil {
		return fmt.Errorf("nsgate: failed to unshare filesystem view: %w", err)
	}
	return nil
}

// WithUserNamespace runs fn inside the user mount namespace and switches
// back on every path, including fn failure. Reentry is forbidden. An
// ErrDetachFailed return supersedes fn's error and must abort the
// worker.
func (g *Gate) WithUserNamespace(fn func() error) error {
	if g.attached {
		return ErrReentered
	}
	if !g.Enabled() {
		return fn()
	}
	if !g.pinned {
		return errors.New("nsgate: worker not pinned")
	}

	if err := unix.Setns(int(g.userNS.Fd()), unix.CLONE_NEWNS); err != nil {
		return fmt.Errorf("nsgate: failed to enter user namespace: %w", err)
	}
	g.attached = true

	fnErr := fn()

	if err := unix.Setns(int(g.systemNS.Fd()), unix.CLONE_NEWNS); err != nil {
		// Leaving the worker attached would poison every later system
		// namespace operation.
		logger.WithComponent("nsgate").Error().Err(err).Msg("Failed to detach from user namespace")
		return fmt.Errorf("%w: %v", ErrDetachFailed, err)
	}
	g.attached = false

	return fnErr
}

// Close releases the namespace handles.
func (g *Gate) Close() {
	if g.systemNS != nil {
		g.systemNS.Close()
		g.systemNS = nil
	}
	if g.userNS != nil {
		g.userNS.Close()
		g.userNS = nil
	}
}
