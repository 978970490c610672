package shell

import (
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/logger"
)

const (
	// respawnWindow bounds the death-rate check and the early-death check.
	respawnWindow = 30 * time.Second
	// respawnMaxDeaths is how many deaths inside the window we tolerate
	// before giving up on the helper.
	respawnMaxDeaths = 5
)

// respawner keeps the shell's helper client alive. The helper owns the
// focus-proxy surface; without it remote-side focus tracking degrades,
// so a dead helper is relaunched, with two escape hatches: a crash loop
// gives up, and a death right after compositor startup exits the
// compositor since the session is unusable anyway.
type respawner struct {
	command string
	comp    compositor.Compositor

	mu        sync.Mutex
	cmd       *exec.Cmd
	running   bool
	gaveUp    bool
	deaths    []time.Time
	startedAt time.Time
	firstRun  bool
}

func newRespawner(command string, comp compositor.Compositor) *respawner {
	return &respawner{
		command:  command,
		comp:     comp,
		firstRun: true,
	}
}

// launch starts the helper if it is not already running.
func (r *respawner) launch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.gaveUp {
		return
	}
	log := logger.WithComponent("respawn")

	fields := strings.Fields(r.command)
	if len(fields) == 0 {
		r.gaveUp = true
		return
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Str("command", r.command).Msg("Failed to start helper client")
		r.gaveUp = true
		return
	}
	r.cmd = cmd
	r.running = true
	first := r.firstRun
	r.firstRun = false
	if first {
		r.startedAt = time.Now()
	}
	log.Info().Int("pid", cmd.Process.Pid).Msg("Helper client started")

	go r.reap(cmd, first)
}

func (r *respawner) reap(cmd *exec.Cmd, firstRun bool) {
	err := cmd.Wait()
	log := logger.WithComponent("respawn")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false

	now := time.Now()
	r.deaths = append(r.deaths, now)
	recent := 0
	for _, t := range r.deaths {
		if now.Sub(t) < respawnWindow {
			recent++
		}
	}

	log.Warn().Err(err).Int("recent_deaths", recent).Msg("Helper client exited")

	// A helper that cannot survive compositor startup means the session
	// never becomes usable.
	if firstRun && now.Sub(r.startedAt) < respawnWindow {
		log.Error().Msg("Helper client died during startup, shutting down")
		r.comp.ScheduleIdle(r.comp.Exit)
		return
	}
	if recent > respawnMaxDeaths {
		log.Error().Msg("Helper client crash loop, giving up")
		r.gaveUp = true
	}
}

// needsRespawn reports whether the helper should be relaunched.
func (r *respawner) needsRespawn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.running && !r.gaveUp
}

// ownsPID reports whether pid belongs to the live helper process.
func (r *respawner) ownsPID(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && r.cmd != nil && r.cmd.Process != nil && r.cmd.Process.Pid == pid
}

// stop kills the helper and disables respawning.
func (r *respawner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gaveUp = true
	if r.running && r.cmd != nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
}
