package appcatalog

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// wslpathTimeout bounds one helper invocation.
const wslpathTimeout = 2 * time.Second

// translateWindowsPath converts a Linux path into the Windows-style path
// the remote side expects. When the wslpath helper is configured and
// present it is invoked with the path as its argument and its stdout,
// trimmed of trailing newlines, is the result. Every failure path falls
// back to the pure transformation. Runs inside the namespace gate.
func (s *Service) translateWindowsPath(linuxPath string) string {
	if linuxPath == "" {
		return ""
	}

	var result string
	err := s.inGate(func() error {
		result = s.runWSLPath(linuxPath)
		return nil
	})
	if err != nil || result == "" {
		return fallbackWindowsPath(linuxPath)
	}
	return result
}

// runWSLPath invokes the helper, returning "" on any failure.
func (s *Service) runWSLPath(linuxPath string) string {
	if !s.opts.UseWSLPath || s.opts.WSLPathHelper == "" {
		return ""
	}
	if _, err := os.Stat(s.opts.WSLPathHelper); err != nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), wslpathTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.opts.WSLPathHelper, "-w", linuxPath)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		s.log.Debug().Err(err).Str("path", linuxPath).Msg("wslpath helper failed")
		return ""
	}

	return strings.TrimRight(out.String(), "\r\n")
}

// fallbackWindowsPath is the pure default: every forward slash becomes a
// backslash.
func fallbackWindowsPath(linuxPath string) string {
	return strings.ReplaceAll(linuxPath, "/", "\\")
}
