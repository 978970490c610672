// Package desktop decodes application descriptor files into normalized
// catalog entries. Only the fields the shell honors are parsed; anything
// else in the file is ignored.
package desktop

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PrimaryGroup is the only group the shell reads.
	PrimaryGroup = "Desktop Entry"
	// Suffix is the descriptor filename extension.
	Suffix = ".desktop"
)

// RejectReason classifies why a descriptor was filtered out. Rejections
// are expected and logged at debug only.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectMissingGroup
	RejectHidden
	RejectNotApplication
	RejectNoDisplay
	RejectTerminal
	RejectOnlyShowIn
	RejectMissingName
	RejectMissingExec
)

func (r RejectReason) String() string {
	switch r {
	case RejectMissingGroup:
		return "missing [Desktop Entry] group"
	case RejectHidden:
		return "Hidden=true"
	case RejectNotApplication:
		return "Type is not Application"
	case RejectNoDisplay:
		return "NoDisplay=true"
	case RejectTerminal:
		return "Terminal=true"
	case RejectOnlyShowIn:
		return "OnlyShowIn present"
	case RejectMissingName:
		return "missing Name"
	case RejectMissingExec:
		return "missing Exec"
	default:
		return "not rejected"
	}
}

// RejectedError reports a filtered descriptor.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("desktop entry rejected: %s", e.Reason)
}

// Entry is one parsed descriptor.
type Entry struct {
	// Key is the stable catalog key derived from the filename.
	Key string
	// Name is the localized, optionally distro-decorated display name.
	Name string
	// Exec is the launch command with the trailing field code trimmed.
	Exec string
	// TryExec, when present, takes precedence as the executable path.
	TryExec string
	// WorkingDir is the Path key.
	WorkingDir string
	// IconName is the locale-resolved Icon key, fed to the icon store.
	IconName string
}

// ExecPath returns the executable path reported to the remote channel.
func (e *Entry) ExecPath() string {
	if e.TryExec != "" {
		return e.TryExec
	}
	return e.Exec
}

// Options steers locale resolution and name decoration.
type Options struct {
	// Locale is the exact tag to prefer for locale-indexed keys
	// (e.g. "en_US"). The unqualified key is the fallback.
	Locale string
	// NameSuffix is appended to the display name (" (distro)"), or "".
	NameSuffix string
}

// localized holds an unqualified value and any locale-indexed variants.
type localized struct {
	plain   string
	byTag   map[string]string
	hasAny  bool
	hasBare bool
}

func (l *localized) set(tag, value string) {
	l.hasAny = true
	if tag == "" {
		l.plain = value
		l.hasBare = true
		return
	}
	if l.byTag == nil {
		l.byTag = make(map[string]string)
	}
	l.byTag[tag] = value
}

// resolve prefers the exact locale tag, falling back to the unqualified
// key.
func (l *localized) resolve(locale string) (string, bool) {
	if locale != "" {
		if v, ok := l.byTag[locale]; ok {
			return v, true
		}
	}
	if l.hasBare {
		return l.plain, true
	}
	return "", false
}

// Parse decodes a descriptor stream. filename supplies the catalog key.
// A *RejectedError is returned for descriptors that are filtered out.
func Parse(r io.Reader, filename string, opts Options) (*Entry, error) {
	var (
		inPrimary  bool
		sawPrimary bool

		typ        string
		name       localized
		icon       localized
		exec       string
		tryExec    string
		workingDir string
		hidden     bool
		noDisplay  bool
		terminal   bool
		onlyShowIn bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			group := line[1 : len(line)-1]
			inPrimary = group == PrimaryGroup
			if inPrimary {
				sawPrimary = true
			}
			continue
		}
		if !inPrimary {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		// Split a locale-indexed key: Name[en_US]
		tag := ""
		if open := strings.IndexByte(key, '['); open >= 0 && strings.HasSuffix(key, "]") {
			tag = key[open+1 : len(key)-1]
			key = key[:open]
		}

		switch key {
		case "Type":
			typ = value
		case "Name":
			name.set(tag, value)
		case "Icon":
			icon.set(tag, value)
		case "Exec":
			exec = value
		case "TryExec":
			tryExec = value
		case "Path":
			workingDir = value
		case "Hidden":
			hidden = value == "true"
		case "NoDisplay":
			noDisplay = value == "true"
		case "Terminal":
			terminal = value == "true"
		case "OnlyShowIn":
			onlyShowIn = value != ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	// Rejection rules, first match wins.
	switch {
	case !sawPrimary:
		return nil, &RejectedError{Reason: RejectMissingGroup}
	case hidden:
		return nil, &RejectedError{Reason: RejectHidden}
	case typ != "Application":
		return nil, &RejectedError{Reason: RejectNotApplication}
	case noDisplay:
		return nil, &RejectedError{Reason: RejectNoDisplay}
	case terminal:
		return nil, &RejectedError{Reason: RejectTerminal}
	case onlyShowIn:
		return nil, &RejectedError{Reason: RejectOnlyShowIn}
	}

	displayName, ok := name.resolve(opts.Locale)
	if !ok || displayName == "" {
		return nil, &RejectedError{Reason: RejectMissingName}
	}
	if exec == "" {
		return nil, &RejectedError{Reason: RejectMissingExec}
	}

	iconName, _ := icon.resolve(opts.Locale)

	return &Entry{
		Key:        DeriveKey(filename),
		Name:       displayName + opts.NameSuffix,
		Exec:       TrimFieldCode(exec),
		TryExec:    TrimFieldCode(tryExec),
		WorkingDir: workingDir,
		IconName:   iconName,
	}, nil
}

// ParseFile decodes the descriptor at path. The caller is responsible
// for arranging the right mount-namespace view.
func ParseFile(path string, opts Options) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptor: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Base(path), opts)
}

// TrimFieldCode drops a trailing %f, %u, %F or %U from a command line.
// Only the last such field code is considered; codes elsewhere in the
// command pass through unchanged.
func TrimFieldCode(cmd string) string {
	trimmed := strings.TrimRight(cmd, " ")
	for _, code := range []string{"%f", "%u", "%F", "%U"} {
		if trimmed == code {
			return ""
		}
		if strings.HasSuffix(trimmed, " "+code) {
			return strings.TrimRight(trimmed[:len(trimmed)-len(code)], " ")
		}
	}
	return trimmed
}

// DeriveKey turns a descriptor filename into its catalog key: the
// extension is dropped, and for reverse-DNS names only the component
// after the last dot remains, matching the remote channel's expectation
// that the application id equals the last dotted component.
func DeriveKey(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), Suffix)
	if dot := strings.LastIndexByte(base, '.'); dot >= 0 {
		return base[dot+1:]
	}
	return base
}
