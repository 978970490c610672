// Package config loads the shell options from the environment, with an
// optional YAML file supplying defaults for anything the environment
// leaves unset. The environment always wins: the shell is normally
// configured by its launcher through WESTON_RDPRAIL_SHELL_* variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/IcebergThings/railshell/internal/logger"
)

// IconDisabled is the literal value that turns a default icon off.
const IconDisabled = "disabled"

// Options holds every tunable the shell honors.
type Options struct {
	// Distro identity. Taken from WSL2_DISTRO_NAME, falling back to
	// WSL_DISTRO_NAME.
	DistroName string `yaml:"distro_name"`

	// VMID enables the mount-namespace gate when non-empty (WSL2_VM_ID).
	VMID string `yaml:"vm_id"`

	// Default icon paths, or "disabled" (WSL2_DEFAULT_APP_ICON,
	// WSL2_DEFAULT_APP_OVERLAY_ICON).
	DefaultIcon        string `yaml:"default_app_icon"`
	DefaultOverlayIcon string `yaml:"default_app_overlay_icon"`

	// AppListPaths holds extra application directories parsed from the
	// colon-separated WESTON_RDPRAIL_SHELL_APP_LIST_PATH.
	AppListPaths []string `yaml:"app_list_paths"`

	AllowZap                  bool `yaml:"allow_zap"`
	AllowAltF4Close           bool `yaml:"allow_alt_f4_to_close_app"`
	LocalMove                 bool `yaml:"local_move"`
	AppendDistroNameStartMenu bool `yaml:"append_distroname_startmenu"`
	BlendOverlayIconAppList   bool `yaml:"blend_overlay_icon_applist"`
	BlendOverlayIconTaskbar   bool `yaml:"blend_overlay_icon_taskbar"`
	UseWSLPath                bool `yaml:"use_wslpath"`

	// DebugLevel is the 0..5 shell log level
	// (WESTON_RDPRAIL_SHELL_DEBUG_LEVEL).
	DebugLevel int `yaml:"debug_level"`

	// ListenAddr is where the websocket RAIL transport listens.
	ListenAddr string `yaml:"listen_addr"`

	// FocusProxyCommand is the helper shell client spawned to hold the
	// focus-proxy surface.
	FocusProxyCommand string `yaml:"focus_proxy_command"`

	// WSLPathHelper is the path translation helper binary.
	WSLPathHelper string `yaml:"wslpath_helper"`
}

// envBindings maps viper keys onto their environment variables.
var envBindings = map[string][]string{
	"distro_name":                 {"WSL2_DISTRO_NAME", "WSL_DISTRO_NAME"},
	"vm_id":                       {"WSL2_VM_ID"},
	"default_app_icon":            {"WSL2_DEFAULT_APP_ICON"},
	"default_app_overlay_icon":    {"WSL2_DEFAULT_APP_OVERLAY_ICON"},
	"app_list_path":               {"WESTON_RDPRAIL_SHELL_APP_LIST_PATH"},
	"allow_zap":                   {"WESTON_RDPRAIL_SHELL_ALLOW_ZAP"},
	"allow_alt_f4_to_close_app":   {"WESTON_RDPRAIL_SHELL_ALLOW_ALT_F4_TO_CLOSE_APP"},
	"local_move":                  {"WESTON_RDPRAIL_SHELL_LOCAL_MOVE"},
	"append_distroname_startmenu": {"WESTON_RDPRAIL_SHELL_APPEND_DISTRONAME_STARTMENU"},
	"blend_overlay_icon_applist":  {"WESTON_RDPRAIL_SHELL_BLEND_OVERLAY_ICON_APPLIST"},
	"blend_overlay_icon_taskbar":  {"WESTON_RDPRAIL_SHELL_BLEND_OVERLAY_ICON_TASKBAR"},
	"use_wslpath":                 {"WESTON_RDPRAIL_SHELL_USE_WSLPATH"},
	"debug_level":                 {"WESTON_RDPRAIL_SHELL_DEBUG_LEVEL"},
}

// Manager handles option loading and persistence.
type Manager struct {
	configPath string
	opts       *Options
	mu         sync.RWMutex
}

// NewManager loads options from the config file (if present) and the
// environment. An empty configFile selects the default location.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			actualConfigPath = filepath.Join(homeDir, ".config", "railshell", "config.yaml")
		}
	}

	m := &Manager{configPath: actualConfigPath}
	if err := m.load(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("distro", m.opts.DistroName).
		Int("extra_app_dirs", len(m.opts.AppListPaths)).
		Msg("Options loaded")

	return m, nil
}

// getDefaults returns the built-in option values.
func getDefaults() *Options {
	return &Options{
		AllowZap:                  false,
		AllowAltF4Close:           true,
		LocalMove:                 false,
		AppendDistroNameStartMenu: true,
		BlendOverlayIconAppList:   true,
		BlendOverlayIconTaskbar:   false,
		UseWSLPath:                false,
		DebugLevel:                logger.DefaultDebugLevel,
		ListenAddr:                ":8321",
		WSLPathHelper:             "/usr/bin/wslpath",
	}
}

// ParseBool interprets the shell's boolean environment convention:
// "true"/"false" (case-sensitive) or "1"/"0". Anything else returns the
// supplied default.
func ParseBool(s string, def bool) bool {
	switch s {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func (m *Manager) load() error {
	opts := getDefaults()

	// File layer first, so the environment can override it.
	if m.configPath != "" {
		data, err := os.ReadFile(m.configPath)
		if err == nil {
			if err := yaml.Unmarshal(data, opts); err != nil {
				return fmt.Errorf("failed to parse config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	v := viper.New()
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	applyEnv(opts, v)

	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
	return nil
}

// applyEnv overlays any set environment variables onto opts.
func applyEnv(opts *Options, v *viper.Viper) {
	if v.IsSet("distro_name") {
		opts.DistroName = v.GetString("distro_name")
	}
	if v.IsSet("vm_id") {
		opts.VMID = v.GetString("vm_id")
	}
	if v.IsSet("default_app_icon") {
		opts.DefaultIcon = v.GetString("default_app_icon")
	}
	if v.IsSet("default_app_overlay_icon") {
		opts.DefaultOverlayIcon = v.GetString("default_app_overlay_icon")
	}
	if v.IsSet("app_list_path") {
		opts.AppListPaths = SplitPathList(v.GetString("app_list_path"))
	}

	boolFields := map[string]*bool{
		"allow_zap":                   &opts.AllowZap,
		"allow_alt_f4_to_close_app":   &opts.AllowAltF4Close,
		"local_move":                  &opts.LocalMove,
		"append_distroname_startmenu": &opts.AppendDistroNameStartMenu,
		"blend_overlay_icon_applist":  &opts.BlendOverlayIconAppList,
		"blend_overlay_icon_taskbar":  &opts.BlendOverlayIconTaskbar,
		"use_wslpath":                 &opts.UseWSLPath,
	}
	for key, dst := range boolFields {
		if v.IsSet(key) {
			*dst = ParseBool(v.GetString(key), *dst)
		}
	}

	if v.IsSet("debug_level") {
		if lvl, err := strconv.Atoi(v.GetString("debug_level")); err == nil && lvl >= 0 && lvl <= 5 {
			opts.DebugLevel = lvl
		}
	}
}

// SplitPathList splits a colon-separated directory list, dropping empty
// segments.
func SplitPathList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ":") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a copy of the current options.
func (m *Manager) Get() *Options {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.opts == nil {
		return getDefaults()
	}
	opts := *m.opts
	opts.AppListPaths = append([]string(nil), m.opts.AppListPaths...)
	return &opts
}

// Save writes the current options back to the config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	opts := m.opts
	m.mu.RUnlock()

	if opts == nil {
		opts = getDefaults()
	}
	if m.configPath == "" {
		return fmt.Errorf("no config path available")
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Options saved")
	return nil
}

// GetConfigPath returns the path to the config file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// DistroDecoration returns the " (distro)" suffix appended to start-menu
// entry names, or "" when decoration is off.
func (o *Options) DistroDecoration() string {
	if !o.AppendDistroNameStartMenu || o.DistroName == "" {
		return ""
	}
	return " (" + o.DistroName + ")"
}

// ProviderName identifies this shell as an application provider on the
// remote channel.
func (o *Options) ProviderName() string {
	if o.DistroName != "" {
		return o.DistroName
	}
	return "railshell"
}
