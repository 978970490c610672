package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IcebergThings/railshell/internal/appcatalog"
	"github.com/IcebergThings/railshell/internal/config"
	"github.com/IcebergThings/railshell/internal/desktop"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/logger"
	"github.com/IcebergThings/railshell/internal/nsgate"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Scan and print the application catalog",
	Long: `Perform a one-shot scan of the application directories and print the
resulting catalog entries.

This runs the same .desktop parsing and icon resolution as the catalog
worker, including the mount-namespace switch when WSL2_VM_ID is set,
but without starting the feed.`,
	Example: `  # Print the catalog in table format (default)
  railshell apps

  # Print the catalog in JSON format
  railshell apps --format json`,
	RunE: runApps,
}

var appsFormat string

func init() {
	rootCmd.AddCommand(appsCmd)

	appsCmd.Flags().StringVarP(&appsFormat, "format", "f", "table", "output format (table or json)")
}

// appRow is one catalog entry as printed by the apps command.
type appRow struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Exec     string `json:"exec"`
	IconPath string `json:"icon_path,omitempty"`
	Path     string `json:"path"`
}

func runApps(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts := configMgr.Get()
	logger.Init(opts.DebugLevel, true)

	gate := nsgate.New(opts.VMID)
	defer gate.Close()

	store := icon.NewStore(icon.PNGRaster{}, icon.StoreConfig{
		DefaultIconPath:        opts.DefaultIcon,
		DefaultOverlayIconPath: opts.DefaultOverlayIcon,
	})

	parseOpts := desktop.Options{Locale: cliLocale()}
	if opts.AppendDistroNameStartMenu {
		parseOpts.NameSuffix = opts.DistroDecoration()
	}

	dirs := append([]string(nil), appcatalog.BaseAppDirs...)
	dirs = append(dirs, opts.AppListPaths...)

	rows, err := scanAppDirs(gate, dirs, parseOpts, store)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]appRow, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, rows[k])
	}

	switch appsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ordered)
	case "table":
		return printAppsTable(ordered)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", appsFormat)
	}
}

// scanAppDirs performs the one-shot scan under the namespace gate. The
// gate requires a pinned thread before any scoped operation, so the
// calling goroutine is pinned first.
func scanAppDirs(gate *nsgate.Gate, dirs []string, parseOpts desktop.Options, store *icon.Store) (map[string]appRow, error) {
	if err := gate.PinWorker(); err != nil {
		return nil, fmt.Errorf("failed to pin scan thread: %w", err)
	}

	rows := make(map[string]appRow)
	for _, dir := range dirs {
		scanErr := gate.WithUserNamespace(func() error {
			collectDir(dir, parseOpts, store, rows)
			return nil
		})
		if scanErr != nil {
			return nil, fmt.Errorf("namespace switch failed: %w", scanErr)
		}
	}
	return rows, nil
}

func collectDir(dir string, parseOpts desktop.Options, store *icon.Store, rows map[string]appRow) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		dir = filepath.Join(home, dir[2:])
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), desktop.Suffix) {
			continue
		}
		path := filepath.Join(dir, de.Name())
		entry, err := desktop.ParseFile(path, parseOpts)
		if err != nil {
			continue
		}
		iconPath, _ := store.Resolve(entry.IconName)
		rows[entry.Key] = appRow{
			Key:      entry.Key,
			Name:     entry.Name,
			Exec:     entry.ExecPath(),
			IconPath: iconPath,
			Path:     path,
		}
	}
}

func printAppsTable(rows []appRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KEY\tNAME\tEXEC\tICON")
	fmt.Fprintln(w, "---\t----\t----\t----")

	for _, row := range rows {
		iconPath := row.IconPath
		if iconPath == "" {
			iconPath = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Key, row.Name, row.Exec, iconPath)
	}
	return nil
}

// cliLocale mirrors the catalog worker's locale pick: LC_ALL beats
// LANG, encoding suffix stripped.
func cliLocale() string {
	locale := os.Getenv("LC_ALL")
	if locale == "" {
		locale = os.Getenv("LANG")
	}
	if dot := strings.IndexByte(locale, '.'); dot >= 0 {
		locale = locale[:dot]
	}
	return locale
}
