package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IcebergThings/railshell/internal/appcatalog"
	"github.com/IcebergThings/railshell/internal/config"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/logger"
	"github.com/IcebergThings/railshell/internal/nsgate"
	"github.com/IcebergThings/railshell/internal/rail"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the application catalog feed and RAIL channel",
	Long: `Run the application catalog service and the websocket RAIL channel.

The catalog worker scans the application directories, watches them for
changes, and streams catalog updates to the remote subscriber. Window
presentation is driven by the compositor embedding this shell; in
standalone mode inbound window commands are logged and dropped.`,
	Example: `  # Run with defaults (environment-driven configuration)
  railshell serve

  # Run with a config file and verbose logging
  railshell serve --config /etc/railshell/config.yaml --log-level 4`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "RAIL channel listen address (default :8321)")
	viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}

// feedRelay forwards subscriber connect/disconnect to the catalog
// service once it exists. The channel is built before the service, so
// the target is late-bound.
type feedRelay struct {
	svc *appcatalog.Service
}

func (r *feedRelay) FeedStarted(locale string) {
	if r.svc != nil {
		r.svc.FeedStarted(locale)
	}
}

func (r *feedRelay) FeedStopped() {
	if r.svc != nil {
		r.svc.FeedStopped()
	}
}

// standaloneHandler absorbs window commands when no compositor host is
// attached.
type standaloneHandler struct{}

func (standaloneHandler) HandleWindowCommand(cmd rail.WindowCommand) {
	logger.WithComponent("serve").Debug().
		Str("kind", string(cmd.Kind)).
		Uint64("window", uint64(cmd.Window)).
		Msg("Window command dropped (no compositor attached)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}
	opts := configMgr.Get()

	if viper.IsSet("debug_level") {
		if lvl := viper.GetInt("debug_level"); lvl >= 0 {
			opts.DebugLevel = lvl
		}
	}
	logger.Init(opts.DebugLevel, viper.GetBool("pretty_log"))
	log := logger.WithComponent("serve")

	if viper.IsSet("listen_addr") {
		if addr := viper.GetString("listen_addr"); addr != "" {
			opts.ListenAddr = addr
		}
	}

	gate := nsgate.New(opts.VMID)
	defer gate.Close()
	log.Info().Bool("ns_gate", gate.Enabled()).Str("provider", opts.ProviderName()).Msg("Starting")

	store := icon.NewStore(icon.PNGRaster{}, icon.StoreConfig{
		DefaultIconPath:        opts.DefaultIcon,
		DefaultOverlayIconPath: opts.DefaultOverlayIcon,
		BlendOverlayAppList:    opts.BlendOverlayIconAppList,
		BlendOverlayTaskbar:    opts.BlendOverlayIconTaskbar,
	})

	relay := &feedRelay{}
	channel := rail.NewWebsocketChannel(standaloneHandler{}, relay, opts.LocalMove)

	svc := appcatalog.NewService(opts, gate, store, channel)
	relay.svc = svc
	svc.Start()
	defer svc.Stop()

	channel.HandleDebug("/apps", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.Snapshot())
	})

	localeWatcher, err := appcatalog.NewLocaleWatcher(svc)
	if err != nil {
		log.Warn().Err(err).Msg("Locale watcher unavailable")
	} else {
		defer localeWatcher.Close()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- channel.Start(opts.ListenAddr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("rail channel failed: %w", err)
	case <-sigChan:
		log.Info().Msg("Shutting down")
		return nil
	}
}
