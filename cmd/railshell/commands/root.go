package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "railshell",
		Short: "railshell - remote application integration shell",
		Long: `railshell publishes local desktop applications and windows to a
remote window presentation channel: it scans .desktop entries (switching
into the user mount namespace where required), resolves and blends their
icons, streams the application catalog over a websocket feed, and
mediates remote window commands for the host compositor.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/railshell/config.yaml)")
	rootCmd.PersistentFlags().Int("log-level", -1, "log level 0-5 (0=off, 3=info, 5=trace)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logging")

	viper.BindPFlag("debug_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty_log", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path.
func GetConfigFile() string {
	return cfgFile
}
