// Command ktlbus runs the ktl window bus over NATS.
//
// The app command plays the main application window; worker-host serves the
// worker windows it opens. Both share a key-value store for log batches and a
// JetStream record bucket for liveness records and uploaded logs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ktl "github.com/cortexrd/Knack-Toolkit-Library-sub001"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	configPath  string
	natsURL     string
	storeKind   string
	sqlitePath  string
	metricsAddr string
	appVersion  string
	debug       bool

	logger *logging.ZapLogger
)

var rootCmd = &cobra.Command{
	Use:           "ktlbus",
	Short:         "Message bus between an app window and its worker window",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewZapProduction(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ktlbus version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML configuration file (defaults when empty)")
	flags.StringVar(&natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	flags.StringVar(&storeKind, "store", storeNATS, "log batch store: nats, sqlite or memory")
	flags.StringVar(&sqlitePath, "sqlite-path", "ktl.db", "SQLite file for --store=sqlite")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	flags.StringVar(&appVersion, "app-version", "", "override the configured application version")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(appCmd, workerHostCmd, logCmd, versionCmd)
}

// loadConfig reads --config, or starts from defaults, and applies --app-version.
// Validation happens when the runtime is built.
func loadConfig() (ktl.Config, error) {
	cfg := ktl.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = ktl.ReadConfig(configPath); err != nil {
			return ktl.Config{}, err
		}
	}

	if appVersion != "" {
		cfg.AppVersion = appVersion
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = version
	}

	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
