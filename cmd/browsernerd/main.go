// Command browsernerd drives a Chromium browser over CDP: it launches the
// browser, takes compressed DOM snapshots and acts on snapshot elements.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"browsernerd/internal/config"
	"browsernerd/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	sessionID  string
	host       string
	port       int
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// errReported means the failure text was already printed.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "browsernerd",
	Short: "Observe and act on live web pages over the Chrome DevTools Protocol",
	Long: `browsernerd lets an agent see a page as a compressed snapshot and act on
it later, even after the DOM has changed.

Snapshots list interactive elements with durable locators. click, type and
select re-locate the element on the live page right before acting.

Start a browser with 'browsernerd launch', then use snapshot and the action
commands from another terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if host != "" {
			cfg.Browser.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.Browser.Port = port
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		logCfg := cfg.Logging.ToLogging()
		if verbose {
			logCfg.DebugMode = true
		}
		if err := logging.Initialize(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Get(logging.CategoryBoot)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".browsernerd/config.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "default", "Logical session id")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "DevTools host (default from config)")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 9222, "DevTools port")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(
		launchCmd,
		tabsCmd,
		snapshotCmd,
		clickCmd,
		typeCmd,
		selectCmd,
		navigateCmd,
		infoCmd,
		resolveCmd,
		snapshotsCmd,
		toolCmd,
		configCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
