package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"browsernerd/internal/browser"
	"browsernerd/internal/config"
	"browsernerd/internal/logging"
)

var (
	launchStealth     bool
	launchHeadless    bool
	launchUserDataDir string
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a browser and keep it running until interrupted",
	Long: `Spawns Chrome with remote debugging on --port and waits for SIGINT or
SIGTERM. On shutdown every tab is closed and the process is killed.

Stealth mode forces a headed browser and injects anti-detection scripts.
Log level changes in the config file apply without a restart.`,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().BoolVar(&launchStealth, "stealth", false, "Enable stealth mode (forces headed)")
	launchCmd.Flags().BoolVar(&launchHeadless, "headless", true, "Run without a window")
	launchCmd.Flags().StringVar(&launchUserDataDir, "user-data-dir", "", "Profile directory (default: per-port temp dir)")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("stealth") {
		cfg.Browser.Stealth = launchStealth
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = launchHeadless
	}
	if launchUserDataDir != "" {
		cfg.Browser.UserDataDir = launchUserDataDir
	}

	browsers := newBrowserRegistry(cfg)
	launchCtx, cancel := context.WithTimeout(ctx, timeout)
	inst, err := browsers.Launcher().Launch(launchCtx, browser.LaunchOptions{
		Port:        cfg.Browser.Port,
		Headless:    cfg.Browser.Headless,
		Stealth:     cfg.Browser.Stealth,
		UserDataDir: cfg.Browser.UserDataDir,
		UserAgent:   cfg.Browser.UserAgent,
		ExtraArgs:   cfg.Browser.ExtraArgs,
	})
	cancel()
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(configPath, func(c *config.Config) {
		if err := logging.SetLevel(c.Logging.Level); err != nil {
			logger.Warn("config reload: bad log level", zap.String("level", c.Logging.Level), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.Stringer("log_level", logging.Level()))
	})
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Browser launched on %s:%d (pid %d)\n", inst.Host, inst.Port, inst.PID)
	fmt.Fprintf(out, "Executable: %s\n", inst.Executable)
	fmt.Fprintf(out, "Headless: %t  Stealth: %t\n", inst.Headless, inst.Stealth)
	fmt.Fprintln(out, "Press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-inst.Done():
		logger.Warn("browser exited", zap.Int("pid", inst.PID))
	}

	teardownCtx, cancelTeardown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTeardown()
	if err := browsers.Teardown(teardownCtx); err != nil {
		logger.Warn("teardown incomplete", zap.Error(err))
	}
	return nil
}
