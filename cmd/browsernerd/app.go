package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"browsernerd/internal/browser"
	"browsernerd/internal/config"
	"browsernerd/internal/dom"
	"browsernerd/internal/logging"
	"browsernerd/internal/sampler"
	"browsernerd/internal/snapshot"
	"browsernerd/internal/tools"
)

// slowTool is the duration above which a tool call is logged as slow.
const slowTool = 10 * time.Second

// app is everything a command needs to reach the browser.
type app struct {
	browsers *browser.Registry
	store    snapshot.Store
	tools    *tools.Registry
}

func retryPolicy(c *config.Config) browser.RetryPolicy {
	return browser.RetryPolicy{
		Attempts:    c.GetRetryAttempts(),
		Interval:    c.GetRetryInterval(),
		Exponential: c.Browser.Retry.Exponential,
		MaxElapsed:  c.GetRetryMaxElapsed(),
	}
}

func newBrowserRegistry(c *config.Config) *browser.Registry {
	return browser.NewRegistry(browser.RegistryOptions{
		Host:              c.Browser.Host,
		Port:              c.Browser.Port,
		Executable:        c.Browser.ExecutablePath,
		Retry:             retryPolicy(c),
		NavigationTimeout: c.GetNavigationTimeout(),
		TabLoadTimeout:    c.GetTabLoadTimeout(),
		Stealth:           c.Browser.Stealth,
		LauncherLogger:    logging.Get(logging.CategoryLauncher),
		ConnectionLogger:  logging.Get(logging.CategoryConnection),
		TabLogger:         logging.Get(logging.CategoryTabs),
		Logger:            logging.Get(logging.CategoryBoot),
	})
}

// openStore opens the configured snapshot store, creating the sqlite
// directory on first use.
func openStore(c *config.Config) (snapshot.Store, error) {
	if c.Snapshot.Backend == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(c.Snapshot.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	store, err := snapshot.Open(c.Snapshot, logging.Get(logging.CategorySnapshot))
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return store, nil
}

// newApp wires the browser registry, snapshot store and tool registry.
func newApp(c *config.Config) (*app, error) {
	if err := dom.CheckScripts(); err != nil {
		return nil, fmt.Errorf("in-page scripts: %w", err)
	}

	store, err := openStore(c)
	if err != nil {
		return nil, err
	}

	browsers := newBrowserRegistry(c)
	samplerLog := logging.Get(logging.CategorySampler)
	counter := sampler.NewCounter(c.Sampler.Tokenizer, samplerLog)

	reg, err := tools.NewBrowserTools(tools.Deps{
		Backend:   tools.NewRegistryBackend(browsers, logging.Get(logging.CategoryTabs)),
		Store:     store,
		Extractor: dom.NewExtractor(logging.Get(logging.CategoryExtractor)),
		Sampler:   sampler.New(sampler.NewDownsampler(counter, samplerLog), samplerLog),
		Resolver:  dom.NewResolver(c.Resolver.MinConfidence, logging.Get(logging.CategoryResolver)),
		Actions:   dom.NewActions(c.Resolver.MinConfidence, logging.Get(logging.CategoryActions)),
		SamplerOptions: sampler.Options{
			MaxTokens:     c.Sampler.MaxTokens,
			MaxIterations: c.Sampler.MaxIterations,
			FilterHidden:  c.Sampler.FilterHidden,
		},
		MaxAttempts:   c.Sampler.MaxAttempts,
		MinConfidence: c.Resolver.MinConfidence,
		Logger:        logging.Get(logging.CategoryTools),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &app{browsers: browsers, store: store, tools: reg}, nil
}

// close drops this process's connection. The browser and its tabs stay up.
func (a *app) close() {
	if err := a.browsers.Disconnect(sessionID); err != nil {
		logger.Debug("disconnect", zap.String("session", sessionID), zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("close snapshot store", zap.Error(err))
	}
}

// runTool executes one tool for the CLI session and prints its text.
func runTool(cmd *cobra.Command, name string, args map[string]any) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	if err := lookupTool(a.tools, name); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return a.execute(tools.WithSessionID(ctx, sessionID), cmd, name, args)
}

func (a *app) execute(ctx context.Context, cmd *cobra.Command, name string, args map[string]any) error {
	timer := logging.StartTimer(logging.CategoryTools, name)
	res, err := a.tools.Execute(ctx, name, args)
	timer.StopWithThreshold(slowTool)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Result)
		return errReported
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Result)
	return nil
}
