package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RegistryOptions wires the browser components together.
type RegistryOptions struct {
	Host              string
	Port              int
	Executable        string
	Retry             RetryPolicy
	NavigationTimeout time.Duration
	TabLoadTimeout    time.Duration
	Stealth           bool
	HTTPClient        *http.Client

	// Per-component loggers; nil means no-op.
	LauncherLogger   *zap.Logger
	ConnectionLogger *zap.Logger
	TabLogger        *zap.Logger
	Logger           *zap.Logger
}

// Registry owns the launcher, connections and tabs of a process.
type Registry struct {
	host   string
	port   int
	logger *zap.Logger

	launcher  *Launcher
	conns     *ConnectionManager
	tabs      *TabManager
	navigator *Navigator
}

// NewRegistry builds a registry. Nothing is launched or connected yet.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conns := NewConnectionManager(
		WithConnectRetry(opts.Retry),
		WithConnectionHTTPClient(opts.HTTPClient),
		WithStealthInjection(opts.Stealth),
		WithConnectionLogger(opts.ConnectionLogger),
	)
	return &Registry{
		host:   opts.Host,
		port:   opts.Port,
		logger: logger,
		launcher: NewLauncher(opts.Host,
			WithExecutable(opts.Executable),
			WithLaunchRetry(opts.Retry),
			WithLauncherHTTPClient(opts.HTTPClient),
			WithLauncherLogger(opts.LauncherLogger),
		),
		conns:     conns,
		tabs:      NewTabManager(conns, WithTabLoadTimeout(opts.TabLoadTimeout), WithTabLogger(opts.TabLogger)),
		navigator: NewNavigator(opts.NavigationTimeout, opts.Logger),
	}
}

func (r *Registry) Launcher() *Launcher               { return r.launcher }
func (r *Registry) Connections() *ConnectionManager   { return r.conns }
func (r *Registry) Tabs() *TabManager                 { return r.tabs }
func (r *Registry) Navigator() *Navigator             { return r.navigator }
func (r *Registry) Endpoint() (host string, port int) { return r.host, r.port }

// Session connects sessionID to the default browser on first use and
// seeds its tabs.
func (r *Registry) Session(ctx context.Context, sessionID string) (*Connection, error) {
	conn, err := r.conns.GetOrConnect(ctx, sessionID, r.host, r.port)
	if err != nil {
		return nil, err
	}
	if err := r.tabs.Initialize(ctx, sessionID); err != nil {
		return nil, err
	}
	return conn, nil
}

// Tab returns tabID of the session, or its active tab when tabID is empty.
func (r *Registry) Tab(ctx context.Context, sessionID, tabID string) (*Tab, error) {
	if _, err := r.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.tabs.GetTab(sessionID, tabID)
}

// Disconnect drops the session's connection and active tab pointer.
func (r *Registry) Disconnect(sessionID string) error {
	r.tabs.Forget(sessionID)
	return r.conns.Disconnect(sessionID)
}

// Teardown detaches every tab client, disconnects every session and kills
// every launched browser. Failures are logged and collected, never retried.
func (r *Registry) Teardown(ctx context.Context) error {
	var errs []error
	collect := func(stage string, err error) {
		if err == nil {
			return
		}
		r.logger.Warn("teardown step failed", zap.String("stage", stage), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", stage, err))
	}

	// The last session of each browser drops its tab clients.
	for _, sid := range r.conns.Sessions() {
		collect("detach tabs", r.tabs.CloseAll(ctx, sid))
	}

	r.conns.DisconnectAll()
	collect("kill browsers", r.launcher.KillAll(ctx))

	r.logger.Info("teardown complete", zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
