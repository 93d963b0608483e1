package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/js"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Connection binds a logical session to one CDP page target.
type Connection struct {
	SessionID   string
	Host        string
	Port        int
	Target      TargetInfo
	Browser     *rod.Browser
	Page        *rod.Page
	ConnectedAt time.Time

	cancel context.CancelFunc
}

// Addr returns host:port of the browser behind the connection.
func (c *Connection) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Evaluate runs fn against the connection's target page.
func (c *Connection) Evaluate(ctx context.Context, fn *js.Function, arg any, out any) error {
	return EvalPage(ctx, c.Page, fn, arg, out)
}

func (c *Connection) close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// ConnectionManager holds one CDP connection per session. Several sessions
// may point at the same browser.
type ConnectionManager struct {
	retry      RetryPolicy
	httpClient *http.Client
	stealth    bool
	logger     *zap.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// ConnectionOption configures a ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithConnectRetry sets the connect retry policy.
func WithConnectRetry(p RetryPolicy) ConnectionOption {
	return func(m *ConnectionManager) { m.retry = p }
}

// WithConnectionHTTPClient overrides the DevTools HTTP client.
func WithConnectionHTTPClient(c *http.Client) ConnectionOption {
	return func(m *ConnectionManager) { m.httpClient = c }
}

// WithStealthInjection toggles the new-document stealth scripts. On by default.
func WithStealthInjection(enabled bool) ConnectionOption {
	return func(m *ConnectionManager) { m.stealth = enabled }
}

// WithConnectionLogger sets the logger.
func WithConnectionLogger(logger *zap.Logger) ConnectionOption {
	return func(m *ConnectionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager(opts ...ConnectionOption) *ConnectionManager {
	m := &ConnectionManager{
		retry:   DefaultRetryPolicy(),
		stealth: true,
		logger:  zap.NewNop(),
		conns:   make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DevTools returns an HTTP DevTools client sharing the manager's transport.
func (m *ConnectionManager) DevTools(host string, port int) *DevTools {
	return NewDevTools(host, port, m.httpClient)
}

// Connect attaches sessionID to targetID on host:port, or to the first page
// target when targetID is empty. An existing connection for the session is replaced.
func (m *ConnectionManager) Connect(ctx context.Context, sessionID, host string, port int, targetID string) (*Connection, error) {
	dt := m.DevTools(host, port)

	var conn *Connection
	attempts, err := m.retry.Do(ctx, func() error {
		c, err := m.dial(ctx, dt, sessionID, host, port, targetID)
		if err != nil {
			m.logger.Debug("connect attempt failed",
				zap.String("session", sessionID),
				zap.String("addr", dt.BaseURL()),
				zap.Error(err))
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Host: host, Port: port, Attempts: attempts, Err: err}
	}

	m.mu.Lock()
	prev := m.conns[sessionID]
	m.conns[sessionID] = conn
	m.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	m.logger.Info("session connected",
		zap.String("session", sessionID),
		zap.String("target", conn.Target.ID),
		zap.String("url", conn.Target.URL),
		zap.Int("attempts", attempts))
	return conn, nil
}

func (m *ConnectionManager) dial(ctx context.Context, dt *DevTools, sessionID, host string, port int, targetID string) (*Connection, error) {
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	target, err := pickTarget(targets, targetID)
	if err != nil {
		return nil, err
	}

	ws, err := m.browserURL(ctx, dt)
	if err != nil {
		return nil, err
	}

	// The websocket lives until Disconnect, not until ctx ends.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := rod.New().ControlURL(ws).Context(connCtx)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect %s: %w", ws, err)
	}

	page, err := b.PageFromTarget(proto.TargetTargetID(target.ID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("attach target %s: %w", target.ID, err)
	}
	if err := enableDomains(page); err != nil {
		cancel()
		return nil, err
	}
	if m.stealth {
		if err := injectStealth(page); err != nil {
			m.logger.Warn("failed to inject stealth scripts, continuing anyway",
				zap.String("session", sessionID), zap.Error(err))
		}
	}

	return &Connection{
		SessionID:   sessionID,
		Host:        host,
		Port:        port,
		Target:      *target,
		Browser:     b,
		Page:        page,
		ConnectedAt: time.Now(),
		cancel:      cancel,
	}, nil
}

func (m *ConnectionManager) browserURL(ctx context.Context, dt *DevTools) (string, error) {
	v, err := dt.Version(ctx)
	if err == nil && v.WebSocketDebuggerURL != "" {
		return v.WebSocketDebuggerURL, nil
	}
	ws, rerr := launcher.ResolveURL(dt.BaseURL())
	if rerr != nil {
		return "", fmt.Errorf("resolve browser websocket: %w", errors.Join(err, rerr))
	}
	return ws, nil
}

func pickTarget(targets []TargetInfo, targetID string) (*TargetInfo, error) {
	for i := range targets {
		t := &targets[i]
		if targetID != "" {
			if t.ID == targetID {
				return t, nil
			}
			continue
		}
		if t.Type == "page" {
			return t, nil
		}
	}
	if targetID != "" {
		return nil, fmt.Errorf("target %s: %w", targetID, ErrTabNotFound)
	}
	return nil, ErrNoPageTarget
}

// GetOrConnect returns the session's connection, connecting on first use.
func (m *ConnectionManager) GetOrConnect(ctx context.Context, sessionID, host string, port int) (*Connection, error) {
	if c, ok := m.Get(sessionID); ok {
		return c, nil
	}
	return m.Connect(ctx, sessionID, host, port, "")
}

// Get returns the session's connection.
func (m *ConnectionManager) Get(sessionID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[sessionID]
	return c, ok
}

// Sessions returns connected session ids, sorted.
func (m *ConnectionManager) Sessions() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Disconnect closes the session's client and forgets it. The browser
// and its tabs stay up.
func (m *ConnectionManager) Disconnect(sessionID string) error {
	m.mu.Lock()
	c, ok := m.conns[sessionID]
	delete(m.conns, sessionID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("disconnect %s: %w", sessionID, ErrSessionNotFound)
	}
	c.close()
	m.logger.Info("session disconnected", zap.String("session", sessionID))
	return nil
}

// DisconnectAll drops every connection.
func (m *ConnectionManager) DisconnectAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// register tracks a pre-built connection.
func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	m.conns[c.SessionID] = c
	m.mu.Unlock()
}
