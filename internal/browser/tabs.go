package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/js"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTabLoadTimeout bounds the load wait when a tab is created with a URL.
const DefaultTabLoadTimeout = 5 * time.Second

// Tab is one page target of a browser.
type Tab struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Addr      string    `json:"addr"`

	Page *rod.Page `json:"-"`
}

// Evaluate runs fn against the tab's page.
func (t *Tab) Evaluate(ctx context.Context, fn *js.Function, arg any, out any) error {
	return EvalPage(ctx, t.Page, fn, arg, out)
}

// TabManager tracks tabs per browser (host:port) and an active tab per session.
type TabManager struct {
	conns       *ConnectionManager
	loadTimeout time.Duration
	logger      *zap.Logger

	newLoader func(*rod.Page) pageLoader

	mu     sync.RWMutex
	tabs   map[string]map[string]*Tab // addr -> tab id -> tab
	closed map[string]map[string]bool // addr -> ids closed through CloseTab
	active map[string]string          // session -> tab id
}

// TabOption configures a TabManager.
type TabOption func(*TabManager)

// WithTabLoadTimeout sets how long CreateTab waits for the load event.
func WithTabLoadTimeout(d time.Duration) TabOption {
	return func(m *TabManager) {
		if d > 0 {
			m.loadTimeout = d
		}
	}
}

// WithTabLogger sets the logger.
func WithTabLogger(logger *zap.Logger) TabOption {
	return func(m *TabManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewTabManager creates a tab manager over conns.
func NewTabManager(conns *ConnectionManager, opts ...TabOption) *TabManager {
	m := &TabManager{
		conns:       conns,
		loadTimeout: DefaultTabLoadTimeout,
		logger:      zap.NewNop(),
		newLoader:   newRodLoader,
		tabs:        make(map[string]map[string]*Tab),
		closed:      make(map[string]map[string]bool),
		active:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *TabManager) connection(sessionID string) (*Connection, error) {
	c, ok := m.conns.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return c, nil
}

// Initialize seeds the session's browser with its connection target and
// makes it active if the session has no active tab. A target that was
// closed through CloseTab is never tracked again.
func (m *TabManager) Initialize(ctx context.Context, sessionID string) error {
	c, err := m.connection(sessionID)
	if err != nil {
		return err
	}
	addr := c.Addr()

	m.mu.Lock()
	defer m.mu.Unlock()

	browserTabs := m.browserTabs(addr)
	closed := m.closed[addr][c.Target.ID]
	if _, ok := browserTabs[c.Target.ID]; !ok && !closed {
		browserTabs[c.Target.ID] = &Tab{
			ID:        c.Target.ID,
			URL:       c.Target.URL,
			Title:     c.Target.Title,
			CreatedAt: time.Now(),
			Addr:      addr,
			Page:      c.Page,
		}
		m.logger.Debug("tab tracked", zap.String("session", sessionID), zap.String("tab", c.Target.ID))
	}
	if _, ok := m.active[sessionID]; !ok {
		if closed {
			if id := anyTabID(browserTabs); id != "" {
				m.active[sessionID] = id
			}
		} else {
			m.active[sessionID] = c.Target.ID
		}
	}
	return nil
}

// browserTabs must be called with mu held.
func (m *TabManager) browserTabs(addr string) map[string]*Tab {
	t, ok := m.tabs[addr]
	if !ok {
		t = make(map[string]*Tab)
		m.tabs[addr] = t
	}
	return t
}

// CreateTab opens a new target on the session's browser. The new tab is
// not activated.
func (m *TabManager) CreateTab(ctx context.Context, sessionID, url string) (*Tab, error) {
	c, err := m.connection(sessionID)
	if err != nil {
		return nil, err
	}

	// Attach before navigating so the load wait cannot miss the event.
	info, err := m.conns.DevTools(c.Host, c.Port).New(ctx, "about:blank")
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}

	tab := &Tab{
		ID:        info.ID,
		URL:       info.URL,
		Title:     info.Title,
		CreatedAt: time.Now(),
		Addr:      c.Addr(),
	}

	if c.Browser != nil {
		page, err := c.Browser.PageFromTarget(proto.TargetTargetID(info.ID))
		if err != nil {
			return nil, fmt.Errorf("attach tab %s: %w", info.ID, err)
		}
		if err := enableDomains(page); err != nil {
			return nil, err
		}
		tab.Page = page
	}
	if url != "" {
		m.loadURL(ctx, tab, url)
	}

	m.mu.Lock()
	m.browserTabs(tab.Addr)[tab.ID] = tab
	m.mu.Unlock()

	m.logger.Info("tab created", zap.String("session", sessionID), zap.String("tab", tab.ID), zap.String("url", tab.URL))
	return tab, nil
}

// loadURL navigates the tab and waits up to loadTimeout for the load event.
// A timeout leaves the tab in place with whatever has loaded.
func (m *TabManager) loadURL(ctx context.Context, tab *Tab, url string) {
	l := m.newLoader(tab.Page)
	if l == nil {
		tab.URL = url
		return
	}

	err := loadAndWait(ctx, l, url, &proto.PageLoadEventFired{}, m.loadTimeout)
	switch {
	case errors.Is(err, ErrNavigationTimeout):
		m.logger.Debug("tab load wait expired", zap.String("tab", tab.ID), zap.Duration("timeout", m.loadTimeout))
	case err != nil:
		m.logger.Warn("tab navigation failed", zap.String("tab", tab.ID), zap.Error(err))
	}

	if u, title, err := l.Info(context.WithoutCancel(ctx)); err == nil {
		tab.URL = u
		tab.Title = title
	} else {
		tab.URL = url
	}
}

// SwitchTab points the session at tabID.
func (m *TabManager) SwitchTab(sessionID, tabID string) error {
	c, err := m.connection(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[c.Addr()][tabID]; !ok {
		return fmt.Errorf("switch to %s: %w", tabID, ErrTabNotFound)
	}
	m.active[sessionID] = tabID
	m.logger.Debug("tab switched", zap.String("session", sessionID), zap.String("tab", tabID))
	return nil
}

// CloseTab closes tabID. The last tab of a browser cannot be closed.
func (m *TabManager) CloseTab(ctx context.Context, sessionID, tabID string) error {
	c, err := m.connection(sessionID)
	if err != nil {
		return err
	}
	addr := c.Addr()

	m.mu.Lock()
	browserTabs := m.tabs[addr]
	tab, ok := browserTabs[tabID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("close %s: %w", tabID, ErrTabNotFound)
	}
	if len(browserTabs) <= 1 {
		m.mu.Unlock()
		return fmt.Errorf("close %s: %w", tabID, ErrLastTabProtected)
	}
	delete(browserTabs, tabID)
	if m.closed[addr] == nil {
		m.closed[addr] = make(map[string]bool)
	}
	m.closed[addr][tabID] = true
	for sid, active := range m.active {
		if active != tabID {
			continue
		}
		// Only sessions on this browser can point at this tab.
		m.active[sid] = anyTabID(browserTabs)
	}
	m.mu.Unlock()

	if tab.Page != nil {
		if err := (proto.TargetDetachFromTarget{SessionID: tab.Page.SessionID}).Call(tab.Page.Browser()); err != nil {
			m.logger.Debug("detach tab", zap.String("tab", tabID), zap.Error(err))
		}
	}
	if err := m.conns.DevTools(c.Host, c.Port).Close(ctx, tabID); err != nil {
		return fmt.Errorf("close target %s: %w", tabID, err)
	}
	m.logger.Info("tab closed", zap.String("session", sessionID), zap.String("tab", tabID))
	return nil
}

func anyTabID(tabs map[string]*Tab) string {
	ids := make([]string, 0, len(tabs))
	for id := range tabs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// CloseAll clears the session's active pointer and, once no other session
// uses the browser, detaches every tab client and drops the browser's tab
// bookkeeping. Targets stay open in the browser.
func (m *TabManager) CloseAll(ctx context.Context, sessionID string) error {
	c, err := m.connection(sessionID)
	if err != nil {
		return err
	}
	addr := c.Addr()

	m.mu.Lock()
	delete(m.active, sessionID)
	for sid := range m.active {
		if other, ok := m.conns.Get(sid); ok && other.Addr() == addr {
			m.mu.Unlock()
			m.logger.Debug("tabs kept for other sessions", zap.String("session", sessionID), zap.String("browser", addr))
			return nil
		}
	}
	tabs := m.tabs[addr]
	delete(m.tabs, addr)
	delete(m.closed, addr)
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	errs := make([]error, 0, len(tabs))
	var errMu sync.Mutex
	for id, tab := range tabs {
		id, tab := id, tab
		if tab.Page == nil {
			continue
		}
		g.Go(func() error {
			detach := proto.TargetDetachFromTarget{SessionID: tab.Page.SessionID}
			if err := detach.Call(tab.Page.Browser().Context(gctx)); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("detach tab %s: %w", id, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	m.logger.Debug("tabs detached", zap.String("browser", addr), zap.Int("tabs", len(tabs)))
	return errors.Join(errs...)
}

// ListTabs returns the tabs of the session's browser, oldest first.
func (m *TabManager) ListTabs(sessionID string) ([]*Tab, error) {
	c, err := m.connection(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]*Tab, 0, len(m.tabs[c.Addr()]))
	for _, t := range m.tabs[c.Addr()] {
		out = append(out, t)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ActiveTabID returns the session's active tab id, or "".
func (m *TabManager) ActiveTabID(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// ActiveTab returns the session's active tab.
func (m *TabManager) ActiveTab(sessionID string) (*Tab, error) {
	return m.GetTab(sessionID, "")
}

// GetTab returns tabID, or the active tab when tabID is empty.
func (m *TabManager) GetTab(sessionID, tabID string) (*Tab, error) {
	c, err := m.connection(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabID == "" {
		id, ok := m.active[sessionID]
		if !ok {
			return nil, ErrNoActiveTab
		}
		tabID = id
	}
	t, ok := m.tabs[c.Addr()][tabID]
	if !ok {
		return nil, fmt.Errorf("tab %s: %w", tabID, ErrTabNotFound)
	}
	return t, nil
}

// Refresh re-reads url and title of tracked tabs from the target list.
func (m *TabManager) Refresh(ctx context.Context, sessionID string) error {
	c, err := m.connection(sessionID)
	if err != nil {
		return err
	}
	targets, err := m.conns.DevTools(c.Host, c.Port).List(ctx)
	if err != nil {
		return fmt.Errorf("refresh tabs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tabs := m.tabs[c.Addr()]
	for _, t := range targets {
		if tab, ok := tabs[t.ID]; ok {
			tab.URL = t.URL
			tab.Title = t.Title
		}
	}
	return nil
}

// Forget clears the session's active pointer. Its browser's tabs stay tracked.
func (m *TabManager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()
}

// Sessions returns the sessions that hold an active tab pointer.
func (m *TabManager) Sessions() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
