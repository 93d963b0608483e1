package tools

import (
	"context"
	"time"

	"go.uber.org/zap"

	"browsernerd/internal/browser"
	"browsernerd/internal/dom"
)

// Page is a tab resolved for one tool call.
type Page struct {
	TabID string
	URL   string
	Title string
	Eval  dom.Evaluator
}

// Backend is the browser surface the tools drive. An empty tabID means the
// session's active tab.
type Backend interface {
	Page(ctx context.Context, sessionID, tabID string) (*Page, error)
	ListTabs(ctx context.Context, sessionID string) (tabs []*browser.Tab, activeID string, err error)
	CreateTab(ctx context.Context, sessionID, url string) (*browser.Tab, error)
	SwitchTab(ctx context.Context, sessionID, tabID string) (*browser.Tab, error)
	CloseTab(ctx context.Context, sessionID, tabID string) error
	Navigate(ctx context.Context, sessionID, tabID, url string, waitUntil browser.WaitUntil, timeout time.Duration) (*browser.PageInfo, error)
	Info(ctx context.Context, sessionID, tabID string) (*browser.PageInfo, error)
}

// RegistryBackend drives a browser.Registry. Sessions connect on first use.
type RegistryBackend struct {
	reg    *browser.Registry
	logger *zap.Logger
}

// NewRegistryBackend wraps reg.
func NewRegistryBackend(reg *browser.Registry, logger *zap.Logger) *RegistryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryBackend{reg: reg, logger: logger}
}

func (b *RegistryBackend) Page(ctx context.Context, sessionID, tabID string) (*Page, error) {
	tab, err := b.reg.Tab(ctx, sessionID, tabID)
	if err != nil {
		return nil, err
	}
	return &Page{TabID: tab.ID, URL: tab.URL, Title: tab.Title, Eval: tab}, nil
}

func (b *RegistryBackend) ListTabs(ctx context.Context, sessionID string) ([]*browser.Tab, string, error) {
	if _, err := b.reg.Session(ctx, sessionID); err != nil {
		return nil, "", err
	}
	if err := b.reg.Tabs().Refresh(ctx, sessionID); err != nil {
		b.logger.Debug("tab refresh failed", zap.String("session", sessionID), zap.Error(err))
	}
	tabs, err := b.reg.Tabs().ListTabs(sessionID)
	if err != nil {
		return nil, "", err
	}
	return tabs, b.reg.Tabs().ActiveTabID(sessionID), nil
}

func (b *RegistryBackend) CreateTab(ctx context.Context, sessionID, url string) (*browser.Tab, error) {
	if _, err := b.reg.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	return b.reg.Tabs().CreateTab(ctx, sessionID, url)
}

func (b *RegistryBackend) SwitchTab(ctx context.Context, sessionID, tabID string) (*browser.Tab, error) {
	if _, err := b.reg.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := b.reg.Tabs().SwitchTab(sessionID, tabID); err != nil {
		return nil, err
	}
	return b.reg.Tabs().GetTab(sessionID, tabID)
}

func (b *RegistryBackend) CloseTab(ctx context.Context, sessionID, tabID string) error {
	if _, err := b.reg.Session(ctx, sessionID); err != nil {
		return err
	}
	return b.reg.Tabs().CloseTab(ctx, sessionID, tabID)
}

func (b *RegistryBackend) Navigate(ctx context.Context, sessionID, tabID, url string, waitUntil browser.WaitUntil, timeout time.Duration) (*browser.PageInfo, error) {
	tab, err := b.reg.Tab(ctx, sessionID, tabID)
	if err != nil {
		return nil, err
	}
	return b.reg.Navigator().Navigate(ctx, tab.Page, url, waitUntil, timeout)
}

func (b *RegistryBackend) Info(ctx context.Context, sessionID, tabID string) (*browser.PageInfo, error) {
	tab, err := b.reg.Tab(ctx, sessionID, tabID)
	if err != nil {
		return nil, err
	}
	return b.reg.Navigator().Info(ctx, tab.Page)
}
