package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// DefaultNavigationTimeout bounds a navigation wait when none is given.
const DefaultNavigationTimeout = 30 * time.Second

// networkIdleSettle is the quiet period added after load for WaitNetworkIdle.
const networkIdleSettle = 500 * time.Millisecond

// WaitUntil selects the lifecycle point a navigation waits for.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// ParseWaitUntil maps a name to a WaitUntil, defaulting to load.
func ParseWaitUntil(s string) (WaitUntil, error) {
	switch WaitUntil(strings.ToLower(strings.TrimSpace(s))) {
	case "", WaitLoad:
		return WaitLoad, nil
	case WaitDOMContentLoaded:
		return WaitDOMContentLoaded, nil
	case WaitNetworkIdle:
		return WaitNetworkIdle, nil
	}
	return "", fmt.Errorf("unknown waitUntil %q (use load, domcontentloaded or networkidle)", s)
}

// PageInfo describes the current document of a page.
type PageInfo struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	ReadyState string `json:"readyState"`
	Viewport   struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"viewport"`
	Scroll struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"scroll"`
}

const pageInfoJS = `() => ({
  url: location.href,
  title: document.title,
  readyState: document.readyState,
  viewport: { width: window.innerWidth, height: window.innerHeight },
  scroll: { x: window.scrollX, y: window.scrollY },
})`

// Navigator drives page navigation.
type Navigator struct {
	timeout time.Duration
	logger  *zap.Logger

	newLoader func(*rod.Page) pageLoader
}

// NewNavigator returns a navigator with the given default timeout.
func NewNavigator(timeout time.Duration, logger *zap.Logger) *Navigator {
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{timeout: timeout, logger: logger, newLoader: newRodLoader}
}

// Navigate loads url and waits for waitUntil. The wait is registered before
// navigating and races the timeout; zero timeout uses the default.
func (n *Navigator) Navigate(ctx context.Context, page *rod.Page, url string, waitUntil WaitUntil, timeout time.Duration) (*PageInfo, error) {
	l := n.newLoader(page)
	if l == nil {
		return nil, ErrPageDetached
	}
	if timeout <= 0 {
		timeout = n.timeout
	}
	start := time.Now()

	var event proto.Event = &proto.PageLoadEventFired{}
	if waitUntil == WaitDOMContentLoaded {
		event = &proto.PageDomContentEventFired{}
	}
	if err := loadAndWait(ctx, l, url, event, timeout); err != nil {
		return nil, err
	}

	if waitUntil == WaitNetworkIdle {
		select {
		case <-time.After(networkIdleSettle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	info, err := n.Info(ctx, page)
	if err != nil {
		return nil, err
	}
	n.logger.Info("navigated",
		zap.String("url", info.URL),
		zap.String("wait_until", string(waitUntil)),
		zap.Duration("elapsed", time.Since(start)))
	return info, nil
}

// Info reads url, title, readyState, viewport and scroll position.
func (n *Navigator) Info(ctx context.Context, page *rod.Page) (*PageInfo, error) {
	if page == nil {
		return nil, ErrPageDetached
	}
	res, err := page.Context(ctx).Eval(pageInfoJS)
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	var info PageInfo
	if err := res.Value.Unmarshal(&info); err != nil {
		return nil, fmt.Errorf("decode page info: %w", err)
	}
	return &info, nil
}
