package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// pageLoader is the part of a page that navigation waits drive.
type pageLoader interface {
	// Arm subscribes to event. The returned func blocks until the event
	// fires or ctx ends, so Arm must be called before Navigate.
	Arm(ctx context.Context, event proto.Event) (wait func())
	Navigate(ctx context.Context, url string) error
	// Info reads the target's current url and title.
	Info(ctx context.Context) (url, title string, err error)
}

type rodLoader struct {
	page *rod.Page
}

func newRodLoader(page *rod.Page) pageLoader {
	if page == nil {
		return nil
	}
	return rodLoader{page: page}
}

func (l rodLoader) Arm(ctx context.Context, event proto.Event) func() {
	return l.page.Context(ctx).WaitEvent(event)
}

func (l rodLoader) Navigate(ctx context.Context, url string) error {
	return l.page.Context(ctx).Navigate(url)
}

func (l rodLoader) Info(ctx context.Context) (string, string, error) {
	info, err := l.page.Context(ctx).Info()
	if err != nil {
		return "", "", err
	}
	return info.URL, info.Title, nil
}

// loadAndWait navigates to url and waits for event within timeout.
// An expired wait is ErrNavigationTimeout; a cancelled ctx is returned as is.
func loadAndWait(ctx context.Context, l pageLoader, url string, event proto.Event, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := l.Arm(waitCtx, event)
	if err := l.Navigate(waitCtx, url); err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			return fmt.Errorf("navigate %s after %s: %w", url, timeout, ErrNavigationTimeout)
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if waitCtx.Err() != nil {
		return fmt.Errorf("navigate %s: %s not fired within %s: %w", url, eventName(event), timeout, ErrNavigationTimeout)
	}
	return nil
}

func eventName(e proto.Event) string {
	switch e.(type) {
	case *proto.PageDomContentEventFired:
		return "DOMContentLoaded"
	default:
		return "load"
	}
}
