package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/js"
	"github.com/go-rod/rod/lib/proto"
)

// ErrPageDetached is returned when evaluating on a tab with no attached page.
var ErrPageDetached = errors.New("tab has no attached page")

// EvalPage calls fn in the page's main frame with arg as its only argument
// and decodes the by-value result into out. fn is cached per JS context,
// so only arg crosses the wire on repeat calls.
func EvalPage(ctx context.Context, page *rod.Page, fn *js.Function, arg any, out any) error {
	if page == nil {
		return ErrPageDetached
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		ByValue:      true,
		AwaitPromise: true,
		JS:           fmt.Sprintf(`function (f /* %s */, arg) { return f.call(this, arg) }`, fn.Name),
		JSArgs:       []interface{}{fn, arg},
	})
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", fn.Name, err)
	}
	if out == nil || res == nil {
		return nil
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("decode %s result: %w", fn.Name, err)
	}
	return nil
}

// enableDomains turns on the Page, Runtime and Network domains.
func enableDomains(page *rod.Page) error {
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return fmt.Errorf("enable runtime domain: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	return nil
}
