package dom

import (
	"context"
	"fmt"
)

// Capture reads the page's outer HTML, or that of the first element matching
// selector when one is given. Found is false when the selector matched nothing.
func Capture(ctx context.Context, ev Evaluator, selector string) (*PageSource, error) {
	var out struct {
		PageSource
		Error *scriptError `json:"error"`
	}
	if err := ev.Evaluate(ctx, PageScript, map[string]any{"selector": selector}, &out); err != nil {
		return nil, fmt.Errorf("capture page html: %w", err)
	}
	if err := out.Error.err(); err != nil {
		return nil, err
	}
	return &out.PageSource, nil
}
