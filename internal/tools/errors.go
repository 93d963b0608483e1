package tools

import (
	"context"
	"errors"
	"fmt"

	"browsernerd/internal/browser"
	"browsernerd/internal/dom"
	"browsernerd/internal/sampler"
	"browsernerd/internal/snapshot"
)

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)

// Describe turns err into the text shown to the caller, ending with what to
// do next. Errors that already carry their own guidance pass through.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var resErr *dom.ResolutionError
	var connErr *browser.ConnectionError
	var exhausted *sampler.ExhaustedError
	var guided *guidedError

	switch {
	case errors.As(err, &guided):
		return "Error: " + guided.Error()
	case errors.As(err, &resErr):
		msg := resErr.Report.Error
		if msg == "" {
			msg = "The page may have changed significantly since the snapshot was taken."
		}
		return fmt.Sprintf("Error: %s\nTry calling browser_get_dom_snapshot again to get a fresh snapshot.", msg)
	case errors.As(err, &connErr):
		return "Error: " + connErr.Error()
	case errors.As(err, &exhausted):
		return fmt.Sprintf("Error: Failed to create DOM snapshot after %d attempts. "+
			"The page is extremely complex (estimated %d tokens). "+
			"Try using the 'selector' parameter to focus on a specific region (e.g., selector: 'header', selector: '#content').",
			exhausted.Attempts, exhausted.EstimatedTokens)
	case errors.Is(err, dom.ErrElementTypeMismatch),
		errors.Is(err, dom.ErrInvalidSelection):
		return "Error: " + err.Error()
	case errors.Is(err, dom.ErrInvalidSelector):
		return "Error: " + err.Error() + ". Check the CSS selector syntax."
	case errors.Is(err, snapshot.ErrStaleReference):
		return "Error: " + err.Error() + ". The snapshot may have expired (only the 3 most recent are kept). " +
			"Call browser_get_dom_snapshot again and use the new snapshotId."
	case errors.Is(err, browser.ErrLastTabProtected):
		return "Error: Cannot close the last remaining tab. Create another tab with browser_create_tab first."
	case errors.Is(err, browser.ErrNoActiveTab):
		return "Error: No active tab found. Use browser_list_tabs to see available tabs and browser_switch_tab to set an active tab."
	case errors.Is(err, browser.ErrTabNotFound):
		return "Error: " + err.Error() + ". Use browser_list_tabs to see available tabs."
	case errors.Is(err, browser.ErrNavigationTimeout):
		return "Error: " + err.Error() + ". Try a longer timeout or waitUntil: 'domcontentloaded'."
	case errors.Is(err, ErrMissingRequiredArg), errors.Is(err, ErrInvalidArgType):
		return "Error: " + err.Error() + ". Check the tool's argument schema."
	case errors.Is(err, ErrToolNotFound):
		return "Error: " + err.Error() + ". List the available tools and use one of their names."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Error: " + err.Error() + ". The operation was interrupted; retry it."
	default:
		return "Error: " + err.Error() + ". Retry, or take a fresh snapshot with browser_get_dom_snapshot."
	}
}

// guidedError carries text written for the caller, including its next step.
type guidedError struct {
	msg string
	err error
}

func (e *guidedError) Error() string { return e.msg }
func (e *guidedError) Unwrap() error { return e.err }

func guided(err error, format string, args ...any) error {
	return &guidedError{msg: fmt.Sprintf(format, args...), err: err}
}
