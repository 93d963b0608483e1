package browser

import (
	"errors"
	"fmt"
)

// Browser infrastructure errors.
var (
	// ErrConnection is wrapped by every ConnectionError.
	ErrConnection = errors.New("browser connection failed")

	// ErrInstanceNotFound is returned by Kill for a port with no tracked process.
	ErrInstanceNotFound = errors.New("no browser instance tracked on port")

	// ErrExecutableNotFound is returned when no Chromium-family binary can be located.
	ErrExecutableNotFound = errors.New("chrome executable not found")

	// ErrSessionNotFound is returned when a session has no connection.
	ErrSessionNotFound = errors.New("session not connected")

	// ErrNoPageTarget is returned when a browser exposes no target of type "page".
	ErrNoPageTarget = errors.New("no page target available")

	// ErrTabNotFound is returned for an unknown tab id.
	ErrTabNotFound = errors.New("tab not found")

	// ErrNoActiveTab is returned when a session has no active tab.
	ErrNoActiveTab = errors.New("no active tab")

	// ErrLastTabProtected is returned when closing the only tab of a browser.
	ErrLastTabProtected = errors.New("cannot close the last remaining tab")

	// ErrNavigationTimeout is returned when a navigation wait expires.
	ErrNavigationTimeout = errors.New("navigation timed out")
)

// ConnectionError reports exhausted launch or connect retries.
type ConnectionError struct {
	Op       string // launch, connect
	Host     string
	Port     int
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s:%d failed after %d attempts: %v. "+
		"Is chrome running with remote debugging? Launch chrome manually with --remote-debugging-port=%d",
		e.Op, e.Host, e.Port, e.Attempts, e.Err, e.Port)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}
