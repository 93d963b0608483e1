package dom

import (
	"errors"
	"fmt"
)

var (
	// ErrResolutionFailed is wrapped by ResolutionError.
	ErrResolutionFailed = errors.New("element resolution failed")

	// ErrElementTypeMismatch is returned when acting on the wrong kind of element.
	ErrElementTypeMismatch = errors.New("element type mismatch")

	// ErrInvalidSelection is returned for a bad select request.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrInvalidSelector is returned when a CSS selector cannot be parsed in-page.
	ErrInvalidSelector = errors.New("invalid selector")
)

// ResolutionError carries the failed report of an aborted action.
type ResolutionError struct {
	Report ResolutionReport
}

func (e *ResolutionError) Error() string {
	msg := e.Report.Error
	if msg == "" {
		msg = "no strategy met the confidence threshold"
	}
	return fmt.Sprintf("%s (candidates: %d)", msg, e.Report.CandidateCount)
}

func (e *ResolutionError) Unwrap() error { return ErrResolutionFailed }

// err maps a template failure to its sentinel.
func (s *scriptError) err() error {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case "type_mismatch":
		return fmt.Errorf("%w: %s", ErrElementTypeMismatch, s.Message)
	case "invalid_selection":
		return fmt.Errorf("%w: %s", ErrInvalidSelection, s.Message)
	case "invalid_selector":
		return fmt.Errorf("%w: %s", ErrInvalidSelector, s.Message)
	default:
		return fmt.Errorf("%s: %s", s.Kind, s.Message)
	}
}
