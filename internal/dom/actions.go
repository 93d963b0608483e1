package dom

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Actions performs click, type and select on resolved elements. Each action
// resolves and acts inside a single evaluation.
type Actions struct {
	minConfidence float64
	logger        *zap.Logger
}

// NewActions creates an action executor with a default threshold.
func NewActions(minConfidence float64, logger *zap.Logger) *Actions {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actions{minConfidence: minConfidence, logger: logger}
}

func (a *Actions) threshold(v float64) float64 {
	if v > 0 {
		return v
	}
	return a.minConfidence
}

// envelope is the common shape of action template results.
type envelope struct {
	Report *ResolutionReport `json:"report"`
	Error  *scriptError      `json:"error"`
}

// check turns an unresolved element or a template failure into an error.
func (e *envelope) check() error {
	if e.Report == nil {
		return fmt.Errorf("%w: empty result", ErrResolutionFailed)
	}
	if !e.Report.Success {
		return &ResolutionError{Report: *e.Report}
	}
	return e.Error.err()
}

// ClickOptions configures Click.
type ClickOptions struct {
	MinConfidence float64
	WaitAfter     time.Duration
}

// ClickResult describes the clicked element.
type ClickResult struct {
	Report ResolutionReport `json:"report"`
	Tag    string           `json:"tag"`
	Text   string           `json:"text"`
	Role   *string          `json:"role"`
	Name   string           `json:"name"`
}

// Click scrolls the element into view and fires a native click.
func (a *Actions) Click(ctx context.Context, ev Evaluator, b LocatorBundle, opts ClickOptions) (*ClickResult, error) {
	var out struct {
		envelope
		Tag  string  `json:"tag"`
		Text string  `json:"text"`
		Role *string `json:"role"`
		Name string  `json:"name"`
	}
	if err := ev.Evaluate(ctx, ClickScript, newResolveArgs(b, a.threshold(opts.MinConfidence)), &out); err != nil {
		return nil, fmt.Errorf("click: %w", err)
	}
	if err := out.check(); err != nil {
		a.logFailure("click", out.Report, err)
		return nil, err
	}

	a.logger.Info("clicked element",
		zap.String("tag", out.Tag),
		zap.String("strategy", string(out.Report.Strategy)),
		zap.Float64("confidence", out.Report.Confidence))

	if opts.WaitAfter > 0 {
		t := time.NewTimer(opts.WaitAfter)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return &ClickResult{Report: *out.Report, Tag: out.Tag, Text: out.Text, Role: out.Role, Name: out.Name}, nil
}

// TypeOptions configures Type. Clear is a pointer so that an unset value
// means true.
type TypeOptions struct {
	Text          string
	Clear         *bool
	PressEnter    bool
	Delay         time.Duration
	MinConfidence float64
}

// ClearValue reports whether the field is emptied before typing.
func (o TypeOptions) ClearValue() bool {
	return o.Clear == nil || *o.Clear
}

// TypeResult describes a completed text entry.
type TypeResult struct {
	Report      ResolutionReport `json:"report"`
	Tag         string           `json:"tag"`
	InputType   string           `json:"inputType"`
	Name        string           `json:"name"`
	Placeholder string           `json:"placeholder"`
	ValueBefore string           `json:"valueBefore"`
	ValueAfter  string           `json:"valueAfter"`
	Length      int              `json:"length"`
	Submitted   bool             `json:"submitted"`
}

// Type writes text into an input or textarea. With Clear=false the text is
// appended to the current value.
func (a *Actions) Type(ctx context.Context, ev Evaluator, b LocatorBundle, opts TypeOptions) (*TypeResult, error) {
	arg := struct {
		resolveArgs
		Text       string `json:"text"`
		Clear      bool   `json:"clear"`
		PressEnter bool   `json:"pressEnter"`
		Delay      int64  `json:"delay"`
	}{
		resolveArgs: newResolveArgs(b, a.threshold(opts.MinConfidence)),
		Text:        opts.Text,
		Clear:       opts.ClearValue(),
		PressEnter:  opts.PressEnter,
		Delay:       opts.Delay.Milliseconds(),
	}

	var out struct {
		envelope
		Tag         string  `json:"tag"`
		InputType   *string `json:"inputType"`
		Name        *string `json:"name"`
		Placeholder *string `json:"placeholder"`
		ValueBefore string  `json:"valueBefore"`
		ValueAfter  string  `json:"valueAfter"`
		Length      int     `json:"length"`
		Submitted   bool    `json:"submitted"`
	}
	if err := ev.Evaluate(ctx, TypeScript, arg, &out); err != nil {
		return nil, fmt.Errorf("type: %w", err)
	}
	if err := out.check(); err != nil {
		a.logFailure("type", out.Report, err)
		return nil, err
	}

	a.logger.Info("typed into element",
		zap.String("tag", out.Tag),
		zap.Int("length", out.Length),
		zap.Bool("clear", arg.Clear),
		zap.Bool("press_enter", opts.PressEnter))

	return &TypeResult{
		Report:      *out.Report,
		Tag:         out.Tag,
		InputType:   deref(out.InputType),
		Name:        deref(out.Name),
		Placeholder: deref(out.Placeholder),
		ValueBefore: out.ValueBefore,
		ValueAfter:  out.ValueAfter,
		Length:      out.Length,
		Submitted:   out.Submitted,
	}, nil
}

// SelectOptions picks an option by exactly one of value, visible text or index.
type SelectOptions struct {
	Value         *string
	Text          *string
	Index         *int
	MinConfidence float64
}

func (o SelectOptions) validate() error {
	n := 0
	if o.Value != nil {
		n++
	}
	if o.Text != nil {
		n++
	}
	if o.Index != nil {
		n++
	}
	switch {
	case n == 0:
		return fmt.Errorf("%w: Must provide one of: value, text, or index to select an option", ErrInvalidSelection)
	case n > 1:
		return fmt.Errorf("%w: Provide only ONE of: value, text, or index (not multiple)", ErrInvalidSelection)
	}
	return nil
}

// OptionState is the selection of a select element at one moment.
type OptionState struct {
	Index int    `json:"index"`
	Value string `json:"value"`
	Text  string `json:"text"`
}

// OptionInfo describes one option.
type OptionInfo struct {
	Index    int    `json:"index"`
	Value    string `json:"value"`
	Text     string `json:"text"`
	Disabled bool   `json:"disabled"`
}

// SelectResult describes a changed selection.
type SelectResult struct {
	Report       ResolutionReport `json:"report"`
	Name         string           `json:"name"`
	ID           string           `json:"id"`
	Method       string           `json:"selectionMethod"`
	Before       OptionState      `json:"before"`
	After        OptionState      `json:"after"`
	TotalOptions int              `json:"totalOptions"`
	Options      []OptionInfo     `json:"allOptions"`
}

// Select changes the selected option and fires change. Invalid requests
// leave the selection untouched.
func (a *Actions) Select(ctx context.Context, ev Evaluator, b LocatorBundle, opts SelectOptions) (*SelectResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	arg := struct {
		resolveArgs
		Value *string `json:"value,omitempty"`
		Text  *string `json:"text,omitempty"`
		Index *int    `json:"index,omitempty"`
	}{
		resolveArgs: newResolveArgs(b, a.threshold(opts.MinConfidence)),
		Value:       opts.Value,
		Text:        opts.Text,
		Index:       opts.Index,
	}

	var out struct {
		envelope
		Name         *string      `json:"name"`
		ID           *string      `json:"id"`
		Method       string       `json:"selectionMethod"`
		Before       OptionState  `json:"before"`
		After        OptionState  `json:"after"`
		TotalOptions int          `json:"totalOptions"`
		Options      []OptionInfo `json:"allOptions"`
	}
	if err := ev.Evaluate(ctx, SelectScript, arg, &out); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	if err := out.check(); err != nil {
		a.logFailure("select", out.Report, err)
		return nil, err
	}

	a.logger.Info("selected option",
		zap.String("method", out.Method),
		zap.Int("index", out.After.Index),
		zap.String("value", out.After.Value))

	return &SelectResult{
		Report:       *out.Report,
		Name:         deref(out.Name),
		ID:           deref(out.ID),
		Method:       out.Method,
		Before:       out.Before,
		After:        out.After,
		TotalOptions: out.TotalOptions,
		Options:      out.Options,
	}, nil
}

func (a *Actions) logFailure(action string, report *ResolutionReport, err error) {
	fields := []zap.Field{zap.String("action", action), zap.Error(err)}
	if report != nil {
		fields = append(fields, zap.String("strategy", string(report.Strategy)), zap.Int("candidates", report.CandidateCount))
	}
	a.logger.Warn("action aborted", fields...)
}

