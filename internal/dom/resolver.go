package dom

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// DefaultMinConfidence is the acceptance threshold for scored matches.
const DefaultMinConfidence = 0.75

// resolveArgs is the JSON argument shared by the resolve and action templates.
type resolveArgs struct {
	Locators      LocatorBundle `json:"locators"`
	MinConfidence float64       `json:"minConfidence"`
}

func newResolveArgs(b LocatorBundle, minConfidence float64) resolveArgs {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return resolveArgs{Locators: b, MinConfidence: minConfidence}
}

// Resolver re-finds an element on the live page from a locator bundle.
type Resolver struct {
	minConfidence float64
	logger        *zap.Logger
}

// NewResolver creates a resolver with the given default threshold.
func NewResolver(minConfidence float64, logger *zap.Logger) *Resolver {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{minConfidence: minConfidence, logger: logger}
}

// MinConfidence returns the default threshold.
func (r *Resolver) MinConfidence() float64 { return r.minConfidence }

// Resolve runs the role-name, css, xpath, fuzzy cascade in one evaluation.
// A failed match is reported with Success=false; the error is reserved for
// transport failures.
func (r *Resolver) Resolve(ctx context.Context, ev Evaluator, b LocatorBundle, minConfidence float64) (*ResolutionReport, error) {
	if minConfidence <= 0 {
		minConfidence = r.minConfidence
	}

	var report ResolutionReport
	err := ev.Evaluate(ctx, ResolveScript, newResolveArgs(b, minConfidence), &report)
	if err != nil {
		if errors.Is(err, &rod.EvalError{}) {
			report = ResolutionReport{Strategy: StrategyNone, Error: "Resolution failed: " + err.Error()}
			r.logger.Warn("resolver script raised", zap.Error(err))
			return &report, nil
		}
		return nil, fmt.Errorf("resolve element: %w", err)
	}
	if report.Strategy == "" {
		report.Strategy = StrategyNone
	}

	r.logger.Debug("resolved element",
		zap.Bool("success", report.Success),
		zap.String("strategy", string(report.Strategy)),
		zap.Float64("confidence", report.Confidence),
		zap.Int("candidates", report.CandidateCount))
	return &report, nil
}
