// Package sampler compresses captured page HTML to a token budget and pairs
// it with the element list the extractor already produced.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"browsernerd/internal/dom"
)

const (
	DefaultMaxTokens     = 4096
	DefaultMaxIterations = 5
	DefaultMaxAttempts   = 3
)

// Options controls one sampling run.
type Options struct {
	MaxTokens     int
	MaxIterations int
	FilterHidden  bool
}

// DefaultOptions returns the defaults: 4096 tokens, 5 iterations, hidden filter on.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		MaxIterations: DefaultMaxIterations,
		FilterHidden:  true,
	}
}

// Result is a compressed observation.
type Result struct {
	HTML               string
	TokenCount         int
	OriginalTokenCount int
	ElementCount       int
	ReductionPercent   int
	HiddenRemoved      int
	MaxTokens          int
	Attempts           int
	Elements           []dom.Element
}

// ExhaustedError is returned by SampleWithRetry when every attempt stayed
// over budget.
type ExhaustedError struct {
	Attempts        int
	EstimatedTokens int
	Last            error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("page too complex after %d attempts (estimated %d tokens): narrow the scope with a css selector",
		e.Attempts, e.EstimatedTokens)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Sampler runs the hidden filter and a Compressor.
type Sampler struct {
	compressor Compressor
	logger     *zap.Logger
}

// New creates a sampler. A nil compressor uses the Downsampler with the len/4 estimate.
func New(compressor Compressor, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compressor == nil {
		compressor = NewDownsampler(nil, logger)
	}
	return &Sampler{compressor: compressor, logger: logger}
}

// Sample compresses html once. The elements are returned untouched.
func (s *Sampler) Sample(ctx context.Context, html string, elements []dom.Element, opts Options) (*Result, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	start := time.Now()
	original := EstimateTokens(html)

	src := html
	removed := 0
	if opts.FilterHidden {
		filtered, n, err := FilterHidden(html)
		if err != nil {
			return nil, fmt.Errorf("filter hidden elements: %w", err)
		}
		src, removed = filtered, n
	}

	out, err := s.compressor.Compress(ctx, src, opts.MaxTokens, opts.MaxIterations)
	if err != nil {
		return nil, fmt.Errorf("compress html: %w", err)
	}

	res := &Result{
		HTML:               out.HTML,
		TokenCount:         out.EstimatedTokens,
		OriginalTokenCount: original,
		ElementCount:       len(elements),
		ReductionPercent:   ReductionPercent(original, out.EstimatedTokens),
		HiddenRemoved:      removed,
		MaxTokens:          opts.MaxTokens,
		Attempts:           1,
		Elements:           elements,
	}
	s.logger.Debug("sampled dom",
		zap.Int("original_tokens", original),
		zap.Int("tokens", res.TokenCount),
		zap.Int("hidden_removed", removed),
		zap.Int("elements", res.ElementCount),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// SampleWithRetry calls Sample up to attempts times, doubling MaxTokens each
// time the compressor reports ErrTokenThreshold. A zero MaxTokens is picked
// with SmartMaxTokens.
func (s *Sampler) SampleWithRetry(ctx context.Context, html string, elements []dom.Element, opts Options, attempts int) (*Result, error) {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = SmartMaxTokens(html)
	}

	var last error
	for i := 1; i <= attempts; i++ {
		res, err := s.Sample(ctx, html, elements, opts)
		if err == nil {
			res.Attempts = i
			return res, nil
		}
		if !errors.Is(err, ErrTokenThreshold) {
			return nil, err
		}
		last = err
		s.logger.Info("token threshold exceeded, retrying with a larger budget",
			zap.Int("attempt", i),
			zap.Int("max_tokens", opts.MaxTokens))
		opts.MaxTokens *= 2
	}
	return nil, &ExhaustedError{Attempts: attempts, EstimatedTokens: EstimateTokens(html), Last: last}
}

// ReductionPercent is round((original-compressed)/original*100), 0 for an empty original.
func ReductionPercent(original, compressed int) int {
	if original <= 0 {
		return 0
	}
	return int(math.Round(float64(original-compressed) / float64(original) * 100))
}
