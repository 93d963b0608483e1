package sampler

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter estimates the model tokens needed for a string.
type TokenCounter interface {
	Count(s string) int
}

// EstimateTokens is the len/4 heuristic, rounded up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

type estimateCounter struct{}

func (estimateCounter) Count(s string) int { return EstimateTokens(s) }

// EstimateCounter returns the len/4 counter.
func EstimateCounter() TokenCounter { return estimateCounter{} }

// TiktokenCounter counts with a BPE encoding. The encoding is loaded on first
// use; if it cannot be loaded the counter falls back to EstimateTokens.
type TiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenCounter creates a counter for encoding, cl100k_base when empty.
func NewTiktokenCounter(encoding string, logger *zap.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{encoding: encoding, logger: logger}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, using length estimate", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count implements TokenCounter.
func (t *TiktokenCounter) Count(s string) int {
	if err := t.init(); err != nil {
		return EstimateTokens(s)
	}
	return len(t.enc.Encode(s, nil, nil))
}

// Ready reports whether the encoding loaded.
func (t *TiktokenCounter) Ready() bool {
	return t.init() == nil
}

// NewCounter picks a counter by name: "tiktoken" or anything else for the
// estimate. The tiktoken encoding is loaded here so a counter that cannot
// load it is replaced by the estimate up front.
func NewCounter(name string, logger *zap.Logger) TokenCounter {
	if name == "tiktoken" {
		return readyOrEstimate(NewTiktokenCounter("", logger))
	}
	return EstimateCounter()
}

func readyOrEstimate(t *TiktokenCounter) TokenCounter {
	if !t.Ready() {
		return EstimateCounter()
	}
	t.logger.Debug("tiktoken encoding loaded", zap.String("encoding", t.encoding))
	return t
}

// SmartMaxTokens picks a token budget from the page's estimated size.
func SmartMaxTokens(html string) int {
	est := EstimateTokens(html)
	switch {
	case est < 5000:
		return 4096
	case est < 20000:
		return 8192
	case est < 50000:
		return 16384
	case est < 150000:
		return 32768
	case est < 400000:
		return 65536
	default:
		return 131072
	}
}
