package dom

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultFrameID labels elements of the top-level document.
const DefaultFrameID = "main"

// Extractor enumerates visible interactive elements and their locator bundles.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor. A nil logger is replaced by a no-op.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract runs one in-page pass over the frame. Search-like inputs are
// listed first and snap ids are assigned in the final order.
func (e *Extractor) Extract(ctx context.Context, ev Evaluator, frameID string) (*Extraction, error) {
	if frameID == "" {
		frameID = DefaultFrameID
	}
	start := time.Now()

	var out Extraction
	if err := ev.Evaluate(ctx, ExtractScript, map[string]any{"frameId": frameID}, &out); err != nil {
		return nil, fmt.Errorf("extract interactive elements: %w", err)
	}
	if out.FrameID == "" {
		out.FrameID = frameID
	}

	e.logger.Debug("extracted elements",
		zap.String("frame_id", out.FrameID),
		zap.Int("count", len(out.Elements)),
		zap.Duration("elapsed", time.Since(start)))
	return &out, nil
}
