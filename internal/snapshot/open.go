package snapshot

import (
	"fmt"

	"go.uber.org/zap"

	"browsernerd/internal/config"
)

// Open builds the Store selected by cfg.
func Open(cfg config.SnapshotConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.MaxPerSession, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path, cfg.MaxPerSession, logger)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}
