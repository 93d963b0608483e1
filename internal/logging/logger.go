// Package logging provides config-driven categorized zap loggers for browsernerd.
// Each subsystem asks for its category logger with Get; a category that is
// switched off in the config receives a no-op logger.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, config, teardown
	CategoryLauncher   Category = "launcher"   // Browser process spawn and kill
	CategoryConnection Category = "connection" // CDP connections per session
	CategoryTabs       Category = "tabs"       // Tab/target bookkeeping
	CategoryExtractor  Category = "extractor"  // In-page element extraction
	CategorySampler    Category = "sampler"    // DOM compression
	CategorySnapshot   Category = "snapshot"   // Snapshot store
	CategoryResolver   Category = "resolver"   // Locator re-resolution
	CategoryActions    Category = "actions"    // click/type/select
	CategoryTools      Category = "tools"      // Tool boundary
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{
	CategoryBoot,
	CategoryLauncher,
	CategoryConnection,
	CategoryTabs,
	CategoryExtractor,
	CategorySampler,
	CategorySnapshot,
	CategoryResolver,
	CategoryActions,
	CategoryTools,
}

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level       string
	Format      string // json, console
	DebugMode   bool
	Categories  map[string]bool
	OutputPaths []string
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	current Config
	loggers = make(map[Category]*zap.Logger)
)

// Initialize builds the root logger. It may be called again to rebuild
// with a different config; cached category loggers are discarded.
func Initialize(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	if cfg.DebugMode {
		lvl = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	level.SetLevel(lvl)
	zc.Level = level

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	old := base
	base = l
	current = cfg
	loggers = make(map[Category]*zap.Logger)
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}

	Get(CategoryBoot).Debug("logging initialized",
		zap.String("level", lvl.String()),
		zap.String("format", cfg.Format),
		zap.Bool("debug_mode", cfg.DebugMode))
	return nil
}

// UseLogger installs an existing zap logger as the root, e.g. zaptest loggers.
func UseLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*zap.Logger)
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLevel changes the level of every logger handed out so far.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current level.
func Level() zapcore.Level {
	return level.Level()
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the config are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if current.Categories == nil {
		return true
	}
	enabled, ok := current.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for the given category.
// Returns a no-op logger before Initialize or when the category is disabled.
func Get(category Category) *zap.Logger {
	if !IsCategoryEnabled(category) {
		return zap.NewNop()
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	root := base
	mu.RUnlock()

	if root == nil {
		return zap.NewNop()
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category))
	loggers[category] = l
	return l
}

// WithSession returns a category logger tagged with a session id.
func WithSession(category Category, sessionID string) *zap.Logger {
	return Get(category).With(zap.String("session", sessionID))
}

// Sync flushes the root logger.
func Sync() error {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}

// Reset drops the root logger and all category loggers.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	base = nil
	current = Config{}
	loggers = make(map[Category]*zap.Logger)
	level.SetLevel(zapcore.InfoLevel)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn(t.op+" slow",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		Get(t.category).Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
