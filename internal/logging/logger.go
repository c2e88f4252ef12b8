// Package logging provides categorized structured logging for cronos.
// Every category is a named child of one zap root logger, so a single
// level and output configuration applies to the whole process.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, configuration
	CategorySession   Category = "session"   // Session auth state, persistence, QR capture
	CategoryManager   Category = "manager"   // Registry, eviction scheduler
	CategoryMessaging Category = "messaging" // Composite sends, chat UI scripting
	CategoryProxy     Category = "proxy"     // Proxy pool, file watcher, probes
	CategoryJournal   Category = "journal"   // SQLite journal
	CategoryAPI       Category = "api"       // HTTP surface
	CategoryBrowser   Category = "browser"   // Browser process lifecycle
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	Level       string   // debug, info, warn, error
	Format      string   // json, console
	OutputPaths []string // zap sinks; defaults to stderr
}

var (
	root     = zap.NewNop()
	rootMu   sync.RWMutex
	children = make(map[Category]*zap.Logger)
)

// Initialize builds the root logger. It may be called again to reconfigure;
// loggers handed out earlier keep their previous core.
func Initialize(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	switch strings.ToLower(opts.Format) {
	case "", "json":
	case "console", "text":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetRoot(logger)
	return logger, nil
}

// SetRoot replaces the root logger. Tests use it with zaptest or zap.NewNop.
func SetRoot(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rootMu.Lock()
	defer rootMu.Unlock()
	root = logger
	children = make(map[Category]*zap.Logger)
}

// Root returns the root logger.
func Root() *zap.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Get returns (or creates) the logger for the given category.
func Get(category Category) *zap.Logger {
	rootMu.RLock()
	if l, ok := children[category]; ok {
		rootMu.RUnlock()
		return l
	}
	rootMu.RUnlock()

	rootMu.Lock()
	defer rootMu.Unlock()
	if l, ok := children[category]; ok {
		return l
	}
	l := root.Named(string(category))
	children[category] = l
	return l
}

// Sync flushes the root logger.
func Sync() error {
	return Root().Sync()
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
