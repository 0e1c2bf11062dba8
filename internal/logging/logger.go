// Package logging provides category-scoped structured logging for the
// investigation engine, built on zap with lumberjack file rotation.
// Categories map to engine subsystems so a single noisy component can be
// silenced through config without touching call sites.
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category names an engine subsystem for log routing.
type Category string

const (
	CategoryEngine     Category = "engine"     // OODA controller turns
	CategoryEvidence   Category = "evidence"   // request lifecycle
	CategoryClassifier Category = "classifier" // five-dimension classification
	CategoryMemory     Category = "memory"     // tier compaction
	CategoryState      Category = "state"      // phase/mode/status transitions
	CategoryRecovery   Category = "recovery"   // loop detection and recovery
	CategoryStore      Category = "store"      // persistence
	CategoryLLM        Category = "llm"        // generation calls
)

// Config controls the logging backend.
type Config struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level"`
	// FilePath is the rotated log file; empty logs to stderr only.
	FilePath string `yaml:"file_path"`
	// MaxSizeMB, MaxBackups, MaxAgeDays configure rotation.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
	// Categories enables/disables individual categories. A category
	// absent from the map is enabled.
	Categories map[string]bool `yaml:"categories"`
	// Console mirrors log output to stderr in addition to the file.
	Console bool `yaml:"console"`
}

// DefaultConfig returns production defaults: info level, file rotation.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FilePath:   "logs/triage.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Console:    false,
	}
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop().Sugar()
	enabled map[string]bool
	nop     = zap.NewNop().Sugar()
)

// Initialize builds the shared logger from config. Safe to call more than
// once; later calls replace the backend. Tests that never call Initialize
// get a no-op logger.
func Initialize(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	var cores []zapcore.Core
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotator), level))
	}
	if cfg.Console || cfg.FilePath == "" {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))

	mu.Lock()
	root = logger.Sugar()
	enabled = cfg.Categories
	mu.Unlock()
	return nil
}

// Get returns the logger for a category, or a no-op logger when the
// category is disabled.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if enabled != nil {
		if on, ok := enabled[string(c)]; ok && !on {
			return nop
		}
	}
	return root.With("cat", string(c))
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Convenience accessors, one per subsystem.

func Engine() *zap.SugaredLogger     { return Get(CategoryEngine) }
func Evidence() *zap.SugaredLogger   { return Get(CategoryEvidence) }
func Classifier() *zap.SugaredLogger { return Get(CategoryClassifier) }
func Memory() *zap.SugaredLogger     { return Get(CategoryMemory) }
func State() *zap.SugaredLogger      { return Get(CategoryState) }
func Recovery() *zap.SugaredLogger   { return Get(CategoryRecovery) }
func Store() *zap.SugaredLogger      { return Get(CategoryStore) }
func LLM() *zap.SugaredLogger        { return Get(CategoryLLM) }
