// Package logger wraps zap with the domain-specific With* helpers the
// engine packages attach to every log line.
package logger

import (
	"go.uber.org/zap"
)

// Logger wraps zap.Logger.
type Logger struct {
	*zap.Logger
}

// New creates a new logger instance.
func New(level, format string) (*Logger, error) {
	var cfg zap.Config

	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapLogger, err := cfg.Build(
		zap.AddCallerSkip(1),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: zapLogger}, nil
}

// WithListing adds listing_id to the logger context.
func (l *Logger) WithListing(listingID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("listing_id", listingID))}
}

// WithArchetype adds archetype to the logger context.
func (l *Logger) WithArchetype(archetype string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("archetype", archetype))}
}

// WithJob adds job to the logger context.
func (l *Logger) WithJob(job string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("job", job))}
}

// WithBatch adds batch_id to the logger context.
func (l *Logger) WithBatch(batchID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("batch_id", batchID))}
}
