package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across the intake
// pipeline. Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldBatch    = "batch"
	FieldGuid     = "guid"
	FieldUniqueID = "unique_id"
	FieldJobID    = "job_id"

	// Components
	FieldComponent = "component"
	FieldWorker    = "worker"

	// Source lineage
	FieldSourceID   = "source_id"
	FieldSourceType = "source_type"
	FieldFile       = "file"
	FieldFileLogID  = "file_log_id"
	FieldPosition   = "position"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount  = "count"
	FieldItems  = "items"
	FieldErrors = "errors"
	FieldTotal  = "total"

	// Status
	FieldStatus = "status"
	FieldState  = "state"
)

// Context keys for propagating logging context
type contextKey string

const (
	batchKey     contextKey = "logger_batch"
	jobIDKey     contextKey = "logger_job_id"
	componentKey contextKey = "logger_component"
)

// WithBatch adds a batch name to the context for logging
func WithBatch(ctx context.Context, batch string) context.Context {
	return context.WithValue(ctx, batchKey, batch)
}

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if batch, ok := ctx.Value(batchKey).(string); ok && batch != "" {
		fields = append(fields, FieldBatch, batch)
	}
	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
// Use this to get a logger that automatically includes batch, job_id, etc.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Transmitter struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewTransmitter() *Transmitter {
//	    return &Transmitter{
//	        logger: logger.ComponentLogger("transmit"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	itemLogger := logger.ChildLogger(baseLogger, "unique_id", item.UniqueID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
