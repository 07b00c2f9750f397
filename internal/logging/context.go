package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type tenantCtxKey struct{}
type sessionCtxKey struct{}
type executionCtxKey struct{}
type sagaCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := TenantIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("tenant_id", v))
	}
	if v := SessionIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("session_id", v))
	}
	if v := ExecutionIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("execution_id", v))
	}
	if v := SagaIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("saga_id", v))
	}
	return fields
}

// WithTenantID adds the tenant identifier to context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext extracts the tenant identifier, or "".
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantCtxKey{}).(string)
	return v
}

// WithSessionID adds the session identifier to context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext extracts the session identifier, or "".
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionCtxKey{}).(string)
	return v
}

// WithExecutionID adds the execution identifier to context.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionCtxKey{}, executionID)
}

// ExecutionIDFromContext extracts the execution identifier, or "".
func ExecutionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(executionCtxKey{}).(string)
	return v
}

// WithSagaID adds the saga identifier to context.
func WithSagaID(ctx context.Context, sagaID string) context.Context {
	return context.WithValue(ctx, sagaCtxKey{}, sagaID)
}

// SagaIDFromContext extracts the saga identifier, or "".
func SagaIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sagaCtxKey{}).(string)
	return v
}

// WithLogger stores a logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger, falling back to a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
