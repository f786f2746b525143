package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey  contextKey = "finitefield.org/storefront/internal/platform/requestctx/logger"
	visitorContextKey contextKey = "finitefield.org/storefront/internal/platform/requestctx/visitor"
	tabContextKey     contextKey = "finitefield.org/storefront/internal/platform/requestctx/tab"
	traceContextKey   contextKey = "finitefield.org/storefront/internal/platform/requestctx/trace"
)

// TabHeader carries the browser tab identifier on htmx requests.
const TabHeader = "X-Tab-ID"

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithVisitor records the visitor (session) identifier scoping persisted key sets.
func WithVisitor(ctx context.Context, visitorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, visitorContextKey, visitorID)
}

// Visitor returns the visitor identifier, or "" outside a visitor scope.
func Visitor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(visitorContextKey).(string)
	return v
}

// WithTab records the browser tab identifier the request originates from.
func WithTab(ctx context.Context, tabID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tabContextKey, tabID)
}

// Tab returns the tab identifier, or "" when the request carries none.
func Tab(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(tabContextKey).(string)
	return v
}

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}
