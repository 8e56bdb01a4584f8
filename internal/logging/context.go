package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	scope := ScopeFromContext(ctx)
	if scope.UserID != "" {
		fields = append(fields, zap.String("user.id", scope.UserID))
	}
	if scope.TeamID != "" {
		fields = append(fields, zap.String("team.id", scope.TeamID))
	}
	if scope.ProjectID != "" {
		fields = append(fields, zap.String("project.id", scope.ProjectID))
	}

	return fields
}

type scopeCtxKey struct{}
type requestCtxKey struct{}

// Scope identifies who a request acts for and what it touches.
type Scope struct {
	UserID    string
	TeamID    string
	ProjectID string
}

// WithScope merges non-empty fields of s into the scope already on ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	cur := ScopeFromContext(ctx)
	if s.UserID != "" {
		cur.UserID = s.UserID
	}
	if s.TeamID != "" {
		cur.TeamID = s.TeamID
	}
	if s.ProjectID != "" {
		cur.ProjectID = s.ProjectID
	}
	return context.WithValue(ctx, scopeCtxKey{}, cur)
}

// ScopeFromContext returns the scope on ctx, or the zero Scope.
func ScopeFromContext(ctx context.Context) Scope {
	if s, ok := ctx.Value(scopeCtxKey{}).(Scope); ok {
		return s
	}
	return Scope{}
}

// WithRequestID adds request ID to context. Empty IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	if len(requestID) > 128 {
		requestID = requestID[:128]
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}
