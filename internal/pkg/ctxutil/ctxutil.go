// Package ctxutil carries request-scoped values (caller identity and trace
// ids) across the HTTP, service and job layers.
package ctxutil

import "context"

type (
	principalKey struct{}
	traceKey     struct{}
)

// Principal is the authenticated caller of a request. Every read and write is
// scoped to its project and organization.
type Principal struct {
	Subject        string
	ProjectID      uint64
	OrganizationID uint64
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(Default(ctx), principalKey{}, p)
}

func GetPrincipal(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Trace identifies one inbound request for log correlation.
type Trace struct {
	TraceID   string
	RequestID string
}

func WithTrace(ctx context.Context, tr Trace) context.Context {
	return context.WithValue(Default(ctx), traceKey{}, tr)
}

// TraceFrom reports false when no trace ids were attached.
func TraceFrom(ctx context.Context) (Trace, bool) {
	if ctx == nil {
		return Trace{}, false
	}
	tr, ok := ctx.Value(traceKey{}).(Trace)
	return tr, ok
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
