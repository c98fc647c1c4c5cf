package auth

import "context"

type principalContextKey struct{}
type clientContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID() == "" {
		return "", false
	}
	return p.UserID(), true
}

// ContextWithClient stores caller metadata for audit events.
func ContextWithClient(ctx context.Context, client ClientInfo) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// ClientFromContext returns caller metadata previously stored with ContextWithClient.
func ClientFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	c, _ := ctx.Value(clientContextKey{}).(ClientInfo)
	return c
}
