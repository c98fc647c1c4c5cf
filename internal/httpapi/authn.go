package httpapi

import (
	"context"
	"net/http"
	"strings"

	"inventra.io/internal/apperr"
	"inventra.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authenticator turns an access token into a principal. *auth.Service
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
}

// Gate authenticates requests in Required or Optional mode.
type Gate struct {
	authn Authenticator
}

func NewGate(authn Authenticator) *Gate {
	return &Gate{authn: authn}
}

// Required rejects requests without a valid bearer token with 401.
func (g *Gate) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, err)
			return
		}
		principal, err := g.authn.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// Optional attaches a principal when the request carries a valid token and
// otherwise lets it through anonymously.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := g.authn.Authenticate(r.Context(), token)
		if err != nil {
			if apperr.IsKind(err, apperr.KindInternal) {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequirePermission allows the request only when the principal's role
// grants perm.
func RequirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, tokenMissing())
				return
			}
			if !principal.HasPermission(perm) {
				writeError(w, r, apperr.Forbidden(auth.MissingPermissionMessage(perm)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows the request only when the principal's role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, tokenMissing())
				return
			}
			if !principal.HasRole(roles...) {
				writeError(w, r, apperr.Forbidden(auth.MsgForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenMissing() *apperr.Error {
	return apperr.Unauthorized(auth.MsgTokenMissing).WithReason(apperr.ReasonTokenMissing)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", tokenMissing()
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, strings.TrimSpace(bearer)) {
		return "", apperr.Unauthorized(auth.MsgTokenInvalid).WithReason(apperr.ReasonTokenInvalid)
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", tokenMissing()
	}
	return token, nil
}
