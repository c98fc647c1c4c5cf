package httpapi

import (
	"context"
	"net/http"

	"inventra.io/internal/apperr"
	"inventra.io/internal/audit"
	"inventra.io/internal/obs"
)

var (
	errNotFound    = apperr.NotFound("Route not found")
	errInvalidBody = apperr.Validation("Invalid request body")
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Stack      string `json:"stack,omitempty"`
}

type exposeStackKey struct{}

// withExposeStack marks ctx so that error bodies include stack traces.
func withExposeStack(ctx context.Context) context.Context {
	return context.WithValue(ctx, exposeStackKey{}, true)
}

// writeError renders err as {"error":{...}}. Unknown errors become a
// generic 500 and are reported to Sentry.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	status := ae.StatusCode()
	ctx := r.Context()
	requestID := audit.RequestIDFromContext(ctx)

	switch status {
	case http.StatusUnauthorized:
		if ae.Reason == "" || ae.Reason == apperr.ReasonTokenMissing {
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+serviceName+`"`)
		} else {
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+serviceName+`", error="invalid_token"`)
		}
	case http.StatusForbidden:
		w.Header().Set("WWW-Authenticate", `Bearer realm="`+serviceName+`", error="insufficient_scope"`)
	}

	detail := errorDetail{
		Message:    ae.Message,
		StatusCode: status,
		Code:       ae.Reason,
		RequestID:  requestID,
	}
	if status >= http.StatusInternalServerError {
		obs.Logger().ErrorContext(ctx, "request failed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"error", ae.Error(),
		)
		obs.CaptureError(ae, map[string]string{
			"request_id": requestID,
			"path":       obs.CanonicalPath(r.URL.Path),
		})
		if exposed, _ := ctx.Value(exposeStackKey{}).(bool); exposed && len(ae.Stack) > 0 {
			detail.Stack = string(ae.Stack)
		}
	}
	writeJSON(w, status, errorBody{Error: detail})
}
