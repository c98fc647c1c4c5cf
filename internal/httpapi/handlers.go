// Package httpapi exposes the auth service over HTTP and the health
// service over gRPC.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"inventra.io/internal/auth"
	"inventra.io/internal/obs"
)

const serviceName = "inventra-api"

// ReadyProbe is a simple readiness check, e.g. a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options configures New.
type Options struct {
	Auth         *auth.Service
	Ready        readinessChecker
	Version      string
	Production   bool
	CORSOrigins  []string
	MaxBodyBytes int64
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	auth         *auth.Service
	gate         *Gate
	ready        readinessChecker
	version      string
	production   bool
	corsOrigins  []string
	maxBodyBytes int64
	trustProxy   bool
	now          func() time.Time
}

func New(opts Options) (*API, error) {
	if opts.Auth == nil {
		return nil, errors.New("httpapi: auth service is required")
	}
	if opts.Ready == nil {
		opts.Ready = ReadyProbe{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:          http.NewServeMux(),
		auth:         opts.Auth,
		gate:         NewGate(opts.Auth),
		ready:        opts.Ready,
		version:      opts.Version,
		production:   opts.Production,
		corsOrigins:  opts.CORSOrigins,
		maxBodyBytes: opts.MaxBodyBytes,
		trustProxy:   opts.TrustProxy,
		now:          time.Now,
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.Handle("POST /v1/auth/logout", a.gate.Optional(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("GET /v1/auth/me", a.gate.Required(http.HandlerFunc(a.handleMe)))

	a.mux.Handle("POST /v1/users", a.gate.Required(
		RequirePermission(auth.PermUsersCreate)(http.HandlerFunc(a.handleRegister))))
	a.mux.Handle("PATCH /v1/users/{id}/status", a.gate.Required(
		RequireRole(auth.RoleAdmin)(http.HandlerFunc(a.handleUserStatus))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNotFound)
	})
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	return a.middleware(obs.Instrument(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Logger().WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var errBodyRequired = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
