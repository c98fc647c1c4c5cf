package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inventra.io/internal/apperr"
	"inventra.io/internal/auth"
	"inventra.io/internal/obs"
)

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer restore()

	api := &API{maxBodyBytes: 1 << 10}
	handler := api.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("log is not valid JSON: %v", err)
		}
		if e["msg"] == "request_complete" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatalf("expected request_complete entry, got %q", buf.String())
	}
	for _, key := range []string{"time", "level", "msg", "request_id", "method", "path", "status", "duration_ms", "remote_ip"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
	if entry["remote_ip"] != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %v", entry["remote_ip"])
	}
	if entry["request_id"] == "" || rr.Header().Get("X-Request-ID") != entry["request_id"] {
		t.Fatalf("request id mismatch: header %q log %v", rr.Header().Get("X-Request-ID"), entry["request_id"])
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}
}

func TestMiddlewareRecoversPanics(t *testing.T) {
	restore := obs.SetLogger(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	defer restore()

	api := &API{maxBodyBytes: 1 << 10}
	handler := api.middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler(nil))

	req := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := serve(h, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	if got := serve(h, req).Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign site: %q", got)
	}
}

func TestMaxBodyBytesRejectsLargeBody(t *testing.T) {
	var decodeErr error
	h := MaxBodyBytes(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]string
		decodeErr = decodeJSON(r, &v)
	}), 16)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"k":"`+strings.Repeat("a", 64)+`"}`))
	serve(h, req)
	var maxErr *http.MaxBytesError
	if !errors.As(decodeErr, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", decodeErr)
	}
}

func TestWriteErrorStackOnlyOutsideProduction(t *testing.T) {
	restore := obs.SetLogger(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	defer restore()

	internal := apperr.Internal("Could not issue tokens", errors.New("signing failed"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	writeError(rr, req.WithContext(withExposeStack(req.Context())), internal)
	var dev struct {
		Error errorDetail `json:"error"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &dev)
	if dev.Error.Stack == "" || dev.Error.Message != "Could not issue tokens" || dev.Error.StatusCode != 500 {
		t.Fatalf("unexpected dev error body %+v", dev.Error)
	}
	if strings.Contains(rr.Body.String(), "signing failed") {
		t.Fatal("internal cause leaked to client")
	}

	rr = httptest.NewRecorder()
	writeError(rr, req, internal)
	if strings.Contains(rr.Body.String(), "stack") {
		t.Fatal("stack must not be exposed in production")
	}

	rr = httptest.NewRecorder()
	writeError(rr, req, errors.New("raw failure"))
	var generic errorEnvelope
	_ = json.Unmarshal(rr.Body.Bytes(), &generic)
	if rr.Code != 500 || generic.Error.Message != "Internal server error" {
		t.Fatalf("unexpected generic error %d %+v", rr.Code, generic)
	}
}

func TestClientIPIgnoresForwardedHeadersUnlessTrusted(t *testing.T) {
	restore := obs.SetLogger(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	defer restore()

	for _, tc := range []struct {
		trust bool
		want  string
	}{
		{trust: false, want: "192.0.2.10"},
		{trust: true, want: "203.0.113.7"},
	} {
		var got auth.ClientInfo
		api := &API{maxBodyBytes: 1 << 10, trustProxy: tc.trust}
		h := api.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = auth.ClientFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:51234"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got.IP != tc.want {
			t.Fatalf("trust=%v: client ip %q, want %q", tc.trust, got.IP, tc.want)
		}
	}
}
