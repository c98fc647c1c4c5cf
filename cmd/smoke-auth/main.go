// Command smoke-auth drives the login, refresh and logout flow against a
// running API and checks the gRPC health endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type client struct {
	base string
	http *http.Client
}

func main() {
	_ = godotenv.Load()
	base := envOr("INVENTRA_SMOKE_URL", "http://localhost:8080")
	grpcAddr := envOr("INVENTRA_SMOKE_GRPC_ADDR", "localhost:9090")
	identifier := envOr("INVENTRA_SMOKE_IDENTIFIER", os.Getenv("INVENTRA_BOOTSTRAP_ADMIN_EMAIL"))
	password := envOr("INVENTRA_SMOKE_PASSWORD", os.Getenv("INVENTRA_BOOTSTRAP_ADMIN_PASSWORD"))
	if identifier == "" || password == "" {
		log.Fatal("set INVENTRA_SMOKE_IDENTIFIER and INVENTRA_SMOKE_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	checkHealth(ctx, grpcAddr)

	jar, _ := cookiejar.New(nil)
	c := &client{base: base, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}

	var login struct {
		AccessToken string `json:"accessToken"`
	}
	if code := c.do(ctx, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &login); code != http.StatusOK {
		log.Fatalf("login: status %d", code)
	}
	oldRefresh := c.refreshCookie()
	if login.AccessToken == "" || oldRefresh == nil {
		log.Fatal("login: missing access token or refresh cookie")
	}

	var me struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if code := c.do(ctx, http.MethodGet, "/v1/auth/me", login.AccessToken, nil, &me); code != http.StatusOK || me.User.ID == "" {
		log.Fatalf("me: status %d", code)
	}

	var refreshed struct {
		AccessToken string `json:"accessToken"`
	}
	if code := c.do(ctx, http.MethodPost, "/v1/auth/refresh", "", nil, &refreshed); code != http.StatusOK {
		log.Fatalf("refresh: status %d", code)
	}

	// Replay the rotated-out refresh token.
	replay := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}
	if code := replay.doWithCookie(ctx, "/v1/auth/refresh", oldRefresh); code != http.StatusUnauthorized {
		log.Fatalf("replayed refresh token accepted: status %d", code)
	}

	if code := c.do(ctx, http.MethodPost, "/v1/auth/logout", refreshed.AccessToken, nil, nil); code != http.StatusNoContent {
		log.Fatalf("logout: status %d", code)
	}
	if code := c.do(ctx, http.MethodPost, "/v1/auth/refresh", "", nil, nil); code != http.StatusUnauthorized {
		log.Fatalf("refresh after logout: status %d", code)
	}

	fmt.Printf("auth smoke test passed: user=%s\n", me.User.ID)
}

func checkHealth(ctx context.Context, addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "inventra-api"})
	if err != nil {
		log.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("health: %s", resp.GetStatus())
	}
}

func (c *client) do(ctx context.Context, method, path, bearer string, body, out any) int {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.send(req, out)
}

func (c *client) doWithCookie(ctx context.Context, path string, cookie *http.Cookie) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, nil)
	if err != nil {
		log.Fatalf("POST %s: %v", path, err)
	}
	req.AddCookie(cookie)
	return c.send(req, nil)
}

func (c *client) send(req *http.Request, out any) int {
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", req.Method, req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func (c *client) refreshCookie() *http.Cookie {
	req, _ := http.NewRequest(http.MethodPost, c.base+"/v1/auth/refresh", nil)
	for _, ck := range c.http.Jar.Cookies(req.URL) {
		if ck.Name == "refreshToken" {
			cp := *ck
			return &cp
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
