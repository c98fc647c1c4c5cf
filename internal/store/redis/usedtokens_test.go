package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeClient struct {
	seen    map[string]time.Duration
	failure error
}

func (f *fakeClient) SetNX(_ context.Context, key string, _ any, exp time.Duration) *redis.BoolCmd {
	if f.failure != nil {
		return redis.NewBoolResult(false, f.failure)
	}
	if _, ok := f.seen[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.seen[key] = exp
	return redis.NewBoolResult(true, nil)
}

func TestUsedTokensMarkUsed(t *testing.T) {
	fake := &fakeClient{seen: map[string]time.Duration{}}
	set := newUsedTokens(fake, "")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return now }

	first, err := set.MarkUsed(context.Background(), "jti", now.Add(2*time.Hour))
	if err != nil || !first {
		t.Fatalf("expected first use, got %v %v", first, err)
	}
	again, err := set.MarkUsed(context.Background(), "jti", now.Add(2*time.Hour))
	if err != nil || again {
		t.Fatalf("expected replay, got %v %v", again, err)
	}

	ttl, ok := fake.seen[DefaultKeyPrefix+"jti"]
	if !ok {
		t.Fatalf("expected prefixed key, got %v", fake.seen)
	}
	if ttl != 2*time.Hour {
		t.Fatalf("expected ttl of remaining token lifetime, got %v", ttl)
	}
}

func TestUsedTokensMinimumTTL(t *testing.T) {
	set := newUsedTokens(&fakeClient{seen: map[string]time.Duration{}}, "custom:")
	now := time.Now()
	set.now = func() time.Time { return now }

	if got := set.ttl(now.Add(-time.Hour)); got != minUsedTTL {
		t.Fatalf("expected minimum ttl, got %v", got)
	}
	if got := set.key("abc"); got != "custom:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestUsedTokensBackendError(t *testing.T) {
	set := newUsedTokens(&fakeClient{failure: errors.New("connection refused")}, "")
	_, err := set.MarkUsed(context.Background(), "jti", time.Now().Add(time.Hour))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}
