// Package redis shares the used refresh token set between API instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inventra.io/internal/auth"
)

const (
	DefaultKeyPrefix = "inventra:auth:used-refresh:"
	minUsedTTL       = time.Minute
)

// setNXer is the subset of redis.UniversalClient the set needs.
type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// UsedTokens implements auth.UsedTokenSet with SET NX, so the first
// instance to see a token id wins.
type UsedTokens struct {
	client setNXer
	prefix string
	now    func() time.Time
}

var _ auth.UsedTokenSet = (*UsedTokens)(nil)

// NewUsedTokens constructs a Redis-backed set. An empty prefix selects
// DefaultKeyPrefix.
func NewUsedTokens(client redis.UniversalClient, prefix string) *UsedTokens {
	return newUsedTokens(client, prefix)
}

func newUsedTokens(client setNXer, prefix string) *UsedTokens {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &UsedTokens{client: client, prefix: prefix, now: time.Now}
}

func (u *UsedTokens) MarkUsed(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ok, err := u.client.SetNX(ctx, u.key(tokenID), 1, u.ttl(expiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("mark refresh token used: %w", err)
	}
	return ok, nil
}

func (u *UsedTokens) key(tokenID string) string { return u.prefix + tokenID }

func (u *UsedTokens) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(u.now())
	if ttl < minUsedTTL {
		return minUsedTTL
	}
	return ttl
}

// NewClient parses a redis:// URL into a client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
