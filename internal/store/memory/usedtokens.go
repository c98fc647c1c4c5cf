package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"inventra.io/internal/auth"
)

var _ auth.UsedTokenSet = (*UsedTokens)(nil)

// minUsedTTL keeps ids of tokens that are already past expiry around for a
// short while, covering clock skew between instances.
const minUsedTTL = time.Minute

// UsedTokens is a process-local auth.UsedTokenSet backed by go-cache.
// Entries expire together with the token they describe.
type UsedTokens struct {
	c *cache.Cache
}

// NewUsedTokens returns an empty set that purges expired ids every cleanup interval.
func NewUsedTokens(cleanup time.Duration) *UsedTokens {
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &UsedTokens{c: cache.New(cache.NoExpiration, cleanup)}
}

func (u *UsedTokens) MarkUsed(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < minUsedTTL {
		ttl = minUsedTTL
	}
	// Add fails when the key is present, which makes check-and-set atomic.
	if err := u.c.Add(tokenID, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Len reports how many ids are currently remembered.
func (u *UsedTokens) Len() int { return u.c.ItemCount() }
