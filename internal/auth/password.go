package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	"inventra.io/internal/obs"
)

const maxHashMemoryKiB = 4 * 1024 * 1024

// HashParams are the Argon2id cost settings.
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultHashParams are the production settings.
func DefaultHashParams() HashParams {
	return HashParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 2, KeyLength: 32, SaltLength: 16}
}

// LightHashParams keep development and test runs fast.
func LightHashParams() HashParams {
	return HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16}
}

// Validate rejects settings argon2 cannot work with.
func (p HashParams) Validate() error {
	switch {
	case p.Memory == 0 || p.Memory > maxHashMemoryKiB:
		return fmt.Errorf("%w: hash memory must be within 1..%d KiB", ErrInvalidInput, maxHashMemoryKiB)
	case p.Iterations == 0:
		return fmt.Errorf("%w: hash iterations must be positive", ErrInvalidInput)
	case p.Parallelism == 0:
		return fmt.Errorf("%w: hash parallelism must be positive", ErrInvalidInput)
	case p.KeyLength < 16:
		return fmt.Errorf("%w: hash key length must be at least 16", ErrInvalidInput)
	case p.SaltLength < 8:
		return fmt.Errorf("%w: salt length must be at least 8", ErrInvalidInput)
	}
	return nil
}

// Hasher produces and checks Argon2id password hashes encoded as
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
type Hasher struct {
	params HashParams
	pool   *Pool

	// anomalies are logged a few times, then at most once a minute.
	anomaly rate.Sometimes
}

// NewHasher builds a Hasher. When pool is nil hashing runs on the caller's goroutine.
func NewHasher(params HashParams, pool *Pool) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{
		params:  params,
		pool:    pool,
		anomaly: rate.Sometimes{First: 5, Interval: time.Minute},
	}, nil
}

// Params returns the configured cost settings.
func (h *Hasher) Params() HashParams { return h.params }

// Hash derives a new salted hash for password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	p := h.params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	var key []byte
	start := time.Now()
	err := h.run(ctx, func() {
		key = argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	})
	obs.ObservePasswordHash("hash", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return encodeHash(p, salt, key), nil
}

// Verify reports whether password matches encoded. Malformed input yields
// false and is logged, never returned as an error.
func (h *Hasher) Verify(ctx context.Context, password, encoded string) bool {
	p, salt, want, err := decodeHash(encoded)
	if err != nil {
		h.anomaly.Do(func() {
			obs.Logger().Warn("password hash anomaly", "error", err)
		})
		return false
	}

	var got []byte
	start := time.Now()
	err = h.run(ctx, func() {
		got = argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	})
	obs.ObservePasswordHash("verify", time.Since(start))
	if err != nil {
		obs.Logger().Warn("password verification aborted", "error", err)
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsRehash reports whether encoded was produced with settings other than
// the configured ones. Undecodable hashes always need a rehash.
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	cur := h.params
	return p.Memory != cur.Memory ||
		p.Iterations != cur.Iterations ||
		p.Parallelism != cur.Parallelism ||
		uint32(len(key)) != cur.KeyLength ||
		uint32(len(salt)) != cur.SaltLength
}

func (h *Hasher) run(ctx context.Context, fn func()) error {
	if h.pool == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn()
		return nil
	}
	return h.pool.Do(ctx, fn)
}

func encodeHash(p HashParams, salt, key []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return HashParams{}, nil, nil, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return HashParams{}, nil, nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("parse version: %w", err)
	}
	if version != argon2.Version {
		return HashParams{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var (
		p           HashParams
		parallelism uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &parallelism); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("parse params: %w", err)
	}
	if parallelism == 0 || parallelism > 255 {
		return HashParams{}, nil, nil, fmt.Errorf("invalid parallelism %d", parallelism)
	}
	p.Parallelism = uint8(parallelism)
	if p.Memory == 0 || p.Memory > maxHashMemoryKiB || p.Iterations == 0 {
		return HashParams{}, nil, nil, errors.New("hash params out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return HashParams{}, nil, nil, errors.New("invalid salt encoding")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return HashParams{}, nil, nil, errors.New("invalid key encoding")
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
