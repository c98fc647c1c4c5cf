package auth

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inventra.io/internal/ids"
	"inventra.io/internal/obs"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "inventra-api"
	DefaultAudience   = "inventra-clients"

	clockSkew = 5 * time.Second
)

// TokenConfig is the immutable signing configuration of a TokenService.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *AccessClaims) UserID() string { return c.Subject }

// RefreshClaims are carried by refresh tokens. They hold no profile data.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *RefreshClaims) UserID() string { return c.Subject }

// TokenService signs and verifies HS256 access and refresh tokens. Each
// token type has its own secret, so one can never pass as the other.
type TokenService struct {
	cfg    TokenConfig
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService validates cfg, fills defaults and returns a ready service.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: access and refresh secrets are required", ErrInvalidInput)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidInput)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	// Own copies, so callers cannot mutate the secrets afterwards.
	cfg.AccessSecret = bytes.Clone(cfg.AccessSecret)
	cfg.RefreshSecret = bytes.Clone(cfg.RefreshSecret)

	s := &TokenService{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		// Reject non-canonical base64, otherwise the spare bits of the last
		// signature character could be flipped without breaking the MAC.
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueAccessToken mints an access token for the user.
func (s *TokenService) IssueAccessToken(userID, email, role string) (string, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)
	if userID == "" || email == "" {
		return "", fmt.Errorf("%w: user id and email are required", ErrInvalidInput)
	}
	now := s.now().UTC()
	claims := AccessClaims{
		Email:            email,
		Role:             role,
		Type:             TokenTypeAccess,
		RegisteredClaims: s.registered(userID, now, s.cfg.AccessTTL),
	}
	return s.sign(claims, s.cfg.AccessSecret)
}

// IssueRefreshToken mints a refresh token for the user.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	claims := RefreshClaims{
		Type:             TokenTypeRefresh,
		RegisteredClaims: s.registered(userID, now, s.cfg.RefreshTTL),
	}
	return s.sign(claims, s.cfg.RefreshSecret)
}

// VerifyAccessToken returns the claims of a valid access token. It fails
// with ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(token, claims, s.cfg.AccessSecret); err != nil {
		observeVerification(TokenTypeAccess, err)
		return nil, err
	}
	if claims.Type != TokenTypeAccess ||
		strings.TrimSpace(claims.Subject) == "" ||
		strings.TrimSpace(claims.Email) == "" ||
		claims.ID == "" {
		observeVerification(TokenTypeAccess, ErrTokenInvalid)
		return nil, fmt.Errorf("%w: missing or unexpected claims", ErrTokenInvalid)
	}
	observeVerification(TokenTypeAccess, nil)
	return claims, nil
}

// VerifyRefreshToken returns the claims of a valid refresh token. It fails
// with ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(token, claims, s.cfg.RefreshSecret); err != nil {
		observeVerification(TokenTypeRefresh, err)
		return nil, err
	}
	if claims.Type != TokenTypeRefresh ||
		strings.TrimSpace(claims.Subject) == "" ||
		claims.ID == "" {
		observeVerification(TokenTypeRefresh, ErrTokenInvalid)
		return nil, fmt.Errorf("%w: missing or unexpected claims", ErrTokenInvalid)
	}
	observeVerification(TokenTypeRefresh, nil)
	return claims, nil
}

func (s *TokenService) registered(userID string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        ids.TokenID(),
	}
}

func (s *TokenService) sign(claims jwt.Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, secret []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil && parsed.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case err != nil:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	default:
		return ErrTokenInvalid
	}
}

func observeVerification(tokenType string, err error) {
	switch {
	case err == nil:
		obs.ObserveTokenVerification(tokenType, "ok")
	case errors.Is(err, ErrTokenExpired):
		obs.ObserveTokenVerification(tokenType, "expired")
	default:
		obs.ObserveTokenVerification(tokenType, "invalid")
	}
}
