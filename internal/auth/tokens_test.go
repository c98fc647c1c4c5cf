package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	}
}

func newTestTokens(t *testing.T, cfg TokenConfig, now *time.Time) *TokenService {
	t.Helper()
	var opts []TokenOption
	if now != nil {
		opts = append(opts, WithTokenClock(func() time.Time { return *now }))
	}
	svc, err := NewTokenService(cfg, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func TestNewTokenServiceValidatesSecrets(t *testing.T) {
	if _, err := NewTokenService(TokenConfig{AccessSecret: []byte("a")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing refresh secret, got %v", err)
	}
	if _, err := NewTokenService(TokenConfig{AccessSecret: []byte("same"), RefreshSecret: []byte("same")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for identical secrets, got %v", err)
	}
	svc := newTestTokens(t, testTokenConfig(), nil)
	if svc.AccessTTL() != DefaultAccessTTL || svc.RefreshTTL() != DefaultRefreshTTL {
		t.Fatalf("unexpected default ttls %v %v", svc.AccessTTL(), svc.RefreshTTL())
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokens(t, testTokenConfig(), nil)
	token, err := svc.IssueAccessToken("user-42", "alice@example.com", "manager")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID() != "user-42" || claims.Email != "alice@example.com" || claims.Role != "manager" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Issuer != DefaultIssuer || len(claims.Audience) != 1 || claims.Audience[0] != DefaultAudience {
		t.Fatalf("unexpected issuer/audience %q %v", claims.Issuer, claims.Audience)
	}
	if claims.ID == "" || claims.Type != TokenTypeAccess {
		t.Fatalf("expected jti and access type, got %+v", claims)
	}
}

func TestTokensIssuedInSameSecondDiffer(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, testTokenConfig(), &now)
	a, _ := svc.IssueRefreshToken("u1")
	b, _ := svc.IssueRefreshToken("u1")
	if a == b {
		t.Fatal("tokens issued in the same second must differ")
	}
}

func TestRefreshTokenCarriesNoProfileData(t *testing.T) {
	svc := newTestTokens(t, testTokenConfig(), nil)
	token, err := svc.IssueRefreshToken("user-7")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	claims, err := svc.VerifyRefreshToken(token)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if claims.UserID() != "user-7" || claims.Type != TokenTypeRefresh {
		t.Fatalf("unexpected claims %+v", claims)
	}
	payload := strings.Split(token, ".")[1]
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if strings.Contains(string(raw), "email") || strings.Contains(string(raw), "role") {
		t.Fatalf("refresh token leaks profile data: %s", raw)
	}
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	svc := newTestTokens(t, testTokenConfig(), nil)
	access, _ := svc.IssueAccessToken("u1", "u1@example.com", "viewer")
	refresh, _ := svc.IssueRefreshToken("u1")

	if _, err := svc.VerifyRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := svc.VerifyAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestTokenTypeClaimIsChecked(t *testing.T) {
	svc := newTestTokens(t, testTokenConfig(), nil)
	now := time.Now()
	// Signed with the access secret but typed as refresh.
	forged, err := svc.sign(AccessClaims{
		Email:            "u1@example.com",
		Type:             TokenTypeRefresh,
		RegisteredClaims: svc.registered("u1", now, time.Minute),
	}, svc.cfg.AccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.VerifyAccessToken(forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	noEmail, _ := svc.sign(AccessClaims{
		Type:             TokenTypeAccess,
		RegisteredClaims: svc.registered("u1", now, time.Minute),
	}, svc.cfg.AccessSecret)
	if _, err := svc.VerifyAccessToken(noEmail); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid without email, got %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	svc := newTestTokens(t, testTokenConfig(), nil)

	for i := 0; i < 20; i++ {
		token, err := svc.IssueAccessToken("u1", "u1@example.com", "viewer")
		if err != nil {
			t.Fatalf("IssueAccessToken: %v", err)
		}
		parts := strings.Split(token, ".")
		sig := []byte(parts[2])
		for _, pos := range []int{0, len(sig) - 1} {
			tampered := append([]byte(nil), sig...)
			// Flip the lowest bit of the character's 6-bit value.
			tampered[pos] = alphabet[strings.IndexByte(alphabet, sig[pos])^1]
			forged := parts[0] + "." + parts[1] + "." + string(tampered)
			if forged == token {
				t.Fatal("tampering produced the same token")
			}
			if _, err := svc.VerifyAccessToken(forged); !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("signature char %d flipped: expected ErrTokenInvalid, got %v", pos, err)
			}
		}
	}
	if _, err := svc.VerifyAccessToken(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}
}

func TestExpiredTokenDetected(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokens(t, testTokenConfig(), &now)
	token, _ := svc.IssueAccessToken("u1", "u1@example.com", "viewer")

	now = now.Add(DefaultAccessTTL - time.Minute)
	if _, err := svc.VerifyAccessToken(token); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := svc.VerifyAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestIssuerAndAudienceBinding(t *testing.T) {
	issuer := newTestTokens(t, testTokenConfig(), nil)
	token, _ := issuer.IssueAccessToken("u1", "u1@example.com", "viewer")

	otherIss := testTokenConfig()
	otherIss.Issuer = "another-deployment"
	if _, err := newTestTokens(t, otherIss, nil).VerifyAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected issuer mismatch to be invalid, got %v", err)
	}

	otherAud := testTokenConfig()
	otherAud.Audience = "another-client"
	if _, err := newTestTokens(t, otherAud, nil).VerifyAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected audience mismatch to be invalid, got %v", err)
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	svc := newTestTokens(t, testTokenConfig(), nil)
	if _, err := svc.IssueAccessToken("u1", " ", "viewer"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.IssueRefreshToken(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
