package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"inventra.io/internal/apperr"
	"inventra.io/internal/obs"
)

// Service composes hashing, tokens and identity resolution into the
// login, refresh, registration and logout flows.
type Service struct {
	users    UserStore
	resolver Resolver
	hasher   PasswordHasher
	tokens   *TokenService
	audit    AuditRecorder
	used     UsedTokenSet
	now      func() time.Time
	tracer   trace.Tracer

	// decoy is verified against for unknown identifiers.
	decoy string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithResolver replaces the default IdentityResolver over the user store.
func WithResolver(r Resolver) ServiceOption {
	return func(s *Service) error {
		if r == nil {
			return errors.New("auth: resolver is nil")
		}
		s.resolver = r
		return nil
	}
}

// WithAuditRecorder sets the audit collaborator.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(s *Service) error {
		if a != nil {
			s.audit = a
		}
		return nil
	}
}

// WithUsedTokenSet enables refresh token replay detection.
func WithUsedTokenSet(u UsedTokenSet) ServiceOption {
	return func(s *Service) error {
		s.used = u
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, hasher PasswordHasher, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if hasher == nil {
		return nil, errors.New("auth: password hasher is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		audit:  nopAudit{},
		now:    time.Now,
		tracer: otel.Tracer("inventra.io/internal/auth"),
	}
	svc.resolver = NewIdentityResolver(users)
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	decoy, err := newDecoyHash(hasher)
	if err != nil {
		return nil, err
	}
	svc.decoy = decoy
	return svc, nil
}

// Tokens exposes the token service, e.g. for cookie lifetimes.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, identifier, password string, client ClientInfo) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer span.End()

	user, err := s.resolver.FindByIdentifier(ctx, identifier)
	if err != nil {
		obs.ObserveLogin("error")
		return nil, s.fail(span, apperr.Internal("Login failed", err))
	}
	if user == nil {
		// Spend the same hashing effort as for a real account.
		s.hasher.Verify(ctx, password, s.decoy)
		obs.ObserveLogin("invalid_credentials")
		return nil, s.fail(span, invalidCredentials())
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	if !user.IsActive {
		obs.ObserveLogin("deactivated")
		return nil, s.fail(span, apperr.Unauthorized(MsgAccountDeactivated).WithReason(apperr.ReasonAccountDeactivated))
	}
	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		obs.ObserveLogin("invalid_credentials")
		return nil, s.fail(span, invalidCredentials())
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}

	session, err := s.openSession(ctx, user, client)
	if err != nil {
		obs.ObserveLogin("error")
		return nil, s.fail(span, err)
	}
	obs.ObserveLogin("success")
	return session, nil
}

// openSession issues tokens, stamps the last login and records the audit
// event concurrently. Only token issuance can fail the login.
func (s *Service) openSession(ctx context.Context, user *User, client ClientInfo) (*Session, error) {
	now := s.now().UTC()
	var (
		g       errgroup.Group
		session *Session
	)
	g.Go(func() error {
		var err error
		session, err = s.issueSession(user)
		return err
	})
	g.Go(func() error {
		if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
			obs.Logger().WarnContext(ctx, "update last login failed", "user_id", user.ID, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.audit.RecordLogin(ctx, user.ID, client); err != nil {
			obs.Logger().WarnContext(ctx, "audit login event failed", "user_id", user.ID, "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal("Could not issue tokens", err)
	}
	session.User.LastLoginAt = &now
	return session, nil
}

func (s *Service) rehash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		obs.Logger().WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		obs.Logger().WarnContext(ctx, "persist rehashed password failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	obs.Logger().InfoContext(ctx, "password rehashed", "user_id", user.ID)
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token is burned, so replaying it fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Refresh")
	defer span.End()

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		obs.ObserveRefresh("invalid")
		return nil, s.fail(span, TokenError(err))
	}
	span.SetAttributes(attribute.String("user.id", claims.Subject))

	if s.used != nil {
		first, err := s.used.MarkUsed(ctx, claims.ID, claims.ExpiresAt.Time)
		if err != nil {
			obs.ObserveRefresh("error")
			return nil, s.fail(span, apperr.Internal("Could not refresh session", err))
		}
		if !first {
			obs.Logger().WarnContext(ctx, "refresh token replay rejected", "user_id", claims.Subject, "jti", claims.ID)
			obs.ObserveRefresh("reused")
			return nil, s.fail(span, apperr.Unauthorized(MsgTokenReused).WithReason(apperr.ReasonTokenReused))
		}
	}

	user, err := s.resolver.FindByID(ctx, claims.Subject)
	if err != nil {
		obs.ObserveRefresh("error")
		return nil, s.fail(span, apperr.Internal("Could not refresh session", err))
	}
	if user == nil {
		obs.ObserveRefresh("user_unavailable")
		return nil, s.fail(span, apperr.Unauthorized(MsgUserUnavailable).WithReason(apperr.ReasonUserNotFound))
	}

	session, err := s.issueSession(user)
	if err != nil {
		obs.ObserveRefresh("error")
		return nil, s.fail(span, apperr.Internal("Could not issue tokens", err))
	}
	obs.ObserveRefresh("success")
	return session, nil
}

// Register creates a user on behalf of createdBy. Email and username
// conflicts are checked before any hashing happens.
func (s *Service) Register(ctx context.Context, in NewUser, createdBy string, client ClientInfo) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer span.End()

	email := NormalizeIdentifier(in.Email)
	username := NormalizeIdentifier(in.Username)
	role := NormalizeIdentifier(in.Role)
	if role == "" {
		role = RoleViewer
	}
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, s.fail(span, apperr.Validation("A valid email address is required"))
	case username == "":
		return nil, s.fail(span, apperr.Validation("Username is required"))
	case strings.Contains(username, "@"):
		return nil, s.fail(span, apperr.Validation("Username must not contain '@'"))
	case in.Password == "":
		return nil, s.fail(span, apperr.Validation("Password is required"))
	}

	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, s.fail(span, apperr.Internal("Could not create user", err))
	}
	if taken {
		return nil, s.fail(span, apperr.Conflict(MsgEmailTaken))
	}
	taken, err = s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, s.fail(span, apperr.Internal("Could not create user", err))
	}
	if taken {
		return nil, s.fail(span, apperr.Conflict(MsgUsernameTaken))
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, s.fail(span, apperr.Validation("Password is required"))
		}
		return nil, s.fail(span, apperr.Internal("Could not create user", err))
	}

	user := &User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		Role:         &Role{Name: role},
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			return nil, s.fail(span, apperr.Conflict(MsgEmailTaken))
		case errors.Is(err, ErrUsernameTaken):
			return nil, s.fail(span, apperr.Conflict(MsgUsernameTaken))
		case errors.Is(err, ErrInvalidInput):
			return nil, s.fail(span, apperr.Validation(fmt.Sprintf("Unknown role %q", role)))
		default:
			return nil, s.fail(span, apperr.Internal("Could not create user", err))
		}
	}

	ev := UserCreatedEvent{
		UserID:      user.ID,
		Email:       user.Email,
		Username:    user.Username,
		ActorUserID: createdBy,
		Client:      client,
	}
	if err := s.audit.RecordUserCreated(ctx, ev); err != nil {
		obs.Logger().WarnContext(ctx, "audit user creation failed", "user_id", user.ID, "error", err)
	}
	return user.Sanitized(), nil
}

// Logout burns the refresh token when it is still valid and belongs to
// userID, then records the event. It never fails.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string, client ClientInfo) {
	if refreshToken != "" && s.used != nil {
		if claims, err := s.tokens.VerifyRefreshToken(refreshToken); err == nil {
			if userID == "" || claims.Subject == userID {
				if _, err := s.used.MarkUsed(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
					obs.Logger().WarnContext(ctx, "burn refresh token on logout failed", "user_id", claims.Subject, "error", err)
				}
				if userID == "" {
					userID = claims.Subject
				}
			}
		}
	}
	if userID == "" {
		return
	}
	if err := s.audit.RecordLogout(ctx, userID, client); err != nil {
		obs.Logger().WarnContext(ctx, "audit logout event failed", "user_id", userID, "error", err)
	}
}

// Authenticate validates an access token and loads the current user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return Principal{}, s.fail(span, TokenError(err))
	}
	user, err := s.resolver.FindByID(ctx, claims.Subject)
	if err != nil {
		return Principal{}, s.fail(span, apperr.Internal("Authentication failed", err))
	}
	if user == nil {
		return Principal{}, s.fail(span, apperr.Unauthorized(MsgUserUnavailable).WithReason(apperr.ReasonUserNotFound))
	}
	return NewPrincipal(user.Sanitized(), claims.ID), nil
}

// SetUserActive soft-deactivates or reactivates userID.
func (s *Service) SetUserActive(ctx context.Context, actorUserID, userID string, active bool, client ClientInfo) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("User id is required")
	}
	if !active && userID == actorUserID {
		return nil, apperr.Validation("You cannot deactivate your own account")
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal("Could not update user", err)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("Could not update user", err)
	}
	if err := s.audit.RecordStatusChange(ctx, userID, actorUserID, active, client); err != nil {
		obs.Logger().WarnContext(ctx, "audit status change failed", "user_id", userID, "error", err)
	}
	return user.Sanitized(), nil
}

func (s *Service) issueSession(user *User) (*Session, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Email, user.RoleName())
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: s.now().UTC().Add(s.tokens.RefreshTTL()),
		User:             user.Sanitized(),
	}, nil
}

// newDecoyHash hashes random bytes with the configured parameters, so
// that verifying against it costs as much as a real account.
func newDecoyHash(hasher PasswordHasher) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: decoy password: %w", err)
	}
	hash, err := hasher.Hash(context.Background(), base64.RawStdEncoding.EncodeToString(buf))
	if err != nil {
		return "", fmt.Errorf("auth: decoy hash: %w", err)
	}
	return hash, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func invalidCredentials() *apperr.Error {
	return apperr.Unauthorized(MsgInvalidCredentials).WithReason(apperr.ReasonInvalidCredentials)
}

// TokenError converts a token verification failure into a 401 error that
// tells expired tokens apart from invalid ones.
func TokenError(err error) *apperr.Error {
	if errors.Is(err, ErrTokenExpired) {
		return apperr.Unauthorized(MsgTokenExpired).WithReason(apperr.ReasonTokenExpired)
	}
	return apperr.Unauthorized(MsgTokenInvalid).WithReason(apperr.ReasonTokenInvalid)
}
