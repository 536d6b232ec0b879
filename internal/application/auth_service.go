package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/example/booking-engine/internal/persistence"
)

// SessionName names the session cookie and is mixed into every token signature.
const SessionName = "booking_session"

// AuthStore exposes the user and tenant lookups required by the auth service.
type AuthStore interface {
	persistence.UserRepository
	persistence.TenantRepository
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthOptions configures session signing and password handling.
type AuthOptions struct {
	// HashKey signs session tokens and must be at least 32 bytes.
	HashKey []byte
	// BlockKey encrypts session tokens when set (16, 24 or 32 bytes).
	BlockKey   []byte
	SessionTTL time.Duration
	Hasher     PasswordHasher
	Verify     PasswordVerifier
	Logger     *slog.Logger
}

// AuthenticateParams carries a login attempt.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult is the outcome of a successful login.
type AuthenticateResult struct {
	User    persistence.User
	Session Session
}

// sessionPayload is the signed content of a session token.
type sessionPayload struct {
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
}

// AuthService handles login, account registration and stateless sessions.
type AuthService struct {
	store          AuthStore
	codec          *securecookie.SecureCookie
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	idGenerator    func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService. It fails when the session keys
// are unusable.
func NewAuthService(store AuthStore, idGenerator func() string, now func() time.Time, opts AuthOptions) (*AuthService, error) {
	if len(opts.HashKey) < 32 {
		return nil, fmt.Errorf("session hash key must be at least 32 bytes, got %d", len(opts.HashKey))
	}
	switch len(opts.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("session block key must be 16, 24 or 32 bytes, got %d", len(opts.BlockKey))
	}
	if opts.Hasher == nil {
		opts.Hasher = HashPassword
	}
	if opts.Verify == nil {
		opts.Verify = VerifyPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}

	var blockKey []byte
	if len(opts.BlockKey) > 0 {
		blockKey = opts.BlockKey
	}
	codec := securecookie.New(opts.HashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// Expiry is carried in the payload and checked against the injected clock.
	codec.MaxAge(0)

	return &AuthService{
		store:          store,
		codec:          codec,
		hashPassword:   opts.Hasher,
		verifyPassword: opts.Verify,
		idGenerator:    idGenerator,
		now:            now,
		sessionTTL:     opts.SessionTTL,
		logger:         defaultLogger(opts.Logger),
	}, nil
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// SessionTTL reports how long issued sessions stay valid.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Authenticate validates credentials and issues a session token.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		logOutcome(ctx, logger, err, "authentication failed", "authentication succeeded", "user_id", result.User.ID)
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var user persistence.User
	user, err = s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if err = s.verifyPassword(user.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	var session Session
	session, err = s.IssueSession(user)
	if err != nil {
		return
	}
	result = AuthenticateResult{User: user, Session: session}
	return
}

// IssueSession signs a session token for user.
func (s *AuthService) IssueSession(user persistence.User) (Session, error) {
	if user.ID == "" {
		return Session{}, ErrUnauthorized
	}
	expiresAt := s.now().Add(s.sessionTTL).UTC().Truncate(time.Second)
	token, err := s.codec.Encode(SessionName, sessionPayload{UserID: user.ID, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	return Session{
		Token:     token,
		Principal: principalOf(user),
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateSession decodes token and returns the principal of its user. The
// user is re-read so role changes apply to sessions already issued.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	token = strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if token == "" {
		err = ErrUnauthorized
		return
	}

	var payload sessionPayload
	if decodeErr := s.codec.Decode(SessionName, token, &payload); decodeErr != nil || payload.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if !time.Unix(payload.ExpiresAt, 0).After(s.now()) {
		err = ErrSessionExpired
		return
	}

	var user persistence.User
	user, err = s.store.GetUser(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}
	principal = principalOf(user)
	return
}

// RegisterUser creates an account. A TenantID makes the user a member of that
// tenant; IsAdmin without a tenant creates platform staff.
func (s *AuthService) RegisterUser(ctx context.Context, params RegisterUserParams) (user persistence.User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "RegisterUser", "email", email, "tenant_id", params.TenantID, "is_admin", params.IsAdmin)
	defer func() {
		logOutcome(ctx, logger, err, "failed to register user", "user registered", "user_id", user.ID)
	}()

	vErr := &ValidationError{}
	if _, parseErr := mail.ParseAddress(email); email == "" || parseErr != nil {
		vErr.add("email", "a valid email is required")
	}
	if len(params.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	tenantID := strings.TrimSpace(params.TenantID)
	if tenantID != "" {
		if _, lookupErr := s.store.GetTenant(ctx, tenantID); lookupErr != nil {
			if !errors.Is(lookupErr, persistence.ErrNotFound) {
				err = lookupErr
				return
			}
			vErr.add("tenant", "unknown tenant")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hashPassword(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	candidate := persistence.User{
		ID:           s.idGenerator(),
		TenantID:     tenantID,
		Email:        email,
		DisplayName:  strings.TrimSpace(params.DisplayName),
		PasswordHash: hash,
		IsAdmin:      params.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.store.CreateUser(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	user = candidate
	return
}

func principalOf(user persistence.User) Principal {
	return Principal{UserID: user.ID, TenantID: user.TenantID, IsAdmin: user.IsAdmin}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
