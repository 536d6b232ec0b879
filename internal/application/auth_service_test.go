package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/memory"
	"github.com/example/booking-engine/internal/persistence/persistencetest"
)

var testHashKey = []byte(strings.Repeat("k", 32))

// fastHasher keeps argon2 cost low in tests.
func fastHasher(password string) (string, error) {
	return CreatePasswordHash(password, Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
}

func newAuthService(t *testing.T, store AuthStore, clock *testClock, blockKey []byte) *AuthService {
	t.Helper()
	svc, err := NewAuthService(store, sequentialIDs("user"), clock.Now, AuthOptions{
		HashKey:    testHashKey,
		BlockKey:   blockKey,
		SessionTTL: time.Hour,
		Hasher:     fastHasher,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewAuthService returned error: %v", err)
	}
	return svc
}

func TestNewAuthService_RejectsWeakKeys(t *testing.T) {
	t.Parallel()

	if _, err := NewAuthService(memory.New(), nil, nil, AuthOptions{HashKey: []byte("short")}); err == nil {
		t.Fatalf("expected short hash key to be rejected")
	}
	if _, err := NewAuthService(memory.New(), nil, nil, AuthOptions{HashKey: testHashKey, BlockKey: []byte("odd")}); err == nil {
		t.Fatalf("expected odd sized block key to be rejected")
	}
}

func TestAuthService_RegisterUser(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seed := persistencetest.SeedCatalog(t, store)
	clock := &testClock{now: testNow}
	svc := newAuthService(t, store, clock, nil)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, RegisterUserParams{
		Email: " New.Admin@Acme.test ", Password: "correct horse", DisplayName: "New Admin",
		TenantID: seed.TenantID, IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}
	if user.Email != "new.admin@acme.test" || user.TenantID != seed.TenantID || !user.IsAdmin {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.PasswordHash == "correct horse" || VerifyPassword(user.PasswordHash, "correct horse") != nil {
		t.Fatalf("expected a verifiable password hash")
	}

	tests := []struct {
		name    string
		params  RegisterUserParams
		field   string
		wantErr error
	}{
		{name: "invalid email", params: RegisterUserParams{Email: "nope", Password: "long enough"}, field: "email"},
		{name: "short password", params: RegisterUserParams{Email: "a@b.test", Password: "short"}, field: "password"},
		{name: "unknown tenant", params: RegisterUserParams{Email: "a@b.test", Password: "long enough", TenantID: "missing"}, field: "tenant"},
		{name: "duplicate email", params: RegisterUserParams{Email: "NEW.ADMIN@acme.test", Password: "long enough"}, wantErr: ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterUser(ctx, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			expectFieldError(t, err, tt.field)
		})
	}
}

func TestAuthService_AuthenticateAndValidate(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		blockKey []byte
	}{
		{name: "signed"},
		{name: "signed and encrypted", blockKey: []byte(strings.Repeat("b", 32))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := memory.New()
			clock := &testClock{now: testNow}
			svc := newAuthService(t, store, clock, tc.blockKey)
			ctx := context.Background()

			registered, err := svc.RegisterUser(ctx, RegisterUserParams{Email: "staff@example.test", Password: "s3cret-pass", IsAdmin: true})
			if err != nil {
				t.Fatalf("RegisterUser returned error: %v", err)
			}

			result, err := svc.Authenticate(ctx, AuthenticateParams{Email: "STAFF@example.test ", Password: "s3cret-pass"})
			if err != nil {
				t.Fatalf("Authenticate returned error: %v", err)
			}
			if result.User.ID != registered.ID || result.Session.Token == "" {
				t.Fatalf("unexpected result %+v", result)
			}
			if !result.Session.ExpiresAt.Equal(testNow.Add(time.Hour)) {
				t.Fatalf("expected expiry %v, got %v", testNow.Add(time.Hour), result.Session.ExpiresAt)
			}
			if !result.Session.Principal.IsStaff() {
				t.Fatalf("expected staff principal, got %+v", result.Session.Principal)
			}

			principal, err := svc.ValidateSession(ctx, result.Session.Token)
			if err != nil {
				t.Fatalf("ValidateSession returned error: %v", err)
			}
			if principal.UserID != registered.ID {
				t.Fatalf("expected principal %s, got %+v", registered.ID, principal)
			}

			if _, err := svc.ValidateSession(ctx, result.Session.Token+"x"); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected tampered token to be rejected, got %v", err)
			}

			clock.Set(testNow.Add(time.Hour))
			if _, err := svc.ValidateSession(ctx, result.Session.Token); !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
		})
	}
}

func TestAuthService_AuthenticateFailures(t *testing.T) {
	t.Parallel()

	store := memory.New()
	clock := &testClock{now: testNow}
	svc := newAuthService(t, store, clock, nil)
	ctx := context.Background()
	if _, err := svc.RegisterUser(ctx, RegisterUserParams{Email: "user@example.test", Password: "good-password"}); err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}

	for _, params := range []AuthenticateParams{
		{Email: "user@example.test", Password: "wrong-password"},
		{Email: "nobody@example.test", Password: "good-password"},
		{Email: "", Password: "good-password"},
		{Email: "user@example.test"},
	} {
		if _, err := svc.Authenticate(ctx, params); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Authenticate(%q) expected ErrInvalidCredentials, got %v", params.Email, err)
		}
	}

	if _, err := svc.ValidateSession(ctx, "  "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}

	// A session for a user that no longer resolves is refused.
	ghost, err := svc.IssueSession(persistence.User{ID: "ghost"})
	if err != nil {
		t.Fatalf("IssueSession returned error: %v", err)
	}
	if _, err := svc.ValidateSession(ctx, ghost.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unknown user to be rejected, got %v", err)
	}
}

func TestAuthService_ValidateSessionReadsCurrentRole(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seed := persistencetest.SeedCatalog(t, store)
	clock := &testClock{now: testNow}
	svc := newAuthService(t, store, clock, nil)
	ctx := context.Background()

	admin, err := store.GetUser(ctx, seed.AdminID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	session, err := svc.IssueSession(admin)
	if err != nil {
		t.Fatalf("IssueSession returned error: %v", err)
	}

	admin.IsAdmin = false
	if err := store.UpdateUser(ctx, admin); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}

	principal, err := svc.ValidateSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if principal.IsAdmin || principal.TenantID != seed.TenantID {
		t.Fatalf("expected demoted principal, got %+v", principal)
	}
}
