package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/logging"
)

type fakeSessionValidator struct {
	principal application.Principal
	err       error
	seen      chan string
}

func (f fakeSessionValidator) ValidateSession(_ context.Context, token string) (application.Principal, error) {
	if f.seen != nil {
		f.seen <- token
	}
	return f.principal, f.err
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without valid session tokens", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name      string
			cookie    *http.Cookie
			header    string
			err       error
			status    int
			wantError string
		}{
			{
				name:      "missing credentials",
				status:    http.StatusUnauthorized,
				wantError: "authentication required",
			},
			{
				name:      "non bearer header",
				header:    "Basic dXNlcjpwYXNz",
				status:    http.StatusUnauthorized,
				wantError: "authentication required",
			},
			{
				name:      "tampered cookie",
				cookie:    &http.Cookie{Name: application.SessionName, Value: "tampered"},
				err:       application.ErrUnauthorized,
				status:    http.StatusUnauthorized,
				wantError: "invalid session",
			},
			{
				name:      "expired session",
				header:    "Bearer stale",
				err:       application.ErrSessionExpired,
				status:    http.StatusUnauthorized,
				wantError: "session expired",
			},
			{
				name:      "store failure",
				header:    "Bearer token",
				err:       errors.New("database is locked"),
				status:    http.StatusInternalServerError,
				wantError: "internal error",
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				if tc.cookie != nil {
					req.AddCookie(tc.cookie)
				}
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				rec := httptest.NewRecorder()

				handler := RequireSession(fakeSessionValidator{err: tc.err}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Error("next handler should not be called when authentication fails")
				}))
				handler.ServeHTTP(rec, req)

				expectError(t, rec, tc.status, tc.wantError)
			})
		}
	})

	t.Run("attaches authenticated principal to request context", func(t *testing.T) {
		t.Parallel()

		principal := application.Principal{UserID: "user-123", TenantID: "tenant-1", IsAdmin: true}
		seen := make(chan string, 1)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.AddCookie(&http.Cookie{Name: application.SessionName, Value: "valid-token"})
		rec := httptest.NewRecorder()

		var captured application.Principal
		handler := RequireSession(fakeSessionValidator{principal: principal, seen: seen}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				t.Fatal("expected principal in request context")
			}
			captured = p
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(rec, req)

		expectStatus(t, rec, http.StatusOK)
		if captured != principal {
			t.Fatalf("expected principal %+v, got %+v", principal, captured)
		}
		if token := <-seen; token != "valid-token" {
			t.Fatalf("expected cookie token to reach the validator, got %q", token)
		}
	})

	t.Run("prefers the authorization header over the cookie", func(t *testing.T) {
		t.Parallel()

		seen := make(chan string, 1)
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer header-token")
		req.AddCookie(&http.Cookie{Name: application.SessionName, Value: "cookie-token"})

		handler := RequireSession(fakeSessionValidator{seen: seen}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if token := <-seen; token != "header-token" {
			t.Fatalf("expected header token, got %q", token)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.FromContext(r.Context()) == nil {
			t.Error("expected request scoped logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bookings", nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one completion line per request, got %d: %s", len(lines), buf.String())
	}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if entry["msg"] != "request completed" || entry["path"] != "/bookings" {
			t.Fatalf("unexpected log entry %v", entry)
		}
		if entry["status"] != float64(http.StatusTeapot) || entry["request_id"] != float64(i+1) {
			t.Fatalf("unexpected status or request id in %v", entry)
		}
	}
}

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{name: "not found", err: application.ErrNotFound, status: http.StatusNotFound, body: "not found"},
		{name: "forbidden", err: application.ErrUnauthorized, status: http.StatusForbidden, body: "forbidden"},
		{name: "conflict", err: application.ErrAlreadyExists, status: http.StatusConflict, body: "already exists"},
		{name: "wrapped credentials", err: errors.Join(errors.New("lookup"), application.ErrInvalidCredentials), status: http.StatusUnauthorized, body: "invalid credentials"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, body: "internal error"},
	}

	r := newResponder(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			r.handleServiceError(context.Background(), rec, tc.err)
			expectError(t, rec, tc.status, tc.body)
		})
	}
}
