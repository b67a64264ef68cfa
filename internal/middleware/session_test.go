package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/bestdressed/internal/model"
)

// --- モック定義 ---

type mockPrincipalResolver struct {
	resolveFn func(ctx context.Context, sessionID string) (*model.Principal, error)
	calls     int
}

func (m *mockPrincipalResolver) ResolvePrincipal(ctx context.Context, sessionID string) (*model.Principal, error) {
	m.calls++
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sessionID)
	}
	return nil, nil
}

func resolverFor(sessionID string, principal *model.Principal) *mockPrincipalResolver {
	return &mockPrincipalResolver{
		resolveFn: func(ctx context.Context, id string) (*model.Principal, error) {
			if id == sessionID {
				return principal, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsPrincipal(t *testing.T) {
	resolver := resolverFor("valid-session-id", &model.Principal{ID: "user-123", Username: "alice"})
	mw := NewSessionMiddleware(resolver)

	var captured *model.Principal
	var capturedUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PrincipalFromContext(r.Context())
		capturedUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if captured == nil || captured.Username != "alice" {
		t.Fatalf("principal = %+v, want alice", captured)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
}

func TestSessionMiddleware_AnonymousRequests_PassThrough(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		fn     func(ctx context.Context, id string) (*model.Principal, error)
	}{
		{name: "Cookieなし"},
		{name: "空のCookie", cookie: &http.Cookie{Name: SessionCookieName, Value: ""}},
		{name: "無効なセッション", cookie: &http.Cookie{Name: SessionCookieName, Value: "unknown"}},
		{
			name:   "解決時のエラー",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "broken"},
			fn: func(ctx context.Context, id string) (*model.Principal, error) {
				return nil, errors.New("database error")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewSessionMiddleware(&mockPrincipalResolver{resolveFn: tt.fn})

			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if p := PrincipalFromContext(r.Context()); p != nil {
					t.Errorf("principal = %+v, want nil", p)
				}
				if _, err := UserIDFromContext(r.Context()); err == nil {
					t.Error("expected no user ID in context")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called {
				t.Error("handler should have been called")
			}
			if w.Result().StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
			}
		})
	}
}

func TestSessionMiddleware_NoCookie_DoesNotCallResolver(t *testing.T) {
	resolver := &mockPrincipalResolver{}
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if resolver.calls != 0 {
		t.Errorf("resolver calls = %d, want 0", resolver.calls)
	}
}

func TestRequireAuth_Anonymous_Returns401(t *testing.T) {
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestRequireAuth_WithPrincipal_PassesThrough(t *testing.T) {
	called := false
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), &model.Principal{ID: "user-1"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should have been called")
	}
	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}

func TestUserIDFromContext_Missing_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID")
	}
}
