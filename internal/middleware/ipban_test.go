package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/bestdressed/internal/model"
)

type mockBanChecker struct {
	bans  map[string]*model.BannedIP
	err   error
	calls []string
}

func (m *mockBanChecker) ActiveBan(ctx context.Context, ip string) (*model.BannedIP, error) {
	m.calls = append(m.calls, ip)
	if m.err != nil {
		return nil, m.err
	}
	return m.bans[ip], nil
}

func TestIPBanMiddleware(t *testing.T) {
	checker := &mockBanChecker{
		bans: map[string]*model.BannedIP{
			"203.0.113.9": {IPAddress: "203.0.113.9", Reason: "spam", Active: true},
		},
	}

	tests := []struct {
		name       string
		method     string
		remoteAddr string
		forwarded  string
		wantStatus int
	}{
		{name: "BAN済みIPのPOSTは拒否", method: http.MethodPost, remoteAddr: "203.0.113.9:1000", wantStatus: http.StatusForbidden},
		{name: "BAN済みIPのDELETEは拒否", method: http.MethodDelete, remoteAddr: "203.0.113.9:1000", wantStatus: http.StatusForbidden},
		{name: "偽のX-Forwarded-Forでは回避できない", method: http.MethodPost, remoteAddr: "203.0.113.9:1000", forwarded: "198.51.100.77", wantStatus: http.StatusForbidden},
		{name: "X-Forwarded-ForだけではBAN判定しない", method: http.MethodPost, remoteAddr: "198.51.100.1:1000", forwarded: "203.0.113.9", wantStatus: http.StatusOK},
		{name: "BAN済みIPでもGETは許可", method: http.MethodGet, remoteAddr: "203.0.113.9:1000", wantStatus: http.StatusOK},
		{name: "BANされていないIPは許可", method: http.MethodPost, remoteAddr: "198.51.100.1:1000", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewIPBanMiddleware(checker)(okHandler())

			req := httptest.NewRequest(tt.method, "/api/forum/threads", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusForbidden {
				return
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeIPBanned {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeIPBanned)
			}
			if !strings.Contains(body.Message, "spam") {
				t.Errorf("message = %q, want it to include the ban reason", body.Message)
			}
		})
	}
}

func TestIPBanMiddleware_SafeMethodsSkipLookup(t *testing.T) {
	checker := &mockBanChecker{}
	handler := NewIPBanMiddleware(checker)(okHandler())

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/", nil))
	}

	if len(checker.calls) != 0 {
		t.Errorf("ActiveBan calls = %d, want 0", len(checker.calls))
	}
}

func TestIPBanMiddleware_CheckerError_FailsOpen(t *testing.T) {
	checker := &mockBanChecker{err: errors.New("database error")}
	handler := NewIPBanMiddleware(checker)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}
