package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bestdressed/internal/ebay"
	"github.com/hitoshi/bestdressed/internal/metrics"
	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
)

// --- ルーター用モック ---

// mockSessionResolver はセッションIDからPrincipalを解決するモック。
type mockSessionResolver struct {
	sessions map[string]*model.Principal
}

func (m *mockSessionResolver) ResolvePrincipal(ctx context.Context, sessionID string) (*model.Principal, error) {
	return m.sessions[sessionID], nil
}

// mockRouterBanChecker はIPアドレスごとのBANを返すモック。
type mockRouterBanChecker struct {
	bans map[string]*model.BannedIP
}

func (m *mockRouterBanChecker) ActiveBan(ctx context.Context, ip string) (*model.BannedIP, error) {
	return m.bans[ip], nil
}

// mockHealthChecker はPingContextの結果を返すモック。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

const (
	routerSessionID  = "session-router"
	routerCSRFToken  = "csrf-router-token"
	bannedIP         = "198.51.100.66"
	trustedProxy     = "10.20.30.40"
	trustedProxyCIDR = "10.0.0.0/8"
)

type routerFixture struct {
	handler  http.Handler
	registry *prometheus.Registry
	health   *mockHealthChecker
	deleter  *mockSellerItemDeleter
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		RecommendRate:   rate.Limit(0.001),
		RecommendBurst:  1,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	health := &mockHealthChecker{}
	deleter := &mockSellerItemDeleter{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	deps := &RouterDeps{
		SessionResolver: &mockSessionResolver{sessions: map[string]*model.Principal{
			routerSessionID: testPrincipal,
		}},
		BanChecker: &mockRouterBanChecker{bans: map[string]*model.BannedIP{
			bannedIP: {ID: "ban-1", IPAddress: bannedIP, Reason: "spam", Active: true},
		}},
		CORSAllowedOrigin: "http://localhost:3000",
		TrustedProxies:    []netip.Prefix{netip.MustParsePrefix(trustedProxyCIDR)},
		RateLimiter:       rl,
		Logger:            logger,
		HealthChecker:     health,
		Metrics:           metrics.NewCollector(reg),
		MetricsGatherer:   reg,

		AuthService:      &mockAuthService{},
		AuthConfig:       testAuthConfig,
		UserService:      &mockUserService{},
		WardrobeService:  &mockWardrobeService{},
		OutfitService:    &mockOutfitService{},
		CatalogService:   &mockCatalogService{},
		RecommendService: &mockRecommendService{},
		ForumService:     &mockForumService{},
		BanService:       &mockBanService{},
		EbayWebhook: newTestWebhookHandler(
			&mockNotificationVerifier{result: ebay.Result{Decision: ebay.Accept, Status: http.StatusOK}},
			deleter,
		),
	}

	return &routerFixture{
		handler:  NewRouter(deps),
		registry: reg,
		health:   health,
		deleter:  deleter,
	}
}

// authed はセッションCookieとCSRFトークンを付与する。
func authed(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: routerSessionID})
	return withCSRF(r)
}

// withCSRF はCSRFトークンのCookieとヘッダーを付与する。
func withCSRF(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: "csrf_token", Value: routerCSRFToken})
	r.Header.Set("X-CSRF-Token", routerCSRFToken)
	return r
}

func (f *routerFixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

// --- 運用エンドポイント ---

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	f.health.err = errors.New("connection refused")
	w = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status with DB down = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics_RecordsServedRequests(t *testing.T) {
	f := newRouterFixture(t)

	f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	w := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `bestdressed_http_status_total{status_code="200"}`) {
		t.Error("metrics output should include the recorded /health response")
	}
}

func TestRouter_SecurityHeadersAndCORS(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := f.do(req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// --- 認証・CSRF ---

func TestRouter_ProtectedRoutes_RequireSession(t *testing.T) {
	f := newRouterFixture(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/profile"},
		{http.MethodGet, "/api/wardrobe"},
		{http.MethodGet, "/api/outfits"},
		{http.MethodGet, "/api/items"},
		{http.MethodGet, "/api/recommendations"},
		{http.MethodGet, "/api/recommendations/jobs/job-1"},
		{http.MethodGet, "/api/forum/saved"},
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/api/forum/threads"},
		{http.MethodDelete, "/api/users/me"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := f.do(withCSRF(httptest.NewRequest(rt.method, rt.path, strings.NewReader(`{}`))))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_AuthenticatedRequest_Succeeds(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(authed(jsonRequest(http.MethodPost, "/api/outfits", `{"name":"Weekend","item_ids":["w-1"]}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	w = f.do(authed(httptest.NewRequest(http.MethodGet, "/auth/me", nil)))
	if w.Code != http.StatusOK {
		t.Errorf("GET /auth/me status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_StateChange_WithoutCSRFToken_ReturnsForbidden(t *testing.T) {
	f := newRouterFixture(t)

	req := jsonRequest(http.MethodPost, "/api/outfits", `{"name":"Weekend"}`)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: routerSessionID})
	w := f.do(req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeCSRFInvalid {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeCSRFInvalid)
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"token"`) {
		t.Errorf("body = %q, want token field", w.Body.String())
	}
}

// --- フォーラム ---

func TestRouter_Forum_AnonymousCanRead(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/forum/threads", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Forum_BannedIPCannotPost(t *testing.T) {
	f := newRouterFixture(t)

	req := authed(jsonRequest(http.MethodPost, "/api/forum/threads", `{"title":"hi","content":"there"}`))
	req.RemoteAddr = bannedIP + ":40000"
	w := f.do(req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeIPBanned {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeIPBanned)
	}

	read := httptest.NewRequest(http.MethodGet, "/api/forum/threads", nil)
	read.RemoteAddr = bannedIP + ":40000"
	if w := f.do(read); w.Code != http.StatusOK {
		t.Errorf("banned IP read status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Forum_BanUsesTrustedClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		wantStatus int
	}{
		{"BAN済みの接続元は偽ヘッダーでも拒否", bannedIP + ":40000", "203.0.113.50", http.StatusForbidden},
		{"信頼済みプロキシ経由のBAN済みIPは拒否", trustedProxy + ":443", bannedIP, http.StatusForbidden},
		{"未登録の接続元が名乗るBAN済みIPは無視", "203.0.113.50:40000", bannedIP, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)

			req := authed(jsonRequest(http.MethodPost, "/api/forum/threads", `{"title":"hi","content":"there"}`))
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("X-Forwarded-For", tt.forwarded)
			w := f.do(req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- レコメンド ---

func TestRouter_Recommendations_SubmitRateLimited(t *testing.T) {
	f := newRouterFixture(t)

	first := f.do(authed(httptest.NewRequest(http.MethodPost, "/api/recommendations", nil)))
	if first.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusAccepted)
	}

	second := f.do(authed(httptest.NewRequest(http.MethodPost, "/api/recommendations", nil)))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}

	// 履歴の閲覧は投入のレート制限を受けない
	history := f.do(authed(httptest.NewRequest(http.MethodGet, "/api/recommendations", nil)))
	if history.Code != http.StatusOK {
		t.Errorf("history status = %d, want %d", history.Code, http.StatusOK)
	}
}

// --- eBay Webhook ---

func TestRouter_EbayWebhook_BypassesCSRFAndSession(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodPost, "/auth/ebay_market_delete/", strings.NewReader(testDeletionBody)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(f.deleter.deleted) != 1 {
		t.Errorf("deleted = %v, want one seller", f.deleter.deleted)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/auth/ebay_market_delete/?challenge_code=xyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("challenge status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- ルーティング ---

func TestRouter_StaticRoutesTakePrecedenceOverIDs(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(authed(httptest.NewRequest(http.MethodGet, "/api/items/ebay/search?q=boots", nil)))
	if w.Code != http.StatusOK {
		t.Errorf("search status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_UnknownRoute_ReturnsNotFound(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/feeds", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
