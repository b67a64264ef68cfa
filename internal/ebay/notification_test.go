package ebay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// --- モック ---

type mockFetcher struct {
	mu    sync.Mutex
	calls int
	resp  *PublicKeyResponse
	err   error
}

func (m *mockFetcher) PublicKey(_ context.Context, _ string) (*PublicKeyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.resp, m.err
}

type mockKeySource struct {
	key *ecdsa.PublicKey
	err error
}

func (m *mockKeySource) Key(_ context.Context, _ string) (*ecdsa.PublicKey, error) {
	return m.key, m.err
}

type recordedOutcome struct {
	decision string
	status   int
}

type mockRecorder struct {
	outcomes []recordedOutcome
}

func (m *mockRecorder) RecordWebhookOutcome(decision string, status int) {
	m.outcomes = append(m.outcomes, recordedOutcome{decision: decision, status: status})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func signedHeader(t *testing.T, sig []byte) string {
	t.Helper()
	return encodeHeader(t, SignatureHeader{
		Alg:       "ECDSA",
		Kid:       "kid-1",
		Signature: base64.StdEncoding.EncodeToString(sig),
		Digest:    "SHA1",
	})
}

// --- KeyCache ---

func TestKeyCache_CachesUntilTTL(t *testing.T) {
	priv := generateKey(t)
	fetcher := &mockFetcher{resp: &PublicKeyResponse{
		Algorithm: "ECDSA",
		Digest:    "SHA1",
		Key:       publicKeyPEM(t, &priv.PublicKey),
	}}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewKeyCache(fetcher, 10*time.Minute)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		key, err := cache.Key(context.Background(), "kid-1")
		if err != nil {
			t.Fatalf("Key() error: %v", err)
		}
		if !key.Equal(&priv.PublicKey) {
			t.Fatal("cached key does not match")
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}

	now = now.Add(11 * time.Minute)
	if _, err := cache.Key(context.Background(), "kid-1"); err != nil {
		t.Fatalf("Key() error after expiry: %v", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("fetch calls after expiry = %d, want 2", fetcher.calls)
	}
}

func TestKeyCache_FetchError_WrapsKeyUnavailable(t *testing.T) {
	cache := NewKeyCache(&mockFetcher{err: errors.New("connection refused")}, 0)

	_, err := cache.Key(context.Background(), "kid-1")
	if !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("error = %v, want ErrKeyUnavailable", err)
	}
}

func TestKeyCache_UnsupportedAlgorithm(t *testing.T) {
	priv := generateKey(t)
	cache := NewKeyCache(&mockFetcher{resp: &PublicKeyResponse{
		Algorithm: "RSA",
		Key:       publicKeyPEM(t, &priv.PublicKey),
	}}, 0)

	_, err := cache.Key(context.Background(), "kid-1")
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("error = %v, want ErrMalformedKey", err)
	}
}

func TestKeyCache_ErrorsAreNotCached(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("timeout")}
	cache := NewKeyCache(fetcher, time.Hour)

	_, _ = cache.Key(context.Background(), "kid-1")
	_, _ = cache.Key(context.Background(), "kid-1")

	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", fetcher.calls)
	}
}

func TestKeyCache_UnknownKey_RememberedForMissTTL(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("%w: forged-kid", ErrUnknownKey)}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewKeyCache(fetcher, time.Hour)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := cache.Key(context.Background(), "forged-kid")
		if !errors.Is(err, ErrUnknownKey) {
			t.Fatalf("error = %v, want ErrUnknownKey", err)
		}
		if errors.Is(err, ErrKeyUnavailable) {
			t.Fatalf("unknown key must not be reported as unavailable: %v", err)
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}

	now = now.Add(defaultMissTTL + time.Second)
	_, _ = cache.Key(context.Background(), "forged-kid")
	if fetcher.calls != 2 {
		t.Errorf("fetch calls after miss TTL = %d, want 2", fetcher.calls)
	}
}

func TestKeyCache_FetchBudgetExhausted_ReportsUnavailable(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("%w: kid", ErrUnknownKey)}
	cache := NewKeyCache(fetcher, time.Hour)
	cache.budget = rate.NewLimiter(0, 2)

	for _, kid := range []string{"kid-a", "kid-b"} {
		if _, err := cache.Key(context.Background(), kid); !errors.Is(err, ErrUnknownKey) {
			t.Fatalf("Key(%s) error = %v, want ErrUnknownKey", kid, err)
		}
	}
	if _, err := cache.Key(context.Background(), "kid-c"); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("error = %v, want ErrKeyUnavailable once the budget is spent", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", fetcher.calls)
	}
}

func TestKeyCache_ConcurrentMisses_FetchOnce(t *testing.T) {
	priv := generateKey(t)
	release := make(chan struct{})
	fetcher := &blockingFetcher{started: make(chan struct{}), release: release, resp: &PublicKeyResponse{
		Algorithm: "ECDSA",
		Key:       publicKeyPEM(t, &priv.PublicKey),
	}}
	cache := NewKeyCache(fetcher, time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Key(context.Background(), "kid-1")
			errs <- err
		}()
	}
	<-fetcher.started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Key() error = %v", err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

type blockingFetcher struct {
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
	resp    *PublicKeyResponse
}

func (b *blockingFetcher) PublicKey(_ context.Context, _ string) (*PublicKeyResponse, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.resp, nil
}

// --- NotificationVerifier ---

func TestVerifyNotification_ValidSignature_Accepts(t *testing.T) {
	priv := generateKey(t)
	body := []byte(`{"notification":{"data":{"username":"seller-1"}}}`)
	rec := &mockRecorder{}
	v := NewNotificationVerifier(&mockKeySource{key: &priv.PublicKey}, discardLogger(), rec)

	res := v.VerifyNotification(context.Background(), signedHeader(t, sign(t, priv, body)), body)
	if res.Decision != Accept {
		t.Fatalf("Decision = %v, want Accept (reason: %s)", res.Decision, res.Reason)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].decision != "accept" || rec.outcomes[0].status != http.StatusOK {
		t.Errorf("recorded outcomes = %+v", rec.outcomes)
	}
}

func TestVerifyNotification_StatusMapping(t *testing.T) {
	priv := generateKey(t)
	body := []byte(`{"username":"seller-1"}`)
	validHeader := signedHeader(t, sign(t, priv, body))

	tests := []struct {
		name       string
		header     string
		body       []byte
		keys       KeySource
		wantStatus int
	}{
		{
			name:       "missing header",
			header:     "",
			body:       body,
			keys:       &mockKeySource{key: &priv.PublicKey},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "garbage header",
			header:     "!!!",
			body:       body,
			keys:       &mockKeySource{key: &priv.PublicKey},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "key unavailable",
			header:     validHeader,
			body:       body,
			keys:       &mockKeySource{err: ErrKeyUnavailable},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unknown key",
			header:     validHeader,
			body:       body,
			keys:       &mockKeySource{err: fmt.Errorf("%w: forged-kid", ErrUnknownKey)},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed key",
			header:     validHeader,
			body:       body,
			keys:       &mockKeySource{err: ErrMalformedKey},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "tampered body",
			header:     validHeader,
			body:       []byte(`{"username":"seller-2"}`),
			keys:       &mockKeySource{key: &priv.PublicKey},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			v := NewNotificationVerifier(tt.keys, discardLogger(), rec)

			res := v.VerifyNotification(context.Background(), tt.header, tt.body)
			if res.Decision != Reject {
				t.Errorf("Decision = %v, want Reject", res.Decision)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", res.Status, tt.wantStatus)
			}
			if len(rec.outcomes) != 1 || rec.outcomes[0].decision != "reject" {
				t.Errorf("recorded outcomes = %+v", rec.outcomes)
			}
		})
	}
}

func TestVerifyNotification_ForgedKid_AgainstEbay_RejectsUnauthorized(t *testing.T) {
	var keyFetches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "app-token", "expires_in": 7200})
	})
	mux.HandleFunc("/commerce/notification/v1/public_key/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&keyFetches, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(srv.Client(), discardLogger(), srv.URL, "creds")
	rec := &mockRecorder{}
	v := NewNotificationVerifier(NewKeyCache(client, time.Hour), discardLogger(), rec)

	priv := generateKey(t)
	body := []byte(`{"username":"seller-1"}`)
	header := encodeHeader(t, SignatureHeader{
		Alg:       "ECDSA",
		Kid:       "forged-kid",
		Signature: base64.StdEncoding.EncodeToString(sign(t, priv, body)),
		Digest:    "SHA1",
	})

	for i := 0; i < 3; i++ {
		res := v.VerifyNotification(context.Background(), header, body)
		if res.Decision != Reject || res.Status != http.StatusUnauthorized {
			t.Errorf("attempt %d: result = %v/%d (%s), want reject/401", i+1, res.Decision, res.Status, res.Reason)
		}
	}
	if got := atomic.LoadInt32(&keyFetches); got != 1 {
		t.Errorf("public key fetches = %d, want 1", got)
	}
}

func TestVerifyNotification_LogsReasonOnReject(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	v := NewNotificationVerifier(&mockKeySource{}, logger, nil)

	v.VerifyNotification(context.Background(), "", []byte("{}"))

	out := buf.String()
	if !strings.Contains(out, "eBay通知を拒否しました") {
		t.Errorf("log should contain reject message, got %s", out)
	}
	if !strings.Contains(out, `"reason"`) {
		t.Errorf("log should contain reason, got %s", out)
	}
}

// --- ParseDeletionNotice ---

func TestParseDeletionNotice(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantUser string
		wantErr  error
	}{
		{
			name:     "nested username",
			body:     `{"notification":{"notificationId":"n-1","data":{"username":"seller-1","userId":"u-1"}}}`,
			wantUser: "seller-1",
		},
		{
			name:     "top level username",
			body:     `{"username":"seller-2"}`,
			wantUser: "seller-2",
		},
		{
			name:     "nested wins over top level",
			body:     `{"username":"top","notification":{"data":{"username":"nested"}}}`,
			wantUser: "nested",
		},
		{
			name:    "no username",
			body:    `{"notification":{"data":{}}}`,
			wantErr: ErrMissingUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseDeletionNotice([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", n.Username, tt.wantUser)
			}
		})
	}
}

func TestParseDeletionNotice_InvalidJSON(t *testing.T) {
	if _, err := ParseDeletionNotice([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
