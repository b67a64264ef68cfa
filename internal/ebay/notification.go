package ebay

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// PublicKeyFetcher はkidから公開鍵を取得するインターフェース。
// Client.PublicKeyが実装する。
type PublicKeyFetcher interface {
	PublicKey(ctx context.Context, kid string) (*PublicKeyResponse, error)
}

// KeySource は検証に使うECDSA公開鍵を返すインターフェース。
type KeySource interface {
	Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error)
}

// ErrKeyUnavailable はeBayから公開鍵を取得できなかったことを示す。
// 一時的な障害として扱い、eBay側の再送に任せる。
var ErrKeyUnavailable = errors.New("public key unavailable")

const (
	// defaultMissTTL は存在しないkidを覚えておく期間。
	defaultMissTTL = 5 * time.Minute
	// defaultFetchBurst と defaultFetchInterval はキャッシュミス時の鍵取得の上限。
	defaultFetchBurst    = 10
	defaultFetchInterval = time.Second
)

// cachedKey はkidごとのキャッシュエントリ。keyがnilの場合は存在しないkidを表す。
type cachedKey struct {
	key       *ecdsa.PublicKey
	expiresAt time.Time
}

// KeyCache はkidごとに公開鍵をTTL付きでキャッシュするKeySource。
// 存在しないkidも短時間記憶し、同じkidの同時取得は1回にまとめる。
// キャッシュミス時のeBayへの問い合わせはトークンバケットで制限する。
type KeyCache struct {
	fetcher PublicKeyFetcher
	ttl     time.Duration
	missTTL time.Duration
	budget  *rate.Limiter
	now     func() time.Time
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]cachedKey
}

// NewKeyCache はKeyCacheを生成する。ttlが0以下の場合は1時間を使用する。
func NewKeyCache(fetcher PublicKeyFetcher, ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeyCache{
		fetcher: fetcher,
		ttl:     ttl,
		missTTL: defaultMissTTL,
		budget:  rate.NewLimiter(rate.Every(defaultFetchInterval), defaultFetchBurst),
		now:     time.Now,
		entries: make(map[string]cachedKey),
	}
}

// Key はkidに対応する公開鍵を返す。
// eBayが知らないkidはErrUnknownKey、取得失敗はErrKeyUnavailable、
// 鍵の形式不正はErrMalformedKeyでラップして返す。
func (c *KeyCache) Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if key, hit, err := c.lookup(kid); hit {
		return key, err
	}

	v, err, _ := c.group.Do(kid, func() (any, error) {
		if key, hit, err := c.lookup(kid); hit {
			return key, err
		}
		return c.fetch(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ecdsa.PublicKey), nil
}

func (c *KeyCache) lookup(kid string) (*ecdsa.PublicKey, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[kid]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	if e.key == nil {
		return nil, true, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return e.key, true, nil
}

func (c *KeyCache) fetch(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if !c.budget.Allow() {
		return nil, fmt.Errorf("%w: key fetch budget exhausted", ErrKeyUnavailable)
	}

	resp, err := c.fetcher.PublicKey(ctx, kid)
	if errors.Is(err, ErrUnknownKey) {
		c.store(kid, nil, c.missTTL)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	if resp.Algorithm != "" && !strings.EqualFold(resp.Algorithm, "ECDSA") {
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrMalformedKey, resp.Algorithm)
	}

	key, err := ParsePublicKey(resp.Key)
	if err != nil {
		return nil, err
	}

	c.store(kid, key, c.ttl)
	return key, nil
}

// store はエントリを保存する。保存のたびに期限切れのエントリを掃除する。
func (c *KeyCache) store(kid string, key *ecdsa.PublicKey, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[kid] = cachedKey{key: key, expiresAt: now.Add(ttl)}
}

// OutcomeRecorder は検証結果のメトリクスを記録するインターフェース。
type OutcomeRecorder interface {
	RecordWebhookOutcome(decision string, status int)
}

// NotificationVerifier はアカウント削除通知の署名を検証する。
type NotificationVerifier struct {
	keys     KeySource
	logger   *slog.Logger
	recorder OutcomeRecorder
}

// NewNotificationVerifier はNotificationVerifierを生成する。recorderはnilでもよい。
func NewNotificationVerifier(keys KeySource, logger *slog.Logger, recorder OutcomeRecorder) *NotificationVerifier {
	return &NotificationVerifier{
		keys:     keys,
		logger:   logger,
		recorder: recorder,
	}
}

// VerifyNotification は署名ヘッダーとボディを検証する。
// 呼び出し元にerrorを返すことはなく、失敗は全てRejectのResultとして返す。
func (v *NotificationVerifier) VerifyNotification(ctx context.Context, signatureHeader string, body []byte) Result {
	res := v.verify(ctx, signatureHeader, body)

	attrs := []any{
		slog.String("decision", res.Decision.String()),
		slog.Int("status", res.Status),
	}
	if res.Decision == Accept {
		v.logger.Info("eBay通知の署名を検証しました", attrs...)
	} else {
		attrs = append(attrs, slog.String("reason", res.Reason))
		v.logger.Warn("eBay通知を拒否しました", attrs...)
	}
	if v.recorder != nil {
		v.recorder.RecordWebhookOutcome(res.Decision.String(), res.Status)
	}
	return res
}

func (v *NotificationVerifier) verify(ctx context.Context, signatureHeader string, body []byte) Result {
	header, err := ParseSignatureHeader(signatureHeader)
	if err != nil {
		return rejectMalformed(err.Error())
	}

	sig, err := header.SignatureBytes()
	if err != nil {
		return rejectMalformed(err.Error())
	}

	key, err := v.keys.Key(ctx, header.Kid)
	switch {
	case errors.Is(err, ErrKeyUnavailable):
		return Result{Decision: Reject, Status: http.StatusInternalServerError, Reason: err.Error()}
	case err != nil:
		// 存在しないkidや形式不正の鍵は署名不正と同じ扱い
		return rejectUnauthorized(err.Error())
	}

	return CheckSignature(body, sig, key)
}

// deletionPayload はアカウント削除通知のボディ。
// eBayの仕様ではnotification.data.usernameに格納されるが、
// トップレベルのusernameも受け付ける。
type deletionPayload struct {
	Username     string `json:"username"`
	Notification struct {
		NotificationID string `json:"notificationId"`
		Data           struct {
			Username  string `json:"username"`
			UserID    string `json:"userId"`
			EIASToken string `json:"eiasToken"`
		} `json:"data"`
	} `json:"notification"`
}

// DeletionNotice は削除通知から取り出した情報。
type DeletionNotice struct {
	NotificationID string
	Username       string
	UserID         string
}

// ErrMissingUsername は削除通知にusernameが含まれないことを示す。
var ErrMissingUsername = errors.New("deletion payload missing username")

// ParseDeletionNotice は削除通知のボディを解析する。
func ParseDeletionNotice(body []byte) (*DeletionNotice, error) {
	var p deletionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid deletion payload: %w", err)
	}

	username := p.Notification.Data.Username
	if username == "" {
		username = p.Username
	}
	if username == "" {
		return nil, ErrMissingUsername
	}

	return &DeletionNotice{
		NotificationID: p.Notification.NotificationID,
		Username:       username,
		UserID:         p.Notification.Data.UserID,
	}, nil
}
