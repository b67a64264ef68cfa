package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/bestdressed/internal/model"
)

const (
	// DefaultBaseURL はeBay本番APIのベースURL。
	DefaultBaseURL = "https://api.ebay.com/"
	// apiScope はclient credentialsグラントで要求するスコープ。
	apiScope = "https://api.ebay.com/oauth/api_scope"
	// maxResponseSize はeBay APIレスポンスの最大読み取りサイズ。
	maxResponseSize = 2 << 20
	// tokenExpiryMargin はアクセストークン期限前に再取得するための余裕。
	tokenExpiryMargin = time.Minute
	// noDescription は出品者が説明文を設定していない場合の説明。
	noDescription = "Ebay Seller did not Provide Description for this item"
)

// ErrUnknownKey はeBayが指定のkidを持たないことを示す。
var ErrUnknownKey = errors.New("unknown public key")

// errAccessToken はアクセストークン取得の失敗を示す。
var errAccessToken = errors.New("eBay access token unavailable")

// StatusError はeBay APIが200以外を返したことを示す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("eBay API returned status %d", e.StatusCode)
}

// PublicKeyResponse は公開鍵取得APIのレスポンス。
type PublicKeyResponse struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Key       string `json:"key"`
}

// Client はeBay REST APIのクライアント。
// client credentialsグラントで取得したアプリケーショントークンを期限までキャッシュする。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	authToken  string // base64(client_id:client_secret)

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合は本番APIを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, authToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		authToken:  authToken,
		now:        time.Now,
	}
}

// tokenResponse はOAuthトークンAPIのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// AccessToken はアプリケーションアクセストークンを返す。
// キャッシュが有効な間はAPIを呼び出さない。
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", apiScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.authToken)

	var tr tokenResponse
	if err := c.doJSON(req, &tr); err != nil {
		c.logger.Error("eBay OAuthトークンの取得に失敗しました", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %w", errAccessToken, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("eBay token response has no access_token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin)

	c.logger.Info("eBay OAuthアクセストークンを取得しました",
		slog.Int("expires_in", tr.ExpiresIn),
	)
	return c.token, nil
}

// PublicKey は通知署名の検証に使う公開鍵を取得する。
func (c *Client) PublicKey(ctx context.Context, kid string) (*PublicKeyResponse, error) {
	var pk PublicKeyResponse
	path := "commerce/notification/v1/public_key/" + url.PathEscape(kid)
	if err := c.getAuthorized(ctx, path, nil, &pk); err != nil {
		var se *StatusError
		if errors.As(err, &se) && !errors.Is(err, errAccessToken) && isUnknownKeyStatus(se.StatusCode) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
		}
		return nil, fmt.Errorf("eBay公開鍵 %s の取得に失敗: %w", kid, err)
	}
	if pk.Key == "" {
		return nil, fmt.Errorf("eBay public key %s has empty key", kid)
	}
	return &pk, nil
}

// itemSummaryResponse は商品検索APIのレスポンスのうち使用するフィールド。
type itemSummaryResponse struct {
	ItemSummaries []struct {
		ItemID     string `json:"itemId"`
		Title      string `json:"title"`
		ItemWebURL string `json:"itemWebUrl"`
		Seller     struct {
			Username string `json:"username"`
		} `json:"seller"`
		Image struct {
			ImageURL string `json:"imageUrl"`
		} `json:"image"`
	} `json:"itemSummaries"`
}

// itemDetailResponse は商品詳細APIのレスポンスのうち使用するフィールド。
type itemDetailResponse struct {
	ShortDescription string `json:"shortDescription"`
	Image            struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
}

// SearchItems はキーワードで商品を検索し、各商品の詳細を取得して返す。
// 詳細取得に失敗した商品は検索結果の情報のみで返す。
func (c *Client) SearchItems(ctx context.Context, query string, limit int) ([]model.EbayListing, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var sr itemSummaryResponse
	if err := c.getAuthorized(ctx, "buy/browse/v1/item_summary/search", q, &sr); err != nil {
		return nil, fmt.Errorf("eBay商品検索に失敗: %w", err)
	}

	listings := make([]model.EbayListing, 0, len(sr.ItemSummaries))
	for _, s := range sr.ItemSummaries {
		listing := model.EbayListing{
			ItemID:      s.ItemID,
			Title:       s.Title,
			ImageURL:    s.Image.ImageURL,
			ItemURL:     s.ItemWebURL,
			SellerID:    s.Seller.Username,
			Description: noDescription,
		}

		var detail itemDetailResponse
		if err := c.getAuthorized(ctx, "buy/browse/v1/item/"+url.PathEscape(s.ItemID), nil, &detail); err != nil {
			c.logger.Warn("eBay商品詳細の取得に失敗しました",
				slog.String("item_id", s.ItemID),
				slog.String("error", err.Error()),
			)
		} else {
			if detail.ShortDescription != "" {
				listing.Description = detail.ShortDescription
			}
			if detail.Image.ImageURL != "" {
				listing.ImageURL = detail.Image.ImageURL
			}
		}

		listings = append(listings, listing)
	}

	return listings, nil
}

// isUnknownKeyStatus はkidに起因する4xxかを判定する。
// 認証・権限・タイムアウト・レート制限はこちらの問題として扱う。
func isUnknownKeyStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

// getAuthorized はアクセストークン付きのGETリクエストを送り、JSONをデコードする。
func (c *Client) getAuthorized(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	return c.doJSON(req, out)
}

// doJSON はリクエストを実行し、200以外のステータスをエラーとして返す。
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}
