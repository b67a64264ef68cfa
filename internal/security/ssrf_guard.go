package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// MaxImageURLLength は画像URLとして受け付ける最大長。
const MaxImageURLLength = 2048

// ErrUnsafeURL はURLが外部公開ホストを指していない場合に返される。
var ErrUnsafeURL = errors.New("unsafe url")

// SSRFGuardService はSSRF防止機能のインターフェースを定義する。
// ワードローブやカタログの画像URL登録時と、eBay APIへの外向き通信で使用される。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プライベートIP、ループバック、リンクローカルへの接続は
	// DNS解決後のDialer段階で拒否される。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はURLの安全性をDNS解決なしで静的に検証する。
	ValidateURL(rawURL string) error

	// ValidateImageURL は画像URLとして保存してよいかを検証する。
	// 空文字は「画像なし」として許可する。
	ValidateImageURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	// クラウドメタデータIP (169.254.169.254) を含む
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostSuffixes = []string{
	"localhost",
	".localhost",
	".internal",
	".local",
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("blockedNetworksのCIDRが不正です: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// 許可ポートは80と443のみ。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLの安全性を静的に検証する。
// DNS再バインディングはNewSafeClient側で防がれる。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: URLが空です", ErrUnsafeURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: URLの解析に失敗: %v", ErrUnsafeURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: 許可されていないスキーム %q", ErrUnsafeURL, parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: 認証情報付きURLは許可されていません", ErrUnsafeURL)
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: ホストが空です", ErrUnsafeURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: ブロック対象のIPアドレス %s", ErrUnsafeURL, ip)
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("%w: ブロック対象のホスト %s", ErrUnsafeURL, host)
	}
	return nil
}

// ValidateImageURL は画像URLを検証する。
func (g *ssrfGuard) ValidateImageURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	if len(rawURL) > MaxImageURLLength {
		return fmt.Errorf("%w: URLが長すぎます", ErrUnsafeURL)
	}
	return g.ValidateURL(rawURL)
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	for _, suffix := range blockedHostSuffixes {
		if host == strings.TrimPrefix(suffix, ".") || strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
