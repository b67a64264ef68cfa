package ebay

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeaderName はeBayが通知に付与する署名ヘッダー名。
const SignatureHeaderName = "X-EBAY-SIGNATURE"

var (
	// ErrMalformedHeader は署名ヘッダーの形式が不正であることを示す。
	ErrMalformedHeader = errors.New("malformed signature header")
	// ErrMalformedKey は公開鍵の形式が不正であることを示す。
	ErrMalformedKey = errors.New("malformed public key")
)

// SignatureHeader はX-EBAY-SIGNATUREヘッダーをデコードした内容。
// ヘッダー値はこのJSONをbase64エンコードしたもの。
type SignatureHeader struct {
	Alg       string `json:"alg"`
	Kid       string `json:"kid"`
	Signature string `json:"signature"`
	Digest    string `json:"digest"`
}

// ParseSignatureHeader はヘッダー値をデコードする。
// kidとsignatureのいずれかが欠けている場合はErrMalformedHeaderを返す。
func ParseSignatureHeader(raw string) (*SignatureHeader, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedHeader)
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	var h SignatureHeader
	if err := json.Unmarshal(decoded, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if h.Kid == "" || h.Signature == "" {
		return nil, fmt.Errorf("%w: missing kid or signature", ErrMalformedHeader)
	}

	return &h, nil
}

// SignatureBytes は署名のbase64表現をDERバイト列に変換する。
func (h *SignatureHeader) SignatureBytes() ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(h.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not base64: %v", ErrMalformedHeader, err)
	}
	return sig, nil
}

const (
	pemHeader = "-----BEGIN PUBLIC KEY-----"
	pemFooter = "-----END PUBLIC KEY-----"
)

// ParsePublicKey はeBayの公開鍵レスポンスの鍵文字列をECDSA公開鍵に変換する。
// eBayは改行を含まない1行のPEMを返すことがあるため、両方の形式を受け付ける。
func ParsePublicKey(key string) (*ecdsa.PublicKey, error) {
	key = strings.TrimSpace(key)

	var der []byte
	if block, _ := pem.Decode([]byte(key)); block != nil {
		der = block.Bytes
	} else {
		body := strings.TrimPrefix(key, pemHeader)
		body = strings.TrimSuffix(body, pemFooter)
		body = strings.Join(strings.Fields(body), "")
		b, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		der = b
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA key (%T)", ErrMalformedKey, pub)
	}
	return ecKey, nil
}
