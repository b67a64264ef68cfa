// Package ebay はeBayマーケットプレイスアカウント削除通知の検証と
// eBay APIクライアントを提供する。
//
// 検証は2段階で構成される:
//   - チャレンジ検証: challengeCode + verificationToken + endpointURL の順に連結し、
//     SHA-256のhexダイジェストを計算する
//   - 署名検証: X-EBAY-SIGNATURE ヘッダーの署名をeBayの公開鍵（ECDSA）で検証する
//
// いずれの検証関数もpanicせず、失敗は必ずRejectとして返す。
package ebay

import (
	"crypto/ecdsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// Decision は検証結果の判定。
type Decision int

const (
	Reject Decision = iota
	Accept
)

// String はログ出力用の表記を返す。
func (d Decision) String() string {
	if d == Accept {
		return "accept"
	}
	return "reject"
}

// Result は検証結果と、境界で返すHTTPステータスを保持する。
type Result struct {
	Decision Decision
	Status   int    // Accept: 200, 入力不正: 400, 署名不正: 401
	Reason   string // Reject理由（ログ用）
}

func accept() Result {
	return Result{Decision: Accept, Status: http.StatusOK}
}

func rejectMalformed(reason string) Result {
	return Result{Decision: Reject, Status: http.StatusBadRequest, Reason: reason}
}

func rejectUnauthorized(reason string) Result {
	return Result{Decision: Reject, Status: http.StatusUnauthorized, Reason: reason}
}

// VerificationRequest は外部から受け取った検証対象のデータ。
type VerificationRequest struct {
	ChallengeCode     string
	EndpointURL       string
	VerificationToken string
	// ExpectedDigest は呼び出し元が提示したチャレンジダイジェスト（hex）。
	ExpectedDigest string
	// Payload は署名対象のリクエストボディ。
	Payload []byte
	// Signature はDERエンコードされたECDSA署名。
	Signature []byte
}

// ChallengeResponse はチャレンジコードに対する応答ダイジェストを計算する。
// 連結順序は challengeCode, verificationToken, endpointURL で固定。
func ChallengeResponse(challengeCode, verificationToken, endpointURL string) string {
	h := sha256.New()
	h.Write([]byte(challengeCode))
	h.Write([]byte(verificationToken))
	h.Write([]byte(endpointURL))
	return hex.EncodeToString(h.Sum(nil))
}

// AnswerChallenge はチャレンジの各フィールドを検証し、応答ダイジェストを返す。
// エンドポイント登録時のチャレンジ応答はこの関数を経由する。
func AnswerChallenge(challengeCode, verificationToken, endpointURL string) (string, Result) {
	if res := checkChallengeFields(challengeCode, verificationToken, endpointURL); res.Decision == Reject {
		return "", res
	}
	return ChallengeResponse(challengeCode, verificationToken, endpointURL), accept()
}

func checkChallengeFields(challengeCode, verificationToken, endpointURL string) Result {
	if challengeCode == "" || verificationToken == "" || endpointURL == "" {
		return rejectMalformed("missing challenge field")
	}
	return accept()
}

// CheckDigest は提示されたダイジェストが計算値と一致するかを定数時間で比較する。
// eBayはダイジェストを送り返さないため通知の受信経路では使わず、
// ダイジェストを保持する呼び出し元がVerifyを通して利用する。
func CheckDigest(req VerificationRequest) Result {
	if res := checkChallengeFields(req.ChallengeCode, req.VerificationToken, req.EndpointURL); res.Decision == Reject {
		return res
	}
	if req.ExpectedDigest == "" {
		return rejectMalformed("missing digest")
	}

	want := ChallengeResponse(req.ChallengeCode, req.VerificationToken, req.EndpointURL)
	if subtle.ConstantTimeCompare([]byte(want), []byte(req.ExpectedDigest)) != 1 {
		return rejectMalformed("digest mismatch")
	}
	return accept()
}

// CheckSignature はPayloadに対するSignatureを公開鍵で検証する。
// eBayの通知署名はSHA-1ダイジェストに対するECDSA署名（ASN.1 DER）。
func CheckSignature(payload, signature []byte, key *ecdsa.PublicKey) Result {
	if key == nil {
		return rejectUnauthorized("no public key")
	}
	if len(signature) == 0 {
		return rejectMalformed("missing signature")
	}

	digest := sha1.Sum(payload)
	if !ecdsa.VerifyASN1(key, digest[:], signature) {
		return rejectUnauthorized("invalid signature")
	}
	return accept()
}

// Verify はダイジェスト検証と署名検証の両方を行い、両方が成功した場合のみAcceptを返す。
// 先に失敗した検証のResultを返す。
// eBayの削除通知はVerifier.VerifyNotificationで検証する。Verifyは
// チャレンジのダイジェストと署名済みペイロードを両方持つ呼び出し元向けの検証関数。
func Verify(req VerificationRequest, key *ecdsa.PublicKey) Result {
	if res := CheckDigest(req); res.Decision == Reject {
		return res
	}
	return CheckSignature(req.Payload, req.Signature, key)
}
