package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bestdressed/internal/ebay"
)

const (
	ebaySignatureHeader = "X-EBAY-SIGNATURE"
	// maxNotificationBytes はeBay通知ボディの上限。
	maxNotificationBytes = 64 << 10
)

// NotificationVerifier はeBay通知の署名を検証する。
type NotificationVerifier interface {
	VerifyNotification(ctx context.Context, signatureHeader string, body []byte) ebay.Result
}

// SellerItemDeleter は出品者のカタログアイテムを削除する。
type SellerItemDeleter interface {
	DeleteBySeller(ctx context.Context, sellerID string) (int64, error)
}

// EbayWebhookConfig はeBay Webhookの設定。
type EbayWebhookConfig struct {
	VerificationToken string
	EndpointURL       string
}

// EbayWebhookHandler はeBayのアカウント削除通知を受け付けるHTTPハンドラー。
// CSRF検証の対象外に配置する。
type EbayWebhookHandler struct {
	verifier NotificationVerifier
	deleter  SellerItemDeleter
	config   EbayWebhookConfig
	logger   *slog.Logger
}

// NewEbayWebhookHandler はEbayWebhookHandlerを生成する。
func NewEbayWebhookHandler(verifier NotificationVerifier, deleter SellerItemDeleter, config EbayWebhookConfig, logger *slog.Logger) *EbayWebhookHandler {
	return &EbayWebhookHandler{
		verifier: verifier,
		deleter:  deleter,
		config:   config,
		logger:   logger,
	}
}

type challengeResponse struct {
	ChallengeResponse string `json:"challengeResponse"`
}

// Challenge はエンドポイント登録時のチャレンジに応答する。
// GET /auth/ebay_market_delete/?challenge_code=X
func (h *EbayWebhookHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("challenge_code")
	digest, res := ebay.AnswerChallenge(code, h.config.VerificationToken, h.config.EndpointURL)
	if res.Decision != ebay.Accept {
		h.logger.Warn("eBayチャレンジを拒否しました", slog.String("reason", res.Reason))
		w.WriteHeader(res.Status)
		return
	}

	writeJSON(w, http.StatusOK, challengeResponse{ChallengeResponse: digest})
}

// Notify はアカウント削除通知を検証し、該当出品者のアイテムを削除する。
// POST /auth/ebay_market_delete/
func (h *EbayWebhookHandler) Notify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		h.logger.Warn("eBay通知ボディの読み取りに失敗しました", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	res := h.verifier.VerifyNotification(r.Context(), r.Header.Get(ebaySignatureHeader), body)
	if res.Decision != ebay.Accept {
		w.WriteHeader(res.Status)
		return
	}

	notice, err := ebay.ParseDeletionNotice(body)
	if err != nil {
		h.logger.Warn("eBay削除通知の解析に失敗しました", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	deleted, err := h.deleter.DeleteBySeller(r.Context(), notice.Username)
	if err != nil {
		h.logger.Error("出品者アイテムの削除に失敗しました",
			slog.String("notification_id", notice.NotificationID),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.logger.Info("eBayアカウント削除通知を処理しました",
		slog.String("notification_id", notice.NotificationID),
		slog.Int64("deleted", deleted),
	)
	w.WriteHeader(http.StatusOK)
}
