package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/moderation"
)

// BanServiceInterface はモデレーションハンドラーが必要とするサービスインターフェース。
type BanServiceInterface interface {
	Ban(ctx context.Context, principal *model.Principal, in moderation.BanInput) (*model.BannedIP, error)
	Unban(ctx context.Context, principal *model.Principal, ipAddress string) error
}

// ModerationHandler はIP BAN管理のHTTPハンドラー。スタッフのみ利用できる。
type ModerationHandler struct {
	service BanServiceInterface
}

// NewModerationHandler はModerationHandlerを生成する。
func NewModerationHandler(service BanServiceInterface) *ModerationHandler {
	return &ModerationHandler{service: service}
}

type banRequest struct {
	IPAddress string `json:"ip_address"`
	Reason    string `json:"reason"`
	// DurationHours が0の場合は無期限。
	DurationHours int `json:"duration_hours"`
}

// Ban はIPアドレスをBANする。
// POST /api/moderation/bans
func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DurationHours < 0 {
		handleServiceError(w, model.NewValidationError("duration_hours", "must not be negative"))
		return
	}

	ban, err := h.service.Ban(r.Context(), middleware.PrincipalFromContext(r.Context()), moderation.BanInput{
		IPAddress: req.IPAddress,
		Reason:    req.Reason,
		Duration:  time.Duration(req.DurationHours) * time.Hour,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBanResponse(ban))
}

// Unban はBANを解除する。
// DELETE /api/moderation/bans/{ip}
func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unban(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "ip")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
