package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, principal *model.Principal) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, principal *model.Principal, in user.ProfileInput) (*model.UserProfile, error)
	// Withdraw はユーザーの退会処理を実行する。
	// ワードローブ、コーディネート、フォーラム投稿は一括削除され、カタログは残る。
	Withdraw(ctx context.Context, principal *model.Principal) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	config  AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
// 退会時のセッションCookie削除にAuthHandlerConfigを使う。
func NewUserHandler(service UserServiceInterface, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		config:  config,
	}
}

type profileRequest struct {
	Bio              string `json:"bio"`
	StylePreferences string `json:"style_preferences"`
	FavoriteColors   string `json:"favorite_colors"`
}

// GetProfile は自分のプロフィールを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile は自分のプロフィールを更新する。
// PUT /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), middleware.PrincipalFromContext(r.Context()), user.ProfileInput{
		Bio:              req.Bio,
		StylePreferences: req.StylePreferences,
		FavoriteColors:   req.FavoriteColors,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Withdraw(r.Context(), middleware.PrincipalFromContext(r.Context())); err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
