package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/outfit"
)

// OutfitServiceInterface はコーディネートハンドラーが必要とするサービスインターフェース。
type OutfitServiceInterface interface {
	List(ctx context.Context, principal *model.Principal) ([]*model.Outfit, error)
	Get(ctx context.Context, principal *model.Principal, id string) (*model.Outfit, error)
	Create(ctx context.Context, principal *model.Principal, in outfit.OutfitInput) (*model.Outfit, error)
	Update(ctx context.Context, principal *model.Principal, id string, in outfit.OutfitInput) (*model.Outfit, error)
	Delete(ctx context.Context, principal *model.Principal, id string) error
	ToggleFavorite(ctx context.Context, principal *model.Principal, id string) (*model.Outfit, error)
	Duplicate(ctx context.Context, principal *model.Principal, id string) (*model.Outfit, error)
}

// OutfitHandler はコーディネート管理のHTTPハンドラー。
type OutfitHandler struct {
	service OutfitServiceInterface
}

// NewOutfitHandler はOutfitHandlerを生成する。
func NewOutfitHandler(service OutfitServiceInterface) *OutfitHandler {
	return &OutfitHandler{service: service}
}

type outfitRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Occasion    string   `json:"occasion"`
	Season      string   `json:"season"`
	ItemIDs     []string `json:"item_ids"`
}

func (req outfitRequest) input() outfit.OutfitInput {
	return outfit.OutfitInput{
		Name:        req.Name,
		Description: req.Description,
		Occasion:    req.Occasion,
		Season:      req.Season,
		ItemIDs:     req.ItemIDs,
	}
}

// List は自分のコーディネート一覧を返す。
// GET /api/outfits
func (h *OutfitHandler) List(w http.ResponseWriter, r *http.Request) {
	outfits, err := h.service.List(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]outfitResponse, len(outfits))
	for i, o := range outfits {
		resp[i] = toOutfitResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はコーディネートを返す。
// GET /api/outfits/{id}
func (h *OutfitHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutfitResponse(o))
}

// Create はコーディネートを作成する。
// POST /api/outfits
func (h *OutfitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req outfitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.service.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutfitResponse(o))
}

// Update はコーディネートを更新する。
// PUT /api/outfits/{id}
func (h *OutfitHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req outfitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.service.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutfitResponse(o))
}

// Delete はコーディネートを削除する。
// DELETE /api/outfits/{id}
func (h *OutfitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFavorite はお気に入り状態を切り替える。
// POST /api/outfits/{id}/favorite
func (h *OutfitHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.ToggleFavorite(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutfitResponse(o))
}

// Duplicate はコーディネートを複製する。
// POST /api/outfits/{id}/duplicate
func (h *OutfitHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Duplicate(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutfitResponse(o))
}
