package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/wardrobe"
)

// WardrobeServiceInterface はワードローブハンドラーが必要とするサービスインターフェース。
type WardrobeServiceInterface interface {
	List(ctx context.Context, principal *model.Principal, category string) ([]*model.WardrobeItem, error)
	Create(ctx context.Context, principal *model.Principal, in wardrobe.ItemInput) (*model.WardrobeItem, error)
	Update(ctx context.Context, principal *model.Principal, id string, in wardrobe.ItemInput) (*model.WardrobeItem, error)
	Delete(ctx context.Context, principal *model.Principal, id string) error
	SaveFromCatalog(ctx context.Context, principal *model.Principal, catalogItemID string) (*model.WardrobeItem, error)
}

// WardrobeHandler はワードローブ管理のHTTPハンドラー。
type WardrobeHandler struct {
	service WardrobeServiceInterface
}

// NewWardrobeHandler はWardrobeHandlerを生成する。
func NewWardrobeHandler(service WardrobeServiceInterface) *WardrobeHandler {
	return &WardrobeHandler{service: service}
}

type wardrobeItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	Color       string `json:"color"`
	Brand       string `json:"brand"`
	Season      string `json:"season"`
}

func (req wardrobeItemRequest) input() wardrobe.ItemInput {
	return wardrobe.ItemInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Color:       req.Color,
		Brand:       req.Brand,
		Season:      req.Season,
	}
}

// List は自分のワードローブを返す。?category= で絞り込める。
// GET /api/wardrobe
func (h *WardrobeHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), middleware.PrincipalFromContext(r.Context()), r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]wardrobeItemResponse, len(items))
	for i, item := range items {
		resp[i] = toWardrobeItemResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はワードローブにアイテムを追加する。
// POST /api/wardrobe
func (h *WardrobeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req wardrobeItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWardrobeItemResponse(item))
}

// Update はワードローブアイテムを更新する。
// PUT /api/wardrobe/{id}
func (h *WardrobeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req wardrobeItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWardrobeItemResponse(item))
}

// Delete はワードローブアイテムを削除する。
// DELETE /api/wardrobe/{id}
func (h *WardrobeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveFromCatalog はカタログアイテムを自分のワードローブに保存する。
// POST /api/items/{id}/save
func (h *WardrobeHandler) SaveFromCatalog(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.SaveFromCatalog(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWardrobeItemResponse(item))
}
