package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bestdressed/internal/catalog"
	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	List(ctx context.Context, principal *model.Principal, tag string, limit int) ([]*model.CatalogItem, error)
	Get(ctx context.Context, principal *model.Principal, id string) (*model.CatalogItem, error)
	Create(ctx context.Context, principal *model.Principal, in catalog.ItemInput) (*model.CatalogItem, error)
	SearchEbay(ctx context.Context, principal *model.Principal, term string, limit int) (*catalog.SearchResult, error)
	ImportEbay(ctx context.Context, principal *model.Principal, listing model.EbayListing) (*model.CatalogItem, error)
	Hide(ctx context.Context, principal *model.Principal, id string) error
	Unhide(ctx context.Context, principal *model.Principal, id string) error
}

// CatalogHandler はカタログのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

type catalogItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Tag         string `json:"tag"`
}

type ebaySearchResponse struct {
	Listings []model.EbayListing `json:"listings"`
	Filtered int                 `json:"filtered"`
}

// List は非表示にしていないカタログアイテムを返す。?tag= と ?limit= を受け付ける。
// GET /api/items
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), middleware.PrincipalFromContext(r.Context()),
		r.URL.Query().Get("tag"), queryInt(r, "limit", catalog.DefaultListLimit))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]catalogItemResponse, len(items))
	for i, item := range items {
		resp[i] = toCatalogItemResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はカタログアイテムを返す。
// GET /api/items/{id}
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCatalogItemResponse(item))
}

// Create はカタログアイテムを手動登録する。
// POST /api/items
func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req catalogItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), catalog.ItemInput{
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Tag:         req.Tag,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCatalogItemResponse(item))
}

// SearchEbay はeBayの商品を検索する。
// GET /api/items/ebay/search?q=...&limit=...
func (h *CatalogHandler) SearchEbay(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SearchEbay(r.Context(), middleware.PrincipalFromContext(r.Context()),
		r.URL.Query().Get("q"), queryInt(r, "limit", catalog.DefaultSearchLimit))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ebaySearchResponse{
		Listings: result.Listings,
		Filtered: result.Filtered,
	})
}

// ImportEbay はeBay商品をカタログに取り込む。
// POST /api/items/ebay
func (h *CatalogHandler) ImportEbay(w http.ResponseWriter, r *http.Request) {
	var req model.EbayListing
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.ImportEbay(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCatalogItemResponse(item))
}

// Hide はアイテムを自分の一覧から非表示にする。
// POST /api/items/{id}/hide
func (h *CatalogHandler) Hide(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Hide(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unhide は非表示を解除する。
// DELETE /api/items/{id}/hide
func (h *CatalogHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unhide(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
