package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bestdressed/internal/forum"
	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
)

// ForumServiceInterface はフォーラムハンドラーが必要とするサービスインターフェース。
type ForumServiceInterface interface {
	ListThreads(ctx context.Context, principal *model.Principal, limit int) ([]model.ThreadSummary, error)
	ListSaved(ctx context.Context, principal *model.Principal) ([]model.ThreadSummary, error)
	GetThread(ctx context.Context, principal *model.Principal, id string) (*forum.ThreadDetail, error)
	CreateThread(ctx context.Context, principal *model.Principal, in forum.ThreadInput) (*model.Thread, error)
	UpdateThread(ctx context.Context, principal *model.Principal, id string, in forum.ThreadInput) (*model.Thread, error)
	DeleteThread(ctx context.Context, principal *model.Principal, id string) error
	CreatePost(ctx context.Context, principal *model.Principal, threadID, content string) (*model.Post, error)
	UpdatePost(ctx context.Context, principal *model.Principal, id, content string) (*model.Post, error)
	DeletePost(ctx context.Context, principal *model.Principal, id string) error
	ToggleThreadLike(ctx context.Context, principal *model.Principal, threadID string) (bool, error)
	TogglePostLike(ctx context.Context, principal *model.Principal, postID string) (bool, error)
	ToggleSaved(ctx context.Context, principal *model.Principal, threadID string) (bool, error)
}

// ForumHandler はフォーラムのHTTPハンドラー。
type ForumHandler struct {
	service ForumServiceInterface
}

// NewForumHandler はForumHandlerを生成する。
func NewForumHandler(service ForumServiceInterface) *ForumHandler {
	return &ForumHandler{service: service}
}

type threadRequest struct {
	Title            string `json:"title"`
	Content          string `json:"content"`
	AttachedOutfitID string `json:"attached_outfit_id"`
}

func (req threadRequest) input() forum.ThreadInput {
	return forum.ThreadInput{
		Title:            req.Title,
		Content:          req.Content,
		AttachedOutfitID: req.AttachedOutfitID,
	}
}

type postRequest struct {
	Content string `json:"content"`
}

type threadDetailResponse struct {
	Thread threadResponse `json:"thread"`
	Posts  []postResponse `json:"posts"`
}

type likeResponse struct {
	Liked bool `json:"liked"`
}

type saveResponse struct {
	Saved bool `json:"saved"`
}

func writeThreadSummaries(w http.ResponseWriter, threads []model.ThreadSummary) {
	resp := make([]threadResponse, len(threads))
	for i := range threads {
		resp[i] = toThreadSummaryResponse(&threads[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListThreads はスレッド一覧を返す。未ログインでも閲覧できる。
// GET /api/forum/threads
func (h *ForumHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.service.ListThreads(r.Context(), middleware.PrincipalFromContext(r.Context()),
		queryInt(r, "limit", forum.DefaultThreadLimit))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeThreadSummaries(w, threads)
}

// ListSaved は保存したスレッドを返す。
// GET /api/forum/saved
func (h *ForumHandler) ListSaved(w http.ResponseWriter, r *http.Request) {
	threads, err := h.service.ListSaved(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeThreadSummaries(w, threads)
}

// GetThread はスレッドと投稿を返す。
// GET /api/forum/threads/{id}
func (h *ForumHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetThread(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := threadDetailResponse{
		Thread: toThreadSummaryResponse(detail.Thread),
		Posts:  make([]postResponse, len(detail.Posts)),
	}
	for i, p := range detail.Posts {
		pr := toPostResponse(&p.Post)
		pr.Username = p.Username
		pr.LikeCount = p.LikeCount
		resp.Posts[i] = pr
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateThread はスレッドを作成する。
// POST /api/forum/threads
func (h *ForumHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	thread, err := h.service.CreateThread(r.Context(), middleware.PrincipalFromContext(r.Context()), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toThreadResponse(thread))
}

// UpdateThread はスレッドを更新する。投稿者とスタッフのみ。
// PUT /api/forum/threads/{id}
func (h *ForumHandler) UpdateThread(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	thread, err := h.service.UpdateThread(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toThreadResponse(thread))
}

// DeleteThread はスレッドを削除する。投稿者とスタッフのみ。
// DELETE /api/forum/threads/{id}
func (h *ForumHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteThread(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePost はスレッドに返信する。
// POST /api/forum/threads/{id}/posts
func (h *ForumHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.CreatePost(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// UpdatePost は投稿を更新する。
// PUT /api/forum/posts/{id}
func (h *ForumHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.UpdatePost(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// DeletePost は投稿を削除する。
// DELETE /api/forum/posts/{id}
func (h *ForumHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePost(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleThreadLike はスレッドのいいねを切り替える。
// POST /api/forum/threads/{id}/like
func (h *ForumHandler) ToggleThreadLike(w http.ResponseWriter, r *http.Request) {
	liked, err := h.service.ToggleThreadLike(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked})
}

// TogglePostLike は投稿のいいねを切り替える。
// POST /api/forum/posts/{id}/like
func (h *ForumHandler) TogglePostLike(w http.ResponseWriter, r *http.Request) {
	liked, err := h.service.TogglePostLike(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked})
}

// ToggleSaved はスレッドの保存を切り替える。
// POST /api/forum/threads/{id}/save
func (h *ForumHandler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := h.service.ToggleSaved(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Saved: saved})
}
