package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/model"
)

// RecommendServiceInterface はレコメンドハンドラーが必要とするサービスインターフェース。
type RecommendServiceInterface interface {
	Request(ctx context.Context, principal *model.Principal, userPrompt string) (*model.RecommendationJob, error)
	Poll(ctx context.Context, principal *model.Principal, jobID string) (*model.RecommendationJob, error)
	History(ctx context.Context, principal *model.Principal, limit int) ([]*model.SavedRecommendation, error)
}

// RecommendationHandler はAIレコメンドのHTTPハンドラー。
type RecommendationHandler struct {
	service RecommendServiceInterface
}

// NewRecommendationHandler はRecommendationHandlerを生成する。
func NewRecommendationHandler(service RecommendServiceInterface) *RecommendationHandler {
	return &RecommendationHandler{service: service}
}

type recommendationRequest struct {
	Prompt string `json:"prompt"`
}

// Request はレコメンド生成ジョブを投入する。
// ジョブは非同期に処理されるため202とジョブIDを返す。
// POST /api/recommendations
func (h *RecommendationHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	job, err := h.service.Request(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Prompt)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/api/recommendations/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// Poll はジョブの状態を返す。他人のジョブは404。
// GET /api/recommendations/jobs/{id}
func (h *RecommendationHandler) Poll(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Poll(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// History は保存されたレコメンド履歴を返す。
// GET /api/recommendations
func (h *RecommendationHandler) History(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.History(r.Context(), middleware.PrincipalFromContext(r.Context()), queryInt(r, "limit", 0))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]savedRecommendationResponse, len(recs))
	for i, rec := range recs {
		resp[i] = toSavedRecommendationResponse(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}
