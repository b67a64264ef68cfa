package recommend

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	// maxPromptLength はユーザー依頼文の最大文字数。
	maxPromptLength = 1000
	// snapshotLimit はプロンプトに含めるカタログアイテムの最大数。
	snapshotLimit = 100
	// defaultHistoryLimit は履歴取得件数のデフォルト値。
	defaultHistoryLimit = 20
)

// JobDispatcher はジョブの投入とポーリングのインターフェース。Dispatcherが実装する。
type JobDispatcher interface {
	Submit(ctx context.Context, principal *model.Principal, snapshot []model.SnapshotItem, profile model.UserProfile, userPrompt string) (*model.RecommendationJob, error)
	Poll(ctx context.Context, principal *model.Principal, jobID string) (*model.RecommendationJob, error)
}

// Service はレコメンド依頼の入力検証とスナップショット作成を行う。
type Service struct {
	profiles   repository.ProfileRepository
	catalog    repository.CatalogRepository
	saved      repository.SavedRecommendationRepository
	dispatcher JobDispatcher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profiles repository.ProfileRepository,
	catalog repository.CatalogRepository,
	saved repository.SavedRecommendationRepository,
	dispatcher JobDispatcher,
) *Service {
	return &Service{
		profiles:   profiles,
		catalog:    catalog,
		saved:      saved,
		dispatcher: dispatcher,
	}
}

// Request はプロフィールと閲覧可能なカタログアイテムのスナップショットでジョブを投入する。
// プロフィールが未作成の場合はPROFILE_NOT_FOUNDを返す。
func (s *Service) Request(ctx context.Context, principal *model.Principal, userPrompt string) (*model.RecommendationJob, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return nil, model.NewValidationError("prompt", "must not be empty")
	}
	if utf8.RuneCountInString(userPrompt) > maxPromptLength {
		return nil, model.NewValidationError("prompt", "must be at most 1000 characters")
	}

	profile, err := s.profiles.FindByUserID(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}

	items, err := s.catalog.ListVisible(ctx, principal.ID, "", snapshotLimit)
	if err != nil {
		return nil, err
	}

	snapshot := make([]model.SnapshotItem, 0, len(items))
	for _, item := range items {
		snapshot = append(snapshot, model.SnapshotItem{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			Category:    string(item.Tag),
		})
	}

	return s.dispatcher.Submit(ctx, principal, snapshot, *profile, userPrompt)
}

// Poll はジョブの状態を返す。
func (s *Service) Poll(ctx context.Context, principal *model.Principal, jobID string) (*model.RecommendationJob, error) {
	return s.dispatcher.Poll(ctx, principal, jobID)
}

// History はユーザーのレコメンド履歴を新しい順に返す。
func (s *Service) History(ctx context.Context, principal *model.Principal, limit int) ([]*model.SavedRecommendation, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}
	return s.saved.ListByUserID(ctx, principal.ID, limit)
}
