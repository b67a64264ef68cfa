// Package user はユーザープロフィールと退会処理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	maxBioLength              = 500
	maxStylePreferencesLength = 500
	maxFavoriteColorsLength   = 200
)

// TextSanitizer はプロフィール文字列からタグを除去する。
type TextSanitizer interface {
	PlainText(raw string) string
}

// Service はユーザー管理のサービス層。
// プロフィールの取得・更新と退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	profileRepo repository.ProfileRepository
	sanitizer   TextSanitizer
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	profileRepo repository.ProfileRepository,
	sanitizer TextSanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		profileRepo: profileRepo,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// GetProfile はユーザーのプロフィールを返す。
// 未作成の場合は空のプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, principal *model.Principal) (*model.UserProfile, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	profile, err := s.profileRepo.FindByUserID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return &model.UserProfile{UserID: principal.ID}, nil
	}
	return profile, nil
}

// ProfileInput はプロフィール更新の入力。
type ProfileInput struct {
	Bio              string
	StylePreferences string
	FavoriteColors   string
}

// UpdateProfile は自分のプロフィールを更新する。
func (s *Service) UpdateProfile(ctx context.Context, principal *model.Principal, in ProfileInput) (*model.UserProfile, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	now := time.Now()
	profile := &model.UserProfile{
		UserID:           principal.ID,
		Bio:              s.sanitizer.PlainText(in.Bio),
		StylePreferences: s.sanitizer.PlainText(in.StylePreferences),
		FavoriteColors:   s.sanitizer.PlainText(in.FavoriteColors),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"bio", profile.Bio, maxBioLength},
		{"style_preferences", profile.StylePreferences, maxStylePreferencesLength},
		{"favorite_colors", profile.FavoriteColors, maxFavoriteColorsLength},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return nil, model.NewValidationError(f.name, fmt.Sprintf("must be at most %d characters", f.max))
		}
	}

	if err := s.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return profile, nil
}

// Withdraw はユーザーの退会処理を実行する。
// セッションを削除した後にユーザーを削除する。
// ワードローブ、コーディネート、投稿などはCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, principal *model.Principal) error {
	if principal == nil {
		return model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, principal.ID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewNotFoundError("user", principal.ID)
	}

	s.logger.Info("退会処理を開始します", slog.String("user_id", user.ID))

	if err := s.sessionRepo.DeleteByUserID(ctx, user.ID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	if err := s.userRepo.DeleteByID(ctx, user.ID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	s.logger.Info("退会処理が完了しました", slog.String("user_id", user.ID))
	return nil
}
