// Package forum はフォーラムのスレッドと投稿のドメインロジックを提供する。
package forum

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/bestdressed/internal/access"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	maxTitleLength   = 255
	maxContentLength = 2000
	// DefaultThreadLimit はスレッド一覧の既定件数。
	DefaultThreadLimit = 50
	maxThreadLimit     = 200
)

// Sanitizer はユーザー入力テキストのサニタイズを行う。
type Sanitizer interface {
	Sanitize(raw string) string
	PlainText(raw string) string
}

// ContentChecker は禁止コンテンツを含む場合にエラーを返す。
type ContentChecker interface {
	Check(texts ...string) error
}

// ThreadDetail はスレッドと投稿一覧。
type ThreadDetail struct {
	Thread *model.ThreadSummary
	Posts  []model.PostWithAuthor
}

// Service はフォーラムのサービス層。
type Service struct {
	repo      repository.ForumRepository
	outfits   repository.OutfitRepository
	sanitizer Sanitizer
	filter    ContentChecker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ForumRepository,
	outfits repository.OutfitRepository,
	sanitizer Sanitizer,
	filter ContentChecker,
) *Service {
	return &Service{
		repo:      repo,
		outfits:   outfits,
		sanitizer: sanitizer,
		filter:    filter,
	}
}

// ListThreads はスレッド一覧を返す。未ログインでも閲覧できる。
func (s *Service) ListThreads(ctx context.Context, principal *model.Principal, limit int) ([]model.ThreadSummary, error) {
	if limit <= 0 {
		limit = DefaultThreadLimit
	}
	if limit > maxThreadLimit {
		limit = maxThreadLimit
	}
	threads, err := s.repo.ListThreads(ctx, viewerID(principal), limit)
	if err != nil {
		return nil, fmt.Errorf("スレッド一覧の取得に失敗: %w", err)
	}
	return threads, nil
}

// ListSaved は自分が保存したスレッドを返す。
func (s *Service) ListSaved(ctx context.Context, principal *model.Principal) ([]model.ThreadSummary, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	threads, err := s.repo.ListSavedThreads(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("保存済みスレッドの取得に失敗: %w", err)
	}
	return threads, nil
}

// GetThread はスレッドと投稿を返す。未ログインでも閲覧できる。
func (s *Service) GetThread(ctx context.Context, principal *model.Principal, id string) (*ThreadDetail, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.NewNotFoundError("thread", id)
	}
	summary, err := s.repo.GetThreadSummary(ctx, id, viewerID(principal))
	if err != nil {
		return nil, fmt.Errorf("スレッドの取得に失敗: %w", err)
	}
	if summary == nil {
		return nil, model.NewNotFoundError("thread", id)
	}
	posts, err := s.repo.ListPosts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	return &ThreadDetail{Thread: summary, Posts: posts}, nil
}

// ThreadInput はスレッドの作成・更新の入力。
type ThreadInput struct {
	Title            string
	Content          string
	AttachedOutfitID string
}

// CreateThread はスレッドを作成する。
func (s *Service) CreateThread(ctx context.Context, principal *model.Principal, in ThreadInput) (*model.Thread, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	now := time.Now()
	thread := &model.Thread{
		ID:        uuid.New().String(),
		UserID:    principal.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyThread(ctx, thread, in); err != nil {
		return nil, err
	}

	if err := s.repo.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("スレッドの作成に失敗: %w", err)
	}
	return thread, nil
}

// UpdateThread はスレッドを更新する。作成者またはスタッフのみが実行できる。
func (s *Service) UpdateThread(ctx context.Context, principal *model.Principal, id string, in ThreadInput) (*model.Thread, error) {
	thread, err := s.loadThread(ctx, principal, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}
	if err := s.applyThread(ctx, thread, in); err != nil {
		return nil, err
	}
	thread.UpdatedAt = time.Now()

	if err := s.repo.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("スレッドの更新に失敗: %w", err)
	}
	return thread, nil
}

// DeleteThread はスレッドを投稿ごと削除する。
func (s *Service) DeleteThread(ctx context.Context, principal *model.Principal, id string) error {
	if _, err := s.loadThread(ctx, principal, id, access.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.DeleteThread(ctx, id); err != nil {
		return fmt.Errorf("スレッドの削除に失敗: %w", err)
	}
	return nil
}

// CreatePost はスレッドに返信する。
func (s *Service) CreatePost(ctx context.Context, principal *model.Principal, threadID, content string) (*model.Post, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	if _, err := s.findThread(ctx, threadID); err != nil {
		return nil, err
	}

	body, err := s.cleanContent(content)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	post := &model.Post{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		UserID:    principal.ID,
		Content:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗: %w", err)
	}
	return post, nil
}

// UpdatePost は投稿を更新する。作成者またはスタッフのみが実行できる。
func (s *Service) UpdatePost(ctx context.Context, principal *model.Principal, id, content string) (*model.Post, error) {
	post, err := s.loadPost(ctx, principal, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}

	body, err := s.cleanContent(content)
	if err != nil {
		return nil, err
	}
	post.Content = body
	post.UpdatedAt = time.Now()

	if err := s.repo.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗: %w", err)
	}
	return post, nil
}

// DeletePost は投稿を削除する。
func (s *Service) DeletePost(ctx context.Context, principal *model.Principal, id string) error {
	if _, err := s.loadPost(ctx, principal, id, access.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("投稿の削除に失敗: %w", err)
	}
	return nil
}

// ToggleThreadLike はスレッドのいいねを切り替え、切り替え後の状態を返す。
func (s *Service) ToggleThreadLike(ctx context.Context, principal *model.Principal, threadID string) (bool, error) {
	if principal == nil {
		return false, model.NewUnauthorizedError()
	}
	if _, err := s.findThread(ctx, threadID); err != nil {
		return false, err
	}
	liked, err := s.repo.ToggleThreadLike(ctx, principal.ID, threadID)
	if err != nil {
		return false, fmt.Errorf("いいねの切り替えに失敗: %w", err)
	}
	return liked, nil
}

// TogglePostLike は投稿のいいねを切り替え、切り替え後の状態を返す。
func (s *Service) TogglePostLike(ctx context.Context, principal *model.Principal, postID string) (bool, error) {
	if principal == nil {
		return false, model.NewUnauthorizedError()
	}
	if _, err := s.findPost(ctx, postID); err != nil {
		return false, err
	}
	liked, err := s.repo.TogglePostLike(ctx, principal.ID, postID)
	if err != nil {
		return false, fmt.Errorf("いいねの切り替えに失敗: %w", err)
	}
	return liked, nil
}

// ToggleSaved はスレッドの保存を切り替え、切り替え後の状態を返す。
func (s *Service) ToggleSaved(ctx context.Context, principal *model.Principal, threadID string) (bool, error) {
	if principal == nil {
		return false, model.NewUnauthorizedError()
	}
	if _, err := s.findThread(ctx, threadID); err != nil {
		return false, err
	}
	saved, err := s.repo.ToggleSavedThread(ctx, principal.ID, threadID)
	if err != nil {
		return false, fmt.Errorf("スレッドの保存に失敗: %w", err)
	}
	return saved, nil
}

func (s *Service) findThread(ctx context.Context, id string) (*model.Thread, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.NewNotFoundError("thread", id)
	}
	thread, err := s.repo.FindThreadByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("スレッドの取得に失敗: %w", err)
	}
	if thread == nil {
		return nil, model.NewNotFoundError("thread", id)
	}
	return thread, nil
}

func (s *Service) loadThread(ctx context.Context, principal *model.Principal, id string, action access.Action) (*model.Thread, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	thread, err := s.findThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(principal, thread, action, "thread"); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Service) findPost(ctx context.Context, id string) (*model.Post, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.NewNotFoundError("post", id)
	}
	post, err := s.repo.FindPostByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗: %w", err)
	}
	if post == nil {
		return nil, model.NewNotFoundError("post", id)
	}
	return post, nil
}

func (s *Service) loadPost(ctx context.Context, principal *model.Principal, id string, action access.Action) (*model.Post, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(principal, post, action, "post"); err != nil {
		return nil, err
	}
	return post, nil
}

// applyThread は入力を検証し、スレッドに反映する。
// 添付するコーディネートはスレッド作成者のものに限る。
func (s *Service) applyThread(ctx context.Context, thread *model.Thread, in ThreadInput) error {
	title := s.sanitizer.PlainText(in.Title)
	if title == "" {
		return model.NewValidationError("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}

	content, err := s.cleanContent(in.Content)
	if err != nil {
		return err
	}
	if err := s.filter.Check(title); err != nil {
		return err
	}

	var attached *string
	if in.AttachedOutfitID != "" {
		outfit, err := s.findOutfit(ctx, in.AttachedOutfitID)
		if err != nil {
			return err
		}
		if outfit == nil || outfit.UserID != thread.UserID {
			return model.NewValidationError("attached_outfit_id", "must be one of the author's outfits")
		}
		id := outfit.ID
		attached = &id
	}

	thread.Title = title
	thread.Content = content
	thread.AttachedOutfitID = attached
	return nil
}

func (s *Service) findOutfit(ctx context.Context, id string) (*model.Outfit, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, nil
	}
	outfit, err := s.outfits.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コーディネートの取得に失敗: %w", err)
	}
	return outfit, nil
}

// cleanContent は本文をサニタイズし、長さと禁止コンテンツを検証する。
func (s *Service) cleanContent(raw string) (string, error) {
	if err := s.filter.Check(raw); err != nil {
		return "", err
	}
	content := s.sanitizer.Sanitize(raw)
	if content == "" {
		return "", model.NewValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", model.NewValidationError("content", fmt.Sprintf("must be at most %d characters", maxContentLength))
	}
	return content, nil
}

func viewerID(principal *model.Principal) string {
	if principal == nil {
		return ""
	}
	return principal.ID
}
