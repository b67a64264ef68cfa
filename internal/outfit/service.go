// Package outfit はコーディネート管理のドメインロジックを提供する。
package outfit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/bestdressed/internal/access"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	maxNameLength        = 200
	maxDescriptionLength = 1000
	maxItemsPerOutfit    = 30
	// maxCopyAttempts は複製時に空き名を探す上限。
	maxCopyAttempts = 20

	resourceName = "outfit"
)

// Sanitizer はユーザー入力テキストのサニタイズを行う。
type Sanitizer interface {
	Sanitize(raw string) string
	PlainText(raw string) string
}

// Service はコーディネートのサービス層。
type Service struct {
	outfits   repository.OutfitRepository
	wardrobe  repository.WardrobeRepository
	sanitizer Sanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	outfits repository.OutfitRepository,
	wardrobe repository.WardrobeRepository,
	sanitizer Sanitizer,
) *Service {
	return &Service{
		outfits:   outfits,
		wardrobe:  wardrobe,
		sanitizer: sanitizer,
	}
}

// OutfitInput はコーディネートの作成・更新の入力。
type OutfitInput struct {
	Name        string
	Description string
	Occasion    string
	Season      string
	ItemIDs     []string
}

// List は自分のコーディネートをお気に入り優先で返す。
func (s *Service) List(ctx context.Context, principal *model.Principal) ([]*model.Outfit, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	outfits, err := s.outfits.ListByUserID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("コーディネート一覧の取得に失敗: %w", err)
	}
	return outfits, nil
}

// Get はコーディネートを返す。
// 閲覧権限がない場合は存在を明かさずNOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, principal *model.Principal, id string) (*model.Outfit, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	outfit, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if access.Authorize(principal, outfit, access.ActionView) == access.Deny {
		return nil, model.NewNotFoundError(resourceName, id)
	}
	return outfit, nil
}

// Create はコーディネートを作成する。
func (s *Service) Create(ctx context.Context, principal *model.Principal, in OutfitInput) (*model.Outfit, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	now := time.Now()
	outfit := &model.Outfit{
		ID:        uuid.New().String(),
		UserID:    principal.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(ctx, outfit, in); err != nil {
		return nil, err
	}

	if err := s.outfits.Create(ctx, outfit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateOutfitNameError(outfit.Name)
		}
		return nil, fmt.Errorf("コーディネートの作成に失敗: %w", err)
	}
	return outfit, nil
}

// Update はコーディネートを更新する。所有者またはスタッフのみが実行できる。
// アイテムは所有者のワードローブに属している必要がある。
func (s *Service) Update(ctx context.Context, principal *model.Principal, id string, in OutfitInput) (*model.Outfit, error) {
	outfit, err := s.load(ctx, principal, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}

	if err := s.apply(ctx, outfit, in); err != nil {
		return nil, err
	}
	outfit.UpdatedAt = time.Now()

	if err := s.outfits.Update(ctx, outfit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateOutfitNameError(outfit.Name)
		}
		return nil, fmt.Errorf("コーディネートの更新に失敗: %w", err)
	}
	return outfit, nil
}

// Delete はコーディネートを削除する。
func (s *Service) Delete(ctx context.Context, principal *model.Principal, id string) error {
	if _, err := s.load(ctx, principal, id, access.ActionDelete); err != nil {
		return err
	}
	if err := s.outfits.Delete(ctx, id); err != nil {
		return fmt.Errorf("コーディネートの削除に失敗: %w", err)
	}
	return nil
}

// ToggleFavorite はお気に入りを切り替える。
func (s *Service) ToggleFavorite(ctx context.Context, principal *model.Principal, id string) (*model.Outfit, error) {
	outfit, err := s.load(ctx, principal, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}

	outfit.IsFavorite = !outfit.IsFavorite
	outfit.UpdatedAt = time.Now()
	if err := s.outfits.Update(ctx, outfit); err != nil {
		return nil, fmt.Errorf("お気に入りの更新に失敗: %w", err)
	}
	return outfit, nil
}

// Duplicate はコーディネートを複製する。
// 複製は元の所有者のものになり、名前には" (copy)"を付ける。
// 名前が使用済みの場合は" (copy 2)"、" (copy 3)"と番号を進める。
func (s *Service) Duplicate(ctx context.Context, principal *model.Principal, id string) (*model.Outfit, error) {
	src, err := s.load(ctx, principal, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dup := &model.Outfit{
		ID:          uuid.New().String(),
		UserID:      src.UserID,
		Description: src.Description,
		Occasion:    src.Occasion,
		Season:      src.Season,
		ItemIDs:     append([]string(nil), src.ItemIDs...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 1; attempt <= maxCopyAttempts; attempt++ {
		dup.Name = copyName(src.Name, attempt)
		err := s.outfits.Create(ctx, dup)
		if err == nil {
			return dup, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("コーディネートの複製に失敗: %w", err)
		}
	}
	return nil, model.NewDuplicateOutfitNameError(copyName(src.Name, maxCopyAttempts))
}

// copyName は複製用の名前を生成する。最大長を超える場合は元の名前を切り詰める。
func copyName(name string, attempt int) string {
	suffix := " (copy)"
	if attempt > 1 {
		suffix = fmt.Sprintf(" (copy %d)", attempt)
	}
	runes := []rune(name)
	if limit := maxNameLength - utf8.RuneCountInString(suffix); len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes) + suffix
}

func (s *Service) find(ctx context.Context, id string) (*model.Outfit, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.NewNotFoundError(resourceName, id)
	}
	outfit, err := s.outfits.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コーディネートの取得に失敗: %w", err)
	}
	if outfit == nil {
		return nil, model.NewNotFoundError(resourceName, id)
	}
	return outfit, nil
}

// load はコーディネートを取得し、actionの権限を検証する。
func (s *Service) load(ctx context.Context, principal *model.Principal, id string, action access.Action) (*model.Outfit, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	outfit, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(principal, outfit, action, resourceName); err != nil {
		return nil, err
	}
	return outfit, nil
}

// apply は入力を検証し、コーディネートに反映する。所有者は変更しない。
func (s *Service) apply(ctx context.Context, outfit *model.Outfit, in OutfitInput) error {
	name := s.sanitizer.PlainText(in.Name)
	if name == "" {
		return model.NewValidationError("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return model.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	description := s.sanitizer.Sanitize(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return model.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	occasion := model.Occasion(strings.TrimSpace(in.Occasion))
	if !model.ValidOccasion(occasion) {
		return model.NewValidationError("occasion", "unknown occasion")
	}
	season := model.Season(strings.TrimSpace(in.Season))
	if !model.ValidSeason(season) {
		return model.NewValidationError("season", "unknown season")
	}

	itemIDs, err := s.ownedItems(ctx, outfit.UserID, in.ItemIDs)
	if err != nil {
		return err
	}

	outfit.Name = name
	outfit.Description = description
	outfit.Occasion = occasion
	outfit.Season = season
	outfit.ItemIDs = itemIDs
	return nil
}

// ownedItems はアイテムIDを重複排除し、全てownerのワードローブに属することを検証する。
func (s *Service) ownedItems(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if seen[id] {
			continue
		}
		if err := uuid.Validate(id); err != nil {
			return nil, model.NewValidationError("item_ids", fmt.Sprintf("invalid item id %q", id))
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) > maxItemsPerOutfit {
		return nil, model.NewValidationError("item_ids", fmt.Sprintf("must contain at most %d items", maxItemsPerOutfit))
	}
	if len(unique) == 0 {
		return unique, nil
	}

	owned, err := s.wardrobe.CountOwned(ctx, ownerID, unique)
	if err != nil {
		return nil, fmt.Errorf("ワードローブアイテムの確認に失敗: %w", err)
	}
	if owned != len(unique) {
		return nil, model.NewValidationError("item_ids", "items must belong to the outfit owner's wardrobe")
	}
	return unique, nil
}
