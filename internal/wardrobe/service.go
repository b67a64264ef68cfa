// Package wardrobe はワードローブアイテム管理のドメインロジックを提供する。
package wardrobe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/bestdressed/internal/access"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxShortFieldLength  = 50

	resourceName = "wardrobe item"
)

// Sanitizer はユーザー入力テキストのサニタイズを行う。
type Sanitizer interface {
	Sanitize(raw string) string
	PlainText(raw string) string
}

// URLValidator は画像URLの安全性を検証する。
type URLValidator interface {
	ValidateImageURL(rawURL string) error
}

// Service はワードローブのサービス層。
type Service struct {
	items     repository.WardrobeRepository
	catalog   repository.CatalogRepository
	sanitizer Sanitizer
	urls      URLValidator
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	items repository.WardrobeRepository,
	catalog repository.CatalogRepository,
	sanitizer Sanitizer,
	urls URLValidator,
	logger *slog.Logger,
) *Service {
	return &Service{
		items:     items,
		catalog:   catalog,
		sanitizer: sanitizer,
		urls:      urls,
		logger:    logger,
	}
}

// ItemInput はワードローブアイテムの作成・更新の入力。
type ItemInput struct {
	Title       string
	Description string
	Category    string
	ImageURL    string
	Color       string
	Brand       string
	Season      string
}

// List はユーザー自身のワードローブを返す。categoryが空の場合は全件。
func (s *Service) List(ctx context.Context, principal *model.Principal, category string) ([]*model.WardrobeItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	var filter model.Category
	if category != "" {
		c, ok := model.ParseCategory(category)
		if !ok {
			return nil, model.NewValidationError("category", "unknown category")
		}
		filter = c
	}

	items, err := s.items.ListByUserID(ctx, principal.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("ワードローブの取得に失敗: %w", err)
	}
	return items, nil
}

// Create はアイテムを作成する。所有者は常にprincipalになる。
func (s *Service) Create(ctx context.Context, principal *model.Principal, in ItemInput) (*model.WardrobeItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	now := time.Now()
	item := &model.WardrobeItem{
		ID:        uuid.New().String(),
		UserID:    principal.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(item, in); err != nil {
		return nil, err
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("ワードローブアイテムの作成に失敗: %w", err)
	}
	return item, nil
}

// Update はアイテムを更新する。所有者またはスタッフのみが実行できる。
func (s *Service) Update(ctx context.Context, principal *model.Principal, id string, in ItemInput) (*model.WardrobeItem, error) {
	item, err := s.load(ctx, principal, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}

	if err := s.apply(item, in); err != nil {
		return nil, err
	}
	item.UpdatedAt = time.Now()

	if err := s.items.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("ワードローブアイテムの更新に失敗: %w", err)
	}
	return item, nil
}

// Delete はアイテムを削除する。所有者またはスタッフのみが実行できる。
func (s *Service) Delete(ctx context.Context, principal *model.Principal, id string) error {
	if _, err := s.load(ctx, principal, id, access.ActionDelete); err != nil {
		return err
	}
	if err := s.items.Delete(ctx, id); err != nil {
		return fmt.Errorf("ワードローブアイテムの削除に失敗: %w", err)
	}
	return nil
}

// SaveFromCatalog はカタログアイテムを自分のワードローブにコピーする。
// 同じカタログアイテムを保存済みの場合はALREADY_IN_WARDROBEを返す。
func (s *Service) SaveFromCatalog(ctx context.Context, principal *model.Principal, catalogItemID string) (*model.WardrobeItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	if err := uuid.Validate(catalogItemID); err != nil {
		return nil, model.NewNotFoundError("catalog item", catalogItemID)
	}

	src, err := s.catalog.FindByID(ctx, catalogItemID)
	if err != nil {
		return nil, fmt.Errorf("カタログアイテムの取得に失敗: %w", err)
	}
	if src == nil {
		return nil, model.NewNotFoundError("catalog item", catalogItemID)
	}

	now := time.Now()
	linked := src.ID
	item := &model.WardrobeItem{
		ID:            uuid.New().String(),
		UserID:        principal.ID,
		Title:         src.Title,
		Description:   src.Description,
		Category:      src.Tag,
		ImageURL:      src.ImageURL,
		CatalogItemID: &linked,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.items.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyInWardrobeError()
		}
		return nil, fmt.Errorf("ワードローブへの保存に失敗: %w", err)
	}

	s.logger.Info("カタログアイテムをワードローブに保存しました",
		slog.String("user_id", principal.ID),
		slog.String("catalog_item_id", src.ID),
	)
	return item, nil
}

// load はアイテムを取得し、actionの権限を検証する。
func (s *Service) load(ctx context.Context, principal *model.Principal, id string, action access.Action) (*model.WardrobeItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	if err := uuid.Validate(id); err != nil {
		return nil, model.NewNotFoundError(resourceName, id)
	}

	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ワードローブアイテムの取得に失敗: %w", err)
	}
	if item == nil {
		return nil, model.NewNotFoundError(resourceName, id)
	}
	if err := access.Require(principal, item, action, resourceName); err != nil {
		return nil, err
	}
	return item, nil
}

// apply は入力を検証し、アイテムに反映する。所有者とカタログ紐付けは変更しない。
func (s *Service) apply(item *model.WardrobeItem, in ItemInput) error {
	title := s.sanitizer.PlainText(in.Title)
	if title == "" {
		return model.NewValidationError("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}

	description := s.sanitizer.Sanitize(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return model.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	category, ok := model.ParseCategory(strings.TrimSpace(in.Category))
	if !ok {
		return model.NewValidationError("category", "unknown category")
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if err := s.urls.ValidateImageURL(imageURL); err != nil {
		return model.NewInvalidURLError("image_url must be a public http or https URL")
	}

	color := s.sanitizer.PlainText(in.Color)
	brand := s.sanitizer.PlainText(in.Brand)
	season := s.sanitizer.PlainText(in.Season)
	for _, f := range []struct{ name, value string }{
		{"color", color}, {"brand", brand}, {"season", season},
	} {
		if utf8.RuneCountInString(f.value) > maxShortFieldLength {
			return model.NewValidationError(f.name, fmt.Sprintf("must be at most %d characters", maxShortFieldLength))
		}
	}

	item.Title = title
	item.Description = description
	item.Category = category
	item.ImageURL = imageURL
	item.Color = color
	item.Brand = brand
	item.Season = season
	return nil
}
