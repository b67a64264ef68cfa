// Package catalog はカタログアイテム管理のドメインロジックを提供する。
// 手動登録、eBayからの取り込み、ユーザーごとの非表示、出品者単位の削除を扱う。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxEbayFieldLength   = 200
	maxSearchTermLength  = 100

	// DefaultSearchLimit はeBay検索の既定件数。
	DefaultSearchLimit = 3
	// MaxSearchLimit はeBay検索の最大件数。
	MaxSearchLimit = 100
	// DefaultListLimit は一覧の既定件数。
	DefaultListLimit = 50
	maxListLimit     = 200
)

// Sanitizer はユーザー入力テキストのサニタイズを行う。
type Sanitizer interface {
	Sanitize(raw string) string
	PlainText(raw string) string
}

// URLValidator は画像URLとリンクURLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
	ValidateImageURL(rawURL string) error
}

// ContentChecker は禁止コンテンツを検出する。
type ContentChecker interface {
	Matches(texts ...string) bool
}

// ListingSearcher はeBayの商品検索を行う。
type ListingSearcher interface {
	SearchItems(ctx context.Context, query string, limit int) ([]model.EbayListing, error)
}

// Service はカタログのサービス層。
type Service struct {
	repo      repository.CatalogRepository
	searcher  ListingSearcher
	sanitizer Sanitizer
	urls      URLValidator
	filter    ContentChecker
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.CatalogRepository,
	searcher ListingSearcher,
	sanitizer Sanitizer,
	urls URLValidator,
	filter ContentChecker,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		searcher:  searcher,
		sanitizer: sanitizer,
		urls:      urls,
		filter:    filter,
		logger:    logger,
	}
}

// List はprincipalが非表示にしていないアイテムを返す。
func (s *Service) List(ctx context.Context, principal *model.Principal, tag string, limit int) ([]*model.CatalogItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	var filter model.Category
	if tag != "" {
		c, ok := model.ParseCategory(strings.ToLower(tag))
		if !ok {
			return nil, model.NewValidationError("tag", "unknown tag")
		}
		filter = c
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, err := s.repo.ListVisible(ctx, principal.ID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("カタログ一覧の取得に失敗: %w", err)
	}
	return items, nil
}

// Get はアイテムを返す。カタログは全ユーザーに公開される。
func (s *Service) Get(ctx context.Context, principal *model.Principal, id string) (*model.CatalogItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	return s.find(ctx, id)
}

// ItemInput は手動登録の入力。
type ItemInput struct {
	Title       string
	Description string
	ImageURL    string
	Tag         string
}

// Create はアイテムを手動で登録する。
func (s *Service) Create(ctx context.Context, principal *model.Principal, in ItemInput) (*model.CatalogItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	item, err := s.build(in.Title, in.Description, in.ImageURL, in.Tag, model.CategoryOther)
	if err != nil {
		return nil, err
	}
	if s.filter.Matches(item.Title, item.Description) {
		return nil, model.NewContentFilteredError()
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("カタログアイテムの作成に失敗: %w", err)
	}
	return item, nil
}

// SearchResult はeBay検索の結果。
type SearchResult struct {
	Listings []model.EbayListing
	// Filtered は禁止コンテンツとして除外された件数。
	Filtered int
}

// SearchEbay はeBayを検索し、禁止コンテンツを含む商品を除外して返す。
// 検索語自体が禁止コンテンツの場合はAPIを呼ばずにCONTENT_FILTEREDを返す。
func (s *Service) SearchEbay(ctx context.Context, principal *model.Principal, term string, limit int) (*SearchResult, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, model.NewValidationError("q", "must not be empty")
	}
	if utf8.RuneCountInString(term) > maxSearchTermLength {
		return nil, model.NewValidationError("q", fmt.Sprintf("must be at most %d characters", maxSearchTermLength))
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, model.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxSearchLimit))
	}
	if s.filter.Matches(term) {
		return nil, model.NewContentFilteredError()
	}

	listings, err := s.searcher.SearchItems(ctx, term, limit)
	if err != nil {
		return nil, fmt.Errorf("eBay検索に失敗: %w", err)
	}

	result := &SearchResult{Listings: make([]model.EbayListing, 0, len(listings))}
	for _, l := range listings {
		if s.filter.Matches(l.Title, l.Description) {
			result.Filtered++
			continue
		}
		result.Listings = append(result.Listings, l)
	}

	if result.Filtered > 0 {
		s.logger.Info("不適切なeBay商品を検索結果から除外しました",
			slog.Int("filtered", result.Filtered),
		)
	}
	return result, nil
}

// ImportEbay はeBay商品をカタログに取り込む。
// 同じeBay商品IDが登録済みの場合はDUPLICATE_CATALOG_ITEMを返す。
func (s *Service) ImportEbay(ctx context.Context, principal *model.Principal, listing model.EbayListing) (*model.CatalogItem, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	ebayID := strings.TrimSpace(listing.ItemID)
	if ebayID == "" {
		return nil, model.NewValidationError("item_id", "must not be empty")
	}
	if strings.TrimSpace(listing.Description) == "" {
		return nil, model.NewValidationError("description", "must not be empty")
	}
	for _, f := range []struct{ name, value string }{
		{"item_id", ebayID}, {"seller_id", listing.SellerID},
	} {
		if utf8.RuneCountInString(f.value) > maxEbayFieldLength {
			return nil, model.NewValidationError(f.name, fmt.Sprintf("must be at most %d characters", maxEbayFieldLength))
		}
	}

	item, err := s.build(listing.Title, listing.Description, listing.ImageURL, "", model.CategoryAccessory)
	if err != nil {
		return nil, err
	}
	itemURL := strings.TrimSpace(listing.ItemURL)
	if itemURL != "" {
		if err := s.urls.ValidateURL(itemURL); err != nil {
			return nil, model.NewInvalidURLError("item_url must be a public http or https URL")
		}
	}
	if s.filter.Matches(item.Title, item.Description) {
		return nil, model.NewContentFilteredError()
	}

	existing, err := s.repo.FindByEbayItemID(ctx, ebayID)
	if err != nil {
		return nil, fmt.Errorf("カタログアイテムの重複確認に失敗: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateCatalogItemError()
	}

	item.EbayItemID = &ebayID
	item.EbayURL = itemURL
	item.SellerID = strings.TrimSpace(listing.SellerID)

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateCatalogItemError()
		}
		return nil, fmt.Errorf("eBay商品の取り込みに失敗: %w", err)
	}

	s.logger.Info("eBay商品をカタログに取り込みました",
		slog.String("catalog_item_id", item.ID),
		slog.String("ebay_item_id", ebayID),
	)
	return item, nil
}

// Hide はアイテムをprincipalの一覧から非表示にする。
func (s *Service) Hide(ctx context.Context, principal *model.Principal, id string) error {
	if principal == nil {
		return model.NewUnauthorizedError()
	}
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Hide(ctx, principal.ID, id); err != nil {
		return fmt.Errorf("アイテムの非表示に失敗: %w", err)
	}
	return nil
}

// Unhide は非表示を解除する。
func (s *Service) Unhide(ctx context.Context, principal *model.Principal, id string) error {
	if principal == nil {
		return model.NewUnauthorizedError()
	}
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Unhide(ctx, principal.ID, id); err != nil {
		return fmt.Errorf("アイテムの非表示解除に失敗: %w", err)
	}
	return nil
}

// DeleteBySeller は出品者の全アイテムを削除する。
// eBayのアカウント削除通知から呼ばれる。
func (s *Service) DeleteBySeller(ctx context.Context, sellerID string) (int64, error) {
	if sellerID == "" {
		return 0, nil
	}
	n, err := s.repo.DeleteBySellerID(ctx, sellerID)
	if err != nil {
		return 0, fmt.Errorf("出品者アイテムの削除に失敗: %w", err)
	}
	s.logger.Info("削除された出品者のアイテムを削除しました",
		slog.Int64("deleted", n),
	)
	return n, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.CatalogItem, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.NewNotFoundError("catalog item", id)
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("カタログアイテムの取得に失敗: %w", err)
	}
	if item == nil {
		return nil, model.NewNotFoundError("catalog item", id)
	}
	return item, nil
}

// build は入力を検証してアイテムを組み立てる。tagが空の場合はfallbackを使う。
func (s *Service) build(title, description, imageURL, tag string, fallback model.Category) (*model.CatalogItem, error) {
	title = s.sanitizer.PlainText(title)
	if title == "" {
		return nil, model.NewValidationError("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, model.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}

	description = s.sanitizer.PlainText(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	category := fallback
	if tag = strings.TrimSpace(strings.ToLower(tag)); tag != "" {
		c, ok := model.ParseCategory(tag)
		if !ok {
			return nil, model.NewValidationError("tag", "unknown tag")
		}
		category = c
	}

	imageURL = strings.TrimSpace(imageURL)
	if err := s.urls.ValidateImageURL(imageURL); err != nil {
		return nil, model.NewInvalidURLError("image_url must be a public http or https URL")
	}

	return &model.CatalogItem{
		ID:               uuid.New().String(),
		Title:            title,
		Description:      description,
		ShortDescription: model.ShortenDescription(description),
		ImageURL:         imageURL,
		Tag:              category,
		CreatedAt:        time.Now(),
	}, nil
}
