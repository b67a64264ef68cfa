package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bestdressed/internal/model"
)

// PostgresCatalogRepo はPostgreSQLを使用したカタログリポジトリ。
type PostgresCatalogRepo struct {
	db *sql.DB
}

// NewPostgresCatalogRepo はPostgresCatalogRepoを生成する。
func NewPostgresCatalogRepo(db *sql.DB) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{db: db}
}

const catalogColumns = `c.id, c.title, c.description, c.short_description, c.image_url, c.tag,
	c.ebay_item_id, c.ebay_url, c.seller_id, c.created_at`

func scanCatalogItem(row rowScanner) (*model.CatalogItem, error) {
	item := &model.CatalogItem{}
	var ebayID sql.NullString
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.ShortDescription,
		&item.ImageURL, &item.Tag, &ebayID, &item.EbayURL, &item.SellerID, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ebayID.Valid {
		item.EbayItemID = &ebayID.String
	}
	return item, nil
}

func (r *PostgresCatalogRepo) findOne(ctx context.Context, where string, arg any) (*model.CatalogItem, error) {
	item, err := scanCatalogItem(r.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items c WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find catalog item: %w", err)
	}
	return item, nil
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindByID(ctx context.Context, id string) (*model.CatalogItem, error) {
	return r.findOne(ctx, `c.id = $1`, id)
}

// FindByEbayItemID はeBayの商品IDで検索する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindByEbayItemID(ctx context.Context, ebayItemID string) (*model.CatalogItem, error) {
	return r.findOne(ctx, `c.ebay_item_id = $1`, ebayItemID)
}

// ListVisible はユーザーが非表示にしていないアイテムを新しい順に返す。
func (r *PostgresCatalogRepo) ListVisible(ctx context.Context, userID string, tag model.Category, limit int) ([]*model.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+catalogColumns+`
		 FROM catalog_items c
		 WHERE ($2 = '' OR c.tag = $2)
		   AND ($1 = '' OR NOT EXISTS (
		       SELECT 1 FROM hidden_items h
		       WHERE h.catalog_item_id = c.id AND h.user_id::text = $1))
		 ORDER BY c.created_at DESC
		 LIMIT $3`,
		userID, string(tag), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}
	defer rows.Close()

	items := []*model.CatalogItem{}
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog items: %w", err)
	}
	return items, nil
}

// Create はアイテムを作成する。eBay商品IDが重複する場合はErrDuplicateを返す。
func (r *PostgresCatalogRepo) Create(ctx context.Context, item *model.CatalogItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO catalog_items (id, title, description, short_description, image_url, tag,
		     ebay_item_id, ebay_url, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.Title, item.Description, item.ShortDescription, item.ImageURL, string(item.Tag),
		item.EbayItemID, item.EbayURL, item.SellerID, item.CreatedAt,
	)
	if err != nil {
		if err := mapDuplicate(err); errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create catalog item: %w", err)
	}
	return nil
}

// DeleteBySellerID は出品者IDに一致する全アイテムを削除し、削除件数を返す。
func (r *PostgresCatalogRepo) DeleteBySellerID(ctx context.Context, sellerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE seller_id = $1`, sellerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete catalog items by seller: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Hide はユーザーの一覧からアイテムを非表示にする。冪等。
func (r *PostgresCatalogRepo) Hide(ctx context.Context, userID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hidden_items (user_id, catalog_item_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, catalog_item_id) DO NOTHING`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to hide catalog item: %w", err)
	}
	return nil
}

// Unhide は非表示を解除する。冪等。
func (r *PostgresCatalogRepo) Unhide(ctx context.Context, userID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM hidden_items WHERE user_id = $1 AND catalog_item_id = $2`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to unhide catalog item: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CatalogRepository = (*PostgresCatalogRepo)(nil)
