package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/bestdressed/internal/model"
)

// PostgresWardrobeRepo はPostgreSQLを使用したワードローブリポジトリ。
type PostgresWardrobeRepo struct {
	db *sql.DB
}

// NewPostgresWardrobeRepo はPostgresWardrobeRepoを生成する。
func NewPostgresWardrobeRepo(db *sql.DB) *PostgresWardrobeRepo {
	return &PostgresWardrobeRepo{db: db}
}

const wardrobeColumns = `id, user_id, title, description, category, image_url, catalog_item_id,
	color, brand, season, created_at, updated_at`

func scanWardrobeItem(row rowScanner) (*model.WardrobeItem, error) {
	item := &model.WardrobeItem{}
	var catalogID sql.NullString
	err := row.Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.Category,
		&item.ImageURL, &catalogID, &item.Color, &item.Brand, &item.Season,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if catalogID.Valid {
		item.CatalogItemID = &catalogID.String
	}
	return item, nil
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresWardrobeRepo) FindByID(ctx context.Context, id string) (*model.WardrobeItem, error) {
	item, err := scanWardrobeItem(r.db.QueryRowContext(ctx,
		`SELECT `+wardrobeColumns+` FROM wardrobe_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wardrobe item: %w", err)
	}
	return item, nil
}

// ListByUserID はユーザーのアイテムを新しい順に返す。
func (r *PostgresWardrobeRepo) ListByUserID(ctx context.Context, userID string, category model.Category) ([]*model.WardrobeItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+wardrobeColumns+`
		 FROM wardrobe_items
		 WHERE user_id = $1 AND ($2 = '' OR category = $2)
		 ORDER BY created_at DESC`,
		userID, string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wardrobe items: %w", err)
	}
	defer rows.Close()

	items := []*model.WardrobeItem{}
	for rows.Next() {
		item, err := scanWardrobeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wardrobe item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wardrobe items: %w", err)
	}
	return items, nil
}

// CountOwned はidsのうち指定ユーザーが所有するアイテム数を返す。
func (r *PostgresWardrobeRepo) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM wardrobe_items WHERE user_id = $1 AND id = ANY($2::uuid[])`,
		userID, pq.Array(ids),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned wardrobe items: %w", err)
	}
	return count, nil
}

// Create はアイテムを作成する。
// 同じカタログアイテムを既に保存している場合はErrDuplicateを返す。
func (r *PostgresWardrobeRepo) Create(ctx context.Context, item *model.WardrobeItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wardrobe_items (id, user_id, title, description, category, image_url,
		     catalog_item_id, color, brand, season, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.UserID, item.Title, item.Description, string(item.Category), item.ImageURL,
		item.CatalogItemID, item.Color, item.Brand, item.Season, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if err := mapDuplicate(err); errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create wardrobe item: %w", err)
	}
	return nil
}

// Update はアイテムの内容を更新する。user_idとcatalog_item_idは変更しない。
func (r *PostgresWardrobeRepo) Update(ctx context.Context, item *model.WardrobeItem) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wardrobe_items
		 SET title = $2, description = $3, category = $4, image_url = $5,
		     color = $6, brand = $7, season = $8, updated_at = $9
		 WHERE id = $1`,
		item.ID, item.Title, item.Description, string(item.Category), item.ImageURL,
		item.Color, item.Brand, item.Season, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update wardrobe item: %w", err)
	}
	return nil
}

// Delete は指定IDのアイテムを削除する。コーディネートとの紐付けはCASCADE削除される。
func (r *PostgresWardrobeRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM wardrobe_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete wardrobe item: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WardrobeRepository = (*PostgresWardrobeRepo)(nil)
