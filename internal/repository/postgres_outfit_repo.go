package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/bestdressed/internal/model"
)

// PostgresOutfitRepo はPostgreSQLを使用したコーディネートリポジトリ。
type PostgresOutfitRepo struct {
	db *sql.DB
}

// NewPostgresOutfitRepo はPostgresOutfitRepoを生成する。
func NewPostgresOutfitRepo(db *sql.DB) *PostgresOutfitRepo {
	return &PostgresOutfitRepo{db: db}
}

// outfitSelect はアイテムIDを登録順の配列として集約して取得する。
const outfitSelect = `
	SELECT o.id, o.user_id, o.name, o.description, o.occasion, o.season, o.is_favorite,
	       COALESCE(array_agg(oi.wardrobe_item_id::text ORDER BY oi.position)
	                FILTER (WHERE oi.wardrobe_item_id IS NOT NULL), '{}'),
	       o.created_at, o.updated_at
	FROM outfits o
	LEFT JOIN outfit_items oi ON oi.outfit_id = o.id`

func scanOutfit(row rowScanner) (*model.Outfit, error) {
	o := &model.Outfit{}
	var itemIDs pq.StringArray
	err := row.Scan(&o.ID, &o.UserID, &o.Name, &o.Description, &o.Occasion, &o.Season,
		&o.IsFavorite, &itemIDs, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ItemIDs = []string(itemIDs)
	return o, nil
}

func (r *PostgresOutfitRepo) findOne(ctx context.Context, where string, args ...any) (*model.Outfit, error) {
	o, err := scanOutfit(r.db.QueryRowContext(ctx, outfitSelect+` WHERE `+where+` GROUP BY o.id`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outfit: %w", err)
	}
	return o, nil
}

// FindByID は指定IDのコーディネートをアイテムID付きで取得する。見つからない場合はnilを返す。
func (r *PostgresOutfitRepo) FindByID(ctx context.Context, id string) (*model.Outfit, error) {
	return r.findOne(ctx, `o.id = $1`, id)
}

// FindByUserAndName はユーザーIDと名前で検索する。見つからない場合はnilを返す。
func (r *PostgresOutfitRepo) FindByUserAndName(ctx context.Context, userID, name string) (*model.Outfit, error) {
	return r.findOne(ctx, `o.user_id = $1 AND o.name = $2`, userID, name)
}

// ListByUserID はユーザーのコーディネートをお気に入り優先、新しい順に返す。
func (r *PostgresOutfitRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Outfit, error) {
	rows, err := r.db.QueryContext(ctx,
		outfitSelect+`
		WHERE o.user_id = $1
		GROUP BY o.id
		ORDER BY o.is_favorite DESC, o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outfits: %w", err)
	}
	defer rows.Close()

	outfits := []*model.Outfit{}
	for rows.Next() {
		o, err := scanOutfit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outfit: %w", err)
		}
		outfits = append(outfits, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outfits: %w", err)
	}
	return outfits, nil
}

// Create はコーディネートとアイテムの紐付けを同一トランザクションで作成する。
// 名前が重複する場合はErrDuplicateを返す。
func (r *PostgresOutfitRepo) Create(ctx context.Context, o *model.Outfit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outfits (id, user_id, name, description, occasion, season, is_favorite, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.Name, o.Description, string(o.Occasion), string(o.Season),
		o.IsFavorite, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if err := mapDuplicate(err); errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to insert outfit: %w", err)
	}

	if err := insertOutfitItems(ctx, tx, o.ID, o.ItemIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update はコーディネートを更新し、アイテムの紐付けを置き換える。user_idは変更しない。
// 名前が重複する場合はErrDuplicateを返す。
func (r *PostgresOutfitRepo) Update(ctx context.Context, o *model.Outfit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE outfits
		 SET name = $2, description = $3, occasion = $4, season = $5, is_favorite = $6, updated_at = $7
		 WHERE id = $1`,
		o.ID, o.Name, o.Description, string(o.Occasion), string(o.Season), o.IsFavorite, o.UpdatedAt,
	)
	if err != nil {
		if err := mapDuplicate(err); errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to update outfit: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outfit_items WHERE outfit_id = $1`, o.ID); err != nil {
		return fmt.Errorf("failed to clear outfit items: %w", err)
	}
	if err := insertOutfitItems(ctx, tx, o.ID, o.ItemIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertOutfitItems(ctx context.Context, tx *sql.Tx, outfitID string, itemIDs []string) error {
	for i, itemID := range itemIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outfit_items (outfit_id, wardrobe_item_id, position) VALUES ($1, $2, $3)`,
			outfitID, itemID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outfit item: %w", err)
		}
	}
	return nil
}

// Delete は指定IDのコーディネートを削除する。
func (r *PostgresOutfitRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outfits WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete outfit: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OutfitRepository = (*PostgresOutfitRepo)(nil)
