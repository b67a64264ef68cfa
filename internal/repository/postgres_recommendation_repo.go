package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/bestdressed/internal/model"
)

// PostgresRecommendationJobRepo はPostgreSQLを使用したレコメンドジョブリポジトリ。
// 終端状態への遷移はstatus='pending'を条件にしたUPDATEで行い、一度だけ成功する。
type PostgresRecommendationJobRepo struct {
	db *sql.DB
}

// NewPostgresRecommendationJobRepo はPostgresRecommendationJobRepoを生成する。
func NewPostgresRecommendationJobRepo(db *sql.DB) *PostgresRecommendationJobRepo {
	return &PostgresRecommendationJobRepo{db: db}
}

// Create はpending状態のジョブを作成する。スナップショットとプロフィールはJSONBで保存する。
func (r *PostgresRecommendationJobRepo) Create(ctx context.Context, job *model.RecommendationJob) error {
	snapshot, err := json.Marshal(job.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	profile, err := json.Marshal(job.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO recommendation_jobs (id, user_id, prompt, snapshot, profile, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.UserID, job.Prompt, snapshot, profile, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recommendation job: %w", err)
	}
	return nil
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *PostgresRecommendationJobRepo) FindByID(ctx context.Context, id string) (*model.RecommendationJob, error) {
	job := &model.RecommendationJob{}
	var (
		snapshot, profile []byte
		itemIDs           pq.StringArray
		completedAt       sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, prompt, snapshot, profile, status, result, reason, item_ids, created_at, completed_at
		 FROM recommendation_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.UserID, &job.Prompt, &snapshot, &profile, &job.Status,
		&job.Result, &job.Reason, &itemIDs, &job.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recommendation job: %w", err)
	}

	if err := json.Unmarshal(snapshot, &job.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := json.Unmarshal(profile, &job.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	job.ItemIDs = []string(itemIDs)
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// MarkCompleted はpendingのジョブをcompletedに遷移させる。既に終端状態の場合はfalseを返す。
func (r *PostgresRecommendationJobRepo) MarkCompleted(ctx context.Context, id, result string, itemIDs []string, at time.Time) (bool, error) {
	if itemIDs == nil {
		itemIDs = []string{}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE recommendation_jobs
		 SET status = 'completed', result = $2, item_ids = $3, completed_at = $4
		 WHERE id = $1 AND status = 'pending'`,
		id, result, pq.Array(itemIDs), at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job completed: %w", err)
	}
	return affectedOne(res)
}

// MarkFailed はpendingのジョブをfailedに遷移させる。既に終端状態の場合はfalseを返す。
func (r *PostgresRecommendationJobRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recommendation_jobs
		 SET status = 'failed', reason = $2, completed_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, reason, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// PostgresSavedRecommendationRepo はPostgreSQLを使用したレコメンド履歴リポジトリ。
type PostgresSavedRecommendationRepo struct {
	db *sql.DB
}

// NewPostgresSavedRecommendationRepo はPostgresSavedRecommendationRepoを生成する。
func NewPostgresSavedRecommendationRepo(db *sql.DB) *PostgresSavedRecommendationRepo {
	return &PostgresSavedRecommendationRepo{db: db}
}

// Create は履歴と推薦アイテムの紐付けを保存する。IDと作成日時が未設定の場合は補う。
// 依頼後に削除されたカタログアイテムは紐付けから除外する。
func (r *PostgresSavedRecommendationRepo) Create(ctx context.Context, rec *model.SavedRecommendation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO saved_recommendations (id, user_id, prompt, ai_response, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, rec.Prompt, rec.AIResponse, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert saved recommendation: %w", err)
	}

	for i, itemID := range rec.ItemIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO saved_recommendation_items (recommendation_id, catalog_item_id, position)
			 SELECT $1, c.id, $3 FROM catalog_items c WHERE c.id::text = $2
			 ON CONFLICT DO NOTHING`,
			rec.ID, itemID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recommended item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの履歴を新しい順に返す。
func (r *PostgresSavedRecommendationRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.SavedRecommendation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.prompt, s.ai_response, s.created_at,
		        COALESCE(array_agg(i.catalog_item_id::text ORDER BY i.position)
		                 FILTER (WHERE i.catalog_item_id IS NOT NULL), '{}')
		 FROM saved_recommendations s
		 LEFT JOIN saved_recommendation_items i ON i.recommendation_id = s.id
		 WHERE s.user_id = $1
		 GROUP BY s.id
		 ORDER BY s.created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved recommendations: %w", err)
	}
	defer rows.Close()

	recs := []*model.SavedRecommendation{}
	for rows.Next() {
		rec := &model.SavedRecommendation{}
		var itemIDs pq.StringArray
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Prompt, &rec.AIResponse, &rec.CreatedAt, &itemIDs); err != nil {
			return nil, fmt.Errorf("failed to scan saved recommendation: %w", err)
		}
		rec.ItemIDs = []string(itemIDs)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate saved recommendations: %w", err)
	}
	return recs, nil
}

// compile-time interface check
var (
	_ RecommendationJobRepository   = (*PostgresRecommendationJobRepo)(nil)
	_ SavedRecommendationRepository = (*PostgresSavedRecommendationRepo)(nil)
)
