package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bestdressed/internal/model"
)

// PostgresForumRepo はPostgreSQLを使用したフォーラムリポジトリ。
type PostgresForumRepo struct {
	db *sql.DB
}

// NewPostgresForumRepo はPostgresForumRepoを生成する。
func NewPostgresForumRepo(db *sql.DB) *PostgresForumRepo {
	return &PostgresForumRepo{db: db}
}

// threadSummarySelect はスレッドを作成者名・返信数・いいね数・保存状態付きで取得する。
// $1は閲覧者のユーザーID（未ログインは空文字列）。
const threadSummarySelect = `
	SELECT t.id, t.user_id, t.title, t.content, t.attached_outfit_id, t.created_at, t.updated_at,
	       u.username,
	       (SELECT count(*) FROM posts p WHERE p.thread_id = t.id),
	       (SELECT count(*) FROM thread_likes l WHERE l.thread_id = t.id),
	       EXISTS (SELECT 1 FROM saved_threads s WHERE s.thread_id = t.id AND s.user_id::text = $1)
	FROM threads t
	JOIN users u ON u.id = t.user_id`

func scanThreadSummary(row rowScanner) (*model.ThreadSummary, error) {
	s := &model.ThreadSummary{}
	var outfitID sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Content, &outfitID, &s.CreatedAt, &s.UpdatedAt,
		&s.Username, &s.ReplyCount, &s.LikeCount, &s.SavedByMe)
	if err != nil {
		return nil, err
	}
	if outfitID.Valid {
		s.AttachedOutfitID = &outfitID.String
	}
	return s, nil
}

func (r *PostgresForumRepo) listSummaries(ctx context.Context, query string, args ...any) ([]model.ThreadSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := []model.ThreadSummary{}
	for rows.Next() {
		s, err := scanThreadSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return threads, nil
}

// FindThreadByID は指定IDのスレッドを取得する。見つからない場合はnilを返す。
func (r *PostgresForumRepo) FindThreadByID(ctx context.Context, id string) (*model.Thread, error) {
	t := &model.Thread{}
	var outfitID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, attached_outfit_id, created_at, updated_at
		 FROM threads WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Content, &outfitID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find thread: %w", err)
	}
	if outfitID.Valid {
		t.AttachedOutfitID = &outfitID.String
	}
	return t, nil
}

// GetThreadSummary はスレッドを集計情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresForumRepo) GetThreadSummary(ctx context.Context, id, viewerID string) (*model.ThreadSummary, error) {
	s, err := scanThreadSummary(r.db.QueryRowContext(ctx, threadSummarySelect+` WHERE t.id = $2`, viewerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread summary: %w", err)
	}
	return s, nil
}

// ListThreads はスレッドを最終更新の新しい順に返す。
func (r *PostgresForumRepo) ListThreads(ctx context.Context, viewerID string, limit int) ([]model.ThreadSummary, error) {
	return r.listSummaries(ctx, threadSummarySelect+` ORDER BY t.updated_at DESC LIMIT $2`, viewerID, limit)
}

// ListSavedThreads はユーザーが保存したスレッドを保存の新しい順に返す。
func (r *PostgresForumRepo) ListSavedThreads(ctx context.Context, userID string) ([]model.ThreadSummary, error) {
	return r.listSummaries(ctx,
		threadSummarySelect+`
		JOIN saved_threads sv ON sv.thread_id = t.id AND sv.user_id::text = $1
		ORDER BY sv.created_at DESC`,
		userID,
	)
}

// CreateThread はスレッドを作成する。
func (r *PostgresForumRepo) CreateThread(ctx context.Context, t *model.Thread) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO threads (id, user_id, title, content, attached_outfit_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Title, t.Content, t.AttachedOutfitID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

// UpdateThread はスレッドのタイトル・本文・添付コーディネートを更新する。user_idは変更しない。
func (r *PostgresForumRepo) UpdateThread(ctx context.Context, t *model.Thread) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE threads SET title = $2, content = $3, attached_outfit_id = $4, updated_at = $5
		 WHERE id = $1`,
		t.ID, t.Title, t.Content, t.AttachedOutfitID, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	return nil
}

// DeleteThread はスレッドを削除する。投稿・いいね・保存はCASCADE削除される。
func (r *PostgresForumRepo) DeleteThread(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// FindPostByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresForumRepo) FindPostByID(ctx context.Context, id string) (*model.Post, error) {
	p := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, thread_id, user_id, content, created_at, updated_at FROM posts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.ThreadID, &p.UserID, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return p, nil
}

// ListPosts はスレッドの投稿を古い順に返す。
func (r *PostgresForumRepo) ListPosts(ctx context.Context, threadID string) ([]model.PostWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.thread_id, p.user_id, p.content, p.created_at, p.updated_at,
		        u.username,
		        (SELECT count(*) FROM post_likes l WHERE l.post_id = p.id)
		 FROM posts p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.thread_id = $1
		 ORDER BY p.created_at`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []model.PostWithAuthor{}
	for rows.Next() {
		var p model.PostWithAuthor
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.UserID, &p.Content, &p.CreatedAt, &p.UpdatedAt,
			&p.Username, &p.LikeCount); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// CreatePost は投稿を作成し、スレッドの更新日時を進める。
func (r *PostgresForumRepo) CreatePost(ctx context.Context, p *model.Post) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, thread_id, user_id, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.ThreadID, p.UserID, p.Content, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = $2 WHERE id = $1`, p.ThreadID, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdatePost は投稿の本文を更新する。user_idは変更しない。
func (r *PostgresForumRepo) UpdatePost(ctx context.Context, p *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET content = $2, updated_at = $3 WHERE id = $1`,
		p.ID, p.Content, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return nil
}

// DeletePost は投稿を削除する。
func (r *PostgresForumRepo) DeletePost(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ToggleThreadLike はスレッドのいいねを切り替え、切り替え後の状態を返す。
func (r *PostgresForumRepo) ToggleThreadLike(ctx context.Context, userID, threadID string) (bool, error) {
	return r.toggle(ctx, "thread_likes", "thread_id", userID, threadID)
}

// TogglePostLike は投稿のいいねを切り替え、切り替え後の状態を返す。
func (r *PostgresForumRepo) TogglePostLike(ctx context.Context, userID, postID string) (bool, error) {
	return r.toggle(ctx, "post_likes", "post_id", userID, postID)
}

// ToggleSavedThread はスレッドの保存を切り替え、切り替え後の状態を返す。
func (r *PostgresForumRepo) ToggleSavedThread(ctx context.Context, userID, threadID string) (bool, error) {
	return r.toggle(ctx, "saved_threads", "thread_id", userID, threadID)
}

// toggle は(user_id, column)の行があれば削除してfalseを、なければ作成してtrueを返す。
// table/columnは呼び出し元の定数のみを受け付ける。
func (r *PostgresForumRepo) toggle(ctx context.Context, table, column, userID, targetID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND %s = $2`, table, column),
		userID, targetID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if removed == 0 {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (user_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, column),
			userID, targetID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed == 0, nil
}

// compile-time interface check
var _ ForumRepository = (*PostgresForumRepo)(nil)
