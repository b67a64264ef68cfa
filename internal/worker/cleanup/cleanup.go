// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れセッションの削除、期限切れIP BANの無効化、
// 放置されたレコメンドジョブの失敗化と古い終端ジョブの削除を行う。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bestdressed/internal/model"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ReasonAbandoned はワーカーの異常終了などでpendingのまま残ったジョブに記録する失敗理由。
const ReasonAbandoned = model.JobReasonAbandoned

// task は1種類のクリーンアップ処理。
type task struct {
	name  string
	query string
	args  func(j *CleanupJob) []any
}

var tasks = []task{
	{
		name:  "expired_sessions",
		query: `DELETE FROM sessions WHERE expires_at < now()`,
		args:  func(*CleanupJob) []any { return nil },
	},
	{
		name: "expired_bans",
		query: `UPDATE banned_ips SET active = FALSE
		        WHERE active AND expires_at IS NOT NULL AND expires_at < now()`,
		args: func(*CleanupJob) []any { return nil },
	},
	{
		name: "abandoned_jobs",
		query: `UPDATE recommendation_jobs
		        SET status = 'failed', reason = $1, completed_at = now()
		        WHERE status = 'pending' AND created_at < now() - $2::interval`,
		args: func(j *CleanupJob) []any {
			return []any{ReasonAbandoned, fmt.Sprintf("%d seconds", int(j.StaleJobAfter.Seconds()))}
		},
	},
	{
		name: "old_jobs",
		query: `DELETE FROM recommendation_jobs
		        WHERE status <> 'pending' AND created_at < now() - $1::interval`,
		args: func(j *CleanupJob) []any { return []any{fmt.Sprintf("%d days", j.RetentionDays)} },
	},
}

// CleanupJob は期限切れデータの削除ジョブ。
// 各処理は冪等で、1つが失敗しても残りの処理は実行される。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	// RetentionDays は終端状態のレコメンドジョブの保持日数（デフォルト: 30）。
	RetentionDays int
	// StaleJobAfter はpendingのまま放置されたジョブを失敗とみなすまでの時間（デフォルト: 1時間）。
	StaleJobAfter time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: 30,
		StaleJobAfter: time.Hour,
	}
}

// Run は全てのクリーンアップ処理を順に実行する。
// 失敗した処理のエラーはまとめて返す。対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var errs []error
	var total int64
	for _, t := range tasks {
		n, err := j.runTask(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("affected_count", total),
		slog.Int("failed_tasks", len(errs)),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}

func (j *CleanupJob) runTask(ctx context.Context, t task) (int64, error) {
	result, err := j.db.ExecContext(ctx, t.query, t.args(j)...)
	if err != nil {
		j.logger.Error("クリーンアップ処理の実行に失敗しました",
			slog.String("task", t.name),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("クリーンアップ(%s)の実行に失敗: %w", t.name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("処理件数の取得に失敗: %w", err)
	}

	j.logger.Info("クリーンアップ処理を実行しました",
		slog.String("task", t.name),
		slog.Int64("affected_count", n),
	)
	return n, nil
}

// Start は起動直後に1回実行した後、intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("クリーンアップジョブが失敗しました", slog.String("error", err.Error()))
	}
}
