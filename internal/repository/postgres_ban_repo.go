package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/bestdressed/internal/model"
)

// PostgresBanRepo はPostgreSQLを使用したIP BANリポジトリ。
type PostgresBanRepo struct {
	db *sql.DB
}

// NewPostgresBanRepo はPostgresBanRepoを生成する。
func NewPostgresBanRepo(db *sql.DB) *PostgresBanRepo {
	return &PostgresBanRepo{db: db}
}

// FindActiveByIP は有効なBANを取得する。見つからない場合はnilを返す。
func (r *PostgresBanRepo) FindActiveByIP(ctx context.Context, ip string, now time.Time) (*model.BannedIP, error) {
	b := &model.BannedIP{}
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, host(ip_address), reason, banned_at, expires_at, active
		 FROM banned_ips
		 WHERE ip_address = $1::inet AND active AND (expires_at IS NULL OR expires_at > $2)`,
		ip, now,
	).Scan(&b.ID, &b.IPAddress, &b.Reason, &b.BannedAt, &expiresAt, &b.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ban: %w", err)
	}
	if expiresAt.Valid {
		b.ExpiresAt = &expiresAt.Time
	}
	return b, nil
}

// Create はBANを作成する。同じIPの既存BANは置き換える。
func (r *PostgresBanRepo) Create(ctx context.Context, b *model.BannedIP) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO banned_ips (id, ip_address, reason, banned_at, expires_at, active)
		 VALUES ($1, $2::inet, $3, $4, $5, $6)
		 ON CONFLICT (ip_address) DO UPDATE SET
		     reason = EXCLUDED.reason,
		     banned_at = EXCLUDED.banned_at,
		     expires_at = EXCLUDED.expires_at,
		     active = EXCLUDED.active`,
		b.ID, b.IPAddress, b.Reason, b.BannedAt, b.ExpiresAt, b.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

// Deactivate はIPのBANを無効化する。
func (r *PostgresBanRepo) Deactivate(ctx context.Context, ip string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE banned_ips SET active = FALSE WHERE ip_address = $1::inet`, ip,
	); err != nil {
		return fmt.Errorf("failed to deactivate ban: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BanRepository = (*PostgresBanRepo)(nil)
