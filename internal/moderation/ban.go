package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

// maxBanReasonLength はBAN理由の最大長。
const maxBanReasonLength = 255

// BanService はIPアドレスのBANを管理する。
// BANの作成と解除はスタッフのみが行える。
type BanService struct {
	repo   repository.BanRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewBanService はBanServiceの新しいインスタンスを生成する。
func NewBanService(repo repository.BanRepository, logger *slog.Logger) *BanService {
	return &BanService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ActiveBan はIPアドレスに有効なBANがあれば返す。なければnilを返す。
func (s *BanService) ActiveBan(ctx context.Context, ip string) (*model.BannedIP, error) {
	if ip == "" {
		return nil, nil
	}
	ban, err := s.repo.FindActiveByIP(ctx, ip, s.now())
	if err != nil {
		return nil, fmt.Errorf("BAN情報の取得に失敗: %w", err)
	}
	if ban == nil || !ban.IsActive(s.now()) {
		return nil, nil
	}
	return ban, nil
}

// BanInput はBAN作成の入力。
type BanInput struct {
	IPAddress string
	Reason    string
	// Duration が0の場合は無期限。
	Duration time.Duration
}

// Ban はIPアドレスをBANする。同じIPの既存BANは置き換える。
func (s *BanService) Ban(ctx context.Context, principal *model.Principal, in BanInput) (*model.BannedIP, error) {
	if err := requireStaff(principal); err != nil {
		return nil, err
	}

	ip := net.ParseIP(strings.TrimSpace(in.IPAddress))
	if ip == nil {
		return nil, model.NewValidationError("ip_address", "must be a valid IPv4 or IPv6 address")
	}
	if len([]rune(in.Reason)) > maxBanReasonLength {
		return nil, model.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", maxBanReasonLength))
	}
	if in.Duration < 0 {
		return nil, model.NewValidationError("duration", "must not be negative")
	}

	now := s.now()
	ban := &model.BannedIP{
		ID:        uuid.New().String(),
		IPAddress: ip.String(),
		Reason:    strings.TrimSpace(in.Reason),
		BannedAt:  now,
		Active:    true,
	}
	if in.Duration > 0 {
		expires := now.Add(in.Duration)
		ban.ExpiresAt = &expires
	}

	if err := s.repo.Create(ctx, ban); err != nil {
		return nil, fmt.Errorf("BANの作成に失敗: %w", err)
	}

	s.logger.Info("IPアドレスをBANしました",
		slog.String("ip", ban.IPAddress),
		slog.String("staff_id", principal.ID),
	)
	return ban, nil
}

// Unban はIPアドレスのBANを解除する。
func (s *BanService) Unban(ctx context.Context, principal *model.Principal, ipAddress string) error {
	if err := requireStaff(principal); err != nil {
		return err
	}

	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		return model.NewValidationError("ip_address", "must be a valid IPv4 or IPv6 address")
	}

	if err := s.repo.Deactivate(ctx, ip.String()); err != nil {
		return fmt.Errorf("BANの解除に失敗: %w", err)
	}

	s.logger.Info("IPアドレスのBANを解除しました",
		slog.String("ip", ip.String()),
		slog.String("staff_id", principal.ID),
	)
	return nil
}

func requireStaff(principal *model.Principal) error {
	if principal == nil {
		return model.NewUnauthorizedError()
	}
	if !principal.IsStaff {
		return model.NewStaffRequiredError()
	}
	return nil
}

// ClientIP はリクエスト元のIPアドレスをRemoteAddrから返す。
// 転送ヘッダーは読まない。信頼済みプロキシ経由の場合は
// middleware.NewTrustedProxyMiddlewareがRemoteAddrを書き換えておく。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
