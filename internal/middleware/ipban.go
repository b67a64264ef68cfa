package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/moderation"
)

// BanChecker はIPアドレスに有効なBANがあるかを確認する。
// moderation.BanServiceが実装する。
type BanChecker interface {
	ActiveBan(ctx context.Context, ip string) (*model.BannedIP, error)
}

// NewIPBanMiddleware はBAN済みIPからの状態変更リクエストを403で拒否するミドルウェアを返す。
// 閲覧（GET, HEAD, OPTIONS）はBAN中でも許可する。
// BANの確認に失敗した場合はリクエストを通す。
func NewIPBanMiddleware(checker BanChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ip := moderation.ClientIP(r)
			ban, err := checker.ActiveBan(r.Context(), ip)
			if err != nil {
				slog.Error("BAN状態の確認に失敗しました",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if ban != nil {
				slog.Warn("BAN済みIPからのリクエストを拒否しました",
					slog.String("client_ip", ip),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewIPBannedError(ban.Reason))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
