package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestMapDuplicate(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"一意制約違反", &pq.Error{Code: "23505"}, ErrDuplicate},
		{"ラップされた一意制約違反", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), ErrDuplicate},
		{"外部キー違反はそのまま", &pq.Error{Code: "23503"}, nil},
		{"その他のエラーはそのまま", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapDuplicate(tt.err)
			if tt.want == nil {
				if errors.Is(got, ErrDuplicate) {
					t.Errorf("mapDuplicate() = %v, want passthrough", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapDuplicate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// 各PostgreSQL実装がインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var (
		_ UserRepository                = (*PostgresUserRepo)(nil)
		_ SessionRepository             = (*PostgresSessionRepo)(nil)
		_ ProfileRepository             = (*PostgresProfileRepo)(nil)
		_ WardrobeRepository            = (*PostgresWardrobeRepo)(nil)
		_ OutfitRepository              = (*PostgresOutfitRepo)(nil)
		_ CatalogRepository             = (*PostgresCatalogRepo)(nil)
		_ ForumRepository               = (*PostgresForumRepo)(nil)
		_ RecommendationJobRepository   = (*PostgresRecommendationJobRepo)(nil)
		_ SavedRecommendationRepository = (*PostgresSavedRecommendationRepo)(nil)
		_ BanRepository                 = (*PostgresBanRepo)(nil)
	)
}
