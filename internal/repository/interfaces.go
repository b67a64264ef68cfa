// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/bestdressed/internal/model"
)

// ErrDuplicate は一意制約違反を示す。
// サービス層はこれを対応するAPIErrorに変換する。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーとプロフィールを同一トランザクションで作成する。
	// ユーザー名が既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するセッション、ワードローブ、コーディネート等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindPrincipal は有効なセッションに紐づく認証主体を取得する。無効な場合はnilを返す。
	FindPrincipal(ctx context.Context, sessionID string) (*model.Principal, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error)

	// Upsert はプロフィールを作成または更新する。
	Upsert(ctx context.Context, profile *model.UserProfile) error
}

// WardrobeRepository はワードローブアイテムの永続化インターフェース。
type WardrobeRepository interface {
	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WardrobeItem, error)

	// ListByUserID はユーザーのアイテムを新しい順に返す。
	// categoryが空でない場合はそのカテゴリのみを返す。
	ListByUserID(ctx context.Context, userID string, category model.Category) ([]*model.WardrobeItem, error)

	// CountOwned はidsのうち指定ユーザーが所有するアイテム数を返す。
	CountOwned(ctx context.Context, userID string, ids []string) (int, error)

	// Create はアイテムを作成する。
	// 同じカタログアイテムを既に保存している場合はErrDuplicateを返す。
	Create(ctx context.Context, item *model.WardrobeItem) error

	// Update はアイテムの内容を更新する。所有者は変更しない。
	Update(ctx context.Context, item *model.WardrobeItem) error

	// Delete は指定IDのアイテムを削除する。
	Delete(ctx context.Context, id string) error
}

// OutfitRepository はコーディネートの永続化インターフェース。
type OutfitRepository interface {
	// FindByID は指定IDのコーディネートをアイテムID付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Outfit, error)

	// FindByUserAndName はユーザーIDと名前で検索する。見つからない場合はnilを返す。
	FindByUserAndName(ctx context.Context, userID, name string) (*model.Outfit, error)

	// ListByUserID はユーザーのコーディネートをお気に入り優先、新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Outfit, error)

	// Create はコーディネートとアイテムの紐付けを同一トランザクションで作成する。
	// 名前が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, outfit *model.Outfit) error

	// Update はコーディネートを更新し、アイテムの紐付けを置き換える。所有者は変更しない。
	Update(ctx context.Context, outfit *model.Outfit) error

	// Delete は指定IDのコーディネートを削除する。
	Delete(ctx context.Context, id string) error
}

// CatalogRepository はカタログアイテムの永続化インターフェース。
type CatalogRepository interface {
	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.CatalogItem, error)

	// FindByEbayItemID はeBayの商品IDで検索する。見つからない場合はnilを返す。
	FindByEbayItemID(ctx context.Context, ebayItemID string) (*model.CatalogItem, error)

	// ListVisible はユーザーが非表示にしていないアイテムを新しい順に返す。
	// userIDが空の場合は全件を対象にする。tagが空でない場合はそのタグのみを返す。
	ListVisible(ctx context.Context, userID string, tag model.Category, limit int) ([]*model.CatalogItem, error)

	// Create はアイテムを作成する。eBay商品IDが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, item *model.CatalogItem) error

	// DeleteBySellerID は出品者IDに一致する全アイテムを削除し、削除件数を返す。
	DeleteBySellerID(ctx context.Context, sellerID string) (int64, error)

	// Hide はユーザーの一覧からアイテムを非表示にする。冪等。
	Hide(ctx context.Context, userID, itemID string) error

	// Unhide は非表示を解除する。冪等。
	Unhide(ctx context.Context, userID, itemID string) error
}

// ForumRepository はフォーラムのスレッドと投稿の永続化インターフェース。
type ForumRepository interface {
	// FindThreadByID は指定IDのスレッドを取得する。見つからない場合はnilを返す。
	FindThreadByID(ctx context.Context, id string) (*model.Thread, error)

	// GetThreadSummary はスレッドを返信数・いいね数・閲覧者の保存状態付きで取得する。
	// 見つからない場合はnilを返す。
	GetThreadSummary(ctx context.Context, id, viewerID string) (*model.ThreadSummary, error)

	// ListThreads はスレッドを最終更新の新しい順に返す。
	ListThreads(ctx context.Context, viewerID string, limit int) ([]model.ThreadSummary, error)

	// ListSavedThreads はユーザーが保存したスレッドを返す。
	ListSavedThreads(ctx context.Context, userID string) ([]model.ThreadSummary, error)

	// CreateThread はスレッドを作成する。
	CreateThread(ctx context.Context, thread *model.Thread) error

	// UpdateThread はスレッドのタイトルと本文を更新する。所有者は変更しない。
	UpdateThread(ctx context.Context, thread *model.Thread) error

	// DeleteThread はスレッドを削除する。投稿はCASCADE削除される。
	DeleteThread(ctx context.Context, id string) error

	// FindPostByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindPostByID(ctx context.Context, id string) (*model.Post, error)

	// ListPosts はスレッドの投稿を古い順に返す。
	ListPosts(ctx context.Context, threadID string) ([]model.PostWithAuthor, error)

	// CreatePost は投稿を作成し、スレッドの更新日時を進める。
	CreatePost(ctx context.Context, post *model.Post) error

	// UpdatePost は投稿の本文を更新する。所有者は変更しない。
	UpdatePost(ctx context.Context, post *model.Post) error

	// DeletePost は投稿を削除する。
	DeletePost(ctx context.Context, id string) error

	// ToggleThreadLike はスレッドのいいねを切り替え、切り替え後の状態を返す。
	ToggleThreadLike(ctx context.Context, userID, threadID string) (bool, error)

	// TogglePostLike は投稿のいいねを切り替え、切り替え後の状態を返す。
	TogglePostLike(ctx context.Context, userID, postID string) (bool, error)

	// ToggleSavedThread はスレッドの保存を切り替え、切り替え後の状態を返す。
	ToggleSavedThread(ctx context.Context, userID, threadID string) (bool, error)
}

// RecommendationJobRepository はレコメンドジョブの永続化インターフェース。
// 終端状態への遷移はstatus='pending'の行に対してのみ行われ、一度だけ成功する。
type RecommendationJobRepository interface {
	// Create はpending状態のジョブを作成する。
	Create(ctx context.Context, job *model.RecommendationJob) error

	// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RecommendationJob, error)

	// MarkCompleted はpendingのジョブをcompletedに遷移させる。
	// 既に終端状態の場合はfalseを返す。
	MarkCompleted(ctx context.Context, id, result string, itemIDs []string, at time.Time) (bool, error)

	// MarkFailed はpendingのジョブをfailedに遷移させる。
	// 既に終端状態の場合はfalseを返す。
	MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error)
}

// SavedRecommendationRepository はレコメンド履歴の永続化インターフェース。
type SavedRecommendationRepository interface {
	// Create は履歴と推薦アイテムの紐付けを保存する。
	Create(ctx context.Context, rec *model.SavedRecommendation) error

	// ListByUserID はユーザーの履歴を新しい順に返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.SavedRecommendation, error)
}

// BanRepository はIPアドレスのBAN情報の永続化インターフェース。
type BanRepository interface {
	// FindActiveByIP は有効なBANを取得する。見つからない場合はnilを返す。
	FindActiveByIP(ctx context.Context, ip string, now time.Time) (*model.BannedIP, error)

	// Create はBANを作成する。同じIPの既存BANは置き換える。
	Create(ctx context.Context, ban *model.BannedIP) error

	// Deactivate はIPのBANを無効化する。
	Deactivate(ctx context.Context, ip string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
