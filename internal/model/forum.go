package model

import "time"

// Thread はフォーラムのスレッドを表す。
type Thread struct {
	ID               string
	UserID           string
	Title            string
	Content          string
	AttachedOutfitID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OwnerID はResourceインターフェースを実装する。
func (t *Thread) OwnerID() string { return t.UserID }

// ThreadSummary はスレッド一覧表示用の集計情報付きスレッド。
type ThreadSummary struct {
	Thread
	Username   string
	ReplyCount int
	LikeCount  int
	SavedByMe  bool
}

// Post はスレッドへの返信を表す。
type Post struct {
	ID        string
	ThreadID  string
	UserID    string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnerID はResourceインターフェースを実装する。
func (p *Post) OwnerID() string { return p.UserID }

// PostWithAuthor は投稿者名といいね数を含む投稿。
type PostWithAuthor struct {
	Post
	Username  string
	LikeCount int
}
