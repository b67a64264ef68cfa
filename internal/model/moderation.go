package model

import "time"

// BannedIP は投稿・閲覧を禁止したIPアドレスを表す。
type BannedIP struct {
	ID        string
	IPAddress string
	Reason    string
	BannedAt  time.Time
	ExpiresAt *time.Time
	Active    bool
}

// IsActive はBANが有効かどうかを判定する。
// Activeフラグが立っており、期限が未設定または未来である場合に有効。
func (b *BannedIP) IsActive(now time.Time) bool {
	if !b.Active {
		return false
	}
	if b.ExpiresAt != nil && now.After(*b.ExpiresAt) {
		return false
	}
	return true
}
