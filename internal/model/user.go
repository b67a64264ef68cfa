// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IsStaffは所有者チェックをバイパスできる管理者権限を示す。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal はリクエストを行う認証済みの主体を表す。
// セッションから解決され、認可判定に必要な情報のみを保持する。
type Principal struct {
	ID       string
	Username string
	IsStaff  bool
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserProfile はユーザーのスタイル情報を表す。
// AIレコメンドのプロンプト生成に使用する。
type UserProfile struct {
	UserID           string
	Bio              string
	StylePreferences string
	FavoriteColors   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
