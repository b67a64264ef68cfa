// Package access はリソースの所有者チェックを提供する。
// 変更操作は所有者本人または管理者（IsStaff）にのみ許可する。
package access

import (
	"github.com/hitoshi/bestdressed/internal/model"
)

// Action はリソースに対する操作の種類。
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Decision は認可判定の結果。
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// Resource は所有者を1人だけ持つエンティティ。
// 所有者は作成後に変更されない。
type Resource interface {
	OwnerID() string
}

// Authorize はprincipalがresourceに対してactionを実行できるかを判定する。
// principal.ID == resource.OwnerID() または principal.IsStaff の場合のみAllow。
// 匿名（nil）のprincipalと所有者不明のリソースは常にDeny。
// 副作用はなく、同じ入力には常に同じ結果を返す。
func Authorize(principal *model.Principal, resource Resource, action Action) Decision {
	if principal == nil || resource == nil {
		return Deny
	}
	if principal.IsStaff {
		return Allow
	}
	owner := resource.OwnerID()
	if owner != "" && principal.ID == owner {
		return Allow
	}
	return Deny
}

// Require はAuthorizeがDenyの場合に権限エラーを返す。
// サービス層から呼び出し、ハンドラーで403に変換される。
func Require(principal *model.Principal, resource Resource, action Action, resourceName string) error {
	if Authorize(principal, resource, action) == Deny {
		return model.NewPermissionDeniedError(resourceName)
	}
	return nil
}
