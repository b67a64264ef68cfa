package model

import "time"

// Category はワードローブアイテムとカタログアイテムの分類。
type Category string

const (
	CategoryTop       Category = "top"
	CategoryBottom    Category = "bottom"
	CategoryDress     Category = "dress"
	CategoryOuterwear Category = "outerwear"
	CategoryShoes     Category = "shoes"
	CategoryAccessory Category = "accessory"
	CategoryOther     Category = "other"
)

// ParseCategory は文字列をCategoryに変換する。
// 空文字列はother、未知の値はfalseを返す。
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case "":
		return CategoryOther, true
	case CategoryTop, CategoryBottom, CategoryDress, CategoryOuterwear,
		CategoryShoes, CategoryAccessory, CategoryOther:
		return Category(s), true
	default:
		return "", false
	}
}

// WardrobeItem はユーザーの個人ワードローブに登録された衣類を表す。
// カタログから保存した場合はCatalogItemIDが設定される。
type WardrobeItem struct {
	ID            string
	UserID        string
	Title         string
	Description   string
	Category      Category
	ImageURL      string
	CatalogItemID *string
	Color         string
	Brand         string
	Season        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OwnerID はResourceインターフェースを実装する。
func (w *WardrobeItem) OwnerID() string { return w.UserID }
