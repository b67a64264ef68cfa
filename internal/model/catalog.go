package model

import "time"

const (
	// shortDescriptionMax は一覧表示用の短い説明の最大文字数。
	shortDescriptionMax = 75
)

// CatalogItem はカタログに登録された衣類・アクセサリーを表す。
// eBayから取り込んだ場合はEbayItemIDとSellerIDが設定される。
type CatalogItem struct {
	ID               string
	Title            string
	Description      string
	ShortDescription string
	ImageURL         string
	Tag              Category
	EbayItemID       *string
	EbayURL          string
	SellerID         string
	CreatedAt        time.Time
}

// ShortenDescription は説明文から一覧表示用の短い説明を生成する。
// 75文字を超える場合は先頭72文字に"..."を付与する。
func ShortenDescription(description string) string {
	runes := []rune(description)
	if len(runes) > shortDescriptionMax {
		return string(runes[:shortDescriptionMax-3]) + "..."
	}
	return description
}

// EbayListing はeBay検索結果から取り込む商品情報を表す。
type EbayListing struct {
	ItemID      string `json:"item_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	ItemURL     string `json:"item_url"`
	SellerID    string `json:"seller_id"`
}
