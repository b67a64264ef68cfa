package handler

import (
	"time"

	"github.com/hitoshi/bestdressed/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		IsStaff:  u.IsStaff,
	}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	Bio              string     `json:"bio"`
	StylePreferences string     `json:"style_preferences"`
	FavoriteColors   string     `json:"favorite_colors"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

func toProfileResponse(p *model.UserProfile) profileResponse {
	resp := profileResponse{
		Bio:              p.Bio,
		StylePreferences: p.StylePreferences,
		FavoriteColors:   p.FavoriteColors,
	}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// wardrobeItemResponse はワードローブアイテムのAPIレスポンス。
type wardrobeItemResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	ImageURL      string    `json:"image_url"`
	CatalogItemID *string   `json:"catalog_item_id"`
	Color         string    `json:"color"`
	Brand         string    `json:"brand"`
	Season        string    `json:"season"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toWardrobeItemResponse(item *model.WardrobeItem) wardrobeItemResponse {
	return wardrobeItemResponse{
		ID:            item.ID,
		Title:         item.Title,
		Description:   item.Description,
		Category:      string(item.Category),
		ImageURL:      item.ImageURL,
		CatalogItemID: item.CatalogItemID,
		Color:         item.Color,
		Brand:         item.Brand,
		Season:        item.Season,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}

// outfitResponse はコーディネートのAPIレスポンス。
type outfitResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Occasion    string    `json:"occasion"`
	Season      string    `json:"season"`
	IsFavorite  bool      `json:"is_favorite"`
	ItemIDs     []string  `json:"item_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOutfitResponse(o *model.Outfit) outfitResponse {
	itemIDs := o.ItemIDs
	if itemIDs == nil {
		itemIDs = []string{}
	}
	return outfitResponse{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		Occasion:    string(o.Occasion),
		Season:      string(o.Season),
		IsFavorite:  o.IsFavorite,
		ItemIDs:     itemIDs,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// catalogItemResponse はカタログアイテムのAPIレスポンス。
type catalogItemResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"short_description"`
	ImageURL         string    `json:"image_url"`
	Tag              string    `json:"tag"`
	EbayItemID       *string   `json:"ebay_item_id"`
	EbayURL          string    `json:"ebay_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toCatalogItemResponse(item *model.CatalogItem) catalogItemResponse {
	return catalogItemResponse{
		ID:               item.ID,
		Title:            item.Title,
		Description:      item.Description,
		ShortDescription: item.ShortDescription,
		ImageURL:         item.ImageURL,
		Tag:              string(item.Tag),
		EbayItemID:       item.EbayItemID,
		EbayURL:          item.EbayURL,
		CreatedAt:        item.CreatedAt,
	}
}

// jobResponse はレコメンドジョブのポーリングレスポンス。
// result、reason、message、itemsは終端状態でのみ含まれる。
type jobResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Result  string   `json:"result,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Message string   `json:"message,omitempty"`
	Items   []string `json:"items,omitempty"`
}

func toJobResponse(job *model.RecommendationJob) jobResponse {
	resp := jobResponse{ID: job.ID, Status: string(job.Status)}
	switch job.Status {
	case model.JobStatusCompleted:
		resp.Result = job.Result
		resp.Items = job.ItemIDs
	case model.JobStatusFailed:
		resp.Reason = model.NormalizeJobReason(job.Reason)
		resp.Message = model.JobRetryMessage(job.Reason)
	}
	return resp
}

// savedRecommendationResponse はレコメンド履歴のAPIレスポンス。
type savedRecommendationResponse struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	AIResponse string    `json:"ai_response"`
	ItemIDs    []string  `json:"item_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSavedRecommendationResponse(rec *model.SavedRecommendation) savedRecommendationResponse {
	itemIDs := rec.ItemIDs
	if itemIDs == nil {
		itemIDs = []string{}
	}
	return savedRecommendationResponse{
		ID:         rec.ID,
		Prompt:     rec.Prompt,
		AIResponse: rec.AIResponse,
		ItemIDs:    itemIDs,
		CreatedAt:  rec.CreatedAt,
	}
}

// threadResponse はスレッドのAPIレスポンス。
type threadResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username,omitempty"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	AttachedOutfitID *string   `json:"attached_outfit_id"`
	ReplyCount       int       `json:"reply_count"`
	LikeCount        int       `json:"like_count"`
	SavedByMe        bool      `json:"saved_by_me"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toThreadResponse(t *model.Thread) threadResponse {
	return threadResponse{
		ID:               t.ID,
		UserID:           t.UserID,
		Title:            t.Title,
		Content:          t.Content,
		AttachedOutfitID: t.AttachedOutfitID,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func toThreadSummaryResponse(s *model.ThreadSummary) threadResponse {
	resp := toThreadResponse(&s.Thread)
	resp.Username = s.Username
	resp.ReplyCount = s.ReplyCount
	resp.LikeCount = s.LikeCount
	resp.SavedByMe = s.SavedByMe
	return resp
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	LikeCount int       `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		ThreadID:  p.ThreadID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// banResponse はIP BANのAPIレスポンス。
type banResponse struct {
	ID        string     `json:"id"`
	IPAddress string     `json:"ip_address"`
	Reason    string     `json:"reason"`
	BannedAt  time.Time  `json:"banned_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	Active    bool       `json:"active"`
}

func toBanResponse(b *model.BannedIP) banResponse {
	return banResponse{
		ID:        b.ID,
		IPAddress: b.IPAddress,
		Reason:    b.Reason,
		BannedAt:  b.BannedAt,
		ExpiresAt: b.ExpiresAt,
		Active:    b.Active,
	}
}
