// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, wardrobe, forum, recommend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeDuplicateOutfitName  = "DUPLICATE_OUTFIT_NAME"
	ErrCodeAlreadyInWardrobe    = "ALREADY_IN_WARDROBE"
	ErrCodeDuplicateCatalogItem = "DUPLICATE_CATALOG_ITEM"
	ErrCodeContentFiltered      = "CONTENT_FILTERED"
	ErrCodeIPBanned             = "IP_BANNED"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodeRecommendBusy        = "RECOMMEND_BUSY"
	ErrCodeRecommendUnavailable = "RECOMMEND_UNAVAILABLE"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeCSRFInvalid          = "CSRF_TOKEN_INVALID"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please log in.",
	}
}

// NewPermissionDeniedError は所有者チェック失敗エラーを生成する。
// resourceには"outfit"、"wardrobe item"などの表示名を渡す。
func NewPermissionDeniedError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "Permission denied",
		Category: "auth",
		Action:   fmt.Sprintf("You can only modify your own %s.", resource),
	}
}

// NewStaffRequiredError はスタッフ権限が必要な操作の拒否エラーを生成する。
func NewStaffRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "Permission denied",
		Category: "auth",
		Action:   "This action requires staff privileges.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名とパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid username or password.",
		Category: "auth",
		Action:   "Check your username and password and try again.",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("The username %q is already taken.", username),
		Category: "auth",
		Action:   "Choose a different username.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse the request body.",
		Category: "validation",
		Action:   "Send a well-formed JSON request.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("Invalid %s: %s", field, reason),
		Category: "validation",
		Action:   fmt.Sprintf("Correct the %s field and try again.", field),
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: "validation",
		Action:   "Enter a public http:// or https:// URL.",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("The %s was not found: %s", resource, id),
		Category: "validation",
		Action:   fmt.Sprintf("Check the %s ID.", resource),
	}
}

// NewDuplicateOutfitNameError はコーディネート名重複エラーを生成する。
func NewDuplicateOutfitNameError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateOutfitName,
		Message:  fmt.Sprintf("You already have an outfit named %q.", name),
		Category: "wardrobe",
		Action:   "Choose a different outfit name.",
	}
}

// NewAlreadyInWardrobeError はカタログアイテムの重複保存エラーを生成する。
func NewAlreadyInWardrobeError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInWardrobe,
		Message:  "This item is already in your wardrobe.",
		Category: "wardrobe",
		Action:   "Open your wardrobe to find the saved item.",
	}
}

// NewDuplicateCatalogItemError はeBay商品IDの重複登録エラーを生成する。
func NewDuplicateCatalogItemError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateCatalogItem,
		Message:  "Item already exists in catalog.",
		Category: "wardrobe",
		Action:   "Search the catalog for the existing item.",
	}
}

// NewContentFilteredError はコンテンツフィルタに該当した投稿のエラーを生成する。
func NewContentFilteredError() *APIError {
	return &APIError{
		Code:     ErrCodeContentFiltered,
		Message:  "Your post contains content that is not allowed.",
		Category: "forum",
		Action:   "Edit your post and try again.",
	}
}

// NewIPBannedError はBAN済みIPからのリクエストエラーを生成する。
func NewIPBannedError(reason string) *APIError {
	msg := "Your IP address has been banned."
	if reason != "" {
		msg = fmt.Sprintf("Your IP address has been banned: %s", reason)
	}
	return &APIError{
		Code:     ErrCodeIPBanned,
		Message:  msg,
		Category: "forum",
		Action:   "Contact the site administrators.",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "User profile not found.",
		Category: "recommend",
		Action:   "Fill in your style profile before requesting recommendations.",
	}
}

// NewRecommendBusyError はレコメンドキュー満杯エラーを生成する。
func NewRecommendBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeRecommendBusy,
		Message:  "The recommendation service is busy.",
		Category: "recommend",
		Action:   "Please try again in a few minutes.",
	}
}

// NewRecommendUnavailableError はAIバックエンド未設定エラーを生成する。
func NewRecommendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeRecommendUnavailable,
		Message:  "AI recommendations are not available.",
		Category: "recommend",
		Action:   "Please try again later.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token is missing or invalid.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
