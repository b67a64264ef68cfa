package recommend

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/bestdressed/internal/model"
)

// itemsMarker はAI応答末尾の推薦アイテムID一覧の書式。
const itemsMarker = "RECOMMENDED_ITEMS"

var recommendedItemsPattern = regexp.MustCompile(itemsMarker + `:\s*\[([^\]]*)\]`)

// BuildPrompt はプロフィール、アイテムスナップショット、ユーザーの依頼からプロンプトを生成する。
// userPromptが空の場合はプロフィールのみに基づく推薦を依頼する。
func BuildPrompt(profile model.UserProfile, items []model.SnapshotItem, userPrompt string) string {
	var b strings.Builder

	b.WriteString(`You are a fashion recommendation engine talking directly to the end user. Do not use the user's name or username, only use "you" instead.`)
	b.WriteString("\n\nUser Bio:\n")
	b.WriteString(profile.Bio)
	b.WriteString("\nStyle Preferences:\n")
	b.WriteString(profile.StylePreferences)
	b.WriteString("\nFavorite Colors:\n")
	b.WriteString(profile.FavoriteColors)

	b.WriteString("\n\nAvailable Items (with IDs):\n")
	for _, item := range items {
		fmt.Fprintf(&b, "ID: %s | Title: %s | Description: %s | Category: %s\n",
			item.ID, item.Title, item.Description, item.Category)
	}

	target := "profile"
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt != "" {
		b.WriteString("\nUser Request:\n")
		b.WriteString(userPrompt)
		b.WriteString("\n\nGenerate personalized clothing recommendations based on the user's profile, preferences, and their specific request above.\n")
		target = "request"
	} else {
		b.WriteString("\nGenerate personalized clothing recommendations based on the user's profile and preferences.\n")
	}

	b.WriteString("\nIMPORTANT: At the end of your response, list the IDs of recommended items in the following format:\n")
	b.WriteString(itemsMarker + ": [id1, id2, id3, ...]\n\n")
	fmt.Fprintf(&b, "Include 3-6 item IDs that best match the user's %s.\n", target)

	return b.String()
}

// ParseRecommendedItems はAI応答から推薦アイテムIDを抽出する。
// 複数の一覧がある場合は最後のものを使う。
// allowedに含まれないID、重複したIDは除外し、出現順を維持する。
func ParseRecommendedItems(response string, allowed []model.SnapshotItem) []string {
	matches := recommendedItemsPattern.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil
	}
	list := matches[len(matches)-1][1]

	known := make(map[string]struct{}, len(allowed))
	for _, item := range allowed {
		known[item.ID] = struct{}{}
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, raw := range strings.Split(list, ",") {
		id := strings.Trim(strings.TrimSpace(raw), `"'`)
		if id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// StripRecommendedItems はユーザー表示用に推薦アイテムID一覧の行を取り除く。
func StripRecommendedItems(response string) string {
	return strings.TrimSpace(recommendedItemsPattern.ReplaceAllString(response, ""))
}
