package model

import "time"

// Occasion はコーディネートの用途。
type Occasion string

const (
	OccasionCasual   Occasion = "casual"
	OccasionBusiness Occasion = "business"
	OccasionFormal   Occasion = "formal"
	OccasionAthletic Occasion = "athletic"
	OccasionNightOut Occasion = "night_out"
	OccasionDate     Occasion = "date"
	OccasionOther    Occasion = "other"
)

// Season はコーディネートの季節。
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
	SeasonWinter Season = "winter"
	SeasonAll    Season = "all"
)

// ValidOccasion は用途が許可された値かどうかを判定する。空は許可する。
func ValidOccasion(o Occasion) bool {
	switch o {
	case "", OccasionCasual, OccasionBusiness, OccasionFormal, OccasionAthletic,
		OccasionNightOut, OccasionDate, OccasionOther:
		return true
	}
	return false
}

// ValidSeason は季節が許可された値かどうかを判定する。空は許可する。
func ValidSeason(s Season) bool {
	switch s {
	case "", SeasonSpring, SeasonSummer, SeasonFall, SeasonWinter, SeasonAll:
		return true
	}
	return false
}

// Outfit はワードローブアイテムを組み合わせたコーディネートを表す。
// 名前はユーザーごとに一意。
type Outfit struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Occasion    Occasion
	Season      Season
	IsFavorite  bool
	ItemIDs     []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnerID はResourceインターフェースを実装する。
func (o *Outfit) OwnerID() string { return o.UserID }
