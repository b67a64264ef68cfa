package model

import "time"

// JobStatus はレコメンドジョブの状態。
// pending から completed または failed へ一度だけ遷移する。
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal は終端状態かどうかを返す。
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ジョブの失敗理由コード。AIサービスのエラー本文は保存せずログにのみ残す。
const (
	JobReasonTimeout       = "timeout"
	JobReasonShutdown      = "shutdown"
	JobReasonUpstreamError = "upstream_error"
	JobReasonAbandoned     = "abandoned"
)

// NormalizeJobReason は既知の理由コードはそのまま返し、それ以外はupstream_errorにまとめる。
func NormalizeJobReason(reason string) string {
	switch reason {
	case JobReasonTimeout, JobReasonShutdown, JobReasonUpstreamError, JobReasonAbandoned:
		return reason
	}
	return JobReasonUpstreamError
}

// JobRetryMessage は失敗したジョブについて利用者に表示する再試行案内を返す。
func JobRetryMessage(reason string) string {
	switch NormalizeJobReason(reason) {
	case JobReasonTimeout:
		return "AI service took too long to respond. Please try again."
	case JobReasonShutdown, JobReasonAbandoned:
		return "The recommendation was interrupted. Please submit it again."
	default:
		return "AI service is temporarily unavailable. Please try again later."
	}
}

// SnapshotItem はレコメンド依頼時点のアイテム情報。
// プロンプトに埋め込まれ、AIはこのIDを使って推薦アイテムを返す。
type SnapshotItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// RecommendationJob はAIレコメンド生成の非同期ジョブを表す。
type RecommendationJob struct {
	ID          string
	UserID      string
	Prompt      string
	Snapshot    []SnapshotItem
	Profile     UserProfile
	Status      JobStatus
	Result      string
	Reason      string
	ItemIDs     []string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// OwnerID はResourceインターフェースを実装する。
func (j *RecommendationJob) OwnerID() string { return j.UserID }

// SavedRecommendation は完了したレコメンドの履歴。
type SavedRecommendation struct {
	ID         string
	UserID     string
	Prompt     string
	AIResponse string
	ItemIDs    []string
	CreatedAt  time.Time
}
