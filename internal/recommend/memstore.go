package recommend

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/bestdressed/internal/model"
)

// MemoryJobStore はプロセス内でジョブを保持するRecommendationJobRepository実装。
// DATABASE_URLを使わないテストや単体実行で使う。
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.RecommendationJob
}

// NewMemoryJobStore は空のMemoryJobStoreを生成する。
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.RecommendationJob)}
}

// Create はジョブのコピーを保存する。
func (s *MemoryJobStore) Create(_ context.Context, job *model.RecommendationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// FindByID はジョブのコピーを返す。見つからない場合はnilを返す。
func (s *MemoryJobStore) FindByID(_ context.Context, id string) (*model.RecommendationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

// MarkCompleted はpendingのジョブをcompletedにする。
func (s *MemoryJobStore) MarkCompleted(_ context.Context, id, result string, itemIDs []string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != model.JobStatusPending {
		return false, nil
	}
	job.Status = model.JobStatusCompleted
	job.Result = result
	job.ItemIDs = append([]string(nil), itemIDs...)
	job.CompletedAt = &at
	return true, nil
}

// MarkFailed はpendingのジョブをfailedにする。
func (s *MemoryJobStore) MarkFailed(_ context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != model.JobStatusPending {
		return false, nil
	}
	job.Status = model.JobStatusFailed
	job.Reason = reason
	job.CompletedAt = &at
	return true, nil
}

func cloneJob(j *model.RecommendationJob) *model.RecommendationJob {
	c := *j
	c.Snapshot = append([]model.SnapshotItem(nil), j.Snapshot...)
	c.ItemIDs = append([]string(nil), j.ItemIDs...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
