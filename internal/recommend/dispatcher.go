// Package recommend はAIコーディネート推薦の非同期実行を提供する。
// ジョブは固定数のワーカーと有界キューで処理され、クライアントはジョブIDでポーリングする。
package recommend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bestdressed/internal/access"
	"github.com/hitoshi/bestdressed/internal/model"
	"github.com/hitoshi/bestdressed/internal/repository"
)

const (
	// DefaultWorkers はワーカー数のデフォルト値。
	DefaultWorkers = 4
	// DefaultQueueSize はキュー長のデフォルト値。
	DefaultQueueSize = 64
	// DefaultTimeout はAI呼び出し1回あたりのタイムアウトのデフォルト値。
	DefaultTimeout = 60 * time.Second

	// ReasonTimeout はタイムアウトで失敗したジョブの理由。
	ReasonTimeout = model.JobReasonTimeout
	// ReasonShutdown は停止処理で打ち切られたジョブの理由。
	ReasonShutdown = model.JobReasonShutdown
	// ReasonUpstreamError はAIサービスがエラーを返したジョブの理由。
	ReasonUpstreamError = model.JobReasonUpstreamError
)

// MetricsRecorder はジョブ処理のメトリクスを記録するインターフェース。
type MetricsRecorder interface {
	RecordJobSubmitted()
	RecordJobRejected()
	RecordJobOutcome(status string)
	RecordCompletionLatency(d time.Duration)
}

// Options はDispatcherの設定。ゼロ値の項目はデフォルト値を使う。
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher はレコメンドジョブを有界ワーカープールで実行する。
//
// Submitはキューに空きがない場合ジョブを作成せずにRECOMMEND_BUSYを返す。
// ジョブの終端遷移はリポジトリの条件付き更新で一度だけ行われる。
type Dispatcher struct {
	jobs      repository.RecommendationJobRepository
	saved     repository.SavedRecommendationRepository
	completer Completer
	logger    *slog.Logger
	metrics   MetricsRecorder

	workers int
	timeout time.Duration
	now     func() time.Time

	queue chan *model.RecommendationJob
	slots chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。savedとmetricsはnilでもよい。
func NewDispatcher(
	jobs repository.RecommendationJobRepository,
	saved repository.SavedRecommendationRepository,
	completer Completer,
	logger *slog.Logger,
	metrics MetricsRecorder,
	opts Options,
) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{
		jobs:      jobs,
		saved:     saved,
		completer: completer,
		logger:    logger,
		metrics:   metrics,
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		now:       time.Now,
		queue:     make(chan *model.RecommendationJob, opts.QueueSize),
		slots:     make(chan struct{}, opts.QueueSize),
	}
}

// Submit はジョブをpending状態で作成し、キューに投入する。
// キューが満杯の場合はジョブを作成せずにRECOMMEND_BUSYを返す。
func (d *Dispatcher) Submit(
	ctx context.Context,
	principal *model.Principal,
	snapshot []model.SnapshotItem,
	profile model.UserProfile,
	userPrompt string,
) (*model.RecommendationJob, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, model.NewRecommendUnavailableError()
	}

	select {
	case d.slots <- struct{}{}:
	default:
		d.logger.Warn("レコメンドキューが満杯のため受付を拒否しました",
			slog.String("user_id", principal.ID),
			slog.Int("queue_size", cap(d.queue)),
		)
		if d.metrics != nil {
			d.metrics.RecordJobRejected()
		}
		return nil, model.NewRecommendBusyError()
	}

	job := &model.RecommendationJob{
		ID:        uuid.New().String(),
		UserID:    principal.ID,
		Prompt:    userPrompt,
		Snapshot:  snapshot,
		Profile:   profile,
		Status:    model.JobStatusPending,
		CreatedAt: d.now(),
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		<-d.slots
		return nil, err
	}

	// slotsとqueueの容量は同じなので、slotを確保できていれば送信はブロックしない
	d.queue <- job

	if d.metrics != nil {
		d.metrics.RecordJobSubmitted()
	}
	d.logger.Info("レコメンドジョブを受け付けました",
		slog.String("job_id", job.ID),
		slog.String("user_id", principal.ID),
		slog.Int("snapshot_items", len(snapshot)),
	)
	return job, nil
}

// Poll はジョブの現在の状態を返す。
// 他ユーザーのジョブは存在しないものとしてNOT_FOUNDを返す。
func (d *Dispatcher) Poll(ctx context.Context, principal *model.Principal, jobID string) (*model.RecommendationJob, error) {
	if principal == nil {
		return nil, model.NewUnauthorizedError()
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, model.NewNotFoundError("recommendation job", jobID)
	}

	job, err := d.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || access.Authorize(principal, job, access.ActionView) == access.Deny {
		return nil, model.NewNotFoundError("recommendation job", jobID)
	}
	return job, nil
}

// Run はワーカーを起動し、ctxがキャンセルされるまでブロックする。
// キャンセル後は受付を停止し、キューに残ったジョブをshutdownとしてfailedにしてから戻る。
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("レコメンドディスパッチャーを開始しました",
		slog.String("backend", backendName(d.completer)),
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)),
		slog.Duration("timeout", d.timeout),
	)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("レコメンドディスパッチャーを停止しました")
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		<-d.slots
		d.process(ctx, job)
	}
}

// process は1件のジョブを実行し、終端状態に遷移させる。
// 状態の書き込みは停止中でも完了させるため、キャンセルされないコンテキストで行う。
func (d *Dispatcher) process(ctx context.Context, job *model.RecommendationJob) {
	writeCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		d.fail(writeCtx, job, ReasonShutdown)
		return
	}

	start := time.Now()
	prompt := BuildPrompt(job.Profile, job.Snapshot, job.Prompt)
	text, err := d.complete(ctx, prompt)
	if d.metrics != nil {
		d.metrics.RecordCompletionLatency(time.Since(start))
	}

	if err != nil {
		reason := ReasonUpstreamError
		switch {
		case ctx.Err() != nil:
			reason = ReasonShutdown
		case errors.Is(err, context.DeadlineExceeded):
			reason = ReasonTimeout
		}
		d.logger.Error("AIレコメンドの生成に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		d.fail(writeCtx, job, reason)
		return
	}

	itemIDs := ParseRecommendedItems(text, job.Snapshot)
	ok, err := d.jobs.MarkCompleted(writeCtx, job.ID, text, itemIDs, d.now())
	if err != nil {
		d.logger.Error("レコメンドジョブの完了記録に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	if d.metrics != nil {
		d.metrics.RecordJobOutcome(string(model.JobStatusCompleted))
	}
	d.logger.Info("レコメンドジョブが完了しました",
		slog.String("job_id", job.ID),
		slog.Int("recommended_items", len(itemIDs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if d.saved != nil {
		rec := &model.SavedRecommendation{
			UserID:     job.UserID,
			Prompt:     job.Prompt,
			AIResponse: text,
			ItemIDs:    itemIDs,
		}
		if err := d.saved.Create(writeCtx, rec); err != nil {
			d.logger.Error("レコメンド履歴の保存に失敗しました",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// complete はタイムアウト付きでCompleterを呼び出す。
// Completerがコンテキストを無視した場合でもタイムアウトで打ち切る。
func (d *Dispatcher) complete(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := d.completer.Complete(cctx, prompt)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && cctx.Err() != nil {
			return "", cctx.Err()
		}
		return r.text, r.err
	case <-cctx.Done():
		return "", cctx.Err()
	}
}

func (d *Dispatcher) fail(ctx context.Context, job *model.RecommendationJob, reason string) {
	ok, err := d.jobs.MarkFailed(ctx, job.ID, reason, d.now())
	if err != nil {
		d.logger.Error("レコメンドジョブの失敗記録に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	if d.metrics != nil {
		d.metrics.RecordJobOutcome(string(model.JobStatusFailed))
	}
	d.logger.Warn("レコメンドジョブが失敗しました",
		slog.String("job_id", job.ID),
		slog.String("reason", reason),
	)
}
