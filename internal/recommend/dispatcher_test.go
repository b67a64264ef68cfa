package recommend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hitoshi/bestdressed/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- モック定義 ---

// mockCompleter はCompleterのテスト用モック。
type mockCompleter struct {
	completeFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, prompt)
	}
	return "", nil
}

// mockSavedRepo はSavedRecommendationRepositoryのテスト用モック。
type mockSavedRepo struct {
	mu      sync.Mutex
	created []*model.SavedRecommendation
}

func (m *mockSavedRepo) Create(_ context.Context, rec *model.SavedRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, rec)
	return nil
}

func (m *mockSavedRepo) ListByUserID(_ context.Context, userID string, _ int) ([]*model.SavedRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SavedRecommendation
	for _, r := range m.created {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockSavedRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

// mockMetrics はMetricsRecorderのテスト用モック。
type mockMetrics struct {
	submitted atomic.Int32
	rejected  atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
}

func (m *mockMetrics) RecordJobSubmitted() { m.submitted.Add(1) }
func (m *mockMetrics) RecordJobRejected()  { m.rejected.Add(1) }
func (m *mockMetrics) RecordJobOutcome(status string) {
	switch status {
	case "completed":
		m.completed.Add(1)
	case "failed":
		m.failed.Add(1)
	}
}
func (m *mockMetrics) RecordCompletionLatency(time.Duration) {}

// --- ヘルパー ---

var (
	alice = &model.Principal{ID: "user-alice", Username: "alice"}
	bob   = &model.Principal{ID: "user-bob", Username: "bob"}
	staff = &model.Principal{ID: "user-staff", Username: "mod", IsStaff: true}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestDispatcher(completer Completer, opts Options) (*Dispatcher, *MemoryJobStore, *mockSavedRepo, *mockMetrics) {
	store := NewMemoryJobStore()
	saved := &mockSavedRepo{}
	metrics := &mockMetrics{}
	d := NewDispatcher(store, saved, completer, testLogger(), metrics, opts)
	return d, store, saved, metrics
}

// runDispatcher はDispatcherを起動し、停止用の関数を返す。
func runDispatcher(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitForTerminal(t *testing.T, d *Dispatcher, p *model.Principal, id string) *model.RecommendationJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := d.Poll(context.Background(), p, id)
		if err != nil {
			t.Fatalf("Poll() error: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return nil
}

func apiErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// --- テスト ---

func TestDispatcher_CompletesJob(t *testing.T) {
	var gotPrompt string
	completer := &mockCompleter{completeFunc: func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "Try the jeans with the tee.\nRECOMMENDED_ITEMS: [1, 2, 42]", nil
	}}
	d, _, saved, metrics := newTestDispatcher(completer, Options{Workers: 2})
	runDispatcher(t, d)

	job, err := d.Submit(context.Background(), alice, testSnapshot(), model.UserProfile{Bio: "bio"}, "weekend")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("initial status = %s, want pending", job.Status)
	}

	final := waitForTerminal(t, d, alice, job.ID)
	if final.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (reason: %s)", final.Status, final.Reason)
	}
	if final.Result == "" {
		t.Error("expected result text")
	}
	if len(final.ItemIDs) != 2 || final.ItemIDs[0] != "1" || final.ItemIDs[1] != "2" {
		t.Errorf("ItemIDs = %v, want [1 2]", final.ItemIDs)
	}
	if final.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if gotPrompt == "" || !containsAll(gotPrompt, "weekend", "Blue Jeans") {
		t.Errorf("prompt did not include request and snapshot: %q", gotPrompt)
	}

	// 履歴の保存は状態遷移の後に行われる
	deadline := time.Now().Add(time.Second)
	for saved.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if saved.count() != 1 {
		t.Errorf("saved recommendations = %d, want 1", saved.count())
	}
	if metrics.submitted.Load() != 1 || metrics.completed.Load() != 1 {
		t.Errorf("metrics submitted=%d completed=%d", metrics.submitted.Load(), metrics.completed.Load())
	}
}

func TestDispatcher_AIErrorFailsJob(t *testing.T) {
	completer := &mockCompleter{completeFunc: func(context.Context, string) (string, error) {
		return "", errors.New("googleapi: Error 503: backend unavailable, key=AIza-secret")
	}}
	d, _, saved, metrics := newTestDispatcher(completer, Options{Workers: 1})
	runDispatcher(t, d)

	job, err := d.Submit(context.Background(), alice, testSnapshot(), model.UserProfile{}, "anything")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	final := waitForTerminal(t, d, alice, job.ID)
	if final.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Reason != ReasonUpstreamError {
		t.Errorf("Reason = %q, want %q", final.Reason, ReasonUpstreamError)
	}
	if strings.Contains(final.Reason, "googleapi") || strings.Contains(final.Reason, "AIza-secret") {
		t.Errorf("Reason leaks upstream error text: %q", final.Reason)
	}
	if saved.count() != 0 {
		t.Error("failed job must not be saved to history")
	}
	if metrics.failed.Load() != 1 {
		t.Errorf("failed metric = %d, want 1", metrics.failed.Load())
	}
}

func TestDispatcher_TimeoutFailsJob(t *testing.T) {
	completer := &mockCompleter{completeFunc: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	d, _, _, _ := newTestDispatcher(completer, Options{Workers: 1, Timeout: 20 * time.Millisecond})
	runDispatcher(t, d)

	job, err := d.Submit(context.Background(), alice, testSnapshot(), model.UserProfile{}, "slow")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	final := waitForTerminal(t, d, alice, job.ID)
	if final.Status != model.JobStatusFailed || final.Reason != ReasonTimeout {
		t.Errorf("status=%s reason=%q, want failed/timeout", final.Status, final.Reason)
	}
}

// コンテキストを無視するCompleterでもタイムアウトで打ち切られる
func TestDispatcher_TimeoutWithUncooperativeCompleter(t *testing.T) {
	release := make(chan struct{})
	completer := &mockCompleter{completeFunc: func(context.Context, string) (string, error) {
		<-release
		return "late answer", nil
	}}
	d, _, _, _ := newTestDispatcher(completer, Options{Workers: 1, Timeout: 20 * time.Millisecond})
	stop := runDispatcher(t, d)

	job, err := d.Submit(context.Background(), alice, testSnapshot(), model.UserProfile{}, "slow")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	final := waitForTerminal(t, d, alice, job.ID)
	close(release)
	stop()

	if final.Status != model.JobStatusFailed || final.Reason != ReasonTimeout {
		t.Errorf("status=%s reason=%q, want failed/timeout", final.Status, final.Reason)
	}

	// 遅れて返った結果で状態が変わらない
	after := waitForTerminal(t, d, alice, job.ID)
	if after.Status != model.JobStatusFailed {
		t.Errorf("status changed after timeout: %s", after.Status)
	}
}

func TestDispatcher_QueueFull_RejectsWithoutCreatingJob(t *testing.T) {
	d, store, _, metrics := newTestDispatcher(&mockCompleter{}, Options{Workers: 1, QueueSize: 2})

	// Runを起動しないのでキューは消費されない
	for i := 0; i < 2; i++ {
		if _, err := d.Submit(context.Background(), alice, nil, model.UserProfile{}, "p"); err != nil {
			t.Fatalf("Submit(%d) error: %v", i, err)
		}
	}

	_, err := d.Submit(context.Background(), alice, nil, model.UserProfile{}, "p")
	if code := apiErrorCode(err); code != model.ErrCodeRecommendBusy {
		t.Fatalf("error code = %q, want %q", code, model.ErrCodeRecommendBusy)
	}

	store.mu.Lock()
	n := len(store.jobs)
	store.mu.Unlock()
	if n != 2 {
		t.Errorf("jobs in store = %d, want 2", n)
	}
	if metrics.rejected.Load() != 1 {
		t.Errorf("rejected metric = %d, want 1", metrics.rejected.Load())
	}

	// 停止時にキューに残ったジョブはshutdownで失敗する
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)

	store.mu.Lock()
	defer store.mu.Unlock()
	for id, job := range store.jobs {
		if job.Status != model.JobStatusFailed || job.Reason != ReasonShutdown {
			t.Errorf("job %s: status=%s reason=%q, want failed/shutdown", id, job.Status, job.Reason)
		}
	}
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	d, _, _, _ := newTestDispatcher(&mockCompleter{}, Options{})
	stop := runDispatcher(t, d)
	stop()

	_, err := d.Submit(context.Background(), alice, nil, model.UserProfile{}, "p")
	if code := apiErrorCode(err); code != model.ErrCodeRecommendUnavailable {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeRecommendUnavailable)
	}
}

func TestDispatcher_SubmitRequiresPrincipal(t *testing.T) {
	d, _, _, _ := newTestDispatcher(&mockCompleter{}, Options{})

	_, err := d.Submit(context.Background(), nil, nil, model.UserProfile{}, "p")
	if code := apiErrorCode(err); code != model.ErrCodeUnauthorized {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeUnauthorized)
	}
}

func TestDispatcher_PollIsOwnerScoped(t *testing.T) {
	d, _, _, _ := newTestDispatcher(&mockCompleter{}, Options{})

	job, err := d.Submit(context.Background(), alice, nil, model.UserProfile{}, "p")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if _, err := d.Poll(context.Background(), alice, job.ID); err != nil {
		t.Errorf("owner Poll() error: %v", err)
	}
	if _, err := d.Poll(context.Background(), staff, job.ID); err != nil {
		t.Errorf("staff Poll() error: %v", err)
	}

	_, err = d.Poll(context.Background(), bob, job.ID)
	if code := apiErrorCode(err); code != model.ErrCodeNotFound {
		t.Errorf("other user Poll() code = %q, want %q", code, model.ErrCodeNotFound)
	}

	_, err = d.Poll(context.Background(), alice, "not-a-uuid")
	if code := apiErrorCode(err); code != model.ErrCodeNotFound {
		t.Errorf("invalid id Poll() code = %q, want %q", code, model.ErrCodeNotFound)
	}

	// ワーカーを起動しないまま終了するため、キューを閉じておく
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	const workers = 3
	var inFlight, maxInFlight atomic.Int32

	completer := &mockCompleter{completeFunc: func(context.Context, string) (string, error) {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "ok\nRECOMMENDED_ITEMS: [1]", nil
	}}
	d, _, _, _ := newTestDispatcher(completer, Options{Workers: workers, QueueSize: 32})
	runDispatcher(t, d)

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := d.Submit(context.Background(), alice, testSnapshot(), model.UserProfile{}, "p")
			if err != nil {
				t.Errorf("Submit() error: %v", err)
				return
			}
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)

	for id := range ids {
		if job := waitForTerminal(t, d, alice, id); job.Status != model.JobStatusCompleted {
			t.Errorf("job %s status = %s", id, job.Status)
		}
	}
	if got := maxInFlight.Load(); got > workers {
		t.Errorf("max concurrent completions = %d, want <= %d", got, workers)
	}
}

func TestMemoryJobStore_TerminalTransitionHappensOnce(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()
	job := &model.RecommendationJob{ID: "job-1", UserID: "u", Status: model.JobStatusPending}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	ok, _ := store.MarkFailed(ctx, "job-1", "boom", time.Now())
	if !ok {
		t.Fatal("first transition should succeed")
	}
	if ok, _ := store.MarkCompleted(ctx, "job-1", "text", nil, time.Now()); ok {
		t.Error("second transition must not succeed")
	}
	if ok, _ := store.MarkFailed(ctx, "job-1", "again", time.Now()); ok {
		t.Error("repeated failure must not succeed")
	}

	got, _ := store.FindByID(ctx, "job-1")
	if got.Status != model.JobStatusFailed || got.Reason != "boom" {
		t.Errorf("status=%s reason=%q, want failed/boom", got.Status, got.Reason)
	}

	if missing, _ := store.FindByID(ctx, "missing"); missing != nil {
		t.Error("expected nil for missing job")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
