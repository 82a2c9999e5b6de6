package winmax4

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/models"
)

// chunkSize is how many record tasks a coordinator hands to the runner per
// dispatch call.
const chunkSize = 100

// Task is one record's write, independently retryable: replaying the same
// natural key produces the same local state, never a duplicate.
type Task interface {
	Execute(ctx context.Context) error
	Describe() (entityType string, code string)
}

type TaskFailure struct {
	EntityType string
	Code       string
	Err        error
}

type BatchSummary struct {
	Total    int
	Failed   int
	Failures []TaskFailure
}

type batchTask struct {
	batch *Batch
	task  Task
}

// Runner executes batch tasks on a fixed worker pool shared by all batches.
type Runner struct {
	tasks chan batchTask
}

var (
	defaultRunner     *Runner
	defaultRunnerOnce sync.Once
)

func DefaultRunner() *Runner {
	defaultRunnerOnce.Do(func() {
		workers := 8
		if v := strings.TrimSpace(os.Getenv("WINMAX4_SYNC_WORKERS")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				workers = n
			}
		}
		defaultRunner = NewRunner(workers)
	})
	return defaultRunner
}

func NewRunner(workers int) *Runner {
	r := &Runner{tasks: make(chan batchTask, workers*2)}
	for i := 0; i < workers; i++ {
		go r.work()
	}
	return r
}

func (r *Runner) work() {
	for item := range r.tasks {
		item.batch.run(item.task)
	}
}

// Batch groups the tasks of one dispatch under a single finalizer. The
// finalizer fires exactly once, after every task reached a terminal state,
// and releases the batch's tracking row.
type Batch struct {
	runner    *Runner
	ctx       context.Context
	recordId  uint
	licenseId string
	name      string

	wg     sync.WaitGroup
	closed sync.Once

	mu       sync.Mutex
	total    int
	failures []TaskFailure

	onComplete func(BatchSummary)
}

// CreateBatch registers the tracking row and returns a handle tasks can be
// added to. The context is kept for the lifetime of the batch since tasks
// outlive the dispatching call.
func (r *Runner) CreateBatch(ctx context.Context, licenseId string, name string, onComplete func(BatchSummary)) (*Batch, error) {
	record := models.SyncBatch{
		LicenseId: licenseId,
		Name:      name,
	}
	if config.GetDB() != nil {
		if err := models.CreateSyncBatch(ctx, &record); err != nil {
			return nil, err
		}
	}
	return &Batch{
		runner:     r,
		ctx:        ctx,
		recordId:   record.ID,
		licenseId:  licenseId,
		name:       name,
		onComplete: onComplete,
	}, nil
}

// Add enqueues tasks. Must not be called after Close.
func (b *Batch) Add(tasks ...Task) {
	if len(tasks) == 0 {
		return
	}
	b.mu.Lock()
	b.total += len(tasks)
	b.mu.Unlock()

	db := config.GetDB()
	if db != nil && b.recordId != 0 {
		if err := db.WithContext(b.ctx).Model(&models.SyncBatch{}).
			Where("id = ?", b.recordId).
			Updates(map[string]interface{}{
				"total_jobs":   b.total,
				"pending_jobs": b.total,
			}).Error; err != nil {
			config.LogError(config.GetLogger(), "winmax4", "Batch.Add", "update batch counters", b.name, err)
		}
	}

	for _, task := range tasks {
		b.wg.Add(1)
		b.runner.tasks <- batchTask{batch: b, task: task}
	}
}

func (b *Batch) run(task Task) {
	defer b.wg.Done()

	err := task.Execute(b.ctx)
	failedDelta := 0
	if err != nil {
		failedDelta = 1
		entityType, code := task.Describe()
		b.mu.Lock()
		b.failures = append(b.failures, TaskFailure{EntityType: entityType, Code: code, Err: err})
		b.mu.Unlock()
	}
	if b.recordId != 0 {
		if updErr := models.UpdateSyncBatchCounters(b.ctx, b.recordId, -1, failedDelta); updErr != nil {
			config.LogError(config.GetLogger(), "winmax4", "Batch.run", "update batch counters", b.name, updErr)
		}
	}
}

// Close signals that no more tasks will be added. Finalization happens off
// the caller's goroutine once outstanding tasks drain; the caller does not
// block on batch completion.
func (b *Batch) Close() {
	b.closed.Do(func() {
		go func() {
			b.wg.Wait()

			b.mu.Lock()
			summary := BatchSummary{
				Total:    b.total,
				Failed:   len(b.failures),
				Failures: append([]TaskFailure(nil), b.failures...),
			}
			b.mu.Unlock()

			if b.recordId != 0 {
				if err := models.DeleteSyncBatch(b.ctx, b.recordId); err != nil {
					config.LogError(config.GetLogger(), "winmax4", "Batch.Close", "delete batch record", b.name, err)
				}
			}
			if b.onComplete != nil {
				b.onComplete(summary)
			}
		}()
	})
}

// recordTask adapts a closure into a Task.
type recordTask struct {
	entityType string
	code       string
	fn         func(ctx context.Context) error
}

func (t *recordTask) Execute(ctx context.Context) error {
	return t.fn(ctx)
}

func (t *recordTask) Describe() (string, string) {
	return t.entityType, t.code
}

func newRecordTask(entityType string, code string, fn func(ctx context.Context) error) Task {
	return &recordTask{entityType: entityType, code: code, fn: fn}
}
