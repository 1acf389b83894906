// Package job implements the kernel's priority job scheduler: a fixed
// worker pool draining a priority queue with per-job retry bookkeeping.
package job

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/shared/id"
	"github.com/promptforge/backend/internal/shared/types"
)

// Bus lifecycle event types emitted by the queue.
const (
	EventSubmitted = "job.submitted"
	EventStarted   = "job.started"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
	EventCancelled = "job.cancelled"
)

// Publisher is the bus surface the queue needs.
type Publisher interface {
	Publish(eventType string, data map[string]interface{}, sourceApp string) error
}

// DefaultHistory caps retained job records when none is configured.
const DefaultHistory = 10000

type pendingJob struct {
	job   *types.Job
	seq   uint64
	index int
}

// pendingHeap orders by priority descending, then submission sequence
// ascending, giving a strict total dequeue order with FIFO ties.
type pendingHeap []*pendingJob

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *pendingHeap) Push(x interface{}) {
	item := x.(*pendingJob)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue executes app-submitted work with priority ordering, bounded
// concurrency, and retries. Queue depth is unbounded and Submit never
// blocks; the worker pool is the only concurrency ceiling.
type Queue struct {
	mu       sync.Mutex
	pending  pendingHeap
	jobs     map[string]*types.Job
	order    []string // submission order, drives history trimming
	handlers map[string]types.JobHandler
	seq      uint64

	workers int
	history int
	wake    chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool

	publisher Publisher
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewQueue creates a queue with the given worker count. Workers do not run
// until Start.
func NewQueue(workers int, publisher Publisher, logger *logging.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Queue{
		jobs:      make(map[string]*types.Job),
		handlers:  make(map[string]types.JobHandler),
		workers:   workers,
		history:   DefaultHistory,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		publisher: publisher,
		logger:    logger,
	}
}

// WithMetrics adds metrics tracking to the queue.
func (q *Queue) WithMetrics(metrics *monitoring.Metrics) *Queue {
	q.metrics = metrics
	return q
}

// WithHistory overrides how many job records are retained.
func (q *Queue) WithHistory(history int) *Queue {
	if history > 0 {
		q.history = history
	}
	return q
}

// RegisterHandler binds a handler to a job type. Last registration wins.
func (q *Queue) RegisterHandler(jobType string, handler types.JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.handlers[jobType]; exists {
		q.logger.Warn("Overwriting job handler", zap.String("job_type", jobType))
	}
	q.handlers[jobType] = handler
}

// UnregisterHandler removes the handler for a job type.
func (q *Queue) UnregisterHandler(jobType string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handlers, jobType)
}

// Start launches the fixed worker pool. Idempotent.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("Job queue started", zap.Int("workers", q.workers))
}

// Stop halts the worker pool after in-flight jobs finish.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

// Submit creates a PENDING job, enqueues it, and returns its id without
// waiting for execution.
func (q *Queue) Submit(appID, jobType string, payload map[string]interface{}, priority, maxRetries int) string {
	job := &types.Job{
		ID:         id.NewJobID().String(),
		AppID:      appID,
		Type:       jobType,
		Payload:    payload,
		Priority:   priority,
		Status:     types.JobPending,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.seq++
	heap.Push(&q.pending, &pendingJob{job: job, seq: q.seq})
	depth := q.pending.Len()
	q.trimHistoryLocked()
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.RecordJobSubmitted()
		q.metrics.JobQueueDepth.Set(float64(depth))
	}
	q.publish(EventSubmitted, job)
	q.signal()

	return job.ID
}

// Cancel removes a PENDING job from the queue and marks it CANCELLED.
// Returns false for any job not in PENDING state, including unknown ids;
// in-flight execution cannot be interrupted.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != types.JobPending {
		q.mu.Unlock()
		return false
	}
	job.Status = types.JobCancelled
	now := time.Now()
	job.CompletedAt = &now
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.RecordJobTerminal(string(types.JobCancelled), 0)
	}
	q.publish(EventCancelled, job)
	return true
}

// Get returns a copy of one job record.
func (q *Queue) Get(jobID string) (*types.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// List returns copies of job records, newest submissions first, optionally
// filtered by app and status. limit <= 0 means no limit.
func (q *Queue) List(appID string, status types.JobStatus, limit int) []*types.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*types.Job, 0)
	for i := len(q.order) - 1; i >= 0; i-- {
		job, ok := q.jobs[q.order[i]]
		if !ok {
			continue
		}
		if appID != "" && job.AppID != appID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		snapshot := *job
		out = append(out, &snapshot)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// SetProgress updates a RUNNING job's progress, clamped to [0,1].
func (q *Queue) SetProgress(jobID string, progress float64) {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok && job.Status == types.JobRunning {
		job.Progress = progress
	}
}

// Stats returns scheduler statistics.
func (q *Queue) Stats() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	byStatus := make(map[string]int)
	for _, job := range q.jobs {
		byStatus[string(job.Status)]++
	}

	return map[string]interface{}{
		"workers":     q.workers,
		"queue_depth": q.pending.Len(),
		"jobs":        len(q.jobs),
		"by_status":   byStatus,
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// worker drains the priority queue until Stop.
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		job := q.next()
		if job == nil {
			return
		}
		q.execute(job)
		// More work may remain; make sure some worker rechecks.
		q.signal()
	}
}

// next pops the highest-priority PENDING job, blocking until one exists or
// the queue stops.
func (q *Queue) next() *types.Job {
	for {
		q.mu.Lock()
		for q.pending.Len() > 0 {
			item := heap.Pop(&q.pending).(*pendingJob)
			if item.job.Status != types.JobPending {
				// Cancelled while queued; already terminal.
				continue
			}
			if q.metrics != nil {
				q.metrics.JobQueueDepth.Set(float64(q.pending.Len()))
			}
			q.mu.Unlock()
			return item.job
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil
		}
	}
}

// execute runs one job attempt and applies the retry policy.
func (q *Queue) execute(job *types.Job) {
	q.mu.Lock()
	job.Status = types.JobRunning
	now := time.Now()
	job.StartedAt = &now
	handler, hasHandler := q.handlers[job.Type]
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.JobWorkersBusy.Inc()
		defer q.metrics.JobWorkersBusy.Dec()
	}
	q.publish(EventStarted, job)

	// A missing handler registration is always terminal, never retried.
	if !hasHandler {
		q.fail(job, fmt.Sprintf("no handler registered for job type %q", job.Type))
		return
	}

	result, err := q.invoke(handler, job)
	if err != nil {
		q.mu.Lock()
		job.RetryCount++
		retry := job.RetryCount <= job.MaxRetries
		if retry {
			job.Status = types.JobPending
			job.StartedAt = nil
			job.Error = err.Error()
			q.seq++
			heap.Push(&q.pending, &pendingJob{job: job, seq: q.seq})
		}
		q.mu.Unlock()

		if retry {
			q.logger.Warn("Job attempt failed, re-enqueued",
				zap.String("job_id", job.ID),
				zap.String("job_type", job.Type),
				zap.Int("retry_count", job.RetryCount),
				zap.Error(err),
			)
			q.signal()
			return
		}
		q.fail(job, err.Error())
		return
	}

	q.mu.Lock()
	job.Status = types.JobCompleted
	job.Progress = 1.0
	job.Result = result
	job.Error = ""
	done := time.Now()
	job.CompletedAt = &done
	started := job.StartedAt
	q.mu.Unlock()

	if q.metrics != nil {
		var duration time.Duration
		if started != nil {
			duration = done.Sub(*started)
		}
		q.metrics.RecordJobTerminal(string(types.JobCompleted), duration)
	}
	q.publish(EventCompleted, job)
}

// invoke runs the handler with panic isolation, passing a snapshot.
func (q *Queue) invoke(handler types.JobHandler, job *types.Job) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	snapshot := *job
	return handler(context.Background(), &snapshot)
}

// fail marks a job terminally FAILED.
func (q *Queue) fail(job *types.Job, message string) {
	q.mu.Lock()
	job.Status = types.JobFailed
	job.Error = message
	done := time.Now()
	job.CompletedAt = &done
	var duration time.Duration
	if job.StartedAt != nil {
		duration = done.Sub(*job.StartedAt)
	}
	q.mu.Unlock()

	q.logger.Error("Job failed",
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.String("app_id", job.AppID),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", message),
	)
	if q.metrics != nil {
		q.metrics.RecordJobTerminal(string(types.JobFailed), duration)
	}
	q.publish(EventFailed, job)
}

// trimHistoryLocked drops the oldest terminal job records above the
// retention cap. Caller must hold the lock.
func (q *Queue) trimHistoryLocked() {
	if len(q.jobs) <= q.history {
		return
	}

	kept := q.order[:0]
	excess := len(q.jobs) - q.history
	for _, jobID := range q.order {
		job, ok := q.jobs[jobID]
		if !ok {
			continue
		}
		if excess > 0 && job.Status.Terminal() {
			delete(q.jobs, jobID)
			excess--
			continue
		}
		kept = append(kept, jobID)
	}
	q.order = kept
}

// publish emits a lifecycle event; a nil publisher is a no-op for tests.
func (q *Queue) publish(eventType string, job *types.Job) {
	if q.publisher == nil {
		return
	}

	q.mu.Lock()
	data := map[string]interface{}{
		"job_id":   job.ID,
		"app_id":   job.AppID,
		"job_type": job.Type,
		"status":   string(job.Status),
		"priority": job.Priority,
	}
	if job.Error != "" {
		data["error"] = job.Error
	}
	q.mu.Unlock()

	if err := q.publisher.Publish(eventType, data, "kernel"); err != nil {
		q.logger.Debug("Job event publish failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
