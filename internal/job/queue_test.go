package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/promptforge/backend/internal/shared/types"
)

// waitStatus polls until the job reaches the wanted status or the deadline
// passes.
func waitStatus(t *testing.T, q *Queue, jobID string, want types.JobStatus) *types.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := q.Get(jobID); ok && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := q.Get(jobID)
	t.Fatalf("Job %s never reached %s (last: %+v)", jobID, want, job)
	return nil
}

func TestSubmitReturnsPendingJob(t *testing.T) {
	q := NewQueue(1, nil, nil)

	jobID := q.Submit("app1", "work", map[string]interface{}{"n": 1}, 5, 0)
	if jobID == "" {
		t.Fatal("Expected non-empty job id")
	}

	job, ok := q.Get(jobID)
	if !ok {
		t.Fatal("Submitted job not found")
	}
	if job.Status != types.JobPending {
		t.Errorf("Expected PENDING, got %s", job.Status)
	}
	if job.Priority != 5 || job.AppID != "app1" || job.Type != "work" {
		t.Errorf("Job fields not preserved: %+v", job)
	}
}

func TestPriorityOrdering(t *testing.T) {
	q := NewQueue(1, nil, nil)

	var mu sync.Mutex
	var executed []string
	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		mu.Lock()
		executed = append(executed, job.Payload["tag"].(string))
		mu.Unlock()
		return nil, nil
	})

	// Enqueue before starting so the single worker sees all three at once.
	q.Submit("app", "work", map[string]interface{}{"tag": "low"}, 1, 0)
	lastID := q.Submit("app", "work", map[string]interface{}{"tag": "mid"}, 5, 0)
	q.Submit("app", "work", map[string]interface{}{"tag": "high"}, 10, 0)

	q.Start()
	defer q.Stop()

	waitStatus(t, q, lastID, types.JobCompleted)
	// mid completing last of the three means everything ran; re-check all.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(executed)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != 3 {
		t.Fatalf("Expected 3 executions, got %d", len(executed))
	}
	if executed[0] != "high" || executed[1] != "mid" || executed[2] != "low" {
		t.Errorf("Expected high, mid, low; got %v", executed)
	}
}

func TestEqualPriorityFIFO(t *testing.T) {
	q := NewQueue(1, nil, nil)

	var mu sync.Mutex
	var executed []string
	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		mu.Lock()
		executed = append(executed, job.Payload["tag"].(string))
		mu.Unlock()
		return nil, nil
	})

	q.Submit("app", "work", map[string]interface{}{"tag": "first"}, 3, 0)
	q.Submit("app", "work", map[string]interface{}{"tag": "second"}, 3, 0)
	last := q.Submit("app", "work", map[string]interface{}{"tag": "third"}, 3, 0)

	q.Start()
	defer q.Stop()
	waitStatus(t, q, last, types.JobCompleted)

	mu.Lock()
	defer mu.Unlock()
	if executed[0] != "first" || executed[1] != "second" || executed[2] != "third" {
		t.Errorf("Expected submission order for equal priorities, got %v", executed)
	}
}

func TestWorkerPoolCeiling(t *testing.T) {
	q := NewQueue(2, nil, nil)

	var mu sync.Mutex
	var current, peak int
	release := make(chan struct{})

	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		<-release

		mu.Lock()
		current--
		mu.Unlock()
		return nil, nil
	})

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, q.Submit("app", "work", nil, 0, 0))
	}
	q.Start()
	defer q.Stop()

	// Give workers time to pick up as much as they ever will.
	time.Sleep(100 * time.Millisecond)
	close(release)

	for _, jobID := range ids {
		waitStatus(t, q, jobID, types.JobCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent executions, saw %d", peak)
	}
	if peak < 2 {
		t.Errorf("Expected both workers busy, saw peak %d", peak)
	}
}

func TestRetryUntilExhaustion(t *testing.T) {
	q := NewQueue(1, nil, nil)

	var mu sync.Mutex
	attempts := 0
	q.RegisterHandler("flaky", func(ctx context.Context, job *types.Job) (interface{}, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("always fails")
	})

	jobID := q.Submit("app", "flaky", nil, 0, 2)
	q.Start()
	defer q.Stop()

	job := waitStatus(t, q, jobID, types.JobFailed)
	if job.RetryCount != 3 {
		t.Errorf("Expected retry_count 3 after initial attempt + 2 retries, got %d", job.RetryCount)
	}
	if job.Error == "" {
		t.Error("Expected terminal error message")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	q := NewQueue(1, nil, nil)

	var mu sync.Mutex
	attempts := 0
	q.RegisterHandler("flaky", func(ctx context.Context, job *types.Job) (interface{}, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("transient")
		}
		return map[string]interface{}{"ok": true}, nil
	})

	jobID := q.Submit("app", "flaky", nil, 0, 5)
	q.Start()
	defer q.Stop()

	job := waitStatus(t, q, jobID, types.JobCompleted)
	if job.RetryCount != 1 {
		t.Errorf("Expected retry_count 1, got %d", job.RetryCount)
	}
	if job.Error != "" {
		t.Errorf("Expected error cleared on completion, got %q", job.Error)
	}
	if job.Progress != 1.0 {
		t.Errorf("Expected progress 1.0, got %f", job.Progress)
	}
}

func TestSuccessFirstAttempt(t *testing.T) {
	q := NewQueue(1, nil, nil)
	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		return "done", nil
	})

	jobID := q.Submit("app", "work", nil, 0, 3)
	q.Start()
	defer q.Stop()

	job := waitStatus(t, q, jobID, types.JobCompleted)
	if job.RetryCount != 0 {
		t.Errorf("Expected retry_count 0, got %d", job.RetryCount)
	}
	if job.Result != "done" {
		t.Errorf("Expected result preserved, got %v", job.Result)
	}
}

func TestMissingHandlerTerminal(t *testing.T) {
	q := NewQueue(1, nil, nil)

	jobID := q.Submit("app", "unregistered", nil, 0, 5)
	q.Start()
	defer q.Stop()

	job := waitStatus(t, q, jobID, types.JobFailed)
	// Missing registration is never retried, regardless of max_retries.
	if job.RetryCount != 0 {
		t.Errorf("Expected retry_count 0, got %d", job.RetryCount)
	}
}

func TestHandlerPanicCountsAsFailure(t *testing.T) {
	q := NewQueue(1, nil, nil)
	q.RegisterHandler("explosive", func(ctx context.Context, job *types.Job) (interface{}, error) {
		panic("boom")
	})

	jobID := q.Submit("app", "explosive", nil, 0, 0)
	q.Start()
	defer q.Stop()

	job := waitStatus(t, q, jobID, types.JobFailed)
	if job.RetryCount != 1 {
		t.Errorf("Expected retry_count 1 for single panicked attempt, got %d", job.RetryCount)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	q := NewQueue(1, nil, nil)
	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		return nil, nil
	})

	jobID := q.Submit("app", "work", nil, 0, 0)
	if !q.Cancel(jobID) {
		t.Fatal("Expected cancel of PENDING job to succeed")
	}
	if q.Cancel(jobID) {
		t.Error("Expected second cancel to fail")
	}
	if q.Cancel("job_nonexistent") {
		t.Error("Expected cancel of unknown id to fail")
	}

	job, _ := q.Get(jobID)
	if job.Status != types.JobCancelled {
		t.Errorf("Expected CANCELLED, got %s", job.Status)
	}

	// A cancelled job must never execute.
	other := q.Submit("app", "work", nil, 0, 0)
	q.Start()
	defer q.Stop()
	waitStatus(t, q, other, types.JobCompleted)

	job, _ = q.Get(jobID)
	if job.Status != types.JobCancelled {
		t.Errorf("Cancelled job was resurrected: %s", job.Status)
	}
}

func TestSetProgressOnlyWhileRunning(t *testing.T) {
	q := NewQueue(1, nil, nil)

	jobID := q.Submit("app", "work", nil, 0, 0)
	q.SetProgress(jobID, 0.5)

	job, _ := q.Get(jobID)
	if job.Progress != 0 {
		t.Errorf("Expected progress untouched for PENDING job, got %f", job.Progress)
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	q := NewQueue(1, nil, nil)

	q.Submit("app1", "a", nil, 0, 0)
	q.Submit("app2", "b", nil, 0, 0)
	q.Submit("app1", "c", nil, 0, 0)

	all := q.List("", "", 0)
	if len(all) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(all))
	}
	if all[0].Type != "c" {
		t.Errorf("Expected newest first, got %s", all[0].Type)
	}

	app1 := q.List("app1", "", 0)
	if len(app1) != 2 {
		t.Errorf("Expected 2 app1 jobs, got %d", len(app1))
	}

	limited := q.List("", "", 1)
	if len(limited) != 1 {
		t.Errorf("Expected 1 job with limit, got %d", len(limited))
	}

	pending := q.List("", types.JobPending, 0)
	if len(pending) != 3 {
		t.Errorf("Expected 3 pending jobs, got %d", len(pending))
	}
}

func TestHistoryTrimsTerminalOldestFirst(t *testing.T) {
	q := NewQueue(1, nil, nil).WithHistory(2)
	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		return nil, nil
	})
	q.Start()
	defer q.Stop()

	var ids []string
	for i := 0; i < 5; i++ {
		jobID := q.Submit("app", "work", nil, 0, 0)
		ids = append(ids, jobID)
		waitStatus(t, q, jobID, types.JobCompleted)
	}

	// The oldest terminal records are gone; the newest survives.
	if _, ok := q.Get(ids[0]); ok {
		t.Error("Expected oldest terminal job to be trimmed")
	}
	if _, ok := q.Get(ids[4]); !ok {
		t.Error("Expected newest job to survive trimming")
	}
}

func TestStats(t *testing.T) {
	q := NewQueue(3, nil, nil)
	q.Submit("app", "work", nil, 0, 0)

	stats := q.Stats()
	if stats["workers"] != 3 {
		t.Errorf("Expected 3 workers, got %v", stats["workers"])
	}
	byStatus := stats["by_status"].(map[string]int)
	if byStatus["PENDING"] != 1 {
		t.Errorf("Expected 1 pending, got %v", byStatus)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, data map[string]interface{}, sourceApp string) error {
	p.mu.Lock()
	p.events = append(p.events, eventType)
	p.mu.Unlock()
	return nil
}

func TestLifecycleEventsPublished(t *testing.T) {
	pub := &recordingPublisher{}
	q := NewQueue(1, pub, nil)
	q.RegisterHandler("work", func(ctx context.Context, job *types.Job) (interface{}, error) {
		return nil, nil
	})

	jobID := q.Submit("app", "work", nil, 0, 0)
	q.Start()
	defer q.Stop()
	waitStatus(t, q, jobID, types.JobCompleted)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		pub.mu.Lock()
		n := len(pub.events)
		pub.mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	want := []string{EventSubmitted, EventStarted, EventCompleted}
	if len(pub.events) != 3 {
		t.Fatalf("Expected 3 lifecycle events, got %v", pub.events)
	}
	for i, event := range want {
		if pub.events[i] != event {
			t.Errorf("Expected event %d to be %s, got %s", i, event, pub.events[i])
		}
	}
}
