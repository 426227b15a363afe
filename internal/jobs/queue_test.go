package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastQueue() *Queue {
	q := NewQueue()
	q.PollInterval = 5 * time.Millisecond
	return q
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	q := fastQueue()
	var calls int32
	q.Register(TypeSyncWithProvider, Policy{Workers: 2, MaxAttempts: 3, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	if _, ok := q.Submit(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "o1"}); !ok {
		t.Fatal("submit refused")
	}
	waitFor(t, 2*time.Second, func() bool {
		return q.StatsSnapshot()[TypeSyncWithProvider].Completed == 1
	})
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want two failures then success", got)
	}
}

func TestQueueDeadLettersAfterMaxAttempts(t *testing.T) {
	q := fastQueue()
	var calls int32
	var dlMu sync.Mutex
	var dead []*Job
	var dlErr error
	q.DeadLetter = func(ctx context.Context, j *Job, err error) {
		dlMu.Lock()
		dead = append(dead, j)
		dlErr = err
		dlMu.Unlock()
	}
	q.Register(TypeSyncWithProvider, Policy{Workers: 1, MaxAttempts: 3, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still down")
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Submit(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "o1"})
	waitFor(t, 2*time.Second, func() bool {
		return q.StatsSnapshot()[TypeSyncWithProvider].Failed == 1
	})
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want exactly MaxAttempts", got)
	}
	dlMu.Lock()
	defer dlMu.Unlock()
	if len(dead) != 1 || dead[0].Attempts != 3 {
		t.Fatalf("dead letters = %+v", dead)
	}
	if dlErr == nil || dlErr.Error() != "still down" {
		t.Fatalf("dead letter error = %v", dlErr)
	}
}

func TestQueueTerminalErrorSkipsRetry(t *testing.T) {
	q := fastQueue()
	var calls int32
	q.Register(TypeSyncWithProvider, Policy{Workers: 1, MaxAttempts: 5, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&calls, 1)
		return Terminal(errors.New("Invalid city"))
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Submit(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "o1"})
	waitFor(t, time.Second, func() bool {
		return q.StatsSnapshot()[TypeSyncWithProvider].Failed == 1
	})
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, terminal error must not retry", got)
	}
}

func TestQueueDedupesPendingSubmissions(t *testing.T) {
	q := fastQueue()
	var calls int32
	release := make(chan struct{})
	q.Register(TypeCheckStatus, Policy{Workers: 2, MaxAttempts: 1, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	if _, ok := q.Submit(TypeCheckStatus, Payload{TenantID: "t1", OrderID: "o1"}); !ok {
		t.Fatal("first submit refused")
	}
	if _, ok := q.Submit(TypeCheckStatus, Payload{TenantID: "t1", OrderID: "o1"}); ok {
		t.Fatal("duplicate submit should coalesce")
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })
	close(release)
	waitFor(t, time.Second, func() bool {
		return q.StatsSnapshot()[TypeCheckStatus].Completed == 1
	})
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d", got)
	}

	// once completed, the same pair may be submitted again
	if _, ok := q.Submit(TypeCheckStatus, Payload{TenantID: "t1", OrderID: "o1"}); !ok {
		t.Fatal("resubmit after completion refused")
	}
}

func TestQueueOneJobPerOrderAtATime(t *testing.T) {
	q := fastQueue()
	var inFlight, maxInFlight int32
	slow := func(ctx context.Context, j *Job) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}
	q.Register(TypeSyncWithProvider, Policy{Workers: 2, MaxAttempts: 1, Backoff: time.Millisecond}, slow)
	q.Register(TypeCheckStatus, Policy{Workers: 2, MaxAttempts: 1, Backoff: time.Millisecond}, slow)
	q.Start(context.Background())
	defer q.Stop()

	// two different types targeting the same order must serialize
	q.Submit(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "o1"})
	q.Submit(TypeCheckStatus, Payload{TenantID: "t1", OrderID: "o1"})
	waitFor(t, 2*time.Second, func() bool {
		s := q.StatsSnapshot()
		return s[TypeSyncWithProvider].Completed == 1 && s[TypeCheckStatus].Completed == 1
	})
	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("max concurrent jobs for one order = %d", got)
	}
}

func TestQueueWorkerBound(t *testing.T) {
	q := fastQueue()
	var inFlight, maxInFlight int32
	q.Register(TypeBulkStatusCheck, Policy{Workers: 2, MaxAttempts: 1, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 8; i++ {
		q.Submit(TypeBulkStatusCheck, Payload{TenantID: "t1", OrderID: string(rune('a' + i))})
	}
	waitFor(t, 3*time.Second, func() bool {
		return q.StatsSnapshot()[TypeBulkStatusCheck].Completed == 8
	})
	if got := atomic.LoadInt32(&maxInFlight); got > 2 {
		t.Fatalf("max in flight = %d, want pool bound respected", got)
	}
}

func TestQueuePanicDeadLetters(t *testing.T) {
	q := fastQueue()
	var dlCount int32
	q.DeadLetter = func(ctx context.Context, j *Job, err error) { atomic.AddInt32(&dlCount, 1) }
	q.Register(TypeSyncWithProvider, Policy{Workers: 1, MaxAttempts: 3, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		panic("boom")
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Submit(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "o1"})
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&dlCount) == 1 })
}

func TestQueueLeaseExcludesWorkers(t *testing.T) {
	q := fastQueue()
	var done int32
	q.Register(TypeCheckStatus, Policy{Workers: 1, MaxAttempts: 1, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&done, 1)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	if !q.Lease("o1") {
		t.Fatal("first lease refused")
	}
	if q.Lease("o1") {
		t.Fatal("second lease granted for a held order")
	}
	q.Submit(TypeCheckStatus, Payload{TenantID: "t1", OrderID: "o1"})
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&done) != 0 {
		t.Fatal("worker ran a leased order")
	}
	q.Release("o1")
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&done) == 1 })
}

func TestQueuePriorityRunsFirst(t *testing.T) {
	q := fastQueue()
	var mu sync.Mutex
	var seen []string
	q.Register(TypeSyncWithProvider, Policy{Workers: 1, MaxAttempts: 1, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		mu.Lock()
		seen = append(seen, j.Payload.OrderID)
		mu.Unlock()
		return nil
	})

	// enqueue before Start so both are due when the worker first looks
	q.SubmitWith(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "low"}, Options{})
	q.SubmitWith(TypeSyncWithProvider, Payload{TenantID: "t1", OrderID: "high"}, Options{Priority: 10})
	q.Start(context.Background())
	defer q.Stop()

	waitFor(t, time.Second, func() bool {
		return q.StatsSnapshot()[TypeSyncWithProvider].Completed == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "high" {
		t.Fatalf("run order = %v", seen)
	}
}

func TestQueueDelayHoldsJob(t *testing.T) {
	q := fastQueue()
	var done int32
	q.Register(TypeCheckStatus, Policy{Workers: 1, MaxAttempts: 1, Backoff: time.Millisecond}, func(ctx context.Context, j *Job) error {
		atomic.AddInt32(&done, 1)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	q.SubmitWith(TypeCheckStatus, Payload{TenantID: "t1", OrderID: "o1"}, Options{Delay: 60 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&done) != 0 {
		t.Fatal("job ran before its delay elapsed")
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&done) == 1 })
}

func TestNextBackoffDoubles(t *testing.T) {
	base := 2 * time.Second
	if d := nextBackoff(base, 0); d != 2*time.Second {
		t.Fatalf("attempt 0: %v", d)
	}
	if d := nextBackoff(base, 1); d != 4*time.Second {
		t.Fatalf("attempt 1: %v", d)
	}
	if d := nextBackoff(base, 3); d != 16*time.Second {
		t.Fatalf("attempt 3: %v", d)
	}
	if d := nextBackoff(base, 10); d != time.Hour {
		t.Fatalf("cap: %v", d)
	}
}
