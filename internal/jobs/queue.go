// Package jobs runs the background work behind order synchronization: typed
// in-process queues with bounded worker pools, retry with exponential backoff,
// and dead-lettering for jobs that exhaust their attempts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a job queue. Each type gets its own pool and retry policy.
type Type string

const (
	TypeCreateOrder      Type = "create-order"
	TypeUpdateOrder      Type = "update-order"
	TypeSyncWithProvider Type = "sync-with-provider"
	TypeCheckStatus      Type = "check-status"
	TypeBulkStatusCheck  Type = "bulk-status-check"
)

// Payload identifies the order a job operates on.
type Payload struct {
	TenantID string `json:"tenantId"`
	OrderID  string `json:"orderId"`
	Provider string `json:"provider,omitempty"`
}

type Job struct {
	ID       string
	Type     Type
	Payload  Payload
	Attempts int // completed attempts so far
	Priority int // higher runs first among due jobs
	RunAt    time.Time
	Enqueued time.Time
}

// Options tune a single submission.
type Options struct {
	Priority int
	Delay    time.Duration
}

// Handler executes one attempt. A nil return completes the job. A terminal
// error (see Terminal) dead-letters immediately; any other error schedules a
// retry until the policy's MaxAttempts is spent.
type Handler func(ctx context.Context, j *Job) error

// Policy bounds one job type's pool.
type Policy struct {
	Workers     int
	MaxAttempts int
	Backoff     time.Duration // base; attempt n waits Backoff << n
}

type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks err as not worth retrying.
func Terminal(err error) error { return &terminalError{err: err} }

func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}

// Stats is a point-in-time snapshot of one queue.
type Stats struct {
	Waiting   int   `json:"waiting"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type queueState struct {
	policy    Policy
	handler   Handler
	pending   []*Job
	active    int
	completed int64
	failed    int64
}

// Queue is the in-process job engine. One order is never worked on by two
// jobs at once, and a (type, order) pair waiting in a queue absorbs repeat
// submissions instead of queueing twice.
type Queue struct {
	// DeadLetter, when set, receives every job that failed for good.
	DeadLetter func(ctx context.Context, j *Job, err error)
	// PollInterval is how often idle workers look for due jobs.
	PollInterval time.Duration

	mu      sync.Mutex
	queues  map[Type]*queueState
	inQueue map[string]struct{} // type|orderID of pending or active jobs
	busy    map[string]struct{} // orderIDs currently being worked
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewQueue() *Queue {
	return &Queue{
		PollInterval: 100 * time.Millisecond,
		queues:       map[Type]*queueState{},
		inQueue:      map[string]struct{}{},
		busy:         map[string]struct{}{},
		now:          time.Now,
		stop:         make(chan struct{}),
	}
}

// Register installs a handler and policy for a job type. Must be called
// before Start.
func (q *Queue) Register(t Type, p Policy, h Handler) {
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	q.mu.Lock()
	q.queues[t] = &queueState{policy: p, handler: h}
	q.mu.Unlock()
}

func dedupeKey(t Type, orderID string) string { return string(t) + "|" + orderID }

// Submit enqueues a job unless an identical (type, order) job is already
// pending or running. Returns the job id and whether a new job was enqueued.
func (q *Queue) Submit(t Type, p Payload) (string, bool) {
	return q.SubmitWith(t, p, Options{})
}

// SubmitAt enqueues with an explicit earliest run time.
func (q *Queue) SubmitAt(t Type, p Payload, runAt time.Time) (string, bool) {
	d := time.Duration(0)
	if !runAt.IsZero() {
		d = runAt.Sub(q.now())
	}
	return q.SubmitWith(t, p, Options{Delay: d})
}

// SubmitWith enqueues with per-submission priority and delay.
func (q *Queue) SubmitWith(t Type, p Payload, opts Options) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.queues[t]
	if !ok {
		return "", false
	}
	key := dedupeKey(t, p.OrderID)
	if _, dup := q.inQueue[key]; dup {
		return "", false
	}
	now := q.now()
	runAt := now
	if opts.Delay > 0 {
		runAt = now.Add(opts.Delay)
	}
	j := &Job{
		ID:       uuid.NewString(),
		Type:     t,
		Payload:  p,
		Priority: opts.Priority,
		RunAt:    runAt,
		Enqueued: now,
	}
	st.pending = append(st.pending, j)
	q.inQueue[key] = struct{}{}
	return j.ID, true
}

// Lease reserves an order outside a job, under the same one-job-per-order
// rule the workers obey. Workers skip a leased order; a second Lease for the
// same order fails until Release.
func (q *Queue) Lease(orderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, taken := q.busy[orderID]; taken {
		return false
	}
	q.busy[orderID] = struct{}{}
	return true
}

// Release frees an order reserved with Lease.
func (q *Queue) Release(orderID string) {
	q.mu.Lock()
	delete(q.busy, orderID)
	q.mu.Unlock()
}

// Start launches the worker pools. Stop must be called to release them.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for t, st := range q.queues {
		for i := 0; i < st.policy.Workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, t)
		}
	}
}

func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, t Type) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				j := q.take(t)
				if j == nil {
					break
				}
				q.run(ctx, t, j)
			}
		}
	}
}

// take pops the best due job whose order is not already being worked:
// highest priority first, submission order within a priority.
func (q *Queue) take(t Type) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.queues[t]
	now := q.now()
	best := -1
	for i, j := range st.pending {
		if j.RunAt.After(now) {
			continue
		}
		if _, taken := q.busy[j.Payload.OrderID]; taken {
			continue
		}
		if best < 0 || j.Priority > st.pending[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	j := st.pending[best]
	st.pending = append(st.pending[:best], st.pending[best+1:]...)
	st.active++
	q.busy[j.Payload.OrderID] = struct{}{}
	return j
}

func (q *Queue) run(ctx context.Context, t Type, j *Job) {
	err := q.safeCall(ctx, t, j)
	q.mu.Lock()
	st := q.queues[t]
	st.active--
	delete(q.busy, j.Payload.OrderID)
	j.Attempts++

	if err == nil {
		st.completed++
		delete(q.inQueue, dedupeKey(t, j.Payload.OrderID))
		q.mu.Unlock()
		return
	}
	if !IsTerminal(err) && j.Attempts < st.policy.MaxAttempts {
		j.RunAt = q.now().Add(nextBackoff(st.policy.Backoff, j.Attempts))
		st.pending = append(st.pending, j)
		q.mu.Unlock()
		return
	}
	st.failed++
	delete(q.inQueue, dedupeKey(t, j.Payload.OrderID))
	dl := q.DeadLetter
	q.mu.Unlock()
	if dl != nil {
		dl(ctx, j, err)
	}
}

func (q *Queue) safeCall(ctx context.Context, t Type, j *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Terminal(fmt.Errorf("handler panic: %v", r))
		}
	}()
	q.mu.Lock()
	h := q.queues[t].handler
	q.mu.Unlock()
	return h(ctx, j)
}

// nextBackoff doubles the base per completed attempt, capped at an hour.
func nextBackoff(base time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	d := base << attempts
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

// StatsSnapshot returns per-type queue counters.
func (q *Queue) StatsSnapshot() map[Type]Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[Type]Stats, len(q.queues))
	for t, st := range q.queues {
		out[t] = Stats{
			Waiting:   len(st.pending),
			Active:    st.active,
			Completed: st.completed,
			Failed:    st.failed,
		}
	}
	return out
}
