package orders

import (
	"context"
	"log"
	"sync"
	"time"

	"parcelhub/internal/metrics"
	"parcelhub/internal/model"
	"parcelhub/internal/store"
)

// OrderLeaser extends the job queue's one-job-per-order rule to out-of-band
// workers. Satisfied by jobs.Queue.
type OrderLeaser interface {
	Lease(orderID string) bool
	Release(orderID string)
}

// Reconciler sweeps orders that have a tracking number but no terminal status
// and polls their providers. Work runs in small concurrent batches with a
// pause in between so a big backlog cannot hammer the providers.
type Reconciler struct {
	Store     store.Store
	Engine    *Engine
	BatchSize int
	Pacing    time.Duration
	Limit     int         // max orders per sweep
	Leases    OrderLeaser // optional; skips orders a job is already working

	sleep func(context.Context, time.Duration)
}

func NewReconciler(s store.Store, e *Engine, batchSize int, pacing time.Duration) *Reconciler {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Reconciler{
		Store:     s,
		Engine:    e,
		BatchSize: batchSize,
		Pacing:    pacing,
		Limit:     500,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// RunOnce performs one sweep and returns how many orders were polled.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	metrics.ReconcilerRuns.Inc()
	due, err := r.Store.FindPendingStatusUpdates(ctx, r.Limit)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	log.Printf("reconciler: %d orders due for status check", len(due))

	checked := 0
	for start := 0; start < len(due); start += r.BatchSize {
		if ctx.Err() != nil {
			return checked, ctx.Err()
		}
		end := start + r.BatchSize
		if end > len(due) {
			end = len(due)
		}
		var wg sync.WaitGroup
		for _, o := range due[start:end] {
			wg.Add(1)
			go func(o model.Order) {
				defer wg.Done()
				if r.Leases != nil {
					if !r.Leases.Lease(o.ID) {
						return
					}
					defer r.Leases.Release(o.ID)
				}
				if err := r.Engine.CheckOrderStatus(ctx, o.TenantID, o.ID); err != nil {
					log.Printf("reconciler: check %s: %v", o.ID, err)
				}
			}(o)
		}
		wg.Wait()
		checked += end - start
		metrics.ReconcilerChecked.Add(float64(end - start))
		if end < len(due) {
			r.sleep(ctx, r.Pacing)
		}
	}
	return checked, nil
}
