package orders

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parcelhub/internal/model"
	"parcelhub/internal/providers"
	"parcelhub/internal/store"
)

// gaugedAdapter tracks how many status calls run at once.
type gaugedAdapter struct {
	inFlight int32
	maxSeen  int32
	total    int32
}

func (g *gaugedAdapter) Slug() string { return "fake" }

func (g *gaugedAdapter) CreateParcel(ctx context.Context, o model.Order) providers.CreateResult {
	return providers.CreateResult{Outcome: providers.OutcomeAccepted, TrackingNumber: o.OrderNumber}
}

func (g *gaugedAdapter) CheckStatus(ctx context.Context, trackingNumber string) providers.StatusResult {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		m := atomic.LoadInt32(&g.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&g.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&g.inFlight, -1)
	atomic.AddInt32(&g.total, 1)
	return providers.StatusResult{OK: true, Native: "EXPEDIEE", Status: model.StatusShipped, Mapped: true}
}

func seedTracked(t *testing.T, mem *store.Memory, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		o, err := mem.CreateOrder(ctx, "t1", model.OrderIn{
			CustomerName:  fmt.Sprintf("Customer %d", i),
			CustomerPhone: fmt.Sprintf("06%08d", i),
			Items:         []model.OrderItem{{ProductName: "Lamp", Quantity: 1}},
			TotalAmount:   10,
			ProviderSlug:  "fake",
		})
		if err != nil {
			t.Fatal(err)
		}
		tn := fmt.Sprintf("TRK-%d", i)
		st := model.StatusProcessing
		if _, err := mem.UpdateOrder(ctx, "t1", o.ID, model.OrderPatch{TrackingNumber: &tn, Status: &st}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReconcilerBatchesAndPaces(t *testing.T) {
	mem := store.NewMemory()
	ga := &gaugedAdapter{}
	e := NewEngine(mem, &fakeResolver{adapter: ga}, nil, nil)
	r := NewReconciler(mem, e, 10, time.Second)

	var mu sync.Mutex
	var pauses []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) {
		mu.Lock()
		pauses = append(pauses, d)
		mu.Unlock()
	}

	seedTracked(t, mem, 25)
	checked, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if checked != 25 {
		t.Fatalf("checked = %d", checked)
	}
	if got := atomic.LoadInt32(&ga.total); got != 25 {
		t.Fatalf("provider calls = %d", got)
	}
	if got := atomic.LoadInt32(&ga.maxSeen); got > 10 {
		t.Fatalf("max concurrent polls = %d, batch must bound concurrency", got)
	}
	// 25 orders in batches of 10 pause twice, never after the last batch
	if len(pauses) != 2 {
		t.Fatalf("pauses = %v", pauses)
	}
	for _, d := range pauses {
		if d != time.Second {
			t.Fatalf("pause = %v", d)
		}
	}
}

func TestReconcilerEmptySweep(t *testing.T) {
	mem := store.NewMemory()
	e := NewEngine(mem, &fakeResolver{adapter: &gaugedAdapter{}}, nil, nil)
	r := NewReconciler(mem, e, 10, time.Second)
	checked, err := r.RunOnce(context.Background())
	if err != nil || checked != 0 {
		t.Fatalf("checked=%d err=%v", checked, err)
	}
}

type fakeLeaser struct {
	mu       sync.Mutex
	deny     string
	released int
}

func (f *fakeLeaser) Lease(orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return orderID != f.deny
}

func (f *fakeLeaser) Release(orderID string) {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

func TestReconcilerSkipsLeasedOrders(t *testing.T) {
	mem := store.NewMemory()
	ga := &gaugedAdapter{}
	e := NewEngine(mem, &fakeResolver{adapter: ga}, nil, nil)
	r := NewReconciler(mem, e, 10, 0)
	r.sleep = func(context.Context, time.Duration) {}

	seedTracked(t, mem, 3)
	due, err := mem.FindPendingStatusUpdates(context.Background(), 10)
	if err != nil || len(due) != 3 {
		t.Fatalf("due=%d err=%v", len(due), err)
	}
	// one order is being worked by a job; the sweep must leave it alone
	leaser := &fakeLeaser{deny: due[0].ID}
	r.Leases = leaser

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&ga.total); got != 2 {
		t.Fatalf("provider calls = %d, leased order must be skipped", got)
	}
	leaser.mu.Lock()
	released := leaser.released
	leaser.mu.Unlock()
	if released != 2 {
		t.Fatalf("released = %d, every granted lease must be returned", released)
	}
}

func TestReconcilerSkipsTerminalOrders(t *testing.T) {
	mem := store.NewMemory()
	ga := &gaugedAdapter{}
	e := NewEngine(mem, &fakeResolver{adapter: ga}, nil, nil)
	r := NewReconciler(mem, e, 10, 0)
	r.sleep = func(context.Context, time.Duration) {}

	seedTracked(t, mem, 3)
	// deliver one of them; it must drop out of the sweep
	due, err := mem.FindPendingStatusUpdates(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	del := model.StatusDelivered
	if _, err := mem.UpdateOrder(context.Background(), "t1", due[0].ID, model.OrderPatch{Status: &del}); err != nil {
		t.Fatal(err)
	}

	checked, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if checked != 2 {
		t.Fatalf("checked = %d", checked)
	}
}
