package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"parcelhub/internal/jobs"
	"parcelhub/internal/model"
	"parcelhub/internal/providers"
	"parcelhub/internal/store"
)

// fakeAdapter plays back a script of create results and a fixed status result.
type fakeAdapter struct {
	mu           sync.Mutex
	createScript []providers.CreateResult
	createCalls  int
	statusResult providers.StatusResult
	statusCalls  int
}

func (f *fakeAdapter) Slug() string { return "fake" }

func (f *fakeAdapter) CreateParcel(ctx context.Context, o model.Order) providers.CreateResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.createCalls
	f.createCalls++
	if i >= len(f.createScript) {
		return f.createScript[len(f.createScript)-1]
	}
	return f.createScript[i]
}

func (f *fakeAdapter) CheckStatus(ctx context.Context, trackingNumber string) providers.StatusResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.statusResult
}

type fakeResolver struct {
	adapter providers.Adapter
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, tenantID, slug string) (providers.Adapter, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.adapter, nil
}

type recordEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordEvents) Emit(ctx context.Context, tenantID, eventType string, data any) {
	r.mu.Lock()
	r.events = append(r.events, eventType)
	r.mu.Unlock()
}

func (r *recordEvents) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func seedDispatchable(t *testing.T, mem *store.Memory) model.Order {
	t.Helper()
	ctx := context.Background()
	o, err := mem.CreateOrder(ctx, "t1", model.OrderIn{
		CustomerName:  "Sara B",
		CustomerPhone: "0612345678",
		CityName:      "Rabat",
		Items:         []model.OrderItem{{ProductName: "Lamp", Quantity: 1}},
		TotalAmount:   100,
		ProviderSlug:  "fake",
	})
	if err != nil {
		t.Fatal(err)
	}
	conf := model.ConfirmConfirmed
	st := model.StatusConfirmed
	o, err = mem.UpdateOrder(ctx, "t1", o.ID, model.OrderPatch{ConfirmationStatus: &conf, Status: &st})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func syncJob(o model.Order) *jobs.Job {
	return &jobs.Job{Type: jobs.TypeSyncWithProvider, Payload: jobs.Payload{TenantID: o.TenantID, OrderID: o.ID, Provider: o.ProviderSlug}}
}

func TestSyncRetriesUnknownThenSucceeds(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	timeout := providers.CreateResult{Outcome: providers.OutcomeUnknown,
		Err: &providers.TransportError{Op: "fake.create", Err: errors.New("timeout")}}
	fa := &fakeAdapter{createScript: []providers.CreateResult{
		timeout,
		timeout,
		{Outcome: providers.OutcomeAccepted, TrackingNumber: "X123"},
	}}
	ev := &recordEvents{}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, ev)
	o := seedDispatchable(t, mem)
	j := syncJob(o)

	for i := 0; i < 2; i++ {
		if err := e.HandleSyncWithProvider(ctx, j); err == nil || jobs.IsTerminal(err) {
			t.Fatalf("attempt %d: err = %v, want retryable", i+1, err)
		}
	}
	if err := e.HandleSyncWithProvider(ctx, j); err != nil {
		t.Fatalf("third attempt: %v", err)
	}

	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.SyncStatus != model.SyncSynced || got.TrackingNumber != "X123" {
		t.Fatalf("syncStatus=%s tracking=%q", got.SyncStatus, got.TrackingNumber)
	}
	if got.SyncAttempts != 3 {
		t.Fatalf("syncAttempts = %d", got.SyncAttempts)
	}
	if got.LastSyncAt == nil {
		t.Fatal("lastSyncAt not set")
	}
	if len(got.StatusHistory) == 0 {
		t.Fatal("no history entry for the handoff")
	}
	if !ev.has(EventOrderSynced) {
		t.Fatal("synced event not emitted")
	}
}

func TestSyncRejectedIsTerminalAndVerbatim(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{createScript: []providers.CreateResult{
		{Outcome: providers.OutcomeRejected, Message: "Invalid city"},
	}}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, nil)
	o := seedDispatchable(t, mem)
	j := syncJob(o)

	err := e.HandleSyncWithProvider(ctx, j)
	if !jobs.IsTerminal(err) {
		t.Fatalf("err = %v, want terminal", err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.SyncStatus != model.SyncFailed {
		t.Fatalf("syncStatus = %s", got.SyncStatus)
	}
	if got.SyncError != "Invalid city" {
		t.Fatalf("syncError = %q, want provider text untouched", got.SyncError)
	}

	// failed orders need operator action, a re-run must not call the provider
	if err := e.HandleSyncWithProvider(ctx, j); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if fa.createCalls != 1 {
		t.Fatalf("createCalls = %d", fa.createCalls)
	}
}

func TestSyncAlreadySyncedIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{createScript: []providers.CreateResult{
		{Outcome: providers.OutcomeAccepted, TrackingNumber: "X1"},
	}}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, nil)
	o := seedDispatchable(t, mem)
	j := syncJob(o)

	if err := e.HandleSyncWithProvider(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := e.HandleSyncWithProvider(ctx, j); err != nil {
		t.Fatal(err)
	}
	if fa.createCalls != 1 {
		t.Fatalf("createCalls = %d, want a single provider call", fa.createCalls)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.TrackingNumber != "X1" {
		t.Fatalf("tracking = %q", got.TrackingNumber)
	}
}

func TestSyncProviderNotConfigured(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	e := NewEngine(mem, &fakeResolver{err: providers.ErrNotConfigured}, nil, nil)
	o := seedDispatchable(t, mem)

	err := e.HandleSyncWithProvider(ctx, syncJob(o))
	if !jobs.IsTerminal(err) {
		t.Fatalf("err = %v, want terminal", err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.SyncStatus != model.SyncFailed {
		t.Fatalf("syncStatus = %s", got.SyncStatus)
	}
}

func withTracking(t *testing.T, mem *store.Memory, o model.Order) model.Order {
	t.Helper()
	tn := "TRK-1"
	synced := model.SyncSynced
	st := model.StatusProcessing
	got, err := mem.UpdateOrder(context.Background(), o.TenantID, o.ID, model.OrderPatch{
		TrackingNumber: &tn, SyncStatus: &synced, Status: &st,
	})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestCheckStatusAdvancesAndRecords(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{statusResult: providers.StatusResult{
		OK: true, Native: "LIVREE", Status: model.StatusDelivered, Mapped: true,
	}}
	ev := &recordEvents{}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, ev)
	o := withTracking(t, mem, seedDispatchable(t, mem))

	if err := e.CheckOrderStatus(ctx, "t1", o.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.Status != model.StatusDelivered {
		t.Fatalf("status = %s", got.Status)
	}
	if got.LastStatusCheck == nil {
		t.Fatal("lastStatusCheck not set")
	}
	var last model.StatusEvent
	if n := len(got.StatusHistory); n == 0 {
		t.Fatal("no history entry")
	} else {
		last = got.StatusHistory[n-1]
	}
	if last.Native != "LIVREE" || last.Status != model.StatusDelivered {
		t.Fatalf("history entry = %+v", last)
	}
	if !ev.has(EventStatusChanged) || !ev.has(EventOrderDelivered) {
		t.Fatalf("events = %v", ev.events)
	}
}

func TestCheckStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{statusResult: providers.StatusResult{
		OK: true, Native: "EXPEDIEE", Status: model.StatusShipped, Mapped: true,
	}}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, nil)
	o := withTracking(t, mem, seedDispatchable(t, mem))

	del := model.StatusDelivered
	o, _ = mem.UpdateOrder(ctx, "t1", o.ID, model.OrderPatch{Status: &del})

	if err := e.CheckOrderStatus(ctx, "t1", o.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.Status != model.StatusDelivered {
		t.Fatalf("status regressed to %s", got.Status)
	}
	if fa.statusCalls != 0 {
		// delivered is terminal, the poll should not even hit the provider
		t.Fatalf("statusCalls = %d", fa.statusCalls)
	}
}

func TestCheckStatusStaleSweepListCannotRegress(t *testing.T) {
	// a sweep works from a list read at its start; an order delivered after
	// the read must not be polled again off the stale entry
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{statusResult: providers.StatusResult{
		OK: true, Native: "EXPEDIEE", Status: model.StatusShipped, Mapped: true,
	}}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, nil)
	o := withTracking(t, mem, seedDispatchable(t, mem))

	due, err := mem.FindPendingStatusUpdates(ctx, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("due=%d err=%v", len(due), err)
	}
	del := model.StatusDelivered
	if _, err := mem.UpdateOrder(ctx, "t1", o.ID, model.OrderPatch{Status: &del}); err != nil {
		t.Fatal(err)
	}

	if err := e.CheckOrderStatus(ctx, due[0].TenantID, due[0].ID); err != nil {
		t.Fatal(err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.Status != model.StatusDelivered {
		t.Fatalf("status regressed to %s", got.Status)
	}
	if fa.statusCalls != 0 {
		t.Fatalf("statusCalls = %d, delivered order polled off a stale list", fa.statusCalls)
	}
}

func TestCheckStatusOutOfOrderReportStaysInHistory(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{statusResult: providers.StatusResult{
		OK: true, Native: "RAMASSEE", Status: model.StatusProcessing, Mapped: true,
	}}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, nil)
	o := withTracking(t, mem, seedDispatchable(t, mem))
	sh := model.StatusShipped
	o, _ = mem.UpdateOrder(ctx, "t1", o.ID, model.OrderPatch{Status: &sh})

	if err := e.CheckOrderStatus(ctx, "t1", o.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.Status != model.StatusShipped {
		t.Fatalf("status = %s, late report must not move it back", got.Status)
	}
	if n := len(got.StatusHistory); n == 0 || got.StatusHistory[n-1].Native != "RAMASSEE" {
		t.Fatal("late report missing from history")
	}
}

func TestCheckStatusUnmappedRecordsHistoryOnly(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fa := &fakeAdapter{statusResult: providers.StatusResult{
		OK: true, Native: "EN ATTENTE DE TRI", Mapped: false,
	}}
	e := NewEngine(mem, &fakeResolver{adapter: fa}, nil, nil)
	o := withTracking(t, mem, seedDispatchable(t, mem))

	if err := e.CheckOrderStatus(ctx, "t1", o.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.Status != model.StatusProcessing {
		t.Fatalf("status = %s, unmapped report must not move it", got.Status)
	}
	n := len(got.StatusHistory)
	if n == 0 || got.StatusHistory[n-1].Native != "EN ATTENTE DE TRI" {
		t.Fatal("unmapped report missing from history")
	}
}

func TestDeadLetterRecordsFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ev := &recordEvents{}
	e := NewEngine(mem, &fakeResolver{adapter: &fakeAdapter{}}, nil, ev)
	o := seedDispatchable(t, mem)

	j := syncJob(o)
	j.Attempts = 3
	e.OnDeadLetter(ctx, j, errors.New("provider unreachable"))

	got, _ := mem.GetOrder(ctx, "t1", o.ID)
	if got.SyncStatus != model.SyncFailed {
		t.Fatalf("syncStatus = %s", got.SyncStatus)
	}
	recs, _, err := mem.ListSyncFailures(ctx, "t1", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("sync failures = %d", len(recs))
	}
	rec := recs[0]
	if rec.OrderID != o.ID || rec.Attempts != 3 || !strings.Contains(rec.LastError, "unreachable") {
		t.Fatalf("record = %+v", rec)
	}
	if !ev.has(EventOrderSyncFailed) {
		t.Fatal("sync_failed event not emitted")
	}
}

func TestHandleCreateOrderEmitsWithDuplicates(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ev := &recordEvents{}
	det := NewDetector(mem, 0)
	e := NewEngine(mem, &fakeResolver{adapter: &fakeAdapter{}}, det, ev)

	first := seedDispatchable(t, mem)
	second := seedDispatchable(t, mem)
	if first.ID == second.ID {
		t.Fatal("expected two orders")
	}
	err := e.HandleCreateOrder(ctx, &jobs.Job{Type: jobs.TypeCreateOrder,
		Payload: jobs.Payload{TenantID: "t1", OrderID: second.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if !ev.has(EventOrderCreated) {
		t.Fatal("created event not emitted")
	}
}
