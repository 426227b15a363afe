package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"parcelhub/internal/jobs"
	"parcelhub/internal/metrics"
	"parcelhub/internal/model"
	"parcelhub/internal/providers"
	"parcelhub/internal/store"
)

// AdapterResolver yields the adapter for a tenant/provider pair. Satisfied by
// providers.Registry.
type AdapterResolver interface {
	Resolve(ctx context.Context, tenantID, slug string) (providers.Adapter, error)
}

// Engine owns the job handlers that move orders through providers. All state
// lives in the store; the engine itself is stateless and safe for concurrent
// use by the worker pools.
type Engine struct {
	Store    store.Store
	Registry AdapterResolver
	Events   Events // optional
	Detector *Detector

	now func() time.Time
}

func NewEngine(s store.Store, reg AdapterResolver, det *Detector, ev Events) *Engine {
	return &Engine{Store: s, Registry: reg, Detector: det, Events: ev, now: time.Now}
}

func (e *Engine) emit(ctx context.Context, tenantID, eventType string, data any) {
	if e.Events != nil {
		e.Events.Emit(ctx, tenantID, eventType, data)
	}
}

// Bind registers the engine's handlers on the queue.
func (e *Engine) Bind(q *jobs.Queue, policies map[jobs.Type]jobs.Policy) {
	q.Register(jobs.TypeCreateOrder, policies[jobs.TypeCreateOrder], e.HandleCreateOrder)
	q.Register(jobs.TypeUpdateOrder, policies[jobs.TypeUpdateOrder], e.HandleUpdateOrder)
	q.Register(jobs.TypeSyncWithProvider, policies[jobs.TypeSyncWithProvider], e.HandleSyncWithProvider)
	q.Register(jobs.TypeCheckStatus, policies[jobs.TypeCheckStatus], e.HandleCheckStatus)
	q.DeadLetter = e.OnDeadLetter
}

// HandleCreateOrder runs post-creation work: duplicate screening and the
// created event. The order itself is already persisted by the API.
func (e *Engine) HandleCreateOrder(ctx context.Context, j *jobs.Job) error {
	o, err := e.Store.GetOrder(ctx, j.Payload.TenantID, j.Payload.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return jobs.Terminal(err)
	}
	if err != nil {
		return err
	}
	payload := map[string]any{"order": o}
	if e.Detector != nil {
		dups, derr := e.Detector.Check(ctx, o.TenantID, model.OrderIn{
			CustomerPhone: o.CustomerPhone,
			Items:         o.Items,
		})
		if derr != nil {
			log.Printf("orders: duplicate check for %s: %v", o.ID, derr)
		}
		// the new order matches itself, advisory only beyond that
		var others []model.DuplicateCandidate
		for _, d := range dups {
			if d.OrderID != o.ID {
				others = append(others, d)
			}
		}
		if len(others) > 0 {
			payload["possibleDuplicates"] = others
		}
	}
	e.emit(ctx, o.TenantID, EventOrderCreated, payload)
	return nil
}

// HandleUpdateOrder reacts to order edits: emits the updated event and, when
// the edit made the order dispatchable, no extra work is needed here because
// the API enqueues the sync job directly.
func (e *Engine) HandleUpdateOrder(ctx context.Context, j *jobs.Job) error {
	o, err := e.Store.GetOrder(ctx, j.Payload.TenantID, j.Payload.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return jobs.Terminal(err)
	}
	if err != nil {
		return err
	}
	e.emit(ctx, o.TenantID, EventOrderUpdated, map[string]any{"order": o})
	return nil
}

// HandleSyncWithProvider performs one create-parcel attempt. Ambiguous
// failures return a retryable error and the queue re-runs us; the order
// number travels as the provider-side reference, so a retry after an unknown
// outcome cannot double-create.
func (e *Engine) HandleSyncWithProvider(ctx context.Context, j *jobs.Job) error {
	o, err := e.Store.GetOrder(ctx, j.Payload.TenantID, j.Payload.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return jobs.Terminal(err)
	}
	if err != nil {
		return err
	}
	if !o.Dispatchable() {
		// already synced, failed, or no longer eligible; nothing to do
		return nil
	}

	attempts := o.SyncAttempts + 1
	adapter, err := e.Registry.Resolve(ctx, o.TenantID, o.ProviderSlug)
	if errors.Is(err, providers.ErrNotConfigured) {
		e.failSync(ctx, &o, attempts, err.Error())
		return jobs.Terminal(err)
	}
	if err != nil {
		return err
	}

	start := e.now()
	res := adapter.CreateParcel(ctx, o)
	metrics.ProviderLatency.WithLabelValues(o.ProviderSlug, "create").
		Observe(float64(time.Since(start).Milliseconds()))
	metrics.ProviderCalls.WithLabelValues(o.ProviderSlug, "create", res.Outcome.String()).Inc()

	switch res.Outcome {
	case providers.OutcomeAccepted:
		now := e.now().UTC()
		synced := model.SyncSynced
		empty := ""
		updated, uerr := e.Store.UpdateOrder(ctx, o.TenantID, o.ID, model.OrderPatch{
			TrackingNumber: &res.TrackingNumber,
			SyncStatus:     &synced,
			SyncError:      &empty,
			SyncAttempts:   &attempts,
			LastSyncAt:     &now,
		})
		if uerr != nil {
			return uerr
		}
		_ = e.Store.AppendStatusEvent(ctx, o.TenantID, o.ID, model.StatusEvent{
			Status:    updated.Status,
			Timestamp: now,
			Provider:  o.ProviderSlug,
			Details:   "parcel created, tracking " + res.TrackingNumber,
		})
		metrics.SyncOutcomes.WithLabelValues(o.ProviderSlug, "synced").Inc()
		log.Printf("orders: synced %s with %s tracking=%s attempts=%d", o.ID, o.ProviderSlug, res.TrackingNumber, attempts)
		e.emit(ctx, o.TenantID, EventOrderSynced, map[string]any{"order": updated})
		return nil

	case providers.OutcomeRejected:
		// business refusal, keep the provider's message word for word
		e.failSync(ctx, &o, attempts, res.Message)
		metrics.SyncOutcomes.WithLabelValues(o.ProviderSlug, "rejected").Inc()
		return jobs.Terminal(fmt.Errorf("%s rejected order: %s", o.ProviderSlug, res.Message))

	default:
		_, _ = e.Store.UpdateOrder(ctx, o.TenantID, o.ID, model.OrderPatch{SyncAttempts: &attempts})
		if res.Err != nil && !providers.Retryable(res.Err) {
			e.failSync(ctx, &o, attempts, res.Err.Error())
			return jobs.Terminal(res.Err)
		}
		return res.Err
	}
}

// failSync marks the order failed with the given reason.
func (e *Engine) failSync(ctx context.Context, o *model.Order, attempts int, reason string) {
	failed := model.SyncFailed
	now := e.now().UTC()
	_, err := e.Store.UpdateOrder(ctx, o.TenantID, o.ID, model.OrderPatch{
		SyncStatus:   &failed,
		SyncError:    &reason,
		SyncAttempts: &attempts,
		LastSyncAt:   &now,
	})
	if err != nil {
		log.Printf("orders: mark sync failed %s: %v", o.ID, err)
	}
}

// HandleCheckStatus polls the provider for one order and applies the state
// machine. Every provider report lands in history; the order's own status
// only ever moves forward.
func (e *Engine) HandleCheckStatus(ctx context.Context, j *jobs.Job) error {
	return e.CheckOrderStatus(ctx, j.Payload.TenantID, j.Payload.OrderID)
}

// CheckOrderStatus is the poll core, shared by the check-status job and the
// reconciler's direct sweep. It reads the order fresh rather than trusting a
// caller snapshot: the reconciler's sweep list can be minutes old, and an
// order delivered in the meantime must not be polled again, let alone moved
// back by a stale report.
func (e *Engine) CheckOrderStatus(ctx context.Context, tenantID, orderID string) error {
	o, err := e.Store.GetOrder(ctx, tenantID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return jobs.Terminal(err)
	}
	if err != nil {
		return err
	}
	if !o.NeedsStatusCheck() {
		return nil
	}
	adapter, err := e.Registry.Resolve(ctx, o.TenantID, o.ProviderSlug)
	if errors.Is(err, providers.ErrNotConfigured) {
		return jobs.Terminal(err)
	}
	if err != nil {
		return err
	}

	start := e.now()
	res := adapter.CheckStatus(ctx, o.TrackingNumber)
	metrics.ProviderLatency.WithLabelValues(o.ProviderSlug, "status").
		Observe(float64(time.Since(start).Milliseconds()))

	now := e.now().UTC()
	if res.Err != nil {
		metrics.ProviderCalls.WithLabelValues(o.ProviderSlug, "status", "error").Inc()
		_, _ = e.Store.UpdateOrder(ctx, o.TenantID, o.ID, model.OrderPatch{LastStatusCheck: &now})
		if !providers.Retryable(res.Err) {
			return jobs.Terminal(res.Err)
		}
		return res.Err
	}
	metrics.ProviderCalls.WithLabelValues(o.ProviderSlug, "status", "ok").Inc()

	ev := model.StatusEvent{
		Status:    o.Status,
		Native:    res.Native,
		Timestamp: now,
		Provider:  o.ProviderSlug,
	}
	patch := model.OrderPatch{LastStatusCheck: &now}
	advanced := false
	if res.Mapped {
		ev.Status = res.Status
		if model.Advances(o.Status, res.Status) {
			st := res.Status
			patch.Status = &st
			advanced = true
		}
	} else if res.Native != "" {
		ev.Details = "unrecognized provider status"
	}

	updated, uerr := e.Store.UpdateOrder(ctx, o.TenantID, o.ID, patch)
	if uerr != nil {
		return uerr
	}
	if aerr := e.Store.AppendStatusEvent(ctx, o.TenantID, o.ID, ev); aerr != nil {
		log.Printf("orders: append history %s: %v", o.ID, aerr)
	}
	if advanced {
		log.Printf("orders: %s status %s -> %s (%s: %q)", o.ID, o.Status, res.Status, o.ProviderSlug, res.Native)
		e.emit(ctx, o.TenantID, EventStatusChanged, map[string]any{
			"order": updated,
			"from":  o.Status,
			"to":    res.Status,
		})
		if res.Status == model.StatusDelivered {
			e.emit(ctx, o.TenantID, EventOrderDelivered, map[string]any{"order": updated})
		}
	}
	return nil
}

// OnDeadLetter records jobs that exhausted their retries so an operator can
// requeue them after fixing the cause.
func (e *Engine) OnDeadLetter(ctx context.Context, j *jobs.Job, cause error) {
	metrics.DeadLetters.WithLabelValues(string(j.Type)).Inc()
	log.Printf("orders: dead letter %s order=%s after %d attempts: %v", j.Type, j.Payload.OrderID, j.Attempts, cause)

	if j.Type == jobs.TypeSyncWithProvider {
		o, err := e.Store.GetOrder(ctx, j.Payload.TenantID, j.Payload.OrderID)
		if err == nil && o.SyncStatus != model.SyncFailed {
			e.failSync(ctx, &o, o.SyncAttempts, cause.Error())
		}
	}
	_, err := e.Store.RecordSyncFailure(ctx, model.SyncFailure{
		TenantID:  j.Payload.TenantID,
		OrderID:   j.Payload.OrderID,
		JobType:   string(j.Type),
		Provider:  j.Payload.Provider,
		Attempts:  j.Attempts,
		LastError: cause.Error(),
		FailedAt:  e.now().UTC(),
	})
	if err != nil {
		log.Printf("orders: record sync failure for %s: %v", j.Payload.OrderID, err)
	}
	e.emit(ctx, j.Payload.TenantID, EventOrderSyncFailed, map[string]any{
		"orderId": j.Payload.OrderID,
		"jobType": string(j.Type),
		"error":   cause.Error(),
	})
}
