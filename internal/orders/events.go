// Package orders holds the synchronization engine: the job handlers that hand
// orders to delivery providers, the status reconciler, and the duplicate
// detector.
package orders

import "context"

// Event types emitted on order lifecycle changes.
const (
	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventOrderSynced     = "order.synced"
	EventOrderSyncFailed = "order.sync_failed"
	EventStatusChanged   = "order.status_changed"
	EventOrderDelivered  = "order.delivered"
)

// Events receives order lifecycle notifications. The webhook publisher and the
// live feed broker both sit behind this.
type Events interface {
	Emit(ctx context.Context, tenantID, eventType string, data any)
}

// MultiEvents fans one emit out to several sinks.
type MultiEvents []Events

func (m MultiEvents) Emit(ctx context.Context, tenantID, eventType string, data any) {
	for _, e := range m {
		e.Emit(ctx, tenantID, eventType, data)
	}
}
