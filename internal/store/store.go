package store

import (
	"context"
	"errors"
	"time"

	"parcelhub/internal/model"
)

// Store is the persistence interface used by the API server and the sync engine.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, tenantID string, in model.OrderIn) (model.Order, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (model.Order, error)
	// GetOrderByNumber resolves the customer-facing order number; inbound
	// provider callbacks only know that reference.
	GetOrderByNumber(ctx context.Context, tenantID, orderNumber string) (model.Order, error)
	ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) (items []model.Order, nextCursor string, err error)
	// UpdateOrder applies a partial patch and maintains status timestamps.
	UpdateOrder(ctx context.Context, tenantID, orderID string, patch model.OrderPatch) (model.Order, error)
	// AppendStatusEvent records one history entry. History is append-only.
	AppendStatusEvent(ctx context.Context, tenantID, orderID string, ev model.StatusEvent) error

	// Engine selections
	FindPendingStatusUpdates(ctx context.Context, limit int) ([]model.Order, error)
	FindOrdersByPhoneSince(ctx context.Context, tenantID, phone string, since time.Time) ([]model.Order, error)

	// Provider configuration (per tenant)
	UpsertProviderConfig(ctx context.Context, cfg model.ProviderConfig) error
	GetProviderConfig(ctx context.Context, tenantID, slug string) (model.ProviderConfig, error)
	ListProviderConfigs(ctx context.Context, tenantID string) ([]model.ProviderConfig, error)

	// Dead-lettered sync jobs
	RecordSyncFailure(ctx context.Context, rec model.SyncFailure) (string, error)
	ListSyncFailures(ctx context.Context, tenantID, cursor string, limit int) ([]model.SyncFailure, string, error)
	MarkSyncFailureRequeued(ctx context.Context, tenantID, id string) (model.SyncFailure, error)

	// Webhook subscriptions & deliveries (audit/automation fan-out)
	CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error
}

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
)
