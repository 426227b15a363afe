package model

import "time"

// Core domain types for order/provider synchronization.

// Status is the canonical order status shared by all providers.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
	StatusRefunded   Status = "refunded"
)

// ConfirmationStatus tracks the human/IVR confirmation step, independent of shipment.
type ConfirmationStatus string

const (
	ConfirmPending           ConfirmationStatus = "pending"
	ConfirmConfirmed         ConfirmationStatus = "confirmed"
	ConfirmRejected          ConfirmationStatus = "rejected"
	ConfirmNoResponse        ConfirmationStatus = "no_response"
	ConfirmCallbackRequested ConfirmationStatus = "callback_requested"
)

// SyncStatus tracks the create-parcel handoff independently of the business status.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

type OrderItem struct {
	ProductID   string  `json:"productId,omitempty"`
	ProductName string  `json:"productName"`
	ProductSKU  string  `json:"productSku,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice,omitempty"`
	TotalPrice  float64 `json:"totalPrice,omitempty"`
}

// StatusEvent is one append-only entry in an order's status history.
// Entries are never mutated or removed once written.
type StatusEvent struct {
	Status    Status    `json:"status"`
	Native    string    `json:"native,omitempty"` // provider's untranslated status, if any
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider,omitempty"`
	Details   string    `json:"details,omitempty"`
}

type Order struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	OrderNumber string `json:"orderNumber"`

	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CityName      string `json:"cityName,omitempty"`
	CityCode      string `json:"cityCode,omitempty"` // provider zone/district id where required
	Address       string `json:"address,omitempty"`

	Items         []OrderItem `json:"items,omitempty"`
	TotalAmount   float64     `json:"totalAmount"`
	TotalWeightKg float64     `json:"totalWeightKg,omitempty"`
	DeliveryNotes string      `json:"deliveryNotes,omitempty"`

	Status             Status             `json:"status"`
	ConfirmationStatus ConfirmationStatus `json:"confirmationStatus"`
	SyncStatus         SyncStatus         `json:"syncStatus"`

	ProviderSlug   string        `json:"providerSlug,omitempty"`
	TrackingNumber string        `json:"trackingNumber,omitempty"`
	StatusHistory  []StatusEvent `json:"statusHistory,omitempty"`

	SyncError       string     `json:"syncError,omitempty"`
	SyncAttempts    int        `json:"syncAttempts"`
	LastSyncAt      *time.Time `json:"lastSyncAt,omitempty"`
	LastStatusCheck *time.Time `json:"lastStatusCheck,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	ShippedAt   *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// OrderIn is the creation payload accepted from the ingestion path.
type OrderIn struct {
	CustomerName  string      `json:"customerName"`
	CustomerPhone string      `json:"customerPhone"`
	CustomerEmail string      `json:"customerEmail,omitempty"`
	CityName      string      `json:"cityName,omitempty"`
	CityCode      string      `json:"cityCode,omitempty"`
	Address       string      `json:"address,omitempty"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"totalAmount"`
	TotalWeightKg float64     `json:"totalWeightKg,omitempty"`
	DeliveryNotes string      `json:"deliveryNotes,omitempty"`
	ProviderSlug  string      `json:"providerSlug,omitempty"`
}

// OrderPatch carries partial updates; nil fields are left untouched.
type OrderPatch struct {
	Status             *Status             `json:"status,omitempty"`
	ConfirmationStatus *ConfirmationStatus `json:"confirmationStatus,omitempty"`
	SyncStatus         *SyncStatus         `json:"syncStatus,omitempty"`
	ProviderSlug       *string             `json:"providerSlug,omitempty"`
	TrackingNumber     *string             `json:"trackingNumber,omitempty"`
	SyncError          *string             `json:"syncError,omitempty"`
	SyncAttempts       *int                `json:"syncAttempts,omitempty"`
	LastSyncAt         *time.Time          `json:"lastSyncAt,omitempty"`
	LastStatusCheck    *time.Time          `json:"lastStatusCheck,omitempty"`
	DeliveryNotes      *string             `json:"deliveryNotes,omitempty"`
}

// ProviderConfig is the per-tenant configuration for one delivery provider.
// Credentials stays encrypted at rest; only the adapter registry decrypts it.
type ProviderConfig struct {
	TenantID    string    `json:"tenantId"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name,omitempty"`
	APIType     string    `json:"apiType,omitempty"` // rest_json, form, session, html
	BaseURL     string    `json:"baseUrl"`
	Credentials string    `json:"-"` // encrypted bundle, never serialized
	IsEnabled   bool      `json:"isEnabled"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SyncFailure is a dead-lettered sync job, kept for operator review.
type SyncFailure struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	OrderID   string    `json:"orderId"`
	JobType   string    `json:"jobType"`
	Provider  string    `json:"provider,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
	Requeued  bool      `json:"requeued"`
}

// Subscription registers an outbound webhook endpoint for order events.
type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// DuplicateCandidate is an advisory match from the duplicate detector.
type DuplicateCandidate struct {
	OrderID      string    `json:"orderId"`
	OrderNumber  string    `json:"orderNumber"`
	Status       Status    `json:"status"`
	TotalAmount  float64   `json:"totalAmount"`
	Items        []string  `json:"items,omitempty"`
	ItemsOverlap bool      `json:"itemsOverlap"`
	CreatedAt    time.Time `json:"createdAt"`
}
