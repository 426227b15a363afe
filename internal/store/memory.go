package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"parcelhub/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	orders     map[string]*model.Order         // id -> order
	byTen      map[string][]string             // tenant -> order ids, insertion order
	seq        map[string]int                  // tenant|yyyymmdd -> last order number seq
	cfgs       map[string]model.ProviderConfig // tenant|slug -> provider config
	subs       map[string][]model.Subscription // tenant -> subscriptions
	fails      map[string]*model.SyncFailure   // id -> dead-lettered job
	failsByTen map[string][]string             // tenant -> failure ids

	deliveries map[string]*memDelivery // id -> delivery state

	now func() time.Time // overridable in tests
}

type memDelivery struct {
	WebhookDelivery
	nextAttemptAt time.Time
	lastError     string
	responseCode  int
}

func NewMemory() *Memory {
	return &Memory{
		orders:     map[string]*model.Order{},
		byTen:      map[string][]string{},
		seq:        map[string]int{},
		cfgs:       map[string]model.ProviderConfig{},
		subs:       map[string][]model.Subscription{},
		fails:      map[string]*model.SyncFailure{},
		failsByTen: map[string][]string{},
		deliveries: map[string]*memDelivery{},
		now:        time.Now,
	}
}

// SetClock overrides the store clock. Tests only.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) CreateOrder(ctx context.Context, tenantID string, in model.OrderIn) (model.Order, error) {
	if tenantID == "" {
		return model.Order{}, fmt.Errorf("tenantID required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().UTC()
	day := ts.Format("20060102")
	key := tenantID + "|" + day
	m.seq[key]++
	o := &model.Order{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		OrderNumber:        fmt.Sprintf("ORD-%s-%04d", day, m.seq[key]),
		CustomerName:       in.CustomerName,
		CustomerPhone:      in.CustomerPhone,
		CustomerEmail:      in.CustomerEmail,
		CityName:           in.CityName,
		CityCode:           in.CityCode,
		Address:            in.Address,
		Items:              in.Items,
		TotalAmount:        in.TotalAmount,
		TotalWeightKg:      in.TotalWeightKg,
		DeliveryNotes:      in.DeliveryNotes,
		ProviderSlug:       in.ProviderSlug,
		Status:             model.StatusPending,
		ConfirmationStatus: model.ConfirmPending,
		SyncStatus:         model.SyncPending,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
	m.orders[o.ID] = o
	m.byTen[tenantID] = append(m.byTen[tenantID], o.ID)
	return cloneOrder(o), nil
}

func (m *Memory) GetOrder(ctx context.Context, tenantID, orderID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return model.Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) GetOrderByNumber(ctx context.Context, tenantID, orderNumber string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byTen[tenantID] {
		if o := m.orders[id]; o.OrderNumber == orderNumber {
			return cloneOrder(o), nil
		}
	}
	return model.Order{}, ErrNotFound
}

func (m *Memory) ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Order, string, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTen[tenantID]
	start := 0
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
			start = n
		}
	}
	var out []model.Order
	i := start
	for ; i < len(ids) && len(out) < limit; i++ {
		o := m.orders[ids[i]]
		if status != "" && string(o.Status) != status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	next := ""
	if i < len(ids) {
		next = strconv.Itoa(i)
	}
	return out, next, nil
}

func (m *Memory) UpdateOrder(ctx context.Context, tenantID, orderID string, patch model.OrderPatch) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return model.Order{}, ErrNotFound
	}
	applyPatch(o, patch, m.now().UTC())
	return cloneOrder(o), nil
}

func (m *Memory) AppendStatusEvent(ctx context.Context, tenantID, orderID string, ev model.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return ErrNotFound
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now().UTC()
	}
	o.StatusHistory = append(o.StatusHistory, ev)
	return nil
}

func (m *Memory) FindPendingStatusUpdates(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 1000
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.NeedsStatusCheck() {
			out = append(out, cloneOrder(o))
		}
		if len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindOrdersByPhoneSince(ctx context.Context, tenantID, phone string, since time.Time) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, id := range m.byTen[tenantID] {
		o := m.orders[id]
		if o.CustomerPhone != phone || o.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (m *Memory) UpsertProviderConfig(ctx context.Context, cfg model.ProviderConfig) error {
	if cfg.TenantID == "" || cfg.Slug == "" {
		return fmt.Errorf("tenantId and slug required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.UpdatedAt = m.now().UTC()
	m.cfgs[cfg.TenantID+"|"+cfg.Slug] = cfg
	return nil
}

func (m *Memory) GetProviderConfig(ctx context.Context, tenantID, slug string) (model.ProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.cfgs[tenantID+"|"+slug]
	if !ok {
		return model.ProviderConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) ListProviderConfigs(ctx context.Context, tenantID string) ([]model.ProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProviderConfig
	for k, cfg := range m.cfgs {
		if strings.HasPrefix(k, tenantID+"|") {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *Memory) RecordSyncFailure(ctx context.Context, rec model.SyncFailure) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FailedAt.IsZero() {
		rec.FailedAt = m.now().UTC()
	}
	cp := rec
	m.fails[rec.ID] = &cp
	m.failsByTen[rec.TenantID] = append(m.failsByTen[rec.TenantID], rec.ID)
	return rec.ID, nil
}

func (m *Memory) ListSyncFailures(ctx context.Context, tenantID, cursor string, limit int) ([]model.SyncFailure, string, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.failsByTen[tenantID]
	start := 0
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
			start = n
		}
	}
	var out []model.SyncFailure
	i := start
	for ; i < len(ids) && len(out) < limit; i++ {
		out = append(out, *m.fails[ids[i]])
	}
	next := ""
	if i < len(ids) {
		next = strconv.Itoa(i)
	}
	return out, next, nil
}

func (m *Memory) MarkSyncFailureRequeued(ctx context.Context, tenantID, id string) (model.SyncFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fails[id]
	if !ok || f.TenantID != tenantID {
		return model.SyncFailure{}, ErrNotFound
	}
	f.Requeued = true
	return *f, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	m.subs[sub.TenantID] = append(m.subs[sub.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription(nil), m.subs[tenantID]...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	for i, s := range list {
		if s.ID == id {
			m.subs[tenantID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret,
			Payload: append([]byte(nil), payload...), Status: "pending",
		},
		nextAttemptAt: m.now(),
	}
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []WebhookDelivery
	for _, d := range m.deliveries {
		if d.Status == "pending" && !d.nextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.lastError = lastError
	d.responseCode = responseCode
	if success {
		d.Status = "delivered"
	} else if nextAttemptAt != nil {
		d.nextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.lastError = lastError
	d.responseCode = responseCode
	return nil
}

// applyPatch mutates o under the store lock, maintaining status timestamps the
// way the ingestion path expects (confirmedAt/shippedAt/... set once).
func applyPatch(o *model.Order, p model.OrderPatch, ts time.Time) {
	if p.Status != nil && *p.Status != o.Status {
		o.Status = *p.Status
		switch *p.Status {
		case model.StatusConfirmed:
			if o.ConfirmedAt == nil {
				t := ts
				o.ConfirmedAt = &t
			}
		case model.StatusShipped:
			if o.ShippedAt == nil {
				t := ts
				o.ShippedAt = &t
			}
		case model.StatusDelivered:
			if o.DeliveredAt == nil {
				t := ts
				o.DeliveredAt = &t
			}
		case model.StatusCancelled:
			if o.CancelledAt == nil {
				t := ts
				o.CancelledAt = &t
			}
		}
	}
	if p.ConfirmationStatus != nil {
		o.ConfirmationStatus = *p.ConfirmationStatus
	}
	if p.SyncStatus != nil {
		o.SyncStatus = *p.SyncStatus
	}
	if p.ProviderSlug != nil {
		o.ProviderSlug = *p.ProviderSlug
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = *p.TrackingNumber
	}
	if p.SyncError != nil {
		o.SyncError = *p.SyncError
	}
	if p.SyncAttempts != nil {
		o.SyncAttempts = *p.SyncAttempts
	}
	if p.LastSyncAt != nil {
		o.LastSyncAt = p.LastSyncAt
	}
	if p.LastStatusCheck != nil {
		o.LastStatusCheck = p.LastStatusCheck
	}
	if p.DeliveryNotes != nil {
		o.DeliveryNotes = *p.DeliveryNotes
	}
	o.UpdatedAt = ts
}

func cloneOrder(o *model.Order) model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]model.StatusEvent(nil), o.StatusHistory...)
	return cp
}
