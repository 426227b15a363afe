package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"parcelhub/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies *.sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		raw, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(raw)); err != nil {
			return fmt.Errorf("migration %s: %w", f, err)
		}
	}
	return nil
}

const orderCols = `id, tenant_id, order_number, customer_name, customer_phone, customer_email,
	city_name, city_code, address, items, total_amount, total_weight_kg, delivery_notes,
	status, confirmation_status, sync_status, provider_slug, tracking_number,
	sync_error, sync_attempts, last_sync_at, last_status_check,
	created_at, updated_at, confirmed_at, shipped_at, delivered_at, cancelled_at`

func scanOrder(row interface{ Scan(...any) error }) (model.Order, error) {
	var o model.Order
	var items []byte
	var email, city, code, addr, notes, slug, tracking, syncErr sql.NullString
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &email,
		&city, &code, &addr, &items, &o.TotalAmount, &o.TotalWeightKg, &notes,
		&o.Status, &o.ConfirmationStatus, &o.SyncStatus, &slug, &tracking,
		&syncErr, &o.SyncAttempts, &o.LastSyncAt, &o.LastStatusCheck,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt)
	if err != nil {
		return o, err
	}
	o.CustomerEmail, o.CityName, o.CityCode = email.String, city.String, code.String
	o.Address, o.DeliveryNotes = addr.String, notes.String
	o.ProviderSlug, o.TrackingNumber, o.SyncError = slug.String, tracking.String, syncErr.String
	if len(items) > 0 {
		_ = json.Unmarshal(items, &o.Items)
	}
	return o, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, tenantID string, in model.OrderIn) (model.Order, error) {
	if tenantID == "" {
		return model.Order{}, fmt.Errorf("tenantID required")
	}
	id := uuid.NewString()
	day := time.Now().UTC().Format("20060102")
	items, _ := json.Marshal(in.Items)
	// date-prefixed per-tenant sequence; the counter row is upserted atomically
	var seq int
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO order_counters (tenant_id, day, seq) VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, day) DO UPDATE SET seq = order_counters.seq + 1
		RETURNING seq`, tenantID, day).Scan(&seq)
	if err != nil {
		return model.Order{}, err
	}
	num := fmt.Sprintf("ORD-%s-%04d", day, seq)
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, tenant_id, order_number, customer_name, customer_phone, customer_email,
			city_name, city_code, address, items, total_amount, total_weight_kg, delivery_notes,
			status, confirmation_status, sync_status, provider_slug)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,'pending','pending','pending',NULLIF($14,''))
		RETURNING `+orderCols,
		id, tenantID, num, in.CustomerName, in.CustomerPhone, in.CustomerEmail,
		in.CityName, in.CityCode, in.Address, items, in.TotalAmount, in.TotalWeightKg,
		in.DeliveryNotes, in.ProviderSlug)
	return scanOrder(row)
}

func (p *Postgres) GetOrder(ctx context.Context, tenantID, orderID string) (model.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 AND tenant_id=$2`, orderID, tenantID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.StatusHistory, err = p.history(ctx, orderID)
	return o, err
}

func (p *Postgres) GetOrderByNumber(ctx context.Context, tenantID, orderNumber string) (model.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE tenant_id=$1 AND order_number=$2`, tenantID, orderNumber)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.StatusHistory, err = p.history(ctx, o.ID)
	return o, err
}

func (p *Postgres) history(ctx context.Context, orderID string) ([]model.StatusEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT status, native_status, provider, details, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY created_at, seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StatusEvent
	for rows.Next() {
		var ev model.StatusEvent
		var native, prov, det sql.NullString
		if err := rows.Scan(&ev.Status, &native, &prov, &det, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Native, ev.Provider, ev.Details = native.String, prov.String, det.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Order, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + orderCols + ` FROM orders WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		q += fmt.Sprintf(" AND status=$%d", len(args)+1)
		args = append(args, status)
	}
	if cursor != "" {
		q += fmt.Sprintf(" AND created_at < (SELECT created_at FROM orders WHERE id=$%d)", len(args)+1)
		args = append(args, cursor)
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) UpdateOrder(ctx context.Context, tenantID, orderID string, patch model.OrderPatch) (model.Order, error) {
	sets := []string{"updated_at=now()"}
	args := []any{orderID, tenantID}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if patch.Status != nil {
		add("status=$%d", string(*patch.Status))
		switch *patch.Status {
		case model.StatusConfirmed:
			sets = append(sets, "confirmed_at=COALESCE(confirmed_at, now())")
		case model.StatusShipped:
			sets = append(sets, "shipped_at=COALESCE(shipped_at, now())")
		case model.StatusDelivered:
			sets = append(sets, "delivered_at=COALESCE(delivered_at, now())")
		case model.StatusCancelled:
			sets = append(sets, "cancelled_at=COALESCE(cancelled_at, now())")
		}
	}
	if patch.ConfirmationStatus != nil {
		add("confirmation_status=$%d", string(*patch.ConfirmationStatus))
	}
	if patch.SyncStatus != nil {
		add("sync_status=$%d", string(*patch.SyncStatus))
	}
	if patch.ProviderSlug != nil {
		add("provider_slug=$%d", *patch.ProviderSlug)
	}
	if patch.TrackingNumber != nil {
		add("tracking_number=$%d", *patch.TrackingNumber)
	}
	if patch.SyncError != nil {
		add("sync_error=$%d", *patch.SyncError)
	}
	if patch.SyncAttempts != nil {
		add("sync_attempts=$%d", *patch.SyncAttempts)
	}
	if patch.LastSyncAt != nil {
		add("last_sync_at=$%d", *patch.LastSyncAt)
	}
	if patch.LastStatusCheck != nil {
		add("last_status_check=$%d", *patch.LastStatusCheck)
	}
	if patch.DeliveryNotes != nil {
		add("delivery_notes=$%d", *patch.DeliveryNotes)
	}
	q := `UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 AND tenant_id=$2 RETURNING ` + orderCols
	o, err := scanOrder(p.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (p *Postgres) AppendStatusEvent(ctx context.Context, tenantID, orderID string, ev model.StatusEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, tenant_id, status, native_status, provider, details, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7 WHERE EXISTS (SELECT 1 FROM orders WHERE id=$1 AND tenant_id=$2)`,
		orderID, tenantID, string(ev.Status), ev.Native, ev.Provider, ev.Details, ts)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FindPendingStatusUpdates(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE tracking_number IS NOT NULL AND tracking_number <> ''
		  AND status NOT IN ('delivered','cancelled','returned','refunded')
		ORDER BY COALESCE(last_status_check, 'epoch'::timestamptz) ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) FindOrdersByPhoneSince(ctx context.Context, tenantID, phone string, since time.Time) ([]model.Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE tenant_id=$1 AND customer_phone=$2 AND created_at >= $3`, tenantID, phone, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertProviderConfig(ctx context.Context, cfg model.ProviderConfig) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO provider_configs (tenant_id, slug, name, api_type, base_url, credentials, is_enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (tenant_id, slug) DO UPDATE SET
			name=EXCLUDED.name, api_type=EXCLUDED.api_type, base_url=EXCLUDED.base_url,
			credentials=EXCLUDED.credentials, is_enabled=EXCLUDED.is_enabled, updated_at=now()`,
		cfg.TenantID, cfg.Slug, cfg.Name, cfg.APIType, cfg.BaseURL, cfg.Credentials, cfg.IsEnabled)
	return err
}

func (p *Postgres) GetProviderConfig(ctx context.Context, tenantID, slug string) (model.ProviderConfig, error) {
	var cfg model.ProviderConfig
	err := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, slug, COALESCE(name,''), COALESCE(api_type,''), base_url, credentials, is_enabled, updated_at
		FROM provider_configs WHERE tenant_id=$1 AND slug=$2`, tenantID, slug).
		Scan(&cfg.TenantID, &cfg.Slug, &cfg.Name, &cfg.APIType, &cfg.BaseURL, &cfg.Credentials, &cfg.IsEnabled, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, ErrNotFound
	}
	return cfg, err
}

func (p *Postgres) ListProviderConfigs(ctx context.Context, tenantID string) ([]model.ProviderConfig, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tenant_id, slug, COALESCE(name,''), COALESCE(api_type,''), base_url, credentials, is_enabled, updated_at
		FROM provider_configs WHERE tenant_id=$1 ORDER BY slug`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ProviderConfig
	for rows.Next() {
		var cfg model.ProviderConfig
		if err := rows.Scan(&cfg.TenantID, &cfg.Slug, &cfg.Name, &cfg.APIType, &cfg.BaseURL, &cfg.Credentials, &cfg.IsEnabled, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordSyncFailure(ctx context.Context, rec model.SyncFailure) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sync_failures (id, tenant_id, order_id, job_type, provider, attempts, last_error, failed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())`,
		rec.ID, rec.TenantID, rec.OrderID, rec.JobType, rec.Provider, rec.Attempts, rec.LastError)
	return rec.ID, err
}

func (p *Postgres) ListSyncFailures(ctx context.Context, tenantID, cursor string, limit int) ([]model.SyncFailure, string, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, tenant_id, order_id, job_type, COALESCE(provider,''), attempts, last_error, failed_at, requeued
		  FROM sync_failures WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		q += ` AND failed_at < (SELECT failed_at FROM sync_failures WHERE id=$2)`
		args = append(args, cursor)
	}
	q += fmt.Sprintf(" ORDER BY failed_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.SyncFailure
	for rows.Next() {
		var f model.SyncFailure
		if err := rows.Scan(&f.ID, &f.TenantID, &f.OrderID, &f.JobType, &f.Provider, &f.Attempts, &f.LastError, &f.FailedAt, &f.Requeued); err != nil {
			return nil, "", err
		}
		out = append(out, f)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) MarkSyncFailureRequeued(ctx context.Context, tenantID, id string) (model.SyncFailure, error) {
	var f model.SyncFailure
	err := p.db.QueryRowContext(ctx, `
		UPDATE sync_failures SET requeued=true WHERE id=$1 AND tenant_id=$2
		RETURNING id, tenant_id, order_id, job_type, COALESCE(provider,''), attempts, last_error, failed_at, requeued`,
		id, tenantID).Scan(&f.ID, &f.TenantID, &f.OrderID, &f.JobType, &f.Provider, &f.Attempts, &f.LastError, &f.FailedAt, &f.Requeued)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

func (p *Postgres) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	events, _ := json.Marshal(sub.Events)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		sub.ID, sub.TenantID, sub.URL, events, sub.Secret)
	return sub, err
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	subs, err := p.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []model.Subscription
	for _, s := range subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, next_attempt_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,'pending',now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries
		WHERE status='pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, last_error=$2, response_code=$3 WHERE id=$1`,
			id, lastError, responseCode)
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET attempts=attempts+1, next_attempt_at=$2, last_error=$3, response_code=$4 WHERE id=$1`,
		id, nextAttemptAt, lastError, responseCode)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3 WHERE id=$1`,
		id, lastError, responseCode)
	return err
}
