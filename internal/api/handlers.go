package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"parcelhub/internal/ingest"
	"parcelhub/internal/jobs"
	"parcelhub/internal/model"
	"parcelhub/internal/orders"
)

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanWrite() { writeProblem(w, 403, "Forbidden", "operator or admin required", r.URL.Path); return }
		var in model.OrderIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateOrderIn(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
			return
		}
		in.CustomerPhone = orders.NormalizePhone(in.CustomerPhone)

		// advisory screen before the write so the response can carry it
		dups, _ := s.Detector.Check(r.Context(), p.Tenant, in)

		o, err := s.Store.CreateOrder(r.Context(), p.Tenant, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create order failed", err.Error(), r.URL.Path)
			return
		}
		s.Queue.Submit(jobs.TypeCreateOrder, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID})
		if o.Dispatchable() {
			s.Queue.Submit(jobs.TypeSyncWithProvider, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID, Provider: o.ProviderSlug})
		}
		resp := map[string]any{"order": o}
		if len(dups) > 0 { resp["possibleDuplicates"] = dups }
		writeJSON(w, http.StatusCreated, resp)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
		items, next, err := s.Store.ListOrders(r.Context(), tenant, status, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// orderUpdate is the accepted PATCH body; all fields optional.
type orderUpdate struct {
	Status             *model.Status             `json:"status"`
	ConfirmationStatus *model.ConfirmationStatus `json:"confirmationStatus"`
	ProviderSlug       *string                   `json:"providerSlug"`
	DeliveryNotes      *string                   `json:"deliveryNotes"`
}

// OrderByIDHandler handles /v1/orders/{id} plus the /sync and /check-status actions.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	p := s.getPrincipal(r)

	if id == "import" && len(parts) == 1 {
		s.OrdersImportHandler(w, r)
		return
	}
	if len(parts) > 1 {
		switch parts[1] {
		case "sync":
			s.orderSync(w, r, p, id)
		case "check-status":
			s.orderCheckStatus(w, r, p, id)
		case "history":
			o, err := s.Store.GetOrder(r.Context(), p.Tenant, id)
			if err != nil { writeProblem(w, 404, "Order not found", err.Error(), r.URL.Path); return }
			writeJSON(w, 200, map[string]any{"items": o.StatusHistory})
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		o, err := s.Store.GetOrder(r.Context(), p.Tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodPatch:
		if !p.CanWrite() { writeProblem(w, 403, "Forbidden", "operator or admin required", r.URL.Path); return }
		var upd orderUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		s.applyOrderUpdate(w, r, p, id, upd)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) applyOrderUpdate(w http.ResponseWriter, r *http.Request, p Principal, id string, upd orderUpdate) {
	cur, err := s.Store.GetOrder(r.Context(), p.Tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
		return
	}
	patch := model.OrderPatch{
		ProviderSlug:  upd.ProviderSlug,
		DeliveryNotes: upd.DeliveryNotes,
	}
	if upd.Status != nil {
		if !model.ValidStatus(*upd.Status) {
			writeProblem(w, http.StatusBadRequest, "Invalid status", string(*upd.Status), r.URL.Path)
			return
		}
		if *upd.Status == model.StatusCancelled {
			if !model.CanCancel(cur.Status) {
				writeProblem(w, http.StatusConflict, "Cannot cancel", fmt.Sprintf("order is %s", cur.Status), r.URL.Path)
				return
			}
		} else if !model.Advances(cur.Status, *upd.Status) {
			writeProblem(w, http.StatusConflict, "Invalid transition",
				fmt.Sprintf("%s -> %s", cur.Status, *upd.Status), r.URL.Path)
			return
		}
		patch.Status = upd.Status
	}
	if upd.ConfirmationStatus != nil {
		if !model.ValidConfirmation(*upd.ConfirmationStatus) {
			writeProblem(w, http.StatusBadRequest, "Invalid confirmation status", string(*upd.ConfirmationStatus), r.URL.Path)
			return
		}
		patch.ConfirmationStatus = upd.ConfirmationStatus
	}
	o, err := s.Store.UpdateOrder(r.Context(), p.Tenant, id, patch)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Update order failed", err.Error(), r.URL.Path)
		return
	}
	if patch.Status != nil {
		_ = s.Store.AppendStatusEvent(r.Context(), p.Tenant, id, model.StatusEvent{
			Status:    *patch.Status,
			Timestamp: time.Now().UTC(),
			Details:   "manual update",
		})
	}
	s.Queue.Submit(jobs.TypeUpdateOrder, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID})
	// a confirmation flip is the dispatch trigger
	if o.Dispatchable() {
		s.Queue.Submit(jobs.TypeSyncWithProvider, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID, Provider: o.ProviderSlug})
	}
	writeJSON(w, http.StatusOK, o)
}

// orderSync handles POST /v1/orders/{id}/sync: manual dispatch, including
// operator retry after a failed sync.
func (s *Server) orderSync(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
	if !p.CanWrite() { writeProblem(w, 403, "Forbidden", "operator or admin required", r.URL.Path); return }
	o, err := s.Store.GetOrder(r.Context(), p.Tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
		return
	}
	if o.ProviderSlug == "" {
		writeProblem(w, http.StatusConflict, "No provider", "order has no provider assigned", r.URL.Path)
		return
	}
	if o.SyncStatus == model.SyncSynced {
		writeProblem(w, http.StatusConflict, "Already synced", "tracking "+o.TrackingNumber, r.URL.Path)
		return
	}
	if o.SyncStatus == model.SyncFailed {
		pending := model.SyncPending
		empty := ""
		if o, err = s.Store.UpdateOrder(r.Context(), p.Tenant, id, model.OrderPatch{
			SyncStatus: &pending,
			SyncError:  &empty,
		}); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Reset sync failed", err.Error(), r.URL.Path)
			return
		}
	}
	jobID, queued := s.Queue.Submit(jobs.TypeSyncWithProvider, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID, Provider: o.ProviderSlug})
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": jobID, "queued": queued})
}

func (s *Server) orderCheckStatus(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
	o, err := s.Store.GetOrder(r.Context(), p.Tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
		return
	}
	if !o.NeedsStatusCheck() {
		writeProblem(w, http.StatusConflict, "Not trackable", "no tracking number or already terminal", r.URL.Path)
		return
	}
	jobID, queued := s.Queue.Submit(jobs.TypeCheckStatus, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID, Provider: o.ProviderSlug})
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": jobID, "queued": queued})
}

// OrdersImportHandler handles POST /v1/orders/import: a CSV order export,
// one row per order. Bad rows are skipped and reported; good rows are created
// and queued like any other order.
func (s *Server) OrdersImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
	p := s.getPrincipal(r)
	if !p.CanWrite() { writeProblem(w, 403, "Forbidden", "operator or admin required", r.URL.Path); return }
	ins, bad, err := ingest.ParseOrders(r.Body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
		return
	}
	created := 0
	for i := range ins {
		in := ins[i]
		if verr := validateOrderIn(&in); verr != nil {
			bad = append(bad, ingest.RowError{Err: verr.Error()})
			continue
		}
		in.CustomerPhone = orders.NormalizePhone(in.CustomerPhone)
		o, cerr := s.Store.CreateOrder(r.Context(), p.Tenant, in)
		if cerr != nil {
			bad = append(bad, ingest.RowError{Err: cerr.Error()})
			continue
		}
		created++
		s.Queue.Submit(jobs.TypeCreateOrder, jobs.Payload{TenantID: p.Tenant, OrderID: o.ID})
	}
	resp := map[string]any{"created": created, "skipped": len(bad)}
	if len(bad) > 0 { resp["errors"] = bad }
	writeJSON(w, http.StatusAccepted, resp)
}

// providerUpsert is the POST /v1/providers body. Credentials are write-only:
// they are encrypted on receipt and never returned.
type providerUpsert struct {
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	APIType     string            `json:"apiType"`
	BaseURL     string            `json:"baseUrl"`
	Credentials map[string]string `json:"credentials"`
	IsEnabled   bool              `json:"isEnabled"`
}

// ProvidersHandler handles GET/POST /v1/providers
func (s *Server) ProvidersHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodGet:
		items, err := s.Store.ListProviderConfigs(r.Context(), p.Tenant)
		if err != nil { writeProblem(w, 500, "List providers failed", err.Error(), r.URL.Path); return }
		writeJSON(w, 200, map[string]any{"items": items})
	case http.MethodPost:
		if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
		var in providerUpsert
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.Slug == "" || in.BaseURL == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid provider", "slug and baseUrl are required", r.URL.Path)
			return
		}
		cfg := model.ProviderConfig{
			TenantID:  p.Tenant,
			Slug:      in.Slug,
			Name:      in.Name,
			APIType:   in.APIType,
			BaseURL:   in.BaseURL,
			IsEnabled: in.IsEnabled,
			UpdatedAt: time.Now().UTC(),
		}
		if len(in.Credentials) > 0 {
			raw, _ := json.Marshal(in.Credentials)
			enc, err := s.Registry.Keys.Encrypt(string(raw))
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Encrypt credentials failed", err.Error(), r.URL.Path)
				return
			}
			cfg.Credentials = enc
		} else {
			// keep previously stored credentials on a config-only update
			if prev, err := s.Store.GetProviderConfig(r.Context(), p.Tenant, in.Slug); err == nil {
				cfg.Credentials = prev.Credentials
			}
		}
		if err := s.Store.UpsertProviderConfig(r.Context(), cfg); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save provider failed", err.Error(), r.URL.Path)
			return
		}
		s.Registry.Invalidate(p.Tenant, in.Slug)
		writeJSON(w, http.StatusOK, cfg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ProviderBySlugHandler handles POST /v1/providers/{slug}/test
func (s *Server) ProviderBySlugHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/providers/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "test" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
	p := s.getPrincipal(r)
	if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
	if err := s.Registry.TestConnection(r.Context(), p.Tenant, parts[0]); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// QueuesHandler handles GET /v1/admin/queues
func (s *Server) QueuesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
	p := s.getPrincipal(r)
	if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
	writeJSON(w, http.StatusOK, map[string]any{"queues": s.Queue.StatsSnapshot()})
}

// SyncFailuresHandler handles GET /v1/admin/sync-failures and
// POST /v1/admin/sync-failures/{id}/requeue
func (s *Server) SyncFailuresHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
	if r.URL.Path == "/v1/admin/sync-failures" && r.Method == http.MethodGet {
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
		items, next, err := s.Store.ListSyncFailures(r.Context(), p.Tenant, cursor, limit)
		if err != nil { writeProblem(w, 500, "List sync failures failed", err.Error(), r.URL.Path); return }
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
		return
	}
	if strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/sync-failures/"), "/requeue")
		rec, err := s.Store.MarkSyncFailureRequeued(r.Context(), p.Tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Sync failure not found", err.Error(), r.URL.Path)
			return
		}
		// reopen the order for another attempt before resubmitting
		pending := model.SyncPending
		empty := ""
		_, _ = s.Store.UpdateOrder(r.Context(), p.Tenant, rec.OrderID, model.OrderPatch{
			SyncStatus: &pending,
			SyncError:  &empty,
		})
		jobID, queued := s.Queue.Submit(jobs.Type(rec.JobType), jobs.Payload{
			TenantID: p.Tenant, OrderID: rec.OrderID, Provider: rec.Provider,
		})
		writeJSON(w, http.StatusAccepted, map[string]any{"jobId": jobID, "queued": queued})
		return
	}
	writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
	switch r.Method {
	case http.MethodPost:
		var sub model.Subscription
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscription(&sub); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub.TenantID = p.Tenant
		created, err := s.Store.CreateSubscription(r.Context(), sub)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context(), p.Tenant)
		if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
		writeJSON(w, 200, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete { w.WriteHeader(http.StatusMethodNotAllowed); return }
	p := s.getPrincipal(r)
	if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// providerCallback is the inbound push body. Providers reference the order by
// the number we sent at creation; the push is only a hint and a status check
// job fetches the authoritative state.
type providerCallback struct {
	Reference      string `json:"reference"`
	OrderNumber    string `json:"orderNumber"`
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
}

// ProviderCallbackHandler handles POST /v1/webhooks/{provider}
func (s *Server) ProviderCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
	slug := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
	if slug == "" || strings.Contains(slug, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	var cb providerCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	ref := cb.Reference
	if ref == "" { ref = cb.OrderNumber }
	if ref == "" {
		writeProblem(w, http.StatusBadRequest, "Missing reference", "reference or orderNumber required", r.URL.Path)
		return
	}
	o, err := s.Store.GetOrderByNumber(r.Context(), tenant, ref)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Order not found", ref, r.URL.Path)
		return
	}
	if o.ProviderSlug != slug {
		writeProblem(w, http.StatusConflict, "Provider mismatch",
			fmt.Sprintf("order belongs to %q", o.ProviderSlug), r.URL.Path)
		return
	}
	if cb.TrackingNumber != "" && o.TrackingNumber == "" {
		_, _ = s.Store.UpdateOrder(r.Context(), tenant, o.ID, model.OrderPatch{TrackingNumber: &cb.TrackingNumber})
		o.TrackingNumber = cb.TrackingNumber
	}
	queued := false
	if o.NeedsStatusCheck() {
		_, queued = s.Queue.Submit(jobs.TypeCheckStatus, jobs.Payload{TenantID: tenant, OrderID: o.ID, Provider: slug})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "queued": queued})
}

// EventsStreamHandler handles GET /v1/events/stream (SSE, tenant-wide).
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
	p := s.getPrincipal(r)
	flusher, ok := w.(http.Flusher)
	if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(p.Tenant)
	defer s.Broker.Unsubscribe(p.Tenant, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"tenantId\":\"%s\",\"ts\":\"%s\"}\n\n", p.Tenant, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"tenantId\":\"%s\",\"ts\":\"%s\"}\n\n", p.Tenant, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// check DB connectivity when using the Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
