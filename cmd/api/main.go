package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"parcelhub/internal/api"
	"parcelhub/internal/config"
	"parcelhub/internal/jobs"
	"parcelhub/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	metrics.RegisterDefault()

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Orders
	mux.HandleFunc("/v1/orders", srv.OrdersHandler)
	mux.HandleFunc("/v1/orders/", srv.OrderByIDHandler) // includes /sync, /check-status, /history

	// Providers
	mux.HandleFunc("/v1/providers", srv.ProvidersHandler)
	mux.HandleFunc("/v1/providers/", srv.ProviderBySlugHandler) // /{slug}/test

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Inbound provider callbacks
	mux.HandleFunc("/v1/webhooks/", srv.ProviderCallbackHandler)

	// Live order events
	mux.HandleFunc("/v1/events/stream", srv.EventsStreamHandler)
	mux.HandleFunc("/v1/events/ws", srv.EventsWSHandler)

	// Admin
	mux.HandleFunc("/v1/admin/queues", srv.QueuesHandler)
	mux.HandleFunc("/v1/admin/sync-failures", srv.SyncFailuresHandler)
	mux.HandleFunc("/v1/admin/sync-failures/", srv.SyncFailuresHandler)

	// Health, metrics, debug
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.HandleFunc("/debug/info", srv.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Background machinery: worker pools, reconciler sweep, webhook deliveries.
	srv.Queue.Start(ctx)
	defer srv.Queue.Stop()

	var lock jobs.Locker
	if cfg.RedisURL != "" {
		if opt, err := redis.ParseURL(cfg.RedisURL); err == nil {
			lock = &jobs.RedisLocker{Client: redis.NewClient(opt)}
		}
	}
	sched := jobs.NewScheduler("reconciler",
		time.Duration(cfg.Reconciler.IntervalSec)*time.Second, lock,
		func(ctx context.Context) {
			srv.Queue.Submit(jobs.TypeBulkStatusCheck, jobs.Payload{})
		})
	sched.Start(ctx)
	defer sched.Stop()

	worker := srv.NewWebhookWorker()
	worker.Start()

	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			for typ, st := range srv.Queue.StatsSnapshot() {
				metrics.QueueDepth.WithLabelValues(string(typ), "waiting").Set(float64(st.Waiting))
				metrics.QueueDepth.WithLabelValues(string(typ), "active").Set(float64(st.Active))
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, sc := context.WithTimeout(context.Background(), 10*time.Second)
		defer sc()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("API listening on %s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, sw.status, dur)
	})
}
