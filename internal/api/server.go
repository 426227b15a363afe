package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"parcelhub/internal/auth"
	"parcelhub/internal/config"
	"parcelhub/internal/crypt"
	"parcelhub/internal/jobs"
	"parcelhub/internal/orders"
	"parcelhub/internal/providers"
	"parcelhub/internal/store"
	"parcelhub/internal/webhooks"
)

type Server struct {
	Store      store.Store
	Pub        *webhooks.Publisher
	Auth       *auth.Verifier
	Broker     EventBroker
	Queue      *jobs.Queue
	Registry   *providers.Registry
	Detector   *orders.Detector
	Engine     *orders.Engine
	Reconciler *orders.Reconciler
	Cfg        *config.Config
}

// NewServer wires the full service: store, credential keychain, adapter
// registry, sync engine, queues and event fan-out. If DatabaseURL is unset the
// in-memory store is used.
func NewServer(cfg *config.Config) (*Server, error) {
	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		st = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("api: redis broker unavailable, using in-memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	secret := cfg.EncryptionSecret
	if secret == "" {
		log.Printf("api: ENCRYPTION_SECRET unset, provider credentials use a dev key")
		secret = "parcelhub-dev-only"
	}
	keys, err := crypt.NewKeychain(secret)
	if err != nil {
		return nil, err
	}

	registry := providers.NewRegistry(st, keys)
	registry.TuningFor = func(slug string) providers.Tuning {
		t := cfg.Tuning(slug)
		return providers.Tuning{
			Timeout: time.Duration(t.TimeoutSec) * time.Second,
			RPS:     t.RPS,
			Burst:   t.Burst,
		}
	}

	pub := webhooks.NewPublisher(st)
	detector := orders.NewDetector(st, time.Duration(cfg.DuplicateWindowHours)*time.Hour)

	s := &Server{
		Store:    st,
		Pub:      pub,
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   broker,
		Registry: registry,
		Detector: detector,
		Cfg:      cfg,
	}

	events := orders.MultiEvents{pub, &brokerEvents{broker: broker}}
	s.Engine = orders.NewEngine(st, registry, detector, events)

	s.Queue = jobs.NewQueue()
	s.Engine.Bind(s.Queue, map[jobs.Type]jobs.Policy{
		jobs.TypeCreateOrder:      poolPolicy(cfg.Jobs.Persistence),
		jobs.TypeUpdateOrder:      poolPolicy(cfg.Jobs.Persistence),
		jobs.TypeSyncWithProvider: poolPolicy(cfg.Jobs.SyncWithProvider),
		jobs.TypeCheckStatus:      poolPolicy(cfg.Jobs.CheckStatus),
	})

	// the bulk sweep runs as a job so the dedupe key keeps runs from stacking
	s.Reconciler = orders.NewReconciler(st, s.Engine,
		cfg.Reconciler.BatchSize,
		time.Duration(cfg.Reconciler.PacingMs)*time.Millisecond)
	s.Reconciler.Leases = s.Queue
	s.Queue.Register(jobs.TypeBulkStatusCheck, poolPolicy(cfg.Jobs.BulkStatusCheck),
		func(ctx context.Context, j *jobs.Job) error {
			_, err := s.Reconciler.RunOnce(ctx)
			return err
		})
	return s, nil
}

func poolPolicy(p config.PoolConfig) jobs.Policy {
	return jobs.Policy{Workers: p.Workers, MaxAttempts: p.MaxAttempts, Backoff: p.Backoff()}
}

// brokerEvents bridges engine events onto the live feed broker.
type brokerEvents struct {
	broker EventBroker
}

func (b *brokerEvents) Emit(ctx context.Context, tenantID, eventType string, data any) {
	m, ok := data.(map[string]any)
	if !ok {
		m = map[string]any{"data": data}
	}
	b.broker.Publish(tenantID, SSEEvent{Type: eventType, Data: m})
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	p := s.getPrincipal(r)
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, p.Tenant)
	return ctx, p.Tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

