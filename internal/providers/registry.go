package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"parcelhub/internal/crypt"
	"parcelhub/internal/model"
	"parcelhub/internal/store"
)

// Tuning is the per-provider resource envelope applied by the registry.
type Tuning struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// Registry resolves (tenant, provider slug) to a configured adapter instance.
// Credentials are decrypted once per resolution; the instance (and any live
// session it holds) is cached for the process lifetime of that pair and shared
// by all concurrent jobs, so a session refresh done by one job is visible to
// the rest. Raw credentials are never logged.
type Registry struct {
	Store  store.Store
	Keys   *crypt.Keychain
	Client *http.Client
	// TuningFor returns the resource envelope for a slug; nil means defaults.
	TuningFor func(slug string) Tuning

	mu      sync.Mutex
	entries map[string]*regEntry
}

type regEntry struct {
	adapter Adapter
	limiter *rate.Limiter
	timeout time.Duration
}

func NewRegistry(s store.Store, keys *crypt.Keychain) *Registry {
	return &Registry{
		Store:   s,
		Keys:    keys,
		Client:  &http.Client{Timeout: 30 * time.Second},
		entries: map[string]*regEntry{},
	}
}

func (r *Registry) tuning(slug string) Tuning {
	t := Tuning{}
	if r.TuningFor != nil {
		t = r.TuningFor(slug)
	}
	if t.Timeout <= 0 {
		t.Timeout = 15 * time.Second
	}
	if t.RPS <= 0 {
		t.RPS = 5
	}
	if t.Burst <= 0 {
		t.Burst = 5
	}
	return t
}

// Resolve returns the adapter for a tenant/provider pair, building and caching
// it on first use. Returns ErrNotConfigured when the tenant has not enabled
// the provider.
func (r *Registry) Resolve(ctx context.Context, tenantID, slug string) (Adapter, error) {
	key := tenantID + "|" + slug
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return e.adapter, nil
	}
	r.mu.Unlock()

	pc, err := r.Store.GetProviderConfig(ctx, tenantID, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s for tenant %s", ErrNotConfigured, slug, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if !pc.IsEnabled {
		return nil, fmt.Errorf("%w: %s disabled for tenant %s", ErrNotConfigured, slug, tenantID)
	}
	plain, err := r.Keys.Decrypt(pc.Credentials)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials for %s: %w", slug, err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return nil, fmt.Errorf("credential bundle for %s is not a JSON object: %w", slug, err)
	}

	tn := r.tuning(slug)
	cfg := Config{
		TenantID: tenantID,
		Slug:     slug,
		BaseURL:  pc.BaseURL,
		APIType:  pc.APIType,
		Creds:    creds,
		Timeout:  tn.Timeout,
	}
	inner, err := buildAdapter(cfg, r.Client)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok { // lost the race, reuse the winner's sessions
		return e.adapter, nil
	}
	e := &regEntry{
		limiter: rate.NewLimiter(rate.Limit(tn.RPS), tn.Burst),
		timeout: tn.Timeout,
	}
	e.adapter = &governedAdapter{inner: inner, entry: e}
	r.entries[key] = e
	return e.adapter, nil
}

// Invalidate drops the cached instance (config change, credential rotation,
// or persistent authentication failure).
func (r *Registry) Invalidate(tenantID, slug string) {
	r.mu.Lock()
	delete(r.entries, tenantID+"|"+slug)
	r.mu.Unlock()
}

func buildAdapter(cfg Config, client *http.Client) (Adapter, error) {
	switch cfg.Slug {
	case "ozonexpress":
		return NewOzonExpress(cfg, client), nil
	case "cathedis":
		return NewCathedis(cfg, client), nil
	case "forcelog":
		return NewForcelog(cfg, client), nil
	case "sendit":
		return NewSendit(cfg, client), nil
	case "vitex":
		return NewVitex(cfg, client), nil
	}
	return nil, fmt.Errorf("%w: no adapter implemented for %q", ErrNotConfigured, cfg.Slug)
}

// Pinger is implemented by adapters that support a cheap connection test.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TestConnection verifies credentials where the adapter supports it.
func (r *Registry) TestConnection(ctx context.Context, tenantID, slug string) error {
	a, err := r.Resolve(ctx, tenantID, slug)
	if err != nil {
		return err
	}
	if p, ok := a.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// governedAdapter applies the registry's rate limit and per-call timeout
// around the provider adapter.
type governedAdapter struct {
	inner Adapter
	entry *regEntry
}

func (g *governedAdapter) Slug() string { return g.inner.Slug() }

func (g *governedAdapter) CreateParcel(ctx context.Context, o model.Order) CreateResult {
	if err := g.entry.limiter.Wait(ctx); err != nil {
		return unknown(&TransportError{Op: g.inner.Slug() + ".create", Err: err})
	}
	cctx, cancel := context.WithTimeout(ctx, g.entry.timeout)
	defer cancel()
	return g.inner.CreateParcel(cctx, o)
}

func (g *governedAdapter) CheckStatus(ctx context.Context, trackingNumber string) StatusResult {
	if err := g.entry.limiter.Wait(ctx); err != nil {
		return StatusResult{Err: &TransportError{Op: g.inner.Slug() + ".status", Err: err}}
	}
	cctx, cancel := context.WithTimeout(ctx, g.entry.timeout)
	defer cancel()
	return g.inner.CheckStatus(cctx, trackingNumber)
}
