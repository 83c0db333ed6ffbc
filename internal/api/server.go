package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"pdptw/internal/config"
	"pdptw/internal/opt"
	"pdptw/internal/store"
	"pdptw/internal/webhooks"
)

type Server struct {
	Store     store.Store
	Pub       *webhooks.Publisher
	Broker    EventBroker
	Config    config.Service
	Optimizer opt.Config

	limiter *tenantLimiter
	solves  *semaphore.Weighted
	running sync.WaitGroup
}

// NewServer creates a Server. If DatabaseURL is unset, uses in-memory store.
func NewServer(ctx context.Context, cfg config.Service, optCfg opt.Config) (*Server, error) {
	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := sp.Migrate(ctx); err != nil {
				_ = sp.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis broker unavailable, using in-process broker")
		} else {
			broker = rb
		}
	}
	return newServer(s, broker, cfg, optCfg), nil
}

func newServer(s store.Store, broker EventBroker, cfg config.Service, optCfg opt.Config) *Server {
	solves := cfg.MaxConcurrentSolves
	if solves <= 0 {
		solves = 1
	}
	return &Server{
		Store:     s,
		Pub:       webhooks.NewPublisher(s),
		Broker:    broker,
		Config:    cfg,
		Optimizer: optCfg,
		limiter:   newTenantLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		solves:    semaphore.NewWeighted(solves),
	}
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts)
}

// Wait blocks until every background solve has finished.
func (s *Server) Wait() { s.running.Wait() }

// Close releases the store and broker connections.
func (s *Server) Close() error {
	type closer interface{ Close() error }
	var first error
	for _, c := range []any{s.Broker, s.Store} {
		if cl, ok := c.(closer); ok {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
