package store

import (
	"context"
	"errors"
	"time"

	"pdptw/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, runID string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error)

	// Plan metrics
	SavePlanMetrics(ctx context.Context, tenantID, planDate string, m model.PlanMetrics) error
	ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]model.PlanMetrics, error)
	SavePlanMetricsWeights(ctx context.Context, tenantID, planDate, algo string, snaps []model.WeightSnapshot) error
	ListPlanMetricsWeights(ctx context.Context, tenantID, planDate, algo string) ([]model.WeightSnapshot, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
}

var ErrNotFound = errors.New("not found")

const defaultPageSize = 100

func pageSize(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultPageSize
	}
	return limit
}
