package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdptw/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	runs       map[string]model.Run              // id -> run
	runsByTen  map[string][]string               // tenant -> run ids, oldest first
	subs       map[string][]model.Subscription   // tenant -> subscriptions
	deliveries map[string]*memDelivery           // id -> delivery state
	queue      []string                          // delivery ids in enqueue order
	planMx     map[string][]model.PlanMetrics    // tenant|planDate -> items
	planWx     map[string][]model.WeightSnapshot // tenant|planDate|algo -> snapshots
	optCfg     map[string]map[string]any         // tenant -> config
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		runsByTen:  map[string][]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
		planMx:     map[string][]model.PlanMetrics{},
		planWx:     map[string][]model.WeightSnapshot{},
		optCfg:     map[string]map[string]any{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	if run.ID == "" || run.TenantID == "" {
		return fmt.Errorf("save run: id and tenant are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.runsByTen[run.TenantID] = append(m.runsByTen[run.TenantID], run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, nil
}

// ListRuns pages through the runs of a tenant, newest first.
func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := slices.Clone(m.runsByTen[tenantID])
	slices.Reverse(ids)
	start := 0
	if cursor != "" {
		start = len(ids)
		for i := range ids {
			if ids[i] == cursor {
				start = i + 1
				break
			}
		}
	}
	end := min(start+pageSize(limit), len(ids))
	items := []model.Run{}
	for _, id := range ids[start:end] {
		items = append(items, m.runs[id])
	}
	next := ""
	if end < len(ids) {
		next = ids[end-1]
	}
	return items, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planDate string, pm model.PlanMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "|" + planDate
	items := m.planMx[key]
	pm.Weights = nil
	for i := range items {
		if items[i].Algo == pm.Algo {
			items[i] = pm
			return nil
		}
	}
	m.planMx[key] = append(items, pm)
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]model.PlanMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PlanMetrics{}
	for _, it := range m.planMx[tenantID+"|"+planDate] {
		if algo == "" || it.Algo == algo {
			out = append(out, it)
		}
	}
	return out, nil
}

// SavePlanMetricsWeights replaces the snapshots kept for the plan date and algorithm.
func (m *Memory) SavePlanMetricsWeights(ctx context.Context, tenantID, planDate, algo string, snaps []model.WeightSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planWx[tenantID+"|"+planDate+"|"+algo] = slices.Clone(snaps)
	return nil
}

func (m *Memory) ListPlanMetricsWeights(ctx context.Context, tenantID, planDate, algo string) ([]model.WeightSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.planWx[tenantID+"|"+planDate+"|"+algo])
	if out == nil {
		out = []model.WeightSnapshot{}
	}
	return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[tenantID]; ok {
		return maps.Clone(cfg), nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = maps.Clone(cfg)
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		if slices.Contains(s.Events, eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := min(start+pageSize(limit), len(list))
	items := append([]model.Subscription{}, list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(arr) {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:   time.Now(),
	}
	m.queue = append(m.queue, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.queue {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = pageSize(limit)
	out := []map[string]any{}
	started := cursor == ""
	next := ""
	for _, id := range m.queue {
		d := m.deliveries[id]
		if !started {
			started = id == cursor
			continue
		}
		if d.TenantID != tenantID || (status != "" && d.Status != status) {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1]["id"].(string)
			break
		}
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if d.Status == DeliveryRetry {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		if d.ResponseCode != 0 {
			item["responseCode"] = d.ResponseCode
		}
		out = append(out, item)
	}
	return out, next, nil
}
