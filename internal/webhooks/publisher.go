package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pdptw/internal/store"
)

// Event types.
const (
	EventSolveCompleted = "solve.completed"
	EventSolveFailed    = "solve.failed"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues an event for every subscription of the tenant to the event
// type and returns the number of deliveries queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		log.WithError(err).WithField("tenant", tenantID).Warn("webhook subscriptions lookup failed")
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	body, err := json.Marshal(map[string]any{
		"id":       "evt_" + uuid.New().String(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	})
	if err != nil {
		log.WithError(err).WithField("type", eventType).Error("webhook payload encoding failed")
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.WithError(err).WithFields(log.Fields{"subscription": s.ID, "type": eventType}).Warn("webhook enqueue failed")
			continue
		}
		n++
	}
	return n
}
