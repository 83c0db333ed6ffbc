package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"pdptw/internal/metrics"
	"pdptw/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: maxAttempts}
}

// Start polls for due deliveries every second until Stop is closed.
func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		log.WithError(err).Warn("fetch due webhook deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	entry := log.WithFields(log.Fields{"delivery": it.ID, "type": it.EventType, "attempt": it.Attempts + 1})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		entry.WithError(err).Warn("invalid webhook url")
		w.fail(ctx, it, err.Error(), 0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	if it.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
		if !success {
			lastErr = "unexpected status " + strconv.Itoa(code)
		}
	}
	status := "delivered"
	if !success {
		status = "retry"
	}
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))

	if !success && it.Attempts+1 >= w.MaxAttempts {
		entry.WithField("code", code).Warn("webhook delivery failed permanently: ", lastErr)
		w.fail(ctx, it, lastErr, code, latency)
		return
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	next := time.Now().Add(nextBackoff(it.Attempts))
	if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); err != nil {
		entry.WithError(err).Warn("mark webhook delivery")
	}
}

func (w *Worker) fail(ctx context.Context, it store.WebhookDelivery, lastErr string, code, latency int) {
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, "failed").Inc()
	if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); err != nil {
		log.WithError(err).WithField("delivery", it.ID).Warn("fail webhook delivery")
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
