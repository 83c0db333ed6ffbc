package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pdptw/internal/model"
)

//go:embed schema.sql
var schema string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(schema) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func schemaStatements(s string) []string {
	var out []string
	for _, stmt := range strings.Split(s, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Runs

const runColumns = `id, tenant_id, plan_date, status, algo, seed, cost, summary, assignments, routes, metrics, error, created_at, finished_at`

func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
	summary, err := jsonArg(run.Summary)
	if err != nil {
		return err
	}
	assignments, err := jsonArg(run.Assignments)
	if err != nil {
		return err
	}
	routes, err := jsonArg(run.Routes)
	if err != nil {
		return err
	}
	metrics, err := jsonArg(run.Metrics)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (id) DO UPDATE SET
          status=$4, cost=$7, summary=$8, assignments=$9, routes=$10, metrics=$11, error=$12, finished_at=$14`,
		run.ID, run.TenantID, run.PlanDate, run.Status, run.Algo, run.Seed, run.Cost,
		summary, assignments, routes, metrics, run.Error, run.CreatedAt, run.FinishedAt)
	return err
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// ListRuns pages through the runs of a tenant, newest first.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
	limit = pageSize(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE tenant_id=$1
            AND (created_at, id) < (SELECT created_at, id FROM runs WHERE tenant_id=$1 AND id=$2)
            ORDER BY created_at DESC, id DESC LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE tenant_id=$1
            ORDER BY created_at DESC, id DESC LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(row rowScanner) (model.Run, error) {
	var r model.Run
	var summary, assignments, routes, metrics []byte
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.TenantID, &r.PlanDate, &r.Status, &r.Algo, &r.Seed, &r.Cost,
		&summary, &assignments, &routes, &metrics, &r.Error, &r.CreatedAt, &finished); err != nil {
		return r, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{{summary, &r.Summary}, {assignments, &r.Assignments}, {routes, &r.Routes}, {metrics, &r.Metrics}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return r, fmt.Errorf("decode run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// Plan metrics

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, planDate string, m model.PlanMetrics) error {
	args := []any{uuid.New().String(), tenantID, planDate, m.Algo, nullIfEmpty(m.RunID),
		m.Iterations, m.NewBest, m.Improved, m.Accepted, m.Rejected,
		m.InitialCost, m.BestCost, m.FinalCost, m.InitialTemperature, m.CoolingRate}
	for _, v := range []any{m.RemovalSelects, m.InsertSelects, m.FinalRemovalWeights, m.FinalInsertionWeights, m.Objectives} {
		js, err := jsonArg(v)
		if err != nil {
			return err
		}
		args = append(args, js)
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO plan_metrics (id, tenant_id, plan_date, algo, run_id, iterations, new_best, improved, accepted, rejected, initial_cost, best_cost, final_cost, init_temp, cooling, removal_selects, insert_selects, final_removal_weights, final_insertion_weights, objectives)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
        ON CONFLICT (tenant_id, plan_date, algo) DO UPDATE SET
          run_id=$5, iterations=$6, new_best=$7, improved=$8, accepted=$9, rejected=$10, initial_cost=$11, best_cost=$12, final_cost=$13, init_temp=$14, cooling=$15, removal_selects=$16, insert_selects=$17, final_removal_weights=$18, final_insertion_weights=$19, objectives=$20, created_at=now()`,
		args...)
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]model.PlanMetrics, error) {
	base := `SELECT algo, COALESCE(run_id,''), iterations, new_best, improved, accepted, rejected, initial_cost, best_cost, final_cost, init_temp, cooling, removal_selects, insert_selects, final_removal_weights, final_insertion_weights, objectives FROM plan_metrics WHERE tenant_id=$1 AND plan_date=$2`
	args := []any{tenantID, planDate}
	if algo != "" {
		base += ` AND algo=$3`
		args = append(args, algo)
	}
	base += ` ORDER BY algo`
	rows, err := p.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PlanMetrics{}
	for rows.Next() {
		var m model.PlanMetrics
		var initial, best, final, initTemp, cooling sql.NullFloat64
		var rem, ins, finRem, finIns, objectives []byte
		if err := rows.Scan(&m.Algo, &m.RunID, &m.Iterations, &m.NewBest, &m.Improved, &m.Accepted, &m.Rejected,
			&initial, &best, &final, &initTemp, &cooling, &rem, &ins, &finRem, &finIns, &objectives); err != nil {
			return nil, err
		}
		m.InitialCost, m.BestCost, m.FinalCost = initial.Float64, best.Float64, final.Float64
		m.InitialTemperature, m.CoolingRate = initTemp.Float64, cooling.Float64
		if err := decodeJSON(rem, &m.RemovalSelects, ins, &m.InsertSelects, finRem, &m.FinalRemovalWeights,
			finIns, &m.FinalInsertionWeights, objectives, &m.Objectives); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SavePlanMetricsWeights replaces the snapshots kept for the plan date and algorithm.
func (p *Postgres) SavePlanMetricsWeights(ctx context.Context, tenantID, planDate, algo string, snaps []model.WeightSnapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_metrics_weights WHERE tenant_id=$1 AND plan_date=$2 AND algo=$3`, tenantID, planDate, algo); err != nil {
		return err
	}
	for _, s := range snaps {
		rem, err := jsonArg(s.Removal)
		if err != nil {
			return err
		}
		ins, err := jsonArg(s.Insertion)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO plan_metrics_weights (id, tenant_id, plan_date, algo, iteration, removal_weights, insertion_weights)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`, uuid.New().String(), tenantID, planDate, algo, s.Iteration, rem, ins)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListPlanMetricsWeights(ctx context.Context, tenantID, planDate, algo string) ([]model.WeightSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT iteration, removal_weights, insertion_weights FROM plan_metrics_weights WHERE tenant_id=$1 AND plan_date=$2 AND algo=$3 ORDER BY iteration`, tenantID, planDate, algo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.WeightSnapshot{}
	for rows.Next() {
		var s model.WeightSnapshot
		var rem, ins []byte
		if err := rows.Scan(&s.Iteration, &rem, &ins); err != nil {
			return nil, err
		}
		if err := decodeJSON(rem, &s.Removal, ins, &s.Insertion); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Optimizer config

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	js, err := jsonArg(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
	return err
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, err := jsonArg(req.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	filter, err := jsonArg([]string{eventType})
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb ORDER BY created_at`, tenantID, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows, tenantID)
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	limit = pageSize(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out, err := scanSubscriptions(rows, tenantID)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func scanSubscriptions(rows *sql.Rows, tenantID string) ([]model.Subscription, error) {
	out := []model.Subscription{}
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(ev, &s.Events); err != nil {
			return nil, fmt.Errorf("decode subscription %s events: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return nil
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), string(payload), dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	limit = pageSize(limit)
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), url FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts, code int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &code, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if st == DeliveryRetry && nextAt.Valid {
			m["nextAttemptAt"] = nextAt.Time
		}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		if code != 0 {
			m["responseCode"] = code
		}
		out = append(out, m)
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func computeDedupKey(payload []byte) string {
	// the event id when the payload carries one
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonArg encodes v for a JSONB parameter.
func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(b), nil
}

// decodeJSON unmarshals pairs of (raw, destination), skipping NULL columns.
func decodeJSON(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw, _ := pairs[i].([]byte)
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, pairs[i+1]); err != nil {
			return fmt.Errorf("decode json column: %w", err)
		}
	}
	return nil
}
