package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pdptw/internal/metrics"
	"pdptw/internal/model"
	"pdptw/internal/opt"
	"pdptw/internal/webhooks"
)

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if req.TenantID != "" && req.TenantID != p.Tenant {
		writeProblem(w, http.StatusForbidden, "Forbidden", fmt.Sprintf("tenant %q does not match the caller", req.TenantID), r.URL.Path)
		return
	}
	req.TenantID = p.Tenant
	if !s.limiter.Allow(req.TenantID) {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "solve rate limit exceeded for tenant", r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeError(w, r, "Invalid solve request", err)
		return
	}
	cfg, err := s.optimizerConfig(r.Context(), req.TenantID, req.Config)
	if err != nil {
		writeError(w, r, "Invalid optimizer config", err)
		return
	}
	inst, err := req.Instance(cfg.InstanceOptions()...)
	if err != nil {
		writeError(w, r, "Invalid instance", err)
		return
	}

	run := model.Run{
		ID:        uuid.New().String(),
		TenantID:  req.TenantID,
		PlanDate:  req.PlanDate,
		Status:    model.RunQueued,
		Algo:      cfg.ConstructionHeuristic.String(),
		Seed:      req.Seed,
		CreatedAt: time.Now().UTC(),
	}
	if run.PlanDate == "" {
		run.PlanDate = run.CreatedAt.Format(planDateLayout)
	}
	if run.Seed == 0 {
		run.Seed = time.Now().UnixNano()
	}
	if err := s.Store.SaveRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}

	if req.Async {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			_, _ = s.execute(context.Background(), run, inst, cfg)
		}()
		writeJSON(w, http.StatusAccepted, run)
		return
	}
	run, err = s.execute(r.Context(), run, inst, cfg)
	if err != nil {
		writeError(w, r, "Solve failed", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// optimizerConfig layers the tenant's stored config and the request
// overrides over the service defaults.
func (s *Server) optimizerConfig(ctx context.Context, tenant string, overrides map[string]any) (opt.Config, error) {
	cfg := s.Optimizer
	stored, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil {
		return cfg, fmt.Errorf("load tenant config: %w", err)
	}
	if cfg, err = cfg.Overlay(stored); err != nil {
		return cfg, fmt.Errorf("tenant config: %w", err)
	}
	return cfg.Overlay(overrides)
}

// execute runs the optimizer for a stored run and persists the outcome. The
// returned run carries the terminal status.
func (s *Server) execute(ctx context.Context, run model.Run, inst *opt.Instance, cfg opt.Config) (model.Run, error) {
	logger := log.WithFields(log.Fields{"runId": run.ID, "tenant": run.TenantID, "algo": run.Algo})
	// outcome bookkeeping must survive a cancelled request
	bg := context.WithoutCancel(ctx)

	if err := s.solves.Acquire(ctx, 1); err != nil {
		return s.fail(bg, logger, run, 0, err), err
	}
	defer s.solves.Release(1)
	metrics.SolvesInFlight.Inc()
	defer metrics.SolvesInFlight.Dec()

	run.Status = model.RunRunning
	if err := s.Store.SaveRun(bg, run); err != nil {
		logger.WithError(err).Warn("save running run failed")
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: EventRunStatus, Data: map[string]any{"runId": run.ID, "status": run.Status}})

	progress := newProgressPublisher(s.Broker, run.ID, cfg.NumIterations)
	sol, m, err := opt.Solve(ctx, inst, cfg, run.Seed,
		opt.WithLogger(logger),
		opt.WithObserver(metrics.Observers{metrics.SearchObserver{}, progress}),
	)
	if err != nil {
		return s.fail(bg, logger, run, m.Duration, err), err
	}

	finished := time.Now().UTC()
	run.Status = model.RunSucceeded
	run.FinishedAt = &finished
	run.SetSolution(sol)
	snaps := m.Snapshots
	m.Snapshots = nil
	run.Metrics = &m
	if err := s.Store.SaveRun(bg, run); err != nil {
		logger.WithError(err).Error("save finished run failed")
		return run, err
	}

	pm := model.NewPlanMetrics(run.Algo, run.ID, cfg, m)
	if err := s.Store.SavePlanMetrics(bg, run.TenantID, run.PlanDate, pm); err != nil {
		logger.WithError(err).Warn("save plan metrics failed")
	}
	if err := s.Store.SavePlanMetricsWeights(bg, run.TenantID, run.PlanDate, run.Algo, model.NewWeightSnapshots(snaps)); err != nil {
		logger.WithError(err).Warn("save weight snapshots failed")
	}
	opt.RecordMetrics(run.TenantID, run.PlanDate, run.Algo, m)
	metrics.ObserveRun(run.Algo, run.Status, m.Duration, run.Cost)

	s.Pub.Emit(bg, run.TenantID, webhooks.EventSolveCompleted, map[string]any{
		"runId":    run.ID,
		"planDate": run.PlanDate,
		"cost":     run.Cost,
		"summary":  run.Summary,
	})
	s.Broker.Publish(run.ID, completedEvent(run))
	logger.WithFields(log.Fields{"cost": run.Cost, "iterations": m.Iterations, "duration": m.Duration}).Info("solve finished")
	return run, nil
}

func (s *Server) fail(ctx context.Context, logger log.FieldLogger, run model.Run, d time.Duration, cause error) model.Run {
	finished := time.Now().UTC()
	run.Status = model.RunFailed
	run.Error = cause.Error()
	run.FinishedAt = &finished
	if err := s.Store.SaveRun(ctx, run); err != nil {
		logger.WithError(err).Error("save failed run failed")
	}
	metrics.ObserveRun(run.Algo, run.Status, d, 0)
	s.Pub.Emit(ctx, run.TenantID, webhooks.EventSolveFailed, map[string]any{
		"runId":    run.ID,
		"planDate": run.PlanDate,
		"error":    run.Error,
	})
	s.Broker.Publish(run.ID, completedEvent(run))
	logger.WithError(cause).Warn("solve failed")
	return run
}

func completedEvent(run model.Run) SSEEvent {
	data := map[string]any{"runId": run.ID, "status": run.Status}
	if run.Status == model.RunSucceeded {
		data["cost"] = run.Cost
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	return SSEEvent{Type: EventRunCompleted, Data: data}
}

// progressPublisher forwards search progress to the broker: every new global
// best, every segment boundary and otherwise one iteration in every.
type progressPublisher struct {
	broker EventBroker
	runID  string
	every  int
}

func newProgressPublisher(b EventBroker, runID string, iterations int) *progressPublisher {
	return &progressPublisher{broker: b, runID: runID, every: max(1, iterations/100)}
}

func (p *progressPublisher) OnIteration(e opt.IterationEvent) {
	if e.Result != opt.NewGlobalBest && e.Iteration%p.every != 0 {
		return
	}
	p.broker.Publish(p.runID, SSEEvent{Type: EventRunProgress, Data: map[string]any{
		"runId":       p.runID,
		"iteration":   e.Iteration,
		"result":      e.Result.String(),
		"removal":     e.Removal.String(),
		"insertion":   e.Insertion.String(),
		"currentCost": e.CurrentCost,
		"bestCost":    e.BestCost,
		"temperature": e.Temperature,
	}})
}

func (p *progressPublisher) OnSegment(w opt.WeightSnapshot) {
	p.broker.Publish(p.runID, SSEEvent{Type: EventRunWeights, Data: map[string]any{
		"runId":     p.runID,
		"iteration": w.Iteration,
		"removal":   w.Removal[:],
		"insertion": w.Insertion[:],
	}})
}
