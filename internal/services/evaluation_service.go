package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/oncostack/dvh-engine/internal/dvh"
	"github.com/oncostack/dvh-engine/internal/engine"
	"github.com/oncostack/dvh-engine/internal/metrics"
	"github.com/oncostack/dvh-engine/internal/models"
	"github.com/oncostack/dvh-engine/internal/utils"
)

// EvaluationService is the facade over parsing and the evaluation
// pipeline: it owns metric observation and latency bookkeeping so the
// transport and batch layers stay thin.
type EvaluationService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	latencies *utils.LatencyTracker
}

// ComparisonResult bundles a plan comparison with the two records it
// was derived from.
type ComparisonResult struct {
	PlanA      models.OutcomeRecord    `json:"plan_a"`
	PlanB      models.OutcomeRecord    `json:"plan_b"`
	Comparison models.ComparisonRecord `json:"comparison"`
}

// NewEvaluationService constructs the evaluation facade.
func NewEvaluationService(logger *slog.Logger, pipeline *engine.Pipeline) *EvaluationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluationService{
		logger:    logger,
		pipeline:  pipeline,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// EvaluatePlan parses one raw cumulative DVH export and evaluates it.
// planName is a caller-supplied fallback identity (e.g. upload filename)
// used when the export carries no plan metadata of its own.
func (s *EvaluationService) EvaluatePlan(ctx context.Context, planName string, r io.Reader) (models.OutcomeRecord, error) {
	start := time.Now()

	set, err := dvh.Parse(r)
	if err != nil {
		metrics.ObserveEvaluation(time.Since(start), metrics.OutcomeError)
		return models.OutcomeRecord{}, &engine.EvaluationError{Plan: planName, Stage: engine.StageParse, Err: err}
	}
	if set.PlanName == "" {
		set.PlanName = planName
	}

	record, err := s.pipeline.Evaluate(ctx, set)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveEvaluation(duration, metrics.OutcomeError)
		s.logger.Error("plan evaluation failed",
			slog.String("plan", set.PlanID()), slog.Any("error", err))
		return models.OutcomeRecord{}, err
	}

	metrics.ObserveEvaluation(duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("evaluation latency",
			slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return record, nil
}

// ComparePlans evaluates two raw exports (e.g. VMAT vs IMRT) and diffs
// their outcome records. Either plan failing aborts the comparison.
func (s *EvaluationService) ComparePlans(ctx context.Context, nameA string, a io.Reader, nameB string, b io.Reader) (ComparisonResult, error) {
	recordA, err := s.EvaluatePlan(ctx, nameA, a)
	if err != nil {
		return ComparisonResult{}, err
	}
	recordB, err := s.EvaluatePlan(ctx, nameB, b)
	if err != nil {
		return ComparisonResult{}, err
	}
	return ComparisonResult{
		PlanA:      recordA,
		PlanB:      recordB,
		Comparison: engine.Compare(recordA, recordB),
	}, nil
}

// LatencyP95 returns the current p95 evaluation latency.
func (s *EvaluationService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
