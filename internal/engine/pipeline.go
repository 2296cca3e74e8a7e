package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oncostack/dvh-engine/internal/dosemetrics"
	"github.com/oncostack/dvh-engine/internal/dvh"
	"github.com/oncostack/dvh-engine/internal/models"
	"github.com/oncostack/dvh-engine/internal/radbio"
)

// Stage labels the pipeline step an evaluation error occurred in.
type Stage string

const (
	StageParse   Stage = "parse"
	StageResolve Stage = "resolve"
	StageConvert Stage = "convert"
	StageTCP     Stage = "tcp"
	StageNTCP    Stage = "ntcp"
	StageMetrics Stage = "metrics"
)

// EvaluationError wraps a component failure with the plan, stage, and
// organ it occurred in. Any such failure aborts the whole plan's
// evaluation; no partial OutcomeRecord is produced.
type EvaluationError struct {
	Plan  string
	Stage Stage
	Organ models.CanonicalOrgan
	Err   error
}

func (e *EvaluationError) Error() string {
	if e.Organ != "" {
		return fmt.Sprintf("plan %s: stage %s: organ %s: %v", e.Plan, e.Stage, e.Organ, e.Err)
	}
	return fmt.Sprintf("plan %s: stage %s: %v", e.Plan, e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Pipeline orchestrates structure resolution, histogram conversion, the
// TCP/NTCP models, and dose metrics for one plan. Evaluations are pure
// computations over immutable inputs, so one Pipeline may serve many
// concurrent plans.
type Pipeline struct {
	logger    *slog.Logger
	resolver  *dvh.Resolver
	params    *radbio.Parameters
	tcpModel  *radbio.TCPModel
	ntcpModel *radbio.NTCPModel
}

// NewPipeline constructs an evaluation pipeline. A nil resolver falls back
// to the alias table in params, or the shipped defaults.
func NewPipeline(logger *slog.Logger, resolver *dvh.Resolver, params *radbio.Parameters) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil && params != nil {
		aliases := params.Aliases
		if len(aliases) == 0 {
			aliases = dvh.DefaultAliases()
		}
		resolver = dvh.NewResolver(aliases)
	}
	return &Pipeline{
		logger:    logger,
		resolver:  resolver,
		params:    params,
		tcpModel:  radbio.NewTCPModel(logger),
		ntcpModel: radbio.NewNTCPModel(logger),
	}
}

// Evaluate produces the OutcomeRecord for one plan. A missing required
// organ, a corrupt histogram, or an undefined model input aborts the plan
// with plan/stage/organ context; missing optional organs are recorded as
// skipped, never defaulted to zero.
func (p *Pipeline) Evaluate(ctx context.Context, set models.StructureSet) (models.OutcomeRecord, error) {
	if p.params == nil {
		return models.OutcomeRecord{}, fmt.Errorf("model parameters not configured")
	}
	plan := set.PlanID()

	record := models.OutcomeRecord{
		RecordID:  uuid.NewString(),
		PatientID: set.PatientID,
		PlanName:  set.PlanName,
		NTCP:      make(map[models.CanonicalOrgan]models.NTCPOutcome),
		Metrics:   make(map[models.CanonicalOrgan]models.OrganMetrics),
		CreatedAt: time.Now().UTC(),
	}

	// Target volume first: resolution and TCP failures always abort.
	ptvHist, err := p.resolver.Resolve(set, models.OrganPTV)
	if err != nil {
		return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageResolve, Organ: models.OrganPTV, Err: err}
	}
	ptvDiff, err := dvh.ToDifferential(ptvHist)
	if err != nil {
		return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageConvert, Organ: models.OrganPTV, Err: err}
	}
	tcpParams, ok := p.params.TCPFor(models.OrganPTV)
	if !ok {
		return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageTCP, Organ: models.OrganPTV,
			Err: fmt.Errorf("no tcp parameters configured")}
	}
	tcp, err := p.tcpModel.Compute(ptvDiff, tcpParams)
	if err != nil {
		return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageTCP, Organ: models.OrganPTV, Err: err}
	}
	record.TCP = tcp

	for _, organ := range models.KnownOrgans() {
		if organ == models.OrganPTV {
			continue
		}
		ntcpParams, ok := p.params.NTCPFor(organ)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return models.OutcomeRecord{}, err
		}

		hist, err := p.resolver.Resolve(set, organ)
		if err != nil {
			var notFound *dvh.StructureNotFoundError
			if errors.As(err, &notFound) && !p.isRequired(organ) {
				p.logger.Warn("optional organ missing, skipping",
					slog.String("plan", plan), slog.String("organ", string(organ)))
				record.Skipped = append(record.Skipped, models.SkippedOrgan{Organ: organ, Reason: err.Error()})
				continue
			}
			return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageResolve, Organ: organ, Err: err}
		}

		diff, err := dvh.ToDifferential(hist)
		if err != nil {
			return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageConvert, Organ: organ, Err: err}
		}
		ntcp, err := p.ntcpModel.Compute(diff, ntcpParams)
		if err != nil {
			return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageNTCP, Organ: organ, Err: err}
		}
		record.NTCP[organ] = ntcp

		organMetrics, err := p.organMetrics(organ, hist, diff)
		if err != nil {
			return models.OutcomeRecord{}, &EvaluationError{Plan: plan, Stage: StageMetrics, Organ: organ, Err: err}
		}
		if len(organMetrics) > 0 {
			record.Metrics[organ] = organMetrics
		}
	}

	p.logger.Debug("plan evaluated",
		slog.String("plan", plan),
		slog.Int("organs", len(record.NTCP)),
		slog.Int("skipped", len(record.Skipped)))
	return record, nil
}

// organMetrics applies the per-organ dosimetric policy: lung gets mean
// dose and V5/V20, spinal cord gets Dmax and the cc-based doses.
func (p *Pipeline) organMetrics(organ models.CanonicalOrgan, hist models.CumulativeHistogram, diff models.DifferentialHistogram) (models.OrganMetrics, error) {
	switch organ {
	case models.OrganLungTotal:
		v5, err := dosemetrics.VxPercent(hist, 5.0)
		if err != nil {
			return nil, err
		}
		v20, err := dosemetrics.VxPercent(hist, 20.0)
		if err != nil {
			return nil, err
		}
		return models.OrganMetrics{
			models.MetricMeanDoseGy: models.Metric(dosemetrics.MeanDoseGy(diff)),
			models.MetricV5Percent:  models.Metric(v5),
			models.MetricV20Percent: models.Metric(v20),
		}, nil

	case models.OrganSpinalCord:
		dmax, err := dosemetrics.DmaxGy(hist)
		if err != nil {
			return nil, err
		}
		return models.OrganMetrics{
			models.MetricDmaxGy:  models.Metric(dmax),
			models.MetricD01ccGy: p.ccMetric(hist, 0.1),
			models.MetricD1ccGy:  p.ccMetric(hist, 1.0),
		}, nil
	}
	return nil, nil
}

// ccMetric computes a DxCC dose, reporting it as explicitly unavailable
// when the absolute organ volume is unknown.
func (p *Pipeline) ccMetric(hist models.CumulativeHistogram, volumeCC float64) models.MetricValue {
	dose, err := dosemetrics.DxCCGy(hist, volumeCC)
	if err != nil {
		if errors.Is(err, dosemetrics.ErrAbsoluteVolumeUnavailable) {
			return models.UnavailableMetric("absolute organ volume unknown")
		}
		return models.UnavailableMetric(err.Error())
	}
	return models.Metric(dose)
}

func (p *Pipeline) isRequired(organ models.CanonicalOrgan) bool {
	for _, required := range p.params.Required {
		if required == organ {
			return true
		}
	}
	return false
}

// Compare diffs two outcome records field-wise (first minus second).
// Deltas exist only where both records carry an available value; anything
// else is reported as unavailable with the reason.
func Compare(a, b models.OutcomeRecord) models.ComparisonRecord {
	comparison := models.ComparisonRecord{
		PlanA:        a.PlanName,
		PlanB:        b.PlanName,
		TCPDelta:     models.Metric(a.TCP.TCP - b.TCP.TCP),
		EUDDeltaGy:   models.Metric(a.TCP.EUDGy - b.TCP.EUDGy),
		NTCPDelta:    make(map[models.CanonicalOrgan]models.MetricValue),
		MetricDeltas: make(map[models.CanonicalOrgan]models.OrganMetrics),
		Note:         fmt.Sprintf("delta = %s - %s; negative NTCP delta favors %s", a.PlanName, b.PlanName, a.PlanName),
	}

	for organ, ntcpA := range a.NTCP {
		ntcpB, ok := b.NTCP[organ]
		if !ok {
			comparison.NTCPDelta[organ] = models.UnavailableMetric(fmt.Sprintf("organ missing in plan %s", b.PlanName))
			continue
		}
		comparison.NTCPDelta[organ] = models.Metric(ntcpA.NTCP - ntcpB.NTCP)
	}
	for organ := range b.NTCP {
		if _, ok := a.NTCP[organ]; !ok {
			comparison.NTCPDelta[organ] = models.UnavailableMetric(fmt.Sprintf("organ missing in plan %s", a.PlanName))
		}
	}

	for organ, metricsA := range a.Metrics {
		metricsB, ok := b.Metrics[organ]
		if !ok {
			continue
		}
		deltas := models.OrganMetrics{}
		for name, valueA := range metricsA {
			valueB, ok := metricsB[name]
			switch {
			case !ok:
				continue
			case !valueA.Available:
				deltas[name] = models.UnavailableMetric(valueA.Reason)
			case !valueB.Available:
				deltas[name] = models.UnavailableMetric(valueB.Reason)
			default:
				deltas[name] = models.Metric(valueA.Value - valueB.Value)
			}
		}
		if len(deltas) > 0 {
			comparison.MetricDeltas[organ] = deltas
		}
	}

	return comparison
}
