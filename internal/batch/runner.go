// Package batch evaluates a directory of DVH exports in parallel and
// pairs rival plans for the same patient into comparisons.
package batch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oncostack/dvh-engine/internal/engine"
	"github.com/oncostack/dvh-engine/internal/export"
	"github.com/oncostack/dvh-engine/internal/models"
	"github.com/oncostack/dvh-engine/internal/services"
)

// Runner walks a directory of exports and evaluates each plan with a
// bounded worker pool. One plan failing never aborts the rest.
type Runner struct {
	logger  *slog.Logger
	service *services.EvaluationService
	workers int
}

// NewRunner constructs a batch runner. workers below 1 is clamped to 1.
func NewRunner(logger *slog.Logger, service *services.EvaluationService, workers int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Runner{logger: logger, service: service, workers: workers}
}

type planResult struct {
	plan   string
	record models.OutcomeRecord
	err    error
}

// Run evaluates every .txt export under dir and returns the aggregate
// report: all successful records, paired plan comparisons, and per-plan
// failures.
func (r *Runner) Run(ctx context.Context, dir string) (export.BatchReport, error) {
	paths, err := r.collect(dir)
	if err != nil {
		return export.BatchReport{}, err
	}
	r.logger.Info("starting batch analysis",
		slog.String("dir", dir), slog.Int("plans", len(paths)), slog.Int("workers", r.workers))

	results := r.evaluateAll(ctx, paths)

	report := export.BatchReport{}
	for _, result := range results {
		if result.err != nil {
			r.logger.Warn("plan failed, continuing batch",
				slog.String("plan", result.plan), slog.Any("error", result.err))
			report.Failures = append(report.Failures, export.PlanFailure{
				Plan:  result.plan,
				Error: result.err.Error(),
			})
			continue
		}
		report.Records = append(report.Records, result.record)
	}

	sort.Slice(report.Records, func(i, j int) bool {
		a, b := report.Records[i], report.Records[j]
		if a.PatientID != b.PatientID {
			return a.PatientID < b.PatientID
		}
		return a.PlanName < b.PlanName
	})

	report.Comparisons = pairComparisons(report.Records)
	return report, nil
}

// collect lists the .txt exports under dir, sorted for deterministic order.
func (r *Runner) collect(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *Runner) evaluateAll(ctx context.Context, paths []string) []planResult {
	jobs := make(chan string)
	results := make([]planResult, 0, len(paths))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				result := r.evaluateOne(ctx, path)
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	return results
}

func (r *Runner) evaluateOne(ctx context.Context, path string) planResult {
	plan := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return planResult{plan: plan, err: &engine.EvaluationError{Plan: plan, Stage: engine.StageParse, Err: err}}
	}
	defer f.Close()

	record, err := r.service.EvaluatePlan(ctx, plan, f)
	if err != nil {
		return planResult{plan: plan, err: err}
	}
	return planResult{plan: plan, record: record}
}

// pairComparisons matches each patient's VMAT plan against their IMRT
// plan, by technique keyword in the plan name. Patients with only one
// technique produce no comparison.
func pairComparisons(records []models.OutcomeRecord) []services.ComparisonResult {
	byPatient := make(map[string][]models.OutcomeRecord)
	var patients []string
	for _, record := range records {
		if _, seen := byPatient[record.PatientID]; !seen {
			patients = append(patients, record.PatientID)
		}
		byPatient[record.PatientID] = append(byPatient[record.PatientID], record)
	}
	sort.Strings(patients)

	var comparisons []services.ComparisonResult
	for _, patient := range patients {
		var vmat, imrt *models.OutcomeRecord
		for i := range byPatient[patient] {
			record := &byPatient[patient][i]
			name := strings.ToUpper(record.PlanName)
			switch {
			case strings.Contains(name, "VMAT") && vmat == nil:
				vmat = record
			case strings.Contains(name, "IMRT") && imrt == nil:
				imrt = record
			}
		}
		if vmat == nil || imrt == nil {
			continue
		}
		comparisons = append(comparisons, services.ComparisonResult{
			PlanA:      *vmat,
			PlanB:      *imrt,
			Comparison: engine.Compare(*vmat, *imrt),
		})
	}
	return comparisons
}
