package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/oncostack/dvh-engine/internal/engine"
	"github.com/oncostack/dvh-engine/internal/radbio"
)

const vmatExport = `Patient ID: PT001  Plan Name: PT001_VMAT

PTV
Dose [Gy]  Volume [%]
0    100
58   100
62   0

LUNG_TOTAL
Dose [Gy]  Volume [%]
0    100
5    80
20   30
40   0
`

const imrtExport = `Patient ID: PT001  Plan Name: PT001_IMRT

PTV
Dose [Gy]  Volume [%]
0    100
58   100
62   0

LUNG_TOTAL
Dose [Gy]  Volume [%]
0    100
5    60
20   10
40   0
`

func newService() *EvaluationService {
	pipeline := engine.NewPipeline(nil, nil, radbio.Defaults())
	return NewEvaluationService(nil, pipeline)
}

func TestEvaluatePlan(t *testing.T) {
	service := newService()

	record, err := service.EvaluatePlan(context.Background(), "upload", strings.NewReader(vmatExport))
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if record.PlanName != "PT001_VMAT" {
		t.Errorf("plan = %q, want name from export metadata", record.PlanName)
	}
	if math.Abs(record.TCP.TCP-0.5) > 1e-9 {
		t.Errorf("TCP = %g, want 0.5", record.TCP.TCP)
	}
	if service.LatencyP95() <= 0 {
		t.Error("no latency sample recorded after success")
	}
}

func TestEvaluatePlanFallbackName(t *testing.T) {
	service := newService()

	// Export without a metadata line takes the caller-supplied name.
	export := strings.Replace(vmatExport, "Patient ID: PT001  Plan Name: PT001_VMAT\n\n", "", 1)
	record, err := service.EvaluatePlan(context.Background(), "plan-from-filename", strings.NewReader(export))
	if err != nil {
		t.Fatalf("EvaluatePlan failed: %v", err)
	}
	if record.PlanName != "plan-from-filename" {
		t.Errorf("plan = %q, want fallback name", record.PlanName)
	}
}

func TestEvaluatePlanParseFailure(t *testing.T) {
	service := newService()

	_, err := service.EvaluatePlan(context.Background(), "broken", strings.NewReader("garbage\n"))
	var evalErr *engine.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("got %v, want EvaluationError", err)
	}
	if evalErr.Stage != engine.StageParse {
		t.Errorf("stage = %s, want parse", evalErr.Stage)
	}
	if evalErr.Plan != "broken" {
		t.Errorf("plan = %q, want caller-supplied name", evalErr.Plan)
	}
}

func TestComparePlans(t *testing.T) {
	service := newService()

	result, err := service.ComparePlans(context.Background(),
		"a", strings.NewReader(vmatExport),
		"b", strings.NewReader(imrtExport))
	if err != nil {
		t.Fatalf("ComparePlans failed: %v", err)
	}
	if result.Comparison.PlanA != "PT001_VMAT" || result.Comparison.PlanB != "PT001_IMRT" {
		t.Errorf("comparison plans = %s vs %s", result.Comparison.PlanA, result.Comparison.PlanB)
	}
	if !result.Comparison.TCPDelta.Available {
		t.Error("TCP delta unavailable for two complete plans")
	}
}

func TestComparePlansFirstFailureAborts(t *testing.T) {
	service := newService()

	_, err := service.ComparePlans(context.Background(),
		"a", strings.NewReader("garbage\n"),
		"b", strings.NewReader(imrtExport))
	if err == nil {
		t.Fatal("comparison with a broken plan did not fail")
	}
}
