package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/oncostack/dvh-engine/internal/models"
)

func sampleRecord() models.OutcomeRecord {
	return models.OutcomeRecord{
		RecordID:  "rec-1",
		PatientID: "PT001",
		PlanName:  "PT001_VMAT",
		TCP:       models.TCPOutcome{EUDGy: 60, TCP: 0.5},
		NTCP: map[models.CanonicalOrgan]models.NTCPOutcome{
			models.OrganLungTotal:  {DeffGy: 14.2, NTCP: 0.08, Endpoint: "radiation pneumonitis grade >=2"},
			models.OrganSpinalCord: {DeffGy: 38.0, NTCP: 0.003, Endpoint: "myelopathy"},
		},
		Metrics: map[models.CanonicalOrgan]models.OrganMetrics{
			models.OrganLungTotal: {
				models.MetricMeanDoseGy: models.Metric(15.75),
				models.MetricV5Percent:  models.Metric(80),
				models.MetricV20Percent: models.Metric(30),
			},
			models.OrganSpinalCord: {
				models.MetricDmaxGy:  models.Metric(44),
				models.MetricD01ccGy: models.UnavailableMetric("absolute organ volume unknown"),
				models.MetricD1ccGy:  models.UnavailableMetric("absolute organ volume unknown"),
			},
		},
		CreatedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteCSVUnavailableCellsStayEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, []models.OutcomeRecord{sampleRecord()}); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus one record", len(rows))
	}

	header, row := rows[0], rows[1]
	byName := make(map[string]string, len(header))
	for i, name := range header {
		byName[name] = row[i]
	}

	if byName["patient_id"] != "PT001" {
		t.Errorf("patient_id = %q", byName["patient_id"])
	}
	if byName["lung_v20_percent"] != "30.000000" {
		t.Errorf("lung_v20_percent = %q, want 30.000000", byName["lung_v20_percent"])
	}
	// Unavailable metrics and absent organs must stay empty, never zero.
	if byName["spinal_cord_d1cc_gy"] != "" {
		t.Errorf("spinal_cord_d1cc_gy = %q, want empty cell", byName["spinal_cord_d1cc_gy"])
	}
	if byName["heart_ntcp"] != "" {
		t.Errorf("heart_ntcp = %q, want empty cell for absent organ", byName["heart_ntcp"])
	}
}

func TestWriteJSONKeepsUnavailableReason(t *testing.T) {
	report := BatchReport{
		Records:  []models.OutcomeRecord{sampleRecord()},
		Failures: []PlanFailure{{Plan: "corrupt", Error: "no structure block found"}},
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, report); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded BatchReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(decoded.Records) != 1 || len(decoded.Failures) != 1 {
		t.Fatalf("round trip lost entries: %+v", decoded)
	}

	cord := decoded.Records[0].Metrics[models.OrganSpinalCord]
	d1cc := cord[models.MetricD1ccGy]
	if d1cc.Available {
		t.Errorf("D1cc decoded as available: %+v", d1cc)
	}
	if d1cc.Reason != "absolute organ volume unknown" {
		t.Errorf("D1cc reason = %q", d1cc.Reason)
	}
	if !strings.Contains(buf.String(), `"value": null`) {
		t.Error("unavailable metric not rendered as null value")
	}
}

func TestWriteRecordJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecordJSON(&buf, sampleRecord()); err != nil {
		t.Fatalf("WriteRecordJSON failed: %v", err)
	}
	var decoded models.OutcomeRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if decoded.RecordID != "rec-1" || decoded.TCP.EUDGy != 60 {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}
