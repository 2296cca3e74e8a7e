package models

import (
	"encoding/json"
	"time"
)

// MetricValue carries a numeric result that may be explicitly unavailable.
// Unavailable is distinct from zero: serializers render a null value plus
// the reason, never a substitute number.
type MetricValue struct {
	Value     float64
	Available bool
	Reason    string
}

// Metric wraps an available numeric value.
func Metric(value float64) MetricValue {
	return MetricValue{Value: value, Available: true}
}

// UnavailableMetric records why a metric could not be computed.
func UnavailableMetric(reason string) MetricValue {
	return MetricValue{Reason: reason}
}

type metricValueJSON struct {
	Value  *float64 `json:"value"`
	Reason string   `json:"reason,omitempty"`
}

// MarshalJSON emits {"value": x} when available and {"value": null,
// "reason": ...} otherwise.
func (m MetricValue) MarshalJSON() ([]byte, error) {
	if !m.Available {
		return json.Marshal(metricValueJSON{Reason: m.Reason})
	}
	v := m.Value
	return json.Marshal(metricValueJSON{Value: &v})
}

// UnmarshalJSON restores a MetricValue from its wire form.
func (m *MetricValue) UnmarshalJSON(data []byte) error {
	var wire metricValueJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Value == nil {
		*m = UnavailableMetric(wire.Reason)
		return nil
	}
	*m = Metric(*wire.Value)
	return nil
}

// TCPOutcome is the target-volume result of the Niemierko model.
type TCPOutcome struct {
	EUDGy float64 `json:"eud_gy"`
	TCP   float64 `json:"tcp"`
}

// NTCPOutcome is the per-organ result of the LKB model.
type NTCPOutcome struct {
	DeffGy   float64 `json:"deff_gy"`
	NTCP     float64 `json:"ntcp"`
	Endpoint string  `json:"endpoint,omitempty"`
}

// Metric name keys used in OrganMetrics maps.
const (
	MetricMeanDoseGy = "mean_dose_gy"
	MetricV5Percent  = "v5_percent"
	MetricV20Percent = "v20_percent"
	MetricDmaxGy     = "dmax_gy"
	MetricD01ccGy    = "d0_1cc_gy"
	MetricD1ccGy     = "d1cc_gy"
)

// OrganMetrics maps metric names to values for one organ.
type OrganMetrics map[string]MetricValue

// SkippedOrgan records an organ whose evaluation was skipped, and why.
type SkippedOrgan struct {
	Organ  CanonicalOrgan `json:"organ"`
	Reason string         `json:"reason"`
}

// OutcomeRecord is the immutable per-plan evaluation result.
type OutcomeRecord struct {
	RecordID  string                          `json:"record_id"`
	PatientID string                          `json:"patient_id"`
	PlanName  string                          `json:"plan_name"`
	TCP       TCPOutcome                      `json:"tcp"`
	NTCP      map[CanonicalOrgan]NTCPOutcome  `json:"ntcp"`
	Metrics   map[CanonicalOrgan]OrganMetrics `json:"metrics"`
	Skipped   []SkippedOrgan                  `json:"skipped,omitempty"`
	CreatedAt time.Time                       `json:"created_at"`
}

// ComparisonRecord holds field-wise deltas between two plans, computed as
// first minus second. Deltas exist only for fields available in both records.
type ComparisonRecord struct {
	PlanA        string                          `json:"plan_a"`
	PlanB        string                          `json:"plan_b"`
	TCPDelta     MetricValue                     `json:"tcp_delta"`
	EUDDeltaGy   MetricValue                     `json:"eud_delta_gy"`
	NTCPDelta    map[CanonicalOrgan]MetricValue  `json:"ntcp_delta"`
	MetricDeltas map[CanonicalOrgan]OrganMetrics `json:"metric_deltas"`
	Note         string                          `json:"note,omitempty"`
}
