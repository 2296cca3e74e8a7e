// Package export renders outcome and comparison records for downstream
// consumption as JSON or CSV. Unavailable metrics stay distinguishable
// from zero in both formats.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/oncostack/dvh-engine/internal/models"
	"github.com/oncostack/dvh-engine/internal/services"
)

// BatchReport is the aggregate output of a directory analysis run.
type BatchReport struct {
	Records     []models.OutcomeRecord      `json:"records"`
	Comparisons []services.ComparisonResult `json:"comparisons,omitempty"`
	Failures    []PlanFailure               `json:"failures,omitempty"`
}

// PlanFailure records a plan that could not be evaluated, without
// aborting the rest of the batch.
type PlanFailure struct {
	Plan  string `json:"plan"`
	Error string `json:"error"`
}

// WriteJSON renders records as an indented JSON document.
func WriteJSON(w io.Writer, report BatchReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteRecordJSON renders a single outcome record as indented JSON.
func WriteRecordJSON(w io.Writer, record models.OutcomeRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}
