package models

import "fmt"

// DoseUnit enumerates recognized dose units in TPS exports.
type DoseUnit string

const (
	DoseUnitGy  DoseUnit = "Gy"
	DoseUnitCGy DoseUnit = "cGy"
)

// VolumeUnit enumerates recognized volume units in TPS exports.
type VolumeUnit string

const (
	VolumeUnitPercent VolumeUnit = "%"
	VolumeUnitCC      VolumeUnit = "cc"
)

// DoseVolumePoint is one row of a cumulative DVH table: the volume at or
// above the given dose. Dose is always stored in Gy; volume is a fraction
// in [0,1] for relative exports and absolute cc for cc exports.
type DoseVolumePoint struct {
	DoseGy float64
	Volume float64
}

// CumulativeHistogram holds the cumulative DVH of a single structure.
// Points are ordered by strictly non-decreasing dose and volumes are
// monotonically non-increasing (cumulative-above convention); both are
// enforced at parse time.
type CumulativeHistogram struct {
	Structure  string
	Points     []DoseVolumePoint
	VolumeUnit VolumeUnit

	// TotalCC is the absolute structure volume in cc, when known
	// (cc exports whose table starts at 0 Gy). Zero means unknown.
	TotalCC float64
}

// FractionVolumes reports whether the stored volumes are unit fractions.
func (h CumulativeHistogram) FractionVolumes() bool {
	return h.VolumeUnit == VolumeUnitPercent
}

// MaxDoseGy returns the highest tabulated dose, or zero for an empty histogram.
func (h CumulativeHistogram) MaxDoseGy() float64 {
	if len(h.Points) == 0 {
		return 0
	}
	return h.Points[len(h.Points)-1].DoseGy
}

// DoseBin is one bin of a differential DVH: the volume fraction deposited
// around the bin's midpoint dose.
type DoseBin struct {
	DoseGy         float64
	VolumeFraction float64
}

// DifferentialHistogram is the per-bin form derived from a cumulative
// histogram. Volume fractions sum to 1.0 within tolerance.
type DifferentialHistogram struct {
	Structure string
	Bins      []DoseBin
}

// Sum returns the total volume fraction across all bins.
func (h DifferentialHistogram) Sum() float64 {
	total := 0.0
	for _, bin := range h.Bins {
		total += bin.VolumeFraction
	}
	return total
}

// StructureSet maps raw TPS structure names to their cumulative histograms
// for one plan. It is created per parsed file and discarded after the
// plan's OutcomeRecord is produced.
type StructureSet struct {
	PatientID  string
	PlanName   string
	Structures map[string]CumulativeHistogram
}

// Structure returns the histogram for an exact raw name.
func (s StructureSet) Structure(name string) (CumulativeHistogram, bool) {
	h, ok := s.Structures[name]
	return h, ok
}

// StructureNames lists all raw structure names present in the plan.
func (s StructureSet) StructureNames() []string {
	names := make([]string, 0, len(s.Structures))
	for name := range s.Structures {
		names = append(names, name)
	}
	return names
}

// PlanID renders the patient/plan identity used in error and log context.
func (s StructureSet) PlanID() string {
	if s.PatientID == "" {
		return s.PlanName
	}
	return fmt.Sprintf("%s/%s", s.PatientID, s.PlanName)
}
