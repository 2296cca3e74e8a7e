package dvh

import (
	"errors"
	"math"
	"testing"

	"github.com/oncostack/dvh-engine/internal/models"
)

func percentHistogram(points ...models.DoseVolumePoint) models.CumulativeHistogram {
	return models.CumulativeHistogram{
		Structure:  "PTV",
		VolumeUnit: models.VolumeUnitPercent,
		Points:     points,
	}
}

func TestToDifferentialMidpointBins(t *testing.T) {
	hist := percentHistogram(
		models.DoseVolumePoint{DoseGy: 0, Volume: 1.0},
		models.DoseVolumePoint{DoseGy: 10, Volume: 0.8},
		models.DoseVolumePoint{DoseGy: 20, Volume: 0.3},
		models.DoseVolumePoint{DoseGy: 30, Volume: 0},
	)

	diff, err := ToDifferential(hist)
	if err != nil {
		t.Fatalf("ToDifferential failed: %v", err)
	}
	if len(diff.Bins) != 4 {
		t.Fatalf("got %d bins, want 4", len(diff.Bins))
	}

	want := []models.DoseBin{
		{DoseGy: 5, VolumeFraction: 0.2},
		{DoseGy: 15, VolumeFraction: 0.5},
		{DoseGy: 25, VolumeFraction: 0.3},
		{DoseGy: 35, VolumeFraction: 0},
	}
	for i, bin := range diff.Bins {
		if math.Abs(bin.DoseGy-want[i].DoseGy) > 1e-12 {
			t.Errorf("bin %d dose = %g, want %g", i, bin.DoseGy, want[i].DoseGy)
		}
		if math.Abs(bin.VolumeFraction-want[i].VolumeFraction) > 1e-12 {
			t.Errorf("bin %d fraction = %g, want %g", i, bin.VolumeFraction, want[i].VolumeFraction)
		}
	}
	if sum := diff.Sum(); math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("bin sum = %g, want 1", sum)
	}
}

func TestToDifferentialTrailingBinCarriesResidual(t *testing.T) {
	// Cumulative volume never reaches zero; the trailing bin must carry
	// the residual so total volume is conserved.
	hist := percentHistogram(
		models.DoseVolumePoint{DoseGy: 0, Volume: 1.0},
		models.DoseVolumePoint{DoseGy: 40, Volume: 0.6},
		models.DoseVolumePoint{DoseGy: 60, Volume: 0.4},
	)

	diff, err := ToDifferential(hist)
	if err != nil {
		t.Fatalf("ToDifferential failed: %v", err)
	}
	last := diff.Bins[len(diff.Bins)-1]
	if math.Abs(last.VolumeFraction-0.4) > 1e-12 {
		t.Errorf("trailing fraction = %g, want 0.4", last.VolumeFraction)
	}
	if math.Abs(last.DoseGy-70) > 1e-12 {
		t.Errorf("trailing dose = %g, want 70 (last + half spacing)", last.DoseGy)
	}
}

func TestToDifferentialAbsoluteVolumes(t *testing.T) {
	hist := models.CumulativeHistogram{
		Structure:  "SPINAL_CORD",
		VolumeUnit: models.VolumeUnitCC,
		TotalCC:    30,
		Points: []models.DoseVolumePoint{
			{DoseGy: 0, Volume: 30},
			{DoseGy: 10, Volume: 20},
			{DoseGy: 30, Volume: 5},
			{DoseGy: 45, Volume: 0},
		},
	}

	diff, err := ToDifferential(hist)
	if err != nil {
		t.Fatalf("ToDifferential failed: %v", err)
	}
	if sum := diff.Sum(); math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("bin sum = %g, want 1", sum)
	}
}

func TestToDifferentialUnknownTotalVolume(t *testing.T) {
	hist := models.CumulativeHistogram{
		Structure:  "SPINAL_CORD",
		VolumeUnit: models.VolumeUnitCC,
		Points: []models.DoseVolumePoint{
			{DoseGy: 10, Volume: 20},
			{DoseGy: 45, Volume: 0},
		},
	}

	_, err := ToDifferential(hist)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("got %v, want FormatError for unknown total volume", err)
	}
}

func TestToDifferentialSumViolation(t *testing.T) {
	// A truncated table whose fractions sum well below 1.
	hist := percentHistogram(
		models.DoseVolumePoint{DoseGy: 0, Volume: 0.5},
		models.DoseVolumePoint{DoseGy: 20, Volume: 0.2},
		models.DoseVolumePoint{DoseGy: 40, Volume: 0},
	)

	_, err := ToDifferential(hist)
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("got %v, want ConversionError", err)
	}
	if math.Abs(convErr.Sum-0.5) > 1e-12 {
		t.Errorf("reported sum = %g, want 0.5", convErr.Sum)
	}
}

func TestToDifferentialEmptyHistogram(t *testing.T) {
	_, err := ToDifferential(percentHistogram())
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("got %v, want ConversionError for empty histogram", err)
	}
}

func TestRoundTripReconstruction(t *testing.T) {
	hist := percentHistogram(
		models.DoseVolumePoint{DoseGy: 0, Volume: 1.0},
		models.DoseVolumePoint{DoseGy: 15, Volume: 0.75},
		models.DoseVolumePoint{DoseGy: 30, Volume: 0.4},
		models.DoseVolumePoint{DoseGy: 50, Volume: 0.1},
		models.DoseVolumePoint{DoseGy: 66, Volume: 0},
	)

	diff, err := ToDifferential(hist)
	if err != nil {
		t.Fatalf("ToDifferential failed: %v", err)
	}
	rebuilt := ReconstructCumulative(diff)
	if len(rebuilt) != len(hist.Points) {
		t.Fatalf("rebuilt %d values, want %d", len(rebuilt), len(hist.Points))
	}
	for i, p := range hist.Points {
		if math.Abs(rebuilt[i]-p.Volume) > 1e-9 {
			t.Errorf("rebuilt[%d] = %g, want %g", i, rebuilt[i], p.Volume)
		}
	}
}
