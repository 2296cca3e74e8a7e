package dvh

import (
	"math"

	"github.com/oncostack/dvh-engine/internal/models"
)

// Sum-to-one tolerance for converted differential histograms.
const sumTolerance = 1e-3

// ToDifferential derives the differential histogram from a cumulative one.
// Each adjacent pair of cumulative points yields a bin at the dose midpoint
// carrying the volume fraction dropped between them; the trailing bin above
// the last point carries the remaining volume down to zero.
func ToDifferential(hist models.CumulativeHistogram) (models.DifferentialHistogram, error) {
	points := hist.Points
	if len(points) == 0 {
		return models.DifferentialHistogram{}, &ConversionError{Structure: hist.Structure, Msg: "empty cumulative histogram"}
	}

	volumes := make([]float64, len(points))
	if hist.FractionVolumes() {
		for i, p := range points {
			volumes[i] = p.Volume
		}
	} else {
		if hist.TotalCC <= 0 {
			return models.DifferentialHistogram{}, &FormatError{Structure: hist.Structure,
				Msg: "absolute-volume histogram without known total volume; fraction-based computation unavailable"}
		}
		for i, p := range points {
			volumes[i] = p.Volume / hist.TotalCC
		}
	}

	bins := make([]models.DoseBin, 0, len(points))
	for i := 0; i < len(points)-1; i++ {
		drop := volumes[i] - volumes[i+1]
		if drop < 0 {
			return models.DifferentialHistogram{}, &ConversionError{Structure: hist.Structure, Sum: drop,
				Msg: "negative bin volume; cumulative monotonicity violated upstream"}
		}
		bins = append(bins, models.DoseBin{
			DoseGy:         (points[i].DoseGy + points[i+1].DoseGy) / 2,
			VolumeFraction: drop,
		})
	}

	// Trailing bin above the last tabulated dose.
	last := len(points) - 1
	trailingDose := points[last].DoseGy
	if last > 0 {
		trailingDose += (points[last].DoseGy - points[last-1].DoseGy) / 2
	}
	bins = append(bins, models.DoseBin{DoseGy: trailingDose, VolumeFraction: volumes[last]})

	diff := models.DifferentialHistogram{Structure: hist.Structure, Bins: bins}
	if sum := diff.Sum(); math.Abs(sum-1.0) > sumTolerance {
		return models.DifferentialHistogram{}, &ConversionError{Structure: hist.Structure, Sum: sum,
			Msg: "differential volumes do not sum to 1"}
	}
	return diff, nil
}

// ReconstructCumulative rebuilds cumulative volume values from a
// differential histogram by summing bins from the tail. Index i holds the
// fraction of volume at or above the dose of the i-th source point.
func ReconstructCumulative(diff models.DifferentialHistogram) []float64 {
	cumulative := make([]float64, len(diff.Bins))
	tail := 0.0
	for i := len(diff.Bins) - 1; i >= 0; i-- {
		tail += diff.Bins[i].VolumeFraction
		cumulative[i] = tail
	}
	return cumulative
}
