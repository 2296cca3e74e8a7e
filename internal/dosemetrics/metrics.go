// Package dosemetrics computes standard dosimetric summary values from
// dose-volume histograms: mean dose, threshold-volume fractions (Vx),
// maximum dose, and absolute-volume doses (DxCC).
package dosemetrics

import (
	"errors"
	"fmt"

	"github.com/oncostack/dvh-engine/internal/models"
)

// ErrAbsoluteVolumeUnavailable signals that a cc-based metric cannot be
// computed because the total organ volume is unknown. Callers report the
// metric as explicitly unavailable, never as a percent-based approximation.
var ErrAbsoluteVolumeUnavailable = errors.New("absolute organ volume unavailable")

// MeanDoseGy is Σ vᵢ·Dᵢ over the differential histogram.
func MeanDoseGy(diff models.DifferentialHistogram) float64 {
	mean := 0.0
	for _, bin := range diff.Bins {
		mean += bin.VolumeFraction * bin.DoseGy
	}
	return mean
}

// VxPercent returns the percentage of structure volume receiving at least
// thresholdGy, read from the cumulative table with linear interpolation
// between bracketing points.
func VxPercent(hist models.CumulativeHistogram, thresholdGy float64) (float64, error) {
	if thresholdGy < 0 {
		return 0, fmt.Errorf("dose threshold must be non-negative, got %g", thresholdGy)
	}
	if len(hist.Points) == 0 {
		return 0, fmt.Errorf("empty histogram for %s", hist.Structure)
	}

	fractions, err := fractionVolumes(hist)
	if err != nil {
		return 0, err
	}

	points := hist.Points
	switch {
	case thresholdGy <= points[0].DoseGy:
		return fractions[0] * 100, nil
	case thresholdGy >= points[len(points)-1].DoseGy:
		return fractions[len(points)-1] * 100, nil
	}

	for i := 1; i < len(points); i++ {
		if points[i].DoseGy < thresholdGy {
			continue
		}
		lo, hi := points[i-1], points[i]
		span := hi.DoseGy - lo.DoseGy
		if span == 0 {
			return fractions[i] * 100, nil
		}
		t := (thresholdGy - lo.DoseGy) / span
		return (fractions[i-1] + t*(fractions[i]-fractions[i-1])) * 100, nil
	}
	return fractions[len(points)-1] * 100, nil
}

// DmaxGy is the highest tabulated dose with nonzero cumulative volume.
func DmaxGy(hist models.CumulativeHistogram) (float64, error) {
	if len(hist.Points) == 0 {
		return 0, fmt.Errorf("empty histogram for %s", hist.Structure)
	}
	for i := len(hist.Points) - 1; i >= 0; i-- {
		if hist.Points[i].Volume > 0 {
			return hist.Points[i].DoseGy, nil
		}
	}
	return 0, nil
}

// DxCCGy is the dose received by the hottest volumeCC of the structure
// (e.g. D0.1cc, D1cc). Requires absolute volumes: either a cc export or a
// known total volume; otherwise ErrAbsoluteVolumeUnavailable.
func DxCCGy(hist models.CumulativeHistogram, volumeCC float64) (float64, error) {
	if volumeCC < 0 {
		return 0, fmt.Errorf("volume must be non-negative, got %g", volumeCC)
	}
	if len(hist.Points) == 0 {
		return 0, fmt.Errorf("empty histogram for %s", hist.Structure)
	}

	volumesCC, err := absoluteVolumes(hist)
	if err != nil {
		return 0, err
	}

	points := hist.Points
	maxVolume := volumesCC[0]
	minVolume := volumesCC[len(volumesCC)-1]
	switch {
	case volumeCC >= maxVolume:
		return points[0].DoseGy, nil
	case volumeCC <= minVolume:
		return points[len(points)-1].DoseGy, nil
	}

	// Cumulative volume decreases with dose; walk to the bracketing pair.
	for i := 1; i < len(points); i++ {
		if volumesCC[i] > volumeCC {
			continue
		}
		loV, hiV := volumesCC[i-1], volumesCC[i]
		span := loV - hiV
		if span == 0 {
			return points[i].DoseGy, nil
		}
		t := (loV - volumeCC) / span
		return points[i-1].DoseGy + t*(points[i].DoseGy-points[i-1].DoseGy), nil
	}
	return points[len(points)-1].DoseGy, nil
}

func fractionVolumes(hist models.CumulativeHistogram) ([]float64, error) {
	fractions := make([]float64, len(hist.Points))
	if hist.FractionVolumes() {
		for i, p := range hist.Points {
			fractions[i] = p.Volume
		}
		return fractions, nil
	}
	if hist.TotalCC <= 0 {
		return nil, ErrAbsoluteVolumeUnavailable
	}
	for i, p := range hist.Points {
		fractions[i] = p.Volume / hist.TotalCC
	}
	return fractions, nil
}

func absoluteVolumes(hist models.CumulativeHistogram) ([]float64, error) {
	volumes := make([]float64, len(hist.Points))
	if hist.VolumeUnit == models.VolumeUnitCC {
		for i, p := range hist.Points {
			volumes[i] = p.Volume
		}
		return volumes, nil
	}
	if hist.TotalCC <= 0 {
		return nil, ErrAbsoluteVolumeUnavailable
	}
	for i, p := range hist.Points {
		volumes[i] = p.Volume * hist.TotalCC
	}
	return volumes, nil
}
