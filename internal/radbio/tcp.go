package radbio

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/oncostack/dvh-engine/internal/models"
)

// TCPParams are the Niemierko model constants for a target volume.
type TCPParams struct {
	A       float64 `yaml:"a"`
	TCD50Gy float64 `yaml:"tcd50_gy"`
	Gamma50 float64 `yaml:"gamma50"`
}

// Validate checks the parameter set for mathematically undefined values.
func (p TCPParams) Validate() error {
	if p.A == 0 {
		return &ModelParameterError{Model: "tcp", Param: "a", Msg: "must be non-zero"}
	}
	if p.TCD50Gy <= 0 {
		return &ModelParameterError{Model: "tcp", Param: "tcd50_gy", Msg: fmt.Sprintf("must be positive, got %g", p.TCD50Gy)}
	}
	if p.Gamma50 <= 0 {
		return &ModelParameterError{Model: "tcp", Param: "gamma50", Msg: fmt.Sprintf("must be positive, got %g", p.Gamma50)}
	}
	return nil
}

// EUD computes Niemierko's equivalent uniform dose over differential bins:
//
//	EUD = ( Σ vᵢ · Dᵢᵃ )^(1/a)
//
// a is typically negative for tumors, weighting cold spots heavily.
func EUD(diff models.DifferentialHistogram, a float64) (float64, error) {
	if a == 0 {
		return 0, &ModelParameterError{Model: "tcp", Param: "a", Msg: "must be non-zero"}
	}

	fractional := a != math.Trunc(a)
	sum := 0.0
	weight := 0.0
	for _, bin := range diff.Bins {
		if bin.VolumeFraction <= 0 {
			continue
		}
		if bin.DoseGy <= 0 {
			// D^a is undefined in the reals for fractional a, and
			// divergent for negative a.
			if fractional || a < 0 {
				return 0, &ModelParameterError{Model: "tcp", Param: "a",
					Msg: fmt.Sprintf("non-positive dose %.4f Gy with exponent %g", bin.DoseGy, a)}
			}
			weight += bin.VolumeFraction
			continue
		}
		sum += bin.VolumeFraction * math.Pow(bin.DoseGy, a)
		weight += bin.VolumeFraction
	}
	if weight == 0 {
		return 0, &ModelParameterError{Model: "tcp", Param: "histogram", Msg: "no volume in differential histogram"}
	}
	return math.Pow(sum, 1.0/a), nil
}

// TCPModel computes tumor control probability from a PTV differential
// histogram using the Niemierko EUD-based logistic response.
type TCPModel struct {
	logger *slog.Logger
}

// NewTCPModel constructs a TCP model. A nil logger falls back to the default.
func NewTCPModel(logger *slog.Logger) *TCPModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPModel{logger: logger}
}

// Compute evaluates TCP = 1 / (1 + (TCD50/EUD)^(4·γ50)). Out-of-range
// results from numerical edge cases are clamped to [0,1] with a warning.
func (m *TCPModel) Compute(diff models.DifferentialHistogram, p TCPParams) (models.TCPOutcome, error) {
	if err := p.Validate(); err != nil {
		return models.TCPOutcome{}, err
	}

	eud, err := EUD(diff, p.A)
	if err != nil {
		return models.TCPOutcome{}, err
	}
	if eud <= 0 {
		return models.TCPOutcome{}, &ModelParameterError{Model: "tcp", Param: "eud",
			Msg: fmt.Sprintf("EUD must be positive, got %g Gy", eud)}
	}

	tcp := 1.0 / (1.0 + math.Pow(p.TCD50Gy/eud, 4*p.Gamma50))
	if tcp < 0 || tcp > 1 || math.IsNaN(tcp) {
		m.logger.Warn("tcp outside [0,1], clamping",
			slog.String("structure", diff.Structure),
			slog.Float64("tcp", tcp),
			slog.Float64("eud_gy", eud))
		tcp = clamp01(tcp)
	}

	return models.TCPOutcome{EUDGy: eud, TCP: tcp}, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
