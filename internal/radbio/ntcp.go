package radbio

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/oncostack/dvh-engine/internal/models"
)

// NTCPParams are the Lyman-Kutcher-Burman constants for one organ at risk.
type NTCPParams struct {
	N        float64 `yaml:"n"`
	M        float64 `yaml:"m"`
	TD50Gy   float64 `yaml:"td50_gy"`
	Endpoint string  `yaml:"endpoint"`
}

// Validate checks the parameter set. N must lie in (0,1]; n→0 makes the
// Deff exponent diverge.
func (p NTCPParams) Validate() error {
	if p.N <= 0 || p.N > 1 {
		return &ModelParameterError{Model: "ntcp", Param: "n", Msg: fmt.Sprintf("must be in (0,1], got %g", p.N)}
	}
	if p.M <= 0 {
		return &ModelParameterError{Model: "ntcp", Param: "m", Msg: fmt.Sprintf("must be positive, got %g", p.M)}
	}
	if p.TD50Gy <= 0 {
		return &ModelParameterError{Model: "ntcp", Param: "td50_gy", Msg: fmt.Sprintf("must be positive, got %g", p.TD50Gy)}
	}
	return nil
}

// Deff computes the LKB effective dose over differential bins:
//
//	Deff = ( Σ vᵢ · Dᵢ^(1/n) )^n
func Deff(diff models.DifferentialHistogram, n float64) (float64, error) {
	if n <= 0 || n > 1 {
		return 0, &ModelParameterError{Model: "ntcp", Param: "n", Msg: fmt.Sprintf("must be in (0,1], got %g", n)}
	}

	sum := 0.0
	for _, bin := range diff.Bins {
		if bin.VolumeFraction <= 0 || bin.DoseGy <= 0 {
			continue
		}
		sum += bin.VolumeFraction * math.Pow(bin.DoseGy, 1.0/n)
	}
	if sum == 0 {
		return 0, nil
	}
	return math.Pow(sum, n), nil
}

// NTCPModel computes normal tissue complication probability for an organ
// at risk using the LKB probit response.
type NTCPModel struct {
	logger *slog.Logger
}

// NewNTCPModel constructs an NTCP model. A nil logger falls back to the default.
func NewNTCPModel(logger *slog.Logger) *NTCPModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &NTCPModel{logger: logger}
}

// Compute evaluates t = (Deff − TD50) / (m·TD50) and NTCP = Φ(t). By
// construction NTCP is exactly 0.5 when Deff equals TD50.
func (m *NTCPModel) Compute(diff models.DifferentialHistogram, p NTCPParams) (models.NTCPOutcome, error) {
	if err := p.Validate(); err != nil {
		return models.NTCPOutcome{}, err
	}

	deff, err := Deff(diff, p.N)
	if err != nil {
		return models.NTCPOutcome{}, err
	}

	t := (deff - p.TD50Gy) / (p.M * p.TD50Gy)
	ntcp := normalCDF(t)
	if ntcp < 0 || ntcp > 1 || math.IsNaN(ntcp) {
		m.logger.Warn("ntcp outside [0,1], clamping",
			slog.String("structure", diff.Structure),
			slog.Float64("ntcp", ntcp),
			slog.Float64("deff_gy", deff))
		ntcp = clamp01(ntcp)
	}

	return models.NTCPOutcome{DeffGy: deff, NTCP: ntcp, Endpoint: p.Endpoint}, nil
}

// normalCDF is the standard normal cumulative distribution Φ(t).
func normalCDF(t float64) float64 {
	return 0.5 * math.Erfc(-t/math.Sqrt2)
}
