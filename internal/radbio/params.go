package radbio

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oncostack/dvh-engine/internal/models"
)

// Parameters is the process-wide, read-only model configuration: per-organ
// TCP/NTCP constants plus the structure-name alias table and the set of
// organs whose absence aborts a plan. Loaded once at startup and shared
// across concurrent evaluations without synchronization.
type Parameters struct {
	TCP      map[models.CanonicalOrgan]TCPParams
	NTCP     map[models.CanonicalOrgan]NTCPParams
	Aliases  map[models.CanonicalOrgan][]string
	Required []models.CanonicalOrgan
}

type parametersFile struct {
	TCP        map[string]TCPParams  `yaml:"tcp"`
	NTCP       map[string]NTCPParams `yaml:"ntcp"`
	Structures struct {
		Aliases  map[string][]string `yaml:"aliases"`
		Required []string            `yaml:"required"`
	} `yaml:"structures"`
}

// Load reads model parameters from a YAML file. An empty path or a missing
// file yields the shipped defaults; a present but invalid file is an error.
func Load(path string) (*Parameters, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read parameters file: %w", err)
	}

	var file parametersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse parameters file: %w", err)
	}

	params := Defaults()
	for name, tcp := range file.TCP {
		organ, err := models.ParseOrgan(name)
		if err != nil {
			return nil, fmt.Errorf("tcp parameters: %w", err)
		}
		params.TCP[organ] = tcp
	}
	for name, ntcp := range file.NTCP {
		organ, err := models.ParseOrgan(name)
		if err != nil {
			return nil, fmt.Errorf("ntcp parameters: %w", err)
		}
		params.NTCP[organ] = ntcp
	}
	if len(file.Structures.Aliases) > 0 {
		params.Aliases = make(map[models.CanonicalOrgan][]string, len(file.Structures.Aliases))
		for name, aliases := range file.Structures.Aliases {
			organ, err := models.ParseOrgan(name)
			if err != nil {
				return nil, fmt.Errorf("structure aliases: %w", err)
			}
			params.Aliases[organ] = append([]string(nil), aliases...)
		}
	}
	if len(file.Structures.Required) > 0 {
		params.Required = params.Required[:0]
		for _, name := range file.Structures.Required {
			organ, err := models.ParseOrgan(name)
			if err != nil {
				return nil, fmt.Errorf("required structures: %w", err)
			}
			params.Required = append(params.Required, organ)
		}
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// Validate checks every configured parameter set up front so undefined
// model inputs fail at startup instead of mid-evaluation.
func (p *Parameters) Validate() error {
	for organ, tcp := range p.TCP {
		if err := tcp.Validate(); err != nil {
			return fmt.Errorf("organ %s: %w", organ, err)
		}
	}
	for organ, ntcp := range p.NTCP {
		if err := ntcp.Validate(); err != nil {
			return fmt.Errorf("organ %s: %w", organ, err)
		}
	}
	return nil
}

// TCPFor returns the TCP constants for an organ.
func (p *Parameters) TCPFor(organ models.CanonicalOrgan) (TCPParams, bool) {
	params, ok := p.TCP[organ]
	return params, ok
}

// NTCPFor returns the NTCP constants for an organ.
func (p *Parameters) NTCPFor(organ models.CanonicalOrgan) (NTCPParams, bool) {
	params, ok := p.NTCP[organ]
	return params, ok
}

// Defaults returns the shipped parameter set for lung cancer RT plans.
// LKB constants follow the Burman/QUANTEC fits used in the clinic.
func Defaults() *Parameters {
	return &Parameters{
		TCP: map[models.CanonicalOrgan]TCPParams{
			models.OrganPTV: {A: -10, TCD50Gy: 60.0, Gamma50: 2.0},
		},
		NTCP: map[models.CanonicalOrgan]NTCPParams{
			models.OrganLungTotal:  {N: 0.87, M: 0.18, TD50Gy: 24.5, Endpoint: "radiation pneumonitis grade >=2"},
			models.OrganHeart:      {N: 0.35, M: 0.10, TD50Gy: 48.0, Endpoint: "pericarditis"},
			models.OrganEsophagus:  {N: 0.69, M: 0.36, TD50Gy: 47.0, Endpoint: "acute esophagitis grade >=2"},
			models.OrganSpinalCord: {N: 0.05, M: 0.175, TD50Gy: 66.5, Endpoint: "myelopathy"},
		},
		Required: []models.CanonicalOrgan{models.OrganPTV},
	}
}
