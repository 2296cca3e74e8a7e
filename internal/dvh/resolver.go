package dvh

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oncostack/dvh-engine/internal/models"
)

// Resolver maps raw TPS structure names onto canonical organ roles using a
// priority-ordered alias list per organ. The first alias that matches a
// structure in the plan wins, which is how LUNG_TOTAL is preferred over
// LUNGS when both are exported.
type Resolver struct {
	aliases map[models.CanonicalOrgan][]string
}

// NewResolver builds a resolver from per-organ alias lists. Matching is
// case-insensitive exact; alias order is priority order.
func NewResolver(aliases map[models.CanonicalOrgan][]string) *Resolver {
	normalized := make(map[models.CanonicalOrgan][]string, len(aliases))
	for organ, names := range aliases {
		normalized[organ] = append([]string(nil), names...)
	}
	return &Resolver{aliases: normalized}
}

// DefaultAliases is the shipped structure-name table for lung cancer RT
// plans, overridable from the parameters file.
func DefaultAliases() map[models.CanonicalOrgan][]string {
	return map[models.CanonicalOrgan][]string{
		models.OrganPTV:        {"PTV_6600", "PTV_6000", "PTV"},
		models.OrganLungTotal:  {"LUNG_TOTAL", "LUNGS"},
		models.OrganHeart:      {"HEART"},
		models.OrganEsophagus:  {"ESOPHAGUS", "OESOPHAGUS"},
		models.OrganSpinalCord: {"SPINAL_CORD", "CORD"},
	}
}

// Resolve finds the histogram for a canonical organ, or fails with a
// StructureNotFoundError naming the organ, the plan, and what was tried.
// Unmapped structures in the plan are simply ignored.
func (r *Resolver) Resolve(set models.StructureSet, organ models.CanonicalOrgan) (models.CumulativeHistogram, error) {
	aliases, ok := r.aliases[organ]
	if !ok || len(aliases) == 0 {
		return models.CumulativeHistogram{}, fmt.Errorf("no aliases configured for organ %s", organ)
	}

	byFold := make(map[string]string, len(set.Structures))
	for name := range set.Structures {
		byFold[strings.ToUpper(name)] = name
	}

	for _, alias := range aliases {
		if raw, found := byFold[strings.ToUpper(alias)]; found {
			return set.Structures[raw], nil
		}
	}

	available := set.StructureNames()
	sort.Strings(available)
	return models.CumulativeHistogram{}, &StructureNotFoundError{
		Organ:     strings.ToUpper(string(organ)),
		Plan:      set.PlanID(),
		Tried:     append([]string(nil), aliases...),
		Available: available,
	}
}
