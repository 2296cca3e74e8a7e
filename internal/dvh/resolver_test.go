package dvh

import (
	"errors"
	"strings"
	"testing"

	"github.com/oncostack/dvh-engine/internal/models"
)

func structureSet(names ...string) models.StructureSet {
	set := models.StructureSet{
		PatientID:  "PT001",
		PlanName:   "PT001_VMAT",
		Structures: make(map[string]models.CumulativeHistogram),
	}
	for _, name := range names {
		set.Structures[name] = models.CumulativeHistogram{
			Structure:  name,
			VolumeUnit: models.VolumeUnitPercent,
			Points: []models.DoseVolumePoint{
				{DoseGy: 0, Volume: 1},
				{DoseGy: 60, Volume: 0},
			},
		}
	}
	return set
}

func TestResolvePrefersHigherPriorityAlias(t *testing.T) {
	resolver := NewResolver(DefaultAliases())
	set := structureSet("LUNGS", "LUNG_TOTAL", "PTV_6600")

	hist, err := resolver.Resolve(set, models.OrganLungTotal)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if hist.Structure != "LUNG_TOTAL" {
		t.Errorf("resolved %q, want LUNG_TOTAL over LUNGS", hist.Structure)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	resolver := NewResolver(DefaultAliases())
	set := structureSet("ptv_6000", "Spinal_Cord")

	hist, err := resolver.Resolve(set, models.OrganPTV)
	if err != nil {
		t.Fatalf("Resolve ptv failed: %v", err)
	}
	if hist.Structure != "ptv_6000" {
		t.Errorf("resolved %q, want ptv_6000", hist.Structure)
	}

	if _, err := resolver.Resolve(set, models.OrganSpinalCord); err != nil {
		t.Fatalf("Resolve spinal cord failed: %v", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	resolver := NewResolver(DefaultAliases())
	set := structureSet("PTV", "HEART")

	_, err := resolver.Resolve(set, models.OrganSpinalCord)
	var notFound *StructureNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want StructureNotFoundError", err)
	}
	if notFound.Organ != "SPINAL_CORD" {
		t.Errorf("organ = %q, want SPINAL_CORD", notFound.Organ)
	}
	if notFound.Plan != "PT001/PT001_VMAT" {
		t.Errorf("plan = %q, want PT001/PT001_VMAT", notFound.Plan)
	}
	msg := err.Error()
	for _, alias := range []string{"SPINAL_CORD", "CORD"} {
		if !strings.Contains(msg, alias) {
			t.Errorf("error %q does not name tried alias %s", msg, alias)
		}
	}
}

func TestResolveUnmappedStructuresIgnored(t *testing.T) {
	resolver := NewResolver(DefaultAliases())
	set := structureSet("PTV", "COUCH_SURFACE", "BODY")

	hist, err := resolver.Resolve(set, models.OrganPTV)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if hist.Structure != "PTV" {
		t.Errorf("resolved %q, want PTV", hist.Structure)
	}
}
