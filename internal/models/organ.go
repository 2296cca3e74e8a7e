package models

import (
	"fmt"
	"strings"
)

// CanonicalOrgan identifies the clinical role a raw structure resolves to.
type CanonicalOrgan string

const (
	OrganPTV        CanonicalOrgan = "ptv"
	OrganLungTotal  CanonicalOrgan = "lung"
	OrganHeart      CanonicalOrgan = "heart"
	OrganEsophagus  CanonicalOrgan = "esophagus"
	OrganSpinalCord CanonicalOrgan = "spinal_cord"
)

// KnownOrgans lists the roles the engine ships parameters for, in report order.
func KnownOrgans() []CanonicalOrgan {
	return []CanonicalOrgan{OrganPTV, OrganLungTotal, OrganHeart, OrganEsophagus, OrganSpinalCord}
}

// ParseOrgan converts a configuration token into a CanonicalOrgan.
func ParseOrgan(value string) (CanonicalOrgan, error) {
	organ := CanonicalOrgan(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range KnownOrgans() {
		if organ == known {
			return organ, nil
		}
	}
	return "", fmt.Errorf("unknown organ %q", value)
}
