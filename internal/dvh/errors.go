package dvh

import (
	"fmt"
	"strings"
)

// ParseError reports malformed or non-monotonic cumulative DVH input.
// Line is 1-based within the uploaded file; zero when the failure is not
// tied to a single line.
type ParseError struct {
	Line      int
	Structure string
	Msg       string
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Structure != "":
		return fmt.Sprintf("dvh parse: line %d (structure %s): %s", e.Line, e.Structure, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("dvh parse: line %d: %s", e.Line, e.Msg)
	case e.Structure != "":
		return fmt.Sprintf("dvh parse: structure %s: %s", e.Structure, e.Msg)
	default:
		return fmt.Sprintf("dvh parse: %s", e.Msg)
	}
}

// FormatError reports input of the wrong DVH kind, e.g. a differential
// table supplied where a cumulative one is required.
type FormatError struct {
	Structure string
	Msg       string
}

func (e *FormatError) Error() string {
	if e.Structure != "" {
		return fmt.Sprintf("dvh format: structure %s: %s", e.Structure, e.Msg)
	}
	return fmt.Sprintf("dvh format: %s", e.Msg)
}

// ConversionError reports a cumulative-to-differential conversion whose
// output violates the sum-to-one invariant, signalling upstream corruption.
type ConversionError struct {
	Structure string
	Sum       float64
	Msg       string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("dvh conversion: structure %s: %s (sum=%.6f)", e.Structure, e.Msg, e.Sum)
}

// StructureNotFoundError reports that no alias of a required canonical
// organ matched any structure in the plan.
type StructureNotFoundError struct {
	Organ     string
	Plan      string
	Tried     []string
	Available []string
}

func (e *StructureNotFoundError) Error() string {
	return fmt.Sprintf("structure %s not found in plan %s (tried %s; available %s)",
		e.Organ, e.Plan, strings.Join(e.Tried, ", "), strings.Join(e.Available, ", "))
}
