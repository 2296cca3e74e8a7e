package dvh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/oncostack/dvh-engine/internal/models"
)

// Differential-file signature: volumes that sum to ~1 while not decreasing
// monotonically are a differential table mislabelled as cumulative.
const differentialSumTolerance = 0.05

var (
	patientRe    = regexp.MustCompile(`(?i)patient\s*id\s*:\s*(\S+)`)
	planRe       = regexp.MustCompile(`(?i)plan\s*(?:name)?\s*:\s*(\S+)`)
	doseUnitRe   = regexp.MustCompile(`(?i)dose\s*(?:units?)?\s*[:\[(]\s*([a-z%]+)`)
	volumeUnitRe = regexp.MustCompile(`(?i)volume\s*(?:units?)?\s*[:\[(]\s*([a-z%]+|%)`)
	headerRe     = regexp.MustCompile(`(?i)^\s*structure\s*name\b`)
)

type rawRow struct {
	line   int
	dose   float64
	volume float64
}

type rawBlock struct {
	name       string
	nameLine   int
	doseUnit   models.DoseUnit
	volumeUnit models.VolumeUnit
	hasUnits   bool
	rows       []rawRow
}

// Parse reads a cumulative DVH text export and returns the per-structure
// histograms. The reader is consumed fully; no file or network access
// happens here.
func Parse(r io.Reader) (models.StructureSet, error) {
	set := models.StructureSet{Structures: make(map[string]models.CumulativeHistogram)}

	var current *rawBlock
	var defaultDose models.DoseUnit
	var defaultVol models.VolumeUnit
	lineNo := 0

	finalize := func() error {
		if current == nil {
			return nil
		}
		block := current
		current = nil
		if block.doseUnit == "" {
			block.doseUnit = defaultDose
		}
		if block.volumeUnit == "" {
			block.volumeUnit = defaultVol
		}
		hist, err := buildHistogram(block)
		if err != nil {
			return err
		}
		if _, dup := set.Structures[block.name]; !dup {
			set.Structures[block.name] = hist
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			if err := finalize(); err != nil {
				return models.StructureSet{}, err
			}
			continue
		}

		// File-level metadata line (Eclipse-style export header).
		if patientRe.MatchString(line) || strings.Contains(strings.ToLower(line), "plan name") {
			if m := patientRe.FindStringSubmatch(line); m != nil {
				set.PatientID = m[1]
			}
			if m := planRe.FindStringSubmatch(line); m != nil {
				set.PlanName = m[1]
			}
			du, vu, err := parseUnits(line, lineNo)
			if err != nil {
				return models.StructureSet{}, err
			}
			if du != "" {
				defaultDose = du
			}
			if vu != "" {
				defaultVol = vu
			}
			continue
		}

		if headerRe.MatchString(line) {
			continue
		}

		// Units declaration for the open block.
		if doseUnitRe.MatchString(line) || volumeUnitRe.MatchString(line) {
			du, vu, err := parseUnits(line, lineNo)
			if err != nil {
				return models.StructureSet{}, err
			}
			if current != nil {
				if du != "" {
					current.doseUnit = du
				}
				if vu != "" {
					current.volumeUnit = vu
				}
				current.hasUnits = current.doseUnit != "" && current.volumeUnit != ""
			} else {
				if du != "" {
					defaultDose = du
				}
				if vu != "" {
					defaultVol = vu
				}
			}
			continue
		}

		fields := splitRow(line)
		if dose, ok := parseFloat(fields[0]); ok {
			if current == nil {
				return models.StructureSet{}, &ParseError{Line: lineNo, Msg: "data row before any structure name"}
			}
			if len(fields) != 2 {
				return models.StructureSet{}, &ParseError{Line: lineNo, Structure: current.name,
					Msg: fmt.Sprintf("expected two columns, got %d", len(fields))}
			}
			volume, ok := parseFloat(fields[1])
			if !ok {
				return models.StructureSet{}, &ParseError{Line: lineNo, Structure: current.name,
					Msg: fmt.Sprintf("malformed volume value %q", fields[1])}
			}
			current.rows = append(current.rows, rawRow{line: lineNo, dose: dose, volume: volume})
			continue
		}

		// Reject rows like "12.0 abc" where the dose parses but a later
		// token does not: only a fully non-numeric first token starts a
		// new structure block.
		if len(fields) > 1 {
			if _, ok := parseFloat(fields[len(fields)-1]); ok && current != nil {
				return models.StructureSet{}, &ParseError{Line: lineNo, Structure: current.name,
					Msg: fmt.Sprintf("malformed dose value %q", fields[0])}
			}
		}

		if err := finalize(); err != nil {
			return models.StructureSet{}, err
		}
		current = &rawBlock{name: line, nameLine: lineNo}
	}
	if err := scanner.Err(); err != nil {
		return models.StructureSet{}, &ParseError{Msg: fmt.Sprintf("read input: %v", err)}
	}
	if err := finalize(); err != nil {
		return models.StructureSet{}, err
	}

	if len(set.Structures) == 0 {
		return models.StructureSet{}, &ParseError{Msg: "no structure block found"}
	}
	return set, nil
}

func buildHistogram(block *rawBlock) (models.CumulativeHistogram, error) {
	if len(block.rows) == 0 {
		return models.CumulativeHistogram{}, &ParseError{Line: block.nameLine, Structure: block.name,
			Msg: "structure block has no dose/volume rows"}
	}
	if block.doseUnit == "" || block.volumeUnit == "" {
		return models.CumulativeHistogram{}, &ParseError{Line: block.nameLine, Structure: block.name,
			Msg: "missing dose/volume units declaration"}
	}

	// Dose must be monotonically non-decreasing within the block.
	for i := 1; i < len(block.rows); i++ {
		if block.rows[i].dose < block.rows[i-1].dose {
			return models.CumulativeHistogram{}, &ParseError{Line: block.rows[i].line, Structure: block.name,
				Msg: fmt.Sprintf("dose %.4f decreases below previous %.4f", block.rows[i].dose, block.rows[i-1].dose)}
		}
		if block.rows[i].volume < 0 || block.rows[i].dose < 0 {
			return models.CumulativeHistogram{}, &ParseError{Line: block.rows[i].line, Structure: block.name,
				Msg: "negative dose or volume"}
		}
	}

	points := make([]models.DoseVolumePoint, 0, len(block.rows))
	for _, row := range block.rows {
		dose := row.dose
		if block.doseUnit == models.DoseUnitCGy {
			dose /= 100.0
		}
		volume := row.volume
		if block.volumeUnit == models.VolumeUnitPercent {
			volume /= 100.0
			volume = math.Min(math.Max(volume, 0), 1)
		}
		// Duplicate dose bins keep the first occurrence.
		if n := len(points); n > 0 && points[n-1].DoseGy == dose {
			continue
		}
		points = append(points, models.DoseVolumePoint{DoseGy: dose, Volume: volume})
	}

	// Cumulative-above invariant: volumes non-increasing with dose.
	for i := 1; i < len(points); i++ {
		if points[i].Volume > points[i-1].Volume {
			if block.volumeUnit == models.VolumeUnitPercent && looksDifferential(points) {
				return models.CumulativeHistogram{}, &FormatError{Structure: block.name,
					Msg: "volumes sum to ~1 without monotonic decrease; differential DVH supplied where cumulative expected"}
			}
			return models.CumulativeHistogram{}, &ParseError{Line: block.rows[0].line, Structure: block.name,
				Msg: fmt.Sprintf("cumulative volume increases with dose near %.4f Gy", points[i].DoseGy)}
		}
	}

	hist := models.CumulativeHistogram{
		Structure:  block.name,
		Points:     points,
		VolumeUnit: block.volumeUnit,
	}
	if block.volumeUnit == models.VolumeUnitCC && len(points) > 0 && points[0].DoseGy == 0 {
		hist.TotalCC = points[0].Volume
	}
	return hist, nil
}

func looksDifferential(points []models.DoseVolumePoint) bool {
	sum := 0.0
	for _, p := range points {
		sum += p.Volume
	}
	return math.Abs(sum-1.0) <= differentialSumTolerance
}

func parseUnits(line string, lineNo int) (models.DoseUnit, models.VolumeUnit, error) {
	var doseUnit models.DoseUnit
	var volumeUnit models.VolumeUnit

	if m := doseUnitRe.FindStringSubmatch(line); m != nil {
		switch strings.ToLower(m[1]) {
		case "gy":
			doseUnit = models.DoseUnitGy
		case "cgy":
			doseUnit = models.DoseUnitCGy
		default:
			return "", "", &ParseError{Line: lineNo, Msg: fmt.Sprintf("unrecognized dose unit %q", m[1])}
		}
	}
	if m := volumeUnitRe.FindStringSubmatch(line); m != nil {
		switch strings.ToLower(m[1]) {
		case "%":
			volumeUnit = models.VolumeUnitPercent
		case "cc", "cm3":
			volumeUnit = models.VolumeUnitCC
		default:
			return "", "", &ParseError{Line: lineNo, Msg: fmt.Sprintf("unrecognized volume unit %q", m[1])}
		}
	}
	return doseUnit, volumeUnit, nil
}

func splitRow(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}

func parseFloat(token string) (float64, bool) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
