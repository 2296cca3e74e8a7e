package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/oncostack/dvh-engine/internal/models"
)

// csvHeader is the fixed column layout of the summary CSV. Organs and
// metrics beyond the standard reporting set are not flattened here; the
// JSON export carries the full record.
var csvHeader = []string{
	"patient_id",
	"plan_name",
	"ptv_eud_gy",
	"ptv_tcp",
	"lung_ntcp",
	"lung_mean_dose_gy",
	"lung_v5_percent",
	"lung_v20_percent",
	"heart_ntcp",
	"esophagus_ntcp",
	"spinal_cord_ntcp",
	"spinal_cord_dmax_gy",
	"spinal_cord_d0_1cc_gy",
	"spinal_cord_d1cc_gy",
}

// WriteCSV renders one summary row per outcome record. Metrics that are
// unavailable, and organs that were skipped, produce empty cells rather
// than zeros.
func WriteCSV(w io.Writer, records []models.OutcomeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, record := range records {
		if err := cw.Write(csvRow(record)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", record.PlanName, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvRow(record models.OutcomeRecord) []string {
	return []string{
		record.PatientID,
		record.PlanName,
		formatFloat(record.TCP.EUDGy),
		formatFloat(record.TCP.TCP),
		ntcpCell(record, models.OrganLungTotal),
		metricCell(record, models.OrganLungTotal, models.MetricMeanDoseGy),
		metricCell(record, models.OrganLungTotal, models.MetricV5Percent),
		metricCell(record, models.OrganLungTotal, models.MetricV20Percent),
		ntcpCell(record, models.OrganHeart),
		ntcpCell(record, models.OrganEsophagus),
		ntcpCell(record, models.OrganSpinalCord),
		metricCell(record, models.OrganSpinalCord, models.MetricDmaxGy),
		metricCell(record, models.OrganSpinalCord, models.MetricD01ccGy),
		metricCell(record, models.OrganSpinalCord, models.MetricD1ccGy),
	}
}

func ntcpCell(record models.OutcomeRecord, organ models.CanonicalOrgan) string {
	outcome, ok := record.NTCP[organ]
	if !ok {
		return ""
	}
	return formatFloat(outcome.NTCP)
}

func metricCell(record models.OutcomeRecord, organ models.CanonicalOrgan, name string) string {
	organMetrics, ok := record.Metrics[organ]
	if !ok {
		return ""
	}
	value, ok := organMetrics[name]
	if !ok || !value.Available {
		return ""
	}
	return formatFloat(value.Value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
