// Package export writes cohort records to files for downstream analysis.
package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/datanex/staycohort/internal/cohort"
)

// Supported formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatXLSX    = "xlsx"
)

// Writer writes cohort records. Write may be called more than once; Close
// flushes and finalizes the file.
type Writer interface {
	Write(records []cohort.Record) error
	Close() error
}

// New creates the writer for format at path. nationalCode drives the
// nationality rows of the summary the CSV and XLSX writers add.
func New(format, path, nationalCode string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSVWriter(path, nationalCode)
	case FormatParquet:
		return NewParquetWriter(path)
	case FormatXLSX:
		return NewXLSXWriter(path, nationalCode)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// FileName builds the output file name for a run.
func FileName(dir, format string, minYear, maxYear int, ranAt time.Time) string {
	name := fmt.Sprintf("cohort_%d_%d_%s.%s", minYear, maxYear, ranAt.Format("20060102_150405"), strings.ToLower(format))
	return filepath.Join(dir, name)
}

// summaryPath returns the sibling file holding the yearly summary.
func summaryPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_summary" + ext
}

const timeLayout = "2006-01-02 15:04:05"

type column struct {
	name  string
	value func(r *cohort.Record) any
}

// columns is the flat record layout shared by the CSV and XLSX writers.
var columns = []column{
	{"patient_id", func(r *cohort.Record) any { return r.PatientID }},
	{"episode_id", func(r *cohort.Record) any { return r.EpisodeID }},
	{"stay_id", func(r *cohort.Record) any { return r.StayID }},
	{"assigned_unit", func(r *cohort.Record) any { return r.AssignedUnit }},
	{"admission", func(r *cohort.Record) any { return r.Admission }},
	{"discharge", func(r *cohort.Record) any { return timeOrNil(r.Discharge) }},
	{"effective_discharge", func(r *cohort.Record) any { return r.EffectiveDischarge }},
	{"still_admitted", func(r *cohort.Record) any { return r.StillAdmitted }},
	{"units_visited", func(r *cohort.Record) any { return r.UnitsVisited }},
	{"had_transfer", func(r *cohort.Record) any { return r.HadTransfer }},
	{"num_movements", func(r *cohort.Record) any { return r.NumMovements }},
	{"unit_minutes", func(r *cohort.Record) any { return unitMinutes(r.UnitMinutes) }},
	{"hours_stay", func(r *cohort.Record) any { return r.HoursStay }},
	{"days_stay", func(r *cohort.Record) any { return r.DaysStay }},
	{"minutes_stay", func(r *cohort.Record) any { return r.MinutesStay }},
	{"year_admission", func(r *cohort.Record) any { return r.YearAdmission }},
	{"age_at_admission", func(r *cohort.Record) any { return intOrNil(r.AgeAtAdmission) }},
	{"sex", func(r *cohort.Record) any { return string(r.Sex) }},
	{"nationality_code", func(r *cohort.Record) any { return stringOrNil(r.NationalityCode) }},
	{"nationality", func(r *cohort.Record) any { return stringOrNil(r.Nationality) }},
	{"health_area", func(r *cohort.Record) any { return stringOrNil(r.HealthArea) }},
	{"postcode", func(r *cohort.Record) any { return stringOrNil(r.Postcode) }},
	{"exitus_date", func(r *cohort.Record) any { return timeOrNil(r.ExitusDate) }},
	{"has_chronic_condition", func(r *cohort.Record) any { return r.HasChronicCondition }},
	{"exitus_during_stay", func(r *cohort.Record) any { return r.ExitusDuringStay }},
	{"mortality_30d", func(r *cohort.Record) any { return r.Mortality30d }},
	{"mortality_90d", func(r *cohort.Record) any { return r.Mortality90d }},
	{"next_admission", func(r *cohort.Record) any { return timeOrNil(r.NextAdmission) }},
	{"readmission_24h", func(r *cohort.Record) any { return r.Readmission24h }},
	{"readmission_72h", func(r *cohort.Record) any { return r.Readmission72h }},
}

func header() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func unitMinutes(m map[string]int64) string {
	if len(m) == 0 {
		return ""
	}
	// json.Marshal sorts map keys.
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// summaryTable lays the yearly summary out as rows of cells.
func summaryTable(s cohort.Summary) [][]string {
	head := []string{"variable"}
	for _, y := range s.Years {
		head = append(head, fmt.Sprint(y))
	}
	head = append(head, "total")

	table := [][]string{head}
	for _, row := range s.Rows {
		line := []string{row.Label}
		for _, y := range s.Years {
			line = append(line, row.Values[y])
		}
		table = append(table, append(line, row.Total))
	}
	return table
}
