package export

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/datanex/staycohort/internal/cohort"
)

// RecordParquet is the Parquet row for a cohort record. Timestamps are
// stored as UTC milliseconds.
type RecordParquet struct {
	PatientID           string     `parquet:"patient_id"`
	EpisodeID           string     `parquet:"episode_id"`
	StayID              int32      `parquet:"stay_id"`
	AssignedUnit        string     `parquet:"assigned_unit"`
	Admission           time.Time  `parquet:"admission,timestamp(millisecond)"`
	Discharge           *time.Time `parquet:"discharge,timestamp(millisecond)"`
	EffectiveDischarge  time.Time  `parquet:"effective_discharge,timestamp(millisecond)"`
	StillAdmitted       bool       `parquet:"still_admitted"`
	UnitsVisited        int32      `parquet:"units_visited"`
	HadTransfer         bool       `parquet:"had_transfer"`
	NumMovements        int32      `parquet:"num_movements"`
	UnitMinutes         string     `parquet:"unit_minutes"`
	HoursStay           int64      `parquet:"hours_stay"`
	DaysStay            int64      `parquet:"days_stay"`
	MinutesStay         int64      `parquet:"minutes_stay"`
	YearAdmission       int32      `parquet:"year_admission"`
	AgeAtAdmission      *int32     `parquet:"age_at_admission,optional"`
	Sex                 string     `parquet:"sex"`
	NationalityCode     *string    `parquet:"nationality_code,optional"`
	Nationality         *string    `parquet:"nationality,optional"`
	HealthArea          *string    `parquet:"health_area,optional"`
	Postcode            *string    `parquet:"postcode,optional"`
	ExitusDate          *time.Time `parquet:"exitus_date,timestamp(millisecond)"`
	HasChronicCondition bool       `parquet:"has_chronic_condition"`
	ExitusDuringStay    bool       `parquet:"exitus_during_stay"`
	Mortality30d        bool       `parquet:"mortality_30d"`
	Mortality90d        bool       `parquet:"mortality_90d"`
	NextAdmission       *time.Time `parquet:"next_admission,timestamp(millisecond)"`
	Readmission24h      bool       `parquet:"readmission_24h"`
	Readmission72h      bool       `parquet:"readmission_72h"`
}

// recordSchema is derived at package load; a malformed tag panics before any
// file is created.
var recordSchema = parquet.SchemaOf(new(RecordParquet))

const parquetFlushInterval = 100_000

// ParquetWriter writes records to a Snappy-compressed Parquet file.
type ParquetWriter struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[RecordParquet]
	count  int
}

// NewParquetWriter creates a new Parquet file writer
func NewParquetWriter(path string) (*ParquetWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[RecordParquet](file,
		recordSchema,
		parquet.Compression(&parquet.Snappy),
	)

	return &ParquetWriter{
		path:   path,
		file:   file,
		writer: writer,
	}, nil
}

// Write writes records, flushing a row group every parquetFlushInterval rows.
func (pw *ParquetWriter) Write(records []cohort.Record) error {
	for i := range records {
		row := toParquet(&records[i])
		if _, err := pw.writer.Write([]RecordParquet{row}); err != nil {
			return fmt.Errorf("failed to write parquet record: %w", err)
		}

		pw.count++
		if pw.count%parquetFlushInterval == 0 {
			if err := pw.writer.Flush(); err != nil {
				return fmt.Errorf("failed to flush parquet row group: %w", err)
			}
		}
	}
	return nil
}

// Close flushes and closes the Parquet writer. A file that could not be
// finalized is removed.
func (pw *ParquetWriter) Close() error {
	if err := pw.writer.Close(); err != nil {
		pw.file.Close()
		os.Remove(pw.path)
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	if err := pw.file.Close(); err != nil {
		os.Remove(pw.path)
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}

// Count returns the number of records written
func (pw *ParquetWriter) Count() int {
	return pw.count
}

func toParquet(r *cohort.Record) RecordParquet {
	row := RecordParquet{
		PatientID:           r.PatientID,
		EpisodeID:           r.EpisodeID,
		StayID:              int32(r.StayID),
		AssignedUnit:        r.AssignedUnit,
		Admission:           r.Admission.UTC(),
		Discharge:           utc(r.Discharge),
		EffectiveDischarge:  r.EffectiveDischarge.UTC(),
		StillAdmitted:       r.StillAdmitted,
		UnitsVisited:        int32(r.UnitsVisited),
		HadTransfer:         r.HadTransfer,
		NumMovements:        int32(r.NumMovements),
		UnitMinutes:         unitMinutes(r.UnitMinutes),
		HoursStay:           r.HoursStay,
		DaysStay:            r.DaysStay,
		MinutesStay:         r.MinutesStay,
		YearAdmission:       int32(r.YearAdmission),
		Sex:                 string(r.Sex),
		NationalityCode:     r.NationalityCode,
		Nationality:         r.Nationality,
		HealthArea:          r.HealthArea,
		Postcode:            r.Postcode,
		ExitusDate:          utc(r.ExitusDate),
		HasChronicCondition: r.HasChronicCondition,
		ExitusDuringStay:    r.ExitusDuringStay,
		Mortality30d:        r.Mortality30d,
		Mortality90d:        r.Mortality90d,
		NextAdmission:       utc(r.NextAdmission),
		Readmission24h:      r.Readmission24h,
		Readmission72h:      r.Readmission72h,
	}
	if r.AgeAtAdmission != nil {
		age := int32(*r.AgeAtAdmission)
		row.AgeAtAdmission = &age
	}
	return row
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
