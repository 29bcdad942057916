package health

import (
	"time"

	"github.com/datanex/staycohort/internal/stay"
)

// Sex codes as stored by the warehouse.
const (
	SexCodeMale   = 1
	SexCodeFemale = 2
	SexCodeOther  = 3
)

// Demographics is the per-patient demographic row. Every field except the
// patient id may be missing.
type Demographics struct {
	PatientID       string     `json:"patient_id"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	SexCode         *int       `json:"sex_code,omitempty"`
	NationalityCode *string    `json:"nationality_code,omitempty"`
	Nationality     *string    `json:"nationality,omitempty"`
	HealthArea      *string    `json:"health_area,omitempty"`
	Postcode        *string    `json:"postcode,omitempty"`
}

// Window selects the movements a run reads. A movement is included when it
// overlaps [From, To] using ReferenceTime in place of a missing end, so stays
// crossing a year boundary are segmented whole before the year filter.
type Window struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Units         []string  `json:"units"`
	ReferenceTime time.Time `json:"reference_time"`
}

// WindowFor builds the broad source window for engine options.
func WindowFor(opts stay.Options, units []string, referenceTime time.Time) Window {
	return Window{
		From:          opts.RangeStart(),
		To:            opts.RangeEnd(),
		Units:         units,
		ReferenceTime: referenceTime,
	}
}

// Snapshot is the immutable input of one run. It is fetched once and never
// re-queried while the run is in progress.
type Snapshot struct {
	Window        Window                   `json:"window"`
	FetchedAt     time.Time                `json:"fetched_at"`
	SourceSystem  string                   `json:"source_system"`
	Movements     []stay.MovementEvent     `json:"movements"`
	Prescriptions []stay.PrescriptionEvent `json:"prescriptions"`
	Demographics  map[string]Demographics  `json:"demographics"`
	Deaths        map[string]time.Time     `json:"deaths"`
	Chronic       map[string]bool          `json:"chronic"`
}

// EngineInput returns the part of the snapshot the stay engine consumes.
func (s *Snapshot) EngineInput() stay.Input {
	return stay.Input{Movements: s.Movements, Prescriptions: s.Prescriptions}
}

// DefaultChronicCodePrefixes are ICD-10 and ICD-9 cirrhosis codes.
var DefaultChronicCodePrefixes = []string{
	"K70.3", "K71.7", "K74.3", "K74.4", "K74.5", "K74.6",
	"571.2", "571.5", "571.6", "571.8", "571.9",
}
