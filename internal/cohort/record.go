package cohort

import (
	"time"

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/stay"
)

// Sex is the reported sex of a patient.
type Sex string

const (
	SexMale        Sex = "Male"
	SexFemale      Sex = "Female"
	SexOther       Sex = "Other"
	SexNotReported Sex = "Not reported"
)

// SexFromCode maps a warehouse sex code.
func SexFromCode(code *int) Sex {
	if code == nil {
		return SexNotReported
	}
	switch *code {
	case health.SexCodeMale:
		return SexMale
	case health.SexCodeFemale:
		return SexFemale
	case health.SexCodeOther:
		return SexOther
	default:
		return SexNotReported
	}
}

// Readmission windows, in whole hours. The gap from effective discharge to
// the next admission is truncated to whole hours before comparing, so a gap
// of 24h59m still counts as within ReadmissionShortHours.
const (
	ReadmissionShortHours = 24
	ReadmissionLongHours  = 72
)

// Mortality windows, in days from admission.
const (
	MortalityShortDays = 30
	MortalityLongDays  = 90
)

// Record is an eligible stay with its cohort attributes.
type Record struct {
	stay.AssignedStay

	YearAdmission   int        `json:"year_admission"`
	AgeAtAdmission  *int       `json:"age_at_admission,omitempty"`
	Sex             Sex        `json:"sex"`
	NationalityCode *string    `json:"nationality_code,omitempty"`
	Nationality     *string    `json:"nationality,omitempty"`
	HealthArea      *string    `json:"health_area,omitempty"`
	Postcode        *string    `json:"postcode,omitempty"`
	ExitusDate      *time.Time `json:"exitus_date,omitempty"`

	HasChronicCondition bool `json:"has_chronic_condition"`
	ExitusDuringStay    bool `json:"exitus_during_stay"`
	Mortality30d        bool `json:"mortality_30d"`
	Mortality90d        bool `json:"mortality_90d"`

	NextAdmission  *time.Time `json:"next_admission,omitempty"`
	Readmission24h bool       `json:"readmission_24h"`
	Readmission72h bool       `json:"readmission_72h"`
}

// LengthOfStayDays returns the stay length in fractional days.
func (r *Record) LengthOfStayDays() float64 {
	return float64(r.HoursStay) / 24
}
