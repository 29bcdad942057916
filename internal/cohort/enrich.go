package cohort

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/stay"
)

// Facts are the patient-level joins applied to every stay.
type Facts struct {
	Demographics map[string]health.Demographics
	Deaths       map[string]time.Time
	Chronic      map[string]bool
}

// FactsFrom extracts the joins from a snapshot.
func FactsFrom(snap *health.Snapshot) Facts {
	return Facts{
		Demographics: snap.Demographics,
		Deaths:       snap.Deaths,
		Chronic:      snap.Chronic,
	}
}

// EnrichmentStats counts joins that were missing. Missing joins leave fields
// empty and never drop a stay.
type EnrichmentStats struct {
	Records             int `json:"records"`
	MissingDemographics int `json:"missing_demographics"`
	MissingBirthDate    int `json:"missing_birth_date"`
	Readmissions24h     int `json:"readmissions_24h"`
	Readmissions72h     int `json:"readmissions_72h"`
}

// EnrichmentService derives cohort attributes for eligible stays.
type EnrichmentService struct {
	facts  Facts
	logger *zap.Logger
}

// NewEnrichmentService creates a new enrichment service
func NewEnrichmentService(facts Facts, logger *zap.Logger) *EnrichmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichmentService{facts: facts, logger: logger}
}

// Enrich joins facts onto each stay, then runs the patient-scoped
// readmission pass. Output is ordered by admission, patient, episode and
// stay id. The input is not modified.
func (s *EnrichmentService) Enrich(stays []stay.AssignedStay) ([]Record, EnrichmentStats) {
	records := make([]Record, len(stays))
	stats := EnrichmentStats{Records: len(stays)}

	for i := range stays {
		records[i] = s.enrichOne(stays[i], &stats)
	}
	sortRecords(records)

	stats.Readmissions24h, stats.Readmissions72h = AssignReadmissions(records)

	if stats.MissingDemographics > 0 {
		s.logger.Warn("stays without demographics",
			zap.Int("count", stats.MissingDemographics),
			zap.Error(errors.ErrMissingJoin),
		)
	}
	s.logger.Info("cohort enrichment complete",
		zap.Int("records", stats.Records),
		zap.Int("readmissions_24h", stats.Readmissions24h),
		zap.Int("readmissions_72h", stats.Readmissions72h),
	)
	return records, stats
}

func (s *EnrichmentService) enrichOne(a stay.AssignedStay, stats *EnrichmentStats) Record {
	r := Record{
		AssignedStay:  a,
		YearAdmission: a.Admission.Year(),
		Sex:           SexNotReported,
	}

	if d, ok := s.facts.Demographics[a.PatientID]; ok {
		r.Sex = SexFromCode(d.SexCode)
		r.NationalityCode = d.NationalityCode
		r.Nationality = d.Nationality
		r.HealthArea = d.HealthArea
		r.Postcode = d.Postcode
		if d.BirthDate != nil && !d.BirthDate.IsZero() {
			age := CompletedYears(*d.BirthDate, a.Admission)
			r.AgeAtAdmission = &age
		} else {
			stats.MissingBirthDate++
		}
	} else {
		stats.MissingDemographics++
	}

	r.HasChronicCondition = s.facts.Chronic[a.PatientID]

	if exitus, ok := s.facts.Deaths[a.PatientID]; ok && !exitus.IsZero() {
		r.ExitusDate = &exitus
		r.ExitusDuringStay = stay.Within(exitus, a.Admission, a.EffectiveDischarge)
		r.Mortality30d = DiedWithin(exitus, a.Admission, MortalityShortDays)
		r.Mortality90d = DiedWithin(exitus, a.Admission, MortalityLongDays)
	}

	return r
}

// CompletedYears returns the whole years elapsed from birth to at.
func CompletedYears(birth, at time.Time) int {
	years := at.Year() - birth.Year()
	if birth.AddDate(years, 0, 0).After(at) {
		years--
	}
	return years
}

// DiedWithin reports whether exitus falls 0 to days days after admission.
func DiedWithin(exitus, admission time.Time, days int) bool {
	delta := exitus.Sub(admission)
	return delta >= 0 && delta <= time.Duration(days)*24*time.Hour
}

// AssignReadmissions links each record to the same patient's next stay by
// admission, across episodes, and flags readmissions within 24h and 72h of
// the effective discharge. records must be sorted with sortRecords.
func AssignReadmissions(records []Record) (within24h, within72h int) {
	byPatient := make(map[string][]int)
	for i := range records {
		byPatient[records[i].PatientID] = append(byPatient[records[i].PatientID], i)
	}

	for _, idx := range byPatient {
		for k, i := range idx {
			r := &records[i]
			r.NextAdmission = nil
			r.Readmission24h, r.Readmission72h = false, false
			if k+1 >= len(idx) {
				continue
			}
			next := records[idx[k+1]].Admission
			r.NextAdmission = &next

			hours := int64(next.Sub(r.EffectiveDischarge) / time.Hour)
			if hours <= ReadmissionShortHours {
				r.Readmission24h = true
				within24h++
			}
			if hours <= ReadmissionLongHours {
				r.Readmission72h = true
				within72h++
			}
		}
	}
	return within24h, within72h
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Admission.Equal(b.Admission) {
			return a.Admission.Before(b.Admission)
		}
		if a.PatientID != b.PatientID {
			return a.PatientID < b.PatientID
		}
		if a.EpisodeID != b.EpisodeID {
			return a.EpisodeID < b.EpisodeID
		}
		return a.StayID < b.StayID
	})
}
