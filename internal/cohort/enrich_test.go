package cohort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/stay"
)

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

func assigned(patient, episode string, stayID int, unit string, adm, dis time.Time) stay.AssignedStay {
	d := dis
	span := dis.Sub(adm)
	return stay.AssignedStay{
		Stay: stay.Stay{
			PatientID:          patient,
			EpisodeID:          episode,
			StayID:             stayID,
			Admission:          adm,
			Discharge:          &d,
			EffectiveDischarge: dis,
			UnitsVisited:       1,
			NumMovements:       1,
		},
		AssignedUnit: unit,
		UnitMinutes:  map[string]int64{unit: int64(span / time.Minute)},
		HoursStay:    int64(span / time.Hour),
		DaysStay:     int64(span / (24 * time.Hour)),
		MinutesStay:  int64(span / time.Minute),
	}
}

func intPtr(v int) *int              { return &v }
func strPtr(v string) *string        { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestReadmissionAcrossEpisodes(t *testing.T) {
	stays := []stay.AssignedStay{
		assigned("P1", "EP2", 1, "E073", at(2, 11, 6), at(2, 15, 12)),
		assigned("P1", "EP1", 1, "E073", at(2, 1, 10), at(2, 10, 8)),
	}

	svc := NewEnrichmentService(Facts{}, zap.NewNop())
	records, stats := svc.Enrich(stays)

	require.Len(t, records, 2)
	first, second := records[0], records[1]
	assert.Equal(t, "EP1", first.EpisodeID)
	require.NotNil(t, first.NextAdmission)
	assert.True(t, first.NextAdmission.Equal(at(2, 11, 6)))
	assert.True(t, first.Readmission24h, "22h after discharge")
	assert.True(t, first.Readmission72h)

	assert.Nil(t, second.NextAdmission)
	assert.False(t, second.Readmission24h)
	assert.False(t, second.Readmission72h)

	assert.Equal(t, 1, stats.Readmissions24h)
	assert.Equal(t, 1, stats.Readmissions72h)
}

func TestReadmissionWindows(t *testing.T) {
	tests := []struct {
		name    string
		next    time.Time
		want24h bool
		want72h bool
	}{
		{name: "exactly 24h", next: at(3, 2, 0), want24h: true, want72h: true},
		{name: "24h 59m truncates to 24", next: at(3, 2, 0).Add(59 * time.Minute), want24h: true, want72h: true},
		{name: "30h", next: at(3, 2, 6), want24h: false, want72h: true},
		{name: "72h 59m truncates to 72", next: at(3, 4, 0).Add(59 * time.Minute), want24h: false, want72h: true},
		{name: "four days", next: at(3, 5, 0), want24h: false, want72h: false},
		{name: "next admission before discharge", next: at(2, 28, 0), want24h: true, want72h: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stays := []stay.AssignedStay{
				assigned("P1", "EP1", 1, "E073", at(2, 27, 0), at(3, 1, 0)),
				assigned("P1", "EP2", 1, "E073", tt.next, tt.next.Add(48*time.Hour)),
			}
			records, _ := NewEnrichmentService(Facts{}, nil).Enrich(stays)

			var current Record
			for _, r := range records {
				if r.EpisodeID == "EP1" {
					current = r
				}
			}
			assert.Equal(t, tt.want24h, current.Readmission24h)
			assert.Equal(t, tt.want72h, current.Readmission72h)
		})
	}
}

func TestReadmissionIsPatientScoped(t *testing.T) {
	stays := []stay.AssignedStay{
		assigned("P1", "EP1", 1, "E073", at(1, 1, 0), at(1, 2, 0)),
		assigned("P2", "EP2", 1, "E073", at(1, 2, 1), at(1, 3, 0)),
	}
	records, stats := NewEnrichmentService(Facts{}, nil).Enrich(stays)

	for _, r := range records {
		assert.Nil(t, r.NextAdmission, r.PatientID)
	}
	assert.Zero(t, stats.Readmissions24h)
}

func TestMortalityFlags(t *testing.T) {
	adm, dis := at(3, 1, 0), at(3, 5, 0)

	tests := []struct {
		name     string
		exitus   time.Time
		wantStay bool
		want30d  bool
		want90d  bool
	}{
		{name: "during stay", exitus: at(3, 4, 0), wantStay: true, want30d: true, want90d: true},
		{name: "at discharge", exitus: dis, wantStay: true, want30d: true, want90d: true},
		{name: "after 75 days", exitus: adm.AddDate(0, 0, 75), wantStay: false, want30d: false, want90d: true},
		{name: "exactly 30 days", exitus: adm.AddDate(0, 0, 30), wantStay: false, want30d: true, want90d: true},
		{name: "before admission", exitus: at(2, 1, 0), wantStay: false, want30d: false, want90d: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := Facts{Deaths: map[string]time.Time{"P1": tt.exitus}}
			records, _ := NewEnrichmentService(facts, nil).Enrich([]stay.AssignedStay{
				assigned("P1", "EP1", 1, "E073", adm, dis),
			})

			require.Len(t, records, 1)
			r := records[0]
			require.NotNil(t, r.ExitusDate)
			assert.Equal(t, tt.wantStay, r.ExitusDuringStay)
			assert.Equal(t, tt.want30d, r.Mortality30d)
			assert.Equal(t, tt.want90d, r.Mortality90d)
		})
	}
}

func TestCompletedYears(t *testing.T) {
	tests := []struct {
		name  string
		birth time.Time
		on    time.Time
		want  int
	}{
		{"day before birthday", time.Date(1950, 3, 2, 0, 0, 0, 0, time.UTC), at(3, 1, 23), 73},
		{"on birthday", time.Date(1950, 3, 2, 0, 0, 0, 0, time.UTC), at(3, 2, 0), 74},
		{"leap day birth", time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), at(2, 28, 12), 23},
		{"leap day birthday", time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), at(2, 29, 0), 24},
		{"newborn", at(1, 1, 0), at(6, 1, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompletedYears(tt.birth, tt.on))
		})
	}
}

func TestSexFromCode(t *testing.T) {
	assert.Equal(t, SexMale, SexFromCode(intPtr(1)))
	assert.Equal(t, SexFemale, SexFromCode(intPtr(2)))
	assert.Equal(t, SexOther, SexFromCode(intPtr(3)))
	assert.Equal(t, SexNotReported, SexFromCode(intPtr(9)))
	assert.Equal(t, SexNotReported, SexFromCode(nil))
}

func TestEnrichJoinsDemographics(t *testing.T) {
	facts := Facts{
		Demographics: map[string]health.Demographics{
			"P1": {
				PatientID:       "P1",
				BirthDate:       timePtr(time.Date(1960, 6, 15, 0, 0, 0, 0, time.UTC)),
				SexCode:         intPtr(2),
				NationalityCode: strPtr("ES"),
				HealthArea:      strPtr("AGA-1"),
			},
		},
		Chronic: map[string]bool{"P1": true},
	}

	records, stats := NewEnrichmentService(facts, zap.NewNop()).Enrich([]stay.AssignedStay{
		assigned("P1", "EP1", 1, "E073", at(5, 1, 0), at(5, 3, 0)),
	})

	require.Len(t, records, 1)
	r := records[0]
	require.NotNil(t, r.AgeAtAdmission)
	assert.Equal(t, 63, *r.AgeAtAdmission)
	assert.Equal(t, SexFemale, r.Sex)
	assert.Equal(t, "ES", *r.NationalityCode)
	assert.Equal(t, "AGA-1", *r.HealthArea)
	assert.True(t, r.HasChronicCondition)
	assert.Nil(t, r.ExitusDate)
	assert.Equal(t, 2024, r.YearAdmission)
	assert.Zero(t, stats.MissingDemographics)
}

func TestEnrichKeepsStaysWithMissingJoins(t *testing.T) {
	facts := Facts{
		Demographics: map[string]health.Demographics{"P2": {PatientID: "P2"}},
	}
	stays := []stay.AssignedStay{
		assigned("P1", "EP1", 1, "E073", at(5, 1, 0), at(5, 3, 0)),
		assigned("P2", "EP2", 1, "E073", at(5, 2, 0), at(5, 4, 0)),
	}

	records, stats := NewEnrichmentService(facts, nil).Enrich(stays)

	require.Len(t, records, 2)
	for _, r := range records {
		assert.Nil(t, r.AgeAtAdmission)
		assert.Equal(t, SexNotReported, r.Sex)
		assert.False(t, r.HasChronicCondition)
	}
	assert.Equal(t, 1, stats.MissingDemographics)
	assert.Equal(t, 1, stats.MissingBirthDate)
}

func TestEnrichDoesNotModifyInput(t *testing.T) {
	stays := []stay.AssignedStay{
		assigned("P2", "EP2", 1, "E073", at(5, 2, 0), at(5, 4, 0)),
		assigned("P1", "EP1", 1, "E073", at(5, 1, 0), at(5, 3, 0)),
	}
	before := make([]stay.AssignedStay, len(stays))
	copy(before, stays)

	records, _ := NewEnrichmentService(Facts{}, nil).Enrich(stays)

	assert.Equal(t, before, stays)
	assert.Equal(t, "P1", records[0].PatientID, "records are ordered by admission")
}
