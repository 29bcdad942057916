package cohort

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanex/staycohort/internal/stay"
)

func record(patient, episode string, adm time.Time, days int) Record {
	a := assigned(patient, episode, 1, "E073", adm, adm.Add(time.Duration(days)*24*time.Hour))
	return Record{AssignedStay: a, YearAdmission: adm.Year(), Sex: SexNotReported}
}

func TestDescribe(t *testing.T) {
	d, ok := Describe([]float64{4, 1, 3, 2})
	require.True(t, ok)

	assert.Equal(t, 4, d.N)
	assert.InDelta(t, 2.5, d.Mean, 1e-9)
	assert.InDelta(t, 1.75, d.Q1, 1e-9)
	assert.InDelta(t, 2.5, d.Median, 1e-9)
	assert.InDelta(t, 3.25, d.Q3, 1e-9)
	assert.InDelta(t, 1.2909944, d.SD, 1e-6)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 4.0, d.Max)

	single, ok := Describe([]float64{7})
	require.True(t, ok)
	assert.True(t, math.IsNaN(single.SD))
	assert.Equal(t, 7.0, single.Q1)

	_, ok = Describe(nil)
	assert.False(t, ok)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "3.0 [2.0-4.0]", formatMedianIQR([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, "", formatMedianIQR(nil))
	assert.Equal(t, "1 (33.3%)", formatCount(1, 3))
	assert.Equal(t, "0 (0.0%)", formatCount(0, 4))
	assert.Equal(t, "", formatCount(0, 0))
}

func TestSummarize(t *testing.T) {
	p1a := record("P1", "EP1", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), 2)
	p1a.Sex = SexMale
	p1a.NationalityCode = strPtr("ES")
	p1a.AgeAtAdmission = intPtr(70)
	p1a.HasChronicCondition = true
	p1a.Readmission24h = true
	p1a.Readmission72h = true

	p2 := record("P2", "EP2", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), 4)
	p2.Sex = SexFemale
	p2.NationalityCode = strPtr("FR")
	p2.AgeAtAdmission = intPtr(80)

	p1b := record("P1", "EP3", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 6)
	p1b.Sex = SexMale
	p1b.NationalityCode = strPtr("ES")
	p1b.AgeAtAdmission = intPtr(71)
	p1b.HasChronicCondition = true
	p1b.ExitusDuringStay = true
	p1b.Mortality30d = true
	p1b.Mortality90d = true

	s := Summarize([]Record{p1a, p2, p1b}, "")

	assert.Equal(t, []int{2023, 2024}, s.Years)

	cell := func(label string) SummaryRow {
		row, ok := s.Row(label)
		require.True(t, ok, label)
		return row
	}

	assert.Equal(t, "2", cell(LabelStays).Values[2023])
	assert.Equal(t, "1", cell(LabelStays).Values[2024])
	assert.Equal(t, "3", cell(LabelStays).Total)
	assert.Equal(t, "2", cell(LabelPatients).Total, "patients are counted once")

	assert.Equal(t, "75.0 [72.5-77.5]", cell(LabelAge).Values[2023])
	assert.Equal(t, "1 (50.0%)", cell(LabelMale).Values[2023])
	assert.Equal(t, "1 (100.0%)", cell(LabelMale).Values[2024])
	assert.Equal(t, "1 (50.0%)", cell(LabelMale).Total)
	assert.Equal(t, "1 (50.0%)", cell(LabelNational).Values[2023])
	assert.Equal(t, "1 (50.0%)", cell(LabelOtherNationality).Total)

	assert.Equal(t, "4.0 [3.0-5.0]", cell(LabelLengthOfStay).Total)
	assert.Equal(t, "2 (66.7%)", cell(LabelChronic).Total)
	assert.Equal(t, "1 (33.3%)", cell(LabelReadmission24h).Total)
	assert.Equal(t, "1 (33.3%)", cell(LabelMortalityStay).Total)
	assert.Equal(t, "0 (0.0%)", cell(LabelMortalityStay).Values[2023])
	assert.Equal(t, "1 (50.0%)", cell(LabelChronicStay).Total)
	assert.Equal(t, "0 (0.0%)", cell(LabelChronicStay).Values[2023])
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, DefaultNationalCode)

	assert.Empty(t, s.Years)
	assert.Len(t, s.Rows, len(summaryLayout))
	for _, r := range s.Rows {
		assert.Empty(t, r.Total, r.Label)
	}
}

func TestThresholdSensitivity(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	stays := []stay.AssignedStay{
		assigned("P1", "E1", 1, "E073", base, base.Add(2*time.Hour)),
		assigned("P1", "E2", 1, "E073", base, base.Add(10*time.Hour)),
		assigned("P2", "E3", 1, "E073", base, base.Add(30*time.Hour)),
		assigned("P3", "E4", 1, "E073", base, base.Add(50*time.Hour)),
	}

	rows := ThresholdSensitivity(stays, []int{24, 0, 12}, 0)
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, 0, first.ThresholdHours)
	assert.Equal(t, 4, first.Admissions)
	assert.Equal(t, 3, first.UniquePatients)
	assert.Equal(t, 4, first.UniqueEpisodes)
	assert.Equal(t, 1.0, *first.MeanDays)
	assert.Equal(t, 0.8, *first.MedianDays)
	assert.Nil(t, first.AdmissionsDiff)
	assert.Nil(t, first.PctChange)

	second := rows[1]
	assert.Equal(t, 12, second.ThresholdHours)
	assert.Equal(t, 2, second.Admissions)
	assert.Equal(t, -2, *second.AdmissionsDiff)
	assert.Equal(t, -50.0, *second.PctChange)

	third := rows[2]
	assert.Equal(t, 24, third.ThresholdHours)
	assert.Equal(t, 0, *third.AdmissionsDiff)
	assert.Equal(t, 0.0, *third.PctChange)
	assert.Equal(t, 1.7, *third.MeanDays)
	assert.Equal(t, 0.6, *third.SDDays)
}

func TestThresholdSensitivityEdges(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	stays := []stay.AssignedStay{
		assigned("P1", "E1", 1, "E073", base, base.Add(30*time.Hour)),
		assigned("P2", "E2", 1, "E073", base, base.Add(100*time.Hour)),
	}

	t.Run("max days drops long stays", func(t *testing.T) {
		rows := ThresholdSensitivity(stays, []int{0}, 2)
		require.Len(t, rows, 1)
		assert.Equal(t, 1, rows[0].Admissions)
		assert.Nil(t, rows[0].SDDays, "one stay has no sample deviation")
	})

	t.Run("empty threshold leaves stats nil", func(t *testing.T) {
		rows := ThresholdSensitivity(stays, []int{200, 300}, 0)
		require.Len(t, rows, 2)
		assert.Zero(t, rows[0].Admissions)
		assert.Nil(t, rows[0].MeanDays)
		assert.Equal(t, 0, *rows[1].AdmissionsDiff)
		assert.Nil(t, rows[1].PctChange, "no change ratio against zero")
	})
}
