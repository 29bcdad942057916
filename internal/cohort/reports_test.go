package cohort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaysByMonth(t *testing.T) {
	records := []Record{
		record("P1", "EP1", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 1),
		record("P1", "EP2", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), 1),
		record("P2", "EP3", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), 1),
		record("P3", "EP4", time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), 1),
	}

	months := StaysByMonth(records)

	require.Len(t, months, 3)
	assert.Equal(t, MonthCount{Year: 2023, Month: time.December, Stays: 1, Patients: 1}, months[0])
	assert.Equal(t, MonthCount{Year: 2024, Month: time.January, Stays: 1, Patients: 1}, months[1])
	assert.Equal(t, MonthCount{Year: 2024, Month: time.March, Stays: 2, Patients: 1}, months[2])
}

func TestUnitSummary(t *testing.T) {
	adm := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	a := record("P1", "EP1", adm, 2)
	b := record("P2", "EP2", adm, 4)
	b.ExitusDuringStay = true
	b.UnitsVisited = 2
	b.HadTransfer = true
	c := record("P3", "EP3", adm, 1)
	c.AssignedUnit = "I073"
	c.Discharge = nil
	c.StillAdmitted = true

	summary := UnitSummary([]Record{c, b, a})

	require.Len(t, summary, 2)
	e := summary[0]
	assert.Equal(t, "E073", e.Unit)
	assert.Equal(t, 2024, e.Year)
	assert.Equal(t, 2, e.Admissions)
	assert.Equal(t, 2, e.UniquePatients)
	assert.Equal(t, 72.0, e.MeanHours)
	assert.Equal(t, 3.0, e.MedianDays)
	assert.Equal(t, 1, e.Transfers)
	assert.Equal(t, 1, e.DeathsInStay)
	assert.Zero(t, e.StillAdmitted)

	i := summary[1]
	assert.Equal(t, "I073", i.Unit)
	assert.Equal(t, 1, i.StillAdmitted)
}
