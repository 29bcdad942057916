package stay

import (
	"time"
)

type unitTotal struct {
	unit       string
	minutes    int64
	firstStart time.Time
}

// Resolve attributes a stay to the unit with the most cumulative minutes.
// Ties go to the unit entered first; identical first entries go to the
// lexicographically smaller unit id.
func Resolve(s Stay) AssignedStay {
	totals := make(map[string]*unitTotal, s.UnitsVisited)
	order := make([]*unitTotal, 0, s.UnitsVisited)

	for _, m := range s.Movements {
		t, ok := totals[m.UnitID]
		if !ok {
			t = &unitTotal{unit: m.UnitID, firstStart: m.Start}
			totals[m.UnitID] = t
			order = append(order, t)
		}
		t.minutes += m.Minutes()
		if m.Start.Before(t.firstStart) {
			t.firstStart = m.Start
		}
	}

	var best *unitTotal
	minutes := make(map[string]int64, len(order))
	for _, t := range order {
		minutes[t.unit] = t.minutes
		if best == nil || outranks(t, best) {
			best = t
		}
	}

	span := s.Duration()
	a := AssignedStay{
		Stay:        s,
		UnitMinutes: minutes,
		HoursStay:   int64(span / time.Hour),
		DaysStay:    int64(span / (24 * time.Hour)),
		MinutesStay: int64(span / time.Minute),
	}
	if best != nil {
		a.AssignedUnit = best.unit
	}
	return a
}

func outranks(a, b *unitTotal) bool {
	if a.minutes != b.minutes {
		return a.minutes > b.minutes
	}
	if !a.firstStart.Equal(b.firstStart) {
		return a.firstStart.Before(b.firstStart)
	}
	return a.unit < b.unit
}
