package stay

import (
	"fmt"
	"time"

	"github.com/datanex/staycohort/internal/shared/errors"
)

// Segment partitions one episode's normalized movements into stays.
//
// Movement 0 opens stay 1. Each following movement continues the current stay
// when |start - prevEffectiveEnd| <= tolerance, otherwise it opens a new one.
// prevEffectiveEnd is the running maximum of effective ends over the episode,
// so it does not depend on the tolerance.
//
// A start earlier than prevEffectiveEnd by more than the tolerance is still
// split, and reported as an ordering anomaly.
func Segment(movements []EffectiveMovement, tolerance time.Duration) ([]Stay, []*errors.Anomaly) {
	if len(movements) == 0 {
		return nil, nil
	}

	var (
		stays     []Stay
		anomalies []*errors.Anomaly
		current   []EffectiveMovement
	)

	flush := func() {
		stays = append(stays, buildStay(current, len(stays)+1))
		current = nil
	}

	prevEnd := movements[0].EffectiveEnd
	current = append(current, movements[0])

	for i := 1; i < len(movements); i++ {
		m := movements[i]
		gap := m.Start.Sub(prevEnd)

		if absDuration(gap) > tolerance {
			if gap < 0 {
				anomalies = append(anomalies, errors.NewAnomaly(
					errors.ErrOrderingViolation, "negative_gap", m.PatientID, m.EpisodeID,
					fmt.Sprintf("movement in %s starts %s before running end %s",
						m.UnitID, (-gap).String(), prevEnd.Format(time.RFC3339)),
				))
			}
			flush()
		}
		current = append(current, m)

		if m.EffectiveEnd.After(prevEnd) {
			prevEnd = m.EffectiveEnd
		}
	}
	flush()

	return stays, anomalies
}

func buildStay(movements []EffectiveMovement, stayID int) Stay {
	first := movements[0]
	s := Stay{
		PatientID:          first.PatientID,
		EpisodeID:          first.EpisodeID,
		StayID:             stayID,
		Movements:          movements,
		Admission:          first.Start,
		EffectiveDischarge: first.EffectiveEnd,
	}

	units := map[string]struct{}{}
	var discharge time.Time
	open := false

	for _, m := range movements {
		units[m.UnitID] = struct{}{}
		if m.Start.Before(s.Admission) {
			s.Admission = m.Start
		}
		if m.EffectiveEnd.After(s.EffectiveDischarge) {
			s.EffectiveDischarge = m.EffectiveEnd
		}
		if m.End == nil {
			open = true
		} else if m.End.After(discharge) {
			discharge = *m.End
		}
	}

	if !open {
		s.Discharge = &discharge
	}
	s.StillAdmitted = open
	s.UnitsVisited = len(units)
	s.HadTransfer = s.UnitsVisited > 1
	s.NumMovements = len(movements)
	return s
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
