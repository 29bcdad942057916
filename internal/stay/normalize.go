package stay

import (
	"sort"
	"time"
)

// Reasons a movement is discarded during normalization.
const (
	InvalidMissingField     = "missing_field"
	InvalidNonPositiveSpan  = "non_positive_span"
	InvalidOpenAfterRefTime = "open_after_reference"
)

// Normalization is the outcome of normalizing one episode's movements.
type Normalization struct {
	Movements []EffectiveMovement
	Invalid   map[string]int
}

// Normalize validates, orders and bounds the movements of one episode.
// Sorting is by start, then end with open movements last. The input slice is
// not modified.
func Normalize(movements []MovementEvent, referenceNow time.Time) Normalization {
	out := Normalization{
		Movements: make([]EffectiveMovement, 0, len(movements)),
		Invalid:   map[string]int{},
	}

	for _, m := range movements {
		if reason := validate(m, referenceNow); reason != "" {
			out.Invalid[reason]++
			continue
		}
		eff := EffectiveMovement{MovementEvent: m, EffectiveEnd: referenceNow}
		if m.End != nil {
			eff.EffectiveEnd = *m.End
		}
		out.Movements = append(out.Movements, eff)
	}

	sort.SliceStable(out.Movements, func(i, j int) bool {
		a, b := out.Movements[i], out.Movements[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		switch {
		case a.End == nil:
			return false
		case b.End == nil:
			return true
		default:
			return a.End.Before(*b.End)
		}
	})

	return out
}

func validate(m MovementEvent, referenceNow time.Time) string {
	if m.PatientID == "" || m.EpisodeID == "" || m.UnitID == "" || m.Start.IsZero() {
		return InvalidMissingField
	}
	if m.End != nil {
		if !m.End.After(m.Start) {
			return InvalidNonPositiveSpan
		}
		return ""
	}
	if !referenceNow.After(m.Start) {
		return InvalidOpenAfterRefTime
	}
	return ""
}
