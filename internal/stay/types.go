package stay

import (
	"time"
)

// MovementEvent is one location/bed assignment interval within an episode,
// as delivered by the warehouse. It is never mutated.
type MovementEvent struct {
	PatientID   string     `json:"patient_id"`
	EpisodeID   string     `json:"episode_id"`
	UnitID      string     `json:"unit_id"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	BedAssigned bool       `json:"bed_assigned"`
}

// Open reports whether the movement is still active.
func (m MovementEvent) Open() bool {
	return m.End == nil
}

// EffectiveMovement is a validated movement with its duration bound.
// EffectiveEnd equals End, or the run reference time when End is nil.
type EffectiveMovement struct {
	MovementEvent
	EffectiveEnd time.Time `json:"effective_end"`
}

// Minutes returns the whole minutes between start and effective end.
func (m EffectiveMovement) Minutes() int64 {
	return int64(m.EffectiveEnd.Sub(m.Start) / time.Minute)
}

// PrescriptionEvent is a drug order used only as corroborating activity.
type PrescriptionEvent struct {
	PatientID string     `json:"patient_id"`
	EpisodeID string     `json:"episode_id"`
	StartDrug time.Time  `json:"start_drug"`
	EndDrug   *time.Time `json:"end_drug,omitempty"`
}

// Stay is a maximal run of merged movements within one episode.
type Stay struct {
	PatientID          string              `json:"patient_id"`
	EpisodeID          string              `json:"episode_id"`
	StayID             int                 `json:"stay_id"`
	Movements          []EffectiveMovement `json:"-"`
	Admission          time.Time           `json:"admission"`
	Discharge          *time.Time          `json:"discharge,omitempty"`
	EffectiveDischarge time.Time           `json:"effective_discharge"`
	UnitsVisited       int                 `json:"units_visited"`
	NumMovements       int                 `json:"num_movements"`

	// StillAdmitted is set when any constituent movement is open.
	StillAdmitted bool `json:"still_admitted"`
	// HadTransfer is set when the stay crossed more than one unit.
	HadTransfer bool `json:"had_transfer"`
}

// HasBed reports whether at least one constituent had a bed assigned.
func (s *Stay) HasBed() bool {
	for _, m := range s.Movements {
		if m.BedAssigned {
			return true
		}
	}
	return false
}

// Duration returns effective discharge minus admission.
func (s *Stay) Duration() time.Duration {
	return s.EffectiveDischarge.Sub(s.Admission)
}

// AssignedStay is a stay attributed to its predominant unit.
type AssignedStay struct {
	Stay
	AssignedUnit string           `json:"assigned_unit"`
	UnitMinutes  map[string]int64 `json:"unit_minutes"`
	HoursStay    int64            `json:"hours_stay"`
	DaysStay     int64            `json:"days_stay"`
	MinutesStay  int64            `json:"minutes_stay"`
}

// YearAdmission returns the calendar year of admission.
func (a *AssignedStay) YearAdmission() int {
	return a.Admission.Year()
}

// groupKey identifies the merge scope of a movement.
type groupKey struct {
	patientID string
	episodeID string
}

func (k groupKey) less(o groupKey) bool {
	if k.patientID != o.patientID {
		return k.patientID < o.patientID
	}
	return k.episodeID < o.episodeID
}
