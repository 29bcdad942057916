package stay

import (
	"sort"
	"time"
)

// Reasons a stay is rejected by the admission filter.
const (
	FilteredNoBed          = "no_bed"
	FilteredYearOutOfRange = "year_out_of_range"
	FilteredUnitNotChosen  = "unit_not_requested"
	FilteredNoPrescription = "no_prescription"
)

// Verdict is the outcome of checking one stay.
type Verdict struct {
	Eligible bool
	// Candidate is true when the stay passed every predicate except
	// corroboration. Eligible implies Candidate.
	Candidate bool
	Reason    string
}

// Filter applies the eligibility predicates to assigned stays.
type Filter struct {
	opts          Options
	assignedUnits map[string]struct{}
	prescriptions map[groupKey][]PrescriptionEvent
}

// NewFilter indexes prescriptions by patient and episode.
func NewFilter(opts Options, prescriptions []PrescriptionEvent) *Filter {
	f := &Filter{
		opts:          opts,
		prescriptions: make(map[groupKey][]PrescriptionEvent),
	}
	if len(opts.AssignedUnits) > 0 {
		f.assignedUnits = make(map[string]struct{}, len(opts.AssignedUnits))
		for _, u := range opts.AssignedUnits {
			f.assignedUnits[u] = struct{}{}
		}
	}
	if opts.Corroboration == CorroborationNone {
		return f
	}

	for _, p := range prescriptions {
		if p.PatientID == "" || p.EpisodeID == "" || p.StartDrug.IsZero() {
			continue
		}
		k := groupKey{patientID: p.PatientID, episodeID: p.EpisodeID}
		f.prescriptions[k] = append(f.prescriptions[k], p)
	}
	for k := range f.prescriptions {
		list := f.prescriptions[k]
		sort.Slice(list, func(i, j int) bool { return list[i].StartDrug.Before(list[j].StartDrug) })
	}
	return f
}

// Check evaluates the predicates in a fixed order: bed, year, assigned unit,
// corroboration. The first failing predicate names the reason.
func (f *Filter) Check(s *AssignedStay) Verdict {
	if !s.HasBed() {
		return Verdict{Reason: FilteredNoBed}
	}
	year := s.Admission.Year()
	if year < f.opts.MinYear || year > f.opts.MaxYear {
		return Verdict{Reason: FilteredYearOutOfRange}
	}
	if f.assignedUnits != nil {
		if _, ok := f.assignedUnits[s.AssignedUnit]; !ok {
			return Verdict{Reason: FilteredUnitNotChosen}
		}
	}
	if !f.corroborated(s) {
		return Verdict{Candidate: true, Reason: FilteredNoPrescription}
	}
	return Verdict{Eligible: true, Candidate: true}
}

func (f *Filter) corroborated(s *AssignedStay) bool {
	if f.opts.Corroboration == CorroborationNone {
		return true
	}

	list := f.prescriptions[groupKey{patientID: s.PatientID, episodeID: s.EpisodeID}]
	admission, end := s.Admission, s.EffectiveDischarge

	// list is sorted by start, so nothing after end can match either mode.
	for _, p := range list {
		if p.StartDrug.After(end) {
			return false
		}
		switch f.opts.Corroboration {
		case CorroborationStartWithin:
			if !p.StartDrug.Before(admission) {
				return true
			}
		case CorroborationOverlap:
			if p.EndDrug == nil || !p.EndDrug.Before(admission) {
				return true
			}
		}
	}
	return false
}

// Within reports whether t lies in the closed interval [from, to].
func Within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
