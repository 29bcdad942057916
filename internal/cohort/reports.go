package cohort

import (
	"sort"
	"time"
)

// MonthCount is the number of stays admitted in one calendar month.
type MonthCount struct {
	Year     int        `json:"year"`
	Month    time.Month `json:"month"`
	Stays    int        `json:"stays"`
	Patients int        `json:"patients"`
}

// StaysByMonth counts stays per month of admission, in calendar order.
func StaysByMonth(records []Record) []MonthCount {
	type key struct {
		year  int
		month time.Month
	}
	counts := make(map[key]*MonthCount)
	patients := make(map[key]map[string]struct{})

	for _, r := range records {
		k := key{r.Admission.Year(), r.Admission.Month()}
		c, ok := counts[k]
		if !ok {
			c = &MonthCount{Year: k.year, Month: k.month}
			counts[k] = c
			patients[k] = make(map[string]struct{})
		}
		c.Stays++
		patients[k][r.PatientID] = struct{}{}
	}

	out := make([]MonthCount, 0, len(counts))
	for k, c := range counts {
		c.Patients = len(patients[k])
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// UnitYearSummary aggregates the stays assigned to one unit in one year.
type UnitYearSummary struct {
	Year           int     `json:"year"`
	Unit           string  `json:"unit"`
	Admissions     int     `json:"admissions"`
	UniquePatients int     `json:"unique_patients"`
	UniqueEpisodes int     `json:"unique_episodes"`
	MeanHours      float64 `json:"mean_hours"`
	MedianHours    float64 `json:"median_hours"`
	MeanDays       float64 `json:"mean_days"`
	MedianDays     float64 `json:"median_days"`
	StillAdmitted  int     `json:"still_admitted"`
	Transfers      int     `json:"transfers"`
	DeathsInStay   int     `json:"deaths_in_stay"`
}

// UnitSummary aggregates records per admission year and assigned unit.
func UnitSummary(records []Record) []UnitYearSummary {
	type key struct {
		year int
		unit string
	}
	groups := make(map[key][]Record)
	for _, r := range records {
		k := key{r.YearAdmission, r.AssignedUnit}
		groups[k] = append(groups[k], r)
	}

	out := make([]UnitYearSummary, 0, len(groups))
	for k, rs := range groups {
		s := UnitYearSummary{Year: k.year, Unit: k.unit, Admissions: len(rs)}
		patients := make(map[string]struct{})
		episodes := make(map[string]struct{})
		hours := make([]float64, 0, len(rs))
		days := make([]float64, 0, len(rs))

		for _, r := range rs {
			patients[r.PatientID] = struct{}{}
			episodes[r.EpisodeID] = struct{}{}
			hours = append(hours, float64(r.HoursStay))
			days = append(days, r.LengthOfStayDays())
			if r.StillAdmitted {
				s.StillAdmitted++
			}
			if r.HadTransfer {
				s.Transfers++
			}
			if r.ExitusDuringStay {
				s.DeathsInStay++
			}
		}
		s.UniquePatients = len(patients)
		s.UniqueEpisodes = len(episodes)

		h, _ := Describe(hours)
		d, _ := Describe(days)
		s.MeanHours = round(h.Mean, 1)
		s.MedianHours = round(h.Median, 1)
		s.MeanDays = round(d.Mean, 1)
		s.MedianDays = round(d.Median, 1)
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}
