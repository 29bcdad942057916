package cohort

import (
	"sort"

	"github.com/datanex/staycohort/internal/stay"
)

// DefaultThresholdsHours are the minimum stay lengths swept by default.
var DefaultThresholdsHours = []int{0, 6, 12, 24, 48, 72}

// ThresholdRow describes the stays lasting at least ThresholdHours.
// Statistics are in days, rounded to one decimal; nil when undefined.
type ThresholdRow struct {
	ThresholdHours int      `json:"threshold_hours"`
	Admissions     int      `json:"admissions"`
	UniquePatients int      `json:"unique_patients"`
	UniqueEpisodes int      `json:"unique_episodes"`
	MeanDays       *float64 `json:"mean_days"`
	SDDays         *float64 `json:"sd_days"`
	MedianDays     *float64 `json:"median_days"`
	Q1Days         *float64 `json:"q1_days"`
	Q3Days         *float64 `json:"q3_days"`

	// Change against the previous threshold; nil on the first row.
	AdmissionsDiff *int     `json:"admissions_diff"`
	PctChange      *float64 `json:"pct_change"`
}

// ThresholdSensitivity sweeps minimum-hours thresholds over stays. Thresholds
// are evaluated in ascending order. When maxDays is positive, stays longer
// than maxDays are dropped first.
func ThresholdSensitivity(stays []stay.AssignedStay, thresholdsHours []int, maxDays float64) []ThresholdRow {
	thresholds := append([]int(nil), thresholdsHours...)
	sort.Ints(thresholds)

	pool := stays
	if maxDays > 0 {
		pool = make([]stay.AssignedStay, 0, len(stays))
		for _, s := range stays {
			if float64(s.HoursStay)/24 <= maxDays {
				pool = append(pool, s)
			}
		}
	}

	rows := make([]ThresholdRow, 0, len(thresholds))
	for i, th := range thresholds {
		row := ThresholdRow{ThresholdHours: th}
		patients := make(map[string]struct{})
		episodes := make(map[string]struct{})
		var days []float64

		for _, s := range pool {
			if s.HoursStay < int64(th) {
				continue
			}
			row.Admissions++
			patients[s.PatientID] = struct{}{}
			episodes[s.EpisodeID] = struct{}{}
			days = append(days, float64(s.HoursStay)/24)
		}
		row.UniquePatients = len(patients)
		row.UniqueEpisodes = len(episodes)

		if d, ok := Describe(days); ok {
			row.MeanDays = ptr(round(d.Mean, 1))
			row.MedianDays = ptr(round(d.Median, 1))
			row.Q1Days = ptr(round(d.Q1, 1))
			row.Q3Days = ptr(round(d.Q3, 1))
			if d.N > 1 {
				row.SDDays = ptr(round(d.SD, 1))
			}
		}

		if i > 0 {
			prev := rows[i-1].Admissions
			diff := row.Admissions - prev
			row.AdmissionsDiff = &diff
			if prev > 0 {
				row.PctChange = ptr(round(float64(diff)/float64(prev)*100, 2))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func ptr[T any](v T) *T {
	return &v
}
