package cohort

import (
	"fmt"
	"math"
	"sort"
)

// quantile returns the q-th quantile with linear interpolation between
// closest ranks. sorted must be ascending and non-empty.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Distribution summarises a sample.
type Distribution struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"` // sample standard deviation; NaN when N < 2
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Describe computes a Distribution. ok is false for an empty sample.
func Describe(values []float64) (d Distribution, ok bool) {
	if len(values) == 0 {
		return d, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	d.N = len(sorted)
	d.Mean = sum / float64(d.N)
	d.SD = math.NaN()
	if d.N > 1 {
		var ss float64
		for _, v := range sorted {
			ss += (v - d.Mean) * (v - d.Mean)
		}
		d.SD = math.Sqrt(ss / float64(d.N-1))
	}
	d.Min = sorted[0]
	d.Max = sorted[d.N-1]
	d.Q1 = quantile(sorted, 0.25)
	d.Median = quantile(sorted, 0.5)
	d.Q3 = quantile(sorted, 0.75)
	return d, true
}

// formatMedianIQR renders "median [q1-q3]" or "" for an empty sample.
func formatMedianIQR(values []float64) string {
	d, ok := Describe(values)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.1f [%.1f-%.1f]", d.Median, d.Q1, d.Q3)
}

// formatCount renders "n (p%)" or "" when total is zero.
func formatCount(count, total int) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("%d (%.1f%%)", count, float64(count)/float64(total)*100)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
