package cohort

import (
	"sort"
	"strconv"
)

// DefaultNationalCode is the nationality counted as national in summaries.
const DefaultNationalCode = "ES"

// SummaryRow is one variable of the yearly summary.
type SummaryRow struct {
	Label   string         `json:"label"`
	Section string         `json:"section"`
	Values  map[int]string `json:"values"`
	Total   string         `json:"total"`
}

// Summary is the yearly cohort description with a total column.
type Summary struct {
	Years []int        `json:"years"`
	Rows  []SummaryRow `json:"rows"`
}

// Row returns the row with the given label.
func (s *Summary) Row(label string) (SummaryRow, bool) {
	for _, r := range s.Rows {
		if r.Label == label {
			return r, true
		}
	}
	return SummaryRow{}, false
}

// Summary row labels.
const (
	LabelStays            = "Stays"
	LabelPatients         = "Patients"
	LabelAge              = "Age, median [IQR]"
	LabelMale             = "Male sex, n (%)"
	LabelFemale           = "Female sex, n (%)"
	LabelNational         = "National, n (%)"
	LabelOtherNationality = "Other nationalities, n (%)"
	LabelLengthOfStay     = "Length of stay (days), median [IQR]"
	LabelChronic          = "Chronic condition, n (%)"
	LabelReadmission24h   = "Readmission 24h, n (%)"
	LabelReadmission72h   = "Readmission 72h, n (%)"
	LabelMortalityStay    = "Mortality - in stay, n (%)"
	LabelMortality30d     = "Mortality - 30 days, n (%)"
	LabelMortality90d     = "Mortality - 90 days, n (%)"
	LabelChronicStay      = "Chronic mortality - in stay, n (%)"
	LabelChronic30d       = "Chronic mortality - 30 days, n (%)"
	LabelChronic90d       = "Chronic mortality - 90 days, n (%)"
)

var summaryLayout = []struct {
	label   string
	section string
}{
	{LabelStays, "demographics"},
	{LabelPatients, "demographics"},
	{LabelAge, "demographics"},
	{LabelMale, "demographics"},
	{LabelFemale, "demographics"},
	{LabelNational, "demographics"},
	{LabelOtherNationality, "demographics"},
	{LabelLengthOfStay, "clinical"},
	{LabelChronic, "clinical"},
	{LabelReadmission24h, "clinical"},
	{LabelReadmission72h, "clinical"},
	{LabelMortalityStay, "mortality"},
	{LabelMortality30d, "mortality"},
	{LabelMortality90d, "mortality"},
	{LabelChronicStay, "mortality_chronic"},
	{LabelChronic30d, "mortality_chronic"},
	{LabelChronic90d, "mortality_chronic"},
}

// Summarize describes the cohort per admission year. Age, length of stay,
// chronic prevalence, readmission and mortality are stay-level; sex and
// nationality are counted once per patient, using the patient's first stay
// of the year.
func Summarize(records []Record, nationalCode string) Summary {
	if nationalCode == "" {
		nationalCode = DefaultNationalCode
	}

	byYear := make(map[int][]Record)
	for _, r := range records {
		byYear[r.YearAdmission] = append(byYear[r.YearAdmission], r)
	}

	summary := Summary{}
	for y := range byYear {
		summary.Years = append(summary.Years, y)
	}
	sort.Ints(summary.Years)

	cells := make(map[string]*SummaryRow, len(summaryLayout))
	for _, l := range summaryLayout {
		summary.Rows = append(summary.Rows, SummaryRow{
			Label:   l.label,
			Section: l.section,
			Values:  map[int]string{},
		})
	}
	for i := range summary.Rows {
		cells[summary.Rows[i].Label] = &summary.Rows[i]
	}

	for _, y := range summary.Years {
		for label, value := range describeGroup(byYear[y], nationalCode) {
			cells[label].Values[y] = value
		}
	}
	if len(records) > 0 {
		for label, value := range describeGroup(records, nationalCode) {
			cells[label].Total = value
		}
	}
	return summary
}

func describeGroup(records []Record, nationalCode string) map[string]string {
	out := make(map[string]string, len(summaryLayout))
	n := len(records)
	out[LabelStays] = strconv.Itoa(n)
	if n == 0 {
		return out
	}

	seen := make(map[string]bool)
	var patients []Record
	var ages, los []float64
	var chronic, readmit24, readmit72 int
	var chronicRecords []Record

	for _, r := range records {
		if !seen[r.PatientID] {
			seen[r.PatientID] = true
			patients = append(patients, r)
		}
		if r.AgeAtAdmission != nil {
			ages = append(ages, float64(*r.AgeAtAdmission))
		}
		los = append(los, float64(r.DaysStay))
		if r.HasChronicCondition {
			chronic++
			chronicRecords = append(chronicRecords, r)
		}
		if r.Readmission24h {
			readmit24++
		}
		if r.Readmission72h {
			readmit72++
		}
	}

	var male, female, national int
	for _, p := range patients {
		switch p.Sex {
		case SexMale:
			male++
		case SexFemale:
			female++
		}
		if p.NationalityCode != nil && *p.NationalityCode == nationalCode {
			national++
		}
	}

	nPat := len(patients)
	out[LabelPatients] = strconv.Itoa(nPat)
	out[LabelAge] = formatMedianIQR(ages)
	out[LabelMale] = formatCount(male, nPat)
	out[LabelFemale] = formatCount(female, nPat)
	out[LabelNational] = formatCount(national, nPat)
	out[LabelOtherNationality] = formatCount(nPat-national, nPat)
	out[LabelLengthOfStay] = formatMedianIQR(los)
	out[LabelChronic] = formatCount(chronic, n)
	out[LabelReadmission24h] = formatCount(readmit24, n)
	out[LabelReadmission72h] = formatCount(readmit72, n)

	all := countMortality(records)
	out[LabelMortalityStay] = formatCount(all.inStay, n)
	out[LabelMortality30d] = formatCount(all.within30, n)
	out[LabelMortality90d] = formatCount(all.within90, n)

	c := countMortality(chronicRecords)
	out[LabelChronicStay] = formatCount(c.inStay, len(chronicRecords))
	out[LabelChronic30d] = formatCount(c.within30, len(chronicRecords))
	out[LabelChronic90d] = formatCount(c.within90, len(chronicRecords))
	return out
}

type mortality struct {
	inStay   int
	within30 int
	within90 int
}

func countMortality(records []Record) mortality {
	var m mortality
	for _, r := range records {
		if r.ExitusDuringStay {
			m.inStay++
		}
		if r.Mortality30d {
			m.within30++
		}
		if r.Mortality90d {
			m.within90++
		}
	}
	return m
}
