package cohort

import (
	"time"

	"github.com/datanex/staycohort/internal/shared/types"
	"github.com/datanex/staycohort/internal/stay"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunParameters records the options a run was executed with.
type RunParameters struct {
	Tolerance     string   `json:"tolerance"`
	BedScope      string   `json:"bed_scope"`
	Corroboration string   `json:"corroboration"`
	MinYear       int      `json:"min_year"`
	MaxYear       int      `json:"max_year"`
	Units         []string `json:"units,omitempty"`
	AssignedUnits []string `json:"assigned_units,omitempty"`
	Workers       int      `json:"workers"`
}

// ParametersFrom describes opts. units is the source window unit filter.
func ParametersFrom(opts stay.Options, units []string) RunParameters {
	return RunParameters{
		Tolerance:     opts.Tolerance.String(),
		BedScope:      string(opts.BedScope),
		Corroboration: string(opts.Corroboration),
		MinYear:       opts.MinYear,
		MaxYear:       opts.MaxYear,
		Units:         units,
		AssignedUnits: opts.AssignedUnits,
		Workers:       opts.Workers,
	}
}

// Run is one stored execution of the cohort pipeline.
type Run struct {
	ID            types.ID         `json:"id"`
	Status        RunStatus        `json:"status"`
	SourceSystem  string           `json:"source_system"`
	ReferenceTime time.Time        `json:"reference_time"`
	Parameters    RunParameters    `json:"parameters"`
	Report        *stay.Report     `json:"report,omitempty"`
	Enrichment    *EnrichmentStats `json:"enrichment,omitempty"`
	Error         *string          `json:"error,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// RecordFilter narrows ListRecords. Zero values match everything.
type RecordFilter struct {
	Unit   string
	Year   int
	Limit  int
	Offset int
}
