package stay

import (
	"fmt"
	"runtime"
	"time"

	"github.com/datanex/staycohort/internal/shared/errors"
)

// BedScope selects where the bed-assignment predicate is applied.
type BedScope string

const (
	// BedScopeMovements drops movements without a bed before segmentation.
	BedScopeMovements BedScope = "movements"
	// BedScopeStays segments every movement and rejects stays with no bed.
	BedScopeStays BedScope = "stays"
)

// Corroboration selects how prescription activity validates a stay.
type Corroboration string

const (
	// CorroborationNone admits stays without looking at prescriptions.
	CorroborationNone Corroboration = "none"
	// CorroborationStartWithin requires a prescription starting inside the stay.
	CorroborationStartWithin Corroboration = "start_within"
	// CorroborationOverlap requires a prescription interval overlapping the stay.
	CorroborationOverlap Corroboration = "overlap"
)

// Tolerances used by the cohort queries.
const (
	ToleranceExact   time.Duration = 0
	ToleranceDefault time.Duration = 5 * time.Minute
)

// Options configures one engine run. Every query variant is expressed here.
type Options struct {
	// Tolerance is the maximum absolute gap between a movement start and the
	// running effective end for the movement to continue the current stay.
	Tolerance time.Duration

	// BedScope must be set explicitly.
	BedScope BedScope

	Corroboration Corroboration

	// Admission years, inclusive.
	MinYear int
	MaxYear int

	// AssignedUnits keeps only stays whose predominant unit is listed.
	// Empty keeps every unit.
	AssignedUnits []string

	// ReferenceTime replaces the end of open movements. Zero means the wall
	// clock at the start of the run.
	ReferenceTime time.Time

	// Workers bounds the number of episode groups processed concurrently.
	Workers int
}

// DefaultOptions returns the configuration used by the ward cohort queries.
func DefaultOptions() Options {
	year := time.Now().Year()
	return Options{
		Tolerance:     ToleranceDefault,
		BedScope:      BedScopeMovements,
		Corroboration: CorroborationStartWithin,
		MinYear:       year,
		MaxYear:       year,
		Workers:       runtime.NumCPU(),
	}
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	details := map[string]string{}

	if o.Tolerance < 0 {
		details["tolerance"] = "must not be negative"
	}
	switch o.BedScope {
	case BedScopeMovements, BedScopeStays:
	case "":
		details["bed_scope"] = "must be set to movements or stays"
	default:
		details["bed_scope"] = fmt.Sprintf("unknown scope %q", o.BedScope)
	}
	switch o.Corroboration {
	case CorroborationNone, CorroborationStartWithin, CorroborationOverlap:
	default:
		details["corroboration"] = fmt.Sprintf("unknown mode %q", o.Corroboration)
	}
	if o.MinYear <= 0 || o.MaxYear <= 0 {
		details["years"] = "min and max year are required"
	} else if o.MinYear > o.MaxYear {
		details["years"] = fmt.Sprintf("min year %d after max year %d", o.MinYear, o.MaxYear)
	}
	if o.Workers < 0 {
		details["workers"] = "must not be negative"
	}

	if len(details) > 0 {
		return errors.Validation("invalid engine options", details)
	}
	return nil
}

// RangeStart returns the first instant of MinYear in the reference location.
func (o Options) RangeStart() time.Time {
	return time.Date(o.MinYear, time.January, 1, 0, 0, 0, 0, o.location())
}

// RangeEnd returns the last second of MaxYear.
func (o Options) RangeEnd() time.Time {
	return time.Date(o.MaxYear, time.December, 31, 23, 59, 59, 0, o.location())
}

func (o Options) location() *time.Location {
	if o.ReferenceTime.IsZero() {
		return time.UTC
	}
	return o.ReferenceTime.Location()
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}
