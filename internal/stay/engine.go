package stay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/shared/metrics"
)

// maxReportedAnomalies caps the anomalies kept on a report; counts are exact.
const maxReportedAnomalies = 200

// Input is the immutable snapshot one run works on.
type Input struct {
	Movements     []MovementEvent
	Prescriptions []PrescriptionEvent
}

// Report accounts for every movement and stay seen by a run.
type Report struct {
	ReferenceTime     time.Time         `json:"reference_time"`
	Movements         int               `json:"movements"`
	Groups            int               `json:"groups"`
	InvalidMovements  map[string]int    `json:"invalid_movements"`
	BedlessMovements  int               `json:"bedless_movements"`
	StaysSegmented    int               `json:"stays_segmented"`
	Candidates        int               `json:"candidates"`
	Filtered          map[string]int    `json:"filtered"`
	Eligible          int               `json:"eligible"`
	OrderingAnomalies int               `json:"ordering_anomalies"`
	SkippedGroups     int               `json:"skipped_groups"`
	Anomalies         []*errors.Anomaly `json:"anomalies,omitempty"`
}

// ExcludedWithoutCorroboration returns candidates dropped for lack of
// prescription activity.
func (r *Report) ExcludedWithoutCorroboration() int {
	return r.Candidates - r.Eligible
}

// ExclusionRate returns the share of candidates dropped for lack of
// prescription activity, in percent.
func (r *Report) ExclusionRate() float64 {
	if r.Candidates == 0 {
		return 0
	}
	return float64(r.ExcludedWithoutCorroboration()) / float64(r.Candidates) * 100
}

// Result holds the eligible stays, ordered by admission, and the report.
type Result struct {
	Stays  []AssignedStay
	Report Report
}

// Engine runs normalization, segmentation, unit resolution and filtering over
// every patient/episode group of a snapshot.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an engine after validating the options.
func NewEngine(opts Options, logger *zap.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}, nil
}

// Options returns the engine options.
func (e *Engine) Options() Options {
	return e.opts
}

type groupResult struct {
	stays      []AssignedStay
	invalid    map[string]int
	bedless    int
	segmented  int
	candidates int
	filtered   map[string]int
	anomalies  []*errors.Anomaly
	ordering   int
	skipped    bool
}

// Run processes the snapshot. Failures inside one group are recorded and the
// run continues; only context cancellation aborts it.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()
	referenceNow := e.opts.ReferenceTime
	if referenceNow.IsZero() {
		referenceNow = started
	}

	keys, groups := groupMovements(in.Movements)
	filter := NewFilter(e.opts, in.Prescriptions)
	results := make([]groupResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.workers())

	for i, k := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.processGroup(k, groups[k], referenceNow, filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stay engine: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("stay engine: %w", err)
	}
	metrics.RecordStage("segmentation", time.Since(started))

	res := &Result{Report: Report{
		ReferenceTime:    referenceNow,
		Movements:        len(in.Movements),
		Groups:           len(keys),
		InvalidMovements: map[string]int{},
		Filtered:         map[string]int{},
	}}
	rep := &res.Report

	for _, r := range results {
		res.Stays = append(res.Stays, r.stays...)
		for reason, n := range r.invalid {
			rep.InvalidMovements[reason] += n
		}
		for reason, n := range r.filtered {
			rep.Filtered[reason] += n
		}
		rep.BedlessMovements += r.bedless
		rep.StaysSegmented += r.segmented
		rep.Candidates += r.candidates
		rep.OrderingAnomalies += r.ordering
		if r.skipped {
			rep.SkippedGroups++
		}
		for _, a := range r.anomalies {
			if len(rep.Anomalies) < maxReportedAnomalies {
				rep.Anomalies = append(rep.Anomalies, a)
			}
		}
	}
	rep.Eligible = len(res.Stays)
	SortStays(res.Stays)

	e.record(rep)
	e.logger.Info("stay segmentation complete",
		zap.Int("movements", rep.Movements),
		zap.Int("groups", rep.Groups),
		zap.Int("stays_segmented", rep.StaysSegmented),
		zap.Int("candidates", rep.Candidates),
		zap.Int("eligible", rep.Eligible),
		zap.Int("excluded_without_corroboration", rep.ExcludedWithoutCorroboration()),
		zap.Int("ordering_anomalies", rep.OrderingAnomalies),
		zap.Int("skipped_groups", rep.SkippedGroups),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (e *Engine) processGroup(k groupKey, movements []MovementEvent, referenceNow time.Time, filter *Filter) (r groupResult) {
	defer func() {
		if p := recover(); p != nil {
			anomaly := errors.NewAnomaly(errors.ErrGroupSkipped, "panic",
				k.patientID, k.episodeID, fmt.Sprint(p))
			e.logger.Error("skipping episode group", zap.Error(anomaly))
			r = groupResult{skipped: true, anomalies: []*errors.Anomaly{anomaly}}
		}
	}()

	norm := Normalize(movements, referenceNow)
	r.invalid = norm.Invalid
	for reason, n := range norm.Invalid {
		if ce := e.logger.Check(zap.DebugLevel, "discarding movements"); ce != nil {
			ce.Write(zap.Error(errors.NewAnomaly(errors.ErrInvalidMovement, reason, k.patientID, k.episodeID, "")),
				zap.Int("count", n))
		}
	}
	r.filtered = map[string]int{}

	candidates := norm.Movements
	if e.opts.BedScope == BedScopeMovements {
		kept := candidates[:0:0]
		for _, m := range candidates {
			if m.BedAssigned {
				kept = append(kept, m)
			} else {
				r.bedless++
			}
		}
		candidates = kept
	}

	stays, anomalies := Segment(candidates, e.opts.Tolerance)
	r.segmented = len(stays)
	r.ordering = len(anomalies)
	r.anomalies = anomalies
	for _, a := range anomalies {
		e.logger.Warn("ordering anomaly", zap.Error(a))
	}

	for _, s := range stays {
		assigned := Resolve(s)
		v := filter.Check(&assigned)
		if v.Candidate {
			r.candidates++
		}
		if !v.Eligible {
			r.filtered[v.Reason]++
			if ce := e.logger.Check(zap.DebugLevel, "stay filtered out"); ce != nil {
				ce.Write(zap.Error(errors.NewAnomaly(errors.ErrFilteredOut, v.Reason,
					k.patientID, k.episodeID, fmt.Sprintf("stay %d", assigned.StayID))))
			}
			continue
		}
		r.stays = append(r.stays, assigned)
	}
	return r
}

func (e *Engine) record(rep *Report) {
	for reason, n := range rep.InvalidMovements {
		metrics.RecordInvalidMovements(reason, n)
	}
	for reason, n := range rep.Filtered {
		metrics.RecordStaysFiltered(reason, n)
	}
	metrics.RecordStaysSegmented(rep.StaysSegmented)
	metrics.RecordStaysEligible(rep.Eligible)
	metrics.RecordOrderingAnomalies(rep.OrderingAnomalies)
	for i := 0; i < rep.SkippedGroups; i++ {
		metrics.RecordGroupSkipped()
	}
}

// groupMovements splits movements by patient and episode and returns the
// keys in a stable order.
func groupMovements(movements []MovementEvent) ([]groupKey, map[groupKey][]MovementEvent) {
	groups := make(map[groupKey][]MovementEvent)
	for _, m := range movements {
		k := groupKey{patientID: m.PatientID, episodeID: m.EpisodeID}
		groups[k] = append(groups[k], m)
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys, groups
}

// SortStays orders stays by admission, patient, episode and stay id.
func SortStays(stays []AssignedStay) {
	sort.SliceStable(stays, func(i, j int) bool {
		a, b := stays[i], stays[j]
		if !a.Admission.Equal(b.Admission) {
			return a.Admission.Before(b.Admission)
		}
		if a.PatientID != b.PatientID {
			return a.PatientID < b.PatientID
		}
		if a.EpisodeID != b.EpisodeID {
			return a.EpisodeID < b.EpisodeID
		}
		return a.StayID < b.StayID
	})
}
