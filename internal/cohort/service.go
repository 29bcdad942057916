package cohort

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/shared/events"
	"github.com/datanex/staycohort/internal/shared/metrics"
	"github.com/datanex/staycohort/internal/shared/types"
	"github.com/datanex/staycohort/internal/stay"
)

// RunStore persists runs. Repository is the Postgres implementation.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	SaveRecords(ctx context.Context, runID types.ID, records []Record) (int64, error)
	FinishRun(ctx context.Context, runID types.ID, report *stay.Report, stats *EnrichmentStats) error
	FailRun(ctx context.Context, runID types.ID, cause error) error
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Options stay.Options

	// Units restricts the movements read from the source. Empty reads all.
	Units []string

	ChronicCodePrefixes []string
}

// Outcome is everything one run produced.
type Outcome struct {
	Run     Run
	Stays   []stay.AssignedStay
	Records []Record
	Report  stay.Report
	Stats   EnrichmentStats
}

// Service runs the cohort pipeline: load a snapshot from the source, derive
// stays, enrich them, then store and announce the result.
type Service struct {
	source    health.Source
	store     RunStore
	publisher events.Publisher
	config    ServiceConfig
	logger    *zap.Logger
}

// NewService creates a new cohort service. store and publisher are optional.
func NewService(
	source health.Source,
	store RunStore,
	publisher events.Publisher,
	config ServiceConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChronicCodePrefixes == nil {
		config.ChronicCodePrefixes = health.DefaultChronicCodePrefixes
	}
	return &Service{
		source:    source,
		store:     store,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// Run executes one cohort run. The reference time is fixed once, before the
// snapshot is read, and used for every open movement.
func (s *Service) Run(ctx context.Context) (*Outcome, error) {
	started := time.Now()
	opts := s.config.Options
	if opts.ReferenceTime.IsZero() {
		opts.ReferenceTime = started
	}

	engine, err := stay.NewEngine(opts, s.logger)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:            types.NewID(),
		Status:        RunRunning,
		SourceSystem:  s.source.SourceSystem(),
		ReferenceTime: opts.ReferenceTime,
		Parameters:    ParametersFrom(opts, s.config.Units),
		StartedAt:     started.UTC(),
	}
	logger := s.logger.With(zap.String("run_id", run.ID.String()))

	if s.store != nil {
		if err := s.store.CreateRun(ctx, &run); err != nil {
			return nil, err
		}
	}

	out, err := s.execute(ctx, engine, &run, logger)
	if err != nil {
		s.fail(ctx, &run, err, logger)
		return nil, err
	}

	finished := time.Now().UTC()
	run.Status = RunCompleted
	run.FinishedAt = &finished
	run.Report = &out.Report
	run.Enrichment = &out.Stats
	out.Run = run

	s.publish(ctx, events.TypeRunCompleted, run, logger)
	metrics.RecordStage("total", time.Since(started))

	logger.Info("cohort run complete",
		zap.Int("records", len(out.Records)),
		zap.Float64("exclusion_rate_pct", out.Report.ExclusionRate()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (s *Service) execute(ctx context.Context, engine *stay.Engine, run *Run, logger *zap.Logger) (*Outcome, error) {
	opts := engine.Options()
	window := health.WindowFor(opts, s.config.Units, opts.ReferenceTime)

	snap, err := health.LoadSnapshot(ctx, s.source, window, s.config.ChronicCodePrefixes, logger)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	result, err := engine.Run(ctx, snap.EngineInput())
	if err != nil {
		return nil, err
	}

	stage := time.Now()
	records, stats := NewEnrichmentService(FactsFrom(snap), logger).Enrich(result.Stays)
	metrics.RecordStage("enrichment", time.Since(stage))

	if s.store != nil {
		stage = time.Now()
		if _, err := s.store.SaveRecords(ctx, run.ID, records); err != nil {
			return nil, err
		}
		if err := s.store.FinishRun(ctx, run.ID, &result.Report, &stats); err != nil {
			return nil, err
		}
		metrics.RecordStage("store", time.Since(stage))
	}

	return &Outcome{
		Stays:   result.Stays,
		Records: records,
		Report:  result.Report,
		Stats:   stats,
	}, nil
}

func (s *Service) fail(ctx context.Context, run *Run, cause error, logger *zap.Logger) {
	logger.Error("cohort run failed", zap.Error(cause))

	msg := cause.Error()
	run.Status = RunFailed
	run.Error = &msg

	if s.store != nil {
		// The caller's context may already be cancelled.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.store.FailRun(storeCtx, run.ID, cause); err != nil {
			logger.Warn("failed to record run failure", zap.Error(err))
		}
	}
	s.publish(ctx, events.TypeRunFailed, *run, logger)
}

func (s *Service) publish(ctx context.Context, eventType string, run Run, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	event := events.NewEvent(eventType, "staycohort", run).WithCorrelation(run.ID.String())
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		logger.Warn("failed to publish run event", zap.String("type", eventType), zap.Error(err))
	}
}
