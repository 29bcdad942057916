package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/adapters/health/warehouse"
	"github.com/datanex/staycohort/internal/cohort"
	"github.com/datanex/staycohort/internal/export"
	"github.com/datanex/staycohort/internal/shared/config"
	"github.com/datanex/staycohort/internal/shared/database"
	"github.com/datanex/staycohort/internal/shared/events"
)

type runFlags struct {
	snapshot  string
	minYear   int
	maxYear   int
	units     []string
	format    string
	outputDir string
	noExport  bool
	noStore   bool
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cohort pipeline once and export the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, cmd.OutOrStdout(), f)
		},
	}
	addSourceFlags(cmd, &f)
	cmd.Flags().StringVar(&f.format, "format", "", "export format: csv, parquet or xlsx")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "export directory")
	cmd.Flags().BoolVar(&f.noExport, "no-export", false, "skip the file export")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "do not record the run in the results database")
	return cmd
}

func addSourceFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.snapshot, "snapshot", "", "read a JSON snapshot file instead of the warehouse")
	cmd.Flags().IntVar(&f.minYear, "min-year", 0, "first admission year")
	cmd.Flags().IntVar(&f.maxYear, "max-year", 0, "last admission year")
	cmd.Flags().StringSliceVar(&f.units, "units", nil, "assigned units to keep")
}

// apply overrides the loaded configuration with explicit flags.
func (f runFlags) apply(cfg *config.Config) {
	if f.minYear != 0 {
		cfg.Engine.MinYear = f.minYear
	}
	if f.maxYear != 0 {
		cfg.Engine.MaxYear = f.maxYear
	}
	if len(f.units) > 0 {
		cfg.Engine.AssignedUnits = f.units
	}
	if f.format != "" {
		cfg.Export.Format = f.format
	}
	if f.outputDir != "" {
		cfg.Export.OutputDir = f.outputDir
	}
	if f.noStore {
		cfg.Database.Enabled = false
	}
}

func openSource(ctx context.Context, cfg *config.Config, snapshot string) (health.Source, error) {
	if snapshot != "" {
		snap, err := health.ReadSnapshotFile(snapshot)
		if err != nil {
			return nil, err
		}
		return health.NewMemorySource(snap), nil
	}
	adapter, err := warehouse.Open(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// newService wires the pipeline. The returned cleanup closes every
// connection it opened and must be called even on error.
func newService(ctx context.Context, cfg *config.Config, f runFlags, log *zap.Logger) (*cohort.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts, err := cfg.Engine.Options(time.Now())
	if err != nil {
		return nil, cleanup, err
	}

	source, err := openSource(ctx, cfg, f.snapshot)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to open source: %w", err)
	}
	closers = append(closers, func() { source.Close() })

	var store cohort.RunStore
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, db.Close)
		if err := database.Migrate(ctx, db.Pool, log); err != nil {
			return nil, cleanup, err
		}
		store = cohort.NewRepository(db.Pool)
	}

	var publisher events.Publisher
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(cfg.KurrentDB)
		if err != nil {
			log.Warn("KurrentDB not available, run events will not be published", zap.Error(err))
		} else {
			closers = append(closers, bus.Close)
			publisher = bus
		}
	}

	svc := cohort.NewService(source, store, publisher, cohort.ServiceConfig{
		Options:             opts,
		Units:               cfg.Engine.Units,
		ChronicCodePrefixes: cfg.Engine.ChronicCodePrefixes,
	}, log)
	return svc, cleanup, nil
}

func runPipeline(ctx context.Context, out io.Writer, f runFlags) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	f.apply(cfg)

	svc, cleanup, err := newService(ctx, cfg, f, log)
	defer cleanup()
	if err != nil {
		return err
	}

	outcome, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	if !f.noExport {
		path := export.FileName(cfg.Export.OutputDir, cfg.Export.Format,
			cfg.Engine.MinYear, cfg.Engine.MaxYear, outcome.Run.StartedAt)
		if err := writeExport(cfg, path, outcome.Records); err != nil {
			return err
		}
		log.Info("cohort exported", zap.String("path", path), zap.Int("records", len(outcome.Records)))
	}

	printOutcome(out, outcome)
	return nil
}

func writeExport(cfg *config.Config, path string, records []cohort.Record) error {
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	w, err := export.New(cfg.Export.Format, path, cfg.Engine.NationalCode)
	if err != nil {
		return err
	}
	if err := w.Write(records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func printOutcome(out io.Writer, o *cohort.Outcome) {
	r := o.Report
	fmt.Fprintf(out, "Run %s\n", o.Run.ID)
	fmt.Fprintf(out, "Movements: %d  Stays: %d  Candidates: %d  Eligible: %d\n",
		r.Movements, r.StaysSegmented, r.Candidates, r.Eligible)
	fmt.Fprintf(out, "Excluded without prescription: %d (%.1f%%)\n",
		r.ExcludedWithoutCorroboration(), r.ExclusionRate())
	if r.OrderingAnomalies > 0 || r.SkippedGroups > 0 {
		fmt.Fprintf(out, "Ordering anomalies: %d  Skipped groups: %d\n", r.OrderingAnomalies, r.SkippedGroups)
	}

	if len(r.Filtered) > 0 {
		reasons := make([]string, 0, len(r.Filtered))
		for reason := range r.Filtered {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		parts := make([]string, len(reasons))
		for i, reason := range reasons {
			parts[i] = fmt.Sprintf("%s=%d", reason, r.Filtered[reason])
		}
		fmt.Fprintf(out, "Filtered: %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tUNIT\tADMISSIONS\tPATIENTS\tMEDIAN DAYS\tSTILL ADMITTED\tTRANSFERS\tDEATHS")
	for _, u := range cohort.UnitSummary(o.Records) {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.1f\t%d\t%d\t%d\n",
			u.Year, u.Unit, u.Admissions, u.UniquePatients, u.MedianDays,
			u.StillAdmitted, u.Transfers, u.DeathsInStay)
	}
	tw.Flush()
}
