package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/datanex/staycohort/internal/cohort"
	"github.com/datanex/staycohort/internal/shared/database"
	"github.com/datanex/staycohort/internal/shared/types"
	"github.com/datanex/staycohort/internal/stay"
)

func sensitivityCmd() *cobra.Command {
	var (
		f          runFlags
		runID      string
		thresholds []int
		maxDays    float64
	)
	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Sweep minimum-duration thresholds over a cohort",
		Long: "Sweep minimum-duration thresholds over a cohort. With --run the stays " +
			"of a stored run are used; otherwise the pipeline runs without storing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stays, err := loadStays(ctx, f, runID)
			if err != nil {
				return err
			}
			printSensitivity(cmd.OutOrStdout(), cohort.ThresholdSensitivity(stays, thresholds, maxDays))
			return nil
		},
	}
	addSourceFlags(cmd, &f)
	cmd.Flags().StringVar(&runID, "run", "", "stored run to analyse")
	cmd.Flags().IntSliceVar(&thresholds, "thresholds", cohort.DefaultThresholdsHours, "minimum stay hours")
	cmd.Flags().Float64Var(&maxDays, "max-days", 0, "drop stays longer than this many days; 0 keeps all")
	return cmd
}

func loadStays(ctx context.Context, f runFlags, runID string) ([]stay.AssignedStay, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, err
	}
	defer log.Sync()
	f.apply(cfg)

	if runID != "" {
		id, err := types.ParseID(runID)
		if err != nil {
			return nil, err
		}
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		repo := cohort.NewRepository(db.Pool)
		if _, err := repo.GetRun(ctx, id); err != nil {
			return nil, err
		}
		records, err := repo.ListRecords(ctx, id, cohort.RecordFilter{})
		if err != nil {
			return nil, err
		}
		stays := make([]stay.AssignedStay, len(records))
		for i := range records {
			stays[i] = records[i].AssignedStay
		}
		return stays, nil
	}

	cfg.Database.Enabled = false
	cfg.KurrentDB.Enabled = false
	svc, cleanup, err := newService(ctx, cfg, f, log)
	defer cleanup()
	if err != nil {
		return nil, err
	}
	outcome, err := svc.Run(ctx)
	if err != nil {
		return nil, err
	}
	return outcome.Stays, nil
}

func printSensitivity(out io.Writer, rows []cohort.ThresholdRow) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MIN HOURS\tADMISSIONS\tPATIENTS\tEPISODES\tMEAN DAYS\tSD\tMEDIAN [IQR]\tDIFF\tCHANGE %")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t%s [%s-%s]\t%s\t%s\n",
			r.ThresholdHours, r.Admissions, r.UniquePatients, r.UniqueEpisodes,
			optFloat(r.MeanDays), optFloat(r.SDDays),
			optFloat(r.MedianDays), optFloat(r.Q1Days), optFloat(r.Q3Days),
			optInt(r.AdmissionsDiff), optFloat(r.PctChange))
	}
	tw.Flush()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+d", *v)
}
