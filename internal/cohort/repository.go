package cohort

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/shared/metrics"
	"github.com/datanex/staycohort/internal/shared/types"
	"github.com/datanex/staycohort/internal/stay"
)

// Repository stores runs and their cohort records in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new cohort repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var recordColumns = []string{
	"run_id", "patient_id", "episode_id", "stay_id",
	"assigned_unit", "admission", "discharge", "effective_discharge",
	"still_admitted", "units_visited", "had_transfer", "num_movements",
	"unit_minutes", "hours_stay", "days_stay", "minutes_stay",
	"year_admission", "age_at_admission", "sex",
	"nationality_code", "nationality", "health_area", "postcode", "exitus_date",
	"has_chronic_condition", "exitus_during_stay", "mortality_30d", "mortality_90d",
	"next_admission", "readmission_24h", "readmission_72h",
}

// --- Run Operations ---

// CreateRun inserts a run in the running state.
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	defer observe("create_run", time.Now())

	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return errors.Wrap(err, "failed to encode run parameters")
	}

	query := `
		INSERT INTO cohort_runs (id, status, source_system, reference_time, options, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.SourceSystem, run.ReferenceTime, params, run.StartedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}
	return nil
}

// SaveRecords bulk-loads records for a run with COPY.
func (r *Repository) SaveRecords(ctx context.Context, runID types.ID, records []Record) (int64, error) {
	defer observe("save_records", time.Now())

	// COPY uses the binary protocol, which needs the uuid in its byte form.
	id, err := uuid.Parse(runID.String())
	if err != nil {
		return 0, errors.BadRequest("invalid run id")
	}

	rows := make([][]interface{}, 0, len(records))
	for i := range records {
		rec := &records[i]
		rows = append(rows, []interface{}{
			id, rec.PatientID, rec.EpisodeID, rec.StayID,
			rec.AssignedUnit, rec.Admission, rec.Discharge, rec.EffectiveDischarge,
			rec.StillAdmitted, rec.UnitsVisited, rec.HadTransfer, rec.NumMovements,
			rec.UnitMinutes, rec.HoursStay, rec.DaysStay, rec.MinutesStay,
			rec.YearAdmission, rec.AgeAtAdmission, string(rec.Sex),
			rec.NationalityCode, rec.Nationality, rec.HealthArea, rec.Postcode, rec.ExitusDate,
			rec.HasChronicCondition, rec.ExitusDuringStay, rec.Mortality30d, rec.Mortality90d,
			rec.NextAdmission, rec.Readmission24h, rec.Readmission72h,
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"cohort_records"}, recordColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, errors.Wrap(err, "failed to copy cohort records")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to commit cohort records")
	}
	return copied, nil
}

// FinishRun marks a run completed with its report.
func (r *Repository) FinishRun(ctx context.Context, runID types.ID, report *stay.Report, stats *EnrichmentStats) error {
	defer observe("finish_run", time.Now())

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to encode run report")
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "failed to encode enrichment stats")
	}

	query := `
		UPDATE cohort_runs SET
			status = $2, report = $3, enrichment = $4, finished_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, runID, string(RunCompleted), reportJSON, statsJSON)
	if err != nil {
		return errors.Wrap(err, "failed to finish run")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("run", runID.String())
	}
	return nil
}

// FailRun marks a run failed.
func (r *Repository) FailRun(ctx context.Context, runID types.ID, cause error) error {
	defer observe("fail_run", time.Now())

	query := `UPDATE cohort_runs SET status = $2, error = $3, finished_at = NOW() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, runID, string(RunFailed), cause.Error())
	if err != nil {
		return errors.Wrap(err, "failed to mark run failed")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("run", runID.String())
	}
	return nil
}

const runSelect = `
	SELECT id::text, status, source_system, reference_time, options, report, enrichment,
		error, started_at, finished_at
	FROM cohort_runs`

// GetRun retrieves a run by ID
func (r *Repository) GetRun(ctx context.Context, id types.ID) (*Run, error) {
	defer observe("get_run", time.Now())

	run, err := scanRun(r.pool.QueryRow(ctx, runSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("run", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	defer observe("list_runs", time.Now())

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, runSelect+` ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run        Run
		status     string
		params     []byte
		report     []byte
		enrichment []byte
	)
	err := row.Scan(
		&run.ID, &status, &run.SourceSystem, &run.ReferenceTime, &params, &report, &enrichment,
		&run.Error, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)

	if err := json.Unmarshal(params, &run.Parameters); err != nil {
		return nil, fmt.Errorf("decode run parameters: %w", err)
	}
	if len(report) > 0 {
		run.Report = &stay.Report{}
		if err := json.Unmarshal(report, run.Report); err != nil {
			return nil, fmt.Errorf("decode run report: %w", err)
		}
	}
	if len(enrichment) > 0 {
		run.Enrichment = &EnrichmentStats{}
		if err := json.Unmarshal(enrichment, run.Enrichment); err != nil {
			return nil, fmt.Errorf("decode enrichment stats: %w", err)
		}
	}
	return &run, nil
}

// --- Record Operations ---

// ListRecords lists a run's records ordered by admission, patient, episode
// and stay id.
func (r *Repository) ListRecords(ctx context.Context, runID types.ID, filter RecordFilter) ([]Record, error) {
	defer observe("list_records", time.Now())

	conditions := []string{"run_id = $1"}
	args := []interface{}{runID}
	argNum := 2

	if filter.Unit != "" {
		conditions = append(conditions, fmt.Sprintf("assigned_unit = $%d", argNum))
		args = append(args, filter.Unit)
		argNum++
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("year_admission = $%d", argNum))
		args = append(args, filter.Year)
		argNum++
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM cohort_records
		WHERE %s
		ORDER BY admission, patient_id, episode_id, stay_id`,
		strings.Join(recordColumns[1:], ", "), strings.Join(conditions, " AND "))

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			sex string
		)
		err := rows.Scan(
			&rec.PatientID, &rec.EpisodeID, &rec.StayID,
			&rec.AssignedUnit, &rec.Admission, &rec.Discharge, &rec.EffectiveDischarge,
			&rec.StillAdmitted, &rec.UnitsVisited, &rec.HadTransfer, &rec.NumMovements,
			&rec.UnitMinutes, &rec.HoursStay, &rec.DaysStay, &rec.MinutesStay,
			&rec.YearAdmission, &rec.AgeAtAdmission, &sex,
			&rec.NationalityCode, &rec.Nationality, &rec.HealthArea, &rec.Postcode, &rec.ExitusDate,
			&rec.HasChronicCondition, &rec.ExitusDuringStay, &rec.Mortality30d, &rec.Mortality90d,
			&rec.NextAdmission, &rec.Readmission24h, &rec.Readmission72h,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		rec.Sex = Sex(sex)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func observe(op string, start time.Time) {
	metrics.RecordDBQuery(op, time.Since(start))
}
