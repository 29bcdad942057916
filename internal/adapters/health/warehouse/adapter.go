package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	_ "github.com/lib/pq"                // PostgreSQL driver

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/stay"
)

// Adapter implements health.Source over a relational clinical warehouse.
type Adapter struct {
	db      *sql.DB
	config  health.Config
	dialect dialect
}

var _ health.Source = (*Adapter)(nil)

// dialect renders the parts of a query that differ between drivers.
type dialect struct {
	name        string
	placeholder func(n int) string
}

var (
	sqlServer = dialect{name: "sqlserver", placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) }}
	postgres  = dialect{name: "postgres", placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlserver", "mssql":
		return sqlServer, nil
	case "postgres", "postgresql":
		return postgres, nil
	default:
		return dialect{}, fmt.Errorf("unsupported warehouse driver %q", driver)
	}
}

// Open connects to the warehouse described by cfg.
func Open(ctx context.Context, cfg health.Config) (*Adapter, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.name, connString(d, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	// Configure connection pool
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	return &Adapter{db: db, config: cfg, dialect: d}, nil
}

// New wraps an existing connection. The driver in cfg selects the dialect.
func New(db *sql.DB, cfg health.Config) (*Adapter, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db, config: cfg, dialect: d}, nil
}

func connString(d dialect, cfg health.Config) string {
	if d.name == "postgres" {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)
	if cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}
	return connStr
}

// SourceSystem returns the source system name
func (a *Adapter) SourceSystem() string {
	return a.dialect.name + "://" + a.config.Host + "/" + a.config.Database
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// args accumulates positional query arguments and their placeholders.
type args struct {
	d      dialect
	values []any
}

func (q *args) add(v any) string {
	q.values = append(q.values, v)
	return q.d.placeholder(len(q.values))
}

func (q *args) list(vs []string) string {
	ph := make([]string, len(vs))
	for i, v := range vs {
		ph[i] = q.add(v)
	}
	return strings.Join(ph, ", ")
}

// windowPredicate restricts movement rows (aliased m) to the broad window.
func (a *Adapter) windowPredicate(q *args, w health.Window) string {
	var b strings.Builder
	fmt.Fprintf(&b, "m.start_date <= %s AND COALESCE(m.end_date, %s) >= %s",
		q.add(w.To), q.add(w.ReferenceTime), q.add(w.From))
	if len(w.Units) > 0 {
		fmt.Fprintf(&b, " AND m.ou_loc_ref IN (%s)", q.list(w.Units))
	}
	return b.String()
}

func (a *Adapter) query(ctx context.Context, query string, values []any) (*sql.Rows, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if a.config.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.config.QueryTimeout)
	}
	rows, err := a.db.QueryContext(ctx, query, values...)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return rows, cancel, nil
}

// FetchMovements retrieves every movement overlapping the window.
func (a *Adapter) FetchMovements(ctx context.Context, w health.Window) ([]stay.MovementEvent, error) {
	q := &args{d: a.dialect}
	query := fmt.Sprintf(`
		SELECT
			m.patient_ref,
			m.episode_ref,
			m.ou_loc_ref,
			m.start_date,
			m.end_date,
			CASE WHEN m.place_ref IS NOT NULL THEN 1 ELSE 0 END AS bed_assigned
		FROM %s m
		WHERE %s
		ORDER BY m.patient_ref, m.episode_ref, m.start_date
	`, a.config.Tables.Movements, a.windowPredicate(q, w))

	rows, cancel, err := a.query(ctx, query, q.values)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movements: %w", err)
	}
	defer cancel()
	defer rows.Close()

	var movements []stay.MovementEvent
	for rows.Next() {
		var m stay.MovementEvent
		var end sql.NullTime
		var bed int64

		if err := rows.Scan(&m.PatientID, &m.EpisodeID, &m.UnitID, &m.Start, &end, &bed); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if end.Valid {
			m.End = &end.Time
		}
		m.BedAssigned = bed == 1
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// FetchPrescriptions retrieves prescriptions of every episode in the window.
func (a *Adapter) FetchPrescriptions(ctx context.Context, w health.Window) ([]stay.PrescriptionEvent, error) {
	q := &args{d: a.dialect}
	query := fmt.Sprintf(`
		SELECT
			p.patient_ref,
			p.episode_ref,
			p.start_drug_date,
			p.end_drug_date
		FROM %s p
		WHERE p.start_drug_date IS NOT NULL
		  AND p.episode_ref IN (
			SELECT DISTINCT m.episode_ref FROM %s m WHERE %s
		  )
	`, a.config.Tables.Prescriptions, a.config.Tables.Movements, a.windowPredicate(q, w))

	rows, cancel, err := a.query(ctx, query, q.values)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prescriptions: %w", err)
	}
	defer cancel()
	defer rows.Close()

	var prescriptions []stay.PrescriptionEvent
	for rows.Next() {
		var p stay.PrescriptionEvent
		var end sql.NullTime
		if err := rows.Scan(&p.PatientID, &p.EpisodeID, &p.StartDrug, &end); err != nil {
			return nil, fmt.Errorf("failed to scan prescription: %w", err)
		}
		if end.Valid {
			p.EndDrug = &end.Time
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, rows.Err()
}

// patientsInWindow is a subquery of patients with a movement in the window.
func (a *Adapter) patientsInWindow(q *args, w health.Window) string {
	return fmt.Sprintf("SELECT DISTINCT m.patient_ref FROM %s m WHERE %s",
		a.config.Tables.Movements, a.windowPredicate(q, w))
}

// FetchDemographics retrieves demographic rows of patients in the window.
func (a *Adapter) FetchDemographics(ctx context.Context, w health.Window) (map[string]health.Demographics, error) {
	q := &args{d: a.dialect}
	query := fmt.Sprintf(`
		SELECT
			d.patient_ref,
			d.birth_date,
			d.sex,
			d.natio_ref,
			d.natio_descr,
			d.health_area,
			d.postcode
		FROM %s d
		WHERE d.patient_ref IN (%s)
	`, a.config.Tables.Demographics, a.patientsInWindow(q, w))

	rows, cancel, err := a.query(ctx, query, q.values)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch demographics: %w", err)
	}
	defer cancel()
	defer rows.Close()

	out := make(map[string]health.Demographics)
	for rows.Next() {
		var d health.Demographics
		var birth sql.NullTime
		var sex sql.NullInt64
		var natioRef, natioDescr, healthArea, postcode sql.NullString

		if err := rows.Scan(&d.PatientID, &birth, &sex, &natioRef, &natioDescr, &healthArea, &postcode); err != nil {
			return nil, fmt.Errorf("failed to scan demographics: %w", err)
		}

		// Map nullable fields
		if birth.Valid {
			d.BirthDate = &birth.Time
		}
		if sex.Valid {
			code := int(sex.Int64)
			d.SexCode = &code
		}
		d.NationalityCode = nullString(natioRef)
		d.Nationality = nullString(natioDescr)
		d.HealthArea = nullString(healthArea)
		d.Postcode = nullString(postcode)

		out[d.PatientID] = d
	}
	return out, rows.Err()
}

// FetchDeaths retrieves the earliest recorded death date per patient.
func (a *Adapter) FetchDeaths(ctx context.Context, w health.Window) (map[string]time.Time, error) {
	q := &args{d: a.dialect}
	query := fmt.Sprintf(`
		SELECT
			e.patient_ref,
			MIN(e.exitus_date)
		FROM %s e
		WHERE e.exitus_date IS NOT NULL
		  AND e.patient_ref IN (%s)
		GROUP BY e.patient_ref
	`, a.config.Tables.Exitus, a.patientsInWindow(q, w))

	rows, cancel, err := a.query(ctx, query, q.values)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deaths: %w", err)
	}
	defer cancel()
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var patientID string
		var exitus time.Time
		if err := rows.Scan(&patientID, &exitus); err != nil {
			return nil, fmt.Errorf("failed to scan exitus: %w", err)
		}
		out[patientID] = exitus
	}
	return out, rows.Err()
}

// FetchChronicPatients returns patients with any diagnosis code starting
// with one of the prefixes.
func (a *Adapter) FetchChronicPatients(ctx context.Context, w health.Window, codePrefixes []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(codePrefixes) == 0 {
		return out, nil
	}

	q := &args{d: a.dialect}
	likes := make([]string, len(codePrefixes))
	for i, prefix := range codePrefixes {
		likes[i] = "x.code LIKE " + q.add(prefix+"%")
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT x.patient_ref
		FROM %s x
		WHERE (%s)
		  AND x.patient_ref IN (%s)
	`, a.config.Tables.Diagnostics, strings.Join(likes, " OR "), a.patientsInWindow(q, w))

	rows, cancel, err := a.query(ctx, query, q.values)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chronic diagnoses: %w", err)
	}
	defer cancel()
	defer rows.Close()

	for rows.Next() {
		var patientID string
		if err := rows.Scan(&patientID); err != nil {
			return nil, fmt.Errorf("failed to scan diagnosis: %w", err)
		}
		out[patientID] = true
	}
	return out, rows.Err()
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := strings.TrimSpace(s.String)
	return &v
}
