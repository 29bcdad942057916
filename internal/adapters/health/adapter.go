package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/shared/metrics"
	"github.com/datanex/staycohort/internal/stay"
)

// Source defines the interface for clinical warehouse adapters.
// Implementations read the movement, prescription, demographic, death and
// diagnosis feeds; they hold no cohort policy.
type Source interface {
	FetchMovements(ctx context.Context, w Window) ([]stay.MovementEvent, error)
	FetchPrescriptions(ctx context.Context, w Window) ([]stay.PrescriptionEvent, error)
	FetchDemographics(ctx context.Context, w Window) (map[string]Demographics, error)
	FetchDeaths(ctx context.Context, w Window) (map[string]time.Time, error)
	FetchChronicPatients(ctx context.Context, w Window, codePrefixes []string) (map[string]bool, error)

	// Adapter metadata
	SourceSystem() string

	// Lifecycle
	Health(ctx context.Context) error
	Close() error
}

// Config holds common configuration for warehouse adapters
type Config struct {
	// Driver is "sqlserver" or "postgres".
	Driver string `json:"driver" mapstructure:"driver"`

	// Database connection
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Database string `json:"database" mapstructure:"database"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	SSLMode  string `json:"ssl_mode" mapstructure:"ssl_mode"`

	// Pool and query limits
	MaxOpenConns int           `json:"max_open_conns" mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `json:"query_timeout" mapstructure:"query_timeout"`

	Tables Tables `json:"tables" mapstructure:"tables"`
}

// Tables names the warehouse relations.
type Tables struct {
	Movements     string `json:"movements" mapstructure:"movements"`
	Prescriptions string `json:"prescriptions" mapstructure:"prescriptions"`
	Demographics  string `json:"demographics" mapstructure:"demographics"`
	Exitus        string `json:"exitus" mapstructure:"exitus"`
	Diagnostics   string `json:"diagnostics" mapstructure:"diagnostics"`
}

// DefaultConfig returns default adapter configuration
func DefaultConfig() Config {
	return Config{
		Driver:       "sqlserver",
		Port:         1433, // SQL Server default
		SSLMode:      "disable",
		MaxOpenConns: 10,
		QueryTimeout: 10 * time.Minute,
		Tables: Tables{
			Movements:     "g_movements",
			Prescriptions: "g_prescriptions",
			Demographics:  "g_demographics",
			Exitus:        "g_exitus",
			Diagnostics:   "g_diagnostics",
		},
	}
}

// LoadSnapshot fetches every feed once for the window.
func LoadSnapshot(ctx context.Context, src Source, w Window, chronicPrefixes []string, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap := &Snapshot{
		Window:       w,
		FetchedAt:    time.Now(),
		SourceSystem: src.SourceSystem(),
	}

	var err error
	if snap.Movements, err = timed(ctx, "movements", logger, func() ([]stay.MovementEvent, error) {
		return src.FetchMovements(ctx, w)
	}); err != nil {
		return nil, err
	}
	if snap.Prescriptions, err = timed(ctx, "prescriptions", logger, func() ([]stay.PrescriptionEvent, error) {
		return src.FetchPrescriptions(ctx, w)
	}); err != nil {
		return nil, err
	}

	demo, err := timedMap(ctx, "demographics", logger, func() (map[string]Demographics, error) {
		return src.FetchDemographics(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	snap.Demographics = demo

	deaths, err := timedMap(ctx, "exitus", logger, func() (map[string]time.Time, error) {
		return src.FetchDeaths(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	snap.Deaths = deaths

	chronic, err := timedMap(ctx, "diagnostics", logger, func() (map[string]bool, error) {
		return src.FetchChronicPatients(ctx, w, chronicPrefixes)
	})
	if err != nil {
		return nil, err
	}
	snap.Chronic = chronic

	return snap, nil
}

func timed[T any](ctx context.Context, feed string, logger *zap.Logger, fetch func() ([]T, error)) ([]T, error) {
	start := time.Now()
	rows, err := fetch()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", feed, err)
	}
	record(feed, len(rows), start, logger)
	return rows, ctx.Err()
}

func timedMap[V any](ctx context.Context, feed string, logger *zap.Logger, fetch func() (map[string]V, error)) (map[string]V, error) {
	start := time.Now()
	rows, err := fetch()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", feed, err)
	}
	record(feed, len(rows), start, logger)
	return rows, ctx.Err()
}

func record(feed string, rows int, start time.Time, logger *zap.Logger) {
	elapsed := time.Since(start)
	metrics.RecordSourceQuery(feed, rows, elapsed)
	logger.Info("fetched feed",
		zap.String("feed", feed),
		zap.Int("rows", rows),
		zap.Duration("elapsed", elapsed),
	)
}
