package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/stay"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlserver", cfg.Source.Driver)
	assert.Equal(t, 1433, cfg.Source.Port)
	assert.Equal(t, "g_movements", cfg.Source.Tables.Movements)
	assert.Equal(t, 5*time.Minute, cfg.Engine.Tolerance)
	assert.Equal(t, "movements", cfg.Engine.BedScope)
	assert.Equal(t, "start_within", cfg.Engine.Corroboration)
	assert.NotEmpty(t, cfg.Engine.ChronicCodePrefixes)
	assert.EqualValues(t, 10, cfg.Database.MaxConns)
	assert.EqualValues(t, 1, cfg.Database.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxConnIdleTime)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staycohort.yaml")
	content := `
source:
  driver: postgres
  port: 5433
engine:
  tolerance: 0s
  corroboration: overlap
  min_year: 2021
  max_year: 2023
  assigned_units: [E073, I073]
export:
  format: parquet
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("STAYCOHORT_SOURCE_HOST", "warehouse.internal")
	t.Setenv("STAYCOHORT_ENGINE_MAX_YEAR", "2024")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Source.Driver)
	assert.Equal(t, 5433, cfg.Source.Port)
	assert.Equal(t, "warehouse.internal", cfg.Source.Host)
	assert.Equal(t, 2021, cfg.Engine.MinYear)
	assert.Equal(t, 2024, cfg.Engine.MaxYear, "environment overrides the file")
	assert.Equal(t, []string{"E073", "I073"}, cfg.Engine.AssignedUnits)
	assert.Equal(t, "parquet", cfg.Export.Format)

	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	opts, err := cfg.Engine.Options(ref)
	require.NoError(t, err)
	assert.Equal(t, stay.ToleranceExact, opts.Tolerance)
	assert.Equal(t, stay.CorroborationOverlap, opts.Corroboration)
	assert.Equal(t, ref, opts.ReferenceTime)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"unknown driver", func(c *Config) { c.Source.Driver = "oracle" }, "source.driver"},
		{"unknown export", func(c *Config) { c.Export.Format = "json" }, "export.format"},
		{"production without secret", func(c *Config) { c.Server.Env = "production" }, "auth.jwt_secret"},
		{"min conns above max", func(c *Config) { c.Database.MinConns = 20 }, "database.min_conns"},
		{"inverted years", func(c *Config) { c.Engine.MinYear, c.Engine.MaxYear = 2025, 2020 }, "engine.years"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, appErr.Details, tt.key)
		})
	}
}

func TestEngineOptionsRejectsMissingBedScope(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Engine.BedScope = ""

	_, err = cfg.Engine.Options(time.Now())
	assert.Error(t, err)
}
