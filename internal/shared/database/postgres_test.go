package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanex/staycohort/internal/shared/config"
)

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "staycohort", Password: "secret",
		Database: "staycohort", SSLMode: "disable",
	}
}

func TestPoolConfigAppliesSettings(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.MaxConns = 8
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 15 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pc, err := PoolConfig(cfg)
	require.NoError(t, err)

	assert.EqualValues(t, 8, pc.MaxConns)
	assert.EqualValues(t, 2, pc.MinConns)
	assert.Equal(t, 15*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, 5*time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, "staycohort", pc.ConnConfig.Database)
	assert.Equal(t, applicationName, pc.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfigClampsMinConns(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.MaxConns = 3
	cfg.MinConns = 9

	pc, err := PoolConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 3, pc.MinConns)
}

func TestPoolConfigKeepsDriverDefaults(t *testing.T) {
	pc, err := PoolConfig(testDatabaseConfig())
	require.NoError(t, err)

	assert.Positive(t, pc.MaxConns)
	assert.Zero(t, pc.MinConns)
	assert.Equal(t, time.Minute, pc.HealthCheckPeriod)
}
