package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/datanex/staycohort/internal/adapters/health"
	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/stay"
)

// EnvPrefix prefixes every environment override, e.g. STAYCOHORT_SOURCE_HOST.
const EnvPrefix = "STAYCOHORT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Source    health.Config   `mapstructure:"source"`
	KurrentDB KurrentDBConfig `mapstructure:"kurrentdb"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Export    ExportConfig    `mapstructure:"export"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	Env            string  `mapstructure:"env"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig points at the Postgres results store.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Enabled turns on run-completed event publishing
	Enabled bool `mapstructure:"enabled"`
	// Host is the KurrentDB server hostname
	Host string `mapstructure:"host"`
	// Port is the gRPC/HTTP port (default 2113)
	Port int `mapstructure:"port"`
	// Insecure disables TLS (for development)
	Insecure bool   `mapstructure:"insecure"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig carries the cohort run parameters.
type EngineConfig struct {
	Tolerance           time.Duration `mapstructure:"tolerance"`
	BedScope            string        `mapstructure:"bed_scope"`
	Corroboration       string        `mapstructure:"corroboration"`
	MinYear             int           `mapstructure:"min_year"`
	MaxYear             int           `mapstructure:"max_year"`
	Units               []string      `mapstructure:"units"`
	AssignedUnits       []string      `mapstructure:"assigned_units"`
	Workers             int           `mapstructure:"workers"`
	ChronicCodePrefixes []string      `mapstructure:"chronic_code_prefixes"`
	NationalCode        string        `mapstructure:"national_code"`
}

// Options converts the engine section to validated stay options.
// referenceTime is fixed by the caller for the whole run.
func (e EngineConfig) Options(referenceTime time.Time) (stay.Options, error) {
	opts := stay.Options{
		Tolerance:     e.Tolerance,
		BedScope:      stay.BedScope(e.BedScope),
		Corroboration: stay.Corroboration(e.Corroboration),
		MinYear:       e.MinYear,
		MaxYear:       e.MaxYear,
		AssignedUnits: e.AssignedUnits,
		ReferenceTime: referenceTime,
		Workers:       e.Workers,
	}
	if err := opts.Validate(); err != nil {
		return stay.Options{}, err
	}
	return opts, nil
}

type ExportConfig struct {
	Format    string `mapstructure:"format"`
	OutputDir string `mapstructure:"output_dir"`
}

// Load reads configuration from defaults, an optional file and the
// environment, in increasing precedence. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	year := time.Now().Year()
	src := health.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "staycohort")
	v.SetDefault("database.password", "staycohort")
	v.SetDefault("database.database", "staycohort")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("source.driver", src.Driver)
	v.SetDefault("source.host", "localhost")
	v.SetDefault("source.port", src.Port)
	v.SetDefault("source.database", "warehouse")
	v.SetDefault("source.user", "")
	v.SetDefault("source.password", "")
	v.SetDefault("source.ssl_mode", src.SSLMode)
	v.SetDefault("source.max_open_conns", src.MaxOpenConns)
	v.SetDefault("source.query_timeout", src.QueryTimeout)
	v.SetDefault("source.tables.movements", src.Tables.Movements)
	v.SetDefault("source.tables.prescriptions", src.Tables.Prescriptions)
	v.SetDefault("source.tables.demographics", src.Tables.Demographics)
	v.SetDefault("source.tables.exitus", src.Tables.Exitus)
	v.SetDefault("source.tables.diagnostics", src.Tables.Diagnostics)

	v.SetDefault("kurrentdb.enabled", false)
	v.SetDefault("kurrentdb.host", "localhost")
	v.SetDefault("kurrentdb.port", 2113)
	v.SetDefault("kurrentdb.insecure", true)
	v.SetDefault("kurrentdb.username", "")
	v.SetDefault("kurrentdb.password", "")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.tolerance", stay.ToleranceDefault)
	v.SetDefault("engine.bed_scope", string(stay.BedScopeMovements))
	v.SetDefault("engine.corroboration", string(stay.CorroborationStartWithin))
	v.SetDefault("engine.min_year", year)
	v.SetDefault("engine.max_year", year)
	v.SetDefault("engine.units", []string{})
	v.SetDefault("engine.assigned_units", []string{})
	v.SetDefault("engine.workers", runtime.NumCPU())
	v.SetDefault("engine.chronic_code_prefixes", health.DefaultChronicCodePrefixes)
	v.SetDefault("engine.national_code", "ES")

	v.SetDefault("export.format", "csv")
	v.SetDefault("export.output_dir", ".")
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks settings that cannot be deferred to first use.
func (c *Config) Validate() error {
	details := map[string]string{}

	switch c.Source.Driver {
	case "sqlserver", "postgres":
	default:
		details["source.driver"] = fmt.Sprintf("unsupported driver %q", c.Source.Driver)
	}
	switch c.Export.Format {
	case "csv", "parquet", "xlsx":
	default:
		details["export.format"] = fmt.Sprintf("unsupported format %q", c.Export.Format)
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		details["auth.jwt_secret"] = "required in production"
	}
	if c.Database.MinConns > c.Database.MaxConns {
		details["database.min_conns"] = "must not exceed max_conns"
	}
	if c.Engine.MinYear > c.Engine.MaxYear {
		details["engine.years"] = "min_year must not exceed max_year"
	}

	if len(details) > 0 {
		return errors.Validation("invalid configuration", details)
	}
	return nil
}
