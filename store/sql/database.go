package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-kick/migrations"
	"github.com/joeshaw/envdecode"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DatabaseConfig satisfies the go-persistence-bun client config.
type DatabaseConfig struct {
	Driver      string        `env:"KICK_DB_DRIVER,default=sqlite3"`
	DSN         string        `env:"KICK_DB_DSN,default=file:kick.db?cache=shared&_foreign_keys=on"`
	Debug       bool          `env:"KICK_DB_DEBUG,default=false"`
	PingTimeout time.Duration `env:"KICK_DB_PING_TIMEOUT,default=5s"`

	// Migrations are applied after the kick schema, using the same layout
	// as the embedded tree.
	Migrations []fs.FS
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return c.Driver
}

func (c DatabaseConfig) GetServer() string {
	return c.DSN
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	return "go-kick"
}

// DatabaseConfigFromEnv reads KICK_DB_* variables.
func DatabaseConfigFromEnv() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return DatabaseConfig{}, fmt.Errorf("sqlstore: decode database env: %w", err)
	}
	return cfg, nil
}

// Open connects with cfg.Driver, applies the kick migrations and
// cfg.Migrations for its dialect, and returns the persistence client.
func Open(ctx context.Context, cfg DatabaseConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}

	var (
		dialect          schema.Dialect
		migrationDialect string
	)
	switch driver {
	case DriverSQLite, "sqlite":
		driver = DriverSQLite
		dialect = sqlitedialect.New()
		migrationDialect = migrations.DialectSQLite
	case DriverPostgres, "pg", "postgresql":
		driver = DriverPostgres
		dialect = pgdialect.New()
		migrationDialect = migrations.DialectPostgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported database driver %q", cfg.Driver)
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, migrationDialect, func(_ context.Context, source migrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	}, cfg.Migrations...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}
