// Package postgres provides the relational store for covenantwatch.
// It opens PostgreSQL through the pgx stdlib driver (or SQLite for local runs
// and tests) behind gorm, and implements the domain repositories on top.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	pingTimeout      = 5 * time.Second
	slowPingLatency  = 100 * time.Millisecond
	defaultSQLiteDSN = "file:covenantwatch.db?_foreign_keys=on"
)

// DBConnection owns the gorm handle and the underlying *sql.DB pool.
type DBConnection struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens the configured database, applies pool settings and
// performs an initial ping.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidRequest("database config is nil")
	}
	log = log.WithComponent("DBConnection")

	gormCfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		log.Info(ctx, "Initializing PostgreSQL connection pool",
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Int("max_conns", cfg.MaxConns),
		)
		var pgxCfg *pgx.ConnConfig
		pgxCfg, err = pgx.ParseConfig(cfg.GetDSN())
		if err != nil {
			return nil, errors.ErrDatabaseOperation("parse dsn", err)
		}
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDB(*pgxCfg)}), gormCfg)
	case DriverSQLite, "":
		dsn := cfg.SQLitePath
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		log.Info(ctx, "Initializing SQLite database", logger.String("path", dsn))
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unsupported database driver: %s", cfg.Driver))
	}
	if err != nil {
		log.Error(ctx, "Failed to open database", err, logger.String("driver", cfg.Driver))
		return nil, errors.ErrDatabaseOperation("open", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrDatabaseOperation("pool", err)
	}
	configurePool(sqlDB, cfg)

	conn := &DBConnection{db: db, sqlDB: sqlDB, config: cfg, logger: log}
	if err := conn.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := AutoMigrate(ctx, db); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	log.Info(ctx, "Database connection initialized successfully",
		logger.String("driver", cfg.Driver),
		logger.Int("open_conns", sqlDB.Stats().OpenConnections),
	)
	return conn, nil
}

func configurePool(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.Driver != DriverPostgres {
		// A single connection keeps ":memory:" databases alive and serializes writers.
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Minute)
	}
	if cfg.MaxConnIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.MaxConnIdleTime) * time.Minute)
	}
}

// AutoMigrate creates or updates the covenantwatch tables.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&loanDBM{},
		&covenantDBM{},
		&esgClauseDBM{},
		&covenantCheckDBM{},
		&esgComplianceDBM{},
		&predictionSnapshotDBM{},
		&auditEventDBM{},
	)
	if err != nil {
		return errors.ErrDatabaseOperation("auto migrate", err)
	}
	return nil
}

// DB returns the gorm handle used by the repositories.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Ping verifies the database is reachable.
func (c *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	if err := c.sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrDatabaseOperation("ping", err)
	}
	if latency := time.Since(start); latency > slowPingLatency {
		c.logger.Warn(ctx, "High database latency detected", logger.Int64("latency_ms", latency.Milliseconds()))
	}
	return nil
}

// HealthCheck pings the database and reports pool statistics.
func (c *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	stats := c.sqlDB.Stats()
	info := map[string]interface{}{
		"status":           "healthy",
		"driver":           c.config.Driver,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
	}
	if stats.MaxOpenConnections > 1 && stats.InUse >= stats.MaxOpenConnections {
		c.logger.Warn(ctx, "Connection pool exhausted", logger.Int("in_use", stats.InUse))
		info["warning"] = "connection_pool_near_limit"
	}
	return info, nil
}

// Close releases the pool.
func (c *DBConnection) Close() error {
	c.logger.Info(context.Background(), "Closing database connection pool")
	return c.sqlDB.Close()
}
