package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/telemetry"
)

// Options tune the connection pool and GORM logging.
type Options struct {
	Development  bool
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// Connect creates the database if it is missing and opens a traced pool.
// Queries run through GORM with constraint errors translated to gorm.Err*.
func Connect(ctx context.Context, dsn string, opts Options, log *slog.Logger) (*gorm.DB, error) {
	if err := ensureDatabase(ctx, dsn); err != nil {
		// Managed databases often refuse CREATE DATABASE; the open below
		// reports the real problem if the database is truly absent.
		log.Warn("ensure database failed", "error", err)
	}

	sqlDB, err := telemetry.OpenDB("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormLogger(log, opts.Development),
		TranslateError: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return conn, nil
}

// gormLogger routes GORM's query log through slog. Misses are expected
// lookups and stay quiet; every query is logged in development.
func gormLogger(log *slog.Logger, development bool) logger.Interface {
	level := logger.Warn
	if development {
		level = logger.Info
	}
	return logger.NewSlogLogger(log.With("component", "gorm"), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      !development,
		LogLevel:                  level,
	})
}

// Migrate brings the schema up to date with the models.
func Migrate(ctx context.Context, conn *gorm.DB) error {
	conn = conn.WithContext(ctx)
	for _, model := range models.All() {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}

func ensureDatabase(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" || dbName == "postgres" {
		return nil
	}

	parsed.Path = "/postgres"
	sqlDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var exists bool
	if err := sqlDB.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = sqlDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	return err
}
