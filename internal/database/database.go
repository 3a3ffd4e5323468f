package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = time.Minute

	busyTimeoutMillis = "5000"
)

// Open connects to the store described by dbType and dsn and wraps it in a
// bun.DB with the matching dialect.
func Open(ctx context.Context, dbType, dsn string, log *logrus.Logger) (*bun.DB, error) {
	driverName, err := driverFor(dbType)
	if err != nil {
		return nil, err
	}

	if dbType == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := defaultMaxOpenConns, defaultMaxIdleConns
	// SQLite takes one writer at a time and every connection to an in-memory
	// database sees its own empty database, so the pool holds exactly one.
	if dbType == "sqlite" {
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := bun.NewDB(sqlDB, dialectFor(dbType))
	if log != nil {
		db.AddQueryHook(&QueryHook{log: log})
	}

	if log != nil {
		log.Debugf("Opened %s database (max open conns %d)", dbType, maxOpen)
	}
	return db, nil
}

func driverFor(dbType string) (string, error) {
	switch dbType {
	case "sqlite":
		return "sqlite", nil
	case "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database type: %q", dbType)
	}
}

func dialectFor(dbType string) schema.Dialect {
	switch dbType {
	case "postgres":
		return pgdialect.New()
	case "mysql":
		return mysqldialect.New()
	default:
		return sqlitedialect.New()
	}
}

// sqliteDSN makes a file database wait for locks held by other processes
// instead of failing with SQLITE_BUSY.
func sqliteDSN(dsn string) string {
	if isMemoryDSN(dsn) || strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(" + busyTimeoutMillis + ")"
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// QueryHook logs every statement bun executes at debug level
type QueryHook struct {
	log *logrus.Logger
}

var _ bun.QueryHook = (*QueryHook)(nil)

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if !h.log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	entry := h.log.WithFields(logrus.Fields{
		"operation": event.Operation(),
		"duration":  time.Since(event.StartTime).String(),
	})
	if event.Err != nil && event.Err != sql.ErrNoRows {
		entry = entry.WithError(event.Err)
	}
	entry.Debug(event.Query)
}
