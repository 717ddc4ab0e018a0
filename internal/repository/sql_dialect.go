package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/driftflow/driftflow/internal/config"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
)

// placeholder returns the correct bind variable for the given index based on DB type.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func placeholder(i int) string {
	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	if db == config.DATABASE_TYPE_POSTGRES {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func nowFunc(clock core.Clock) string {
	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	switch db {
	case config.DATABASE_TYPE_POSTGRES, config.DATABASE_TYPE_MYSQL:
		return fmt.Sprintf("'%s'", clock.Now().UTC().Format("2006-01-02 15:04:05.000000"))
	case config.DATABASE_TYPE_SQLLITE:
		return fmt.Sprintf("'%s'", clock.Now().UTC().Format("2006-01-02 15:04:05.000"))
	default:
		return fmt.Sprintf("'%s'", clock.Now().UTC().Format("2006-01-02 15:04:05.000000"))
	}
}

// dateBeforeNow returns a DB-specific SQL predicate that checks if the provided
// datetime column is strictly before the current time. This avoids string
// comparisons in SQLite by coercing via julianday().
func dateBeforeNow(column string, clock core.Clock) string {
	now := clock.Now().UTC().Format("2006-01-02 15:04:05.000")

	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	switch db {
	case config.DATABASE_TYPE_POSTGRES, config.DATABASE_TYPE_MYSQL:
		return fmt.Sprintf("%s < '%s'", column, now)
	case config.DATABASE_TYPE_SQLLITE:
		// Use julianday for SQLite so TEXT/REAL/INTEGER timestamps are comparable
		return fmt.Sprintf("julianday(%s) < julianday('%s')", column, now)
	default:
		return fmt.Sprintf("julianday(%s) < julianday('%s')", column, now)
	}
}

// formatDateInDatabase renders a timestamp as a bind argument in the layout
// the active database stores.
func formatDateInDatabase(t time.Time) string {
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_SQLLITE {
		return t.UTC().Format("2006-01-02 15:04:05.000")
	}
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_MYSQL {
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	// PostgreSQL supports RFC3339
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDateInDatabaseNull(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}

	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_SQLLITE {
		return t.Time.UTC().Format("2006-01-02 15:04:05.000")
	}

	// MySQL also needs string format (without T and Z)
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_MYSQL {
		return t.Time.UTC().Format("2006-01-02 15:04:05.000000")
	}

	return t.Time
}

func supportsReturning() bool {
	return config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_POSTGRES
}
