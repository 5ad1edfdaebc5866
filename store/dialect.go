package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

type Dialect interface {
	Now() string
	// TimeArg converts a Go time into the form the driver compares against
	// stored timestamps.
	TimeArg(t time.Time) any
}

type sqliteDialect struct{}

func (sqliteDialect) Now() string             { return "datetime('now','localtime')" }
func (sqliteDialect) TimeArg(t time.Time) any { return t.Local().Format(sqliteTimeLayout) }

type postgresDialect struct{}

func (postgresDialect) Now() string             { return "NOW()" }
func (postgresDialect) TimeArg(t time.Time) any { return t }

// parseTime converts a scanned timestamp value to time.Time.
// Handles both SQLite (returns string) and Postgres (returns time.Time).
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		if t == "" {
			return time.Time{}
		}
		for _, layout := range []string{
			sqliteTimeLayout,
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05-07:00",
			"2006-01-02 15:04:05.999999-07:00",
		} {
			if parsed, err := time.ParseInLocation(layout, t, time.Local); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

// parseTimePtr is like parseTime but returns nil for zero/missing timestamps.
func parseTimePtr(v any) *time.Time {
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
