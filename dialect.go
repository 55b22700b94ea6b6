package sqlcycle

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Driver identifies the database family a target speaks.
// This type is shared across all packages
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// NormalizeDriver maps user supplied driver names to a Driver.
// An empty name selects PostgreSQL.
func NormalizeDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}

// SQLDriverName returns the database/sql driver registration name.
func (d Driver) SQLDriverName() string {
	switch d {
	case DriverMySQL:
		return "mysql"
	case DriverSQLite:
		return "sqlite3"
	default:
		return "pgx"
	}
}

// Target is a database endpoint. Targets are read-only for the engine.
type Target struct {
	Driver Driver
	DSN    string
}

var (
	keywordPassword = regexp.MustCompile(`(password\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)
	mysqlPassword   = regexp.MustCompile(`^([^:@/]*):[^@]*@`)
)

// String returns a loggable description of the target. Passwords in the DSN
// are masked.
func (t Target) String() string {
	return string(t.Driver) + ":" + RedactDSN(t.DSN)
}

// RedactDSN masks the password of a URL, keyword/value or MySQL style DSN
func RedactDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil {
			return u.Redacted()
		}
	}

	dsn = keywordPassword.ReplaceAllString(dsn, "${1}xxxxx")

	return mysqlPassword.ReplaceAllString(dsn, "${1}:xxxxx@")
}
