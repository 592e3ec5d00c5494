package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
)

// MySQLDialect implements Dialect for MySQL
type MySQLDialect struct{}

// NewMySQLDialect creates a new MySQL dialect
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// DSN forces parseTime, UTC and multi-statement support. Migrations need the
// latter.
func (d *MySQLDialect) DSN(config DialectConfig) (string, error) {
	if config.URL == "" {
		return "", errors.New("mysql dsn is required")
	}
	cfg, err := mysql.ParseDSN(config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

func (d *MySQLDialect) RewriteQuery(query string) string {
	// MySQL uses ? placeholders like SQLite, no rewrite needed
	return query
}

func (d *MySQLDialect) SupportsLastInsertId() bool {
	return true
}

func (d *MySQLDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *MySQLDialect) MigrationsSubdir() string {
	return "mysql"
}

func (d *MySQLDialect) MigrationDriver(db *sql.DB) (migratedb.Driver, error) {
	return migratemysql.WithInstance(db, &migratemysql.Config{})
}

// InsertIgnore ignores the conflict columns; MySQL's INSERT IGNORE applies
// to every unique index on the table.
func (d *MySQLDialect) InsertIgnore(table string, columns, _ []string) string {
	return "INSERT IGNORE INTO " + insertColumns(table, columns)
}

func (d *MySQLDialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
