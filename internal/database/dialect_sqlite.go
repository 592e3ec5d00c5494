package database

import (
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	sqlite "github.com/mattn/go-sqlite3"
)

// SQLiteDialect implements Dialect for SQLite
type SQLiteDialect struct{}

// NewSQLiteDialect creates a new SQLite dialect
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// DSN enables WAL, foreign keys and a busy timeout on every pooled
// connection. Transactions take the write lock up front.
func (d *SQLiteDialect) DSN(config DialectConfig) (string, error) {
	path := config.Path
	if path == "" {
		return "", errors.New("sqlite path is required")
	}
	if strings.Contains(path, "?") {
		return path, nil
	}
	params := url.Values{}
	params.Set("_busy_timeout", "10000")
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode(), nil
}

func (d *SQLiteDialect) RewriteQuery(query string) string {
	// SQLite uses ? placeholders, no rewrite needed
	return query
}

func (d *SQLiteDialect) SupportsLastInsertId() bool {
	return true
}

func (d *SQLiteDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *SQLiteDialect) MigrationsSubdir() string {
	return "sqlite"
}

func (d *SQLiteDialect) MigrationDriver(db *sql.DB) (migratedb.Driver, error) {
	return sqlite3.WithInstance(db, &sqlite3.Config{})
}

func (d *SQLiteDialect) InsertIgnore(table string, columns, conflict []string) string {
	return "INSERT INTO " + insertColumns(table, columns) +
		" ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO NOTHING"
}

func (d *SQLiteDialect) IsUniqueViolation(err error) bool {
	var se sqlite.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite.ErrConstraintUnique ||
			se.ExtendedCode == sqlite.ErrConstraintPrimaryKey
	}
	return false
}
