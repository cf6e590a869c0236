// Package db keeps the client's local state in SQLite through GORM. Ghost
// sessions, the wallet session and the transaction history all live in one
// key-value table (see KVStore).
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/phasmapay/phasma/phasmaClient/store"
)

const (
	// InMemorySQLiteDSN opens a database that disappears with the process.
	InMemorySQLiteDSN = ":memory:"

	// fileDSNOptions turn on WAL so CLI commands can read while the daemon writes.
	fileDSNOptions = "?_journal_mode=WAL&_busy_timeout=5000&mode=rwc"

	dirPermissions = 0o750
)

var models = []any{
	&store.KVEntry{},
}

// DB is an open SQLite database.
type DB struct {
	client *gorm.DB
	path   string
}

// OpenFileDB opens dir/filename, creating the directory and the file when
// missing. migrateSchema creates or updates the tables.
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
	}
	path := filepath.Join(dir, filename)
	return open(path, path+fileDSNOptions, migrateSchema)
}

// OpenInMemoryDB opens a throwaway database, mostly for tests.
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return open("", InMemorySQLiteDSN, migrateSchema)
}

func open(path, dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	// One connection: an in-memory database lives as long as its only
	// connection, and file writers are serialized.
	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{client: client, path: path}
	if migrateSchema {
		if err := client.AutoMigrate(models...); err != nil {
			_ = d.Close()
			return nil, errors.Wrap(err, "failed to migrate schema")
		}
	}
	return d, nil
}

// Client exposes the GORM handle.
func (d *DB) Client() *gorm.DB {
	return d.client
}

// Path is the database file, empty for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// Close closes the connection.
func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database")
}
