package database

import (
	"fmt"
	"strings"

	"github.com/aurachat/aurachat/backend/internal/notes"
	"github.com/aurachat/aurachat/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	foreignKeysPragma = "_pragma=foreign_keys(1)"
)

// Options selects the backing store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured store and brings its schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch options.Driver {
	case DriverSQLite, "":
		db, err = openSQLite(options.Path)
	case DriverPostgres:
		db, err = openPostgres(options.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", db.Dialector.Name()))
	}
	return db, nil
}

// Migrate creates missing tables and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func openSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func openPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// withForeignKeys turns on SQLite's foreign key enforcement, which is off per connection by default.
func withForeignKeys(path string) string {
	if strings.Contains(path, "foreign_keys") {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + foreignKeysPragma
}
