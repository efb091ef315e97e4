// Package db opens the gorm connection used by the whole application
package db

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/util"
	"errors"
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table the application owns
var Models = []any{
	model.Identity{},
	model.Generation{},
	model.GenerationFailure{},
}

// New opens the database described by driver ("sqlite" or "postgres") and dsn and
// migrates all tables
func New(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case "postgres":
		if dsn == "" {
			return nil, errors.New("database.dsn is required for postgres")
		}

		dialector = postgres.Open(dsn)
	case "sqlite", "":
		if dsn == "" {
			dsn = "database.db"
		}

		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() && !isMemory(dsn) {
			path, _, _ := strings.Cut(dsn, "?")
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to %s", path)
			}
		}

		dialector = sqlite.Open(withForeignKeys(dsn))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database, %w", driver, err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}

// sqlite ignores foreign keys unless asked per connection
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk") {
		return dsn
	}

	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}

	return dsn + "?_foreign_keys=on"
}
