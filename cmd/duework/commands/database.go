package commands

import (
	"database/sql"

	"github.com/ldg-erp/duework/config"
	"github.com/ldg-erp/duework/db"
	"github.com/ldg-erp/duework/errors"
	"github.com/ldg-erp/duework/logger"
)

// openDatabase opens and migrates the database at the given path.
// An empty path falls back to the configured location.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = "duework.db"
		} else {
			dbPath = path
		}
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	return database, nil
}
