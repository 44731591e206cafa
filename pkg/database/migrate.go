package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Migrate runs migrations for the given models.
func Migrate(db *gorm.DB, models ...interface{}) error {
	log.Debug().Int("models", len(models)).Msg("Running database migrations")

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// DropAllTables drops the tables of the given models.
func DropAllTables(db *gorm.DB, models ...interface{}) error {
	for _, model := range models {
		if err := db.Migrator().DropTable(model); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	log.Debug().Int("models", len(models)).Msg("Dropped database tables")
	return nil
}

// HasTable checks if a table exists
func HasTable(db *gorm.DB, model interface{}) bool {
	return db.Migrator().HasTable(model)
}
