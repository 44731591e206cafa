package state

import (
	"time"

	"gorm.io/gorm"

	"github.com/alvesdmateus/easydeploy/pkg/database"
)

// TrackedDeployment is the persisted form of a tracker record.
type TrackedDeployment struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	State     string `gorm:"not null;index"`
	RawStatus string
	URL       string
	CreatedAt *time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false"`
	// Position orders records most recent first.
	Position int `gorm:"not null;index"`
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return database.Migrate(db, &TrackedDeployment{})
}

// Reset drops the stored deployments and recreates the schema. The store
// is a cache of server state, so a schema it cannot migrate is rebuilt.
func Reset(db *gorm.DB) error {
	if database.HasTable(db, &TrackedDeployment{}) {
		if err := database.DropAllTables(db, &TrackedDeployment{}); err != nil {
			return err
		}
	}
	return AutoMigrate(db)
}
