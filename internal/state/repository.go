// Package state persists tracked deployments in the local sqlite database.
package state

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("tracked deployment not found")

// Repository provides database operations for tracked deployments
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new state repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListAll returns every record ordered by position.
func (r *Repository) ListAll(ctx context.Context) ([]TrackedDeployment, error) {
	var rows []TrackedDeployment
	if err := r.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked deployments: %w", err)
	}
	return rows, nil
}

// Get returns one record by id.
func (r *Repository) Get(ctx context.Context, id string) (*TrackedDeployment, error) {
	var row TrackedDeployment
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tracked deployment: %w", err)
	}
	return &row, nil
}

// ReplaceAll swaps the stored set for rows in a single transaction,
// renumbering positions in slice order.
func (r *Repository) ReplaceAll(ctx context.Context, rows []TrackedDeployment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TrackedDeployment{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].Position = i
		}
		return tx.CreateInBatches(&rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace tracked deployments: %w", err)
	}
	return nil
}

// CountByState returns the number of records per state.
func (r *Repository) CountByState(ctx context.Context) (map[string]int, error) {
	var results []struct {
		State string
		Count int
	}
	if err := r.db.WithContext(ctx).
		Model(&TrackedDeployment{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count tracked deployments: %w", err)
	}

	counts := make(map[string]int, len(results))
	for _, res := range results {
		counts[res.State] = res.Count
	}
	return counts, nil
}
