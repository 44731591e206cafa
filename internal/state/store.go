package state

import (
	"context"

	"github.com/alvesdmateus/easydeploy/internal/status"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

// TrackerStore adapts a Repository to tracker.Store.
type TrackerStore struct {
	repo *Repository
}

var _ tracker.Store = (*TrackerStore)(nil)

// NewTrackerStore creates a tracker store backed by repo.
func NewTrackerStore(repo *Repository) *TrackerStore {
	return &TrackerStore{repo: repo}
}

// LoadAll implements tracker.Store.
func (s *TrackerStore) LoadAll(ctx context.Context) ([]tracker.Deployment, error) {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]tracker.Deployment, 0, len(rows))
	for _, row := range rows {
		state := status.State(row.State)
		if !state.Valid() {
			state = status.Classify(row.RawStatus)
		}
		out = append(out, tracker.Deployment{
			ID:        row.ID,
			Name:      row.Name,
			State:     state,
			RawStatus: row.RawStatus,
			URL:       row.URL,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out, nil
}

// SaveAll implements tracker.Store.
func (s *TrackerStore) SaveAll(ctx context.Context, deployments []tracker.Deployment) error {
	rows := make([]TrackedDeployment, 0, len(deployments))
	for _, d := range deployments {
		rows = append(rows, TrackedDeployment{
			ID:        d.ID,
			Name:      d.Name,
			State:     string(d.State),
			RawStatus: d.RawStatus,
			URL:       d.URL,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return s.repo.ReplaceAll(ctx, rows)
}
