package services

import (
	"context"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
)

// ActivityService reads the audit trail
type ActivityService struct {
	repo *repository.ActivityRepository
}

func NewActivityService(repo *repository.ActivityRepository) *ActivityService {
	return &ActivityService{repo: repo}
}

// List returns one page of activity entries, newest first, and the total
// matching count
func (s *ActivityService) List(ctx context.Context, filter repository.ActivityFilter) ([]*models.ActivityLog, int64, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, 0, &ValidationError{Field: "action", Message: "is not a recognised action"}
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, 0, &ValidationError{Field: "entity_type", Message: "is not a recognised entity type"}
	}

	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// History returns every entry for one record, oldest first
func (s *ActivityService) History(ctx context.Context, entityType models.EntityType, entityID int64) ([]*models.ActivityLog, error) {
	if !entityType.Valid() {
		return nil, &ValidationError{Field: "entity_type", Message: "is not a recognised entity type"}
	}
	return s.repo.GetByEntity(ctx, entityType, entityID)
}
