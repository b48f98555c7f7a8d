// Package services provides application-layer operations over the core.
package services

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/kimhsiao/setforge/backend/internal/errors"
	"github.com/kimhsiao/setforge/backend/internal/models"
	syncpkg "github.com/kimhsiao/setforge/backend/internal/sync"
	"github.com/kimhsiao/setforge/backend/internal/uuid"
)

// WorkoutService is the write path for workout data. Every write is queued
// as a pending mutation; the sync engine reconciles the queue with the
// remote service whenever a trigger fires. Writes therefore succeed with or
// without connectivity.
type WorkoutService struct {
	store syncpkg.Store
}

// NewWorkoutService creates a WorkoutService over the durable queue.
func NewWorkoutService(store syncpkg.Store) *WorkoutService {
	return &WorkoutService{store: store}
}

// SaveSession queues a full session aggregate: the session itself, its
// exercises and their sets. Missing ids are assigned; the session's
// updated_at is stamped so the engine's conflict check has a local time.
func (s *WorkoutService) SaveSession(session *models.Session, exercises []*models.SessionExercise, sets []*models.ExerciseSet) error {
	if session == nil {
		return apperrors.New(apperrors.ErrInvalid, "session must not be nil")
	}
	if session.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "session name must not be empty")
	}

	if session.ID == "" {
		session.ID = models.UUID(uuid.New())
	}
	session.UpdatedAt = time.Now().UnixMilli()

	operation := syncpkg.OperationUpdate
	if session.StartedAt == 0 {
		session.StartedAt = session.UpdatedAt
		operation = syncpkg.OperationInsert
	}

	if err := s.enqueue(string(session.ID), syncpkg.EntityTypeSession, operation, session); err != nil {
		return err
	}

	exerciseIDs := make(map[models.UUID]bool, len(exercises))
	for _, ex := range exercises {
		if ex.ID == "" {
			ex.ID = models.UUID(uuid.New())
		}
		if ex.SessionID == "" {
			ex.SessionID = session.ID
		}
		if ex.SessionID != session.ID {
			return apperrors.New(apperrors.ErrValidation,
				fmt.Sprintf("exercise %s references session %s, not %s", ex.ID, ex.SessionID, session.ID))
		}
		exerciseIDs[ex.ID] = true
		if err := s.enqueue(string(ex.ID), syncpkg.EntityTypeExercise, operation, ex); err != nil {
			return err
		}
	}

	for _, set := range sets {
		if set.ID == "" {
			set.ID = models.UUID(uuid.New())
		}
		if !exerciseIDs[set.SessionExerciseID] {
			return apperrors.New(apperrors.ErrValidation,
				fmt.Sprintf("set %s references unknown exercise %s", set.ID, set.SessionExerciseID))
		}
		if set.CompletedAt == 0 {
			set.CompletedAt = time.Now().UnixMilli()
		}
		if err := s.enqueue(string(set.ID), syncpkg.EntityTypeSet, operation, set); err != nil {
			return err
		}
	}

	return nil
}

// DeleteSession queues the deletion of a session aggregate. The remote
// service cascades to exercises and sets.
func (s *WorkoutService) DeleteSession(id string) error {
	if err := uuid.Validate(id); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid session id", err)
	}
	item := &models.SyncQueueItem{
		ID:         models.UUID(id),
		EntityType: syncpkg.EntityTypeSession,
		Operation:  syncpkg.OperationDelete,
		Payload:    json.RawMessage(`{}`),
	}
	return s.store.Enqueue(item)
}

// SaveTemplate queues a template create or update.
func (s *WorkoutService) SaveTemplate(template *models.Template) error {
	if template == nil {
		return apperrors.New(apperrors.ErrInvalid, "template must not be nil")
	}
	if template.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "template name must not be empty")
	}

	operation := syncpkg.OperationUpdate
	if template.ID == "" {
		template.ID = models.UUID(uuid.New())
		operation = syncpkg.OperationInsert
	}
	template.UpdatedAt = time.Now().UnixMilli()

	return s.enqueue(string(template.ID), syncpkg.EntityTypeTemplate, operation, template)
}

// PendingCount reports how many mutations await sync, for the UI badge.
func (s *WorkoutService) PendingCount() (int, error) {
	return s.store.Size()
}

// StuckMutations returns mutations parked at the retry ceiling.
func (s *WorkoutService) StuckMutations() ([]*models.SyncQueueItem, error) {
	return s.store.DeadLetters()
}

// enqueue marshals a model and upserts it into the queue.
func (s *WorkoutService) enqueue(id, entityType, operation string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePayload, "failed to encode payload", err)
	}
	item := &models.SyncQueueItem{
		ID:         models.UUID(id),
		EntityType: entityType,
		Operation:  operation,
		Payload:    data,
	}
	return s.store.Enqueue(item)
}
