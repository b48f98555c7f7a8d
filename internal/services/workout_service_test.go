package services

import (
	"testing"

	"github.com/kimhsiao/setforge/backend/internal/models"
	syncpkg "github.com/kimhsiao/setforge/backend/internal/sync"
	"github.com/kimhsiao/setforge/backend/internal/uuid"
)

// recordingStore captures enqueued mutations for assertions.
type recordingStore struct {
	items []*models.SyncQueueItem
}

func (s *recordingStore) Enqueue(item *models.SyncQueueItem) error {
	s.items = append(s.items, item)
	return nil
}

func (s *recordingStore) List() ([]*models.SyncQueueItem, error) { return s.items, nil }

func (s *recordingStore) Remove(id string) error { return nil }

func (s *recordingStore) RemoveBatch(ids []string) error { return nil }

func (s *recordingStore) IncrementRetry(id, lastError string) error { return nil }

func (s *recordingStore) Clear() error { return nil }

func (s *recordingStore) Size() (int, error) { return len(s.items), nil }

func (s *recordingStore) AcquireLock() error { return nil }

func (s *recordingStore) ReleaseLock() error { return nil }

func (s *recordingStore) DeadLetters() ([]*models.SyncQueueItem, error) {
	var dead []*models.SyncQueueItem
	for _, item := range s.items {
		if item.RetryCount >= syncpkg.DefaultRetryCeiling {
			dead = append(dead, item)
		}
	}
	return dead, nil
}

// TestSaveSessionQueuesAggregate verifies a new session queues one mutation
// per entity, with ids assigned and relations intact.
func TestSaveSessionQueuesAggregate(t *testing.T) {
	store := &recordingStore{}
	svc := NewWorkoutService(store)

	session := &models.Session{Name: "push day"}
	exercises := []*models.SessionExercise{
		{ExerciseID: "bench-press", Position: 0},
		{ExerciseID: "overhead-press", Position: 1},
	}

	if err := svc.SaveSession(session, exercises, nil); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	if session.ID == "" || !uuid.IsValid(string(session.ID)) {
		t.Errorf("Expected session id assigned, got %q", session.ID)
	}
	if session.UpdatedAt == 0 {
		t.Errorf("Expected updated_at stamped")
	}
	if len(store.items) != 3 {
		t.Fatalf("Expected 3 queued mutations, got %d", len(store.items))
	}
	if store.items[0].EntityType != syncpkg.EntityTypeSession ||
		store.items[0].Operation != syncpkg.OperationInsert {
		t.Errorf("Expected session insert first, got %+v", store.items[0])
	}
	for i, item := range store.items[1:] {
		if item.EntityType != syncpkg.EntityTypeExercise {
			t.Errorf("Item %d: expected exercise, got %s", i+1, item.EntityType)
		}
		payload, err := item.PayloadMap()
		if err != nil {
			t.Fatalf("Item %d payload failed: %v", i+1, err)
		}
		if payload["session_id"] != string(session.ID) {
			t.Errorf("Item %d: expected session_id %s, got %v",
				i+1, session.ID, payload["session_id"])
		}
	}
}

// TestSaveSessionWithSets verifies sets reference an exercise from the same
// save and carry the exercise id in their payload.
func TestSaveSessionWithSets(t *testing.T) {
	store := &recordingStore{}
	svc := NewWorkoutService(store)

	session := &models.Session{Name: "leg day"}
	exercise := &models.SessionExercise{ExerciseID: "squat"}
	if err := svc.SaveSession(session, []*models.SessionExercise{exercise}, nil); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	set := &models.ExerciseSet{SessionExerciseID: exercise.ID, SetNumber: 1, Reps: 5, WeightKg: 100}
	session.EndedAt = session.StartedAt + 3600_000
	if err := svc.SaveSession(session, []*models.SessionExercise{exercise},
		[]*models.ExerciseSet{set}); err != nil {
		t.Fatalf("Second SaveSession failed: %v", err)
	}

	last := store.items[len(store.items)-1]
	if last.EntityType != syncpkg.EntityTypeSet {
		t.Fatalf("Expected set queued last, got %s", last.EntityType)
	}
	if last.Operation != syncpkg.OperationUpdate {
		t.Errorf("Expected update for an already-started session, got %s", last.Operation)
	}
	payload, _ := last.PayloadMap()
	if payload["session_exercise_id"] != string(exercise.ID) {
		t.Errorf("Expected set to reference exercise %s, got %v",
			exercise.ID, payload["session_exercise_id"])
	}
	if set.CompletedAt == 0 {
		t.Errorf("Expected completed_at stamped")
	}
}

// TestSaveSessionValidation verifies rejected inputs queue nothing further.
func TestSaveSessionValidation(t *testing.T) {
	store := &recordingStore{}
	svc := NewWorkoutService(store)

	if err := svc.SaveSession(nil, nil, nil); err == nil {
		t.Errorf("Expected error for nil session")
	}
	if err := svc.SaveSession(&models.Session{}, nil, nil); err == nil {
		t.Errorf("Expected error for unnamed session")
	}

	session := &models.Session{Name: "pull day"}
	orphanSet := &models.ExerciseSet{SessionExerciseID: "not-in-this-save"}
	if err := svc.SaveSession(session, nil, []*models.ExerciseSet{orphanSet}); err == nil {
		t.Errorf("Expected error for set referencing an unknown exercise")
	}

	foreign := &models.SessionExercise{SessionID: "some-other-session"}
	if err := svc.SaveSession(&models.Session{Name: "x"},
		[]*models.SessionExercise{foreign}, nil); err == nil {
		t.Errorf("Expected error for exercise bound to another session")
	}
}

// TestDeleteSession verifies deletion queues a delete with an empty payload
// and validates the id.
func TestDeleteSession(t *testing.T) {
	store := &recordingStore{}
	svc := NewWorkoutService(store)

	if err := svc.DeleteSession("not-a-uuid"); err == nil {
		t.Errorf("Expected error for malformed id")
	}

	id := uuid.New()
	if err := svc.DeleteSession(id); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("Expected 1 queued mutation, got %d", len(store.items))
	}
	item := store.items[0]
	if item.Operation != syncpkg.OperationDelete || string(item.ID) != id {
		t.Errorf("Unexpected delete mutation: %+v", item)
	}
}

// TestSaveTemplate verifies insert-vs-update selection by id presence.
func TestSaveTemplate(t *testing.T) {
	store := &recordingStore{}
	svc := NewWorkoutService(store)

	if err := svc.SaveTemplate(&models.Template{Plan: "{}"}); err == nil {
		t.Errorf("Expected error for unnamed template")
	}

	template := &models.Template{Name: "5x5", Plan: "{}"}
	if err := svc.SaveTemplate(template); err != nil {
		t.Fatalf("SaveTemplate failed: %v", err)
	}
	if store.items[0].Operation != syncpkg.OperationInsert {
		t.Errorf("Expected insert for a new template, got %s", store.items[0].Operation)
	}

	if err := svc.SaveTemplate(template); err != nil {
		t.Fatalf("Second SaveTemplate failed: %v", err)
	}
	if store.items[1].Operation != syncpkg.OperationUpdate {
		t.Errorf("Expected update for an existing template, got %s", store.items[1].Operation)
	}
}

// TestPendingAndStuck verifies the queue views exposed to the app layer.
func TestPendingAndStuck(t *testing.T) {
	store := &recordingStore{}
	svc := NewWorkoutService(store)

	if err := svc.SaveTemplate(&models.Template{Name: "a", Plan: "{}"}); err != nil {
		t.Fatalf("SaveTemplate failed: %v", err)
	}
	store.items[0].RetryCount = syncpkg.DefaultRetryCeiling

	n, err := svc.PendingCount()
	if err != nil || n != 1 {
		t.Errorf("Expected 1 pending, got %d (err %v)", n, err)
	}
	stuck, err := svc.StuckMutations()
	if err != nil || len(stuck) != 1 {
		t.Errorf("Expected 1 stuck mutation, got %d (err %v)", len(stuck), err)
	}
}
