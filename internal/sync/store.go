// Package sync provides the offline mutation queue and synchronization engine.
package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kimhsiao/setforge/backend/internal/db"
	"github.com/kimhsiao/setforge/backend/internal/logging"
	"github.com/kimhsiao/setforge/backend/internal/models"
	"github.com/kimhsiao/setforge/backend/internal/uuid"
)

// lockKey is the fixed documents key holding the cooperative run lock.
const lockKey = "sync_lock"

// DefaultLockTTL is how long a lock row stays fresh. A row older than this is
// considered abandoned by a crashed run and may be forcibly re-acquired.
const DefaultLockTTL = 5 * time.Minute

// ErrLockHeld is returned by AcquireLock when another run holds a fresh lock.
var ErrLockHeld = errors.New("sync lock held by another run")

// Store is the durable queue consumed by the engine. Callers serialize runs
// through AcquireLock; the store itself does no cross-run locking.
type Store interface {
	Enqueue(item *models.SyncQueueItem) error
	List() ([]*models.SyncQueueItem, error)
	Remove(id string) error
	RemoveBatch(ids []string) error
	IncrementRetry(id string, lastError string) error
	Clear() error
	Size() (int, error)
	DeadLetters() ([]*models.SyncQueueItem, error)

	AcquireLock() error
	ReleaseLock() error
}

// QueueStore is the SQLite-backed Store.
type QueueStore struct {
	repo         *db.Repository
	lockTTL      time.Duration
	retryCeiling int
	holder       string // lock value written by this store instance
}

// NewQueueStore creates a QueueStore over an open repository.
func NewQueueStore(repo *db.Repository, lockTTL time.Duration, retryCeiling int) *QueueStore {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if retryCeiling < 1 {
		retryCeiling = DefaultRetryCeiling
	}
	return &QueueStore{
		repo:         repo,
		lockTTL:      lockTTL,
		retryCeiling: retryCeiling,
		holder:       uuid.New(),
	}
}

// Enqueue upserts a pending mutation by id. Re-enqueuing an id replaces the
// prior record and resets its retry bookkeeping.
func (s *QueueStore) Enqueue(item *models.SyncQueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("queue item id must not be empty")
	}
	if err := s.repo.UpsertSyncItem(item); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", item.ID, err)
	}
	logging.Debug("Enqueued mutation", map[string]interface{}{
		"id":        string(item.ID),
		"type":      item.EntityType,
		"operation": item.Operation,
	})
	return nil
}

// List returns all pending mutations ordered by enqueue time ascending.
func (s *QueueStore) List() ([]*models.SyncQueueItem, error) {
	return s.repo.ListSyncItems()
}

// Remove deletes one mutation after confirmed remote success.
func (s *QueueStore) Remove(id string) error {
	return s.repo.RemoveSyncItem(id)
}

// RemoveBatch deletes a group's members in one transaction.
func (s *QueueStore) RemoveBatch(ids []string) error {
	return s.repo.RemoveSyncItems(ids)
}

// IncrementRetry records a failed attempt and its reason.
func (s *QueueStore) IncrementRetry(id string, lastError string) error {
	return s.repo.IncrementSyncRetry(id, lastError)
}

// Clear drops every pending mutation.
func (s *QueueStore) Clear() error {
	return s.repo.ClearSyncQueue()
}

// Size returns the number of pending mutations.
func (s *QueueStore) Size() (int, error) {
	return s.repo.SyncQueueSize()
}

// DeadLetters returns mutations stuck at or above the retry ceiling. They are
// still present in List; this is the observable "permanently failed" view.
func (s *QueueStore) DeadLetters() ([]*models.SyncQueueItem, error) {
	return s.repo.ListDeadLetters(s.retryCeiling)
}

// AcquireLock takes the cooperative run lock. A fresh lock row held by another
// run yields ErrLockHeld; a stale row is forcibly re-acquired.
func (s *QueueStore) AcquireLock() error {
	doc, err := s.repo.GetDocument(lockKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read lock row: %w", err)
	}

	if doc != nil {
		age := doc.Age(time.Now())
		if age < s.lockTTL {
			return ErrLockHeld
		}
		logging.Warn("Re-acquiring stale sync lock", map[string]interface{}{
			"holder":      doc.Value,
			"age_seconds": int64(age.Seconds()),
		})
	}

	if err := s.repo.PutDocument(lockKey, s.holder); err != nil {
		return fmt.Errorf("failed to write lock row: %w", err)
	}
	return nil
}

// ReleaseLock drops the lock row. Releasing an already-released lock is a no-op.
func (s *QueueStore) ReleaseLock() error {
	return s.repo.DeleteDocument(lockKey)
}
