// Package db provides CRUD repository operations for SetForge data models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/setforge/backend/internal/models"
)

// Repository provides CRUD operations for the sync queue and document rows.
// Statements are prepared on first use and cached for reuse.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
// Key is the query string, value is the prepared statement.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Store in cache (if already stored by another goroutine, use existing)
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// SyncQueueItem Operations
// =====================================================

// UpsertSyncItem inserts a pending mutation or replaces an existing one with
// the same id. Enqueued time, retry count and last error are reset so a
// re-enqueued id behaves like a brand new mutation.
func (r *Repository) UpsertSyncItem(item *models.SyncQueueItem) error {
	item.EnqueuedAt = time.Now().UnixMilli()
	item.RetryCount = 0
	item.LastError = ""

	query := `
	INSERT INTO sync_queue (id, type, operation, data, enqueued_at, retry_count, last_error)
	VALUES (?, ?, ?, ?, ?, 0, NULL)
	ON CONFLICT(id) DO UPDATE SET
		type = excluded.type,
		operation = excluded.operation,
		data = excluded.data,
		enqueued_at = excluded.enqueued_at,
		retry_count = 0,
		last_error = NULL
	`
	_, err := r.db.Exec(query, item.ID, item.EntityType, item.Operation,
		string(item.Payload), item.EnqueuedAt)
	return err
}

// ListSyncItems returns all pending mutations ordered by enqueue time.
// The id is the tiebreaker so ordering is stable within one millisecond.
func (r *Repository) ListSyncItems() ([]*models.SyncQueueItem, error) {
	query := `
	SELECT id, type, operation, data, enqueued_at, retry_count, last_error
	FROM sync_queue ORDER BY enqueued_at ASC, id ASC
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSyncItems(rows)
}

// ListDeadLetters returns mutations whose retry count has reached the ceiling.
// They still appear in ListSyncItems; this view exists so the app layer can
// show "permanently failed" separately from "still pending".
func (r *Repository) ListDeadLetters(ceiling int) ([]*models.SyncQueueItem, error) {
	query := `
	SELECT id, type, operation, data, enqueued_at, retry_count, last_error
	FROM sync_queue WHERE retry_count >= ? ORDER BY enqueued_at ASC, id ASC
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(ceiling)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSyncItems(rows)
}

func scanSyncItems(rows *sql.Rows) ([]*models.SyncQueueItem, error) {
	var items []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var data string
		var lastError sql.NullString
		err := rows.Scan(&item.ID, &item.EntityType, &item.Operation, &data,
			&item.EnqueuedAt, &item.RetryCount, &lastError)
		if err != nil {
			return nil, err
		}
		item.Payload = []byte(data)
		if lastError.Valid {
			item.LastError = lastError.String
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// RemoveSyncItem deletes a single pending mutation.
func (r *Repository) RemoveSyncItem(id string) error {
	stmt, err := r.PrepareStmt("DELETE FROM sync_queue WHERE id = ?")
	if err != nil {
		return err
	}
	_, err = stmt.Exec(id)
	return err
}

// RemoveSyncItems deletes a batch of mutations in one transaction, so a
// synced group's members are removed together or not at all.
func (r *Repository) RemoveSyncItems(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM sync_queue WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// IncrementSyncRetry records a failed attempt for one mutation.
func (r *Repository) IncrementSyncRetry(id string, lastError string) error {
	stmt, err := r.PrepareStmt(
		"UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?")
	if err != nil {
		return err
	}

	res, err := stmt.Exec(lastError, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearSyncQueue removes every pending mutation.
func (r *Repository) ClearSyncQueue() error {
	_, err := r.db.Exec("DELETE FROM sync_queue")
	return err
}

// SyncQueueSize returns the number of pending mutations.
func (r *Repository) SyncQueueSize() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&n)
	return n, err
}

// =====================================================
// Document Operations
// =====================================================

// GetDocument retrieves a document row by key. Returns sql.ErrNoRows when the
// key does not exist.
func (r *Repository) GetDocument(key string) (*models.Document, error) {
	stmt, err := r.PrepareStmt(
		"SELECT key, value, created_at, updated_at FROM documents WHERE key = ?")
	if err != nil {
		return nil, err
	}

	var doc models.Document
	err = stmt.QueryRow(key).Scan(&doc.Key, &doc.Value, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutDocument inserts or replaces a document row. CreatedAt is always reset,
// which is what lock re-acquisition over a stale row relies on.
func (r *Repository) PutDocument(key, value string) error {
	now := time.Now().UnixMilli()
	query := `
	INSERT INTO documents (key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, key, value, now, now)
	return err
}

// DeleteDocument removes a document row. Deleting a missing key is not an error.
func (r *Repository) DeleteDocument(key string) error {
	stmt, err := r.PrepareStmt("DELETE FROM documents WHERE key = ?")
	if err != nil {
		return err
	}
	_, err = stmt.Exec(key)
	return err
}
