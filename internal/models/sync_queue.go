// Package models provides data model definitions for SetForge Core.
package models

import (
	"encoding/json"
	"time"
)

// SyncQueueItem represents one pending local mutation destined for the remote
// data service. The id matches (or is destined to match) the remote entity's
// primary key, so re-enqueuing the same id replaces the prior pending record.
type SyncQueueItem struct {
	ID         UUID            `db:"id" json:"id"`
	EntityType string          `db:"type" json:"type"`           // session, session_exercise, exercise_set, template
	Operation  string          `db:"operation" json:"operation"` // insert, update, delete
	Payload    json.RawMessage `db:"data" json:"data"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"` // ms since epoch
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// EnqueuedTime returns the EnqueuedAt as time.Time.
func (i *SyncQueueItem) EnqueuedTime() time.Time {
	return time.UnixMilli(i.EnqueuedAt)
}

// PayloadMap decodes the payload into a generic key/value record.
func (i *SyncQueueItem) PayloadMap() (map[string]interface{}, error) {
	var m map[string]interface{}
	if len(i.Payload) == 0 {
		return map[string]interface{}{}, nil
	}
	if err := json.Unmarshal(i.Payload, &m); err != nil {
		return nil, err
	}
	return m, nil
}
