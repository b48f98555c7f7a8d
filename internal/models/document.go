// Package models provides data model definitions for SetForge Core.
package models

import "time"

// Document is a generic key/value row. The sync lock lives here under a fixed
// key; presence with a fresh created_at means the lock is held.
type Document struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	CreatedAt int64  `db:"created_at" json:"created_at"` // ms since epoch
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// Age returns how long ago the document was created.
func (d *Document) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(d.CreatedAt))
}
