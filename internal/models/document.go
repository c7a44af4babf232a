// Package models provides data model definitions for the MDReader Core.
package models

import (
	"database/sql/driver"
	"time"
)

// UUID is a wrapper around string for UUID type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncState tracks a document's relationship to its cloud counterpart.
// CloudID is empty until the document has been accepted by the backend.
// LastSyncedAt is a unix timestamp, zero when the document has never synced.
type SyncState struct {
	CloudID      string `db:"cloud_id" json:"cloud_id,omitempty"`
	LastSyncedAt int64  `db:"last_synced_at" json:"last_synced_at,omitempty"`
}

// Document represents a locally stored document record.
// The sync manager is the only writer of PendingChanges and Sync.LastSyncedAt.
type Document struct {
	ID             UUID      `db:"id" json:"id"`
	WorkspaceID    UUID      `db:"workspace_id" json:"workspace_id"`
	FolderID       UUID      `db:"folder_id" json:"folder_id,omitempty"`
	Title          string    `db:"title" json:"title"`
	Content        string    `db:"content" json:"content"`
	ContentType    string    `db:"content_type" json:"content_type"`
	IsStarred      bool      `db:"is_starred" json:"is_starred"`
	Version        int       `db:"version" json:"version"`
	PendingChanges bool      `db:"pending_changes" json:"pending_changes"`
	CloudID        string    `db:"cloud_id" json:"cloud_id,omitempty"`
	Sync           SyncState `json:"sync"`
	CreatedAt      int64     `db:"created_at" json:"created_at"`
	UpdatedAt      int64     `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (d *Document) UpdatedAtTime() time.Time {
	return time.Unix(d.UpdatedAt, 0)
}

// Touch updates the UpdatedAt timestamp and bumps the version.
func (d *Document) Touch() {
	d.UpdatedAt = time.Now().Unix()
	d.Version++
}

// Synced reports whether the document has ever been accepted by the backend.
func (d *Document) Synced() bool {
	return d.CloudID != "" || d.Sync.CloudID != ""
}
