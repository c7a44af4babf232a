// Package models provides data model definitions for the MDReader Core.
package models

import "time"

// Workspace represents a locally stored workspace record.
// CloudID is empty for guest-created workspaces that have never synced.
type Workspace struct {
	ID        UUID   `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CloudID   string `db:"cloud_id" json:"cloud_id,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Workspace.
func (Workspace) TableName() string {
	return "workspaces"
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (w *Workspace) UpdatedAtTime() time.Time {
	return time.Unix(w.UpdatedAt, 0)
}

// Folder represents a document folder within a workspace.
type Folder struct {
	ID          UUID   `db:"id" json:"id"`
	WorkspaceID UUID   `db:"workspace_id" json:"workspace_id"`
	ParentID    UUID   `db:"parent_id" json:"parent_id,omitempty"`
	Name        string `db:"name" json:"name"`
	CreatedAt   int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Folder.
func (Folder) TableName() string {
	return "folders"
}
