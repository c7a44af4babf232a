// Package models provides data model definitions for the MDReader Core.
package models

import (
	"encoding/json"
	"time"
)

// Entity types a pending change may target.
const (
	EntityDocument  = "document"
	EntityWorkspace = "workspace"
	EntityFolder    = "folder"
)

// Operations a pending change may carry.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// PendingChange is one entry of the durable offline change log.
// Entries are append-only, keyed by an autoincrement ID, and applied in
// creation order per entity. An entry is deleted only after the backend has
// confirmed the change or a conflict resolution superseded it.
type PendingChange struct {
	ID         int64           `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Operation  string          `db:"operation" json:"operation"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for PendingChange.
func (PendingChange) TableName() string {
	return "pending_changes"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (p *PendingChange) CreatedAtTime() time.Time {
	return time.Unix(p.CreatedAt, 0)
}

// ValidEntityType reports whether t is a known entity type.
func ValidEntityType(t string) bool {
	switch t {
	case EntityDocument, EntityWorkspace, EntityFolder:
		return true
	}
	return false
}

// ValidOperation reports whether op is a known change operation.
func ValidOperation(op string) bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}
