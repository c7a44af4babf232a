// Package models provides data model definitions for the MDReader Core.
package models

import "time"

// ConflictLog journals resolved divergence conflicts for user awareness.
type ConflictLog struct {
	ID              int64  `db:"id" json:"id"`
	DocumentID      string `db:"document_id" json:"document_id"`
	LocalTimestamp  int64  `db:"local_timestamp" json:"local_timestamp"`
	RemoteTimestamp int64  `db:"remote_timestamp" json:"remote_timestamp"`
	Resolution      string `db:"resolution" json:"resolution"` // local, remote
	DetectedAt      int64  `db:"detected_at" json:"detected_at"`
	ResolvedAt      int64  `db:"resolved_at" json:"resolved_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// ResolvedAtTime returns the ResolvedAt as time.Time.
func (c *ConflictLog) ResolvedAtTime() time.Time {
	return time.Unix(c.ResolvedAt, 0)
}
