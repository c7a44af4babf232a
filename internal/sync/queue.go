package sync

import (
	"encoding/json"
	"time"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/logging"
	"github.com/kimhsiao/mdreader/core/internal/models"
	"github.com/kimhsiao/mdreader/core/internal/storage"
)

// Queue is the durable offline change log. Entries are appended on local
// edits and removed only after confirmed remote application or explicit
// conflict resolution. Ordering is FIFO per entity; cross-entity ordering
// carries no correctness requirement.
type Queue struct {
	store storage.Provider
}

// NewQueue creates a Queue over the given storage provider.
func NewQueue(store storage.Provider) *Queue {
	return &Queue{store: store}
}

// Enqueue validates and appends a change, and marks the owning document as
// having pending changes.
func (q *Queue) Enqueue(entityType, entityID, operation string, payload map[string]interface{}) (*models.PendingChange, error) {
	if !models.ValidEntityType(entityType) {
		return nil, apperrors.New(apperrors.ErrValidation, "unknown entity type: "+entityType)
	}
	if !models.ValidOperation(operation) {
		return nil, apperrors.New(apperrors.ErrValidation, "unknown operation: "+operation)
	}
	if entityID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "entity id is required")
	}

	data := []byte("{}")
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to encode payload", err)
		}
	}

	change := &models.PendingChange{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Payload:    data,
		CreatedAt:  time.Now().Unix(),
	}

	if _, err := q.store.AppendPendingChange(change); err != nil {
		return nil, err
	}

	if entityType == models.EntityDocument {
		if doc, err := q.store.GetDocument(entityID); err == nil && !doc.PendingChanges {
			doc.PendingChanges = true
			if err := q.store.PutDocument(doc); err != nil {
				return nil, err
			}
		}
	}

	logging.Debug("queued offline change", map[string]interface{}{
		"change_id": change.ID,
		"entity_id": entityID,
		"operation": operation,
	})
	return change, nil
}

// Drain returns all queued changes for an entity in creation order. The
// entries stay in the log; Clear removes them after confirmed application.
func (q *Queue) Drain(entityID string) ([]*models.PendingChange, error) {
	return q.store.ListPendingChanges(entityID)
}

// Clear removes applied entries up to and including uptoID. The removal is
// transactional: either a confirmed change disappears or it remains queued
// for retry, never a speculative partial state.
func (q *Queue) Clear(entityID string, uptoID int64) error {
	return q.store.DeletePendingChanges(entityID, uptoID)
}

// HasPending reports whether an entity has queued changes.
func (q *Queue) HasPending(entityID string) (bool, error) {
	changes, err := q.store.ListPendingChanges(entityID)
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}
