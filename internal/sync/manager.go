package sync

import (
	"context"
	"encoding/json"
	"math"
	gosync "sync"
	"time"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/identity"
	"github.com/kimhsiao/mdreader/core/internal/logging"
	"github.com/kimhsiao/mdreader/core/internal/models"
	"github.com/kimhsiao/mdreader/core/internal/remote"
	"github.com/kimhsiao/mdreader/core/internal/storage"
)

// DocState is the per-document sync state.
type DocState string

const (
	StateClean        DocState = "clean"
	StatePendingLocal DocState = "pending_local"
	StateSyncing      DocState = "syncing"
	StateConflicted   DocState = "conflicted"
)

// Remote is the backend surface the manager drains the queue against.
// *remote.Client satisfies it; tests substitute fakes.
type Remote interface {
	GetDocument(ctx context.Context, id string) (*remote.Document, error)
	CreateDocument(ctx context.Context, workspaceID string, doc *remote.Document) (*remote.Document, error)
	UpdateDocumentMetadata(ctx context.Context, id string, fields map[string]interface{}) (*remote.Document, error)
	PushContent(ctx context.Context, id string, content string) (*remote.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// flight tracks one in-progress reconciliation so concurrent triggers for the
// same document share its outcome instead of issuing duplicate network calls.
type flight struct {
	done     chan struct{}
	conflict *Conflict
	err      error
}

// Manager reconciles queued offline edits against the backend. It is the
// only writer of Document.PendingChanges and Document.Sync.LastSyncedAt.
// Per-document reconciliation is serialized; across documents it is free to
// interleave.
type Manager struct {
	store  storage.Provider
	remote Remote
	queue  *Queue
	bus    *Bus

	mu        gosync.Mutex
	states    map[string]DocState
	conflicts map[string]*Conflict
	flights   map[string]*flight
}

// NewManager creates a Manager over the given storage and backend.
func NewManager(store storage.Provider, rc Remote, bus *Bus) *Manager {
	if bus == nil {
		bus = NewBus()
	}
	return &Manager{
		store:     store,
		remote:    rc,
		queue:     NewQueue(store),
		bus:       bus,
		states:    make(map[string]DocState),
		conflicts: make(map[string]*Conflict),
		flights:   make(map[string]*flight),
	}
}

// Bus returns the manager's event bus.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// NoteLocalEdit persists a local mutation and queues it for sync. The write
// lands in local storage immediately; the network is never on this path.
func (m *Manager) NoteLocalEdit(doc *models.Document, operation string, payload map[string]interface{}) error {
	doc.PendingChanges = true
	if err := m.store.PutDocument(doc); err != nil {
		return err
	}

	key := identity.CanonicalDocumentKey(doc)
	if _, err := m.queue.Enqueue(models.EntityDocument, key, operation, payload); err != nil {
		return err
	}
	m.setState(key, StatePendingLocal)
	return nil
}

// FlushDocument runs one reconciliation attempt for a document. The key may
// be a local id, cloud id, or canonical key. If an attempt for the same
// document is already in flight the call waits for and shares its outcome.
// A non-nil Conflict means the document diverged and needs resolveConflict;
// a non-nil error means the attempt failed and the document stays pending.
func (m *Manager) FlushDocument(ctx context.Context, key string) (*Conflict, error) {
	doc, err := m.store.GetDocument(key)
	if err != nil {
		return nil, err
	}
	canonical := identity.CanonicalDocumentKey(doc)

	m.mu.Lock()
	if f, ok := m.flights[canonical]; ok {
		m.mu.Unlock()
		<-f.done
		return f.conflict, f.err
	}
	f := &flight{done: make(chan struct{})}
	m.flights[canonical] = f
	m.mu.Unlock()

	f.conflict, f.err = m.flushOne(ctx, canonical, doc)

	m.mu.Lock()
	delete(m.flights, canonical)
	m.mu.Unlock()
	close(f.done)

	return f.conflict, f.err
}

// FlushAll reconciles every document with queued changes and emits one
// sync_completed event carrying exactly this pass's conflicts. The first
// transport failure is returned after the remaining documents were tried.
func (m *Manager) FlushAll(ctx context.Context) ([]*Conflict, error) {
	docs, err := m.store.ListPendingDocuments()
	if err != nil {
		return nil, err
	}

	// conflicts carried over from earlier passes are skipped, not
	// re-reported; listeners accumulate their own running list
	known := make(map[string]bool)
	m.mu.Lock()
	for id := range m.conflicts {
		known[id] = true
	}
	m.mu.Unlock()

	var conflicts []*Conflict
	var firstErr error
	for _, doc := range docs {
		conflict, err := m.FlushDocument(ctx, string(doc.ID))
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if conflict != nil && !known[conflict.ID] {
			conflicts = append(conflicts, conflict)
		}
	}

	m.bus.Publish(Event{Kind: EventSyncCompleted, ConflictDetails: conflicts})
	return conflicts, firstErr
}

// flushOne is the single-document reconciliation pass. The caller holds the
// document's flight slot.
func (m *Manager) flushOne(ctx context.Context, key string, doc *models.Document) (*Conflict, error) {
	// a conflicted document never re-enters syncing; only resolveConflict
	// moves it on, and re-detecting would mint duplicate conflicts
	if conflict := m.activeConflictFor(key); conflict != nil {
		return conflict, nil
	}

	changes, err := m.queue.Drain(key)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		m.setState(key, StateClean)
		return nil, nil
	}
	m.setState(key, StateSyncing)

	if doc.Synced() {
		remoteDoc, err := m.remote.GetDocument(ctx, remoteID(doc))
		switch {
		case err == nil:
			if remoteDoc.UpdatedAt > doc.Sync.LastSyncedAt && remoteDoc.Content != doc.Content {
				return m.raiseConflict(key, doc, remoteDoc), nil
			}
		case apperrors.Is(err, apperrors.ErrNotFound):
			// remote record is gone; the queued changes recreate it
		default:
			m.setState(key, StatePendingLocal)
			return nil, err
		}
	}

	var applied int64
	var deleted bool
	for _, change := range changes {
		if err := m.applyChange(ctx, doc, change); err != nil {
			if applied > 0 {
				// the backend accepted a prefix of the queue; record that so
				// the retry does not mistake our own writes for divergence
				if clearErr := m.queue.Clear(key, applied); clearErr != nil {
					logging.Error("failed to clear applied changes", clearErr, map[string]interface{}{
						"document_id": key,
					})
				}
				doc.Sync.LastSyncedAt = time.Now().Unix()
				if putErr := m.store.PutDocument(doc); putErr != nil {
					logging.Error("failed to record partial sync", putErr, map[string]interface{}{
						"document_id": key,
					})
				}
			}
			m.setState(key, StatePendingLocal)
			return nil, err
		}
		applied = change.ID
		deleted = change.Operation == models.OperationDelete
	}

	if err := m.queue.Clear(key, applied); err != nil {
		m.setState(key, StatePendingLocal)
		return nil, err
	}

	// a drain ending in a delete destroys the local record; re-persisting
	// it would resurrect a document the backend just removed
	if deleted {
		if err := m.store.DeleteDocument(string(doc.ID)); err != nil && !apperrors.Is(err, apperrors.ErrDocumentNotFound) {
			return nil, err
		}
		m.mu.Lock()
		delete(m.states, key)
		m.mu.Unlock()

		logging.Info("document deleted", map[string]interface{}{
			"document_id": key,
		})
		return nil, nil
	}

	doc.PendingChanges = false
	doc.Sync.LastSyncedAt = time.Now().Unix()
	if err := m.store.PutDocument(doc); err != nil {
		return nil, err
	}
	m.setState(key, StateClean)

	logging.Info("document synced", map[string]interface{}{
		"document_id":     key,
		"changes_applied": len(changes),
	})
	return nil, nil
}

// applyChange replays one queued change against the backend. A document that
// has never synced is created from its full local state, which subsumes any
// queued field-level update.
func (m *Manager) applyChange(ctx context.Context, doc *models.Document, change *models.PendingChange) error {
	switch change.Operation {
	case models.OperationCreate:
		return m.createRemote(ctx, doc)

	case models.OperationUpdate:
		if !doc.Synced() {
			return m.createRemote(ctx, doc)
		}
		var fields map[string]interface{}
		if len(change.Payload) > 0 {
			if err := json.Unmarshal(change.Payload, &fields); err != nil {
				return apperrors.Wrap(apperrors.ErrValidation, "malformed change payload", err)
			}
		}
		if raw, ok := fields["content"]; ok {
			content, _ := raw.(string)
			if _, err := m.remote.PushContent(ctx, remoteID(doc), content); err != nil {
				return err
			}
			delete(fields, "content")
		}
		if len(remote.MetadataPayload(fields)) > 0 {
			if _, err := m.remote.UpdateDocumentMetadata(ctx, remoteID(doc), fields); err != nil {
				return err
			}
		}
		return nil

	case models.OperationDelete:
		if !doc.Synced() {
			return nil
		}
		err := m.remote.DeleteDocument(ctx, remoteID(doc))
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	return apperrors.New(apperrors.ErrValidation, "unknown operation: "+change.Operation)
}

// createRemote creates the document on the backend and persists the
// cloud-issued id so the canonical key converges before further changes.
func (m *Manager) createRemote(ctx context.Context, doc *models.Document) error {
	created, err := m.remote.CreateDocument(ctx, identity.ExtractUUID(string(doc.WorkspaceID)), &remote.Document{
		Title:       doc.Title,
		Content:     doc.Content,
		ContentType: doc.ContentType,
		FolderID:    identity.ExtractUUID(string(doc.FolderID)),
		IsStarred:   doc.IsStarred,
	})
	if err != nil {
		return err
	}
	doc.CloudID = created.ID
	doc.Sync.CloudID = created.ID
	return m.store.PutDocument(doc)
}

// activeConflictFor returns the unresolved conflict of a document, if any.
func (m *Manager) activeConflictFor(key string) *Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conflicts {
		if c.DocumentID == key {
			return c
		}
	}
	return nil
}

// raiseConflict records a divergence and publishes conflict_detected with
// exactly this pass's conflict.
func (m *Manager) raiseConflict(key string, doc *models.Document, remoteDoc *remote.Document) *Conflict {
	conflict := newConflict(key, doc, remoteDoc)

	m.mu.Lock()
	m.conflicts[conflict.ID] = conflict
	m.states[key] = StateConflicted
	m.mu.Unlock()

	logging.Warn("divergence conflict detected", map[string]interface{}{
		"document_id": key,
		"conflict_id": conflict.ID,
	})
	m.bus.Publish(Event{
		Kind:            EventConflictDetected,
		DocumentID:      key,
		ConflictDetails: []*Conflict{conflict},
	})
	return conflict
}

// ResolveConflict applies the caller's chosen side of a divergence conflict.
// "local" pushes the local content through the remote update path; "remote"
// overwrites local storage with the remote snapshot. Either way the queued
// changes for the document are superseded and deleted. On any failure the
// Conflict stays in the active set so the caller can retry; reapplying a
// completed resolution is a no-op.
func (m *Manager) ResolveConflict(ctx context.Context, conflictID string, resolution Resolution) error {
	if resolution != ResolutionLocal && resolution != ResolutionRemote {
		return apperrors.New(apperrors.ErrValidation, "unknown resolution: "+string(resolution))
	}

	m.mu.Lock()
	conflict, ok := m.conflicts[conflictID]
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrConflictNotFound, "no active conflict: "+conflictID)
	}

	doc, err := m.store.GetDocument(conflict.DocumentID)
	if err != nil {
		return err
	}

	switch resolution {
	case ResolutionLocal:
		if _, err := m.remote.PushContent(ctx, remoteID(doc), doc.Content); err != nil {
			return err
		}
	case ResolutionRemote:
		doc.Content = conflict.Remote.Content
		doc.UpdatedAt = conflict.Remote.UpdatedAt
	}

	if err := m.queue.Clear(conflict.DocumentID, math.MaxInt64); err != nil {
		return err
	}

	doc.PendingChanges = false
	doc.Sync.LastSyncedAt = time.Now().Unix()
	if err := m.store.PutDocument(doc); err != nil {
		return err
	}

	if err := m.store.AppendConflictLog(&models.ConflictLog{
		DocumentID:      conflict.DocumentID,
		LocalTimestamp:  conflict.Local.UpdatedAt,
		RemoteTimestamp: conflict.Remote.UpdatedAt,
		Resolution:      string(resolution),
		DetectedAt:      conflict.DetectedAt,
		ResolvedAt:      time.Now().Unix(),
	}); err != nil {
		logging.Warn("failed to journal conflict resolution", map[string]interface{}{
			"conflict_id": conflictID,
			"error":       err.Error(),
		})
	}

	m.mu.Lock()
	delete(m.conflicts, conflictID)
	m.states[conflict.DocumentID] = StateClean
	m.mu.Unlock()

	logging.Info("conflict resolved", map[string]interface{}{
		"document_id": conflict.DocumentID,
		"conflict_id": conflictID,
		"resolution":  string(resolution),
	})
	return nil
}

// HasPendingDocuments reports whether any document has queued changes.
func (m *Manager) HasPendingDocuments() (bool, error) {
	docs, err := m.store.ListPendingDocuments()
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// ActiveConflicts returns the unresolved conflicts, ordered by detection.
func (m *Manager) ActiveConflicts() []*Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()

	conflicts := make([]*Conflict, 0, len(m.conflicts))
	for _, c := range m.conflicts {
		conflicts = append(conflicts, c)
	}
	for i := 1; i < len(conflicts); i++ {
		for j := i; j > 0 && conflicts[j].DetectedAt < conflicts[j-1].DetectedAt; j-- {
			conflicts[j], conflicts[j-1] = conflicts[j-1], conflicts[j]
		}
	}
	return conflicts
}

// State reports a document's sync state. pendingLocal is derived lazily from
// the queue so restarts observe the durable log, not in-memory bookkeeping.
func (m *Manager) State(key string) (DocState, error) {
	doc, err := m.store.GetDocument(key)
	if err != nil {
		return "", err
	}
	canonical := identity.CanonicalDocumentKey(doc)

	m.mu.Lock()
	if _, ok := m.flights[canonical]; ok {
		m.mu.Unlock()
		return StateSyncing, nil
	}
	if state, ok := m.states[canonical]; ok && state == StateConflicted {
		m.mu.Unlock()
		return StateConflicted, nil
	}
	m.mu.Unlock()

	pending, err := m.queue.HasPending(canonical)
	if err != nil {
		return "", err
	}
	if pending {
		return StatePendingLocal, nil
	}
	return StateClean, nil
}

func (m *Manager) setState(key string, state DocState) {
	m.mu.Lock()
	m.states[key] = state
	m.mu.Unlock()
}

// remoteID is the backend id of a synced document.
func remoteID(doc *models.Document) string {
	if doc.CloudID != "" {
		return doc.CloudID
	}
	return doc.Sync.CloudID
}
