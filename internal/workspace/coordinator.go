// Package workspace coordinates resource lifecycle across workspace
// boundaries: releasing realtime sessions, refreshing the active document
// set, and announcing the switch once the new state is consistent.
package workspace

import (
	"context"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/identity"
	"github.com/kimhsiao/mdreader/core/internal/logging"
	"github.com/kimhsiao/mdreader/core/internal/models"
	"github.com/kimhsiao/mdreader/core/internal/realtime"
	"github.com/kimhsiao/mdreader/core/internal/remote"
	"github.com/kimhsiao/mdreader/core/internal/storage"
	syncpkg "github.com/kimhsiao/mdreader/core/internal/sync"
)

// Remote is the backend surface the coordinator needs. *remote.Client
// satisfies it.
type Remote interface {
	ListDocuments(ctx context.Context, workspaceID string) ([]*remote.Document, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]*remote.Member, error)
}

// Session store keys for the sticky selection.
const (
	sessionWorkspaceKey = "session.workspace"
	sessionDocumentKey  = "session.document"
)

// Coordinator owns the active workspace: its document set, the current
// document selection, and the realtime sessions held open for it. The
// selection is mirrored into the KV session store so the next launch can
// restore it; the KV store degrades to memory on write failure, so this
// never blocks a switch.
type Coordinator struct {
	store   storage.Provider
	remote  Remote
	tracker *realtime.Tracker
	bus     *syncpkg.Bus
	session *storage.KVStore

	current    string
	currentDoc string
	active     []*models.Document
	members    []*remote.Member
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store storage.Provider, rc Remote, tracker *realtime.Tracker, bus *syncpkg.Bus, session *storage.KVStore) *Coordinator {
	return &Coordinator{
		store:   store,
		remote:  rc,
		tracker: tracker,
		bus:     bus,
		session: session,
	}
}

// Switch moves the active workspace from fromID to toID. Every open realtime
// session is released exactly once, in-memory state is cleared, the new
// document set is loaded, and only then is workspace:switch emitted so
// listeners observe a consistent post-switch state. fromID may be empty on
// first activation.
func (c *Coordinator) Switch(ctx context.Context, fromID, toID string) error {
	if toID == "" {
		return apperrors.New(apperrors.ErrValidation, "target workspace id is required")
	}

	c.tracker.ReleaseAll()

	c.active = nil
	c.currentDoc = ""
	c.members = nil

	docs, err := c.loadDocuments(ctx, toID)
	if err != nil {
		return err
	}
	c.active = docs
	c.current = toID
	c.session.SetItem(sessionWorkspaceKey, toID)
	c.session.RemoveItem(sessionDocumentKey)

	// member lists exist only for cloud workspaces; a local-only workspace
	// never triggers a network call
	if !identity.IsLocalID(toID) {
		members, err := c.remote.ListWorkspaceMembers(ctx, toID)
		if err != nil {
			logging.Warn("failed to fetch workspace members", map[string]interface{}{
				"workspace_id": toID,
				"error":        err.Error(),
			})
		} else {
			c.members = members
		}
	}

	logging.Info("workspace switched", map[string]interface{}{
		"from":      fromID,
		"to":        toID,
		"documents": len(docs),
	})
	c.bus.Publish(syncpkg.Event{
		Kind: syncpkg.EventWorkspaceSwitch,
		From: fromID,
		To:   toID,
	})
	return nil
}

// loadDocuments fetches the document set from the authoritative source: the
// local store for a local-only workspace, the backend otherwise. Remote
// records are mirrored into local storage, except where local pending edits
// would be clobbered.
func (c *Coordinator) loadDocuments(ctx context.Context, workspaceID string) ([]*models.Document, error) {
	if identity.IsLocalID(workspaceID) {
		return c.store.ListDocuments(workspaceID)
	}

	remoteDocs, err := c.remote.ListDocuments(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(remoteDocs))
	for _, rd := range remoteDocs {
		doc, getErr := c.store.GetDocument(rd.ID)
		switch {
		case getErr == nil && doc.PendingChanges:
			// unsynced local edits win until the sync manager reconciles them
		case getErr == nil:
			doc.Title = rd.Title
			doc.Content = rd.Content
			doc.ContentType = rd.ContentType
			doc.FolderID = models.UUID(rd.FolderID)
			doc.IsStarred = rd.IsStarred
			doc.Version = rd.Version
			doc.UpdatedAt = rd.UpdatedAt
			if putErr := c.store.PutDocument(doc); putErr != nil {
				return nil, putErr
			}
		case apperrors.Is(getErr, apperrors.ErrNotFound) || apperrors.Is(getErr, apperrors.ErrDocumentNotFound):
			doc = &models.Document{
				ID:          models.UUID(rd.ID),
				WorkspaceID: models.UUID(workspaceID),
				FolderID:    models.UUID(rd.FolderID),
				Title:       rd.Title,
				Content:     rd.Content,
				ContentType: rd.ContentType,
				IsStarred:   rd.IsStarred,
				Version:     rd.Version,
				CloudID:     rd.ID,
				Sync:        models.SyncState{CloudID: rd.ID, LastSyncedAt: rd.UpdatedAt},
				CreatedAt:   rd.UpdatedAt,
				UpdatedAt:   rd.UpdatedAt,
			}
			if putErr := c.store.PutDocument(doc); putErr != nil {
				return nil, putErr
			}
		default:
			return nil, getErr
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// OpenDocument makes a document the current selection and acquires its
// realtime session.
func (c *Coordinator) OpenDocument(ctx context.Context, documentID string) error {
	if _, err := c.tracker.Acquire(ctx, documentID); err != nil {
		return err
	}
	c.currentDoc = documentID
	c.session.SetItem(sessionDocumentKey, documentID)
	return nil
}

// CloseDocument releases a document's session and clears the selection if it
// pointed at that document.
func (c *Coordinator) CloseDocument(documentID string) {
	c.tracker.Release(documentID)
	if c.currentDoc == documentID {
		c.currentDoc = ""
		c.session.RemoveItem(sessionDocumentKey)
	}
}

// LastSession returns the workspace and document selection persisted by the
// previous run, empty when none was recorded.
func (c *Coordinator) LastSession() (workspaceID, documentID string) {
	workspaceID, _ = c.session.GetItem(sessionWorkspaceKey)
	documentID, _ = c.session.GetItem(sessionDocumentKey)
	return workspaceID, documentID
}

// Current returns the active workspace id, empty before the first switch.
func (c *Coordinator) Current() string {
	return c.current
}

// CurrentDocument returns the selected document id, empty when none.
func (c *Coordinator) CurrentDocument() string {
	return c.currentDoc
}

// ActiveDocuments returns the document set of the active workspace.
func (c *Coordinator) ActiveDocuments() []*models.Document {
	return c.active
}

// Members returns the cached member list of the active workspace; nil for
// local workspaces or when the fetch failed.
func (c *Coordinator) Members() []*remote.Member {
	return c.members
}
