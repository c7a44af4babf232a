// Package storage provides unit tests for the storage backends.
package storage

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/models"
)

// newTestProviders constructs one initialized provider per backend.
func newTestProviders(t *testing.T) map[string]Provider {
	t.Helper()

	sqlite, err := NewSQLiteProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteProvider failed: %v", err)
	}
	fs, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}

	providers := map[string]Provider{
		ProviderSQLite:     sqlite,
		ProviderFilesystem: fs,
	}
	for name, p := range providers {
		if err := p.Init(); err != nil {
			t.Fatalf("Init %s failed: %v", name, err)
		}
		t.Cleanup(func() { p.Close() })
	}
	return providers
}

func testDocument(id, workspaceID string) *models.Document {
	now := time.Now().Unix()
	return &models.Document{
		ID:          models.UUID(id),
		WorkspaceID: models.UUID(workspaceID),
		Title:       "Test Document",
		Content:     "# Hello",
		ContentType: "markdown",
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TestInitTwice tests that a second Init is rejected.
func TestInitTwice(t *testing.T) {
	for name, p := range newTestProviders(t) {
		if err := p.Init(); err == nil {
			t.Errorf("%s: expected error on second Init", name)
		}
	}
}

// TestDocumentRoundTrip tests document CRUD on both backends.
func TestDocumentRoundTrip(t *testing.T) {
	for name, p := range newTestProviders(t) {
		doc := testDocument("doc_12345678-1234-1234-1234-123456789abc", "ws_1")

		if err := p.PutDocument(doc); err != nil {
			t.Fatalf("%s: PutDocument failed: %v", name, err)
		}

		got, err := p.GetDocument(string(doc.ID))
		if err != nil {
			t.Fatalf("%s: GetDocument failed: %v", name, err)
		}
		if got.Title != doc.Title || got.Content != doc.Content {
			t.Errorf("%s: round trip mismatch: %+v", name, got)
		}

		// Lookup by canonical key must succeed before the cloud id is known.
		got, err = p.GetDocument("12345678-1234-1234-1234-123456789abc")
		if err != nil {
			t.Fatalf("%s: canonical key lookup failed: %v", name, err)
		}
		if got.ID != doc.ID {
			t.Errorf("%s: canonical lookup returned wrong document %s", name, got.ID)
		}

		// Lookup by cloud id once known.
		doc.CloudID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
		if err := p.PutDocument(doc); err != nil {
			t.Fatalf("%s: PutDocument update failed: %v", name, err)
		}
		got, err = p.GetDocument(doc.CloudID)
		if err != nil {
			t.Fatalf("%s: cloud id lookup failed: %v", name, err)
		}
		if got.ID != doc.ID {
			t.Errorf("%s: cloud id lookup returned wrong document %s", name, got.ID)
		}

		if err := p.DeleteDocument(string(doc.ID)); err != nil {
			t.Fatalf("%s: DeleteDocument failed: %v", name, err)
		}
		if _, err := p.GetDocument(string(doc.ID)); !apperrors.Is(err, apperrors.ErrDocumentNotFound) {
			t.Errorf("%s: expected DOCUMENT_NOT_FOUND after delete, got %v", name, err)
		}
	}
}

// TestGetDocumentNotFound tests the not-found error code.
func TestGetDocumentNotFound(t *testing.T) {
	for name, p := range newTestProviders(t) {
		_, err := p.GetDocument("missing")
		if !apperrors.Is(err, apperrors.ErrDocumentNotFound) {
			t.Errorf("%s: expected DOCUMENT_NOT_FOUND, got %v", name, err)
		}
	}
}

// TestListDocumentsByWorkspace tests workspace scoping.
func TestListDocumentsByWorkspace(t *testing.T) {
	for name, p := range newTestProviders(t) {
		for _, id := range []string{"d1", "d2"} {
			if err := p.PutDocument(testDocument(id, "ws_a")); err != nil {
				t.Fatalf("%s: PutDocument failed: %v", name, err)
			}
		}
		if err := p.PutDocument(testDocument("d3", "ws_b")); err != nil {
			t.Fatalf("%s: PutDocument failed: %v", name, err)
		}

		docs, err := p.ListDocuments("ws_a")
		if err != nil {
			t.Fatalf("%s: ListDocuments failed: %v", name, err)
		}
		if len(docs) != 2 {
			t.Errorf("%s: expected 2 documents, got %d", name, len(docs))
		}
	}
}

// TestListPendingDocuments tests the pending filter.
func TestListPendingDocuments(t *testing.T) {
	for name, p := range newTestProviders(t) {
		clean := testDocument("clean", "ws_a")
		dirty := testDocument("dirty", "ws_a")
		dirty.PendingChanges = true

		if err := p.PutDocument(clean); err != nil {
			t.Fatalf("%s: PutDocument failed: %v", name, err)
		}
		if err := p.PutDocument(dirty); err != nil {
			t.Fatalf("%s: PutDocument failed: %v", name, err)
		}

		pending, err := p.ListPendingDocuments()
		if err != nil {
			t.Fatalf("%s: ListPendingDocuments failed: %v", name, err)
		}
		if len(pending) != 1 || pending[0].ID != dirty.ID {
			t.Errorf("%s: expected only the dirty document, got %+v", name, pending)
		}
	}
}

// TestWorkspaceRoundTrip tests workspace CRUD on both backends.
func TestWorkspaceRoundTrip(t *testing.T) {
	for name, p := range newTestProviders(t) {
		now := time.Now().Unix()
		ws := &models.Workspace{ID: "ws_local", Name: "Notes", CreatedAt: now, UpdatedAt: now}

		if err := p.PutWorkspace(ws); err != nil {
			t.Fatalf("%s: PutWorkspace failed: %v", name, err)
		}

		got, err := p.GetWorkspace("ws_local")
		if err != nil {
			t.Fatalf("%s: GetWorkspace failed: %v", name, err)
		}
		if got.Name != "Notes" {
			t.Errorf("%s: expected Notes, got %s", name, got.Name)
		}

		all, err := p.ListWorkspaces()
		if err != nil {
			t.Fatalf("%s: ListWorkspaces failed: %v", name, err)
		}
		if len(all) != 1 {
			t.Errorf("%s: expected 1 workspace, got %d", name, len(all))
		}

		if err := p.DeleteWorkspace("ws_local"); err != nil {
			t.Fatalf("%s: DeleteWorkspace failed: %v", name, err)
		}
		if _, err := p.GetWorkspace("ws_local"); !apperrors.Is(err, apperrors.ErrWorkspaceNotFound) {
			t.Errorf("%s: expected WORKSPACE_NOT_FOUND, got %v", name, err)
		}
	}
}

// TestPendingChangesFIFO tests per-entity FIFO ordering of the change log.
func TestPendingChangesFIFO(t *testing.T) {
	for name, p := range newTestProviders(t) {
		now := time.Now().Unix()
		payload, _ := json.Marshal(map[string]interface{}{"title": "A"})

		var ids []int64
		for _, op := range []string{models.OperationCreate, models.OperationUpdate, models.OperationUpdate} {
			id, err := p.AppendPendingChange(&models.PendingChange{
				EntityType: models.EntityDocument,
				EntityID:   "doc-1",
				Operation:  op,
				Payload:    payload,
				CreatedAt:  now,
			})
			if err != nil {
				t.Fatalf("%s: AppendPendingChange failed: %v", name, err)
			}
			ids = append(ids, id)
		}

		// Interleave a change for another entity.
		if _, err := p.AppendPendingChange(&models.PendingChange{
			EntityType: models.EntityDocument,
			EntityID:   "doc-2",
			Operation:  models.OperationUpdate,
			Payload:    payload,
			CreatedAt:  now,
		}); err != nil {
			t.Fatalf("%s: AppendPendingChange failed: %v", name, err)
		}

		changes, err := p.ListPendingChanges("doc-1")
		if err != nil {
			t.Fatalf("%s: ListPendingChanges failed: %v", name, err)
		}
		if len(changes) != 3 {
			t.Fatalf("%s: expected 3 changes, got %d", name, len(changes))
		}
		for i := 1; i < len(changes); i++ {
			if changes[i].ID <= changes[i-1].ID {
				t.Errorf("%s: changes out of order: %d before %d", name, changes[i-1].ID, changes[i].ID)
			}
		}
		if changes[0].Operation != models.OperationCreate {
			t.Errorf("%s: expected create first, got %s", name, changes[0].Operation)
		}

		// Clear the first two; the third must survive for retry.
		if err := p.DeletePendingChanges("doc-1", ids[1]); err != nil {
			t.Fatalf("%s: DeletePendingChanges failed: %v", name, err)
		}

		changes, err = p.ListPendingChanges("doc-1")
		if err != nil {
			t.Fatalf("%s: ListPendingChanges failed: %v", name, err)
		}
		if len(changes) != 1 || changes[0].ID != ids[2] {
			t.Errorf("%s: expected only change %d to remain, got %+v", name, ids[2], changes)
		}

		// Unrelated entity untouched.
		other, err := p.ListPendingChanges("doc-2")
		if err != nil {
			t.Fatalf("%s: ListPendingChanges failed: %v", name, err)
		}
		if len(other) != 1 {
			t.Errorf("%s: expected doc-2 change untouched, got %d", name, len(other))
		}
	}
}

// TestConflictLogJournal tests conflict journaling.
func TestConflictLogJournal(t *testing.T) {
	for name, p := range newTestProviders(t) {
		entry := &models.ConflictLog{
			DocumentID:      "doc-1",
			LocalTimestamp:  100,
			RemoteTimestamp: 200,
			Resolution:      "remote",
			DetectedAt:      150,
			ResolvedAt:      250,
		}
		if err := p.AppendConflictLog(entry); err != nil {
			t.Fatalf("%s: AppendConflictLog failed: %v", name, err)
		}

		entries, err := p.ListConflictLog("doc-1")
		if err != nil {
			t.Fatalf("%s: ListConflictLog failed: %v", name, err)
		}
		if len(entries) != 1 || entries[0].Resolution != "remote" {
			t.Errorf("%s: unexpected journal %+v", name, entries)
		}
	}
}

// TestInfo tests that Info names the backend.
func TestInfo(t *testing.T) {
	for name, p := range newTestProviders(t) {
		info, err := p.Info()
		if err != nil {
			t.Fatalf("%s: Info failed: %v", name, err)
		}
		if info.Provider != name {
			t.Errorf("expected provider %s, got %s", name, info.Provider)
		}
	}
}
