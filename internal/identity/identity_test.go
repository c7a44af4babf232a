// Package identity provides unit tests for canonical key derivation.
package identity

import (
	"testing"

	"github.com/kimhsiao/mdreader/core/internal/models"
)

const testUUID = "12345678-1234-1234-1234-123456789abc"

// TestExtractUUID tests UUID extraction from prefixed local ids.
func TestExtractUUID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{
			name: "prefixed document id",
			id:   "doc_" + testUUID,
			want: testUUID,
		},
		{
			name: "prefixed workspace id",
			id:   "ws_" + testUUID,
			want: testUUID,
		},
		{
			name: "prefixed folder id",
			id:   "fld_" + testUUID,
			want: testUUID,
		},
		{
			name: "bare UUID unchanged",
			id:   testUUID,
			want: testUUID,
		},
		{
			name: "non-UUID suffix preserved",
			id:   "doc_not-a-uuid",
			want: "doc_not-a-uuid",
		},
		{
			name: "opaque id without separator",
			id:   "opaque-id",
			want: "opaque-id",
		},
		{
			name: "empty string",
			id:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractUUID(tt.id)
			if got != tt.want {
				t.Errorf("ExtractUUID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

// TestExtractUUIDIdempotent tests that ExtractUUID is a no-op on its own output.
func TestExtractUUIDIdempotent(t *testing.T) {
	ids := []string{
		"doc_" + testUUID,
		"ws_" + testUUID,
		testUUID,
		"doc_not-a-uuid",
		"opaque",
		"",
		NewDocumentID(),
		NewWorkspaceID(),
		NewFolderID(),
	}

	for _, id := range ids {
		once := ExtractUUID(id)
		twice := ExtractUUID(once)
		if once != twice {
			t.Errorf("ExtractUUID not idempotent for %q: %q != %q", id, once, twice)
		}
	}
}

// TestCanonicalDocumentKey tests canonical key precedence for documents.
func TestCanonicalDocumentKey(t *testing.T) {
	tests := []struct {
		name string
		doc  models.Document
		want string
	}{
		{
			name: "cloud id wins",
			doc:  models.Document{ID: models.UUID("doc_" + testUUID), CloudID: testUUID},
			want: testUUID,
		},
		{
			name: "sync cloud id when top-level missing",
			doc:  models.Document{ID: "doc_other", Sync: models.SyncState{CloudID: testUUID}},
			want: testUUID,
		},
		{
			name: "normalized local id when no cloud id",
			doc:  models.Document{ID: models.UUID("doc_" + testUUID)},
			want: testUUID,
		},
		{
			name: "opaque local id verbatim",
			doc:  models.Document{ID: "doc_not-a-uuid"},
			want: "doc_not-a-uuid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalDocumentKey(&tt.doc)
			if got != tt.want {
				t.Errorf("CanonicalDocumentKey = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestCanonicalKeyConverges tests that a local draft and its cloud counterpart
// map to the same canonical key once the cloud id is known.
func TestCanonicalKeyConverges(t *testing.T) {
	draft := &models.Document{ID: models.UUID("doc_" + testUUID)}
	synced := &models.Document{ID: models.UUID("doc_" + testUUID), CloudID: testUUID}

	if CanonicalDocumentKey(draft) != CanonicalDocumentKey(synced) {
		t.Errorf("Canonical keys diverge: draft %q, synced %q",
			CanonicalDocumentKey(draft), CanonicalDocumentKey(synced))
	}
}

// TestCanonicalWorkspaceKey tests canonical key precedence for workspaces.
func TestCanonicalWorkspaceKey(t *testing.T) {
	ws := &models.Workspace{ID: models.UUID("ws_" + testUUID)}
	if got := CanonicalWorkspaceKey(ws); got != testUUID {
		t.Errorf("Expected normalized id %q, got %q", testUUID, got)
	}

	ws.CloudID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	if got := CanonicalWorkspaceKey(ws); got != ws.CloudID {
		t.Errorf("Expected cloud id %q, got %q", ws.CloudID, got)
	}
}

// TestIsLocalID tests local-vs-cloud id discrimination.
func TestIsLocalID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"ws_" + testUUID, true},
		{"doc_" + testUUID, true},
		{NewWorkspaceID(), true},
		{testUUID, false},
		{"f47ac10b-58cc-4372-a567-0e02b2c3d479", false},
		{"opaque-no-separator", false},
	}

	for _, tt := range tests {
		if got := IsLocalID(tt.id); got != tt.want {
			t.Errorf("IsLocalID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

// TestNewIDs tests that generated local ids normalize to their UUID suffix.
func TestNewIDs(t *testing.T) {
	docID := NewDocumentID()
	if ExtractUUID(docID) == docID {
		t.Errorf("Expected generated document id to carry a UUID suffix: %s", docID)
	}

	wsID := NewWorkspaceID()
	if ExtractUUID(wsID) == wsID {
		t.Errorf("Expected generated workspace id to carry a UUID suffix: %s", wsID)
	}

	fldID := NewFolderID()
	if ExtractUUID(fldID) == fldID {
		t.Errorf("Expected generated folder id to carry a UUID suffix: %s", fldID)
	}
}
