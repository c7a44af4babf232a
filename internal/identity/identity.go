// Package identity resolves locally generated and cloud-issued entity ids to
// one canonical key, so a guest-created draft and its later cloud-synced
// counterpart are treated as the same logical entity.
package identity

import (
	"strings"

	"github.com/kimhsiao/mdreader/core/internal/models"
	"github.com/kimhsiao/mdreader/core/internal/uuid"
)

// Separator between a local id prefix and its UUID suffix.
const Separator = "_"

// Local id prefixes by entity kind.
const (
	DocumentPrefix  = "doc"
	WorkspacePrefix = "ws"
	FolderPrefix    = "fld"
)

// ExtractUUID returns the UUID suffix of a prefixed local id.
// Ids without a separator are returned unchanged (already canonical or
// opaque). If the part after the first separator is not UUID-shaped, the
// prefix heuristic does not apply and the original id is preserved.
func ExtractUUID(id string) string {
	i := strings.Index(id, Separator)
	if i < 0 {
		return id
	}
	suffix := id[i+len(Separator):]
	if uuid.IsValid(suffix) {
		return suffix
	}
	return id
}

// CanonicalDocumentKey derives the canonical key for a document.
// Precedence: CloudID, then Sync.CloudID, then the normalized local id.
func CanonicalDocumentKey(doc *models.Document) string {
	if doc.CloudID != "" {
		return doc.CloudID
	}
	if doc.Sync.CloudID != "" {
		return doc.Sync.CloudID
	}
	return ExtractUUID(string(doc.ID))
}

// CanonicalWorkspaceKey derives the canonical key for a workspace.
// Precedence: CloudID, then the normalized local id.
func CanonicalWorkspaceKey(ws *models.Workspace) string {
	if ws.CloudID != "" {
		return ws.CloudID
	}
	return ExtractUUID(string(ws.ID))
}

// IsLocalID reports whether an id was generated locally. Cloud ids are bare
// UUIDs; local ids carry a prefix and an internal separator.
func IsLocalID(id string) bool {
	if uuid.IsValid(id) {
		return false
	}
	return strings.Contains(id, Separator)
}

// NewDocumentID generates a prefixed local document id.
func NewDocumentID() string {
	return DocumentPrefix + Separator + uuid.New()
}

// NewWorkspaceID generates a prefixed local workspace id.
func NewWorkspaceID() string {
	return WorkspacePrefix + Separator + uuid.New()
}

// NewFolderID generates a prefixed local folder id.
func NewFolderID() string {
	return FolderPrefix + Separator + uuid.New()
}
