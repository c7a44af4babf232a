package sync

import (
	"time"

	"github.com/kimhsiao/mdreader/core/internal/models"
	"github.com/kimhsiao/mdreader/core/internal/remote"
	"github.com/kimhsiao/mdreader/core/internal/uuid"
)

// Resolution is the caller-chosen outcome of a divergence conflict. There is
// no automatic merge; keeping both channels honest is a product decision.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
)

// VersionSnapshot captures one side of a diverged document.
type VersionSnapshot struct {
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
}

// Conflict records a divergence between pending local edits and independent
// remote edits of the same document. It is immutable until resolved.
type Conflict struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Local      VersionSnapshot `json:"local_version"`
	Remote     VersionSnapshot `json:"remote_version"`
	DetectedAt int64           `json:"detected_at"`
}

// newConflict snapshots both sides of a diverged document.
func newConflict(documentKey string, local *models.Document, remoteDoc *remote.Document) *Conflict {
	return &Conflict{
		ID:         uuid.New(),
		DocumentID: documentKey,
		Local: VersionSnapshot{
			Content:   local.Content,
			UpdatedAt: local.UpdatedAt,
		},
		Remote: VersionSnapshot{
			Content:   remoteDoc.Content,
			UpdatedAt: remoteDoc.UpdatedAt,
		},
		DetectedAt: time.Now().Unix(),
	}
}
