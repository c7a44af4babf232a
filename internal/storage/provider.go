// Package storage provides the local persistence layer behind a capability
// interface, with one backend per platform selected once at startup.
package storage

import "github.com/kimhsiao/mdreader/core/internal/models"

// Provider names, also the contract surface of the factory log line.
const (
	ProviderSQLite     = "sqlite"
	ProviderFilesystem = "filesystem"
	ProviderMemory     = "memory"
)

// Info describes the selected backend and its space usage in bytes.
// Available and Total are zero when the backend cannot report them.
type Info struct {
	Provider  string `json:"provider"`
	Used      int64  `json:"used"`
	Available int64  `json:"available"`
	Total     int64  `json:"total"`
}

// Provider is the capability interface all storage backends implement.
// Init must be called exactly once before any other operation; selection is
// immutable after Init succeeds. Lookup keys accept local ids, cloud ids,
// and canonical keys interchangeably.
type Provider interface {
	Init() error
	Info() (*Info, error)
	Name() string

	GetDocument(key string) (*models.Document, error)
	ListDocuments(workspaceID string) ([]*models.Document, error)
	ListPendingDocuments() ([]*models.Document, error)
	PutDocument(doc *models.Document) error
	DeleteDocument(key string) error

	GetWorkspace(key string) (*models.Workspace, error)
	ListWorkspaces() ([]*models.Workspace, error)
	PutWorkspace(ws *models.Workspace) error
	DeleteWorkspace(key string) error

	PutFolder(folder *models.Folder) error
	ListFolders(workspaceID string) ([]*models.Folder, error)

	AppendPendingChange(change *models.PendingChange) (int64, error)
	ListPendingChanges(entityID string) ([]*models.PendingChange, error)
	DeletePendingChanges(entityID string, uptoID int64) error

	AppendConflictLog(entry *models.ConflictLog) error
	ListConflictLog(documentID string) ([]*models.ConflictLog, error)

	Close() error
}
