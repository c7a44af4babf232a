package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/identity"
	"github.com/kimhsiao/mdreader/core/internal/models"
)

// FileProvider persists records as JSON files under a directory tree. It is
// the experimental native backend for the desktop platform.
//
// Layout:
//
//	<dataDir>/documents/<id>.json
//	<dataDir>/workspaces/<id>.json
//	<dataDir>/folders/<id>.json
//	<dataDir>/pending_changes.json
//	<dataDir>/conflict_log.json
type FileProvider struct {
	dataDir  string
	mu       sync.Mutex
	initOnce bool
}

// pendingLog is the on-disk shape of the offline change log.
type pendingLog struct {
	NextID  int64                   `json:"next_id"`
	Entries []*models.PendingChange `json:"entries"`
}

// NewFileProvider constructs the filesystem backend rooted at dataDir.
// It fails when the directory cannot be created or written, so the factory
// can fall back to the database backend.
func NewFileProvider(dataDir string) (*FileProvider, error) {
	if dataDir == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "data directory not writable", err)
	}
	probe := filepath.Join(dataDir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "data directory not writable", err)
	}
	os.Remove(probe)
	return &FileProvider{dataDir: dataDir}, nil
}

// Name returns the provider name.
func (p *FileProvider) Name() string {
	return ProviderFilesystem
}

// Init creates the directory layout. Calling Init more than once is an error.
func (p *FileProvider) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initOnce {
		return apperrors.New(apperrors.ErrInternal, "storage provider already initialized")
	}

	for _, dir := range []string{"documents", "workspaces", "folders"} {
		if err := os.MkdirAll(filepath.Join(p.dataDir, dir), 0755); err != nil {
			return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to create layout", err)
		}
	}

	p.initOnce = true
	return nil
}

// Info reports filesystem usage for the data directory's volume.
func (p *FileProvider) Info() (*Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(p.dataDir, &st); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "statfs failed", err)
	}

	total := int64(st.Blocks) * int64(st.Bsize)
	available := int64(st.Bavail) * int64(st.Bsize)
	return &Info{
		Provider:  ProviderFilesystem,
		Used:      total - int64(st.Bfree)*int64(st.Bsize),
		Available: available,
		Total:     total,
	}, nil
}

// writeJSON writes a JSON file atomically via a temp file and rename, so a
// crashed write never leaves a truncated record behind.
func (p *FileProvider) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to marshal record", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to write record", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to commit record", err)
	}
	return nil
}

func (p *FileProvider) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// safeName flattens an id into a filesystem-safe file name.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, id)
}

func (p *FileProvider) documentPath(id string) string {
	return filepath.Join(p.dataDir, "documents", safeName(id)+".json")
}

// loadDocuments reads every document record from disk.
func (p *FileProvider) loadDocuments() ([]*models.Document, error) {
	entries, err := os.ReadDir(filepath.Join(p.dataDir, "documents"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read documents", err)
	}

	var docs []*models.Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var doc models.Document
		if err := p.readJSON(filepath.Join(p.dataDir, "documents", entry.Name()), &doc); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read document", err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func documentMatches(doc *models.Document, key string) bool {
	return string(doc.ID) == key ||
		doc.CloudID == key ||
		doc.Sync.CloudID == key ||
		identity.CanonicalDocumentKey(doc) == key
}

// GetDocument retrieves a document by local id, cloud id or canonical key.
func (p *FileProvider) GetDocument(key string) (*models.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var doc models.Document
	if err := p.readJSON(p.documentPath(key), &doc); err == nil {
		return &doc, nil
	}

	// Not stored under this key directly; match against cloud ids.
	docs, err := p.loadDocuments()
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if documentMatches(d, key) {
			return d, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrDocumentNotFound, fmt.Sprintf("document %s not found", key))
}

// ListDocuments returns all documents in a workspace, most recent first.
func (p *FileProvider) ListDocuments(workspaceID string) ([]*models.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	docs, err := p.loadDocuments()
	if err != nil {
		return nil, err
	}

	var matched []*models.Document
	for _, d := range docs {
		if string(d.WorkspaceID) == workspaceID {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt > matched[j].UpdatedAt })
	return matched, nil
}

// ListPendingDocuments returns all documents with queued local changes.
func (p *FileProvider) ListPendingDocuments() ([]*models.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	docs, err := p.loadDocuments()
	if err != nil {
		return nil, err
	}

	var pending []*models.Document
	for _, d := range docs {
		if d.PendingChanges {
			pending = append(pending, d)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].UpdatedAt < pending[j].UpdatedAt })
	return pending, nil
}

// PutDocument inserts or replaces a document record.
func (p *FileProvider) PutDocument(doc *models.Document) error {
	if doc.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "document id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeJSON(p.documentPath(string(doc.ID)), doc)
}

// DeleteDocument removes a document by local id, cloud id or canonical key.
func (p *FileProvider) DeleteDocument(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.documentPath(key)); err == nil {
		return nil
	}

	docs, err := p.loadDocuments()
	if err != nil {
		return err
	}
	for _, d := range docs {
		if documentMatches(d, key) {
			return os.Remove(p.documentPath(string(d.ID)))
		}
	}
	return apperrors.New(apperrors.ErrDocumentNotFound, fmt.Sprintf("document %s not found", key))
}

func (p *FileProvider) workspacePath(id string) string {
	return filepath.Join(p.dataDir, "workspaces", safeName(id)+".json")
}

// GetWorkspace retrieves a workspace by local id or cloud id.
func (p *FileProvider) GetWorkspace(key string) (*models.Workspace, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ws models.Workspace
	if err := p.readJSON(p.workspacePath(key), &ws); err == nil {
		return &ws, nil
	}

	workspaces, err := p.loadWorkspaces()
	if err != nil {
		return nil, err
	}
	for _, w := range workspaces {
		if string(w.ID) == key || w.CloudID == key {
			return w, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrWorkspaceNotFound, fmt.Sprintf("workspace %s not found", key))
}

func (p *FileProvider) loadWorkspaces() ([]*models.Workspace, error) {
	entries, err := os.ReadDir(filepath.Join(p.dataDir, "workspaces"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read workspaces", err)
	}

	var workspaces []*models.Workspace
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var ws models.Workspace
		if err := p.readJSON(filepath.Join(p.dataDir, "workspaces", entry.Name()), &ws); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read workspace", err)
		}
		workspaces = append(workspaces, &ws)
	}
	sort.Slice(workspaces, func(i, j int) bool { return workspaces[i].CreatedAt < workspaces[j].CreatedAt })
	return workspaces, nil
}

// ListWorkspaces returns all local workspaces.
func (p *FileProvider) ListWorkspaces() ([]*models.Workspace, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadWorkspaces()
}

// PutWorkspace inserts or replaces a workspace record.
func (p *FileProvider) PutWorkspace(ws *models.Workspace) error {
	if ws.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "workspace id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeJSON(p.workspacePath(string(ws.ID)), ws)
}

// DeleteWorkspace removes a workspace record.
func (p *FileProvider) DeleteWorkspace(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.workspacePath(key)); err == nil {
		return nil
	}

	workspaces, err := p.loadWorkspaces()
	if err != nil {
		return err
	}
	for _, w := range workspaces {
		if string(w.ID) == key || w.CloudID == key {
			return os.Remove(p.workspacePath(string(w.ID)))
		}
	}
	return apperrors.New(apperrors.ErrWorkspaceNotFound, fmt.Sprintf("workspace %s not found", key))
}

func (p *FileProvider) folderPath(id string) string {
	return filepath.Join(p.dataDir, "folders", safeName(id)+".json")
}

// PutFolder inserts or replaces a folder record.
func (p *FileProvider) PutFolder(folder *models.Folder) error {
	if folder.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "folder id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeJSON(p.folderPath(string(folder.ID)), folder)
}

// ListFolders returns all folders in a workspace.
func (p *FileProvider) ListFolders(workspaceID string) ([]*models.Folder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(p.dataDir, "folders"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read folders", err)
	}

	var folders []*models.Folder
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var f models.Folder
		if err := p.readJSON(filepath.Join(p.dataDir, "folders", entry.Name()), &f); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read folder", err)
		}
		if string(f.WorkspaceID) == workspaceID {
			folders = append(folders, &f)
		}
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

func (p *FileProvider) pendingPath() string {
	return filepath.Join(p.dataDir, "pending_changes.json")
}

func (p *FileProvider) loadPendingLog() (*pendingLog, error) {
	var pl pendingLog
	if err := p.readJSON(p.pendingPath(), &pl); err != nil {
		if os.IsNotExist(err) {
			return &pendingLog{NextID: 1}, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read pending log", err)
	}
	if pl.NextID == 0 {
		pl.NextID = 1
	}
	return &pl, nil
}

// AppendPendingChange appends a change to the durable log and returns its id.
func (p *FileProvider) AppendPendingChange(change *models.PendingChange) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl, err := p.loadPendingLog()
	if err != nil {
		return 0, err
	}

	change.ID = pl.NextID
	pl.NextID++
	pl.Entries = append(pl.Entries, change)

	if err := p.writeJSON(p.pendingPath(), pl); err != nil {
		return 0, err
	}
	return change.ID, nil
}

// ListPendingChanges returns all queued changes for an entity in creation order.
func (p *FileProvider) ListPendingChanges(entityID string) ([]*models.PendingChange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl, err := p.loadPendingLog()
	if err != nil {
		return nil, err
	}

	var changes []*models.PendingChange
	for _, c := range pl.Entries {
		if c.EntityID == entityID {
			changes = append(changes, c)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes, nil
}

// DeletePendingChanges removes applied entries up to uptoID. The rewrite is
// atomic, so a failure leaves the previous log intact for retry.
func (p *FileProvider) DeletePendingChanges(entityID string, uptoID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl, err := p.loadPendingLog()
	if err != nil {
		return err
	}

	kept := pl.Entries[:0]
	for _, c := range pl.Entries {
		if c.EntityID == entityID && c.ID <= uptoID {
			continue
		}
		kept = append(kept, c)
	}
	pl.Entries = kept

	return p.writeJSON(p.pendingPath(), pl)
}

func (p *FileProvider) conflictPath() string {
	return filepath.Join(p.dataDir, "conflict_log.json")
}

// AppendConflictLog journals a resolved conflict.
func (p *FileProvider) AppendConflictLog(entry *models.ConflictLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var entries []*models.ConflictLog
	if err := p.readJSON(p.conflictPath(), &entries); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read conflict log", err)
	}

	entry.ID = int64(len(entries) + 1)
	entries = append(entries, entry)
	return p.writeJSON(p.conflictPath(), entries)
}

// ListConflictLog returns journal entries for a document, oldest first.
func (p *FileProvider) ListConflictLog(documentID string) ([]*models.ConflictLog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var entries []*models.ConflictLog
	if err := p.readJSON(p.conflictPath(), &entries); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read conflict log", err)
	}

	var matched []*models.ConflictLog
	for _, e := range entries {
		if e.DocumentID == documentID {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// Close is a no-op for the filesystem backend.
func (p *FileProvider) Close() error {
	return nil
}
