package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/identity"
	"github.com/kimhsiao/mdreader/core/internal/models"
)

// SQLiteProvider persists records in a local SQLite database. It is the
// default backend on every platform.
type SQLiteProvider struct {
	dataDir  string
	db       *sql.DB
	initOnce bool
	mu       sync.Mutex

	// Prepared statement cache, keyed by query string. Statements are
	// prepared on first use and reused to avoid repeated SQL parsing.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewSQLiteProvider constructs the SQLite backend rooted at dataDir.
// Construction only validates the directory; Init opens the database.
func NewSQLiteProvider(dataDir string) (*SQLiteProvider, error) {
	if dataDir == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "data directory is required")
	}
	return &SQLiteProvider{dataDir: dataDir}, nil
}

// Name returns the provider name.
func (p *SQLiteProvider) Name() string {
	return ProviderSQLite
}

// Init opens the database, enables WAL mode and applies the schema.
// Calling Init more than once is an error.
func (p *SQLiteProvider) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initOnce {
		return apperrors.New(apperrors.ErrInternal, "storage provider already initialized")
	}

	if err := os.MkdirAll(p.dataDir, 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to create data directory", err)
	}

	dbPath := filepath.Join(p.dataDir, "mdreader.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to open database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to enable WAL mode", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to enable foreign keys", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return apperrors.Wrap(apperrors.ErrMigration, "failed to apply schema", err)
	}

	p.db = db
	p.initOnce = true
	return nil
}

func applySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		folder_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'markdown',
		is_starred INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		pending_changes INTEGER NOT NULL DEFAULT 0,
		cloud_id TEXT NOT NULL DEFAULT '',
		sync_cloud_id TEXT NOT NULL DEFAULT '',
		canonical_key TEXT NOT NULL,
		last_synced_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_workspace ON documents(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_documents_canonical ON documents(canonical_key);

	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cloud_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_folders_workspace ON folders(workspace_id);

	CREATE TABLE IF NOT EXISTS pending_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_changes_entity ON pending_changes(entity_id);

	CREATE TABLE IF NOT EXISTS conflict_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL,
		local_timestamp INTEGER NOT NULL,
		remote_timestamp INTEGER NOT NULL,
		resolution TEXT NOT NULL,
		detected_at INTEGER NOT NULL,
		resolved_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conflict_log_document ON conflict_log(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// prepareStmt gets or creates a prepared statement from the cache.
func (p *SQLiteProvider) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := p.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := p.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := p.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Info reports database size. Available/Total are unknown for SQLite.
func (p *SQLiteProvider) Info() (*Info, error) {
	var pageCount, pageSize int64
	if err := p.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read page count", err)
	}
	if err := p.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read page size", err)
	}
	return &Info{Provider: ProviderSQLite, Used: pageCount * pageSize}, nil
}

const documentColumns = `id, workspace_id, folder_id, title, content, content_type,
	is_starred, version, pending_changes, cloud_id, sync_cloud_id,
	last_synced_at, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.FolderID, &d.Title, &d.Content,
		&d.ContentType, &d.IsStarred, &d.Version, &d.PendingChanges,
		&d.CloudID, &d.Sync.CloudID, &d.Sync.LastSyncedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument retrieves a document by local id, cloud id or canonical key.
func (p *SQLiteProvider) GetDocument(key string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + `
	FROM documents WHERE id = ? OR cloud_id = ? OR sync_cloud_id = ? OR canonical_key = ?`

	stmt, err := p.prepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to prepare lookup", err)
	}

	doc, err := scanDocument(stmt.QueryRow(key, key, key, key))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrDocumentNotFound, fmt.Sprintf("document %s not found", key))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get document", err)
	}
	return doc, nil
}

// ListDocuments returns all documents in a workspace, most recent first.
func (p *SQLiteProvider) ListDocuments(workspaceID string) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
	FROM documents WHERE workspace_id = ? ORDER BY updated_at DESC`
	return p.queryDocuments(query, workspaceID)
}

// ListPendingDocuments returns all documents with queued local changes.
func (p *SQLiteProvider) ListPendingDocuments() ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
	FROM documents WHERE pending_changes = 1 ORDER BY updated_at ASC`
	return p.queryDocuments(query)
}

func (p *SQLiteProvider) queryDocuments(query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list documents", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// PutDocument inserts or replaces a document record.
func (p *SQLiteProvider) PutDocument(doc *models.Document) error {
	if doc.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "document id is required")
	}

	query := `
	INSERT INTO documents (id, workspace_id, folder_id, title, content, content_type,
		is_starred, version, pending_changes, cloud_id, sync_cloud_id, canonical_key,
		last_synced_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		workspace_id = excluded.workspace_id,
		folder_id = excluded.folder_id,
		title = excluded.title,
		content = excluded.content,
		content_type = excluded.content_type,
		is_starred = excluded.is_starred,
		version = excluded.version,
		pending_changes = excluded.pending_changes,
		cloud_id = excluded.cloud_id,
		sync_cloud_id = excluded.sync_cloud_id,
		canonical_key = excluded.canonical_key,
		last_synced_at = excluded.last_synced_at,
		updated_at = excluded.updated_at
	`
	_, err := p.db.Exec(query, doc.ID, doc.WorkspaceID, doc.FolderID, doc.Title,
		doc.Content, doc.ContentType, doc.IsStarred, doc.Version, doc.PendingChanges,
		doc.CloudID, doc.Sync.CloudID, identity.CanonicalDocumentKey(doc),
		doc.Sync.LastSyncedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to put document", err)
	}
	return nil
}

// DeleteDocument removes a document by local id, cloud id or canonical key.
func (p *SQLiteProvider) DeleteDocument(key string) error {
	res, err := p.db.Exec(`DELETE FROM documents WHERE id = ? OR cloud_id = ? OR sync_cloud_id = ? OR canonical_key = ?`,
		key, key, key, key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrDocumentNotFound, fmt.Sprintf("document %s not found", key))
	}
	return nil
}

// GetWorkspace retrieves a workspace by local id, cloud id or canonical key.
func (p *SQLiteProvider) GetWorkspace(key string) (*models.Workspace, error) {
	query := `SELECT id, name, cloud_id, created_at, updated_at
	FROM workspaces WHERE id = ? OR cloud_id = ?`

	stmt, err := p.prepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to prepare lookup", err)
	}

	var ws models.Workspace
	err = stmt.QueryRow(key, key).Scan(&ws.ID, &ws.Name, &ws.CloudID, &ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrWorkspaceNotFound, fmt.Sprintf("workspace %s not found", key))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get workspace", err)
	}
	return &ws, nil
}

// ListWorkspaces returns all local workspaces.
func (p *SQLiteProvider) ListWorkspaces() ([]*models.Workspace, error) {
	rows, err := p.db.Query(`SELECT id, name, cloud_id, created_at, updated_at FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list workspaces", err)
	}
	defer rows.Close()

	var workspaces []*models.Workspace
	for rows.Next() {
		var ws models.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CloudID, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan workspace", err)
		}
		workspaces = append(workspaces, &ws)
	}
	return workspaces, rows.Err()
}

// PutWorkspace inserts or replaces a workspace record.
func (p *SQLiteProvider) PutWorkspace(ws *models.Workspace) error {
	if ws.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "workspace id is required")
	}

	query := `
	INSERT INTO workspaces (id, name, cloud_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		cloud_id = excluded.cloud_id,
		updated_at = excluded.updated_at
	`
	_, err := p.db.Exec(query, ws.ID, ws.Name, ws.CloudID, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to put workspace", err)
	}
	return nil
}

// DeleteWorkspace removes a workspace record.
func (p *SQLiteProvider) DeleteWorkspace(key string) error {
	res, err := p.db.Exec(`DELETE FROM workspaces WHERE id = ? OR cloud_id = ?`, key, key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete workspace", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrWorkspaceNotFound, fmt.Sprintf("workspace %s not found", key))
	}
	return nil
}

// PutFolder inserts or replaces a folder record.
func (p *SQLiteProvider) PutFolder(folder *models.Folder) error {
	if folder.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "folder id is required")
	}

	query := `
	INSERT INTO folders (id, workspace_id, parent_id, name, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		workspace_id = excluded.workspace_id,
		parent_id = excluded.parent_id,
		name = excluded.name
	`
	_, err := p.db.Exec(query, folder.ID, folder.WorkspaceID, folder.ParentID, folder.Name, folder.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to put folder", err)
	}
	return nil
}

// ListFolders returns all folders in a workspace.
func (p *SQLiteProvider) ListFolders(workspaceID string) ([]*models.Folder, error) {
	rows, err := p.db.Query(`SELECT id, workspace_id, parent_id, name, created_at
		FROM folders WHERE workspace_id = ? ORDER BY name ASC`, workspaceID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list folders", err)
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.WorkspaceID, &f.ParentID, &f.Name, &f.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan folder", err)
		}
		folders = append(folders, &f)
	}
	return folders, rows.Err()
}

// AppendPendingChange appends a change to the durable log and returns its id.
func (p *SQLiteProvider) AppendPendingChange(change *models.PendingChange) (int64, error) {
	query := `
	INSERT INTO pending_changes (entity_type, entity_id, operation, payload, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	res, err := p.db.Exec(query, change.EntityType, change.EntityID, change.Operation,
		string(change.Payload), change.CreatedAt)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to append pending change", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to read change id", err)
	}
	change.ID = id
	return id, nil
}

// ListPendingChanges returns all queued changes for an entity in creation order.
func (p *SQLiteProvider) ListPendingChanges(entityID string) ([]*models.PendingChange, error) {
	query := `SELECT id, entity_type, entity_id, operation, payload, created_at
	FROM pending_changes WHERE entity_id = ? ORDER BY id ASC`

	stmt, err := p.prepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to prepare lookup", err)
	}

	rows, err := stmt.Query(entityID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list pending changes", err)
	}
	defer rows.Close()

	var changes []*models.PendingChange
	for rows.Next() {
		var c models.PendingChange
		var payload string
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.Operation, &payload, &c.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan pending change", err)
		}
		c.Payload = []byte(payload)
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

// DeletePendingChanges removes all applied entries for an entity up to and
// including uptoID, in one transaction. Entries above uptoID stay queued.
func (p *SQLiteProvider) DeletePendingChanges(entityID string, uptoID int64) error {
	tx, err := p.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}

	if _, err := tx.Exec(`DELETE FROM pending_changes WHERE entity_id = ? AND id <= ?`, entityID, uptoID); err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete pending changes", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit delete", err)
	}
	return nil
}

// AppendConflictLog journals a resolved conflict.
func (p *SQLiteProvider) AppendConflictLog(entry *models.ConflictLog) error {
	query := `
	INSERT INTO conflict_log (document_id, local_timestamp, remote_timestamp, resolution, detected_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := p.db.Exec(query, entry.DocumentID, entry.LocalTimestamp, entry.RemoteTimestamp,
		entry.Resolution, entry.DetectedAt, entry.ResolvedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to append conflict log", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ListConflictLog returns journal entries for a document, oldest first.
func (p *SQLiteProvider) ListConflictLog(documentID string) ([]*models.ConflictLog, error) {
	rows, err := p.db.Query(`SELECT id, document_id, local_timestamp, remote_timestamp, resolution, detected_at, resolved_at
		FROM conflict_log WHERE document_id = ? ORDER BY id ASC`, documentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list conflict log", err)
	}
	defer rows.Close()

	var entries []*models.ConflictLog
	for rows.Next() {
		var e models.ConflictLog
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.LocalTimestamp, &e.RemoteTimestamp,
			&e.Resolution, &e.DetectedAt, &e.ResolvedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan conflict log", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes cached statements and the database.
func (p *SQLiteProvider) Close() error {
	p.stmtCache.Range(func(key, value interface{}) bool {
		value.(*sql.Stmt).Close()
		return true
	})
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
