// Package realtime tracks the collaborative websocket session held open for
// each active document. The collaborative protocol itself lives elsewhere;
// this package only owns connection lifecycle, so a workspace switch can
// release every session exactly once.
package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/logging"
)

const writeTimeout = 10 * time.Second

// Session is one open document session.
type Session struct {
	DocumentID string
	OpenedAt   time.Time

	conn *websocket.Conn
}

// Tracker owns the realtime sessions of the active workspace. Acquire is
// idempotent per document id; Release closes exactly once.
type Tracker struct {
	baseURL string
	dialer  *websocket.Dialer

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTracker creates a Tracker. An empty baseURL disables dialing: sessions
// are tracked but carry no connection, which is also the test mode.
func NewTracker(baseURL string) *Tracker {
	return &Tracker{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		sessions: make(map[string]*Session),
	}
}

// Acquire opens a session for a document. Acquiring an already-open document
// returns the existing session without dialing again.
func (t *Tracker) Acquire(ctx context.Context, documentID string) (*Session, error) {
	if documentID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "document id is required")
	}

	t.mu.Lock()
	if session, ok := t.sessions[documentID]; ok {
		t.mu.Unlock()
		return session, nil
	}
	t.mu.Unlock()

	var conn *websocket.Conn
	if t.baseURL != "" {
		var err error
		conn, _, err = t.dialer.DialContext(ctx, t.baseURL+"/documents/"+documentID, nil)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrTransport, "failed to open realtime session", err)
		}
	}

	session := &Session{
		DocumentID: documentID,
		OpenedAt:   time.Now(),
		conn:       conn,
	}

	t.mu.Lock()
	if existing, ok := t.sessions[documentID]; ok {
		// lost the race to a concurrent Acquire; keep the first session
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return existing, nil
	}
	t.sessions[documentID] = session
	t.mu.Unlock()

	logging.Debug("realtime session opened", map[string]interface{}{
		"document_id": documentID,
	})
	return session, nil
}

// Release closes a document's session. Releasing a document that has no
// session is a no-op, so callers never double-close.
func (t *Tracker) Release(documentID string) {
	t.mu.Lock()
	session, ok := t.sessions[documentID]
	if ok {
		delete(t.sessions, documentID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	session.close()
	logging.Debug("realtime session released", map[string]interface{}{
		"document_id": documentID,
	})
}

// ReleaseAll closes every tracked session, one close per document.
func (t *Tracker) ReleaseAll() {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*Session)
	t.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
	if len(sessions) > 0 {
		logging.Debug("realtime sessions released", map[string]interface{}{
			"count": len(sessions),
		})
	}
}

// Open returns the ids of the currently open documents.
func (t *Tracker) Open() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) close() {
	if s.conn == nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.conn.Close()
}
