package realtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
	"github.com/kimhsiao/mdreader/core/internal/logging"
)

func init() {
	logging.Init(io.Discard, logging.LevelError)
}

func TestAcquireRequiresDocumentID(t *testing.T) {
	tracker := NewTracker("")

	_, err := tracker.Acquire(context.Background(), "")
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestAcquireIsIdempotent(t *testing.T) {
	tracker := NewTracker("")

	first, err := tracker.Acquire(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	second, err := tracker.Acquire(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if first != second {
		t.Error("second Acquire returned a different session")
	}
	if len(tracker.Open()) != 1 {
		t.Errorf("open sessions = %d, want 1", len(tracker.Open()))
	}
}

func TestReleaseIsExactlyOnce(t *testing.T) {
	tracker := NewTracker("")

	if _, err := tracker.Acquire(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	tracker.Release("doc-1")
	if len(tracker.Open()) != 0 {
		t.Errorf("open sessions = %d, want 0 after release", len(tracker.Open()))
	}

	// releasing again, or releasing an unknown document, is a no-op
	tracker.Release("doc-1")
	tracker.Release("never-acquired")
}

func TestReleaseAll(t *testing.T) {
	tracker := NewTracker("")

	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		if _, err := tracker.Acquire(context.Background(), id); err != nil {
			t.Fatalf("Acquire(%s) error = %v", id, err)
		}
	}

	open := tracker.Open()
	sort.Strings(open)
	if len(open) != 3 || open[0] != "doc-1" {
		t.Fatalf("open = %v, want three documents", open)
	}

	tracker.ReleaseAll()
	if len(tracker.Open()) != 0 {
		t.Errorf("open sessions = %d, want 0 after ReleaseAll", len(tracker.Open()))
	}
}

func TestAcquireDialsServer(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var mu sync.Mutex
	var paths []string
	closed := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// read until the client sends its close frame
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		conn.Close()
		select {
		case closed <- struct{}{}:
		default:
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	tracker := NewTracker(wsURL)

	if _, err := tracker.Acquire(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	mu.Lock()
	if len(paths) != 1 || paths[0] != "/documents/doc-1" {
		t.Errorf("dialed paths = %v, want [/documents/doc-1]", paths)
	}
	mu.Unlock()

	tracker.Release("doc-1")
	<-closed
}

func TestAcquireDialFailure(t *testing.T) {
	// nothing listens here
	tracker := NewTracker("ws://127.0.0.1:1")

	_, err := tracker.Acquire(context.Background(), "doc-1")
	if !apperrors.Is(err, apperrors.ErrTransport) {
		t.Errorf("error = %v, want TRANSPORT_ERROR", err)
	}
	if len(tracker.Open()) != 0 {
		t.Error("failed acquire left a tracked session")
	}
}
