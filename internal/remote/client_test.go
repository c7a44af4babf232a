// Package remote provides unit tests for the backend REST client.
package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
)

func testClient(url string) *Client {
	return NewClient(Options{
		BaseURL:   url,
		Token:     "test-token",
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	})
}

// TestMetadataPayloadProjection tests the allow-list projection.
func TestMetadataPayloadProjection(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
		want   map[string]interface{}
	}{
		{
			name: "camelCase with extraneous content",
			fields: map[string]interface{}{
				"title":    "T",
				"folderId": "f",
				"starred":  true,
				"content":  "X",
			},
			want: map[string]interface{}{
				"title":      "T",
				"folder_id":  "f",
				"is_starred": true,
			},
		},
		{
			name: "snake_case passthrough",
			fields: map[string]interface{}{
				"folder_id":  "f2",
				"is_starred": false,
				"content":    "body",
				"version":    7,
			},
			want: map[string]interface{}{
				"folder_id":  "f2",
				"is_starred": false,
			},
		},
		{
			name:   "content only projects to nothing",
			fields: map[string]interface{}{"content": "X"},
			want:   map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MetadataPayload(tt.fields)

			if _, hasContent := got["content"]; hasContent {
				t.Error("content must never appear in the metadata payload")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d fields, got %v", len(tt.want), got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Expected %s=%v, got %v", k, v, got[k])
				}
			}
		})
	}
}

// TestUpdateDocumentMetadataExcludesContent tests the wire payload.
func TestUpdateDocumentMetadataExcludesContent(t *testing.T) {
	var body map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Expected PATCH, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		json.NewEncoder(w).Encode(Document{ID: "d1", Title: "T"})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	doc, err := c.UpdateDocumentMetadata(context.Background(), "d1", map[string]interface{}{
		"title":    "T",
		"folderId": "f",
		"starred":  true,
		"content":  "X",
	})
	if err != nil {
		t.Fatalf("UpdateDocumentMetadata failed: %v", err)
	}
	if doc.ID != "d1" {
		t.Errorf("Expected updated document, got %+v", doc)
	}

	if _, ok := body["content"]; ok {
		t.Error("Request body must not contain content")
	}
	if body["title"] != "T" || body["folder_id"] != "f" || body["is_starred"] != true {
		t.Errorf("Unexpected request body: %v", body)
	}
}

// TestUpdateDocumentMetadataRejectsEmpty tests validation before I/O.
func TestUpdateDocumentMetadataRejectsEmpty(t *testing.T) {
	c := testClient("http://unused.invalid")
	_, err := c.UpdateDocumentMetadata(context.Background(), "d1", map[string]interface{}{"content": "X"})
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected VALIDATION_ERROR, got %v", err)
	}
}

// TestGetDocumentNotFound tests 404 mapping.
func TestGetDocumentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetDocument(context.Background(), "missing")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

// TestRetryOnServerError tests retry with eventual success.
func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(Document{ID: "d1"})
	}))
	defer srv.Close()

	doc, err := testClient(srv.URL).GetDocument(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Expected success after retries: %v", err)
	}
	if doc.ID != "d1" {
		t.Errorf("Unexpected document %+v", doc)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

// TestTransportErrorAfterRetries tests exhaustion mapping.
func TestTransportErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetDocument(context.Background(), "d1")
	if !apperrors.Is(err, apperrors.ErrTransport) {
		t.Errorf("Expected TRANSPORT_ERROR, got %v", err)
	}
}

// TestTransportErrorOnConnectionFailure tests unreachable backends.
func TestTransportErrorOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	_, err := testClient(srv.URL).GetDocument(context.Background(), "d1")
	if !apperrors.Is(err, apperrors.ErrTransport) {
		t.Errorf("Expected TRANSPORT_ERROR, got %v", err)
	}
}

// TestPushContent tests the content channel endpoint.
func TestPushContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["content"] != "# new" {
			t.Errorf("Expected content body, got %v", body)
		}
		json.NewEncoder(w).Encode(Document{ID: "d1", Content: "# new", Version: 2})
	}))
	defer srv.Close()

	doc, err := testClient(srv.URL).PushContent(context.Background(), "d1", "# new")
	if err != nil {
		t.Fatalf("PushContent failed: %v", err)
	}
	if doc.Version != 2 {
		t.Errorf("Expected version 2, got %d", doc.Version)
	}
}

// TestAuthorizationHeader tests bearer token propagation.
func TestAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(Document{ID: "d1"})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).GetDocument(context.Background(), "d1"); err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
}
