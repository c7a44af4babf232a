// Package remote talks to the cloud backend over its REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/mdreader/core/internal/errors"
)

// Document is the backend's document representation.
type Document struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	FolderID    string `json:"folder_id,omitempty"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	IsStarred   bool   `json:"is_starred"`
	Version     int    `json:"version"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Member is a workspace member as reported by the backend.
type Member struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Options configures the Client.
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client is a retrying JSON client for the document backend. Transport
// failures and 5xx responses are retried with exponential backoff; after the
// retry budget they surface as TRANSPORT_ERROR so the sync manager keeps the
// document pending instead of raising a conflict.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a Client with sane defaults for unset options.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// GetDocument fetches the authoritative document state.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+id, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments fetches all documents of a workspace.
func (c *Client) ListDocuments(ctx context.Context, workspaceID string) ([]*Document, error) {
	var resp struct {
		Documents []*Document `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workspaces/"+workspaceID+"/documents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// ListWorkspaceMembers fetches the member list of a cloud workspace.
func (c *Client) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]*Member, error) {
	var resp struct {
		Members []*Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workspaces/"+workspaceID+"/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// CreateDocument creates a document in a workspace and returns the backend's
// record, which carries the cloud-issued id.
func (c *Client) CreateDocument(ctx context.Context, workspaceID string, doc *Document) (*Document, error) {
	var created Document
	if err := c.do(ctx, http.MethodPost, "/api/workspaces/"+workspaceID+"/documents", doc, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateDocumentMetadata patches metadata fields of a document. The request
// body is the allow-listed projection of fields; document content is never
// transmitted here. Content flows through PushContent only, so REST updates
// cannot race live collaborative edits.
func (c *Client) UpdateDocumentMetadata(ctx context.Context, id string, fields map[string]interface{}) (*Document, error) {
	payload := MetadataPayload(fields)
	if len(payload) == 0 {
		return nil, apperrors.New(apperrors.ErrValidation, "no metadata fields to update")
	}

	var updated Document
	if err := c.do(ctx, http.MethodPatch, "/api/documents/"+id, payload, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// PushContent replaces the document body on the backend. This is the sync
// channel for offline edits, distinct from the metadata PATCH surface.
func (c *Client) PushContent(ctx context.Context, id string, content string) (*Document, error) {
	body := map[string]interface{}{"content": content}

	var updated Document
	if err := c.do(ctx, http.MethodPut, "/api/documents/"+id+"/content", body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteDocument removes a document from the backend.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/documents/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, "failed to encode request", err)
		}
	}

	url := c.baseURL + path

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, "failed to build request", err)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := c.sleep(ctx, attempt+1); waitErr != nil {
					return apperrors.Wrap(apperrors.ErrTransport, "request cancelled", waitErr)
				}
				continue
			}
			return apperrors.Wrap(apperrors.ErrTransport, fmt.Sprintf("%s %s failed", method, path), err)
		}

		retry, doneErr := c.handleResponse(resp, method, path, out)
		if !retry {
			return doneErr
		}
		if attempt >= c.maxRetries {
			return doneErr
		}
		if waitErr := c.sleep(ctx, attempt+1); waitErr != nil {
			return apperrors.Wrap(apperrors.ErrTransport, "request cancelled", waitErr)
		}
	}
}

// handleResponse consumes the body and maps the status to an error.
// The bool result asks the caller to retry.
func (c *Client) handleResponse(resp *http.Response, method, path string, out interface{}) (bool, error) {
	defer resp.Body.Close()
	data, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil {
			return false, apperrors.Wrap(apperrors.ErrTransport, "failed to read response", readErr)
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return false, apperrors.Wrap(apperrors.ErrSyncFailed, "failed to decode response", err)
			}
		}
		return false, nil

	case resp.StatusCode == http.StatusNotFound:
		return false, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s %s: not found", method, path))

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return false, apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("%s %s: rejected: %s", method, path, strings.TrimSpace(string(data))))

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, apperrors.New(apperrors.ErrTransport,
			fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode))

	default:
		return false, apperrors.New(apperrors.ErrSyncFailed,
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data))))
	}
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.baseDelay << uint(attempt-1)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
