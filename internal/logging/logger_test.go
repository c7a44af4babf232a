// Package logging provides unit tests for the structured logger.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// TestLoggerOutput tests that entries serialize as JSON lines.
func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("storage provider selected", map[string]interface{}{"provider": "sqlite"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON entry: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("Expected INFO level, got %s", entry.Level)
	}

	if entry.Message != "storage provider selected" {
		t.Errorf("Unexpected message: %s", entry.Message)
	}

	if entry.Context["provider"] != "sqlite" {
		t.Errorf("Expected provider context, got %v", entry.Context)
	}
}

// TestLoggerMinLevel tests that entries below the minimum level are dropped.
func TestLoggerMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")
	l.Error("kept", fmt.Errorf("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 entries, got %d: %q", len(lines), buf.String())
	}
}

// TestLoggerError tests error serialization.
func TestLoggerError(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Error("sync failed", fmt.Errorf("connection refused"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON entry: %v", err)
	}

	if entry.Error != "connection refused" {
		t.Errorf("Expected error field, got %q", entry.Error)
	}
}

// TestContextMerge tests merging of multiple context maps.
func TestContextMerge(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Info("msg",
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON entry: %v", err)
	}

	if len(entry.Context) != 2 {
		t.Errorf("Expected merged context with 2 keys, got %v", entry.Context)
	}
}
