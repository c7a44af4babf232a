// Package errors provides unit tests for the error code taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

// TestNew tests creating an error with a code.
func TestNew(t *testing.T) {
	err := New(ErrNotFound, "document missing")

	if err.Code != ErrNotFound {
		t.Errorf("Expected code %s, got %s", ErrNotFound, err.Code)
	}

	want := "[NOT_FOUND] document missing"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

// TestWrap tests wrapping an underlying cause.
func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrTransport, "backend unreachable", cause)

	if !stderrors.Is(err, cause) {
		t.Error("Expected wrapped error to match cause via errors.Is")
	}

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
}

// TestIs tests code matching through wrapped errors.
func TestIs(t *testing.T) {
	inner := New(ErrTransport, "timeout")
	outer := Wrap(ErrSyncFailed, "flush failed", inner)

	if !Is(outer, ErrSyncFailed) {
		t.Error("Expected outer code to match")
	}

	if !Is(outer, ErrTransport) {
		t.Error("Expected inner code to match through wrapping")
	}

	if Is(outer, ErrNotFound) {
		t.Error("Did not expect NOT_FOUND to match")
	}

	if Is(nil, ErrTransport) {
		t.Error("Did not expect nil to match any code")
	}

	if Is(fmt.Errorf("plain"), ErrTransport) {
		t.Error("Did not expect a foreign error to match")
	}
}

// TestCode tests code extraction.
func TestCode(t *testing.T) {
	if got := Code(New(ErrValidation, "bad id")); got != ErrValidation {
		t.Errorf("Expected %s, got %s", ErrValidation, got)
	}

	if got := Code(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("Expected %s for foreign error, got %s", ErrInternal, got)
	}
}
