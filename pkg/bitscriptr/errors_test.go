package bitscriptr

import (
	"errors"
	"testing"
)

func TestErrorWrapsSentinel(t *testing.T) {
	err := Errorf("Compose", "need 2 constituents, got %d: %w", 1, ErrArity)
	if !errors.Is(err, ErrArity) {
		t.Fatalf("expected errors.Is(err, ErrArity), got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Op != "Compose" {
		t.Fatalf("unexpected op %q", e.Op)
	}
	want := "bitscriptr.Compose: need 2 constituents, got 1: bitscriptr: composition arity"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap("Assemble", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := Wrap("Assemble", ErrUnsupportedOutput)
	if !errors.Is(err, ErrUnsupportedOutput) {
		t.Fatalf("expected ErrUnsupportedOutput, got %v", err)
	}
}

func TestLibraryVersionDefault(t *testing.T) {
	if got := LibraryVersion(); got != Version {
		t.Fatalf("expected %q, got %q", Version, got)
	}
}
