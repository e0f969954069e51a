package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "simple error", err: errors.New("something went wrong"), expected: "Error: something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Format(tt.err); result != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	backendGone := errors.New("task not found in queue")
	RegisterNotFound(backendGone)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: ErrNotFound, want: true},
		{name: "wrapped sentinel", err: fmt.Errorf("cancel r1: %w", ErrNotFound), want: true},
		{name: "registered alias", err: fmt.Errorf("delete: %w", backendGone), want: true},
		{name: "unavailable", err: fmt.Errorf("cancel: %w", ErrBackendUnavailable), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIgnoreNotFound(t *testing.T) {
	if err := IgnoreNotFound(ErrNotFound); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := IgnoreNotFound(ErrDataCorruption); !errors.Is(err, ErrDataCorruption) {
		t.Errorf("expected data corruption to pass through, got %v", err)
	}
}
