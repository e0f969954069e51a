package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"sync"

	"github.com/julianstephens/nudge/internal/logger"
)

// Taxonomy shared by the store, the native backends and the reconciliation engine.
var (
	// ErrNotFound means the item is already gone. Always non-fatal for cancellation paths.
	ErrNotFound = stderrors.New("not found")
	// ErrPermissionDenied is surfaced as a permission transition, not as a failure.
	ErrPermissionDenied = stderrors.New("permission denied")
	// ErrBackendUnavailable means the operation was skipped and will be retried on the next pass.
	ErrBackendUnavailable = stderrors.New("backend unavailable")
	// ErrDataCorruption marks an unparseable persisted value. The affected row is skipped.
	ErrDataCorruption = stderrors.New("data corruption")
	// ErrCapacity is returned by a backend that has reached its registration cap.
	ErrCapacity = stderrors.New("backend capacity reached")
)

var (
	mu              sync.RWMutex
	notFoundAliases []error
)

// RegisterNotFound teaches IsNotFound about a backend-specific not-found value.
// Adapters call this from init.
func RegisterNotFound(err error) {
	mu.Lock()
	defer mu.Unlock()
	notFoundAliases = append(notFoundAliases, err)
}

// IsNotFound reports whether err means the target no longer exists.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrNotFound) {
		return true
	}
	mu.RLock()
	defer mu.RUnlock()
	for _, alias := range notFoundAliases {
		if stderrors.Is(err, alias) {
			return true
		}
	}
	return false
}

// IgnoreNotFound returns nil for not-found errors and err otherwise.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
