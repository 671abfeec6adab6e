package sync

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks malformed or missing required request fields. Never
// retried; surfaced to the caller immediately.
var ErrInvalidInput = errors.New("invalid input")

// ErrMissingRequiredData marks undo input lacking the correlation fields
// needed to reverse anything.
var ErrMissingRequiredData = errors.New("missing required data")

// SyncError is the fatal mid-run failure raised when issue creation fails.
// The run aborts; previously created issues and page updates are not rolled
// back automatically.
type SyncError struct {
	TaskID  string
	Summary string
	Reason  string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync aborted: task %q (%s): %s", e.Summary, e.TaskID, e.Reason)
}

// UndoError is reserved for catastrophic undo-setup failures; per-item undo
// failures are captured as failed result entries instead.
type UndoError struct {
	Reason string
}

func (e *UndoError) Error() string {
	return "undo failed: " + e.Reason
}
