package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProfileNotFound is returned when an authenticated identity has no
	// remote profile. Fatal for the current attempt.
	ErrProfileNotFound = errors.New("remote profile not found")
	// ErrAwaitingChoice is returned by Login while a conflict is pending.
	ErrAwaitingChoice = errors.New("a sync decision is pending")
	// ErrAlreadyResolved is returned by a second resolution or cancellation
	// of the same pending decision.
	ErrAlreadyResolved = errors.New("sync decision already resolved")
	// ErrBusy is returned by Login while another login is in flight.
	ErrBusy = errors.New("login already in progress")
	// ErrAlreadyAuthenticated is returned by Login when the session is
	// already authenticated.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

// SyncError is a clean failure: nothing was written to the remote profile,
// or every write completed and only a later step failed.
type SyncError struct {
	Step string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed at %s: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// PartialSyncError reports an overwrite that stopped part-way. The remote
// profile holds the completed steps but not the failed or later ones.
// Retrying the overwrite is safe since every step is a full replacement.
type PartialSyncError struct {
	Completed []string
	Failed    string
	Err       error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("partial sync: %s failed after [%s] completed: %v",
		e.Failed, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialSyncError) Unwrap() error { return e.Err }
