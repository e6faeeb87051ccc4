// Package apperr defines the error taxonomy shared by every component:
// sentinel values that callers can compare with errors.Is, wrapped with
// stack-trace-carrying context at component boundaries.
package apperr

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Sentinel error kinds, see SPEC_FULL.md §7.
var (
	// ErrInvalidInput covers unreadable audio, wrong sample rate at the
	// DSP boundary, malformed fingerprint files, and metadata YAML
	// missing required fields.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrDuplicateReference is returned when registering a name that
	// already exists in the fingerprint store.
	ErrDuplicateReference = stderrors.New("duplicate reference")

	// ErrStoreUnavailable is returned when a backing store cannot be
	// reached. Fatal at startup; reported-and-continue during batch jobs.
	ErrStoreUnavailable = stderrors.New("store unavailable")

	// ErrStoreConflict is a unique-constraint violation on a posting.
	// Callers treat it as an intentional no-op (deduplication).
	ErrStoreConflict = stderrors.New("store conflict")

	// ErrTimeout is returned when an audio-decode or metadata-probe
	// operation exceeds its hard limit.
	ErrTimeout = stderrors.New("operation timed out")
)

// ErrNoMatch is not an error despite the name (kept consistent with the
// sentinels above): it is the text reported when a query hit no
// postings. The matcher itself signals that case with a zero-value
// Result (Matched=false), not with an error value.
const ErrNoMatch = "no match"

// Wrap attaches file/line and an optional stack trace to err, or returns
// nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Is reports whether err matches target, unwrapping pkg/errors wraps.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
