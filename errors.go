package vigil

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed options, principals,
	// or subjects detected before any storage work.
	ErrInvalidArgument = errors.New("vigil: invalid argument")

	// ErrAccessDenied is returned when an authorization check fails.
	ErrAccessDenied = errors.New("vigil: access denied")

	// ErrNotFound is returned when a document, path, or property cannot
	// be found.
	ErrNotFound = errors.New("vigil: not found")

	// ErrUnsupportedOperation is returned for writes the engine refuses
	// to perform, such as blind array overwrites or direct ACL writes.
	ErrUnsupportedOperation = errors.New("vigil: unsupported operation")

	// ErrSequencing is returned when a conditioned write lost a race on
	// the sequence or index-generation counter. Retryable.
	ErrSequencing = errors.New("vigil: sequencing conflict")

	// ErrVersionOutOfDate is returned when a versioned update's expected
	// version no longer matches. Retryable.
	ErrVersionOutOfDate = errors.New("vigil: version out of date")

	// ErrDuplicateKey is returned when a write violates a unique
	// property. Retryable.
	ErrDuplicateKey = errors.New("vigil: duplicate key")

	// ErrExists is returned when creating something that already exists.
	// Retryable.
	ErrExists = errors.New("vigil: already exists")

	// ErrScript is returned when an after-chain trigger surfaces an
	// explicit inline result error.
	ErrScript = errors.New("vigil: script error")
)

// Fault decorates a sentinel with the resource and path it occurred at, so
// callers can attribute a failure to a specific property.
type Fault struct {
	Err      error
	Resource string
	Path     string
	Reason   string
}

func (f *Fault) Error() string {
	msg := f.Err.Error()
	if f.Path != "" {
		msg += ": path " + f.Path
	}
	if f.Resource != "" {
		msg += ": resource " + f.Resource
	}
	if f.Reason != "" {
		msg += ": " + f.Reason
	}

	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps a sentinel with attribution.
func NewFault(err error, resource, path, reason string) *Fault {
	return &Fault{Err: err, Resource: resource, Path: path, Reason: reason}
}

// IsRetryable reports whether err is a conflict a caller may retry by
// re-running the whole read-compute-write cycle.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSequencing) ||
		errors.Is(err, ErrVersionOutOfDate) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrExists)
}

func wrap(verb string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("vigil: %s: %w", verb, err)
}
