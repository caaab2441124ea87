package engine

import (
	"errors"
	"fmt"
	"strings"
)

// The engine distinguishes five error categories. Definition and validation
// errors collect multiple findings and are reported together; storage errors
// wrap the driver error and abort the enclosing transaction; authorization
// and request integrity failures carry no inner error.

// DefinitionError reports all malformed lines of a table definition at once.
// No partial metadata is installed when it is returned.
type DefinitionError struct {
	Lines []LineError
}

// LineError is one finding of the definition parser.
type LineError struct {
	Line int // 1-based line number in the definition block
	Err  error
}

func (e *DefinitionError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = fmt.Sprintf("line %d: %v", l.Line, l.Err)
	}
	return "invalid table definition: " + strings.Join(parts, "; ")
}

// ValidationError is a per-field input rejection. Field validation collects
// one ValidationError per failing column without blocking other columns.
type ValidationError struct {
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Column == "" {
		return e.Reason
	}
	return e.Column + ": " + e.Reason
}

// StorageError wraps a failure of the backing store. It always triggers a
// rollback of the enclosing transaction.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// storagef wraps err as a StorageError for operation op.
func storagef(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// AuthorizationDenied marks a capability check failure. The action is
// skipped with an inline message; processing of the table continues.
type AuthorizationDenied struct {
	Action string
	Table  string
}

func (e *AuthorizationDenied) Error() string {
	return fmt.Sprintf("not authorized to %s on table %s", e.Action, e.Table)
}

// RequestIntegrityError marks a tampered or out-of-context request, such as
// a media selector with a broken capability token. Rejected outright.
type RequestIntegrityError struct {
	Reason string
}

func (e *RequestIntegrityError) Error() string { return "request rejected: " + e.Reason }

// Sentinel errors for conditions callers branch on.
var (
	// ErrNoSuchRecord is returned when a record addressed by ID is gone.
	ErrNoSuchRecord = errors.New("no such record")

	// ErrReservedTable rejects user tables colliding with engine tables.
	ErrReservedTable = errors.New("reserved table name")

	// ErrNoPrimaryKey marks operations requiring the single numeric
	// primary key fast path on a table without one.
	ErrNoPrimaryKey = errors.New("table has no single numeric primary key")
)

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
