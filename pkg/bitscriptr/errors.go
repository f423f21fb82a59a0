package bitscriptr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigIncomplete indicates a condition or pattern configuration is
	// missing a field or carries an out-of-range value.
	ErrConfigIncomplete = errors.New("bitscriptr: incomplete configuration")

	// ErrKeyRejected indicates a key string was not accepted by the classifier.
	ErrKeyRejected = errors.New("bitscriptr: key rejected")

	// ErrArity indicates a composition received the wrong number of constituents
	// or an out-of-range threshold.
	ErrArity = errors.New("bitscriptr: composition arity")

	// ErrUnsound indicates the policy compiler reported the expression as
	// violating consensus or standardness rules.
	ErrUnsound = errors.New("bitscriptr: unsound policy")

	// ErrUnsupportedOutput indicates a descriptor output kind other than wsh.
	ErrUnsupportedOutput = errors.New("bitscriptr: unsupported output type")

	// ErrEntryNotFound indicates a registry lookup for an unknown id or name.
	ErrEntryNotFound = errors.New("bitscriptr: entry not found")

	// ErrInvalidDocument indicates a policy document failed schema or
	// reference checks.
	ErrInvalidDocument = errors.New("bitscriptr: invalid document")

	// ErrCompilerUnavailable indicates the configured policy compiler could not
	// be loaded.
	ErrCompilerUnavailable = errors.New("bitscriptr: compiler unavailable")
)

// Error wraps an underlying error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bitscriptr.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf returns an *Error for op whose message is formatted from format and
// args. A %w verb in format keeps the wrapped sentinel reachable via errors.Is.
func Errorf(op string, format string, args ...any) error {
	return &Error{
		Op:  op,
		Err: fmt.Errorf(format, args...),
	}
}

// Wrap annotates err with op. It returns nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
