package imgex

import (
	"fmt"

	"github.com/jmgilman/go/imgex/errors"
)

// Error describes a failed operation.
//
// The wrapped error carries an errors.ErrorCode identifying the failure
// kind; use errors.GetCode or errors.HasCode on an *Error directly.
type Error struct {
	// Op is the operation that failed, e.g. "get config" or "export".
	Op string

	// Reference is the image reference as given by the caller.
	Reference string

	// Err is the first fatal cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Reference, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the failure kind.
func (e *Error) Code() errors.ErrorCode {
	return errors.GetCode(e.Err)
}

// newError wraps err for op. Errors without a code are internal failures.
func newError(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	if errors.GetCode(err) == errors.CodeUnknown {
		err = errors.Wrap(err, errors.CodeInternal, "unexpected failure")
	}
	return &Error{Op: op, Reference: ref, Err: err}
}
