package errors

import (
	stderrors "errors"
	"fmt"
)

// New creates an Error with the given code and message.
// The classification is the default for the code.
func New(code ErrorCode, message string) Error {
	return &codedError{
		code:           code,
		classification: getDefaultClassification(code),
		message:        message,
	}
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. The cause stays reachable through
// errors.Is and errors.As.
//
// If err already carries an explicit classification override, it is kept.
// Returns nil if err is nil.
//
//	if err := repo.Fetch(ctx, desc); err != nil {
//	    return errors.Wrap(err, errors.CodeNetworkTransient, "failed to fetch layer")
//	}
func Wrap(err error, code ErrorCode, message string) Error {
	if err == nil {
		return nil
	}

	classification := getDefaultClassification(code)
	var coded *codedError
	if stderrors.As(err, &coded) && coded.code == code {
		classification = coded.classification
	}

	return &codedError{
		code:           code,
		classification: classification,
		message:        message,
		cause:          err,
	}
}

// Wrapf wraps err with a formatted message.
// Returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) Error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}
