package errors

import "fmt"

// Error is an error carrying a code, a classification, and optional context.
type Error interface {
	error

	// Code returns the failure kind.
	Code() ErrorCode

	// Classification reports whether the failure is retryable.
	Classification() ErrorClassification

	// Message returns the message without the wrapped cause.
	Message() string

	// Context returns a copy of the attached metadata, or nil.
	Context() map[string]interface{}

	// Unwrap returns the wrapped cause, if any.
	Unwrap() error
}

type codedError struct {
	code           ErrorCode
	classification ErrorClassification
	message        string
	context        map[string]interface{}
	cause          error
}

// Error formats as "[CODE] message" or "[CODE] message: cause".
func (e *codedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *codedError) Code() ErrorCode {
	return e.code
}

func (e *codedError) Classification() ErrorClassification {
	return e.classification
}

func (e *codedError) Message() string {
	return e.message
}

func (e *codedError) Context() map[string]interface{} {
	return copyContext(e.context)
}

func (e *codedError) Unwrap() error {
	return e.cause
}

func copyContext(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
