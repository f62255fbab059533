// Package errors provides the coded error type used throughout imgex.
//
// Every failure surfaced by the exporter carries an ErrorCode identifying one
// of a small set of failure kinds (invalid reference, authentication failure,
// digest mismatch, and so on) and an ErrorClassification telling callers
// whether retrying the operation could succeed.
//
// Errors are immutable. Helpers such as WithContext and WithClassification
// return new values and never modify the receiver.
//
//	err := errors.New(errors.CodeImageNotFound, "manifest unknown")
//	err = errors.WithContext(err, "reference", "docker.io/library/alpine:3.19")
//	if errors.GetCode(err) == errors.CodeImageNotFound {
//	    // handle missing image
//	}
//
// ToJSON renders any error as a flat ErrorResponse, which is what the CLI
// prints with --json and what the C boundary stores as the last error.
package errors
