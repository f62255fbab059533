package errors

import stderrors "errors"

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode extracts the code of the outermost Error in err's chain.
// Returns CodeUnknown if err is nil or carries no code.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var coded Error
	if stderrors.As(err, &coded) {
		return coded.Code()
	}
	return CodeUnknown
}

// HasCode reports whether GetCode(err) equals code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetClassification extracts the classification of the outermost Error in err's chain.
// Returns ClassificationPermanent if err is nil or carries no code.
func GetClassification(err error) ErrorClassification {
	if err == nil {
		return ClassificationPermanent
	}

	var coded Error
	if stderrors.As(err, &coded) {
		return coded.Classification()
	}
	return ClassificationPermanent
}

// IsRetryable returns true if err is classified as retryable.
func IsRetryable(err error) bool {
	return GetClassification(err).IsRetryable()
}
