package errors

// ErrorClassification indicates whether an error should trigger a retry.
type ErrorClassification string

const (
	// ClassificationRetryable marks temporary failures that may succeed on retry.
	ClassificationRetryable ErrorClassification = "RETRYABLE"

	// ClassificationPermanent marks failures that will not succeed on retry.
	ClassificationPermanent ErrorClassification = "PERMANENT"
)

// IsRetryable returns true if the classification indicates retry should be attempted.
func (c ErrorClassification) IsRetryable() bool {
	return c == ClassificationRetryable
}

var defaultClassifications = map[ErrorCode]ErrorClassification{
	CodeNetworkTransient: ClassificationRetryable,

	CodeInvalidReference:        ClassificationPermanent,
	CodeInvalidCredentialFormat: ClassificationPermanent,
	CodeAuthenticationFailed:    ClassificationPermanent,
	CodeImageNotFound:           ClassificationPermanent,
	CodeNoMatchingPlatform:      ClassificationPermanent,
	CodeDigestMismatch:          ClassificationPermanent,
	CodeArchiveWriteFailed:      ClassificationPermanent,
	CodeCancelled:               ClassificationPermanent,
	CodeInvalidConfig:           ClassificationPermanent,
	CodeInternal:                ClassificationPermanent,
	CodeUnknown:                 ClassificationPermanent,
}

// getDefaultClassification returns the default classification for an error code.
// Unmapped codes are permanent.
func getDefaultClassification(code ErrorCode) ErrorClassification {
	if class, ok := defaultClassifications[code]; ok {
		return class
	}
	return ClassificationPermanent
}
