package errors

// ErrorCode identifies a failure kind.
// Codes are strings so they serialize naturally and read well in logs.
type ErrorCode string

const (
	// CodeInvalidReference indicates the image reference could not be parsed.
	CodeInvalidReference ErrorCode = "INVALID_REFERENCE"

	// CodeInvalidCredentialFormat indicates a credential payload was malformed or unrecognized.
	CodeInvalidCredentialFormat ErrorCode = "INVALID_CREDENTIAL_FORMAT"

	// CodeAuthenticationFailed indicates the registry rejected the credentials,
	// including after one re-resolution attempt.
	CodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"

	// CodeImageNotFound indicates the repository, tag, or digest does not exist.
	CodeImageNotFound ErrorCode = "IMAGE_NOT_FOUND"

	// CodeNoMatchingPlatform indicates a multi-platform index has no entry for the target platform.
	CodeNoMatchingPlatform ErrorCode = "NO_MATCHING_PLATFORM"

	// CodeNetworkTransient indicates a transient transport failure.
	// Returned to callers once retries are exhausted.
	CodeNetworkTransient ErrorCode = "NETWORK_TRANSIENT"

	// CodeDigestMismatch indicates fetched content did not hash to its declared digest.
	CodeDigestMismatch ErrorCode = "DIGEST_MISMATCH"

	// CodeArchiveWriteFailed indicates the output archive could not be written.
	CodeArchiveWriteFailed ErrorCode = "ARCHIVE_WRITE_FAILED"

	// CodeCancelled indicates the caller cancelled the operation.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeInvalidConfig indicates the exporter was configured with invalid options.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown is reported for errors that carry no code.
	CodeUnknown ErrorCode = "UNKNOWN"
)
