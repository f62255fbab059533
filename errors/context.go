package errors

import stderrors "errors"

// WithContext returns a copy of err with key set to value.
// Errors without a code are converted with CodeUnknown.
// Returns nil if err is nil.
//
//	err = errors.WithContext(err, "digest", desc.Digest.String())
func WithContext(err error, key string, value interface{}) Error {
	if err == nil {
		return nil
	}

	base := asCoded(err)
	ctx := copyContext(base.context)
	if ctx == nil {
		ctx = make(map[string]interface{}, 1)
	}
	ctx[key] = value

	return &codedError{
		code:           base.code,
		classification: base.classification,
		message:        base.message,
		context:        ctx,
		cause:          base.cause,
	}
}

// WithClassification returns a copy of err with the classification overridden.
// Errors without a code are converted with CodeUnknown.
// Returns nil if err is nil.
func WithClassification(err error, classification ErrorClassification) Error {
	if err == nil {
		return nil
	}

	base := asCoded(err)
	return &codedError{
		code:           base.code,
		classification: classification,
		message:        base.message,
		context:        copyContext(base.context),
		cause:          base.cause,
	}
}

func asCoded(err error) *codedError {
	var coded *codedError
	if stderrors.As(err, &coded) {
		return coded
	}
	return &codedError{
		code:           CodeUnknown,
		classification: ClassificationPermanent,
		message:        err.Error(),
		cause:          err,
	}
}
