package registry

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/errcode"

	"github.com/jmgilman/go/imgex/errors"
)

// notFoundCodes are distribution error codes meaning the content does not exist.
var notFoundCodes = map[string]bool{
	"NAME_UNKNOWN":     true,
	"MANIFEST_UNKNOWN": true,
	"BLOB_UNKNOWN":     true,
}

// mapError converts an oras or transport error into a coded error.
// Errors that already carry a code pass through unchanged.
func mapError(ctx context.Context, op, ref string, err error) error {
	if err == nil {
		return nil
	}

	var coded errors.Error
	if errors.As(err, &coded) {
		return err
	}

	code := classify(ctx, err)
	return errors.WithContext(errors.Wrapf(err, code, "%s %s", op, ref), "reference", ref)
}

func classify(ctx context.Context, err error) errors.ErrorCode {
	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
		return errors.CodeCancelled
	}

	if stderrors.Is(err, content.ErrMismatchedDigest) || stderrors.Is(err, content.ErrTrailingData) {
		return errors.CodeDigestMismatch
	}

	if stderrors.Is(err, auth.ErrBasicCredentialNotFound) {
		return errors.CodeAuthenticationFailed
	}

	var resp *errcode.ErrorResponse
	if stderrors.As(err, &resp) {
		for _, e := range resp.Errors {
			if notFoundCodes[e.Code] {
				return errors.CodeImageNotFound
			}
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return errors.CodeAuthenticationFailed
		case resp.StatusCode == http.StatusNotFound:
			return errors.CodeImageNotFound
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return errors.CodeNetworkTransient
		}
		return errors.CodeInternal
	}

	if stderrors.Is(err, errdef.ErrNotFound) {
		return errors.CodeImageNotFound
	}

	if isTransient(err) {
		return errors.CodeNetworkTransient
	}
	return errors.CodeInternal
}

// isTransient reports whether err is a transport failure worth retrying.
func isTransient(err error) bool {
	if stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}
