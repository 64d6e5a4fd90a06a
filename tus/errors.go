package tus

import (
	"errors"
	"fmt"
)

// Configuration errors. Returned before any network traffic happens.
var (
	// ErrInvalidChunkSize means the configured chunk size is zero or negative.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrMissingEndpoint means no creation endpoint was configured.
	ErrMissingEndpoint = errors.New("upload endpoint is empty")

	// ErrUnknownLength means the source cannot report its total length.
	// Deferred-length uploads are not supported; creation fails fast instead
	// of assuming a length.
	ErrUnknownLength = errors.New("source length is unknown")

	// ErrChecksumUnsupported means chunk checksums were requested but the
	// server does not advertise the checksum capability for SHA-1.
	ErrChecksumUnsupported = errors.New("server does not support SHA-1 chunk checksums")
)

// Descriptor invariant violations. These are always fatal: they indicate a bug
// or a broken server, never a retryable condition.
var (
	// ErrRegressiveOffset means an acknowledgment tried to move the confirmed
	// offset backwards.
	ErrRegressiveOffset = errors.New("new offset is behind the confirmed offset")

	// ErrOffsetExceedsLength means an offset beyond the declared total length
	// was reported.
	ErrOffsetExceedsLength = errors.New("offset exceeds the declared total length")
)

// Terminal transfer failures.
var (
	// ErrSessionGone means the server no longer knows the upload; the session
	// cannot be resumed and a fresh creation is required.
	ErrSessionGone = errors.New("upload session no longer exists on the server")

	// ErrLengthConflict means the server's declared length differs from the
	// descriptor's recorded length.
	ErrLengthConflict = errors.New("server-declared length conflicts with the descriptor")

	// ErrTransferAborted means the per-chunk retry budget was exhausted by
	// transport failures. The descriptor's confirmed offset is still valid
	// and the session may be resumed later.
	ErrTransferAborted = errors.New("transfer aborted after exhausting retry attempts")

	// ErrChecksumMismatch means the server rejected a chunk because its
	// checksum did not match the transferred bytes.
	ErrChecksumMismatch = errors.New("server reported a chunk checksum mismatch")

	// ErrUploadTooLarge means the declared length exceeds what the server accepts.
	ErrUploadTooLarge = errors.New("upload is larger than the server allows")
)

// RejectionError is a protocol-definitive refusal by the server. It is never
// retried: the caller must either resume later from the descriptor or, for
// ErrSessionGone, start over with a fresh creation.
type RejectionError struct {
	// Reason is one of the sentinel errors above, or nil for refusals that
	// have no more specific classification.
	Reason error
	// Status is the HTTP status code the server answered with.
	Status int
	// Detail is the response body, if any.
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("upload rejected (HTTP %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("upload rejected (HTTP %d): %s", e.Status, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// TransportError is a network-level failure: connection errors, timeouts and
// transient server statuses. It is retryable; the descriptor is untouched.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %s", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
