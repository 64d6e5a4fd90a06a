package tus

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/revivelabs/go-tus/tus/netio"
)

// Outcome classifies the result of one chunk transfer attempt.
type Outcome int

const (
	// OutcomeAccepted means the server acknowledged exactly the bytes sent.
	OutcomeAccepted Outcome = iota

	// OutcomeOffsetMismatch means the server's offset diverged from the
	// client's. Never treated as success; the session must reconcile before
	// the next attempt.
	OutcomeOffsetMismatch

	// OutcomeRejected means the server refused the chunk definitively.
	OutcomeRejected

	// OutcomeTransportFailure means the attempt failed at the network level
	// and may be retried as-is.
	OutcomeTransportFailure
)

// ServerOffsetUnknown marks an offset mismatch where the server did not report
// its own offset; a status query is required to learn it.
const ServerOffsetUnknown int64 = -1

// ChunkResult is the outcome of a single chunk transfer attempt.
type ChunkResult struct {
	Outcome Outcome

	// NewOffset is the server's confirmed offset after an accepted chunk.
	NewOffset int64

	// ServerOffset is the offset the server reported on a mismatch, or
	// ServerOffsetUnknown.
	ServerOffset int64

	// Err carries the rejection or transport failure detail.
	Err error
}

// engine reads one byte range at a time from the source and transfers it.
// It never mutates the descriptor: offset bookkeeping stays with the session
// driving it, which keeps a chunk attempt safe to re-invoke.
type engine struct {
	transport netio.Transport
	chunkSize int64
	checksum  bool
	logger    log.Logger
}

// sendChunk transfers the range [ConfirmedOffset, ConfirmedOffset+n) where
// n = min(chunkSize, remaining). The returned error is non-nil only for local
// failures (source reads); network results are reported via ChunkResult.
func (e *engine) sendChunk(ctx context.Context, upload *Upload, source Source) (ChunkResult, error) {
	size := e.chunkSize
	if remaining := upload.Remaining(); remaining < size {
		size = remaining
	}

	buf := make([]byte, size)
	n, err := source.ReadAt(buf, upload.ConfirmedOffset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return ChunkResult{}, fmt.Errorf("read %d bytes at offset %d: %w", size, upload.ConfirmedOffset, err)
	}

	var checksum string
	if e.checksum {
		digest := sha1.Sum(buf)
		checksum = "sha1 " + base64.StdEncoding.EncodeToString(digest[:])
	}

	e.logger.Debugf("Sending chunk [%d, %d) of %d", upload.ConfirmedOffset, upload.ConfirmedOffset+size, upload.TotalLength)

	newOffset, err := e.transport.SendChunk(ctx, upload.Location, upload.ConfirmedOffset, buf, checksum)
	if err != nil {
		return e.classify(err), nil
	}

	if newOffset != upload.ConfirmedOffset+size {
		// The server acknowledged a different range than we sent, e.g. a
		// prior partial write the client never learned about.
		return ChunkResult{Outcome: OutcomeOffsetMismatch, ServerOffset: newOffset}, nil
	}

	return ChunkResult{Outcome: OutcomeAccepted, NewOffset: newOffset}, nil
}

func (e *engine) classify(err error) ChunkResult {
	var statusErr *netio.StatusError
	if !errors.As(err, &statusErr) {
		return ChunkResult{Outcome: OutcomeTransportFailure, Err: &TransportError{Err: err}}
	}

	if statusErr.Code == http.StatusConflict {
		// A wrong Upload-Offset header answers with 409 and no authoritative
		// offset; the session has to query for it.
		return ChunkResult{Outcome: OutcomeOffsetMismatch, ServerOffset: ServerOffsetUnknown}
	}

	if statusErr.Temporary() {
		return ChunkResult{Outcome: OutcomeTransportFailure, Err: &TransportError{Err: statusErr}}
	}

	return ChunkResult{Outcome: OutcomeRejected, Err: rejectionFromStatus(statusErr)}
}

// rejectionFromStatus maps a definitive protocol refusal to its typed reason.
func rejectionFromStatus(statusErr *netio.StatusError) *RejectionError {
	rejection := &RejectionError{Status: statusErr.Code, Detail: statusErr.Body}

	switch statusErr.Code {
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
		rejection.Reason = ErrSessionGone
	case http.StatusRequestEntityTooLarge:
		rejection.Reason = ErrUploadTooLarge
	case netio.StatusChecksumMismatch:
		rejection.Reason = ErrChecksumMismatch
	}

	return rejection
}
