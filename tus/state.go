package tus

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/revivelabs/go-tus/tus/metadata"
	"github.com/revivelabs/go-tus/tus/netio"
)

// State is a phase of one upload session's lifecycle.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateResuming
	StateTransferring
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateResuming:
		return "resuming"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// errReconciled makes a reconciled offset mismatch re-enter the retry loop;
// the renewed attempt counts against the chunk's attempt budget.
var errReconciled = errors.New("offset reconciled with server")

// session drives one upload through its lifecycle. It exclusively owns the
// descriptor for the duration of the run; a failed run leaves the descriptor's
// last confirmed offset intact and resumable.
type session struct {
	config     Config
	transport  netio.Transport
	engine     *engine
	logger     log.Logger
	state      State
	onProgress func(*Upload)
}

func newSession(config Config, transport netio.Transport, onProgress func(*Upload), logger log.Logger) *session {
	return &session{
		config:    config,
		transport: transport,
		engine: &engine{
			transport: transport,
			chunkSize: config.ChunkSize,
			checksum:  config.Checksum,
			logger:    logger,
		},
		logger:     logger,
		state:      StateIdle,
		onProgress: onProgress,
	}
}

// create registers the upload on the server and returns a fresh descriptor at
// offset zero. Creation is not retried here: the caller decides whether a
// failed creation is worth another run.
func (s *session) create(ctx context.Context, source Source, meta map[string]string) (*Upload, error) {
	s.state = StateCreating

	length := source.Size()
	if length < 0 {
		s.state = StateFailed
		return nil, ErrUnknownLength
	}

	encodedMeta, err := metadata.Encode(meta)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	s.logger.Debugf("Creating upload of %s at %s", units.HumanSizeWithPrecision(float64(length), 3), s.config.Endpoint)

	location, err := s.transport.CreateUpload(ctx, s.config.Endpoint, length, encodedMeta)
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("create upload: %w", protocolError(err))
	}

	s.logger.Infof("Upload created at %s", location)
	s.state = StateTransferring

	return &Upload{
		Location:        location,
		TotalLength:     length,
		ConfirmedOffset: 0,
		Metadata:        meta,
	}, nil
}

// resume reconciles the descriptor with the server's authoritative offset.
func (s *session) resume(ctx context.Context, upload *Upload) error {
	s.state = StateResuming

	status, err := s.transport.UploadStatus(ctx, upload.Location)
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("query upload status: %w", protocolError(err))
	}

	if status.Length >= 0 && status.Length != upload.TotalLength {
		s.state = StateFailed
		return fmt.Errorf("server declares %d bytes, descriptor records %d: %w",
			status.Length, upload.TotalLength, ErrLengthConflict)
	}

	if err := upload.Reconcile(status.Offset); err != nil {
		s.state = StateFailed
		return err
	}
	s.notify(upload)

	s.logger.Infof("Resuming upload at offset %d of %d", upload.ConfirmedOffset, upload.TotalLength)
	s.state = StateTransferring

	return nil
}

// transfer runs the chunk loop until the upload completes or fails. Chunks are
// strictly sequential in ascending offset order; each chunk's start depends on
// the previous acknowledgment.
func (s *session) transfer(ctx context.Context, upload *Upload, source Source) error {
	if s.state != StateTransferring {
		return fmt.Errorf("transfer is not valid in state %s", s.state)
	}

	for !upload.Complete() {
		if err := s.transferChunk(ctx, upload, source); err != nil {
			s.state = StateFailed
			return err
		}
	}

	s.logger.Infof("Upload complete: %d bytes confirmed", upload.ConfirmedOffset)
	s.state = StateCompleted

	return nil
}

// transferChunk sends the next chunk with a bounded exponential-backoff retry
// budget. Transport failures retry the same range; offset mismatches reconcile
// first and retry from the corrected offset; rejections stop immediately.
func (s *session) transferChunk(ctx context.Context, upload *Upload, source Source) error {
	chunkStart := upload.ConfirmedOffset

	err := retry.Do(
		func() error {
			return s.attemptChunk(ctx, upload, source)
		},
		retry.Context(ctx),
		retry.Attempts(s.config.MaxAttempts),
		retry.Delay(s.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			s.logger.Warnf("Chunk at offset %d attempt %d/%d failed: %s",
				upload.ConfirmedOffset, attempt+1, s.config.MaxAttempts, err)
		}),
	)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// Cancelled between attempts; the descriptor still holds the last
		// confirmed offset and stays resumable.
		return ctxErr
	}

	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection
	}
	if errors.Is(err, ErrRegressiveOffset) || errors.Is(err, ErrOffsetExceedsLength) {
		return err
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) || errors.Is(err, errReconciled) {
		return fmt.Errorf("chunk at offset %d failed after %d attempts (%s): %w",
			chunkStart, s.config.MaxAttempts, err, ErrTransferAborted)
	}

	return err
}

func (s *session) attemptChunk(ctx context.Context, upload *Upload, source Source) error {
	result, err := s.engine.sendChunk(ctx, upload, source)
	if err != nil {
		// Source read failure; not a network condition, never retried.
		return retry.Unrecoverable(err)
	}

	switch result.Outcome {
	case OutcomeAccepted:
		if err := upload.Advance(result.NewOffset); err != nil {
			return retry.Unrecoverable(err)
		}
		s.notify(upload)
		return nil

	case OutcomeOffsetMismatch:
		serverOffset := result.ServerOffset
		if serverOffset == ServerOffsetUnknown {
			status, err := s.transport.UploadStatus(ctx, upload.Location)
			if err != nil {
				mapped := protocolError(err)
				var rejection *RejectionError
				if errors.As(mapped, &rejection) {
					return retry.Unrecoverable(mapped)
				}
				return mapped
			}
			serverOffset = status.Offset
		}
		s.logger.Warnf("Server offset %d diverged from confirmed offset %d, reconciling",
			serverOffset, upload.ConfirmedOffset)
		if err := upload.Reconcile(serverOffset); err != nil {
			return retry.Unrecoverable(err)
		}
		s.notify(upload)
		return errReconciled

	case OutcomeRejected:
		return retry.Unrecoverable(result.Err)

	default:
		return result.Err
	}
}

func (s *session) notify(upload *Upload) {
	if s.onProgress != nil {
		s.onProgress(upload)
	}
}

// protocolError maps a transport-layer error to the public taxonomy:
// definitive refusals become RejectionError, everything else is a retryable
// TransportError.
func protocolError(err error) error {
	var statusErr *netio.StatusError
	if errors.As(err, &statusErr) && !statusErr.Temporary() {
		return rejectionFromStatus(statusErr)
	}
	return &TransportError{Err: err}
}
