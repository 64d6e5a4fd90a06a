package tus

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivelabs/go-tus/tus/netio"
)

// stubTransport answers SendChunk with a fixed offset or error and records
// what the engine sent.
type stubTransport struct {
	memoryTransport

	respondOffset int64
	respondErr    error

	gotOffset   int64
	gotBody     []byte
	gotChecksum string
}

func (t *stubTransport) SendChunk(ctx context.Context, location string, offset int64, body []byte, checksum string) (int64, error) {
	t.gotOffset = offset
	t.gotBody = append([]byte(nil), body...)
	t.gotChecksum = checksum
	return t.respondOffset, t.respondErr
}

func newTestEngine(transport netio.Transport, chunkSize int64, checksum bool) *engine {
	return &engine{
		transport: transport,
		chunkSize: chunkSize,
		checksum:  checksum,
		logger:    log.NewLogger(),
	}
}

func TestEngine_SendChunk_Accepted(t *testing.T) {
	content := testContent(10000)
	transport := &stubTransport{respondOffset: 8192}
	eng := newTestEngine(transport, 4096, false)

	upload := &Upload{Location: "https://example.com/files/1", TotalLength: 10000, ConfirmedOffset: 4096}
	result, err := eng.sendChunk(context.Background(), upload, NewBytesSource(content))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, int64(8192), result.NewOffset)
	assert.Equal(t, int64(4096), transport.gotOffset)
	assert.Equal(t, content[4096:8192], transport.gotBody)
	assert.Empty(t, transport.gotChecksum)
	// The engine never touches the descriptor; that is the session's job.
	assert.Equal(t, int64(4096), upload.ConfirmedOffset)
}

func TestEngine_SendChunk_FinalShortChunk(t *testing.T) {
	content := testContent(10000)
	transport := &stubTransport{respondOffset: 10000}
	eng := newTestEngine(transport, 4096, false)

	upload := &Upload{Location: "https://example.com/files/1", TotalLength: 10000, ConfirmedOffset: 8192}
	result, err := eng.sendChunk(context.Background(), upload, NewBytesSource(content))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Len(t, transport.gotBody, 1808)
	assert.Equal(t, content[8192:], transport.gotBody)
}

func TestEngine_SendChunk_ChecksumHeader(t *testing.T) {
	content := testContent(10000)
	transport := &stubTransport{respondOffset: 4096}
	eng := newTestEngine(transport, 4096, true)

	upload := &Upload{Location: "https://example.com/files/1", TotalLength: 10000}
	_, err := eng.sendChunk(context.Background(), upload, NewBytesSource(content))
	require.NoError(t, err)

	digest := sha1.Sum(content[:4096])
	assert.Equal(t, "sha1 "+base64.StdEncoding.EncodeToString(digest[:]), transport.gotChecksum)
}

func TestEngine_SendChunk_DivergentSuccessOffsetIsMismatch(t *testing.T) {
	content := testContent(10000)
	// Server acknowledges 6000 instead of the 8192 the client expects; a
	// prior partial write the client never learned about.
	transport := &stubTransport{respondOffset: 6000}
	eng := newTestEngine(transport, 4096, false)

	upload := &Upload{Location: "https://example.com/files/1", TotalLength: 10000, ConfirmedOffset: 4096}
	result, err := eng.sendChunk(context.Background(), upload, NewBytesSource(content))
	require.NoError(t, err)

	assert.Equal(t, OutcomeOffsetMismatch, result.Outcome)
	assert.Equal(t, int64(6000), result.ServerOffset)
}

func TestEngine_SendChunk_Classification(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		wantOutcome      Outcome
		wantServerOffset int64
		wantReason       error
	}{
		{
			name:             "409 is a mismatch with unknown server offset",
			err:              &netio.StatusError{Code: 409},
			wantOutcome:      OutcomeOffsetMismatch,
			wantServerOffset: ServerOffsetUnknown,
		},
		{
			name:        "404 is a definitive rejection",
			err:         &netio.StatusError{Code: 404},
			wantOutcome: OutcomeRejected,
			wantReason:  ErrSessionGone,
		},
		{
			name:        "410 is a definitive rejection",
			err:         &netio.StatusError{Code: 410},
			wantOutcome: OutcomeRejected,
			wantReason:  ErrSessionGone,
		},
		{
			name:        "413 is a definitive rejection",
			err:         &netio.StatusError{Code: 413},
			wantOutcome: OutcomeRejected,
			wantReason:  ErrUploadTooLarge,
		},
		{
			name:        "460 is a checksum rejection",
			err:         &netio.StatusError{Code: 460},
			wantOutcome: OutcomeRejected,
			wantReason:  ErrChecksumMismatch,
		},
		{
			name:        "500 is retryable",
			err:         &netio.StatusError{Code: 500},
			wantOutcome: OutcomeTransportFailure,
		},
		{
			name:        "network error is retryable",
			err:         errors.New("connection reset by peer"),
			wantOutcome: OutcomeTransportFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := testContent(10000)
			transport := &stubTransport{respondErr: tt.err}
			eng := newTestEngine(transport, 4096, false)

			upload := &Upload{Location: "https://example.com/files/1", TotalLength: 10000}
			result, err := eng.sendChunk(context.Background(), upload, NewBytesSource(content))
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, result.Outcome)
			if tt.wantOutcome == OutcomeOffsetMismatch {
				assert.Equal(t, tt.wantServerOffset, result.ServerOffset)
			}
			if tt.wantReason != nil {
				assert.ErrorIs(t, result.Err, tt.wantReason)
			}
			if tt.wantOutcome == OutcomeTransportFailure {
				var transportErr *TransportError
				assert.ErrorAs(t, result.Err, &transportErr)
			}
			assert.Equal(t, int64(0), upload.ConfirmedOffset)
		})
	}
}

func TestEngine_SendChunk_SourceReadFailure(t *testing.T) {
	transport := &stubTransport{}
	eng := newTestEngine(transport, 4096, false)

	upload := &Upload{Location: "https://example.com/files/1", TotalLength: 10000}
	_, err := eng.sendChunk(context.Background(), upload, unknownLengthSource{})
	assert.Error(t, err)
}
