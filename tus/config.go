package tus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/docker/go-units"
)

// DefaultChunkSize balances request overhead against retry granularity:
// coarser chunks waste more bytes on a retried attempt, finer chunks add
// round trips.
const DefaultChunkSize = 5 * 1024 * 1024

// Config holds the immutable configuration of a Client.
type Config struct {
	// Endpoint is the upload creation URL of the server.
	Endpoint string

	// ChunkSize is the fixed number of bytes transferred per chunk request.
	// Must be positive. Default: DefaultChunkSize.
	ChunkSize int64

	// MaxAttempts is the attempt budget per chunk, counting the first try.
	// Default: 3.
	MaxAttempts uint

	// RetryDelay is the base delay of the exponential backoff between chunk
	// attempts. Default: 1 second.
	RetryDelay time.Duration

	// RequestTimeout bounds every single network operation. A timed-out
	// request counts as a transport failure. Zero means no timeout.
	RequestTimeout time.Duration

	// Checksum enables the chunk integrity extension: every chunk request
	// carries a SHA-1 digest of its content. The server must advertise the
	// capability; if it does not, uploads fail with ErrChecksumUnsupported
	// rather than skipping verification.
	Checksum bool

	// Headers are added to every request, e.g. authorization.
	Headers map[string]string

	// HTTPClient overrides the HTTP client used for chunk transfers.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration for the given endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		ChunkSize:      DefaultChunkSize,
		MaxAttempts:    3,
		RetryDelay:     time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

func (c Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size %d: %w", c.ChunkSize, ErrInvalidChunkSize)
	}
	if c.MaxAttempts == 0 {
		return fmt.Errorf("per-chunk attempt budget must be positive")
	}
	return nil
}

// ParseChunkSize converts a human-readable size such as "5MB" or "512kb"
// into a chunk size in bytes, using binary (1024-based) units.
func ParseChunkSize(size string) (int64, error) {
	bytes, err := units.RAMInBytes(size)
	if err != nil {
		return 0, fmt.Errorf("parse chunk size: %w", err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("chunk size %q: %w", size, ErrInvalidChunkSize)
	}
	return bytes, nil
}
