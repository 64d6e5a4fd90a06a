// Package tus implements a client for the tus 1.0.0 resumable upload
// protocol: it transfers a source to a server in fixed-size chunks, survives
// connection loss, and resumes an interrupted upload from the exact byte
// offset the server last acknowledged.
package tus

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/revivelabs/go-tus/tus/netio"
)

// Client is the public entry point. It is safe to run independent uploads
// concurrently through one Client; each call drives its own session and
// descriptor, sharing only the underlying transport.
type Client struct {
	// OnProgress, when set, is called with a snapshot of the descriptor after
	// every successful offset advance or reconciliation. This is the point at
	// which callers should persist the descriptor for crash recovery.
	OnProgress func(Upload)

	config    Config
	transport netio.Transport
	logger    log.Logger
}

// NewClient creates a Client talking to the endpoint named in config.
func NewClient(config Config, logger log.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	transport := netio.NewClient(netio.ClientConfig{
		RequestTimeout:  config.RequestTimeout,
		Headers:         config.Headers,
		ChunkHTTPClient: config.HTTPClient,
	}, logger)

	return NewClientWithTransport(config, transport, logger)
}

// NewClientWithTransport creates a Client over a caller-provided transport,
// e.g. an in-memory fake in tests.
func NewClientWithTransport(config Config, transport netio.Transport, logger log.Logger) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Client{
		config:    config,
		transport: transport,
		logger:    logger,
	}, nil
}

// Create registers a new upload for source on the server and returns its
// descriptor at offset zero. No data is transferred.
func (c *Client) Create(ctx context.Context, source Source, meta map[string]string) (*Upload, error) {
	if err := c.checkChecksumSupport(ctx); err != nil {
		return nil, err
	}

	sess := c.newSession()
	return sess.create(ctx, source, c.withDefaultFilename(source, meta))
}

// Resume reconciles the descriptor with the server's confirmed offset and
// transfers the remaining bytes to completion or failure. The descriptor's
// recorded length must match both the source and the server.
func (c *Client) Resume(ctx context.Context, upload *Upload, source Source) (*Upload, error) {
	if upload == nil || upload.Location == "" {
		return nil, fmt.Errorf("descriptor has no upload location")
	}
	if size := source.Size(); size >= 0 && size != upload.TotalLength {
		return nil, fmt.Errorf("source is %d bytes, descriptor records %d: %w", size, upload.TotalLength, ErrLengthConflict)
	}
	if err := c.checkChecksumSupport(ctx); err != nil {
		return nil, err
	}

	sess := c.newSession()
	if err := sess.resume(ctx, upload); err != nil {
		return nil, err
	}
	if err := sess.transfer(ctx, upload, source); err != nil {
		return nil, err
	}

	return upload, nil
}

// Upload creates a new upload for source and transfers it to completion or
// failure. On failure the returned error wraps the typed reason; when a
// descriptor was already created it stays resumable via Resume.
func (c *Client) Upload(ctx context.Context, source Source, meta map[string]string) (*Upload, error) {
	if err := c.checkChecksumSupport(ctx); err != nil {
		return nil, err
	}

	sess := c.newSession()
	upload, err := sess.create(ctx, source, c.withDefaultFilename(source, meta))
	if err != nil {
		return nil, err
	}

	if err := sess.transfer(ctx, upload, source); err != nil {
		// The descriptor is valid up to its last confirmed offset.
		return upload, err
	}

	return upload, nil
}

// Terminate deletes the upload from the server. The descriptor is unusable
// afterwards.
func (c *Client) Terminate(ctx context.Context, upload *Upload) error {
	if upload == nil || upload.Location == "" {
		return fmt.Errorf("descriptor has no upload location")
	}
	if err := c.transport.Terminate(ctx, upload.Location); err != nil {
		return fmt.Errorf("terminate upload: %w", protocolError(err))
	}
	return nil
}

// ServerInfo probes the server's protocol version, extensions and limits.
func (c *Client) ServerInfo(ctx context.Context) (*netio.ServerInfo, error) {
	info, err := c.transport.ServerInfo(ctx, c.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("query server info: %w", protocolError(err))
	}
	return info, nil
}

func (c *Client) newSession() *session {
	var onProgress func(*Upload)
	if c.OnProgress != nil {
		callback := c.OnProgress
		onProgress = func(u *Upload) {
			callback(*u)
		}
	}
	return newSession(c.config, c.transport, onProgress, c.logger)
}

// checkChecksumSupport fails closed when chunk checksums are requested but
// the server does not advertise SHA-1 support.
func (c *Client) checkChecksumSupport(ctx context.Context) error {
	if !c.config.Checksum {
		return nil
	}

	info, err := c.ServerInfo(ctx)
	if err != nil {
		return err
	}
	if !info.Supports(netio.ExtensionChecksum) {
		return ErrChecksumUnsupported
	}
	for _, algorithm := range info.ChecksumAlgorithms {
		if algorithm == "sha1" {
			return nil
		}
	}
	if len(info.ChecksumAlgorithms) == 0 {
		// Extension advertised without an algorithm list; SHA-1 is the
		// protocol default.
		return nil
	}
	return ErrChecksumUnsupported
}

// withDefaultFilename fills in "filename" metadata from a file-backed source
// when the caller did not provide one. The caller's map is never mutated.
func (c *Client) withDefaultFilename(source Source, meta map[string]string) map[string]string {
	named, ok := source.(namedSource)
	if !ok {
		return meta
	}
	if _, exists := meta["filename"]; exists {
		return meta
	}

	withName := make(map[string]string, len(meta)+1)
	for key, value := range meta {
		withName[key] = value
	}
	withName["filename"] = named.Name()
	return withName
}
