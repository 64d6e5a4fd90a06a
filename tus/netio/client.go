// Package netio issues the protocol's HTTP requests: upload creation, offset
// status queries, chunk transfers, termination and capability probing.
package netio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Status is the server's authoritative view of one upload.
type Status struct {
	Offset int64
	Length int64
}

// ServerInfo describes the capabilities a server advertises on an OPTIONS probe.
type ServerInfo struct {
	Version            string
	SupportedVersions  []string
	Extensions         []string
	MaxSize            int64
	ChecksumAlgorithms []string
}

// Supports reports whether the server advertises the given extension.
func (i *ServerInfo) Supports(extension string) bool {
	for _, e := range i.Extensions {
		if e == extension {
			return true
		}
	}
	return false
}

// Transport is the capability the transfer engine and state machine need from
// the network layer. Implementations must be safe for concurrent use by
// independent upload sessions.
type Transport interface {
	// CreateUpload registers a new upload of the given total length and returns
	// its absolute location.
	CreateUpload(ctx context.Context, endpoint string, length int64, encodedMetadata string) (string, error)

	// UploadStatus queries the server's confirmed offset and declared length.
	UploadStatus(ctx context.Context, location string) (Status, error)

	// SendChunk transfers body starting at offset and returns the server's new
	// confirmed offset. checksum, when non-empty, is sent as the chunk's
	// integrity header verbatim.
	SendChunk(ctx context.Context, location string, offset int64, body []byte, checksum string) (int64, error)

	// Terminate deletes the upload on the server.
	Terminate(ctx context.Context, location string) error

	// ServerInfo probes the server's protocol capabilities.
	ServerInfo(ctx context.Context, endpoint string) (*ServerInfo, error)
}

// StatusError is a non-success protocol response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Temporary reports whether the response indicates a transient server-side
// condition worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// ErrMissingOffset is returned when a response lacks the offset header it must carry.
var ErrMissingOffset = errors.New("response is missing the Upload-Offset header")

// ErrMissingLocation is returned when a creation response lacks the Location header.
var ErrMissingLocation = errors.New("creation response is missing the Location header")

// ClientConfig configures a Client.
type ClientConfig struct {
	// RequestTimeout bounds every single network operation. Zero means no timeout.
	RequestTimeout time.Duration
	// Headers are added to every request, e.g. authorization.
	Headers map[string]string
	// ChunkHTTPClient is used for chunk transfer requests. If nil, a tuned
	// default client is created. Chunk requests are deliberately not routed
	// through the retrying client: retry policy for chunk bodies belongs to
	// the caller, which must reconcile offsets between attempts.
	ChunkHTTPClient *http.Client
}

// Client is the production Transport over HTTP.
type Client struct {
	retryClient *retryablehttp.Client
	chunkClient *http.Client
	config      ClientConfig
	logger      log.Logger
}

// NewClient creates a Transport backed by a retrying HTTP client for the
// idempotent protocol requests and a plain client for chunk transfers.
func NewClient(config ClientConfig, logger log.Logger) *Client {
	chunkClient := config.ChunkHTTPClient
	if chunkClient == nil {
		chunkClient = DefaultChunkHTTPClient()
	}

	return &Client{
		retryClient: retryhttp.NewClient(logger),
		chunkClient: chunkClient,
		config:      config,
		logger:      logger,
	}
}

// DefaultChunkHTTPClient creates an HTTP client tuned for chunk transfers.
// Per-request timeouts are handled via context, not a client-wide deadline.
func DefaultChunkHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// CreateUpload implements Transport.
func (c *Client) CreateUpload(ctx context.Context, endpoint string, length int64, encodedMetadata string) (string, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequest(http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	c.setCommonHeaders(req.Header)
	req.Header.Set(HeaderUploadLength, strconv.FormatInt(length, 10))
	if encodedMetadata != "" {
		req.Header.Set(HeaderUploadMetadata, encodedMetadata)
	}

	c.dumpRequest(req.Request, "Creation")

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return "", err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", unwrapError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", ErrMissingLocation
	}

	return resolveLocation(endpoint, location)
}

// UploadStatus implements Transport.
func (c *Client) UploadStatus(ctx context.Context, location string) (Status, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequest(http.MethodHead, location, nil)
	if err != nil {
		return Status{}, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	c.setCommonHeaders(req.Header)

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Status{}, unwrapError(resp)
	}

	offset, err := headerInt64(resp.Header, HeaderUploadOffset)
	if err != nil {
		return Status{}, ErrMissingOffset
	}
	// Upload-Length is absent for deferred-length uploads; report it as -1.
	length, err := headerInt64(resp.Header, HeaderUploadLength)
	if err != nil {
		length = -1
	}

	return Status{Offset: offset, Length: length}, nil
}

// SendChunk implements Transport.
func (c *Client) SendChunk(ctx context.Context, location string, offset int64, body []byte, checksum string) (int64, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, location, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.setCommonHeaders(req.Header)
	req.Header.Set("Content-Type", ContentTypeOffsetStream)
	req.Header.Set(HeaderUploadOffset, strconv.FormatInt(offset, 10))
	if checksum != "" {
		req.Header.Set(HeaderUploadChecksum, checksum)
	}
	req.ContentLength = int64(len(body))

	c.dumpRequest(req, "Chunk")

	resp, err := c.chunkClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, unwrapError(resp)
	}

	newOffset, err := headerInt64(resp.Header, HeaderUploadOffset)
	if err != nil {
		return 0, ErrMissingOffset
	}

	return newOffset, nil
}

// Terminate implements Transport.
func (c *Client) Terminate(ctx context.Context, location string) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequest(http.MethodDelete, location, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	c.setCommonHeaders(req.Header)

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(resp)
	}

	return nil
}

// ServerInfo implements Transport.
func (c *Client) ServerInfo(ctx context.Context, endpoint string) (*ServerInfo, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequest(http.MethodOptions, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, unwrapError(resp)
	}

	maxSize, err := headerInt64(resp.Header, HeaderTusMaxSize)
	if err != nil {
		maxSize = 0
	}

	return &ServerInfo{
		Version:            resp.Header.Get(HeaderTusResumable),
		SupportedVersions:  headerList(resp.Header, HeaderTusVersion),
		Extensions:         headerList(resp.Header, HeaderTusExtension),
		MaxSize:            maxSize,
		ChecksumAlgorithms: headerList(resp.Header, HeaderTusChecksumAlgorithm),
	}, nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

func (c *Client) setCommonHeaders(header http.Header) {
	header.Set(HeaderTusResumable, ProtocolVersion)
	for key, value := range c.config.Headers {
		header.Set(key, value)
	}
}

func (c *Client) dumpRequest(req *http.Request, label string) {
	dump, err := httputil.DumpRequest(req, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
		return
	}
	c.logger.Debugf("%s request dump: %s", label, string(dump))
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func unwrapError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return &StatusError{Code: resp.StatusCode}
	}
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func headerInt64(header http.Header, name string) (int64, error) {
	value := header.Get(name)
	if value == "" {
		return 0, fmt.Errorf("missing header %s", name)
	}
	return strconv.ParseInt(value, 10, 64)
}

func headerList(header http.Header, name string) []string {
	value := header.Get(name)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func resolveLocation(endpoint, location string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint URL: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse upload location: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
