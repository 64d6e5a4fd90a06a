package tus

import (
	"context"
	"sync"

	"github.com/revivelabs/go-tus/tus/netio"
)

// memoryTransport is an in-memory tus server used by the session and client
// tests. It accepts chunks at its own confirmed offset and answers 409 for
// anything else, like a real server.
type memoryTransport struct {
	mu sync.Mutex

	location       string
	declaredLength int64
	offset         int64
	data           []byte

	// interceptors are consumed one per SendChunk call before the chunk is
	// applied; a non-nil return is handed back to the engine unchanged.
	interceptors []func(offset int64, body []byte) error

	chunkSizes  []int64
	statusCalls int
	sendCalls   int
	terminated  bool

	createdMetadata string
	createdLength   int64

	info      *netio.ServerInfo
	statusErr error
	createErr error
}

func newMemoryTransport(length int64) *memoryTransport {
	return &memoryTransport{
		location:       "https://upload.example.com/files/24e533e",
		declaredLength: length,
	}
}

// seed marks the first n bytes of content as already received by the server.
func (t *memoryTransport) seed(content []byte, n int64) {
	t.data = append(t.data, content[:n]...)
	t.offset = n
}

func (t *memoryTransport) failNext(errs ...error) {
	for _, err := range errs {
		e := err
		t.interceptors = append(t.interceptors, func(int64, []byte) error { return e })
	}
	// Let the calls after the scripted failures succeed.
	t.interceptors = append(t.interceptors, nil)
}

func (t *memoryTransport) CreateUpload(ctx context.Context, endpoint string, length int64, encodedMetadata string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.createErr != nil {
		return "", t.createErr
	}
	t.createdLength = length
	t.createdMetadata = encodedMetadata
	t.declaredLength = length
	return t.location, nil
}

func (t *memoryTransport) UploadStatus(ctx context.Context, location string) (netio.Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusCalls++
	if t.statusErr != nil {
		return netio.Status{}, t.statusErr
	}
	return netio.Status{Offset: t.offset, Length: t.declaredLength}, nil
}

func (t *memoryTransport) SendChunk(ctx context.Context, location string, offset int64, body []byte, checksum string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendCalls++

	if len(t.interceptors) > 0 {
		interceptor := t.interceptors[0]
		if len(t.interceptors) > 1 {
			t.interceptors = t.interceptors[1:]
		}
		if interceptor != nil {
			if err := interceptor(offset, body); err != nil {
				return 0, err
			}
		}
	}

	if offset != t.offset {
		return 0, &netio.StatusError{Code: 409, Body: "offset mismatch"}
	}

	t.data = append(t.data, body...)
	t.offset += int64(len(body))
	t.chunkSizes = append(t.chunkSizes, int64(len(body)))
	return t.offset, nil
}

func (t *memoryTransport) Terminate(ctx context.Context, location string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminated = true
	return nil
}

func (t *memoryTransport) ServerInfo(ctx context.Context, endpoint string) (*netio.ServerInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info != nil {
		return t.info, nil
	}
	return &netio.ServerInfo{
		Version:    netio.ProtocolVersion,
		Extensions: []string{netio.ExtensionCreation, netio.ExtensionTermination},
	}, nil
}
