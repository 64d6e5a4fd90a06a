package tus

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/pathutil"
)

// Source is the range-read capability the transfer engine needs: random-access
// reads of arbitrary byte ranges plus the total length. Reads may be called
// multiple times for the same range when a chunk is retried.
type Source interface {
	// ReadAt reads len(p) bytes starting at off, following io.ReaderAt semantics.
	ReadAt(p []byte, off int64) (int, error)

	// Size returns the total length of the source in bytes, or a negative
	// value when the length is unknown.
	Size() int64
}

// namedSource is implemented by sources that know their file name. The client
// uses it to fill in default "filename" metadata at creation.
type namedSource interface {
	Name() string
}

// FileSource reads chunks from a file on disk.
type FileSource struct {
	file *os.File
	size int64
	name string
}

// NewFileSource opens the file at path for chunked reading.
func NewFileSource(path string) (*FileSource, error) {
	exists, err := pathutil.NewPathChecker().IsPathExists(path)
	if err != nil {
		return nil, fmt.Errorf("check path: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("file %s does not exist", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &FileSource{
		file: file,
		size: info.Size(),
		name: filepath.Base(path),
	}, nil
}

// ReadAt implements Source.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size implements Source.
func (s *FileSource) Size() int64 {
	return s.size
}

// Name returns the base name of the underlying file.
func (s *FileSource) Name() string {
	return s.name
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}

// BytesSource serves chunks from an in-memory byte slice.
type BytesSource struct {
	reader *bytes.Reader
}

// NewBytesSource creates a Source over data.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{reader: bytes.NewReader(data)}
}

// ReadAt implements Source.
func (s *BytesSource) ReadAt(p []byte, off int64) (int, error) {
	return s.reader.ReadAt(p, off)
}

// Size implements Source.
func (s *BytesSource) Size() int64 {
	return s.reader.Size()
}
