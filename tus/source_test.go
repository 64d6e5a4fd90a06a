package tus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource(t *testing.T) {
	content := testContent(10000)
	path := filepath.Join(t.TempDir(), "archive.bin")
	require.NoError(t, os.WriteFile(path, content, 0600))

	source, err := NewFileSource(path)
	require.NoError(t, err)
	defer source.Close()

	assert.Equal(t, int64(10000), source.Size())
	assert.Equal(t, "archive.bin", source.Name())

	buf := make([]byte, 1808)
	n, err := source.ReadAt(buf, 8192)
	require.NoError(t, err)
	assert.Equal(t, 1808, n)
	assert.Equal(t, content[8192:], buf)
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}

func TestFileSource_Directory(t *testing.T) {
	_, err := NewFileSource(t.TempDir())
	assert.Error(t, err)
}

func TestBytesSource(t *testing.T) {
	content := testContent(100)
	source := NewBytesSource(content)

	assert.Equal(t, int64(100), source.Size())

	buf := make([]byte, 25)
	n, err := source.ReadAt(buf, 50)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, content[50:75], buf)
}
