package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendBytesCreatesAndGrows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "d.frontier")

	size, err := AppendBytes(path, []byte("https://a.test/|0\n"))
	require.Nil(t, err)
	assert.Equal(t, int64(18), size)

	size, err = AppendBytes(path, []byte("https://a.test/x|1\n"))
	require.Nil(t, err)
	assert.Equal(t, int64(37), size)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "https://a.test/|0\nhttps://a.test/x|1\n", string(data))
}

func TestReadLineAtWalksLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.frontier")
	size, err := AppendBytes(path, []byte("first|0\nsecond|1\n"))
	require.Nil(t, err)

	line, next, err := ReadLineAt(path, 0, size)
	require.Nil(t, err)
	assert.Equal(t, "first|0", line)
	assert.Equal(t, int64(8), next)

	line, next, err = ReadLineAt(path, next, size)
	require.Nil(t, err)
	assert.Equal(t, "second|1", line)
	assert.Equal(t, size, next)
}

func TestReadLineAtStopsAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.frontier")
	_, err := AppendBytes(path, []byte("visible|0\nhidden|1\n"))
	require.Nil(t, err)

	// limit set before the second line's terminator: the second line is not
	// visible yet
	line, next, err := ReadLineAt(path, 10, 15)
	require.Nil(t, err)
	assert.Empty(t, line)
	assert.Equal(t, int64(10), next)
}

func TestReadLineAtOffsetAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.frontier")
	size, err := AppendBytes(path, []byte("only|0\n"))
	require.Nil(t, err)

	line, next, err := ReadLineAt(path, size, size)
	require.Nil(t, err)
	assert.Empty(t, line)
	assert.Equal(t, size, next)
}

func TestFileSizeMissingFile(t *testing.T) {
	size, err := FileSize(filepath.Join(t.TempDir(), "absent"))
	require.Nil(t, err)
	assert.Zero(t, size)
}
