package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	fullPath := filepath.Join(targetPath...)
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// AppendBytes appends data to the file at path, creating it (and its parent
// directory) on first use, and returns the file size after the append. The
// write is flushed before the new size is reported, so a reader that learns
// the size always finds the bytes on disk.
func AppendBytes(path string, data []byte) (int64, failure.ClassifiedError) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: false, Cause: ErrCauseAppendError}
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseAppendError}
	}
	if err := f.Sync(); err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseAppendError}
	}
	info, err := f.Stat()
	if err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: false, Cause: ErrCauseAppendError}
	}
	return info.Size(), nil
}

// ReadLineAt reads one newline-terminated line starting at byte offset. It
// never reads past limit: a line whose terminator falls beyond limit is
// treated as not yet visible. Returns the line without its terminator and
// the offset of the next line.
func ReadLineAt(path string, offset int64, limit int64) (string, int64, failure.ClassifiedError) {
	if offset >= limit {
		return "", offset, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", offset, &FileError{Message: err.Error(), Retryable: false, Cause: ErrCauseReadError}
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", offset, &FileError{Message: err.Error(), Retryable: false, Cause: ErrCauseReadError}
	}

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	pos := offset
	for pos < limit {
		max := int64(len(chunk))
		if limit-pos < max {
			max = limit - pos
		}
		n, err := f.Read(chunk[:max])
		if n > 0 {
			for i := 0; i < n; i++ {
				if chunk[i] == '\n' {
					buf = append(buf, chunk[:i]...)
					return string(buf), pos + int64(i) + 1, nil
				}
			}
			buf = append(buf, chunk[:n]...)
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", offset, &FileError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadError}
		}
	}
	// no terminator inside the visible window; the line is not complete yet
	return "", offset, nil
}

// FileSize returns the size of path, or 0 when the file does not exist.
func FileSize(path string) (int64, failure.ClassifiedError) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, &FileError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError}
	}
	return info.Size(), nil
}
