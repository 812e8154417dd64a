package domainlock

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

// ErrLockHeld signals the backoff loop that another writer holds the lock.
var ErrLockHeld = errors.New("lock held by another writer")

type LockErrorCause string

const (
	ErrCauseAcquireTimeout LockErrorCause = "acquire timeout"
)

type LockError struct {
	Message string
	Cause   LockErrorCause
}

func (e *LockError) Error() string {
	return fmt.Sprintf("domain lock error: %s: %s", e.Cause, e.Message)
}

// Acquire timeouts are recoverable: the caller reports zero URLs added and a
// later batch retries.
func (e *LockError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}
