package parsequeue

import (
	"fmt"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

type QueueErrorCause string

const (
	ErrCauseEncode QueueErrorCause = "encode failed"
	ErrCauseDecode QueueErrorCause = "decode failed"
)

type QueueError struct {
	Message string
	Cause   QueueErrorCause
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("parse queue error: %s: %s", e.Cause, e.Message)
}

// A blob that cannot be decoded is dropped; there is nothing to retry.
func (e *QueueError) Severity() failure.Severity {
	return failure.SeverityFatal
}
