package robots

import (
	"fmt"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCauseCacheFailure RobotsErrorCause = "cache failure"
)

type RobotsError struct {
	Message string
	Cause   RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s: %s", e.Cause, e.Message)
}

func (e *RobotsError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}
