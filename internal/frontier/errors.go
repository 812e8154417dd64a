package frontier

import (
	"fmt"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

type FrontierErrorCause string

const (
	ErrCauseMalformedLine FrontierErrorCause = "malformed frontier line"
	ErrCauseNoPeer        FrontierErrorCause = "no client for peer pod"
)

type FrontierError struct {
	Message string
	Cause   FrontierErrorCause
}

func (e *FrontierError) Error() string {
	return fmt.Sprintf("frontier error: %s: %s", e.Cause, e.Message)
}

func (e *FrontierError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}
