package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

type KVErrorCause string

const (
	ErrCauseTransient   KVErrorCause = "transient"
	ErrCauseUnavailable KVErrorCause = "unavailable"
	ErrCauseBadReply    KVErrorCause = "bad reply"
)

type KVError struct {
	Message string
	Cause   KVErrorCause
	Wrapped error
}

func (e *KVError) Error() string {
	return fmt.Sprintf("kv error: %s: %s", e.Cause, e.Message)
}

func (e *KVError) Severity() failure.Severity {
	switch e.Cause {
	case ErrCauseTransient:
		return failure.SeverityRecoverable
	case ErrCauseUnavailable:
		return failure.SeverityPodFatal
	default:
		return failure.SeverityFatal
	}
}

func (e *KVError) Unwrap() error {
	return e.Wrapped
}

// Classify wraps a raw client error into a KVError. redis.Nil is not an
// error at this layer; callers handle it as "absent" before classifying.
func Classify(err error) *KVError {
	if err == nil {
		return nil
	}
	cause := ErrCauseBadReply
	if isTransient(err) {
		cause = ErrCauseTransient
	}
	return &KVError{Message: err.Error(), Cause: cause, Wrapped: err}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// LOADING / CLUSTERDOWN style server states come back as plain errors
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return false
	}
	return true
}
