package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Class is the retry classification of an error.
type Class int

const (
	// Unknown errors are returned to the caller without retrying.
	Unknown Class = iota
	// Transient errors are retried with backoff.
	Transient
	// Fatal errors are returned immediately.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// HTTPStatusError is implemented by errors that carry a remote HTTP status.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// TemporaryError is implemented by errors that know they are worth retrying,
// such as a busy local database.
type TemporaryError interface {
	error
	Temporary() bool
}

// Classify decides whether err should be retried.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	// Client timeouts wrap context.DeadlineExceeded but are connection failures.
	var timeout net.Error
	if errors.As(err, &timeout) && timeout.Timeout() && timeout != context.DeadlineExceeded {
		return Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	var se HTTPStatusError
	if errors.As(err, &se) {
		code := se.HTTPStatus()
		switch {
		case code == 429, code >= 500:
			return Transient
		case code >= 400:
			return Fatal
		}
		return Unknown
	}

	var te TemporaryError
	if errors.As(err, &te) && te.Temporary() {
		return Transient
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	return Unknown
}
