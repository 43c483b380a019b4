package pulse

import (
	"errors"
	"io"
	"net"

	"github.com/sagernet/quic-go"
)

// CloseReason tells how a QUIC connection or stream ended.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	// CloseGraceful is a close carrying no error code.
	CloseGraceful
	CloseIdle
	// CloseAborted is a close carrying an application or transport error code.
	CloseAborted
)

func (r CloseReason) String() string {
	switch r {
	case CloseGraceful:
		return "graceful"
	case CloseIdle:
		return "idle"
	case CloseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ClassifyClose inspects the quic-go error ending a transfer.
func ClassifyClose(err error) CloseReason {
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		if streamErr.ErrorCode == 0 {
			return CloseGraceful
		}
		return CloseAborted
	}
	var transportErr *quic.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.ErrorCode == quic.NoError {
			return CloseGraceful
		}
		return CloseAborted
	}
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.ErrorCode == 0 {
			return CloseGraceful
		}
		return CloseAborted
	}
	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return CloseIdle
	}
	return CloseUnknown
}

// WrapError makes graceful closes match net.ErrClosed, and streams canceled
// without an error code also match io.EOF.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &closeError{err: err, reason: ClassifyClose(err)}
}

type closeError struct {
	err    error
	reason CloseReason
}

func (e *closeError) Error() string {
	return e.err.Error()
}

func (e *closeError) Unwrap() error {
	return e.err
}

func (e *closeError) Is(target error) bool {
	switch target {
	case net.ErrClosed:
		if e.reason == CloseGraceful || e.reason == CloseIdle {
			return true
		}
	case io.EOF:
		var streamErr *quic.StreamError
		if e.reason == CloseGraceful && errors.As(e.err, &streamErr) {
			return true
		}
	}
	return errors.Is(e.err, target)
}
