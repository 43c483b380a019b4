package pulse

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/sagernet/quic-go"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil))

	closed := WrapError(&quic.ApplicationError{ErrorCode: 0})
	assert.True(t, errors.Is(closed, net.ErrClosed))

	aborted := WrapError(&quic.ApplicationError{ErrorCode: 42})
	assert.False(t, errors.Is(aborted, net.ErrClosed))

	idle := WrapError(&quic.IdleTimeoutError{})
	assert.True(t, errors.Is(idle, net.ErrClosed))

	canceled := WrapError(&quic.StreamError{ErrorCode: 0})
	assert.True(t, errors.Is(canceled, io.EOF))
	assert.True(t, errors.Is(canceled, net.ErrClosed))

	reset := WrapError(&quic.StreamError{ErrorCode: 7, Remote: true})
	assert.False(t, errors.Is(reset, io.EOF))

	plain := WrapError(io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(plain, io.ErrUnexpectedEOF))
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), plain.Error())
}

func TestClassifyClose(t *testing.T) {
	assert.Equal(t, CloseGraceful, ClassifyClose(&quic.TransportError{ErrorCode: quic.NoError}))
	assert.Equal(t, CloseAborted, ClassifyClose(&quic.TransportError{ErrorCode: quic.ProtocolViolation}))
	assert.Equal(t, CloseAborted, ClassifyClose(&quic.ApplicationError{ErrorCode: 1, Remote: true}))
	assert.Equal(t, CloseIdle, ClassifyClose(&quic.IdleTimeoutError{}))
	assert.Equal(t, CloseUnknown, ClassifyClose(io.ErrUnexpectedEOF))
	assert.Equal(t, "aborted", CloseAborted.String())

	aborted := WrapError(&quic.StreamError{ErrorCode: 3})
	assert.False(t, errors.Is(aborted, net.ErrClosed))
	assert.False(t, errors.Is(aborted, io.EOF))
}
