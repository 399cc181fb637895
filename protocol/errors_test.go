package protocol

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("receive: %w", IOError("read", io.ErrClosedPipe))

	assert.True(t, IsKind(err, KindIO))
	assert.False(t, IsKind(err, KindDecode))
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
	assert.Contains(t, err.Error(), "read: io error")

	assert.True(t, IsKind(ProtocolError("handshake", "bad %s", "reply"), KindProtocol))
	assert.True(t, IsKind(RemoteClosed("receive", "session closed"), KindRemoteClosed))
	assert.False(t, IsKind(errors.New("plain"), KindIO))
}

func TestErrorWithoutOp(t *testing.T) {
	err := &Error{Kind: KindDecode, Err: errors.New("bad frame")}
	assert.Equal(t, "decode error: bad frame", err.Error())
}
