package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/signingkeychain-go/apdu"
)

func TestFramesRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 57, 58, 59, 200} {
		msg := bytes.Repeat([]byte{0xab}, size)
		buf := new(bytes.Buffer)
		for _, f := range frames(msg) {
			assert.Len(t, f, hidPacketSize)
			buf.Write(f)
		}

		got, err := readFrames(buf)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, msg, got, "size %d", size)
	}
}

func TestFramesHeader(t *testing.T) {
	fs := frames(make([]byte, 100))
	require.Len(t, fs, 2)
	assert.Equal(t, []byte{0x01, 0x01, 0x05, 0x00, 0x00, 0x00, 0x64}, fs[0][:7])
	assert.Equal(t, []byte{0x01, 0x01, 0x05, 0x00, 0x01}, fs[1][:5])
}

func TestReadFramesInvalidHeader(t *testing.T) {
	f := frames([]byte{1, 2, 3})[0]
	f[2] = 0x02
	_, err := readFrames(bytes.NewReader(f))
	assert.Equal(t, ErrReplyInvalidHeader, err)
}

// fakeDevice answers every request with a fixed reply.
type fakeDevice struct {
	reply   []byte
	written bytes.Buffer
	pending *bytes.Buffer
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.written.Write(p)
	d.pending = new(bytes.Buffer)
	for _, f := range frames(d.reply) {
		d.pending.Write(f)
	}
	return len(p), nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if d.pending == nil {
		return 0, io.EOF
	}
	return d.pending.Read(p)
}

func TestExchange(t *testing.T) {
	dev := &fakeDevice{reply: []byte{0x01, 0x02, 0x90, 0x00}}
	cmd := apdu.NewCommand(0xaa, 0x03, 0, 0, nil)

	resp, err := exchange(context.Background(), dev, cmd, func() {})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, resp.Data)
	assert.Equal(t, uint16(apdu.SwOK), resp.Sw)

	sent, err := readFrames(&dev.written)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0x03, 0x00, 0x00, 0x00}, sent)
}

type blockingDevice struct {
	unblock chan struct{}
}

func (d *blockingDevice) Write(p []byte) (int, error) { return len(p), nil }

func (d *blockingDevice) Read(p []byte) (int, error) {
	<-d.unblock
	return 0, io.ErrClosedPipe
}

func TestExchangeCancelled(t *testing.T) {
	dev := &blockingDevice{unblock: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	aborted := false
	_, err := exchange(ctx, dev, apdu.NewCommand(0xaa, 0x03, 0, 0, nil), func() {
		aborted = true
		close(dev.unblock)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, aborted)
}

func TestExchangeTransportError(t *testing.T) {
	dev := &fakeDevice{}
	_, err := exchange(context.Background(), dev, apdu.NewCommand(0xaa, 0x03, 0, 0, nil), func() {})

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "exchange", te.Op)
}

func TestSendClosed(t *testing.T) {
	h := &HID{}
	_, err := h.Send(context.Background(), apdu.NewCommand(0xaa, 0x03, 0, 0, nil))
	assert.ErrorIs(t, err, ErrClosed)
}
