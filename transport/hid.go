package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/karalabe/usb"

	"github.com/status-im/signingkeychain-go/apdu"
)

var logger = log.New("package", "signingkeychain-go/transport")

const (
	LedgerVendorID = 0x2c97

	hidChannel    = 0x0101
	hidTagAPDU    = 0x05
	hidPacketSize = 64
	hidHeaderSize = 5
)

var (
	ErrHIDUnsupported     = errors.New("usb hid not supported on this platform")
	ErrNoDevice           = errors.New("no hardware device found")
	ErrReplyInvalidHeader = errors.New("reply has invalid header")
)

// Devices lists the HID interfaces of connected Ledger devices.
func Devices() ([]usb.DeviceInfo, error) {
	if !usb.Supported() {
		return nil, ErrHIDUnsupported
	}

	infos, err := usb.Enumerate(LedgerVendorID, 0)
	if err != nil {
		return nil, wrapErr("enumerate", err)
	}

	var out []usb.DeviceInfo
	for _, info := range infos {
		// the APDU interface is advertised on usage page 0xffa0 or interface 0
		if info.UsagePage == 0xffa0 || info.Interface == 0 {
			out = append(out, info)
		}
	}

	return out, nil
}

// HID is a Transport to a Ledger style device over USB HID. Commands are split
// into 64 bytes packets tagged with the channel id, the APDU tag and a sequence index.
type HID struct {
	info usb.DeviceInfo

	mu     sync.Mutex
	device io.ReadWriteCloser
}

// NewHID returns a closed transport for the device described by info.
func NewHID(info usb.DeviceInfo) *HID {
	return &HID{info: info}
}

// FirstHID returns a transport for the first Ledger device found.
func FirstHID() (*HID, error) {
	infos, err := Devices()
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		return nil, ErrNoDevice
	}

	return NewHID(infos[0]), nil
}

func (h *HID) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device != nil {
		return nil
	}

	device, err := h.info.Open()
	if err != nil {
		return wrapErr("open", err)
	}

	logger.Debug("opened hid device", "path", h.info.Path, "product", h.info.Product)
	h.device = device

	return nil
}

func (h *HID) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device == nil {
		return nil
	}

	err := h.device.Close()
	h.device = nil
	logger.Debug("closed hid device", "path", h.info.Path)

	return wrapErr("close", err)
}

func (h *HID) Send(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	h.mu.Lock()
	device := h.device
	h.mu.Unlock()

	if device == nil {
		return nil, wrapErr("send", ErrClosed)
	}

	return exchange(ctx, device, cmd, func() { h.Close() })
}

type exchangeResult struct {
	resp *apdu.Response
	err  error
}

// exchange runs one command/response round over rw. On context cancellation
// abort is called so the pending read returns.
func exchange(ctx context.Context, rw io.ReadWriter, cmd *apdu.Command, abort func()) (*apdu.Response, error) {
	raw, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	done := make(chan exchangeResult, 1)
	go func() {
		reply, err := roundTrip(rw, raw)
		if err != nil {
			done <- exchangeResult{err: err}
			return
		}

		resp, err := apdu.ParseResponse(reply)
		done <- exchangeResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		return res.resp, wrapErr("exchange", res.err)
	case <-ctx.Done():
		abort()
		return nil, ctx.Err()
	}
}

func roundTrip(rw io.ReadWriter, raw []byte) ([]byte, error) {
	for _, frame := range frames(raw) {
		logger.Trace("data chunk sent to the device", "chunk", hexutil.Bytes(frame))
		if _, err := rw.Write(frame); err != nil {
			return nil, err
		}
	}

	return readFrames(rw)
}

// frames splits a message into HID packets. The first packet carries the two
// bytes big endian message length.
func frames(msg []byte) [][]byte {
	payload := make([]byte, 2, 2+len(msg))
	binary.BigEndian.PutUint16(payload, uint16(len(msg)))
	payload = append(payload, msg...)

	var out [][]byte
	for seq := 0; len(payload) > 0; seq++ {
		chunk := make([]byte, hidPacketSize)
		binary.BigEndian.PutUint16(chunk[0:], hidChannel)
		chunk[2] = hidTagAPDU
		binary.BigEndian.PutUint16(chunk[3:], uint16(seq))

		n := copy(chunk[hidHeaderSize:], payload)
		payload = payload[n:]
		out = append(out, chunk)
	}

	return out
}

func readFrames(r io.Reader) ([]byte, error) {
	var (
		reply    []byte
		expected = -1
		chunk    = make([]byte, hidPacketSize)
	)

	for seq := 0; ; seq++ {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}

		logger.Trace("data chunk received from the device", "chunk", hexutil.Bytes(chunk))

		if binary.BigEndian.Uint16(chunk[0:]) != hidChannel || chunk[2] != hidTagAPDU {
			return nil, ErrReplyInvalidHeader
		}

		if got := int(binary.BigEndian.Uint16(chunk[3:])); got != seq {
			return nil, fmt.Errorf("unexpected packet sequence %d, want %d", got, seq)
		}

		payload := chunk[hidHeaderSize:]
		if seq == 0 {
			expected = int(binary.BigEndian.Uint16(payload))
			reply = make([]byte, 0, expected)
			payload = payload[2:]
		}

		left := expected - len(reply)
		if left > len(payload) {
			reply = append(reply, payload...)
			continue
		}

		reply = append(reply, payload[:left]...)

		return bytes.Clone(reply), nil
	}
}
