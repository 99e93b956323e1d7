package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SwOK                     = 0x9000
	SwConditionsNotSatisfied = 0x6985
	SwWrongP1P2              = 0x6A86
	SwWrongDataLength        = 0x6A87
	SwInsNotSupported        = 0x6D00
	SwClaNotSupported        = 0x6E00

	SwParseBIP32PathFailed     = 0xB001
	SwParseHashFailed          = 0xB002
	SwParsePublicKeyFailed     = 0xB003
	SwDisplayAddressFailed     = 0xB004
	SwDisplayBIP32PathFailed   = 0xB005
	SwSignatureFailed          = 0xB006
	SwKeyExchangeFailed        = 0xB007
	SwUnknownDeviceSpecificErr = 0xB008
)

// ErrUserRejected is matched (via errors.Is) by the ErrBadResponse produced for a
// command the user denied on the device.
var ErrUserRejected = errors.New("request rejected by user on device")

// ErrBadResponse defines an error containing the returned Sw code and a description message.
type ErrBadResponse struct {
	Sw      uint16
	message string
}

// NewErrBadResponse returns a ErrBadResponse with the specified sw and message values.
func NewErrBadResponse(sw uint16, message string) *ErrBadResponse {
	return &ErrBadResponse{
		Sw:      sw,
		message: message,
	}
}

// Error implements the error interface.
func (e *ErrBadResponse) Error() string {
	return fmt.Sprintf("bad response %x (%s): %s", e.Sw, SwDescription(e.Sw), e.message)
}

// Is lets errors.Is(err, ErrUserRejected) match a denial status word.
func (e *ErrBadResponse) Is(target error) bool {
	return target == ErrUserRejected && e.Sw == SwConditionsNotSatisfied
}

// Response represents a struct with Data and Sw fields.
type Response struct {
	Data []byte
	Sw   uint16
}

// ErrBadRawResponse is returned when a raw response is shorter than the status word.
var ErrBadRawResponse = errors.New("response data must be at least 2 bytes")

// ParseResponse parses a raw response and returns a Response.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) < 2 {
		return nil, ErrBadRawResponse
	}

	n := len(data) - 2

	return &Response{
		Data: append([]byte(nil), data[:n]...),
		Sw:   binary.BigEndian.Uint16(data[n:]),
	}, nil
}

// NewResponse builds a response from a payload and a status word.
func NewResponse(data []byte, sw uint16) *Response {
	return &Response{Data: data, Sw: sw}
}

// Serialize returns data || sw.
func (r *Response) Serialize() []byte {
	out := make([]byte, len(r.Data)+2)
	copy(out, r.Data)
	binary.BigEndian.PutUint16(out[len(r.Data):], r.Sw)

	return out
}

// Check gates a response against the accepted status words of cmd.
// Any other status word yields an *ErrBadResponse carrying the raw code.
func Check(cmd *Command, resp *Response) error {
	if resp == nil {
		return ErrBadRawResponse
	}

	if cmd.IsAccepted(resp.Sw) {
		return nil
	}

	return NewErrBadResponse(resp.Sw, fmt.Sprintf("unexpected response to ins %02x", cmd.Ins))
}

// SwDescription returns a short text for the known status words.
func SwDescription(sw uint16) string {
	switch sw {
	case SwOK:
		return "ok"
	case SwConditionsNotSatisfied:
		return "denied by user"
	case SwWrongP1P2:
		return "wrong p1/p2"
	case SwWrongDataLength:
		return "wrong data length"
	case SwInsNotSupported:
		return "instruction not supported"
	case SwClaNotSupported:
		return "class not supported"
	case SwParseBIP32PathFailed:
		return "failed to parse bip32 path"
	case SwParseHashFailed:
		return "failed to parse hash"
	case SwParsePublicKeyFailed:
		return "failed to parse public key"
	case SwDisplayAddressFailed:
		return "failed to display address"
	case SwDisplayBIP32PathFailed:
		return "failed to display bip32 path"
	case SwSignatureFailed:
		return "signature failed"
	case SwKeyExchangeFailed:
		return "key exchange failed"
	case SwUnknownDeviceSpecificErr:
		return "device specific failure"
	default:
		return "unknown"
	}
}
