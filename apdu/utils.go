package apdu

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrFieldNotFound is an error returned if a length prefixed field is missing in a payload.
type ErrFieldNotFound struct {
	index int
}

// Error implements the error interface
func (e *ErrFieldNotFound) Error() string {
	return fmt.Sprintf("field %d not found", e.index)
}

// ErrFieldTooLong is returned when a field does not fit a one byte length prefix.
var ErrFieldTooLong = errors.New("field longer than 255 bytes")

// ReadLengthPrefixed splits raw into its first one-byte length prefixed field and the remainder.
func ReadLengthPrefixed(raw []byte) ([]byte, []byte, error) {
	if len(raw) == 0 {
		return nil, nil, &ErrFieldNotFound{0}
	}

	length := int(raw[0])
	if len(raw)-1 < length {
		return nil, nil, fmt.Errorf("field truncated: want %d bytes, have %d", length, len(raw)-1)
	}

	return raw[1 : 1+length], raw[1+length:], nil
}

// WriteLengthPrefixed writes a one byte length followed by data.
func WriteLengthPrefixed(buf *bytes.Buffer, data []byte) error {
	if len(data) > 0xFF {
		return ErrFieldTooLong
	}

	buf.WriteByte(byte(len(data)))
	buf.Write(data)

	return nil
}
