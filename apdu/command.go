package apdu

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrDataTooLong is returned when a command payload does not fit the one byte Lc field.
var ErrDataTooLong = errors.New("command data longer than 255 bytes")

// Command struct represent the data sent as an APDU command with CLA, Ins, P1, P2, Lc, Data.
type Command struct {
	Cla  uint8
	Ins  uint8
	P1   uint8
	P2   uint8
	Data []byte

	accepted []uint16
}

// NewCommand returns a new apdu Command. The accepted status words default to SwOK.
func NewCommand(cla, ins, p1, p2 uint8, data []byte) *Command {
	return &Command{
		Cla:      cla,
		Ins:      ins,
		P1:       p1,
		P2:       p2,
		Data:     data,
		accepted: []uint16{SwOK},
	}
}

// SetAccepted replaces the set of status words considered a successful answer to the command.
func (c *Command) SetAccepted(sws ...uint16) *Command {
	c.accepted = append([]uint16(nil), sws...)
	return c
}

// Accepted returns a copy of the status words accepted for the command.
func (c *Command) Accepted() []uint16 {
	return append([]uint16(nil), c.accepted...)
}

// IsAccepted reports whether sw is in the accepted set.
func (c *Command) IsAccepted(sw uint16) bool {
	for _, code := range c.accepted {
		if code == sw {
			return true
		}
	}

	return false
}

// Serialize serializes the command into a raw slice of bytes.
func (c *Command) Serialize() ([]byte, error) {
	if len(c.Data) > 0xFF {
		return nil, ErrDataTooLong
	}

	buf := new(bytes.Buffer)
	buf.Write([]byte{c.Cla, c.Ins, c.P1, c.P2, uint8(len(c.Data))})
	buf.Write(c.Data)

	return buf.Bytes(), nil
}

// ParseCommand parses a raw command. Lc must match the length of the payload.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("command too short: %d bytes", len(raw))
	}

	cmd := NewCommand(raw[0], raw[1], raw[2], raw[3], nil)
	if len(raw) == 4 {
		return cmd, nil
	}

	lc := int(raw[4])
	if len(raw[5:]) != lc {
		return nil, fmt.Errorf("command length mismatch: lc %d, data %d", lc, len(raw[5:]))
	}

	cmd.Data = append([]byte(nil), raw[5:]...)

	return cmd, nil
}

func (c *Command) String() string {
	return fmt.Sprintf("cla=%02x ins=%02x p1=%02x p2=%02x lc=%d", c.Cla, c.Ins, c.P1, c.P2, len(c.Data))
}
