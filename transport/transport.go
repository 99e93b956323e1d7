// Package transport defines the byte channel to a hardware signing device and
// implements it over USB HID.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/status-im/signingkeychain-go/apdu"
)

// ErrClosed is returned by Send on a transport that is not open.
var ErrClosed = errors.New("transport closed")

// Channel is an interface with a Send method to send apdu commands and receive apdu responses.
type Channel interface {
	Send(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error)
}

// Transport is a Channel that can be opened and closed. It is the only I/O
// surface towards a device, real or emulated. Implementations are not safe for
// overlapping Send calls; callers serialize exchanges.
type Transport interface {
	Channel

	Open(ctx context.Context) error
	Close() error
}

// Error wraps an I/O failure of a transport.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %s", e.Op, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return err
	}

	return &Error{Op: op, Err: err}
}
