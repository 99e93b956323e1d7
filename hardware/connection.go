package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/status-im/signingkeychain-go/apdu"
	"github.com/status-im/signingkeychain-go/transport"
	"github.com/status-im/signingkeychain-go/types"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int

const (
	NotConnected ConnectionState = iota
	Connecting
	ConnectedAppUnknown
	ConnectedAppOpen
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case NotConnected:
		return "not connected"
	case Connecting:
		return "connecting"
	case ConnectedAppUnknown:
		return "connected, app unknown"
	case ConnectedAppOpen:
		return "connected, app open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// DefaultAppName is the name reported by the wallet app.
const DefaultAppName = "Signing Keychain"

type ConnectionConfig struct {
	// ExpectedAppName is compared with the GET_APP_NAME answer.
	ExpectedAppName string

	// MinAppVersion is the oldest wallet app accepted. The zero value
	// accepts any version.
	MinAppVersion types.Version

	// MaxRetries bounds the reopen attempts made after the first probe failed.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Clock clock.Clock
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ExpectedAppName: DefaultAppName,
		MaxRetries:      5,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      8 * time.Second,
		Clock:           clock.NewDefaultClock(),
	}
}

// Connection owns the lifecycle of a transport: it opens it, waits for the
// wallet app to be open on the device and closes it.
type Connection struct {
	cfg ConnectionConfig
	t   transport.Transport

	mu     sync.Mutex
	state  ConnectionState
	wallet *Wallet
	closed chan struct{}
}

func NewConnection(t transport.Transport, cfg ConnectionConfig) *Connection {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Connection{
		cfg:   cfg,
		t:      t,
		state:  NotConnected,
		closed: make(chan struct{}),
	}
}

func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return
	}

	if c.state != s {
		logger.Debug("connection state changed", "from", c.state, "to", s)
	}

	c.state = s
}

// Connect opens the transport and returns a Wallet once the expected app
// answers. If the app is not open, the transport is closed and reopened with
// exponential backoff up to MaxRetries times before giving up with
// ErrDeviceTimeout. Cancelling ctx closes the transport and returns ctx.Err().
func (c *Connection) Connect(ctx context.Context) (*Wallet, error) {
	c.mu.Lock()
	switch c.state {
	case ConnectedAppOpen:
		w := c.wallet
		c.mu.Unlock()
		return w, nil
	case Closed:
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.mu.Unlock()

	c.setState(Connecting)

	lastErr := c.attempt(ctx)
	if lastErr == nil {
		return c.connected()
	}
	if errors.Is(lastErr, ErrConnectionClosed) {
		return nil, lastErr
	}
	if errors.Is(lastErr, ErrUnsupportedVersion) {
		return nil, c.abort(lastErr)
	}

	backoff := c.cfg.InitialBackoff
	for retry := 1; retry <= c.cfg.MaxRetries; retry++ {
		if err := ctx.Err(); err != nil {
			return nil, c.abort(err)
		}

		logger.Debug("wallet app not ready, retrying", "retry", retry, "backoff", backoff, "err", lastErr)
		connectionRetries.Inc()

		select {
		case <-c.cfg.Clock.TickAfter(backoff):
		case <-ctx.Done():
			return nil, c.abort(ctx.Err())
		case <-c.closed:
			return nil, ErrConnectionClosed
		}

		// some devices only report the newly opened app after a full reopen
		if err := c.t.Close(); err != nil {
			logger.Debug("closing transport before retry failed", "err", err)
		}

		lastErr = c.attempt(ctx)
		if lastErr == nil {
			return c.connected()
		}
		if errors.Is(lastErr, ErrConnectionClosed) {
			return nil, lastErr
		}
		if errors.Is(lastErr, ErrUnsupportedVersion) {
			return nil, c.abort(lastErr)
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, c.abort(err)
	}

	c.t.Close()
	c.setState(NotConnected)

	return nil, fmt.Errorf("%w after %d retries: %w", ErrDeviceTimeout, c.cfg.MaxRetries, lastErr)
}

// attempt opens the transport and probes the app name.
func (c *Connection) attempt(ctx context.Context) error {
	if err := c.t.Open(ctx); err != nil {
		return err
	}

	// Close may have run while Open was blocked
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		c.t.Close()
		return ErrConnectionClosed
	}
	c.mu.Unlock()

	c.setState(ConnectedAppUnknown)

	w := NewWallet(c.t)
	name, err := w.GetAppName(ctx)
	if err != nil {
		var badResp *apdu.ErrBadResponse
		if errors.As(err, &badResp) {
			// the device dashboard does not know the wallet class
			return fmt.Errorf("%w: %s", ErrWrongAppName, err)
		}

		return err
	}

	if name != c.cfg.ExpectedAppName {
		return fmt.Errorf("%w: %q", ErrWrongAppName, name)
	}

	if c.cfg.MinAppVersion != (types.Version{}) {
		version, err := w.GetVersion(ctx)
		if err != nil {
			return err
		}

		if !version.AtLeast(c.cfg.MinAppVersion) {
			return fmt.Errorf("%w: %s, need %s", ErrUnsupportedVersion, version, c.cfg.MinAppVersion)
		}
	}

	c.mu.Lock()
	c.wallet = w
	c.mu.Unlock()

	return nil
}

func (c *Connection) connected() (*Wallet, error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		c.t.Close()
		return nil, ErrConnectionClosed
	}

	logger.Debug("connection state changed", "from", c.state, "to", ConnectedAppOpen)
	c.state = ConnectedAppOpen
	w := c.wallet
	c.mu.Unlock()

	return w, nil
}

func (c *Connection) abort(err error) error {
	if closeErr := c.t.Close(); closeErr != nil {
		logger.Debug("closing transport on cancel failed", "err", closeErr)
	}

	c.setState(NotConnected)

	return err
}

// Close closes the transport. The connection cannot be reused.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	c.wallet = nil
	close(c.closed)
	c.mu.Unlock()

	return c.t.Close()
}
