// Package emulator implements a hardware signing device in process. It speaks
// the same APDU protocol as the device app, derives keys from a fixed
// mnemonic and takes the user's button presses from a channel.
package emulator

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/log"

	"github.com/status-im/signingkeychain-go/apdu"
	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/hardware"
	"github.com/status-im/signingkeychain-go/hdnode"
	"github.com/status-im/signingkeychain-go/transport"
	"github.com/status-im/signingkeychain-go/types"
)

var logger = log.New("package", "signingkeychain-go/emulator")

// DefaultMnemonic seeds emulated devices unless configured otherwise.
const DefaultMnemonic = "equip will roof matter pink blind book anxiety banner elbow sun young"

const dashboardAppName = "Dashboard"

var ErrDeviceLocked = errors.New("emulated device is locked")

// Input is a button press on the device.
type Input int

const (
	Accept Input = iota
	Reject
)

// Prompt is emitted when the device waits for the user.
type Prompt struct {
	Ins  uint8
	Path derivationpath.Path
}

type Config struct {
	Mnemonic   string
	Passphrase string
	AppName    string
	Version    types.Version

	// LockedOpens is the number of Open calls that fail before the device unlocks.
	LockedOpens int

	// WrongAppOpens is the number of successful opens during which another app
	// is in the foreground.
	WrongAppOpens int
}

func DefaultConfig() Config {
	return Config{
		Mnemonic: DefaultMnemonic,
		AppName:  hardware.DefaultAppName,
		Version:  types.Version{Major: 1, Minor: 0, Patch: 0},
	}
}

// Device is an emulated device implementing transport.Transport.
type Device struct {
	cfg     Config
	deriver *hdnode.Deriver

	input   chan Input
	prompts chan Prompt

	mu      sync.Mutex
	open    bool
	done    chan struct{}
	opens   int
	appOpen int
}

func New(cfg Config) (*Device, error) {
	if cfg.Mnemonic == "" {
		cfg.Mnemonic = DefaultMnemonic
	}

	if cfg.AppName == "" {
		cfg.AppName = hardware.DefaultAppName
	}

	deriver, err := hdnode.NewDeriverFromMnemonic(cfg.Mnemonic, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	return &Device{
		cfg:     cfg,
		deriver: deriver,
		input:   make(chan Input, 16),
		prompts: make(chan Prompt, 16),
	}, nil
}

// Accept presses the confirm button.
func (d *Device) Accept() {
	d.input <- Accept
}

// Reject presses the reject button.
func (d *Device) Reject() {
	d.input <- Reject
}

// Input returns the channel button presses are read from.
func (d *Device) Input() chan<- Input {
	return d.input
}

// Prompts returns a channel receiving one Prompt each time the device starts
// waiting for the user. Prompts are dropped when nobody reads them.
func (d *Device) Prompts() <-chan Prompt {
	return d.prompts
}

// Opens returns the number of Open calls made so far.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.opens
}

func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.open
}

func (d *Device) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens++
	if d.opens <= d.cfg.LockedOpens {
		return &transport.Error{Op: "open", Err: ErrDeviceLocked}
	}

	if d.open {
		return nil
	}

	d.open = true
	d.appOpen++
	d.done = make(chan struct{})
	logger.Debug("emulated device opened", "opens", d.opens)

	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}

	d.open = false
	close(d.done)
	logger.Debug("emulated device closed")

	return nil
}

func (d *Device) Send(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	d.mu.Lock()
	open, done, appOpen := d.open, d.done, d.appOpen
	d.mu.Unlock()

	if !open {
		return nil, &transport.Error{Op: "send", Err: transport.ErrClosed}
	}

	// round trip through the wire format, as a real transport would
	raw, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	parsed, err := apdu.ParseCommand(raw)
	if err != nil {
		return nil, &transport.Error{Op: "send", Err: err}
	}

	if appOpen <= d.cfg.WrongAppOpens {
		return d.dashboard(parsed), nil
	}

	return d.handle(ctx, done, parsed)
}

func (d *Device) dashboard(cmd *apdu.Command) *apdu.Response {
	if cmd.Cla == hardware.ClaWallet && cmd.Ins == hardware.InsGetAppName {
		return apdu.NewResponse([]byte(dashboardAppName), apdu.SwOK)
	}

	return apdu.NewResponse(nil, apdu.SwClaNotSupported)
}

func (d *Device) handle(ctx context.Context, done <-chan struct{}, cmd *apdu.Command) (*apdu.Response, error) {
	if cmd.Cla != hardware.ClaWallet {
		return apdu.NewResponse(nil, apdu.SwClaNotSupported), nil
	}

	switch cmd.Ins {
	case hardware.InsGetVersion:
		if err := hardware.ParseNoPayloadCommand(cmd, cmd.Ins); err != nil {
			return apdu.NewResponse(nil, apdu.SwWrongDataLength), nil
		}

		return apdu.NewResponse(d.cfg.Version.Bytes(), apdu.SwOK), nil

	case hardware.InsGetAppName:
		if err := hardware.ParseNoPayloadCommand(cmd, cmd.Ins); err != nil {
			return apdu.NewResponse(nil, apdu.SwWrongDataLength), nil
		}

		return apdu.NewResponse([]byte(d.cfg.AppName), apdu.SwOK), nil

	case hardware.InsGetPublicKey:
		return d.getPublicKey(ctx, done, cmd)

	case hardware.InsDoSignHash:
		return d.signHash(ctx, done, cmd)

	case hardware.InsDoKeyExchange:
		return d.keyExchange(ctx, done, cmd)

	default:
		return apdu.NewResponse(nil, apdu.SwInsNotSupported), nil
	}
}

func (d *Device) getPublicKey(ctx context.Context, done <-chan struct{}, cmd *apdu.Command) (*apdu.Response, error) {
	req, err := hardware.ParseGetPublicKeyCommand(cmd)
	if err != nil {
		return errorResponse(err, apdu.SwParseBIP32PathFailed), nil
	}

	node, err := d.deriver.Derive(req.Path)
	if err != nil {
		return apdu.NewResponse(nil, apdu.SwUnknownDeviceSpecificErr), nil
	}

	if req.RequireConfirmation || req.DisplayAddress {
		resp, err := d.confirm(ctx, done, cmd.Ins, req.Path)
		if resp != nil || err != nil {
			return resp, err
		}
	}

	pubKey := &types.PublicKeyResponse{PublicKey: node.PublicKey, ChainCode: node.ChainCode}

	return apdu.NewResponse(pubKey.Serialize(), apdu.SwOK), nil
}

func (d *Device) signHash(ctx context.Context, done <-chan struct{}, cmd *apdu.Command) (*apdu.Response, error) {
	req, err := hardware.ParseSignHashCommand(cmd)
	if err != nil {
		return errorResponse(err, apdu.SwParseHashFailed), nil
	}

	node, err := d.deriver.Derive(req.Path)
	if err != nil {
		return apdu.NewResponse(nil, apdu.SwUnknownDeviceSpecificErr), nil
	}

	if req.RequireConfirmation {
		resp, err := d.confirm(ctx, done, cmd.Ins, req.Path)
		if resp != nil || err != nil {
			return resp, err
		}
	}

	priv, _ := btcec.PrivKeyFromBytes(node.PrivateKey)
	der := ecdsa.Sign(priv, req.Hash).Serialize()

	return apdu.NewResponse(types.SerializeSignatureResponse(der), apdu.SwOK), nil
}

func (d *Device) keyExchange(ctx context.Context, done <-chan struct{}, cmd *apdu.Command) (*apdu.Response, error) {
	req, err := hardware.ParseKeyExchangeCommand(cmd)
	if err != nil {
		return errorResponse(err, apdu.SwParsePublicKeyFailed), nil
	}

	pub, err := crypto.ParsePublicKey(req.PublicKey)
	if err != nil {
		return apdu.NewResponse(nil, apdu.SwParsePublicKeyFailed), nil
	}

	node, err := d.deriver.Derive(req.Path)
	if err != nil {
		return apdu.NewResponse(nil, apdu.SwUnknownDeviceSpecificErr), nil
	}

	priv, err := crypto.ToECDSA(node.PrivateKey)
	if err != nil {
		return apdu.NewResponse(nil, apdu.SwKeyExchangeFailed), nil
	}

	if req.RequireConfirmation {
		resp, err := d.confirm(ctx, done, cmd.Ins, req.Path)
		if resp != nil || err != nil {
			return resp, err
		}
	}

	point := crypto.DiffieHellman(priv, pub)

	return apdu.NewResponse(types.SerializeKeyExchangeResponse(point), apdu.SwOK), nil
}

// confirm waits for a button press. It returns a nil response when the user accepted.
func (d *Device) confirm(ctx context.Context, done <-chan struct{}, ins uint8, path derivationpath.Path) (*apdu.Response, error) {
	select {
	case d.prompts <- Prompt{Ins: ins, Path: path}:
	default:
	}

	logger.Debug("waiting for user confirmation", "ins", ins, "path", path)

	select {
	case in := <-d.input:
		if in == Accept {
			return nil, nil
		}

		logger.Debug("user rejected request", "ins", ins)
		return apdu.NewResponse(nil, apdu.SwConditionsNotSatisfied), nil

	case <-done:
		return nil, &transport.Error{Op: "send", Err: transport.ErrClosed}

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func errorResponse(err error, fallback uint16) *apdu.Response {
	switch {
	case errors.Is(err, hardware.ErrWrongFlag):
		return apdu.NewResponse(nil, apdu.SwWrongP1P2)
	case errors.Is(err, derivationpath.ErrWrongComponentCount),
		errors.Is(err, derivationpath.ErrNotHardened),
		errors.Is(err, derivationpath.ErrWrongPurpose),
		errors.Is(err, derivationpath.ErrWrongCoinType):
		return apdu.NewResponse(nil, apdu.SwParseBIP32PathFailed)
	case errors.Is(err, hardware.ErrTrailingData):
		return apdu.NewResponse(nil, apdu.SwWrongDataLength)
	default:
		return apdu.NewResponse(nil, fallback)
	}
}
