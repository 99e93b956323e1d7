// Package hardware speaks the wallet app protocol of a hardware signing
// device: the APDU codec, the connection manager and the Wallet facade.
package hardware

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/status-im/signingkeychain-go/apdu"
	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/signingkey"
	"github.com/status-im/signingkeychain-go/transport"
	"github.com/status-im/signingkeychain-go/types"
)

var logger = log.New("package", "signingkeychain-go/hardware")

// Wallet is the facade over a device running the wallet app. Exchanges are
// serialized: one command is in flight per device at any time.
type Wallet struct {
	c transport.Channel

	// ConfirmSignatures and ConfirmKeyExchange ask the device to prompt the
	// user before signing or computing a shared secret. Both default to true.
	ConfirmSignatures  bool
	ConfirmKeyExchange bool

	mu          sync.Mutex
	pubKeys     map[string][]byte
	version     types.Version
	haveVersion bool
}

func NewWallet(c transport.Channel) *Wallet {
	return &Wallet{
		c:                  c,
		ConfirmSignatures:  true,
		ConfirmKeyExchange: true,
		pubKeys:            make(map[string][]byte),
	}
}

func (w *Wallet) GetVersion(ctx context.Context) (types.Version, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.haveVersion {
		return w.version, nil
	}

	resp, err := w.send(ctx, NewCommandGetVersion())
	if err != nil {
		return types.Version{}, err
	}

	v, err := types.ParseVersion(resp.Data)
	if err != nil {
		return types.Version{}, err
	}

	w.version, w.haveVersion = v, true

	return v, nil
}

// GetAppName returns the name of the app currently open on the device.
func (w *Wallet) GetAppName(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.send(ctx, NewCommandGetAppName())
	if err != nil {
		return "", err
	}

	return string(resp.Data), nil
}

// GetPublicKey returns the compressed public key at path. When display is
// set the device shows the address and waits for the user to confirm it.
func (w *Wallet) GetPublicKey(ctx context.Context, path derivationpath.Path, display bool) (*types.PublicKeyResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.getPublicKey(ctx, path, display)
}

func (w *Wallet) getPublicKey(ctx context.Context, path derivationpath.Path, display bool) (*types.PublicKeyResponse, error) {
	resp, err := w.send(ctx, NewCommandGetPublicKey(path, display, display))
	if err != nil {
		return nil, err
	}

	pubKey, err := types.ParsePublicKeyResponse(resp.Data)
	if err != nil {
		return nil, err
	}

	w.pubKeys[path.String()] = pubKey.PublicKey

	return pubKey, nil
}

// DoSignHash signs a 32 bytes hash with the key at path.
func (w *Wallet) DoSignHash(ctx context.Context, path derivationpath.Path, hash []byte) (*types.Signature, error) {
	cmd, err := NewCommandSignHash(path, hash, w.ConfirmSignatures)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	pubKey, ok := w.pubKeys[path.String()]
	if !ok {
		resp, err := w.getPublicKey(ctx, path, false)
		if err != nil {
			return nil, err
		}

		pubKey = resp.PublicKey
	}

	resp, err := w.send(ctx, cmd)
	if err != nil {
		return nil, err
	}

	return types.ParseSignatureResponse(hash, pubKey, resp.Data)
}

// DoKeyExchange returns the uncompressed point shared between the key at path and pub.
func (w *Wallet) DoKeyExchange(ctx context.Context, path derivationpath.Path, pub *ecdsa.PublicKey) ([]byte, error) {
	cmd, err := NewCommandKeyExchange(path, crypto.UncompressedPubkey(pub), w.ConfirmKeyExchange)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.send(ctx, cmd)
	if err != nil {
		return nil, err
	}

	return types.ParseKeyExchangeResponse(resp.Data)
}

// MakeSigningKey returns a signing key held by the device at path. Only the
// public key is fetched now; every later operation goes to the device.
func (w *Wallet) MakeSigningKey(ctx context.Context, path derivationpath.Path, display bool) (signingkey.SigningKey, error) {
	return signingkey.FromHDPathWithHardwareWallet(ctx, path, w, display)
}

func (w *Wallet) send(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	logger.Debug("sending apdu command", "ins", hexutil.Uint64(cmd.Ins), "p1", cmd.P1, "p2", cmd.P2)

	resp, err := w.c.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}

	observeExchange(cmd.Ins, resp.Sw)

	if err = w.checkOK(cmd, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (w *Wallet) checkOK(cmd *apdu.Command, resp *apdu.Response) error {
	err := apdu.Check(cmd, resp)
	if err == nil {
		return nil
	}

	if errors.Is(err, apdu.ErrUserRejected) {
		logger.Info("request rejected on device", "ins", hexutil.Uint64(cmd.Ins))
	} else {
		logger.Debug("unexpected status word", "ins", hexutil.Uint64(cmd.Ins), "sw", hexutil.Uint64(resp.Sw))
	}

	return err
}
