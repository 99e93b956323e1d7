package signingkey

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/types"
)

// HardwareWallet is the device facade a hardware key delegates to.
type HardwareWallet interface {
	GetPublicKey(ctx context.Context, path derivationpath.Path, display bool) (*types.PublicKeyResponse, error)
	DoSignHash(ctx context.Context, path derivationpath.Path, hash []byte) (*types.Signature, error)
	DoKeyExchange(ctx context.Context, path derivationpath.Path, pub *ecdsa.PublicKey) ([]byte, error)
}

type hardwareKey struct {
	base
	path derivationpath.Path
	hw   HardwareWallet
}

// FromHDPathWithHardwareWallet asks hw for the public key at path once and
// returns a key whose operations are performed by the device at that path.
func FromHDPathWithHardwareWallet(ctx context.Context, path derivationpath.Path, hw HardwareWallet, display bool) (SigningKey, error) {
	resp, err := hw.GetPublicKey(ctx, path, display)
	if err != nil {
		return nil, err
	}

	pubKey, err := crypto.ParsePublicKey(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("device public key: %w", err)
	}

	logger.Debug("hardware signing key created", "path", path, "display", display)

	return &hardwareKey{
		base: base{
			typ:    HDType{Kind: KindHardware, Path: path},
			pubKey: pubKey,
			dh: func(ctx context.Context, pub *ecdsa.PublicKey) ([]byte, error) {
				return hw.DoKeyExchange(ctx, path, pub)
			},
		},
		path: path,
		hw:   hw,
	}, nil
}

func (k *hardwareKey) Sign(ctx context.Context, hash []byte) (*types.Signature, error) {
	return k.hw.DoSignHash(ctx, k.path, hash)
}
