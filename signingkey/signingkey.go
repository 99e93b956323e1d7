// Package signingkey models secp256k1 signing keys independently of where
// their private key lives: in process memory or on a hardware device.
package signingkey

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/log"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/types"
)

var logger = log.New("package", "signingkeychain-go/signingkey")

// SigningKey is the capability surface shared by every backend. Callers never
// need to know which backend holds the private key.
type SigningKey interface {
	Type() Type

	PublicKey() *ecdsa.PublicKey

	// PublicKeyBytes returns the 33 bytes compressed public key.
	PublicKeyBytes() []byte

	// Sign signs a 32 bytes hash.
	Sign(ctx context.Context, hash []byte) (*types.Signature, error)

	// Encrypt encrypts plaintext for recipient.
	Encrypt(plaintext []byte, recipient *ecdsa.PublicKey) ([]byte, error)

	// Decrypt opens a message encrypted for this key.
	Decrypt(ctx context.Context, encrypted []byte) ([]byte, error)

	DiffieHellman(ctx context.Context, pub *ecdsa.PublicKey) ([]byte, error)

	Equal(other SigningKey) bool

	// UniqueKey combines the type identity with the public key.
	UniqueKey() string
}

// base holds what is common to all backends.
type base struct {
	typ    Type
	pubKey *ecdsa.PublicKey
	dh     crypto.DiffieHellmanFunc
}

func (b *base) Type() Type {
	return b.typ
}

func (b *base) PublicKey() *ecdsa.PublicKey {
	return b.pubKey
}

func (b *base) PublicKeyBytes() []byte {
	return crypto.CompressPubkey(b.pubKey)
}

func (b *base) Encrypt(plaintext []byte, recipient *ecdsa.PublicKey) ([]byte, error) {
	return crypto.Encrypt(recipient, plaintext)
}

func (b *base) Decrypt(ctx context.Context, encrypted []byte) ([]byte, error) {
	return crypto.Decrypt(ctx, b.dh, encrypted)
}

func (b *base) DiffieHellman(ctx context.Context, pub *ecdsa.PublicKey) ([]byte, error) {
	return b.dh(ctx, pub)
}

func (b *base) Equal(other SigningKey) bool {
	if other == nil {
		return false
	}

	return bytes.Equal(b.PublicKeyBytes(), other.PublicKeyBytes())
}

func (b *base) UniqueKey() string {
	return b.typ.UniqueKey() + "_" + hex.EncodeToString(b.PublicKeyBytes())
}

type localKey struct {
	base
	priv *ecdsa.PrivateKey
}

// FromPrivateKey wraps priv as a non HD key.
func FromPrivateKey(priv *ecdsa.PrivateKey, name fn.Option[string]) SigningKey {
	return newLocalKey(priv, NonHDType{Name: name})
}

// FromHDNode wraps a private key derived in process at path.
func FromHDNode(priv *ecdsa.PrivateKey, path derivationpath.Path) SigningKey {
	return newLocalKey(priv, HDType{Kind: KindLocal, Path: path})
}

func newLocalKey(priv *ecdsa.PrivateKey, typ Type) *localKey {
	return &localKey{
		base: base{
			typ:    typ,
			pubKey: &priv.PublicKey,
			dh:     crypto.LocalDiffieHellman(priv),
		},
		priv: priv,
	}
}

func (k *localKey) Sign(_ context.Context, hash []byte) (*types.Signature, error) {
	sig, err := crypto.SignHash(k.priv, hash)
	if err != nil {
		return nil, err
	}

	return types.ParseRecoverableSignature(hash, sig)
}
