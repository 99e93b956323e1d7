// Package hdnode derives secp256k1 key nodes from a BIP39 master seed along
// BIP44 paths.
package hdnode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/log"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/text/unicode/norm"

	"github.com/status-im/signingkeychain-go/derivationpath"
)

var logger = log.New("package", "signingkeychain-go/hdnode")

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrEmptySeed       = errors.New("empty master seed")
)

// Node is a derived key pair with its chain code.
type Node struct {
	Path       derivationpath.Path
	PrivateKey []byte
	// PublicKey is the 33 bytes compressed public key.
	PublicKey []byte
	ChainCode []byte
}

// SeedFromMnemonic validates a BIP39 mnemonic and returns its 64 bytes seed.
// Both mnemonic and passphrase are NFKD normalized first.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = norm.NFKD.String(mnemonic)
	passphrase = norm.NFKD.String(passphrase)

	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	return bip39.NewSeed(mnemonic, passphrase), nil
}

// NewMnemonic generates a fresh mnemonic with the given entropy size in bits (128-256).
func NewMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// Deriver derives nodes from a master seed.
type Deriver struct {
	master *bip32.Key
}

// NewDeriver returns a Deriver for seed.
func NewDeriver(seed []byte) (*Deriver, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	return &Deriver{master: master}, nil
}

// NewDeriverFromMnemonic is SeedFromMnemonic followed by NewDeriver.
func NewDeriverFromMnemonic(mnemonic, passphrase string) (*Deriver, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	return NewDeriver(seed)
}

// Derive walks path from the master key.
func (d *Deriver) Derive(path derivationpath.Path) (*Node, error) {
	key := d.master
	for _, c := range path.Components() {
		child, err := key.NewChildKey(c.Encoded())
		if err != nil {
			return nil, fmt.Errorf("derive %s (%s): %w", c.Name(), c, err)
		}

		key = child
	}

	priv := padKey(key.Key)
	_, pub := btcec.PrivKeyFromBytes(priv)
	compressed := pub.SerializeCompressed()

	if bip32Pub := key.PublicKey().Key; !bytes.Equal(bip32Pub, compressed) {
		logger.Error("public key mismatch between bip32 and secp256k1", "path", path.String())
		return nil, fmt.Errorf("public key mismatch at %s", path)
	}

	logger.Trace("derived key node", "path", path.String())

	return &Node{
		Path:       path,
		PrivateKey: priv,
		PublicKey:  compressed,
		ChainCode:  append([]byte(nil), key.ChainCode...),
	}, nil
}

func padKey(key []byte) []byte {
	if len(key) >= 32 {
		return append([]byte(nil), key[len(key)-32:]...)
	}

	out := make([]byte, 32)
	copy(out[32-len(key):], key)

	return out
}
