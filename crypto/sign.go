package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// HashLength is the size of the digests accepted for signing.
const HashLength = 32

var ErrInvalidHashLength = errors.New("hash must be 32 bytes")

// ToECDSA converts a raw 32 bytes private key.
func ToECDSA(priv []byte) (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(priv)
}

// CompressPubkey returns the 33 bytes form of pub.
func CompressPubkey(pub *ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(pub)
}

// UncompressedPubkey returns the 65 bytes form of pub.
func UncompressedPubkey(pub *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(pub)
}

// SignHash returns a 65 bytes [R || S || V] signature over hash.
func SignHash(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != HashLength {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidHashLength, len(hash))
	}

	return crypto.Sign(hash, priv)
}

// VerifySignature checks a [R || S] or [R || S || V] signature of hash against pub.
func VerifySignature(pub []byte, hash, sig []byte) bool {
	if len(sig) == 65 {
		sig = sig[:64]
	}

	return crypto.VerifySignature(pub, hash, sig)
}
