package types

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrRecoveryFailed   = errors.New("signature does not recover to the expected public key")
)

// Signature is a secp256k1 ECDSA signature together with the public key it verifies under.
type Signature struct {
	pubKey []byte
	r      []byte
	s      []byte
	v      byte
}

// ParseRecoverableSignature parses a 65 bytes [R || S || V] signature over message.
func ParseRecoverableSignature(message, sig []byte) (*Signature, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}

	pubKey, err := crypto.Ecrecover(message, sig)
	if err != nil {
		return nil, err
	}

	return &Signature{
		pubKey: compressPublicKey(pubKey),
		r:      append([]byte(nil), sig[0:32]...),
		s:      append([]byte(nil), sig[32:64]...),
		v:      sig[64],
	}, nil
}

// ParseDERSignature parses a DER signature over message made by pubKey and
// recovers the V byte.
func ParseDERSignature(message, pubKey, der []byte) (*Signature, error) {
	r, s, err := DERSignatureToRS(der)
	if err != nil {
		return nil, err
	}

	v, err := calculateV(message, pubKey, r, s)
	if err != nil {
		return nil, err
	}

	return &Signature{
		pubKey: compressPublicKey(pubKey),
		r:      r,
		s:      s,
		v:      v,
	}, nil
}

// DERSignatureToRS extracts 32 bytes left padded R and S from a DER signature.
func DERSignatureToRS(der []byte) ([]byte, []byte, error) {
	type ecdsaSignature struct {
		R, S *big.Int
	}

	sig := &ecdsaSignature{}
	rest, err := asn1.Unmarshal(der, sig)
	if err != nil {
		return nil, nil, err
	}

	if len(rest) != 0 || sig.R.Sign() <= 0 || sig.S.Sign() <= 0 {
		return nil, nil, ErrInvalidSignature
	}

	if sig.R.BitLen() > 256 || sig.S.BitLen() > 256 {
		return nil, nil, ErrInvalidSignature
	}

	r := make([]byte, 32)
	s := make([]byte, 32)
	sig.R.FillBytes(r)
	sig.S.FillBytes(s)

	return r, s, nil
}

func (s *Signature) PubKey() []byte {
	return s.pubKey
}

func (s *Signature) R() []byte {
	return s.r
}

func (s *Signature) S() []byte {
	return s.s
}

func (s *Signature) V() byte {
	return s.v
}

// Bytes returns the 65 bytes [R || S || V] form.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, s.r...)
	out = append(out, s.s...)

	return append(out, s.v)
}

// DER returns the ASN.1 DER form.
func (s *Signature) DER() []byte {
	var r, sv btcec.ModNScalar
	r.SetByteSlice(s.r)
	sv.SetByteSlice(s.s)

	return ecdsa.NewSignature(&r, &sv).Serialize()
}

// Equal compares the signature values.
func (s *Signature) Equal(other *Signature) bool {
	if other == nil {
		return false
	}

	return bytes.Equal(s.Bytes(), other.Bytes())
}

// Verify checks the signature of hash against the embedded public key.
func (s *Signature) Verify(hash []byte) bool {
	return crypto.VerifySignature(s.pubKey, hash, s.Bytes()[:64])
}

func calculateV(message, pubKey, r, s []byte) (byte, error) {
	rs := append(append([]byte(nil), r...), s...)
	for i := 0; i < 2; i++ {
		v := byte(i)
		rec, err := crypto.Ecrecover(message, append(rs, v))
		if err != nil {
			continue
		}

		if bytes.Equal(compressPublicKey(pubKey), compressPublicKey(rec)) {
			return v, nil
		}
	}

	return 0, ErrRecoveryFailed
}

func compressPublicKey(pubKey []byte) []byte {
	if len(pubKey) == 33 {
		return append([]byte(nil), pubKey...)
	}

	out := make([]byte, 33)
	copy(out[1:], pubKey[1:33])

	if (pubKey[64] & 1) == 1 {
		out[0] = 3
	} else {
		out[0] = 2
	}

	return out
}
