package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/status-im/signingkeychain-go/apdu"
)

var (
	ErrWrongPublicKeyLength = errors.New("public key must be 33 bytes compressed")
	ErrWrongPointLength     = errors.New("shared point must be 65 bytes uncompressed")
	ErrEmptySignature       = errors.New("empty signature")
)

// PublicKeyResponse is the answer to GET_PUBLIC_KEY.
type PublicKeyResponse struct {
	PublicKey []byte
	ChainCode []byte
}

// ParsePublicKeyResponse reads a length prefixed compressed public key,
// optionally followed by a length prefixed chain code which is kept as is.
func ParsePublicKeyResponse(data []byte) (*PublicKeyResponse, error) {
	pubKey, rest, err := apdu.ReadLengthPrefixed(data)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}

	if len(pubKey) != 33 {
		return nil, fmt.Errorf("%w, got %d", ErrWrongPublicKeyLength, len(pubKey))
	}

	resp := &PublicKeyResponse{PublicKey: append([]byte(nil), pubKey...)}
	if len(rest) > 0 {
		if chainCode, _, err := apdu.ReadLengthPrefixed(rest); err == nil {
			resp.ChainCode = append([]byte(nil), chainCode...)
		}
	}

	return resp, nil
}

// Serialize encodes the response the way a device sends it.
func (r *PublicKeyResponse) Serialize() []byte {
	buf := new(bytes.Buffer)
	apdu.WriteLengthPrefixed(buf, r.PublicKey)
	if len(r.ChainCode) > 0 {
		apdu.WriteLengthPrefixed(buf, r.ChainCode)
	}

	return buf.Bytes()
}

// ParseSignatureResponse reads the length prefixed DER signature of a DO_SIGN_HASH answer.
func ParseSignatureResponse(hash, pubKey, data []byte) (*Signature, error) {
	der, _, err := apdu.ReadLengthPrefixed(data)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}

	if len(der) == 0 {
		return nil, ErrEmptySignature
	}

	return ParseDERSignature(hash, pubKey, der)
}

// SerializeSignatureResponse encodes a DER signature as sent by a device.
func SerializeSignatureResponse(der []byte) []byte {
	buf := new(bytes.Buffer)
	apdu.WriteLengthPrefixed(buf, der)

	return buf.Bytes()
}

// ParseKeyExchangeResponse reads the length prefixed uncompressed shared point.
func ParseKeyExchangeResponse(data []byte) ([]byte, error) {
	point, _, err := apdu.ReadLengthPrefixed(data)
	if err != nil {
		return nil, fmt.Errorf("shared point: %w", err)
	}

	if len(point) != 65 || point[0] != 0x04 {
		return nil, fmt.Errorf("%w, got %d", ErrWrongPointLength, len(point))
	}

	return append([]byte(nil), point...), nil
}

// SerializeKeyExchangeResponse encodes a shared point as sent by a device.
func SerializeKeyExchangeResponse(point []byte) []byte {
	buf := new(bytes.Buffer)
	apdu.WriteLengthPrefixed(buf, point)

	return buf.Bytes()
}
