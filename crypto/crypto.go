package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidMAC        = errors.New("invalid message authentication code")
	ErrInvalidPadding    = errors.New("invalid padding")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

const (
	ivSize  = 16
	macSize = sha256.Size
)

var hkdfInfo = []byte("signingkeychain-go message encryption")

// DiffieHellmanFunc returns the shared point between the holder's private key
// and pub, as a 65 bytes uncompressed point.
type DiffieHellmanFunc func(ctx context.Context, pub *ecdsa.PublicKey) ([]byte, error)

// DiffieHellman returns priv * pub as a 65 bytes uncompressed point.
func DiffieHellman(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) []byte {
	x, y := crypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	return crypto.FromECDSAPub(&ecdsa.PublicKey{Curve: crypto.S256(), X: x, Y: y})
}

// LocalDiffieHellman adapts a private key to a DiffieHellmanFunc.
func LocalDiffieHellman(priv *ecdsa.PrivateKey) DiffieHellmanFunc {
	return func(_ context.Context, pub *ecdsa.PublicKey) ([]byte, error) {
		return DiffieHellman(priv, pub), nil
	}
}

// ParsePublicKey accepts 33 bytes compressed or 65 bytes uncompressed keys.
func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	switch len(raw) {
	case 33:
		pub, err := crypto.DecompressPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}

		return pub, nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}

		return pub, nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(raw))
	}
}

// Encrypt encrypts data for the holder of pub. An ephemeral key is agreed with
// pub, session keys come from HKDF-SHA256 over the shared x coordinate, the
// payload is AES-256-CBC and authenticated with HMAC-SHA256.
//
// Layout: len(ephemeral pub) | ephemeral pub | iv | ciphertext | mac
func Encrypt(pub *ecdsa.PublicKey, data []byte) ([]byte, error) {
	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	ephemeralPub := crypto.FromECDSAPub(&ephemeral.PublicKey)
	encKey, macKey, err := sessionKeys(DiffieHellman(ephemeral, pub))
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	padded := appendPadding(aes.BlockSize, data)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := append([]byte{byte(len(ephemeralPub))}, ephemeralPub...)
	out = append(out, iv...)
	out = append(out, ciphertext...)

	return append(out, mac(macKey, out[1:])...), nil
}

// Decrypt reverses Encrypt. dh performs the key agreement with the recipient's
// private key, which may live on a hardware device.
func Decrypt(ctx context.Context, dh DiffieHellmanFunc, encrypted []byte) ([]byte, error) {
	if len(encrypted) < 1 {
		return nil, ErrInvalidCiphertext
	}

	pubLen := int(encrypted[0])
	if len(encrypted) < 1+pubLen+ivSize+aes.BlockSize+macSize {
		return nil, ErrInvalidCiphertext
	}

	body := encrypted[1 : len(encrypted)-macSize]
	tag := encrypted[len(encrypted)-macSize:]
	ephemeralPub := body[:pubLen]
	iv := body[pubLen : pubLen+ivSize]
	ciphertext := body[pubLen+ivSize:]

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	pub, err := ParsePublicKey(ephemeralPub)
	if err != nil {
		return nil, err
	}

	point, err := dh(ctx, pub)
	if err != nil {
		return nil, err
	}

	encKey, macKey, err := sessionKeys(point)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal(tag, mac(macKey, body)) {
		return nil, ErrInvalidMAC
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return removePadding(plain)
}

func sessionKeys(point []byte) ([]byte, []byte, error) {
	if len(point) != 65 {
		return nil, nil, fmt.Errorf("%w: shared point length %d", ErrInvalidPublicKey, len(point))
	}

	r := hkdf.New(sha256.New, point[1:33], nil, hkdfInfo)
	keys := make([]byte, 64)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, nil, err
	}

	return keys[:32], keys[32:], nil
}

func mac(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func appendPadding(blockSize int, data []byte) []byte {
	paddingSize := (blockSize - (len(data)+1)%blockSize) % blockSize
	zeroes := bytes.Repeat([]byte{0x00}, paddingSize)
	padding := append([]byte{0x80}, zeroes...)

	return append(append([]byte(nil), data...), padding...)
}

func removePadding(data []byte) ([]byte, error) {
	i := bytes.LastIndexByte(data, 0x80)
	if i < 0 {
		return nil, ErrInvalidPadding
	}

	for _, b := range data[i+1:] {
		if b != 0x00 {
			return nil, ErrInvalidPadding
		}
	}

	return data[:i], nil
}
