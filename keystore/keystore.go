// Package keystore stores the wallet mnemonic encrypted with a password, in
// the scrypt based V3 envelope used by go-ethereum key files.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/status-im/signingkeychain-go/hdnode"
)

var logger = log.New("package", "signingkeychain-go/keystore")

const version = 1

var (
	// ErrDecrypt is returned for a wrong password or a corrupted file.
	ErrDecrypt = ethkeystore.ErrDecrypt

	ErrInvalidKeystore = errors.New("invalid keystore file")
)

// Params are the scrypt cost parameters.
type Params struct {
	N int
	P int
}

var (
	StandardParams = Params{N: ethkeystore.StandardScryptN, P: ethkeystore.StandardScryptP}
	LightParams    = Params{N: ethkeystore.LightScryptN, P: ethkeystore.LightScryptP}
)

type file struct {
	Version int                    `json:"version"`
	ID      string                 `json:"id"`
	Crypto  ethkeystore.CryptoJSON `json:"crypto"`
}

// Encrypt validates mnemonic and returns it encrypted as JSON.
func Encrypt(mnemonic, password string, params Params) ([]byte, error) {
	if _, err := hdnode.SeedFromMnemonic(mnemonic, ""); err != nil {
		return nil, err
	}

	cj, err := ethkeystore.EncryptDataV3([]byte(mnemonic), []byte(password), params.N, params.P)
	if err != nil {
		return nil, err
	}

	return json.Marshal(file{
		Version: version,
		ID:      uuid.New().String(),
		Crypto:  cj,
	})
}

// Decrypt returns the mnemonic stored in data.
func Decrypt(data []byte, password string) (string, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
	}

	if f.Version != version {
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidKeystore, f.Version)
	}

	plain, err := ethkeystore.DecryptDataV3(f.Crypto, password)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

// Store encrypts mnemonic into the file at path, creating its directory.
func Store(path, mnemonic, password string, params Params) error {
	data, err := Encrypt(mnemonic, password, params)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	logger.Debug("keystore written", "path", path)

	return os.Rename(tmp, path)
}

// Load reads and decrypts the file at path.
func Load(path, password string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return Decrypt(data, password)
}
