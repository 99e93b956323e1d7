package keystore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/signingkeychain-go/hdnode"
)

const testMnemonic = "equip will roof matter pink blind book anxiety banner elbow sun young"

func TestEncryptDecrypt(t *testing.T) {
	data, err := Encrypt(testMnemonic, "foo", LightParams)
	require.NoError(t, err)

	var f map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &f))
	assert.EqualValues(t, 1, f["version"])
	assert.NotEmpty(t, f["id"])
	assert.NotContains(t, string(data), "equip")

	mnemonic, err := Decrypt(data, "foo")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, mnemonic)

	_, err = Decrypt(data, "bar")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncryptRejectsInvalidMnemonic(t *testing.T) {
	_, err := Encrypt("equip will roof", "foo", LightParams)
	assert.ErrorIs(t, err, hdnode.ErrInvalidMnemonic)
}

func TestDecryptInvalidFile(t *testing.T) {
	_, err := Decrypt([]byte("{"), "foo")
	assert.ErrorIs(t, err, ErrInvalidKeystore)

	_, err = Decrypt([]byte(`{"version":7}`), "foo")
	assert.ErrorIs(t, err, ErrInvalidKeystore)
}

func TestStoreLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	require.NoError(t, Store(path, testMnemonic, "foo", LightParams))

	mnemonic, err := Load(path, "foo")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, mnemonic)
}
