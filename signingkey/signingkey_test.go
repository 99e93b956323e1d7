package signingkey

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/hdnode"
	"github.com/status-im/signingkeychain-go/types"
)

const testMnemonic = "equip will roof matter pink blind book anxiety banner elbow sun young"

// fakeWallet answers like a device holding the test mnemonic.
type fakeWallet struct {
	deriver *hdnode.Deriver
	calls   int
}

func newFakeWallet(t *testing.T) *fakeWallet {
	d, err := hdnode.NewDeriverFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	return &fakeWallet{deriver: d}
}

func (w *fakeWallet) privateKey(path derivationpath.Path) (*ecdsa.PrivateKey, error) {
	node, err := w.deriver.Derive(path)
	if err != nil {
		return nil, err
	}

	return crypto.ToECDSA(node.PrivateKey)
}

func (w *fakeWallet) GetPublicKey(_ context.Context, path derivationpath.Path, _ bool) (*types.PublicKeyResponse, error) {
	w.calls++
	node, err := w.deriver.Derive(path)
	if err != nil {
		return nil, err
	}

	return &types.PublicKeyResponse{PublicKey: node.PublicKey}, nil
}

func (w *fakeWallet) DoSignHash(ctx context.Context, path derivationpath.Path, hash []byte) (*types.Signature, error) {
	w.calls++
	priv, err := w.privateKey(path)
	if err != nil {
		return nil, err
	}

	return FromPrivateKey(priv, fn.None[string]()).Sign(ctx, hash)
}

func (w *fakeWallet) DoKeyExchange(_ context.Context, path derivationpath.Path, pub *ecdsa.PublicKey) ([]byte, error) {
	w.calls++
	priv, err := w.privateKey(path)
	if err != nil {
		return nil, err
	}

	return crypto.DiffieHellman(priv, pub), nil
}

func localKeyAt(t *testing.T, path derivationpath.Path) SigningKey {
	w := newFakeWallet(t)
	priv, err := w.privateKey(path)
	require.NoError(t, err)

	return FromHDNode(priv, path)
}

func TestTypeUniqueKey(t *testing.T) {
	path := derivationpath.MustParse("m/44'/536'/0'/0/1'")

	assert.Equal(t, "Local_HD_BIP32_at_path_m/44'/536'/0'/0/1'", HDType{Kind: KindLocal, Path: path}.UniqueKey())
	assert.Equal(t, "Hardware_HD_BIP32_at_path_m/44'/536'/0'/0/1'", HDType{Kind: KindHardware, Path: path}.UniqueKey())
	assert.Equal(t, "Non_HD", NonHDType{}.UniqueKey())
	assert.Equal(t, "Non_HD_with_name_savings", NonHDType{Name: fn.Some("savings")}.UniqueKey())

	assert.True(t, IsLocalHD(HDType{Kind: KindLocal}))
	assert.False(t, IsLocalHD(NonHDType{}))
	assert.True(t, IsHardwareHD(HDType{Kind: KindHardware}))
}

func TestLocalKeySign(t *testing.T) {
	key := localKeyAt(t, derivationpath.MustParse("m/44'/536'/2'/1/3"))
	assert.Equal(t, "026d5e07cfde5df84b5ef884b629d28d15b0f6c66be229680699767cd57c618288", hex.EncodeToString(key.PublicKeyBytes()))

	hash := ethcrypto.Keccak256([]byte("hello"))
	sig, err := key.Sign(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKeyBytes(), sig.PubKey())
	assert.True(t, sig.Verify(hash))

	_, err = key.Sign(context.Background(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, crypto.ErrInvalidHashLength)
}

func TestLocalKeyEncryptDecrypt(t *testing.T) {
	key := localKeyAt(t, derivationpath.MustParse("m/44'/536'/0'/0/0'"))
	other := localKeyAt(t, derivationpath.MustParse("m/44'/536'/0'/0/1'"))

	encrypted, err := key.Encrypt([]byte("secret message"), other.PublicKey())
	require.NoError(t, err)

	plain, err := other.Decrypt(context.Background(), encrypted)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret message"), plain)

	_, err = key.Decrypt(context.Background(), encrypted)
	assert.Error(t, err)
}

func TestHardwareKeyDelegates(t *testing.T) {
	ctx := context.Background()
	path := derivationpath.MustParse("m/44'/536'/2'/1/3")
	w := newFakeWallet(t)

	hwKey, err := FromHDPathWithHardwareWallet(ctx, path, w, false)
	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)

	local := localKeyAt(t, path)
	assert.True(t, hwKey.Equal(local))
	assert.True(t, local.Equal(hwKey))
	assert.NotEqual(t, hwKey.UniqueKey(), local.UniqueKey())
	assert.Equal(t, HDType{Kind: KindHardware, Path: path}, hwKey.Type())

	hash := ethcrypto.Keccak256([]byte("tx"))
	hwSig, err := hwKey.Sign(ctx, hash)
	require.NoError(t, err)
	localSig, err := local.Sign(ctx, hash)
	require.NoError(t, err)
	assert.True(t, hwSig.Equal(localSig))
	assert.Equal(t, 2, w.calls)

	encrypted, err := local.Encrypt([]byte("for the device"), hwKey.PublicKey())
	require.NoError(t, err)
	plain, err := hwKey.Decrypt(ctx, encrypted)
	require.NoError(t, err)
	assert.Equal(t, []byte("for the device"), plain)
	assert.Equal(t, 3, w.calls)
}

func TestNonHDKey(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	key := FromPrivateKey(priv, fn.Some("imported"))
	assert.Equal(t, NonHDType{Name: fn.Some("imported")}, key.Type())
	assert.Equal(t, "Non_HD_with_name_imported_"+hex.EncodeToString(key.PublicKeyBytes()), key.UniqueKey())
	assert.False(t, key.Equal(nil))
}
