package hdnode

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/signingkeychain-go/derivationpath"
)

const testMnemonic = "equip will roof matter pink blind book anxiety banner elbow sun young"

func TestDeriveKnownVector(t *testing.T) {
	d, err := NewDeriverFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	node, err := d.Derive(derivationpath.MustParse("m/44'/536'/2'/1/3"))
	require.NoError(t, err)

	assert.Equal(t, "026d5e07cfde5df84b5ef884b629d28d15b0f6c66be229680699767cd57c618288", hex.EncodeToString(node.PublicKey))
	assert.Len(t, node.PrivateKey, 32)
	assert.Len(t, node.ChainCode, 32)
}

func TestDeriveDeterministic(t *testing.T) {
	d, err := NewDeriverFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	p0 := derivationpath.MustParse("m/44'/536'/0'/0/0'")
	p1 := derivationpath.MustParse("m/44'/536'/0'/0/1'")

	a, err := d.Derive(p0)
	require.NoError(t, err)
	b, err := d.Derive(p0)
	require.NoError(t, err)
	c, err := d.Derive(p1)
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey, b.PublicKey)
	assert.NotEqual(t, a.PublicKey, c.PublicKey)
}

func TestPassphraseChangesSeed(t *testing.T) {
	s1, err := SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	s2, err := SeedFromMnemonic(testMnemonic, "radix")
	require.NoError(t, err)

	assert.Len(t, s1, 64)
	assert.NotEqual(t, s1, s2)
}

func TestInvalidMnemonic(t *testing.T) {
	_, err := SeedFromMnemonic("equip will roof matter pink blind book anxiety banner elbow sun yung", "")
	assert.Equal(t, ErrInvalidMnemonic, err)
}

func TestEmptySeed(t *testing.T) {
	_, err := NewDeriver(nil)
	assert.Equal(t, ErrEmptySeed, err)
}

func TestNewMnemonic(t *testing.T) {
	m, err := NewMnemonic(128)
	require.NoError(t, err)

	_, err = SeedFromMnemonic(m, "")
	assert.NoError(t, err)
}
