package hardware

import (
	"context"
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/status-im/signingkeychain-go/apdu"
	"github.com/status-im/signingkeychain-go/derivationpath"
)

func drawPath(t *rapid.T) derivationpath.Path {
	path, err := derivationpath.ForAddress(
		rapid.Uint32Range(0, 1<<31-1).Draw(t, "account"),
		rapid.Uint32Range(0, 1<<31-1).Draw(t, "change"),
		rapid.Uint32Range(0, 1<<31-1).Draw(t, "address"),
		rapid.Bool().Draw(t, "hardenedAddress"),
	)
	if err != nil {
		t.Fatalf("ForAddress: %v", err)
	}

	return path
}

// wire serializes and parses cmd back, as the device sees it.
func wire(t *rapid.T, cmd *apdu.Command) *apdu.Command {
	raw, err := cmd.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	parsed, err := apdu.ParseCommand(raw)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}

	return parsed
}

func TestGetPublicKeyCommandRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := drawPath(t)
		confirm := rapid.Bool().Draw(t, "confirm")
		display := rapid.Bool().Draw(t, "display")

		req, err := ParseGetPublicKeyCommand(wire(t, NewCommandGetPublicKey(path, confirm, display)))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if !req.Path.Equal(path) || req.RequireConfirmation != confirm || req.DisplayAddress != display {
			t.Fatalf("got %+v, want path %s confirm %v display %v", req, path, confirm, display)
		}
	})
}

func TestSignHashCommandRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := drawPath(t)
		hash := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "hash")
		confirm := rapid.Bool().Draw(t, "confirm")

		cmd, err := NewCommandSignHash(path, hash, confirm)
		if err != nil {
			t.Fatalf("NewCommandSignHash: %v", err)
		}

		req, err := ParseSignHashCommand(wire(t, cmd))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if !req.Path.Equal(path) || string(req.Hash) != string(hash) || req.RequireConfirmation != confirm {
			t.Fatalf("got %+v", req)
		}
	})
}

func TestKeyExchangeCommandRoundTrip(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	pubKey := ethcrypto.FromECDSAPub(&priv.PublicKey)

	rapid.Check(t, func(t *rapid.T) {
		path := drawPath(t)
		confirm := rapid.Bool().Draw(t, "confirm")

		cmd, err := NewCommandKeyExchange(path, pubKey, confirm)
		if err != nil {
			t.Fatalf("NewCommandKeyExchange: %v", err)
		}

		req, err := ParseKeyExchangeCommand(wire(t, cmd))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if !req.Path.Equal(path) || string(req.PublicKey) != string(pubKey) || req.RequireConfirmation != confirm {
			t.Fatalf("got %+v", req)
		}
	})
}

func TestNoPayloadCommands(t *testing.T) {
	assert.NoError(t, ParseNoPayloadCommand(NewCommandGetVersion(), InsGetVersion))
	assert.NoError(t, ParseNoPayloadCommand(NewCommandGetAppName(), InsGetAppName))
	assert.ErrorIs(t, ParseNoPayloadCommand(NewCommandGetAppName(), InsGetVersion), ErrWrongInstruction)

	cmd := apdu.NewCommand(ClaWallet, InsGetVersion, 0, 0, []byte{1})
	assert.Equal(t, ErrUnexpectedPayload, ParseNoPayloadCommand(cmd, InsGetVersion))
}

func TestCommandBytes(t *testing.T) {
	path := derivationpath.MustParse("m/44'/536'/2'/1/3")
	raw, err := NewCommandGetPublicKey(path, true, false).Serialize()
	require.NoError(t, err)

	expected := []byte{
		0xaa, 0x05, 0x01, 0x00, 0x15,
		0x05,
		0x80, 0x00, 0x00, 0x2c,
		0x80, 0x00, 0x02, 0x18,
		0x80, 0x00, 0x00, 0x02,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x03,
	}
	assert.Equal(t, expected, raw)
}

func TestParseRejectsMalformedCommands(t *testing.T) {
	path := derivationpath.MustParse("m/44'/536'/0'/0/0")

	cmd := NewCommandGetPublicKey(path, false, false)
	cmd.P1 = 0x02
	_, err := ParseGetPublicKeyCommand(cmd)
	assert.ErrorIs(t, err, ErrWrongFlag)

	cmd = NewCommandGetPublicKey(path, false, false)
	cmd.Cla = 0xE0
	_, err = ParseGetPublicKeyCommand(cmd)
	assert.ErrorIs(t, err, ErrWrongClass)

	cmd = NewCommandGetPublicKey(path, false, false)
	cmd.Data = append(cmd.Data, 0x00)
	_, err = ParseGetPublicKeyCommand(cmd)
	assert.Equal(t, ErrTrailingData, err)

	cmd = apdu.NewCommand(ClaWallet, InsDoSignHash, 0, 0, append(path.Encode(), 0x02, 0x01, 0x02))
	_, err = ParseSignHashCommand(cmd)
	assert.Error(t, err)

	_, err = NewCommandSignHash(path, []byte{1, 2, 3}, true)
	assert.Error(t, err)

	_, err = NewCommandKeyExchange(path, make([]byte, 33), true)
	assert.Equal(t, ErrWrongPublicKey, err)
}

type fakeChannel struct {
	responses []*apdu.Response
	sent      []*apdu.Command
	err       error
}

func (c *fakeChannel) Send(_ context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	c.sent = append(c.sent, cmd)
	if c.err != nil {
		return nil, c.err
	}

	resp := c.responses[0]
	c.responses = c.responses[1:]

	return resp, nil
}

func TestStatusWordGating(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sw := rapid.Uint16().Filter(func(sw uint16) bool { return sw != apdu.SwOK }).Draw(t, "sw")
		c := &fakeChannel{responses: []*apdu.Response{apdu.NewResponse([]byte{1, 2, 3}, sw)}}

		_, err := NewWallet(c).GetVersion(context.Background())

		var badResp *apdu.ErrBadResponse
		if !errors.As(err, &badResp) || badResp.Sw != sw {
			t.Fatalf("expected bad response with sw %04x, got %v", sw, err)
		}
	})
}

func TestWalletTransportError(t *testing.T) {
	c := &fakeChannel{err: errors.New("unplugged")}
	_, err := NewWallet(c).GetAppName(context.Background())
	assert.EqualError(t, err, "unplugged")
}

func TestWalletCachesVersion(t *testing.T) {
	c := &fakeChannel{responses: []*apdu.Response{apdu.NewResponse([]byte{1, 2, 3}, apdu.SwOK)}}
	w := NewWallet(c)

	v, err := w.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())

	_, err = w.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.sent, 1)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	assert.Error(t, RegisterMetrics(reg))

	okBefore := testutil.ToFloat64(apduExchanges.WithLabelValues("04", "9000"))
	rejectedBefore := testutil.ToFloat64(userRejections)

	c := &fakeChannel{responses: []*apdu.Response{
		apdu.NewResponse([]byte("app"), apdu.SwOK),
		apdu.NewResponse(nil, apdu.SwConditionsNotSatisfied),
	}}
	w := NewWallet(c)

	_, err := w.GetAppName(context.Background())
	require.NoError(t, err)

	_, err = w.GetAppName(context.Background())
	assert.ErrorIs(t, err, apdu.ErrUserRejected)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(apduExchanges.WithLabelValues("04", "9000")))
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(userRejections))
}
