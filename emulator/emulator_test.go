package emulator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/signingkeychain-go/apdu"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/hardware"
	"github.com/status-im/signingkeychain-go/transport"
)

func newOpenDevice(t *testing.T, cfg Config) *Device {
	d, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Open(context.Background()))

	return d
}

func TestStatusWords(t *testing.T) {
	d := newOpenDevice(t, DefaultConfig())
	path := derivationpath.MustParse("m/44'/536'/0'/0/0")
	ctx := context.Background()

	scenarios := []struct {
		name string
		cmd  *apdu.Command
		sw   uint16
	}{
		{"wrong class", apdu.NewCommand(0xE0, hardware.InsGetVersion, 0, 0, nil), apdu.SwClaNotSupported},
		{"unknown instruction", apdu.NewCommand(hardware.ClaWallet, 0x42, 0, 0, nil), apdu.SwInsNotSupported},
		{"payload on get version", apdu.NewCommand(hardware.ClaWallet, hardware.InsGetVersion, 0, 0, []byte{1}), apdu.SwWrongDataLength},
		{"bad flag", apdu.NewCommand(hardware.ClaWallet, hardware.InsGetPublicKey, 2, 0, path.Encode()), apdu.SwWrongP1P2},
		{"short path", apdu.NewCommand(hardware.ClaWallet, hardware.InsGetPublicKey, 0, 0, []byte{3, 0, 0}), apdu.SwParseBIP32PathFailed},
		{"bad hash", apdu.NewCommand(hardware.ClaWallet, hardware.InsDoSignHash, 0, 0, append(path.Encode(), 1, 0xff)), apdu.SwParseHashFailed},
		{"bad public key", apdu.NewCommand(hardware.ClaWallet, hardware.InsDoKeyExchange, 0, 0, append(path.Encode(), 1, 0x04)), apdu.SwParsePublicKeyFailed},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			resp, err := d.Send(ctx, s.cmd)
			require.NoError(t, err)
			assert.Equal(t, s.sw, resp.Sw)
		})
	}
}

func TestLockedAndWrongApp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockedOpens = 1
	cfg.WrongAppOpens = 1
	d, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	err = d.Open(ctx)
	assert.ErrorIs(t, err, ErrDeviceLocked)
	var te *transport.Error
	assert.True(t, errors.As(err, &te))

	require.NoError(t, d.Open(ctx))
	resp, err := d.Send(ctx, hardware.NewCommandGetAppName())
	require.NoError(t, err)
	assert.Equal(t, dashboardAppName, string(resp.Data))

	resp, err = d.Send(ctx, hardware.NewCommandGetVersion())
	require.NoError(t, err)
	assert.Equal(t, uint16(apdu.SwClaNotSupported), resp.Sw)

	require.NoError(t, d.Close())
	require.NoError(t, d.Open(ctx))
	resp, err = d.Send(ctx, hardware.NewCommandGetAppName())
	require.NoError(t, err)
	assert.Equal(t, hardware.DefaultAppName, string(resp.Data))
	assert.Equal(t, 3, d.Opens())
}

func TestSendOnClosedDevice(t *testing.T) {
	d, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = d.Send(context.Background(), hardware.NewCommandGetVersion())
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestCloseReleasesPendingConfirmation(t *testing.T) {
	d := newOpenDevice(t, DefaultConfig())
	path := derivationpath.MustParse("m/44'/536'/0'/0/0")

	done := make(chan error, 1)
	go func() {
		_, err := d.Send(context.Background(), hardware.NewCommandGetPublicKey(path, true, false))
		done <- err
	}()

	<-d.Prompts()
	require.NoError(t, d.Close())
	assert.ErrorIs(t, <-done, transport.ErrClosed)
}

func TestInvalidMnemonic(t *testing.T) {
	_, err := New(Config{Mnemonic: "not a mnemonic"})
	assert.Error(t, err)
}
