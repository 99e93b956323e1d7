package hardware

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/status-im/signingkeychain-go/apdu"
	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
)

const (
	ClaWallet = 0xAA

	InsGetVersion    = 0x03
	InsGetAppName    = 0x04
	InsGetPublicKey  = 0x05
	InsDoSignHash    = 0x07
	InsDoKeyExchange = 0x08

	P1NoConfirmation      = 0x00
	P1RequireConfirmation = 0x01
	P2NoDisplay           = 0x00
	P2DisplayAddress      = 0x01
)

var (
	ErrWrongClass        = errors.New("wrong class byte")
	ErrWrongInstruction  = errors.New("wrong instruction")
	ErrWrongFlag         = errors.New("p1/p2 flag must be 0 or 1")
	ErrTrailingData      = errors.New("trailing data after payload")
	ErrWrongPublicKey    = errors.New("public key must be 65 bytes uncompressed")
	ErrUnexpectedPayload = errors.New("instruction takes no payload")
)

func NewCommandGetVersion() *apdu.Command {
	return apdu.NewCommand(
		ClaWallet,
		InsGetVersion,
		0,
		0,
		nil,
	)
}

func NewCommandGetAppName() *apdu.Command {
	return apdu.NewCommand(
		ClaWallet,
		InsGetAppName,
		0,
		0,
		nil,
	)
}

func NewCommandGetPublicKey(path derivationpath.Path, requireConfirmation, displayAddress bool) *apdu.Command {
	p1 := uint8(P1NoConfirmation)
	if requireConfirmation {
		p1 = P1RequireConfirmation
	}

	p2 := uint8(P2NoDisplay)
	if displayAddress {
		p2 = P2DisplayAddress
	}

	return apdu.NewCommand(
		ClaWallet,
		InsGetPublicKey,
		p1,
		p2,
		path.Encode(),
	)
}

func NewCommandSignHash(path derivationpath.Path, hash []byte, requireConfirmation bool) (*apdu.Command, error) {
	if len(hash) != crypto.HashLength {
		return nil, crypto.ErrInvalidHashLength
	}

	buf := bytes.NewBuffer(path.Encode())
	if err := apdu.WriteLengthPrefixed(buf, hash); err != nil {
		return nil, err
	}

	return apdu.NewCommand(
		ClaWallet,
		InsDoSignHash,
		confirmationFlag(requireConfirmation),
		0,
		buf.Bytes(),
	), nil
}

func NewCommandKeyExchange(path derivationpath.Path, pubKey []byte, requireConfirmation bool) (*apdu.Command, error) {
	if len(pubKey) != 65 || pubKey[0] != 0x04 {
		return nil, ErrWrongPublicKey
	}

	buf := bytes.NewBuffer(path.Encode())
	if err := apdu.WriteLengthPrefixed(buf, pubKey); err != nil {
		return nil, err
	}

	return apdu.NewCommand(
		ClaWallet,
		InsDoKeyExchange,
		confirmationFlag(requireConfirmation),
		0,
		buf.Bytes(),
	), nil
}

func confirmationFlag(require bool) uint8 {
	if require {
		return P1RequireConfirmation
	}

	return P1NoConfirmation
}

// GetPublicKeyRequest is the decoded form of a GET_PUBLIC_KEY command.
type GetPublicKeyRequest struct {
	Path                derivationpath.Path
	RequireConfirmation bool
	DisplayAddress      bool
}

// SignHashRequest is the decoded form of a DO_SIGN_HASH command.
type SignHashRequest struct {
	Path                derivationpath.Path
	Hash                []byte
	RequireConfirmation bool
}

// KeyExchangeRequest is the decoded form of a DO_KEY_EXCHANGE command.
type KeyExchangeRequest struct {
	Path                derivationpath.Path
	PublicKey           []byte
	RequireConfirmation bool
}

func ParseGetPublicKeyCommand(cmd *apdu.Command) (*GetPublicKeyRequest, error) {
	if err := checkHeader(cmd, InsGetPublicKey); err != nil {
		return nil, err
	}

	confirm, err := parseFlag(cmd.P1)
	if err != nil {
		return nil, err
	}

	display, err := parseFlag(cmd.P2)
	if err != nil {
		return nil, err
	}

	path, rest, err := derivationpath.DecodeBinary(cmd.Data)
	if err != nil {
		return nil, err
	}

	if len(rest) != 0 {
		return nil, ErrTrailingData
	}

	return &GetPublicKeyRequest{
		Path:                path,
		RequireConfirmation: confirm,
		DisplayAddress:      display,
	}, nil
}

func ParseSignHashCommand(cmd *apdu.Command) (*SignHashRequest, error) {
	if err := checkHeader(cmd, InsDoSignHash); err != nil {
		return nil, err
	}

	confirm, err := parseFlag(cmd.P1)
	if err != nil {
		return nil, err
	}

	path, hash, err := parsePathAndField(cmd.Data)
	if err != nil {
		return nil, err
	}

	if len(hash) != crypto.HashLength {
		return nil, crypto.ErrInvalidHashLength
	}

	return &SignHashRequest{
		Path:                path,
		Hash:                hash,
		RequireConfirmation: confirm,
	}, nil
}

func ParseKeyExchangeCommand(cmd *apdu.Command) (*KeyExchangeRequest, error) {
	if err := checkHeader(cmd, InsDoKeyExchange); err != nil {
		return nil, err
	}

	confirm, err := parseFlag(cmd.P1)
	if err != nil {
		return nil, err
	}

	path, pubKey, err := parsePathAndField(cmd.Data)
	if err != nil {
		return nil, err
	}

	if len(pubKey) != 65 || pubKey[0] != 0x04 {
		return nil, ErrWrongPublicKey
	}

	return &KeyExchangeRequest{
		Path:                path,
		PublicKey:           pubKey,
		RequireConfirmation: confirm,
	}, nil
}

// ParseNoPayloadCommand validates GET_VERSION and GET_APP_NAME.
func ParseNoPayloadCommand(cmd *apdu.Command, ins uint8) error {
	if err := checkHeader(cmd, ins); err != nil {
		return err
	}

	if len(cmd.Data) != 0 {
		return ErrUnexpectedPayload
	}

	return nil
}

func checkHeader(cmd *apdu.Command, ins uint8) error {
	if cmd.Cla != ClaWallet {
		return fmt.Errorf("%w: %02x", ErrWrongClass, cmd.Cla)
	}

	if cmd.Ins != ins {
		return fmt.Errorf("%w: got %02x, want %02x", ErrWrongInstruction, cmd.Ins, ins)
	}

	return nil
}

func parseFlag(b uint8) (bool, error) {
	switch b {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, ErrWrongFlag
	}
}

func parsePathAndField(data []byte) (derivationpath.Path, []byte, error) {
	path, rest, err := derivationpath.DecodeBinary(data)
	if err != nil {
		return derivationpath.Path{}, nil, err
	}

	field, rest, err := apdu.ReadLengthPrefixed(rest)
	if err != nil {
		return derivationpath.Path{}, nil, err
	}

	if len(rest) != 0 {
		return derivationpath.Path{}, nil, ErrTrailingData
	}

	return path, append([]byte(nil), field...), nil
}
