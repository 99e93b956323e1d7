package signingkey

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/status-im/signingkeychain-go/derivationpath"
)

// Kind tells where the private key of an HD signing key lives.
type Kind int

const (
	KindLocal Kind = iota
	KindHardware
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "Local"
	case KindHardware:
		return "Hardware"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Type is either HDType or NonHDType.
type Type interface {
	// UniqueKey is a stable identity string for the type.
	UniqueKey() string

	isType()
}

// HDType is the type of keys derived along a BIP44 path.
type HDType struct {
	Kind Kind
	Path derivationpath.Path
}

func (t HDType) UniqueKey() string {
	return fmt.Sprintf("%s_HD_BIP32_at_path_%s", t.Kind, t.Path)
}

func (HDType) isType() {}

// NonHDType is the type of keys imported from a raw private key.
type NonHDType struct {
	Name fn.Option[string]
}

func (t NonHDType) UniqueKey() string {
	return fn.MapOption(func(name string) string {
		return "Non_HD_with_name_" + name
	})(t.Name).UnwrapOr("Non_HD")
}

func (NonHDType) isType() {}

// AsHD returns the HD type of t, if it is one.
func AsHD(t Type) (HDType, bool) {
	hd, ok := t.(HDType)
	return hd, ok
}

// IsLocalHD reports whether t is an HD type derived in process.
func IsLocalHD(t Type) bool {
	hd, ok := AsHD(t)
	return ok && hd.Kind == KindLocal
}

// IsHardwareHD reports whether t is an HD type held by a hardware device.
func IsHardwareHD(t Type) bool {
	hd, ok := AsHD(t)
	return ok && hd.Kind == KindHardware
}
