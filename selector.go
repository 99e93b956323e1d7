package keychain

import (
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/signingkey"
)

// Selector picks the signing key to activate. It is one of First, Last,
// ToIndex or ToSigningKey.
type Selector interface {
	isSelector()
}

type First struct{}

type Last struct{}

// ToIndex selects the key at Index, clamped to the keychain size.
type ToIndex struct {
	Index int
}

// ToSigningKey selects Key, adding it to the keychain first if needed.
type ToSigningKey struct {
	Key signingkey.SigningKey
}

func (First) isSelector()        {}
func (Last) isSelector()         {}
func (ToIndex) isSelector()      {}
func (ToSigningKey) isSelector() {}

// HWPathSelector tells DeriveHWSigningKey which path to use: HWNext or HWPath.
type HWPathSelector interface {
	isHWPathSelector()
}

// HWNext uses the address index following the hardware keys already known.
type HWNext struct {
	Hardened bool
}

type HWPath struct {
	Path derivationpath.Path
}

func (HWNext) isHWPathSelector() {}
func (HWPath) isHWPathSelector() {}
