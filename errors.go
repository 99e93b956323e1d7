package keychain

import "errors"

var (
	// ErrEmptyKeychain is returned when switching by index on a keychain without keys.
	ErrEmptyKeychain = errors.New("cannot switch signing key, keychain is empty")

	ErrNegativeRestoreIndex = errors.New("restore target index must not be negative")

	// ErrNoActiveSigningKey is returned by Sign when no key became active
	// before the context ended or the keychain was closed.
	ErrNoActiveSigningKey = errors.New("no active signing key")

	ErrNilHardwareWallet = errors.New("hardware wallet is required")
)
