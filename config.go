package keychain

// Config holds the keychain settings.
type Config struct {
	// StartWithInitialSigningKey derives the local key at index 0 and makes
	// it active before the keychain is returned.
	StartWithInitialSigningKey bool

	// HardenedAddresses selects hardened address indexes for keys derived
	// by restore and by the initial key.
	HardenedAddresses bool
}

func DefaultConfig() Config {
	return Config{
		StartWithInitialSigningKey: true,
		HardenedAddresses:          true,
	}
}
