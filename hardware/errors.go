package hardware

import "errors"

var (
	// ErrDeviceTimeout is returned when the expected app did not open
	// within the configured number of retries.
	ErrDeviceTimeout = errors.New("timed out waiting for the wallet app on the device")

	ErrConnectionClosed = errors.New("connection closed")
	ErrWrongAppName     = errors.New("unexpected app open on the device")

	// ErrUnsupportedVersion is returned when the wallet app is older than
	// ConnectionConfig.MinAppVersion.
	ErrUnsupportedVersion = errors.New("wallet app version not supported")
)
