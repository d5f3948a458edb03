// Package controller implements the WebSocket client for Gatewise gate and
// garage controllers. It handles the encrypted session handshake and the
// device-info query used during registration.
package controller

import "regexp"

// Connection option syntax patterns. The setup flow validates user input
// against these before any connection attempt is made.
var (
	// HostPattern matches an IPv4 address or an RFC-1123 host name.
	HostPattern = regexp.MustCompile(`^((25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)){3}|([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*)$`)

	// APIKeyPattern matches the API secret and auth keys printed on the
	// device: 64 characters, digits and uppercase letters.
	APIKeyPattern = regexp.MustCompile(`^[A-Z0-9]{64}$`)
)

// ConnectionOptions holds everything needed to open a session with a
// controller on the local network.
type ConnectionOptions struct {
	// Host is the controller's IP address or host name.
	Host string

	// APISecretKey decrypts the session-key challenge sent by the device.
	APISecretKey string

	// APIAuthKey authenticates frames exchanged with the device (HMAC).
	APIAuthKey string
}

// DeviceInfo is the identity and capability data reported by a controller
// after a successful handshake.
type DeviceInfo struct {
	// SerialNumber uniquely identifies the physical device.
	SerialNumber string

	// APIVersion is the device firmware's API version.
	APIVersion int

	// SensorInstalled reports whether a position sensor is wired to the
	// controller. Without one the device cannot report open/closed state.
	SensorInstalled bool
}
