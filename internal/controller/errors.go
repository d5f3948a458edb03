package controller

import "errors"

// Failure classes surfaced to the registration flow. Every error returned by
// Dial or Session wraps one of these (or neither, for unanticipated
// failures), so callers can switch over a closed set of variants.
var (
	// ErrConnectionEstablishment indicates the device could not be reached
	// at all: DNS failure, refused connection, timeout during dial.
	ErrConnectionEstablishment = errors.New("connection to controller could not be established")

	// ErrAuthentication indicates the device was reached but rejected the
	// API keys: explicit auth error from the device, a frame MAC mismatch,
	// or an undecryptable challenge.
	ErrAuthentication = errors.New("controller rejected authentication")
)
