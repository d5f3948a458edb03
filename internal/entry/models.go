// Package entry provides persistence for controller configuration entries
// created by the registration flow. Entries are unique by device serial
// number: registering the same controller twice is rejected.
package entry

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrDuplicateEntry = errors.New("an entry with this serial number already exists")
)

// DeviceClass describes what the controller operates.
type DeviceClass string

const (
	DeviceClassGarage DeviceClass = "garage"
	DeviceClassGate   DeviceClass = "gate"
)

// Valid reports whether the class is one of the supported values.
func (c DeviceClass) Valid() bool {
	return c == DeviceClassGarage || c == DeviceClassGate
}

// Entry is a persisted controller configuration.
type Entry struct {
	// SerialNumber is the unique identifier, retrieved from the device
	// during registration.
	SerialNumber string

	// Title is the display name shown in the UI, embedding host and
	// serial number.
	Title string

	// Host is the controller's address on the local network.
	Host string

	// APISecretKey and APIAuthKey are the credentials the platform uses
	// for every later connection to the device.
	APISecretKey string
	APIAuthKey   string

	// DeviceClass is garage or gate.
	DeviceClass DeviceClass

	CreatedAt time.Time
}

// KeyLast4 returns the last 4 characters of the API secret key for display
// purposes. Full keys never leave the service.
func (e *Entry) KeyLast4() string {
	if len(e.APISecretKey) < 4 {
		return e.APISecretKey
	}
	return e.APISecretKey[len(e.APISecretKey)-4:]
}
