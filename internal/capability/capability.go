// Package capability decides whether a controller reported by the device
// client is supported by the platform. The local policy covers firmware API
// version and sensor presence; an optional remote product catalog covers
// discontinued or region-restricted product lines.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gatewise/gatewise/internal/controller"
)

// ErrUnsupportedDevice indicates the device cannot be registered. The
// registration flow aborts rather than inviting a retry.
var ErrUnsupportedDevice = errors.New("device is not supported")

// MinimumAPIVersion is the oldest firmware API version the platform can
// operate. Devices below it lack the state-reporting actions the cover
// integration depends on.
const MinimumAPIVersion = 2

// Checker decides whether a device may be registered.
type Checker interface {
	// Check returns nil when the device is supported, an error wrapping
	// ErrUnsupportedDevice when it is not, and any other error only for
	// infrastructure failures.
	Check(ctx context.Context, info *controller.DeviceInfo) error
}

// PolicyConfig holds configuration for the capability policy.
type PolicyConfig struct {
	// MinAPIVersion is the minimum supported firmware API version.
	// Default: MinimumAPIVersion.
	MinAPIVersion int

	// RequireSensor rejects devices without a position sensor installed.
	RequireSensor bool

	// Catalog is the optional remote product catalog. When nil, or when
	// the catalog is unreachable, only the local policy applies.
	Catalog *CatalogClient

	Logger zerolog.Logger
}

// DefaultPolicyConfig returns the platform's standard policy.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinAPIVersion: MinimumAPIVersion,
		RequireSensor: true,
	}
}

// Policy is the default Checker implementation.
type Policy struct {
	minAPIVersion int
	requireSensor bool
	catalog       *CatalogClient
	logger        zerolog.Logger
}

// NewPolicy creates a capability policy.
func NewPolicy(cfg PolicyConfig) *Policy {
	minVersion := cfg.MinAPIVersion
	if minVersion == 0 {
		minVersion = MinimumAPIVersion
	}

	return &Policy{
		minAPIVersion: minVersion,
		requireSensor: cfg.RequireSensor,
		catalog:       cfg.Catalog,
		logger:        cfg.Logger,
	}
}

// Check applies the local policy first, then consults the catalog.
// A catalog outage must not block registration of devices the local policy
// accepts, so catalog errors degrade to a warning.
func (p *Policy) Check(ctx context.Context, info *controller.DeviceInfo) error {
	if info.APIVersion < p.minAPIVersion {
		return fmt.Errorf("%w: api version %d below minimum %d",
			ErrUnsupportedDevice, info.APIVersion, p.minAPIVersion)
	}

	if p.requireSensor && !info.SensorInstalled {
		return fmt.Errorf("%w: no position sensor installed", ErrUnsupportedDevice)
	}

	if p.catalog != nil {
		supported, err := p.catalog.IsSupported(ctx, info.SerialNumber)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("serial_number", info.SerialNumber).
				Msg("product catalog unavailable, falling back to local policy")
			return nil
		}
		if !supported {
			return fmt.Errorf("%w: product line rejected by catalog", ErrUnsupportedDevice)
		}
	}

	return nil
}

// Ensure Policy implements Checker.
var _ Checker = (*Policy)(nil)
