// Package registration implements the setup step that registers a gate or
// garage controller: it validates the submitted connection parameters,
// contacts the device to confirm reachability and credentials, reads the
// serial number, and persists a configuration entry keyed by it.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatewise/gatewise/internal/capability"
	"github.com/gatewise/gatewise/internal/controller"
	"github.com/gatewise/gatewise/internal/entry"
	"github.com/gatewise/gatewise/internal/events"
	"github.com/gatewise/gatewise/internal/flow"
)

// StepUser is the single user-facing step of the registration flow.
const StepUser = "user"

// Flow-level error codes surfaced to the UI under flow.FieldBase.
const (
	ErrCodeCannotConnect = "cannot_connect"
	ErrCodeInvalidAuth   = "invalid_auth"
	ErrCodeUnknown       = "unknown"
)

// Abort reasons.
const (
	AbortUnsupportedDevice = "unsupported_device"
	AbortAlreadyConfigured = "already_configured"
)

// Form field names.
const (
	FieldHost        = "host"
	FieldSecretKey   = "secret_key"
	FieldAuthKey     = "auth_key"
	FieldDeviceClass = "device_class"
)

// Session is an authenticated device connection, as produced by Dialer.
type Session interface {
	DeviceInfo(ctx context.Context) (*controller.DeviceInfo, error)
	Close() error
}

// Dialer opens authenticated device sessions. Dial failures wrap
// controller.ErrConnectionEstablishment; rejected credentials wrap
// controller.ErrAuthentication.
type Dialer interface {
	Dial(ctx context.Context, opts controller.ConnectionOptions) (Session, error)
}

// ClientDialer adapts controller.Client to the Dialer interface.
type ClientDialer struct {
	Client *controller.Client
}

func (d ClientDialer) Dial(ctx context.Context, opts controller.ConnectionOptions) (Session, error) {
	return d.Client.Dial(ctx, opts)
}

// Config holds the registration handler's dependencies.
type Config struct {
	Dialer     Dialer
	Capability capability.Checker
	Entries    entry.Repository

	// Events is optional; a nil publisher disables notifications.
	Events events.Publisher

	Logger zerolog.Logger
}

// Handler runs the registration step. One handler serves one flow instance.
type Handler struct {
	dialer     Dialer
	capability capability.Checker
	entries    entry.Repository
	events     events.Publisher
	logger     zerolog.Logger
	schema     *flow.Schema
}

// NewHandler creates a registration step handler.
func NewHandler(cfg Config) *Handler {
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Handler{
		dialer:     cfg.Dialer,
		capability: cfg.Capability,
		entries:    cfg.Entries,
		events:     publisher,
		logger:     cfg.Logger,
		schema:     registrationSchema(),
	}
}

// registrationSchema declares the form: host plus the two 64-character API
// keys, which are upper-cased before matching so lowercase input is
// accepted.
func registrationSchema() *flow.Schema {
	return &flow.Schema{
		Fields: []flow.FieldRule{
			{
				Name:     FieldHost,
				Required: true,
				Pattern:  controller.HostPattern,
			},
			{
				Name:      FieldSecretKey,
				Required:  true,
				Transform: strings.ToUpper,
				Pattern:   controller.APIKeyPattern,
			},
			{
				Name:      FieldAuthKey,
				Required:  true,
				Transform: strings.ToUpper,
				Pattern:   controller.APIKeyPattern,
			},
			{
				Name:    FieldDeviceClass,
				Default: string(entry.DeviceClassGarage),
				OneOf:   []string{string(entry.DeviceClassGarage), string(entry.DeviceClassGate)},
			},
		},
	}
}

// StepID names the step this handler owns.
func (h *Handler) StepID() string { return StepUser }

// HandleStep evaluates one submission of the registration form. Empty input
// renders the initial form; invalid input redisplays it with per-field error
// codes and the previously typed values pre-filled.
func (h *Handler) HandleStep(ctx context.Context, input map[string]interface{}) (*flow.Result, error) {
	if len(input) == 0 {
		return flow.ShowForm(StepUser, h.schema, nil, nil), nil
	}

	values, fieldErrors := h.schema.Validate(input)
	if len(fieldErrors) > 0 {
		return flow.ShowForm(StepUser, h.schema, h.schema.Prefill(input), fieldErrors), nil
	}

	info, code := h.probeDevice(ctx, values)
	if code != "" {
		return flow.ShowForm(StepUser, h.schema, h.schema.Prefill(input), map[string]string{
			flow.FieldBase: code,
		}), nil
	}

	if err := h.capability.Check(ctx, info); err != nil {
		if errors.Is(err, capability.ErrUnsupportedDevice) {
			h.logger.Info().
				Str("serial_number", info.SerialNumber).
				Int("api_version", info.APIVersion).
				Msg("registration aborted: unsupported device")
			return flow.Abort(AbortUnsupportedDevice), nil
		}
		h.logger.Error().Err(err).Msg("capability check failed")
		return flow.ShowForm(StepUser, h.schema, h.schema.Prefill(input), map[string]string{
			flow.FieldBase: ErrCodeUnknown,
		}), nil
	}

	record := entry.Entry{
		SerialNumber: info.SerialNumber,
		Title:        entryTitle(values[FieldHost], info.SerialNumber),
		Host:         values[FieldHost],
		APISecretKey: values[FieldSecretKey],
		APIAuthKey:   values[FieldAuthKey],
		DeviceClass:  entry.DeviceClass(values[FieldDeviceClass]),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.entries.Create(ctx, &record); err != nil {
		if errors.Is(err, entry.ErrDuplicateEntry) {
			return flow.Abort(AbortAlreadyConfigured), nil
		}
		return nil, fmt.Errorf("persist entry: %w", err)
	}

	if err := h.events.PublishEntryEvent(ctx, events.EntryEvent{
		Event:        events.EventEntryRegistered,
		SerialNumber: record.SerialNumber,
		DeviceClass:  string(record.DeviceClass),
		OccurredAt:   record.CreatedAt,
	}); err != nil {
		// Best effort; the entry is already persisted.
		h.logger.Warn().Err(err).Msg("entry event publish failed")
	}

	h.logger.Info().
		Str("serial_number", record.SerialNumber).
		Str("host", record.Host).
		Msg("controller registered")

	return flow.CreateEntry(record.Title, record.SerialNumber, map[string]string{
		FieldHost:        record.Host,
		FieldSecretKey:   record.APISecretKey,
		FieldAuthKey:     record.APIAuthKey,
		FieldDeviceClass: string(record.DeviceClass),
		"serial_number":  record.SerialNumber,
	}), nil
}

// probeDevice connects with the validated credentials and reads the device
// identity. It returns a flow-level error code on failure, empty on success.
func (h *Handler) probeDevice(ctx context.Context, values map[string]string) (*controller.DeviceInfo, string) {
	session, err := h.dialer.Dial(ctx, controller.ConnectionOptions{
		Host:         values[FieldHost],
		APISecretKey: values[FieldSecretKey],
		APIAuthKey:   values[FieldAuthKey],
	})
	if err != nil {
		return nil, h.classify(err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			h.logger.Debug().Err(err).Msg("session close failed")
		}
	}()

	info, err := session.DeviceInfo(ctx)
	if err != nil {
		return nil, h.classify(err)
	}

	return info, ""
}

// classify maps device-contact failures to the UI error vocabulary. Errors
// outside the device client's declared set are logged in full for
// diagnostics and surfaced as "unknown".
func (h *Handler) classify(err error) string {
	switch {
	case errors.Is(err, controller.ErrConnectionEstablishment):
		h.logger.Warn().Err(err).Msg("controller unreachable")
		return ErrCodeCannotConnect
	case errors.Is(err, controller.ErrAuthentication):
		h.logger.Warn().Err(err).Msg("controller rejected credentials")
		return ErrCodeInvalidAuth
	default:
		h.logger.Error().Err(err).Msg("unexpected error contacting controller")
		return ErrCodeUnknown
	}
}

func entryTitle(host, serialNumber string) string {
	return fmt.Sprintf("Gate Controller (Host: %s, S/N: %s)", host, serialNumber)
}
