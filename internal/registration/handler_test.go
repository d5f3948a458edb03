package registration_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/gatewise/internal/capability"
	"github.com/gatewise/gatewise/internal/controller"
	"github.com/gatewise/gatewise/internal/entry"
	"github.com/gatewise/gatewise/internal/events"
	"github.com/gatewise/gatewise/internal/flow"
	"github.com/gatewise/gatewise/internal/registration"
)

const (
	testHost      = "gate.local"
	testSecretKey = "0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF"
	testAuthKey   = "FEDCBA9876543210FEDCBA9876543210FEDCBA9876543210FEDCBA9876543210"
	testSerial    = "ABC123"
)

type fakeSession struct {
	info    *controller.DeviceInfo
	infoErr error
	closed  bool
}

func (s *fakeSession) DeviceInfo(context.Context) (*controller.DeviceInfo, error) {
	return s.info, s.infoErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	session  *fakeSession
	dialErr  error
	lastOpts controller.ConnectionOptions
	dials    int
}

func (d *fakeDialer) Dial(_ context.Context, opts controller.ConnectionOptions) (registration.Session, error) {
	d.dials++
	d.lastOpts = opts
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.session, nil
}

type capturingPublisher struct {
	published []events.EntryEvent
	err       error
}

func (p *capturingPublisher) PublishEntryEvent(_ context.Context, event events.EntryEvent) error {
	p.published = append(p.published, event)
	return p.err
}

type fixture struct {
	handler   *registration.Handler
	dialer    *fakeDialer
	entries   *entry.InMemoryRepository
	publisher *capturingPublisher
}

func newFixture(dialer *fakeDialer) *fixture {
	entries := entry.NewInMemoryRepository()
	publisher := &capturingPublisher{}

	handler := registration.NewHandler(registration.Config{
		Dialer: dialer,
		Capability: capability.NewPolicy(capability.PolicyConfig{
			MinAPIVersion: 2,
			RequireSensor: true,
			Logger:        zerolog.Nop(),
		}),
		Entries: entries,
		Events:  publisher,
		Logger:  zerolog.Nop(),
	})

	return &fixture{handler: handler, dialer: dialer, entries: entries, publisher: publisher}
}

func healthyDialer() *fakeDialer {
	return &fakeDialer{session: &fakeSession{
		info: &controller.DeviceInfo{
			SerialNumber:    testSerial,
			APIVersion:      2,
			SensorInstalled: true,
		},
	}}
}

func validInput() map[string]interface{} {
	return map[string]interface{}{
		"host":       testHost,
		"secret_key": testSecretKey,
		"auth_key":   testAuthKey,
	}
}

func TestHandleStep_InitialFormOnEmptyInput(t *testing.T) {
	f := newFixture(healthyDialer())

	result, err := f.handler.HandleStep(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, registration.StepUser, result.StepID)
	assert.Empty(t, result.Errors)
	assert.Zero(t, f.dialer.dials, "no device contact before submission")
}

func TestHandleStep_SuccessCreatesEntry(t *testing.T) {
	f := newFixture(healthyDialer())

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeCreateEntry, result.Type)
	assert.Equal(t, testSerial, result.UniqueID)
	assert.Contains(t, result.Title, testHost)
	assert.Contains(t, result.Title, testSerial)
	assert.Equal(t, testSerial, result.Data["serial_number"])

	stored, err := f.entries.Get(context.Background(), testSerial)
	require.NoError(t, err)
	assert.Equal(t, testHost, stored.Host)
	assert.Equal(t, testSecretKey, stored.APISecretKey)
	assert.Equal(t, entry.DeviceClassGarage, stored.DeviceClass, "device_class defaults to garage")

	assert.True(t, f.dialer.session.closed, "device session must be released")

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, events.EventEntryRegistered, f.publisher.published[0].Event)
	assert.Equal(t, testSerial, f.publisher.published[0].SerialNumber)
}

func TestHandleStep_LowercaseKeysAccepted(t *testing.T) {
	f := newFixture(healthyDialer())

	input := validInput()
	input["secret_key"] = strings.ToLower(testSecretKey)
	input["auth_key"] = strings.ToLower(testAuthKey)

	result, err := f.handler.HandleStep(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, flow.ResultTypeCreateEntry, result.Type)

	// The device is dialed with the upper-cased keys.
	assert.Equal(t, testSecretKey, f.dialer.lastOpts.APISecretKey)
	assert.Equal(t, testAuthKey, f.dialer.lastOpts.APIAuthKey)
}

func TestHandleStep_MissingFieldsReportedTogether(t *testing.T) {
	f := newFixture(healthyDialer())

	result, err := f.handler.HandleStep(context.Background(), map[string]interface{}{
		"host": testHost,
	})
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, map[string]string{
		"secret_key": "secret_key_required",
		"auth_key":   "auth_key_required",
	}, result.Errors)
	assert.Zero(t, f.dialer.dials, "no device contact on invalid input")
}

func TestHandleStep_InvalidFields(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]interface{})
		wantCode map[string]string
	}{
		{
			name:     "malformed host",
			mutate:   func(in map[string]interface{}) { in["host"] = "gate..local" },
			wantCode: map[string]string{"host": "host_invalid"},
		},
		{
			name:     "secret key too short",
			mutate:   func(in map[string]interface{}) { in["secret_key"] = "ABC123" },
			wantCode: map[string]string{"secret_key": "secret_key_invalid"},
		},
		{
			name:     "secret key with punctuation",
			mutate:   func(in map[string]interface{}) { in["secret_key"] = testSecretKey[:63] + "!" },
			wantCode: map[string]string{"secret_key": "secret_key_invalid"},
		},
		{
			name:     "auth key too long",
			mutate:   func(in map[string]interface{}) { in["auth_key"] = testAuthKey + "0" },
			wantCode: map[string]string{"auth_key": "auth_key_invalid"},
		},
		{
			name:     "unsupported device class",
			mutate:   func(in map[string]interface{}) { in["device_class"] = "door" },
			wantCode: map[string]string{"device_class": "device_class_invalid"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(healthyDialer())

			input := validInput()
			tc.mutate(input)

			result, err := f.handler.HandleStep(context.Background(), input)
			require.NoError(t, err)

			require.Equal(t, flow.ResultTypeForm, result.Type)
			assert.Equal(t, tc.wantCode, result.Errors)
			assert.Zero(t, f.dialer.dials)
		})
	}
}

func TestHandleStep_RedisplayPrefillsInput(t *testing.T) {
	f := newFixture(healthyDialer())

	input := validInput()
	input["secret_key"] = "tooshort"

	result, err := f.handler.HandleStep(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, testHost, result.Input["host"])
	assert.Equal(t, "tooshort", result.Input["secret_key"])
	assert.Equal(t, testAuthKey, result.Input["auth_key"])
}

func TestHandleStep_UnknownFieldsIgnored(t *testing.T) {
	f := newFixture(healthyDialer())

	input := validInput()
	input["theme"] = "dark"

	result, err := f.handler.HandleStep(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeCreateEntry, result.Type)
	assert.NotContains(t, result.Data, "theme")
}

func TestHandleStep_ConnectionFailure(t *testing.T) {
	f := newFixture(&fakeDialer{
		dialErr: controller.ErrConnectionEstablishment,
	})

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "cannot_connect", result.Errors[flow.FieldBase])
	assert.Equal(t, testHost, result.Input["host"], "values survive the redisplay")

	entries, err := f.entries.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleStep_AuthenticationFailure(t *testing.T) {
	f := newFixture(&fakeDialer{
		dialErr: controller.ErrAuthentication,
	})

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "invalid_auth", result.Errors[flow.FieldBase])
}

func TestHandleStep_UnexpectedFailureIsUnknown(t *testing.T) {
	f := newFixture(&fakeDialer{
		dialErr: errors.New("kaboom"),
	})

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "unknown", result.Errors[flow.FieldBase])
}

func TestHandleStep_QueryFailureClassified(t *testing.T) {
	// A session that authenticates but dies during the identity query is
	// still a connection problem for the user.
	f := newFixture(&fakeDialer{session: &fakeSession{
		infoErr: controller.ErrConnectionEstablishment,
	}})

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "cannot_connect", result.Errors[flow.FieldBase])
	assert.True(t, f.dialer.session.closed)
}

func TestHandleStep_UnsupportedDeviceAborts(t *testing.T) {
	dialer := healthyDialer()
	dialer.session.info.APIVersion = 1

	f := newFixture(dialer)

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeAbort, result.Type)
	assert.Equal(t, "unsupported_device", result.Reason)

	entries, err := f.entries.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "no entry persisted for unsupported devices")
}

func TestHandleStep_MissingSensorAborts(t *testing.T) {
	dialer := healthyDialer()
	dialer.session.info.SensorInstalled = false

	f := newFixture(dialer)

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeAbort, result.Type)
	assert.Equal(t, "unsupported_device", result.Reason)
}

func TestHandleStep_DuplicateSerialAborts(t *testing.T) {
	f := newFixture(healthyDialer())

	first, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, flow.ResultTypeCreateEntry, first.Type)

	second, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)

	require.Equal(t, flow.ResultTypeAbort, second.Type)
	assert.Equal(t, "already_configured", second.Reason)

	entries, err := f.entries.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no second entry for the same serial number")
}

func TestHandleStep_PublishFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(healthyDialer())
	f.publisher.err = errors.New("broker down")

	result, err := f.handler.HandleStep(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeCreateEntry, result.Type)

	_, err = f.entries.Get(context.Background(), testSerial)
	assert.NoError(t, err)
}

func TestHandleStep_GateDeviceClass(t *testing.T) {
	f := newFixture(healthyDialer())

	input := validInput()
	input["device_class"] = "gate"

	result, err := f.handler.HandleStep(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, flow.ResultTypeCreateEntry, result.Type)
	assert.Equal(t, "gate", result.Data["device_class"])

	stored, err := f.entries.Get(context.Background(), testSerial)
	require.NoError(t, err)
	assert.Equal(t, entry.DeviceClassGate, stored.DeviceClass)
}
