package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultPort is the WebSocket port controllers listen on.
	DefaultPort = 8080

	// defaultHandshakeTimeout bounds the dial plus authentication exchange.
	// The registration flow itself sets no timeout and relies on this.
	defaultHandshakeTimeout = 60 * time.Second

	// actionIDModulus wraps the action counter the same way device
	// firmware does.
	actionIDModulus = 0x7FFFFFFF
)

// ClientConfig holds configuration for the controller client.
type ClientConfig struct {
	// Logger for handshake and query diagnostics.
	Logger zerolog.Logger

	// Port overrides DefaultPort. Useful for tests.
	Port int

	// HandshakeTimeout bounds dial plus authentication.
	// Default: 60 seconds.
	HandshakeTimeout time.Duration
}

// Client opens authenticated sessions with controllers.
type Client struct {
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	port    int
	timeout time.Duration
}

// NewClient creates a controller client.
func NewClient(cfg ClientConfig) *Client {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}

	return &Client{
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		logger:  cfg.Logger,
		port:    port,
		timeout: timeout,
	}
}

// Dial connects to the controller at opts.Host and performs the encrypted
// authentication handshake. Dial failures wrap ErrConnectionEstablishment;
// rejected keys wrap ErrAuthentication.
func (c *Client) Dial(ctx context.Context, opts ConnectionOptions) (*Session, error) {
	host := opts.Host
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, strconv.Itoa(c.port))
	}
	url := "ws://" + host + "/"

	c.logger.Debug().Str("url", url).Msg("dialing controller")

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionEstablishment, url, err)
	}

	session := &Session{
		conn:    conn,
		encKey:  encryptionKey(opts.APISecretKey),
		macKey:  []byte(opts.APIAuthKey),
		logger:  c.logger.With().Str("host", opts.Host).Logger(),
		timeout: c.timeout,
	}

	if err := session.authenticate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return session, nil
}

// Session is an authenticated connection to a controller. Sessions are not
// safe for concurrent use; the flow engine evaluates one step at a time.
type Session struct {
	conn       *websocket.Conn
	encKey     []byte
	macKey     []byte
	sessionKey []byte
	actionID   int
	logger     zerolog.Logger
	timeout    time.Duration
}

// challengeEnvelope is the decrypted authentication challenge.
type challengeEnvelope struct {
	Challenge struct {
		SessionKey      string `json:"sessionKey"`
		InitialActionID int    `json:"initialActionId"`
	} `json:"challenge"`
}

// actionEnvelope is an encrypted request to the device.
type actionEnvelope struct {
	Action actionBody `json:"action"`
}

type actionBody struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

// responseEnvelope is a decrypted device response.
type responseEnvelope struct {
	Response struct {
		Type            string `json:"type"`
		ID              int    `json:"id"`
		Success         bool   `json:"success"`
		ErrorCode       string `json:"errorCode,omitempty"`
		SerialNumber    string `json:"serialNumber,omitempty"`
		APIVersion      int    `json:"apiVersion,omitempty"`
		SensorInstalled bool   `json:"sensorInstalled,omitempty"`
	} `json:"response"`
}

// authenticate sends the AUTH frame and decrypts the session-key challenge
// with the API secret key. Subsequent actions are encrypted with the
// session key and authenticated with the API auth key.
func (s *Session) authenticate(ctx context.Context) error {
	if err := s.writeFrame(ctx, &frame{Type: frameTypeAuth}); err != nil {
		return fmt.Errorf("%w: send auth: %v", ErrConnectionEstablishment, err)
	}

	f, err := s.readFrame(ctx)
	if err != nil {
		return fmt.Errorf("%w: read challenge: %v", ErrConnectionEstablishment, err)
	}

	switch f.Type {
	case frameTypeEncrypted:
		// Expected; handled below.
	case frameTypeError:
		if strings.Contains(strings.ToLower(f.ErrMessage), "authentication") {
			return fmt.Errorf("%w: %s", ErrAuthentication, f.ErrMessage)
		}
		return fmt.Errorf("device error during handshake: %s", f.ErrMessage)
	default:
		return fmt.Errorf("unexpected frame %q during handshake", f.Type)
	}

	payload, err := openFrame(f, s.encKey, s.macKey)
	if err != nil {
		return err
	}

	var challenge challengeEnvelope
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return fmt.Errorf("%w: undecodable challenge", ErrAuthentication)
	}

	sessionKey, err := base64.StdEncoding.DecodeString(challenge.Challenge.SessionKey)
	if err != nil || len(sessionKey) != 32 {
		return fmt.Errorf("%w: malformed session key", ErrAuthentication)
	}

	s.sessionKey = sessionKey
	s.actionID = challenge.Challenge.InitialActionID

	s.logger.Debug().Msg("controller session authenticated")

	return nil
}

// DeviceInfo queries the device for its serial number, API version and
// sensor presence.
func (s *Session) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	s.actionID = (s.actionID + 1) % actionIDModulus

	request := actionEnvelope{Action: actionBody{Type: "QUERY", ID: s.actionID}}
	sealed, err := sealFrame(request, s.sessionKey, s.macKey)
	if err != nil {
		return nil, fmt.Errorf("seal query: %w", err)
	}
	if err := s.writeFrame(ctx, sealed); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	for {
		f, err := s.readFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("read query response: %w", err)
		}

		switch f.Type {
		case frameTypePing:
			if err := s.writeFrame(ctx, &frame{Type: frameTypePong}); err != nil {
				return nil, fmt.Errorf("send pong: %w", err)
			}
			continue
		case frameTypePong:
			continue
		case frameTypeError:
			return nil, fmt.Errorf("device error: %s", f.ErrMessage)
		case frameTypeEncrypted:
			payload, err := openFrame(f, s.sessionKey, s.macKey)
			if err != nil {
				return nil, err
			}

			var envelope responseEnvelope
			if err := json.Unmarshal(payload, &envelope); err != nil {
				return nil, fmt.Errorf("decode query response: %w", err)
			}
			resp := envelope.Response
			if resp.ID != s.actionID {
				return nil, fmt.Errorf("response id %d does not match action id %d", resp.ID, s.actionID)
			}
			if !resp.Success {
				return nil, fmt.Errorf("query rejected by device: %s", resp.ErrorCode)
			}

			return &DeviceInfo{
				SerialNumber:    resp.SerialNumber,
				APIVersion:      resp.APIVersion,
				SensorInstalled: resp.SensorInstalled,
			}, nil
		default:
			return nil, fmt.Errorf("unexpected frame %q", f.Type)
		}
	}
}

// Close terminates the session.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) writeFrame(ctx context.Context, f *frame) error {
	_ = s.conn.SetWriteDeadline(s.deadline(ctx))
	return s.conn.WriteJSON(f)
}

func (s *Session) readFrame(ctx context.Context) (*frame, error) {
	_ = s.conn.SetReadDeadline(s.deadline(ctx))
	var f frame
	if err := s.conn.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// deadline picks the earlier of the context deadline and the session
// timeout.
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
