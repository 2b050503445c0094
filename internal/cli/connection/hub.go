package connection

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/yndnr/authmesh-go/pkg/crypto/srp"
	"github.com/yndnr/authmesh-go/pkg/frame"
)

// Errors returned by the hub client.
var (
	ErrNotConnected = errors.New("connection: not connected")
	ErrRejected     = errors.New("connection: request rejected by hub")
	ErrBadResponse  = errors.New("connection: malformed response")
	ErrHostProof    = errors.New("connection: hub failed to prove the password verifier")
)

// HubClient speaks the frame protocol to one hub.
type HubClient struct {
	addr      string
	tlsConfig *tls.Config
	timeout   time.Duration

	conn net.Conn
	br   *bufio.Reader
	seq  uint16
}

// HubOption configures a HubClient.
type HubOption func(*HubClient)

// WithTLS dials with TLS.
func WithTLS(cfg *tls.Config) HubOption {
	return func(c *HubClient) { c.tlsConfig = cfg }
}

// WithTimeout bounds each request/response round trip (default: 10s).
func WithTimeout(d time.Duration) HubOption {
	return func(c *HubClient) { c.timeout = d }
}

// NewHubClient creates a client for the hub at addr.
func NewHubClient(addr string, opts ...HubOption) *HubClient {
	c := &HubClient{addr: addr, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the hub.
func (c *HubClient) Connect(ctx context.Context) error {
	var (
		conn net.Conn
		err  error
	)
	if c.tlsConfig != nil {
		d := &tls.Dialer{Config: c.tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", c.addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.br = bufio.NewReaderSize(conn, frame.MTU)
	return nil
}

// Close closes the connection.
func (c *HubClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Exchange sends f and reads the next frame from the hub.
func (c *HubClient) Exchange(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := f.WriteTo(c.conn); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	resp := frame.New(0)
	if _, err := resp.ReadFrom(c.br); err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return resp, nil
}

// Request builds a request frame with the next sequence number.
func (c *HubClient) Request(source uint64, command, qualifier uint8, payload []byte) *frame.Frame {
	c.seq++
	f := frame.New(0)
	f.SetSource(source)
	f.SetSequence(c.seq)
	f.SetContext(command, qualifier, frame.StatusRequest)
	f.SetPayload(payload)
	return f
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Identity uint64
	// Group is the identity's group as stamped by the hub.
	Group uint8
	// SessionKey is the shared key both sides derived.
	SessionKey []byte
	// Registration is the signed registration frame returned by the hub.
	Registration *frame.Frame
}

// Login runs identification, authentication and registration.
func (c *HubClient) Login(ctx context.Context, identity uint64, password []byte) (*LoginResult, error) {
	user, err := srp.NewUser(identity, password)
	if err != nil {
		return nil, err
	}
	defer user.Destroy()

	resp, err := c.call(ctx, c.Request(identity, frame.CmdNull, frame.QlfIdentify, user.Nonce()))
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	salt, nonce, err := ParseChallenge(resp)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	proof, err := user.Challenge(salt, nonce)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}

	resp, err = c.call(ctx, c.Request(0, frame.CmdNull, frame.QlfAuthenticate, proof))
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !user.VerifyHost(resp.Payload()) {
		return nil, ErrHostProof
	}
	key, _ := user.SessionKey()

	resp, err = c.call(ctx, c.Request(0, frame.CmdBasic, frame.QlfRegister, nil))
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if resp.Source() != identity {
		return nil, fmt.Errorf("register: %w: source %d", ErrBadResponse, resp.Source())
	}

	return &LoginResult{
		Identity:     identity,
		Group:        resp.Session(),
		SessionKey:   append([]byte(nil), key...),
		Registration: resp,
	}, nil
}

// call exchanges req and checks that the response answers it.
func (c *HubClient) call(ctx context.Context, req *frame.Frame) (*frame.Frame, error) {
	resp, err := c.Exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status() == frame.StatusRejected {
		return nil, ErrRejected
	}
	if resp.Sequence() != req.Sequence() || !resp.CheckContext(req.Command(), req.Qualifier()) {
		return nil, fmt.Errorf("%w: unexpected frame %s", ErrBadResponse, resp)
	}
	return resp, nil
}

// ParseChallenge splits an identification response payload
// [u16 saltLen][u16 nonceLen][salt][nonce].
func ParseChallenge(f *frame.Frame) (salt, nonce []byte, err error) {
	saltLen, ok1 := f.Data16(0)
	nonceLen, ok2 := f.Data16(2)
	p := f.Payload()
	if !ok1 || !ok2 || saltLen == 0 || nonceLen == 0 || len(p) != 4+int(saltLen)+int(nonceLen) {
		return nil, nil, fmt.Errorf("%w: challenge of %d bytes", ErrBadResponse, len(p))
	}
	salt = append([]byte(nil), p[4:4+saltLen]...)
	nonce = append([]byte(nil), p[4+saltLen:]...)
	return salt, nonce, nil
}
