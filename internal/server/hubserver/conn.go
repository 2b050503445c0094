package hubserver

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/authmesh-go/pkg/frame"
)

// Conn is one peer connection.
type Conn struct {
	id      string
	origin  uint64
	netConn net.Conn
	br      *bufio.Reader
	logger  *slog.Logger
	limiter *rate.Limiter

	out       chan *frame.Frame
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newConn(c net.Conn, id string, origin uint64, queue int, limiter *rate.Limiter, logger *slog.Logger) *Conn {
	return &Conn{
		id:      id,
		origin:  origin,
		netConn: c,
		br:      bufio.NewReaderSize(c, frame.MTU),
		logger:  logger,
		limiter: limiter,
		out:     make(chan *frame.Frame, queue),
		done:    make(chan struct{}),
	}
}

// ID returns the connection's trace id.
func (c *Conn) ID() string { return c.id }

// Origin returns the numeric id frames from this connection carry.
func (c *Conn) Origin() uint64 { return c.origin }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.netConn.Close()
	})
	return err
}

// send queues f for writing. It reports false when the queue is full or
// the connection is closed.
func (c *Conn) send(f *frame.Frame) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.out <- f:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// readFrame reads the next frame. The idle timeout applies until the first
// byte arrives and the read timeout afterwards.
func (c *Conn) readFrame(idle, read time.Duration) (*frame.Frame, error) {
	if idle > 0 {
		if err := c.netConn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return nil, err
		}
	}
	if _, err := c.br.Peek(1); err != nil {
		return nil, err
	}
	deadline := time.Time{}
	if read > 0 {
		deadline = time.Now().Add(read)
	}
	if err := c.netConn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	f := frame.New(c.origin)
	if _, err := f.ReadFrom(c.br); err != nil {
		return nil, err
	}
	return f, nil
}

// allow applies the per-connection frame budget.
func (c *Conn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writeLoop drains the send queue until the connection closes.
func (c *Conn) writeLoop(timeout time.Duration, onWrite func()) {
	for {
		select {
		case f := <-c.out:
			if timeout > 0 {
				if err := c.netConn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
					c.Close()
					return
				}
			}
			if _, err := f.WriteTo(c.netConn); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					c.logger.Debug("write failed", "error", err)
				}
				c.Close()
				return
			}
			onWrite()
		case <-c.done:
			return
		}
	}
}

// quietError reports errors that end a connection without being worth
// more than a debug line.
func quietError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
