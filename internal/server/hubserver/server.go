package hubserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
	"github.com/yndnr/authmesh-go/internal/telemetry/metric"
	"github.com/yndnr/authmesh-go/pkg/cmap"
	"github.com/yndnr/authmesh-go/pkg/frame"
)

// Config holds the hub server configuration.
type Config struct {
	// Address is the listen address.
	Address string
	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
	// ReadTimeout bounds reading the rest of a frame once its first byte
	// has arrived (0 disables).
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one frame (0 disables).
	WriteTimeout time.Duration
	// IdleTimeout closes connections that send nothing for this long
	// (0 disables).
	IdleTimeout time.Duration
	// FrameRate is the per-connection inbound frame budget per second;
	// frames beyond it are dropped. 0 disables the limit.
	FrameRate float64
	// FrameBurst is the budget's burst (default: FrameRate).
	FrameBurst int
	// MaxConnections caps concurrent connections (0 means no cap).
	MaxConnections int
	// QueueSize is the per-connection outbound queue length (default: 16).
	QueueSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:9003",
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  5 * time.Minute,
		QueueSize:    16,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metric registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// event is what readers hand to the loop: a frame, or a departure when
// frame is nil.
type event struct {
	origin uint64
	frame  *frame.Frame
}

// Server accepts peer connections and runs the event loop.
type Server struct {
	cfg     *Config
	disp    *service.Dispatcher
	logger  *slog.Logger
	metrics *metric.Registry

	ln    net.Listener
	conns *cmap.Map[uint64, *Conn]

	nextOrigin atomic.Uint64
	events     chan event
	reconf     chan service.Config
	quit       chan struct{}
	loopDone   chan struct{}
	running    atomic.Bool
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New creates a hub server around disp. The server takes ownership of
// the dispatcher: it is driven from the event loop only and cleaned up on
// shutdown.
func New(cfg *Config, disp *service.Dispatcher, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	s := &Server{
		cfg:      cfg,
		disp:     disp,
		logger:   slog.Default(),
		conns:    cmap.New[uint64, *Conn](cmap.Uint64, cmap.WithShardCount(32)),
		events:   make(chan event, 256),
		reconf:   make(chan service.Config, 1),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on the configured address and starts serving.
func (s *Server) Start(ctx context.Context) error {
	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLSConfig != nil {
		ln, err = tls.Listen("tcp", s.cfg.Address, s.cfg.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", s.cfg.Address)
	}
	if err != nil {
		return fmt.Errorf("hub listen: %w", err)
	}
	s.Serve(ctx, ln)
	return nil
}

// Serve serves on an existing listener. It returns immediately.
func (s *Server) Serve(ctx context.Context, ln net.Listener) {
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("hub server started", "address", ln.Addr().String(), "tls", s.cfg.TLSConfig != nil)

	go s.loop()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil {
			s.logger.Error("hub accept loop failed", "error", err)
		}
	}()
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Reconfigure queues cfg for the dispatcher; the loop applies it between
// frames. A newer configuration replaces one not yet applied.
func (s *Server) Reconfigure(cfg service.Config) {
	for {
		select {
		case s.reconf <- cfg:
			return
		case <-s.quit:
			return
		default:
		}
		select {
		case <-s.reconf:
		default:
		}
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	return s.conns.Count()
}

// Shutdown closes the listener and every connection, stops the event loop
// and cleans up the dispatcher.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if s.ln != nil {
			if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				firstErr = err
			}
		}
		s.conns.Range(func(_ uint64, c *Conn) bool {
			c.Close()
			return true
		})
		close(s.quit)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		if s.ln != nil {
			<-s.loopDone
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("hub server stopped")
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}

		if limit := s.cfg.MaxConnections; limit > 0 && s.conns.Count() >= limit {
			s.logger.Warn("connection limit reached", "remote", nc.RemoteAddr().String(), "limit", limit)
			nc.Close()
			continue
		}

		c := s.register(ctx, nc)
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			c.writeLoop(s.cfg.WriteTimeout, func() { s.metrics.RecordFrame("out") })
		}()
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

func (s *Server) register(ctx context.Context, nc net.Conn) *Conn {
	origin := s.nextOrigin.Add(1)
	id := ulid.Make().String()

	lctx := logger.WithConn(logger.WithLogger(ctx, s.logger), id, origin)
	var limiter *rate.Limiter
	if s.cfg.FrameRate > 0 {
		burst := s.cfg.FrameBurst
		if burst <= 0 {
			burst = max(int(s.cfg.FrameRate), 1)
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.FrameRate), burst)
	}

	c := newConn(nc, id, origin, s.cfg.QueueSize, limiter, logger.FromContext(lctx))
	s.conns.Set(origin, c)
	s.metrics.IncConnections()
	c.logger.Debug("connection accepted", "remote", nc.RemoteAddr().String())
	return c
}

func (s *Server) serveConn(c *Conn) {
	defer func() {
		c.Close()
		s.conns.Delete(c.origin)
		s.metrics.DecConnections()
		s.post(event{origin: c.origin})
		c.logger.Debug("connection closed")
	}()

	for {
		f, err := c.readFrame(s.cfg.IdleTimeout, s.cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, frame.ErrInvalidLength) {
				c.logger.Warn("malformed frame", "error", err)
			} else if !quietError(err) {
				c.logger.Debug("connection read error", "error", err)
			}
			return
		}
		s.metrics.RecordFrame("in")
		if !c.allow() {
			s.metrics.RecordFrame("throttled")
			continue
		}
		if !s.post(event{origin: c.origin, frame: f}) {
			return
		}
	}
}

// post hands ev to the loop. It reports false once the server is stopping.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// loop owns the dispatcher.
func (s *Server) loop() {
	defer close(s.loopDone)
	for {
		select {
		case ev := <-s.events:
			if ev.frame == nil {
				s.disp.Stop(ev.origin)
				continue
			}
			s.route(ev.frame)
		case l := <-s.disp.Completions():
			if f, ok := s.disp.Complete(l); ok {
				s.deliver(f)
			}
		case cfg := <-s.reconf:
			s.disp.Configure(cfg)
			s.logger.Info("dispatcher reconfigured")
		case <-s.quit:
			s.disp.Cleanup()
			return
		}
	}
}

func (s *Server) route(f *frame.Frame) {
	switch s.disp.Route(f) {
	case service.OutcomeReply:
		s.deliver(f)
	case service.OutcomePending:
	case service.OutcomeForward:
		// Nothing behind this hub consumes application traffic.
		s.metrics.RecordFrame("dropped")
		s.logger.Debug("frame not handled", "frame", f.String())
	}
}

// deliver queues f on the connection named by its next hop. A peer whose
// queue is full is disconnected.
func (s *Server) deliver(f *frame.Frame) {
	c, ok := s.conns.Get(f.NextHop())
	if !ok || c.closed.Load() {
		s.metrics.RecordFrame("dropped")
		return
	}
	if !c.send(f) {
		c.logger.Warn("outbound queue full, closing connection")
		c.Close()
	}
}
