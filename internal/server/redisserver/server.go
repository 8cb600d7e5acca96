package redisserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/kvgate-go/internal/core/admission"
	"github.com/yndnr/kvgate-go/internal/core/auth"
	"github.com/yndnr/kvgate-go/internal/core/domain"
	"github.com/yndnr/kvgate-go/internal/protocol/resp"
	"github.com/yndnr/kvgate-go/internal/telemetry/metric"
)

// Config holds the Redis server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string
	// ReadTimeout bounds reading one command once its first byte arrived.
	// Helps prevent slowloris attacks.
	ReadTimeout time.Duration
	// WriteTimeout bounds flushing replies.
	WriteTimeout time.Duration
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
	// RateLimit is the maximum number of commands per second per IP.
	// Set to 0 to disable rate limiting.
	RateLimit int
	// MaxOutputBuffer is the per-connection reply ceiling in bytes.
	MaxOutputBuffer int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:9221",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     5 * time.Minute,
		MaxOutputBuffer: DefaultMaxOutputSize,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxOutputBuffer <= 0 {
		c.MaxOutputBuffer = d.MaxOutputBuffer
	}
}

// Deps are the collaborators of a Server.
type Deps struct {
	Pipeline *admission.Pipeline
	// InitialState returns the auth state of a new connection. Nil admits
	// every connection as admin.
	InitialState func() auth.State
	Metrics      *metric.Registry
	Logger       *slog.Logger
}

// Server accepts Redis protocol connections and runs each command through
// the admission pipeline.
type Server struct {
	cfg          Config
	pipeline     *admission.Pipeline
	initialState func() auth.State
	limiter      *ipLimiter
	metrics      *metric.Registry
	logger       *slog.Logger

	ln      net.Listener
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*Conn]struct{}
}

// New creates a server.
func New(cfg Config, d Deps) *Server {
	cfg.applyDefaults()
	if d.InitialState == nil {
		d.InitialState = func() auth.State { return auth.AdminAuthed }
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		pipeline:     d.Pipeline,
		initialState: d.InitialState,
		metrics:      d.Metrics,
		logger:       d.Logger,
		stopCh:       make(chan struct{}),
		conns:        make(map[*Conn]struct{}),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit)
	}
	return s
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.pipeline == nil {
		return fmt.Errorf("redis server: pipeline is required")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("redis server: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("redis server listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("redis accept loop failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stopCh)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}

	s.connsMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("redis server stopped")
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
			return err
		}

		c := newConn(nc, s.initialState(), s.cfg.MaxOutputBuffer)
		if !s.track(c) {
			_ = c.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c)
		}()
	}
}

func (s *Server) track(c *Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Server) serveConn(ctx context.Context, c *Conn) {
	s.metrics.IncConnections()
	s.logger.Debug("connection opened", "remote", c.Addr(), "conn_id", c.ID())
	defer func() {
		s.pipeline.Monitor().Unsubscribe(c.ID())
		_ = c.Close()
		s.untrack(c)
		s.metrics.DecConnections()
		s.logger.Debug("connection closed", "remote", c.Addr(), "conn_id", c.ID())
	}()

	for {
		// First byte: allow idle timeout (connection can stay idle between commands).
		if err := c.netConn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			s.logReadError(c, err)
			return
		}

		// After first byte: tighten to per-command read timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		args, err := resp.ReadCommand(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				s.logReadError(c, err)
				return
			}
			if errors.Is(err, resp.ErrLimitExceeded) {
				s.logger.Warn("protocol limit exceeded", "remote", c.Addr(), "error", err)
				c.out.Append(resp.Error("ERR Protocol error: limit exceeded"))
			} else {
				s.logger.Debug("protocol error", "remote", c.Addr(), "error", err)
				c.out.Append(resp.Error("ERR Protocol error: " + err.Error()))
			}
			_ = s.flush(c)
			return
		}
		if len(args) == 0 {
			continue
		}

		if !c.out.Append(s.execute(ctx, c, args)) {
			s.metrics.IncOutputOverflow()
			s.logger.Warn("output buffer overflow",
				"remote", c.Addr(),
				"command", string(args[0]),
				"error", domain.ErrOutputTooLarge)
			if err := s.flush(c); err != nil {
				return
			}
			continue
		}

		// Pipelined commands share one flush.
		if c.br.Buffered() > 0 {
			continue
		}
		if err := s.flush(c); err != nil {
			return
		}

		if s.pipeline.Monitor().IsSubscribed(c.ID()) {
			s.streamMonitor(c)
			return
		}
	}
}

func (s *Server) execute(ctx context.Context, c *Conn, args [][]byte) []byte {
	if s.limiter != nil && !s.limiter.allow(c.ip()) {
		s.metrics.IncRateLimited()
		return resp.Error(domain.ErrRateLimited.Reply())
	}
	return s.pipeline.Execute(ctx, c, args)
}

// flush writes the buffered replies.
func (s *Server) flush(c *Conn) error {
	if !c.out.Ready() {
		return nil
	}
	if err := c.netConn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := c.netConn.Write(c.out.Bytes())
	c.out.Reset()
	if err != nil {
		s.logger.Debug("connection write error", "remote", c.Addr(), "error", err)
	}
	return err
}

// streamMonitor forwards monitor lines to c until the client disconnects
// or the server stops. Input from a monitoring client is discarded.
func (s *Server) streamMonitor(c *Conn) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = c.netConn.SetReadDeadline(time.Time{})
		_, _ = io.Copy(io.Discard, c.br)
	}()
	defer func() {
		_ = c.Close()
		<-gone
	}()

	for {
		select {
		case line := <-c.monitorCh:
			c.out.Append(resp.AppendSimple(nil, line))
		drain:
			for {
				select {
				case more := <-c.monitorCh:
					c.out.Append(resp.AppendSimple(nil, more))
				default:
					break drain
				}
			}
			if err := s.flush(c); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) logReadError(c *Conn, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case isTimeout(err):
		s.logger.Debug("connection timed out", "remote", c.Addr())
	default:
		s.logger.Debug("connection read error", "remote", c.Addr(), "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
