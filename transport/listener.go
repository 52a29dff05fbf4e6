package transport

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maxpert/amqp-router/config"
	routererrors "github.com/maxpert/amqp-router/errors"
	"github.com/maxpert/amqp-router/interfaces"
	"github.com/maxpert/amqp-router/logging"
)

// protocolHeaderLen is the length of the AMQP protocol header
const protocolHeaderLen = 8

// DialFunc opens an AMQP connection. It matches amqp091.DialConfig.
type DialFunc func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Transport is the TCP/TLS transport used by the connection manager
type Transport struct {
	log         *zap.Logger
	dial        DialFunc
	dialTimeout time.Duration
}

// Option configures a Transport
type Option func(*Transport)

// WithDialFunc replaces the AMQP dialer
func WithDialFunc(dial DialFunc) Option {
	return func(t *Transport) {
		t.dial = dial
	}
}

// WithDialTimeout sets the TCP connect timeout of outbound connections
func WithDialTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.dialTimeout = timeout
	}
}

// New creates a transport
func New(log *zap.Logger, opts ...Option) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transport{
		log:         log.Named(logging.Transport),
		dial:        amqp.DialConfig,
		dialTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// network maps a protocolFamily attribute onto a Go network name
func network(protocolFamily string) string {
	switch strings.ToUpper(protocolFamily) {
	case "IPV4":
		return "tcp4"
	case "IPV6":
		return "tcp6"
	default:
		return "tcp"
	}
}

// Listen binds cfg.HostPort, wrapping the socket in TLS when the listener
// references a TLS profile with material.
func (t *Transport) Listen(cfg *config.ServerConfig, handler interfaces.AcceptHandler) (interfaces.ListenSocket, error) {
	ln, err := net.Listen(network(cfg.ProtocolFamily), cfg.HostPort)
	if err != nil {
		return nil, routererrors.NewListenFailed(cfg.HostPort, err)
	}

	if cfg.SSLProfile != "" {
		if cfg.TLS.IsZero() {
			t.log.Warn("sslProfile has no TLS material, listening without TLS",
				zap.String("listener", cfg.Name),
				zap.String("ssl_profile", cfg.SSLProfile),
				zap.Bool("require_ssl", cfg.SSLRequired),
				zap.String("host_port", cfg.HostPort))
		} else {
			tlsConfig, err := ServerTLSConfig(cfg)
			if err != nil {
				ln.Close()
				return nil, routererrors.NewListenFailed(cfg.HostPort, err)
			}
			ln = tls.NewListener(ln, tlsConfig)
		}
	}

	s := &listenSocket{
		ln:      ln,
		cfg:     cfg,
		handler: handler,
		log: t.log.With(
			zap.String("listener", cfg.Name),
			zap.String("addr", ln.Addr().String())),
	}
	s.group.Go(s.acceptLoop)

	s.log.Info("Listening for AMQP connections")
	return s, nil
}

type listenSocket struct {
	ln      net.Listener
	cfg     *config.ServerConfig
	handler interfaces.AcceptHandler
	log     *zap.Logger
	group   errgroup.Group
	closed  atomic.Bool
}

func (s *listenSocket) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting and waits for the accept loop to exit. Connections
// already accepted stay open.
func (s *listenSocket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.ln.Close()
	if waitErr := s.group.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}
	return err
}

func (s *listenSocket) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Error("Error accepting connection", zap.Error(err))
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection checks the protocol header and hands the connection to
// the accept handler until the peer goes away.
func (s *listenSocket) handleConnection(conn net.Conn) {
	if timeout := s.cfg.InitialHandshakeTimeoutSeconds; timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(time.Duration(timeout) * time.Second))
	}

	header := make([]byte, protocolHeaderLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		s.log.Debug("Error reading protocol header",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		conn.Close()
		return
	}
	if string(header[:4]) != "AMQP" {
		s.log.Warn("Invalid protocol header",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Binary("header", header))
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	c := newConnection(conn.RemoteAddr().String(), conn.Close)
	s.handler.ConnectionAccepted(c)

	err := drain(conn, time.Duration(s.cfg.IdleTimeoutSeconds)*time.Second)
	c.Close()
	c.release()
	s.handler.ConnectionClosed(c, err)
}

// drain consumes inbound bytes until the peer closes, the socket is closed
// locally or nothing arrives for twice the idle timeout.
func drain(conn net.Conn, idle time.Duration) error {
	buf := make([]byte, 4096)
	for {
		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(2 * idle))
		}
		if _, err := conn.Read(buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
