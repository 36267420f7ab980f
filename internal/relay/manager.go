package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/drksbr/browserrelay/internal/logger"
	"github.com/drksbr/browserrelay/internal/metrics"
	"github.com/drksbr/browserrelay/internal/traffic"
)

// Kind selects the upstream protocol a relay speaks.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindSOCKS5 Kind = "socks5"
)

// ParseKind accepts "http" or "socks5" (also "socks").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http", "https":
		return KindHTTP, nil
	case "socks5", "socks":
		return KindSOCKS5, nil
	default:
		return "", fmt.Errorf("unknown relay type %q", s)
	}
}

// Upstream is the authenticated proxy a relay forwards to.
type Upstream struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

func (u Upstream) Address() string {
	return targetAddress(u.Host, u.Port)
}

func (u Upstream) validate() error {
	if u.Host == "" {
		return errors.New("upstream host is required")
	}
	if u.Port == 0 {
		return errors.New("upstream port is required")
	}
	return nil
}

// ManagerOptions configures a Manager. Zero values pick sensible defaults.
type ManagerOptions struct {
	ListenHost       string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	Registry         *Registry
	Traffic          *traffic.Accounting
	Metrics          *metrics.Collectors
	Logger           *slog.Logger
}

// Manager starts local relays and owns their registry entries.
type Manager struct {
	listenHost       string
	dialTimeout      time.Duration
	handshakeTimeout time.Duration
	registry         *Registry
	traffic          *traffic.Accounting
	metrics          *metrics.Collectors
	logger           *slog.Logger
}

func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		listenHost:       opts.ListenHost,
		dialTimeout:      opts.DialTimeout,
		handshakeTimeout: opts.HandshakeTimeout,
		registry:         opts.Registry,
		traffic:          opts.Traffic,
		metrics:          opts.Metrics,
		logger:           logger.OrDiscard(opts.Logger).With("component", "relay"),
	}
	if m.listenHost == "" {
		m.listenHost = "127.0.0.1"
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = 15 * time.Second
	}
	if m.handshakeTimeout <= 0 {
		m.handshakeTimeout = 30 * time.Second
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	if m.traffic == nil {
		m.traffic = traffic.New()
	}
	return m
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) Traffic() *traffic.Accounting {
	return m.traffic
}

// StartHTTP starts a relay that forwards through an HTTP proxy requiring Basic auth.
func (m *Manager) StartHTTP(up Upstream, sessionID string) (uint16, error) {
	return m.Start(KindHTTP, up, sessionID)
}

// StartSOCKS5 starts an HTTP-facing relay that forwards through a SOCKS5 proxy.
func (m *Manager) StartSOCKS5(up Upstream, sessionID string) (uint16, error) {
	return m.Start(KindSOCKS5, up, sessionID)
}

// Start binds an ephemeral local port, replaces any relay already running for
// sessionID and begins accepting. It returns the local port.
func (m *Manager) Start(kind Kind, up Upstream, sessionID string) (uint16, error) {
	if err := up.validate(); err != nil {
		return 0, err
	}
	if sessionID == "" {
		return 0, errors.New("session id is required")
	}
	if kind == KindSOCKS5 && (len(up.Username) > 255 || len(up.Password) > 255) {
		return 0, ErrFieldTooLong
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(m.listenHost, "0"))
	if err != nil {
		return 0, fmt.Errorf("relay listen: %w", err)
	}

	m.metrics.RelayStarted()
	h := newHandle(sessionID, kind, ln, m.metrics.RelayStopped)
	cc := &connContext{
		kind:             kind,
		upstream:         up,
		authHeader:       basicAuthHeader(up.Username, up.Password),
		counters:         m.traffic.ForSession(sessionID),
		metrics:          m.metrics,
		dialTimeout:      m.dialTimeout,
		handshakeTimeout: m.handshakeTimeout,
		logger:           m.logger.With("session", sessionID, "kind", string(kind), "port", h.Port),
	}

	m.registry.Register(h)

	handler := cc.handleHTTP
	if kind == KindSOCKS5 {
		handler = cc.handleSOCKS5
	}
	go h.serve(cc.logger, handler)

	cc.logger.Info("relay started", "upstream", up.Address())
	return h.Port, nil
}

func (m *Manager) Stop(sessionID string) {
	m.registry.Stop(sessionID)
	m.logger.Info("relay stopped", "session", sessionID)
}

func (m *Manager) StopAll() {
	m.registry.StopAll()
}

func (m *Manager) Active() map[string]uint16 {
	return m.registry.Active()
}

// Serve blocks until ctx is done, then stops every relay.
func (m *Manager) Serve(ctx context.Context) {
	<-ctx.Done()
	m.StopAll()
	m.logger.Info("all relays stopped")
}

// connContext is the per-relay state shared by every accepted connection.
type connContext struct {
	kind             Kind
	upstream         Upstream
	authHeader       string
	counters         *traffic.Counters
	metrics          *metrics.Collectors
	dialTimeout      time.Duration
	handshakeTimeout time.Duration
	logger           *slog.Logger
}

func (c *connContext) dialUpstream() (net.Conn, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.Dial("tcp", c.upstream.Address())
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

func (c *connContext) addSent(n int) {
	c.counters.AddSent(n)
	c.metrics.BytesRelayed("sent", n)
}

func (c *connContext) addReceived(n int) {
	c.counters.AddReceived(n)
	c.metrics.BytesRelayed("received", n)
}
