package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drksbr/browserrelay/internal/logger"
	"github.com/drksbr/browserrelay/internal/metrics"
)

var (
	ErrSessionNotFound  = errors.New("cdp session not found")
	ErrConnectionClosed = errors.New("cdp connection closed")
)

type session struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	nextID atomic.Uint64
	closed atomic.Bool
}

func (s *session) close() {
	if s.closed.Swap(true) {
		return
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
}

type ClientOptions struct {
	HandshakeTimeout time.Duration
	Metrics          *metrics.Collectors
	Logger           *slog.Logger
}

// Client keeps one DevTools WebSocket per session id. Commands on the same
// session serialize; different sessions are independent.
type Client struct {
	dialer   websocket.Dialer
	metrics  *metrics.Collectors
	logger   *slog.Logger
	mu       sync.Mutex
	sessions map[string]*session
}

func NewClient(opts ClientOptions) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}
	return &Client{
		dialer: websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		},
		metrics:  opts.Metrics,
		logger:   logger.OrDiscard(opts.Logger).With("component", "cdp"),
		sessions: make(map[string]*session),
	}
}

// Connect dials wsURL and stores the connection under sessionID, closing any
// previous connection for the same id.
func (c *Client) Connect(ctx context.Context, sessionID, wsURL string) error {
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("cdp connect %s: %w", wsURL, err)
	}
	conn.SetReadLimit(256 << 20)

	s := &session{id: sessionID, conn: conn}
	c.mu.Lock()
	prev := c.sessions[sessionID]
	c.sessions[sessionID] = s
	c.mu.Unlock()
	if prev != nil {
		prev.close()
		c.metrics.CDPSessionClosed()
	}
	c.metrics.CDPSessionOpened()
	c.logger.Debug("session connected", "session", sessionID, "url", wsURL)
	return nil
}

// HasSession reports whether sessionID is connected.
func (c *Client) HasSession(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[sessionID]
	return ok
}

// Disconnect closes and forgets sessionID. Unknown ids are a no-op.
func (c *Client) Disconnect(sessionID string) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	c.metrics.CDPSessionClosed()
	c.logger.Debug("session disconnected", "session", sessionID)
}

// Close disconnects every session.
func (c *Client) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.Disconnect(id)
	}
}

// SendCommand issues method and waits for the response carrying the same id.
// Events and responses to other ids arriving in between are discarded.
// params may be nil, json.RawMessage, []byte or any value encoding/json accepts.
func (c *Client) SendCommand(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	raw, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("cdp %s params: %w", method, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrConnectionClosed
	}

	id := s.nextID.Add(1)
	frame, err := EncodeCommand(id, method, raw)
	if err != nil {
		return nil, err
	}

	// A cancelled context closes the socket, which unblocks a pending read or
	// a write stuck on a full send buffer. The session is dropped afterwards.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
		_ = s.conn.Close()
	})
	defer func() {
		if !stop() {
			c.dropBroken(s)
		}
	}()

	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, c.fail(ctx, s, method, err)
	}

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, c.fail(ctx, s, method, err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		result, matched, err := matchResponse(data, id, method)
		if !matched {
			continue
		}
		if err != nil {
			c.metrics.CDPCommand("error")
			return nil, err
		}
		c.metrics.CDPCommand("ok")
		return result, nil
	}
}

func (c *Client) fail(ctx context.Context, s *session, method string, err error) error {
	c.metrics.CDPCommand("transport_error")
	c.dropBroken(s)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("cdp %s: %w", method, ctxErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrConnectionClosed, method, err)
}

func (c *Client) dropBroken(s *session) {
	c.mu.Lock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
		c.metrics.CDPSessionClosed()
	}
	c.mu.Unlock()
	s.close()
	c.logger.Debug("session dropped after transport error", "session", s.id)
}

func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}
