package relay

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
)

// handleHTTP relays one client connection through an authenticating HTTP proxy.
func (c *connContext) handleHTTP(conn net.Conn) {
	defer conn.Close()
	c.metrics.ConnectionAccepted(string(KindHTTP))
	logger := c.logger.With("remote", conn.RemoteAddr().String())

	br := bufio.NewReader(conn)
	head, err := readRequestHead(br)
	if err != nil {
		if !errors.Is(err, errEmptyRequest) {
			logger.Debug("read request failed", "error", err)
		}
		return
	}
	logger = logger.With("method", head.Method, "target", head.Target)

	upstream, err := c.dialUpstream()
	if err != nil {
		c.metrics.HandshakeFailed(string(KindHTTP))
		logger.Warn("upstream connect failed", "upstream", c.upstream.Address(), "error", err)
		writeProxyError(conn, "upstream proxy unreachable")
		return
	}
	defer upstream.Close()

	if _, err := upstream.Write(encodeUpstreamHead(head, c.authHeader)); err != nil {
		logger.Debug("upstream write failed", "error", err)
		return
	}

	ub := bufio.NewReader(upstream)
	if head.isConnect() {
		c.tunnelHTTP(conn, br, upstream, ub, logger)
		return
	}
	c.forwardHTTP(conn, br, upstream, ub, head, logger)
}

// tunnelHTTP forwards the CONNECT response head verbatim and pipes on 200.
func (c *connContext) tunnelHTTP(conn net.Conn, br *bufio.Reader, upstream net.Conn, ub *bufio.Reader, logger *slog.Logger) {
	statusLine, err := ub.ReadString('\n')
	if err != nil {
		logger.Debug("read upstream status failed", "error", err)
		return
	}
	code, err := parseStatusCode(statusLine)
	if err != nil {
		logger.Warn("invalid upstream response", "error", err)
		return
	}
	c.checkAuthStatus(code, logger)

	if _, err := io.WriteString(conn, statusLine); err != nil {
		return
	}
	for {
		line, err := ub.ReadString('\n')
		if line != "" {
			if _, werr := io.WriteString(conn, line); werr != nil {
				return
			}
		}
		if err != nil {
			logger.Debug("read upstream headers failed", "error", err)
			return
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	if code != http.StatusOK {
		logger.Warn("connect rejected by upstream", "status", code)
		return
	}
	logger.Debug("tunnel established")
	pipe(conn, br, upstream, ub, c.addSent, c.addReceived)
}

// forwardHTTP sends the declared request body and streams the response until EOF.
func (c *connContext) forwardHTTP(conn net.Conn, br *bufio.Reader, upstream net.Conn, ub *bufio.Reader, head *requestHead, logger *slog.Logger) {
	if n := contentLength(head.Headers); n > 0 {
		if _, err := io.CopyN(countingWriter{w: upstream, add: c.addSent}, br, n); err != nil {
			logger.Debug("forward request body failed", "error", err)
			return
		}
	}

	statusLine, err := ub.ReadString('\n')
	if err != nil {
		logger.Debug("read upstream status failed", "error", err)
		return
	}
	if code, err := parseStatusCode(statusLine); err == nil {
		c.checkAuthStatus(code, logger)
	}
	out := countingWriter{w: conn, add: c.addReceived}
	if _, err := io.WriteString(out, statusLine); err != nil {
		return
	}
	_, _ = io.Copy(out, ub)
}

func (c *connContext) checkAuthStatus(code int, logger *slog.Logger) {
	if code == http.StatusProxyAuthRequired {
		c.metrics.UpstreamAuthFailed(string(KindHTTP))
		logger.Warn("upstream rejected proxy credentials", "status", code, "upstream", c.upstream.Address())
	}
}
